package services

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"github.com/example/upilink/internal/models"
)

const telegramBaseURL = "https://api.telegram.org"

// TelegramService sends payment notifications to a Telegram admin chat.
type TelegramService struct {
	botToken    string
	adminChatID string
	http        *resty.Client
}

// NewTelegramService creates a new TelegramService.
func NewTelegramService(botToken, adminChatID string) *TelegramService {
	return NewTelegramServiceWithBaseURL(botToken, adminChatID, telegramBaseURL)
}

// NewTelegramServiceWithBaseURL points the service at a different Bot API host.
func NewTelegramServiceWithBaseURL(botToken, adminChatID, baseURL string) *TelegramService {
	return &TelegramService{
		botToken:    botToken,
		adminChatID: adminChatID,
		http:        resty.New().SetBaseURL(strings.TrimRight(baseURL, "/")),
	}
}

type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// SendMessage sends a message to specified chat.
func (s *TelegramService) SendMessage(ctx context.Context, chatID, text string) error {
	if s.botToken == "" {
		log.Println("[Telegram] Bot token not configured")
		return nil
	}

	resp, err := s.http.R().
		SetContext(ctx).
		SetBody(telegramMessage{ChatID: chatID, Text: text, ParseMode: "HTML"}).
		Post("/bot" + s.botToken + "/sendMessage")
	if err != nil {
		log.Printf("[Telegram] Failed to send message: %v", err)
		return err
	}
	if resp.StatusCode() != 200 {
		log.Printf("[Telegram] Unexpected status: %d", resp.StatusCode())
		return fmt.Errorf("telegram returned status %d", resp.StatusCode())
	}
	return nil
}

// SendToAdmin sends a message to the admin chat.
func (s *TelegramService) SendToAdmin(ctx context.Context, text string) error {
	if s.adminChatID == "" {
		log.Println("[Telegram] Admin chat ID not configured")
		return nil
	}
	return s.SendMessage(ctx, s.adminChatID, text)
}

// FormatINR formats an amount in rupees with thousand separators.
func FormatINR(amount decimal.Decimal) string {
	sign := ""
	if amount.IsNegative() {
		sign = "-"
		amount = amount.Neg()
	}
	whole, frac, _ := strings.Cut(amount.StringFixed(2), ".")

	var result strings.Builder
	for i, digit := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			result.WriteString(",")
		}
		result.WriteRune(digit)
	}
	return sign + "₹" + result.String() + "." + frac
}

// NotifyTransition implements Notifier.
func (s *TelegramService) NotifyTransition(ctx context.Context, t Transition) error {
	if s.adminChatID == "" || t.Transaction == nil {
		return nil
	}

	title := "✅ PAYMENT RECEIVED"
	if t.To == models.StatusFailed {
		title = "❌ PAYMENT FAILED"
	}

	txn := t.Transaction
	message := fmt.Sprintf(`<b>%s</b>
<b>📋 Transaction:</b> %s
<b>👤 Payee:</b> %s
<b>💰 Amount:</b> %s
<b>📍 Status:</b> %s → %s (%s)
━━━━━━━━━━━━━━━━━━
<i>%s</i>`,
		title,
		txn.ID,
		txn.PayeeAddress,
		FormatINR(txn.Amount),
		t.From,
		t.To,
		t.Trigger,
		txn.MerchantName,
	)

	return s.SendToAdmin(ctx, strings.TrimSpace(message))
}
