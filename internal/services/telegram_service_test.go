package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/upilink/internal/models"
)

func TestFormatINR(t *testing.T) {
	cases := map[string]string{
		"0":          "₹0.00",
		"1":          "₹1.00",
		"999.5":      "₹999.50",
		"1000":       "₹1,000.00",
		"50000":      "₹50,000.00",
		"1234567.89": "₹1,234,567.89",
		"-12.3":      "-₹12.30",
	}
	for in, want := range cases {
		assert.Equal(t, want, FormatINR(decimal.RequireFromString(in)), in)
	}
}

func TestNotifyTransitionPostsToAdminChat(t *testing.T) {
	var got telegramMessage
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	svc := NewTelegramServiceWithBaseURL("token123", "42", srv.URL)
	err := svc.NotifyTransition(context.Background(), Transition{
		Transaction: &models.Transaction{
			ID:           "TXNABC",
			PayeeAddress: "user@ybl",
			Amount:       decimal.NewFromInt(1500),
			MerchantName: "Demo Merchant Store",
		},
		From:    models.StatusPending,
		To:      models.StatusSuccess,
		Trigger: TriggerWebhook,
	})
	require.NoError(t, err)

	assert.Equal(t, "/bottoken123/sendMessage", path)
	assert.Equal(t, "42", got.ChatID)
	assert.Equal(t, "HTML", got.ParseMode)
	assert.Contains(t, got.Text, "TXNABC")
	assert.Contains(t, got.Text, "₹1,500.00")
	assert.Contains(t, got.Text, "PAYMENT RECEIVED")
}

func TestNotifyTransitionReportsUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	svc := NewTelegramServiceWithBaseURL("token", "42", srv.URL)
	err := svc.NotifyTransition(context.Background(), Transition{
		Transaction: &models.Transaction{ID: "TXN1", Amount: decimal.NewFromInt(1)},
		To:          models.StatusFailed,
	})
	assert.Error(t, err)
}

func TestNotifyTransitionSkipsWhenUnconfigured(t *testing.T) {
	svc := NewTelegramService("", "")
	err := svc.NotifyTransition(context.Background(), Transition{
		Transaction: &models.Transaction{ID: "TXN1"},
		To:          models.StatusSuccess,
	})
	assert.NoError(t, err)
}
