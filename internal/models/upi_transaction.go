package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a UPI transaction.
type Status string

const (
	StatusInitiated Status = "initiated"
	StatusPending   Status = "pending"
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
	StatusExpired   Status = "expired"
)

// Statuses lists every lifecycle state.
var Statuses = []Status{StatusInitiated, StatusPending, StatusSuccess, StatusFailed, StatusExpired}

// IsTerminal reports whether no further transition may leave s.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusExpired:
		return true
	}
	return false
}

// IsOpen reports whether s is still waiting for resolution.
func (s Status) IsOpen() bool {
	return s == StatusInitiated || s == StatusPending
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

// Transaction is a UPI collect request tracked until it resolves. ID doubles as the
// merchantTransactionId shared with the gateway.
type Transaction struct {
	ID           string          `gorm:"primaryKey;size:38" json:"id"`
	PayeeAddress string          `gorm:"index;not null" json:"payeeAddress"`
	Amount       decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
	Status       Status          `gorm:"size:16;index;not null" json:"status"`
	Description  string          `gorm:"size:100" json:"description,omitempty"`
	MerchantName string          `json:"merchantName"`
	Timestamps
}

// TableName pins the table name used by the gorm store.
func (Transaction) TableName() string {
	return "upi_transactions"
}

// Age returns how long ago the transaction was created.
func (t *Transaction) Age(now time.Time) time.Duration {
	return now.Sub(t.CreatedAt)
}

// AmountPaise converts the amount to minor units.
func (t *Transaction) AmountPaise() int64 {
	return t.Amount.Shift(2).Round(0).IntPart()
}
