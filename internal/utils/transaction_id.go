package utils

import (
	"strings"

	"github.com/google/uuid"
)

// TransactionIDPrefix marks merchant transaction ids issued by this service.
const TransactionIDPrefix = "TXN"

// GenerateTransactionID returns "TXN" followed by the 32 hex digits of a random
// UUID, upper-cased. 35 characters fits PhonePe's 38-character limit.
func GenerateTransactionID() string {
	id := uuid.New()
	return TransactionIDPrefix + strings.ToUpper(strings.ReplaceAll(id.String(), "-", ""))
}
