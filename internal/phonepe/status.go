package phonepe

import "github.com/example/upilink/internal/models"

// Gateway payment states.
const (
	StatePending   = "PENDING"
	StateCompleted = "COMPLETED"
	StateFailed    = "FAILED"
	StateCancelled = "CANCELLED"
)

// MapStatus translates a gateway payment state into a lifecycle status.
// Matching is exact; anything else, including differently cased or padded
// states, maps to failed.
func MapStatus(state string) models.Status {
	switch state {
	case StatePending:
		return models.StatusPending
	case StateCompleted:
		return models.StatusSuccess
	case StateFailed, StateCancelled:
		return models.StatusFailed
	default:
		return models.StatusFailed
	}
}
