package services

import "github.com/example/upilink/internal/models"

// allowedTransitions lists, per status, the statuses it may move to. Terminal
// statuses have no outgoing edges.
var allowedTransitions = map[models.Status][]models.Status{
	models.StatusInitiated: {models.StatusPending, models.StatusFailed, models.StatusExpired},
	models.StatusPending:   {models.StatusSuccess, models.StatusFailed, models.StatusExpired},
	models.StatusSuccess:   {},
	models.StatusFailed:    {},
	models.StatusExpired:   {},
}

// CanTransition reports whether from -> to is an edge of the lifecycle.
func CanTransition(from, to models.Status) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Trigger names what caused a transition, for logs and notifications.
type Trigger string

const (
	TriggerSubmission Trigger = "submission"
	TriggerWebhook    Trigger = "webhook"
	TriggerPoll       Trigger = "poll"
	TriggerExpiry     Trigger = "expiry"
)

// Transition describes the outcome of applying a status to a record.
type Transition struct {
	Transaction *models.Transaction
	From        models.Status
	To          models.Status
	Trigger     Trigger
	Applied     bool
}
