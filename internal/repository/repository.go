package repository

import (
	"context"
	"errors"
	"time"

	"github.com/example/upilink/internal/models"
)

var (
	// ErrNotFound is returned when no record exists for an id.
	ErrNotFound = errors.New("transaction not found")
	// ErrDuplicateID is returned by Create when the id is already taken.
	ErrDuplicateID = errors.New("transaction id already exists")
	// ErrConflict is returned when an optimistic update keeps losing races.
	ErrConflict = errors.New("transaction update conflict")
)

// Mutator edits a record in place and reports whether it changed. Stores persist
// the record only when changed is true. Returning an error aborts the update.
type Mutator func(txn *models.Transaction) (changed bool, err error)

// ListFilter narrows List results. Zero values match everything.
type ListFilter struct {
	PayeeAddress string
	Status       models.Status
	Offset       int
	Limit        int
}

// Repository owns transaction records. Update is the only mutation path and is
// serialized per id; it does not judge whether a status change is legal.
type Repository interface {
	Create(ctx context.Context, txn *models.Transaction) error
	Get(ctx context.Context, id string) (*models.Transaction, error)
	Update(ctx context.Context, id string, fn Mutator) (*models.Transaction, error)
	List(ctx context.Context, filter ListFilter) ([]models.Transaction, error)
	// SweepExpired moves initiated and pending records created before cutoff to
	// expired, stamping them with at, and returns their ids.
	SweepExpired(ctx context.Context, cutoff, at time.Time) ([]string, error)
}

// UpdateStatus unconditionally sets status and touches UpdatedAt.
func UpdateStatus(ctx context.Context, repo Repository, id string, status models.Status, at time.Time) (*models.Transaction, error) {
	return repo.Update(ctx, id, func(txn *models.Transaction) (bool, error) {
		txn.Status = status
		txn.Touch(at)
		return true, nil
	})
}

func expireIfStale(cutoff, at time.Time) Mutator {
	return func(txn *models.Transaction) (bool, error) {
		if !txn.Status.IsOpen() || !txn.CreatedAt.Before(cutoff) {
			return false, nil
		}
		txn.Status = models.StatusExpired
		txn.Touch(at)
		return true, nil
	}
}

func matches(txn *models.Transaction, filter ListFilter) bool {
	if filter.PayeeAddress != "" && txn.PayeeAddress != filter.PayeeAddress {
		return false
	}
	if filter.Status != "" && txn.Status != filter.Status {
		return false
	}
	return true
}

func paginate(items []models.Transaction, offset, limit int) []models.Transaction {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []models.Transaction{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
