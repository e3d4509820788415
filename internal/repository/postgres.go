package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/example/upilink/internal/models"
)

// PostgresStore persists transactions with gorm. Update holds a row lock for the
// duration of the mutator, which serializes writers of the same id across
// processes.
type PostgresStore struct {
	db *gorm.DB
}

// NewPostgresStore wraps an open gorm connection. The connection should be opened
// with TranslateError so duplicate keys surface as gorm.ErrDuplicatedKey.
func NewPostgresStore(db *gorm.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, txn *models.Transaction) error {
	if err := s.db.WithContext(ctx).Create(txn).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateID
		}
		return err
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*models.Transaction, error) {
	var txn models.Transaction
	if err := s.db.WithContext(ctx).
		Where("id = ?", id).
		First(&txn).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &txn, nil
}

func (s *PostgresStore) Update(ctx context.Context, id string, fn Mutator) (*models.Transaction, error) {
	var out models.Transaction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txn models.Transaction
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", id).
			First(&txn).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		changed, err := fn(&txn)
		if err != nil {
			return err
		}
		if changed {
			if err := tx.Model(&models.Transaction{}).
				Where("id = ?", id).
				Updates(map[string]any{
					"status":     txn.Status,
					"updated_at": txn.UpdatedAt,
				}).Error; err != nil {
				return err
			}
		}
		out = txn
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *PostgresStore) List(ctx context.Context, filter ListFilter) ([]models.Transaction, error) {
	query := s.db.WithContext(ctx).Model(&models.Transaction{})
	if filter.PayeeAddress != "" {
		query = query.Where("payee_address = ?", filter.PayeeAddress)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	txns := []models.Transaction{}
	if err := query.Order("created_at DESC").Order("id").Find(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}

// SweepExpired skips rows another writer currently holds; they are picked up on
// the next sweep.
func (s *PostgresStore) SweepExpired(ctx context.Context, cutoff, at time.Time) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var stale []models.Transaction
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Select("id", "updated_at").
			Where("status IN ? AND created_at < ?", []models.Status{models.StatusInitiated, models.StatusPending}, cutoff).
			Order("id").
			Find(&stale).Error; err != nil {
			return err
		}

		for i := range stale {
			stale[i].Touch(at)
			if err := tx.Model(&models.Transaction{}).
				Where("id = ?", stale[i].ID).
				Updates(map[string]any{
					"status":     models.StatusExpired,
					"updated_at": stale[i].UpdatedAt,
				}).Error; err != nil {
				return err
			}
			ids = append(ids, stale[i].ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}
