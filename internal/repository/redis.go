package repository

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/upilink/internal/models"
)

const (
	redisKeyPrefix   = "upilink:txn:"
	redisAllKey      = "upilink:txn:all"
	redisOpenKey     = "upilink:txn:open"
	redisMaxAttempts = 8
)

// RedisStore keeps each transaction as a JSON string. Two sorted sets scored by
// creation time index every record and the still-open ones. Create and Update
// use WATCH/MULTI so concurrent writers of one key abort or retry instead of
// overwriting.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore wraps a go-redis client.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func redisKey(id string) string {
	return redisKeyPrefix + id
}

func score(t time.Time) float64 {
	return float64(t.UnixMicro())
}

// Create writes the record and its index entries in one MULTI block. The key is
// watched so a concurrent create of the same id aborts instead of clobbering.
func (s *RedisStore) Create(ctx context.Context, txn *models.Transaction) error {
	data, err := json.Marshal(txn)
	if err != nil {
		return err
	}

	key := redisKey(txn.ID)
	member := redis.Z{Score: score(txn.CreatedAt), Member: txn.ID}
	err = s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrDuplicateID
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			pipe.ZAdd(ctx, redisAllKey, member)
			if txn.Status.IsOpen() {
				pipe.ZAdd(ctx, redisOpenKey, member)
			}
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return ErrDuplicateID
	}
	return err
}

func (s *RedisStore) Get(ctx context.Context, id string) (*models.Transaction, error) {
	return s.load(ctx, s.rdb, id)
}

type redisGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *RedisStore) load(ctx context.Context, c redisGetter, id string) (*models.Transaction, error) {
	raw, err := c.Get(ctx, redisKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var txn models.Transaction
	if err := json.Unmarshal(raw, &txn); err != nil {
		return nil, err
	}
	return &txn, nil
}

func (s *RedisStore) Update(ctx context.Context, id string, fn Mutator) (*models.Transaction, error) {
	key := redisKey(id)
	var out *models.Transaction

	txf := func(tx *redis.Tx) error {
		txn, err := s.load(ctx, tx, id)
		if err != nil {
			return err
		}
		changed, err := fn(txn)
		if err != nil {
			return err
		}
		out = txn
		if !changed {
			return nil
		}

		data, err := json.Marshal(txn)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			if !txn.Status.IsOpen() {
				pipe.ZRem(ctx, redisOpenKey, id)
			}
			return nil
		})
		return err
	}

	for attempt := 0; attempt < redisMaxAttempts; attempt++ {
		err := s.rdb.Watch(ctx, txf, key)
		if err == nil {
			return out, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, err
	}
	return nil, ErrConflict
}

func (s *RedisStore) List(ctx context.Context, filter ListFilter) ([]models.Transaction, error) {
	ids, err := s.rdb.ZRevRange(ctx, redisAllKey, 0, -1).Result()
	if err != nil {
		return nil, err
	}

	items := make([]models.Transaction, 0, len(ids))
	for _, id := range ids {
		txn, err := s.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if matches(txn, filter) {
			items = append(items, *txn)
		}
	}
	return paginate(items, filter.Offset, filter.Limit), nil
}

func (s *RedisStore) SweepExpired(ctx context.Context, cutoff, at time.Time) ([]string, error) {
	ids, err := s.rdb.ZRangeByScore(ctx, redisOpenKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(cutoff.UnixMicro(), 10),
	}).Result()
	if err != nil {
		return nil, err
	}

	expire := expireIfStale(cutoff, at)
	var expired []string
	for _, id := range ids {
		changed := false
		_, err := s.Update(ctx, id, func(txn *models.Transaction) (bool, error) {
			ok, err := expire(txn)
			changed = ok
			return ok, err
		})
		if errors.Is(err, ErrNotFound) {
			s.rdb.ZRem(ctx, redisOpenKey, id)
			continue
		}
		if err != nil {
			return expired, err
		}
		if changed {
			expired = append(expired, id)
		}
	}
	return expired, nil
}
