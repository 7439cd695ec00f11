// Gatehouse - Multi-Tenant SaaS API Gateway
// Copyright 2026 Gatehouse Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatehouse-io/gatehouse

package store

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/gatehouse-io/gatehouse/internal/models"
)

// Key prefixes for BadgerDB storage.
const (
	serviceKeyPrefix  = "svckey:"
	rateCounterPrefix = "ratecnt:"
	usagePrefix       = "usage:"
	idempotencyPrefix = "idem:"
)

// incrRetries bounds optimistic-transaction retries on write conflicts.
const incrRetries = 16

// Badger implements ServiceKeyStore, CounterStore, and IdempotencyStore on
// BadgerDB for durable single-node deployments. Counter increments run in
// serializable transactions and retry on conflict, so the returned count is
// exact even under concurrent requests.
//
// Membership, user, and subscription reads stay on the relational business
// store; this backend only owns pipeline state.
type Badger struct {
	db *badger.DB
}

// NewBadger wraps an open BadgerDB handle.
func NewBadger(db *badger.DB) *Badger {
	return &Badger{db: db}
}

// OpenBadger opens (or creates) a BadgerDB at path. An empty path opens an
// in-memory database, used by tests and development mode.
func OpenBadger(path string) (*Badger, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &Badger{db: db}, nil
}

// Close closes the underlying database.
func (s *Badger) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is usable; wired to the readiness
// probe.
func (s *Badger) Ping() error {
	if s.db.IsClosed() {
		return errors.New("badger: database closed")
	}
	return nil
}

// RunGC triggers value-log garbage collection once. Intended to be called
// periodically by the server's background worker.
func (s *Badger) RunGC() error {
	err := s.db.RunValueLogGC(0.5)
	if errors.Is(err, badger.ErrNoRewrite) {
		return nil
	}
	return err
}

// ServiceKeyByID implements ServiceKeyStore.
func (s *Badger) ServiceKeyByID(_ context.Context, id string) (*models.ServiceKey, error) {
	var key models.ServiceKey
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(serviceKeyPrefix + id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get service key: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &key)
		})
	})
	if err != nil {
		return nil, err
	}
	return &key, nil
}

// PutServiceKey implements ServiceKeyStore.
func (s *Badger) PutServiceKey(_ context.Context, key *models.ServiceKey) error {
	data, err := json.Marshal(key)
	if err != nil {
		return fmt.Errorf("marshal service key: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(serviceKeyPrefix+key.ID), data)
	})
}

// TouchServiceKey implements ServiceKeyStore.
func (s *Badger) TouchServiceKey(ctx context.Context, id string, when time.Time) error {
	key, err := s.ServiceKeyByID(ctx, id)
	if err != nil {
		return err
	}
	key.LastUsedAt = &when
	return s.PutServiceKey(ctx, key)
}

// IncrRateCounter implements CounterStore. The counter entry carries a TTL
// of twice the window-start distance from now, so abandoned windows age out
// of the keyspace without an explicit sweep.
func (s *Badger) IncrRateCounter(_ context.Context, principalKey, endpoint string, windowStart time.Time) (int64, error) {
	key := []byte(fmt.Sprintf("%s%s:%s:%d", rateCounterPrefix, principalKey, endpoint, windowStart.Unix()))
	return s.incr(key, 1, 2*time.Hour)
}

// IncrUsage implements CounterStore.
func (s *Badger) IncrUsage(_ context.Context, tenantID, metric string, periodStart time.Time, delta int64) (int64, error) {
	key := []byte(fmt.Sprintf("%s%s:%s:%d", usagePrefix, tenantID, metric, periodStart.Unix()))
	return s.incr(key, delta, 0)
}

// GetUsage implements CounterStore.
func (s *Badger) GetUsage(_ context.Context, tenantID, metric string, periodStart time.Time) (int64, error) {
	key := []byte(fmt.Sprintf("%s%s:%s:%d", usagePrefix, tenantID, metric, periodStart.Unix()))

	var count int64
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			count = decodeCount(val)
			return nil
		})
	})
	if err != nil {
		return 0, fmt.Errorf("get usage counter: %w", err)
	}
	return count, nil
}

// incr atomically adds delta to the counter at key and returns the new
// value, retrying on transaction conflicts.
func (s *Badger) incr(key []byte, delta int64, ttl time.Duration) (int64, error) {
	var count int64
	for attempt := 0; attempt < incrRetries; attempt++ {
		err := s.db.Update(func(txn *badger.Txn) error {
			item, err := txn.Get(key)
			switch {
			case errors.Is(err, badger.ErrKeyNotFound):
				count = delta
			case err != nil:
				return err
			default:
				if verr := item.Value(func(val []byte) error {
					count = decodeCount(val) + delta
					return nil
				}); verr != nil {
					return verr
				}
			}

			entry := badger.NewEntry(key, encodeCount(count))
			if ttl > 0 {
				entry = entry.WithTTL(ttl)
			}
			return txn.SetEntry(entry)
		})
		if errors.Is(err, badger.ErrConflict) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("increment counter: %w", err)
		}
		return count, nil
	}
	return 0, fmt.Errorf("increment counter: retries exhausted")
}

// GetIdempotencyRecord implements IdempotencyStore.
func (s *Badger) GetIdempotencyRecord(_ context.Context, key, tenantID string) (*models.IdempotencyRecord, error) {
	var rec models.IdempotencyRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(idempotencyPrefix + tenantID + ":" + key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get idempotency record: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// PutIdempotencyRecord implements IdempotencyStore. The entry TTL mirrors
// the record expiry so stale responses leave the keyspace on their own.
func (s *Badger) PutIdempotencyRecord(_ context.Context, rec *models.IdempotencyRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal idempotency record: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(idempotencyPrefix+rec.TenantID+":"+rec.Key), data)
		if ttl := time.Until(rec.ExpiresAt); ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		return txn.SetEntry(entry)
	})
}

func encodeCount(n int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(n))
	return buf
}

func decodeCount(val []byte) int64 {
	if len(val) != 8 {
		return 0
	}
	return int64(binary.BigEndian.Uint64(val))
}
