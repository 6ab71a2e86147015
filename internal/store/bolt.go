// Package store provides the BoltDB-backed local persistence layer.
//
// The orchestrator keeps only client-side bookkeeping: the idempotency key of
// the attempt in flight, the optimistic history/balance cache, and the
// instructions still awaiting out-of-band settlement. None of it is
// authoritative; no external database process is involved in moving money.
package store

import (
	"encoding/json"
	"errors"
	"time"

	bolt "github.com/boltdb/bolt"

	"github.com/bantec-cbs/interbank-orchestrator/internal/domain"
)

var (
	bucketKeys     = []byte("idempotency_keys")
	bucketHistory  = []byte("local_history")
	bucketBalances = []byte("balance_cache")
	bucketPending  = []byte("pending_instructions")
)

// ErrNotFound is returned when a requested entry does not exist.
var ErrNotFound = errors.New("entry not found")

// PendingInstruction is a transfer that exhausted the client-side polling
// budget and is waiting for the switch to settle within its SLA.
type PendingInstruction struct {
	InstructionRef string                        `json:"instruction_ref"`
	Record         domain.LocalTransactionRecord `json:"record"`
	FirstObserved  time.Time                     `json:"first_observed"`
}

// Local wraps a BoltDB database file.
type Local struct {
	db *bolt.DB
}

// Open opens (or creates) the database at path and ensures all buckets exist.
func Open(path string) (*Local, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketKeys, bucketHistory, bucketBalances, bucketPending} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Local{db: db}, nil
}

// Close releases the database file lock.
func (s *Local) Close() error {
	return s.db.Close()
}

// CurrentKey returns the idempotency key stored for an attempt scope and
// whether one exists.
func (s *Local) CurrentKey(scope string) (string, bool, error) {
	var (
		key   string
		found bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketKeys).Get([]byte(scope))
		if v == nil {
			return nil
		}
		key = string(v)
		found = true
		return nil
	})
	return key, found, err
}

// SaveKey persists the idempotency key for an attempt scope.
func (s *Local) SaveKey(scope, key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketKeys).Put([]byte(scope), []byte(key))
	})
}

// ClearKey removes the idempotency key for an attempt scope. Clearing a key
// that does not exist is a no-op.
func (s *Local) ClearKey(scope string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketKeys).Delete([]byte(scope))
	})
}

// AppendHistory appends a local transaction record, deduplicating by
// instruction reference so a record is applied at most once per instruction.
// It reports whether a write occurred.
func (s *Local) AppendHistory(rec domain.LocalTransactionRecord) (bool, error) {
	written := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketHistory)
		if b.Get([]byte(rec.InstructionRef)) != nil {
			return nil
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		written = true
		return b.Put([]byte(rec.InstructionRef), data)
	})
	return written, err
}

// History returns the locally recorded transactions for an account.
func (s *Local) History(accountID string) ([]domain.LocalTransactionRecord, error) {
	records := []domain.LocalTransactionRecord{}
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketHistory).ForEach(func(k, v []byte) error {
			var rec domain.LocalTransactionRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			if rec.AccountID == accountID {
				records = append(records, rec)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Balances returns the cached account list.
func (s *Local) Balances() ([]domain.Account, error) {
	accounts := []domain.Account{}
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketBalances).ForEach(func(k, v []byte) error {
			var acc domain.Account
			if err := json.Unmarshal(v, &acc); err != nil {
				return err
			}
			accounts = append(accounts, acc)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

// Balance returns one cached account by id.
func (s *Local) Balance(accountID string) (domain.Account, error) {
	var acc domain.Account
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketBalances).Get([]byte(accountID))
		if v == nil {
			return ErrNotFound
		}
		return json.Unmarshal(v, &acc)
	})
	return acc, err
}

// PutBalance writes one cached account entry.
func (s *Local) PutBalance(acc domain.Account) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(acc)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketBalances).Put([]byte(acc.ID), data)
	})
}

// ReplaceBalances overwrites the whole balance cache with an authoritative
// account list.
func (s *Local) ReplaceBalances(accounts []domain.Account) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketBalances); err != nil {
			return err
		}
		b, err := tx.CreateBucket(bucketBalances)
		if err != nil {
			return err
		}
		for _, acc := range accounts {
			data, err := json.Marshal(acc)
			if err != nil {
				return err
			}
			if err := b.Put([]byte(acc.ID), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// SavePending records an instruction awaiting out-of-band settlement. Saving
// the same reference twice keeps the original observation time.
func (s *Local) SavePending(p PendingInstruction) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPending)
		if b.Get([]byte(p.InstructionRef)) != nil {
			return nil
		}
		data, err := json.Marshal(p)
		if err != nil {
			return err
		}
		return b.Put([]byte(p.InstructionRef), data)
	})
}

// Pending returns all instructions awaiting settlement.
func (s *Local) Pending() ([]PendingInstruction, error) {
	items := []PendingInstruction{}
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPending).ForEach(func(k, v []byte) error {
			var p PendingInstruction
			if err := json.Unmarshal(v, &p); err != nil {
				return err
			}
			items = append(items, p)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// DeletePending removes a settled instruction. Deleting a missing reference
// is a no-op so retries are safe.
func (s *Local) DeletePending(instructionRef string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPending).Delete([]byte(instructionRef))
	})
}
