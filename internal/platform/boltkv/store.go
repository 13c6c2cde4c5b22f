// Package boltkv implements platform.KVStore on top of go.etcd.io/bbolt,
// a single-file embedded store retrieved alongside this spec's example
// pack, giving cmd/hapd real persistence across restarts instead of an
// in-memory stand-in.
package boltkv

import (
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/hapcore/hap/internal/platform"
)

// Store is a platform.KVStore backed by a bbolt database file, one
// bucket per platform.Domain.
type Store struct {
	db *bbolt.DB
}

// Open opens (creating if necessary) a bbolt database at path.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("boltkv: opening %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database file.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get implements platform.KVStore.
func (s *Store) Get(domain platform.Domain, key string) ([]byte, bool, error) {
	var value []byte
	var found bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(domain))
		if b == nil {
			return nil
		}
		v := b.Get([]byte(key))
		if v != nil {
			value = append([]byte(nil), v...)
			found = true
		}
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("boltkv: get %s/%s: %w", domain, key, err)
	}
	return value, found, nil
}

// Set implements platform.KVStore.
func (s *Store) Set(domain platform.Domain, key string, value []byte) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(domain))
		if err != nil {
			return err
		}
		return b.Put([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("boltkv: set %s/%s: %w", domain, key, err)
	}
	return nil
}

// Remove implements platform.KVStore. Removing a missing key, or a key
// in a domain that was never created, is not an error.
func (s *Store) Remove(domain platform.Domain, key string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(domain))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("boltkv: remove %s/%s: %w", domain, key, err)
	}
	return nil
}

// PurgeDomain implements platform.KVStore.
func (s *Store) PurgeDomain(domain platform.Domain) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket([]byte(domain)) == nil {
			return nil
		}
		return tx.DeleteBucket([]byte(domain))
	})
	if err != nil {
		return fmt.Errorf("boltkv: purge %s: %w", domain, err)
	}
	return nil
}

// Enumerate implements platform.KVStore.
func (s *Store) Enumerate(domain platform.Domain, fn func(key string, value []byte) bool) error {
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(domain))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			if !fn(string(k), append([]byte(nil), v...)) {
				return errStopEnumeration
			}
			return nil
		})
	})
	if err != nil && err != errStopEnumeration {
		return fmt.Errorf("boltkv: enumerate %s: %w", domain, err)
	}
	return nil
}

// errStopEnumeration is a sentinel bbolt.Bucket.ForEach's callback
// returns to stop early without Enumerate reporting a real error.
var errStopEnumeration = fmt.Errorf("boltkv: enumeration stopped early")
