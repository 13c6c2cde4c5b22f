// Package pairing implements the persistent pairing store: the set of
// controllers (identifier + long-term public key + permission bits)
// an accessory has paired with, and the admin-cleanup invariant that
// purges the whole set the moment it holds no admin (spec.md §3/§4.4).
//
// Grounded on original_source/HAP/HAPPairingPairings.c, which encodes
// each pairing as a 70-byte record (36 identifier bytes + 1 length
// byte + 32 public-key bytes + 1 permissions byte) in a KV domain
// indexed 0..max_pairings-1, and on HAPAccessoryServerCleanupPairings
// for the admin-cleanup rule.
package pairing

import (
	"fmt"
	"strconv"

	"github.com/hapcore/hap/internal/platform"
)

const (
	identifierMaxLen = 36
	publicKeyLen     = 32
	recordLen        = identifierMaxLen + 1 + publicKeyLen + 1

	// PermissionAdmin is bit 0 of the permissions byte.
	PermissionAdmin uint8 = 1 << 0
)

// Pairing is one paired controller's record.
type Pairing struct {
	Identifier  []byte // 1..36 bytes
	PublicKey   [32]byte
	Permissions uint8
}

// IsAdmin reports whether this pairing has administrator permission.
func (p Pairing) IsAdmin() bool { return p.Permissions&PermissionAdmin != 0 }

// Store is the persistent set of pairings for one accessory server,
// backed by a platform.KVStore and bounded by MaxPairings.
type Store struct {
	kv          platform.KVStore
	maxPairings int
}

// NewStore wraps kv as a pairing store holding at most maxPairings
// entries.
func NewStore(kv platform.KVStore, maxPairings int) *Store {
	return &Store{kv: kv, maxPairings: maxPairings}
}

// KV returns the key-value store this pairing store is backed by, for
// callers that need to touch adjacent Configuration-domain keys (the
// admin-cleanup invariant's BLE broadcast parameter reset) alongside
// the pairing domain.
func (s *Store) KV() platform.KVStore { return s.kv }

func recordKey(key int) string { return strconv.Itoa(key) }

func encodeRecord(p Pairing) ([]byte, error) {
	if len(p.Identifier) == 0 || len(p.Identifier) > identifierMaxLen {
		return nil, fmt.Errorf("pairing: identifier length %d out of range [1,%d]", len(p.Identifier), identifierMaxLen)
	}
	buf := make([]byte, recordLen)
	copy(buf[0:identifierMaxLen], p.Identifier)
	buf[identifierMaxLen] = byte(len(p.Identifier))
	copy(buf[identifierMaxLen+1:identifierMaxLen+1+publicKeyLen], p.PublicKey[:])
	buf[recordLen-1] = p.Permissions
	return buf, nil
}

func decodeRecord(buf []byte) (Pairing, error) {
	if len(buf) != recordLen {
		return Pairing{}, fmt.Errorf("pairing: invalid record size %d, want %d", len(buf), recordLen)
	}
	idLen := int(buf[identifierMaxLen])
	if idLen == 0 || idLen > identifierMaxLen {
		return Pairing{}, fmt.Errorf("pairing: invalid stored identifier length %d", idLen)
	}
	var p Pairing
	p.Identifier = append([]byte(nil), buf[0:idLen]...)
	copy(p.PublicKey[:], buf[identifierMaxLen+1:identifierMaxLen+1+publicKeyLen])
	p.Permissions = buf[recordLen-1]
	return p, nil
}

func identifierEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Find looks up a pairing by controller identifier.
func (s *Store) Find(identifier []byte) (p Pairing, key int, found bool, err error) {
	err = s.kv.Enumerate(platform.DomainPairings, func(k string, value []byte) bool {
		n, convErr := strconv.Atoi(k)
		if convErr != nil {
			return true
		}
		rec, decErr := decodeRecord(value)
		if decErr != nil {
			err = platform.NewError("pairing.Find", platform.ErrUnknown, decErr)
			return false
		}
		if identifierEqual(rec.Identifier, identifier) {
			p, key, found = rec, n, true
			return false
		}
		return true
	})
	if err != nil {
		return Pairing{}, 0, false, err
	}
	return p, key, found, nil
}

// Get looks up a pairing by its store key.
func (s *Store) Get(key int) (Pairing, bool, error) {
	value, found, err := s.kv.Get(platform.DomainPairings, recordKey(key))
	if err != nil {
		return Pairing{}, false, platform.NewError("pairing.Get", platform.ErrUnknown, err)
	}
	if !found {
		return Pairing{}, false, nil
	}
	rec, decErr := decodeRecord(value)
	if decErr != nil {
		return Pairing{}, false, platform.NewError("pairing.Get", platform.ErrUnknown, decErr)
	}
	return rec, true, nil
}

// Insert adds a new pairing, returning the store key it was assigned:
// the lowest free index below MaxPairings. Returns ErrOutOfResources
// (MaxPeers) if none is free.
func (s *Store) Insert(p Pairing) (key int, err error) {
	buf, encErr := encodeRecord(p)
	if encErr != nil {
		return 0, platform.NewError("pairing.Insert", platform.ErrInvalidData, encErr)
	}
	for k := 0; k < s.maxPairings; k++ {
		_, found, getErr := s.kv.Get(platform.DomainPairings, recordKey(k))
		if getErr != nil {
			return 0, platform.NewError("pairing.Insert", platform.ErrUnknown, getErr)
		}
		if !found {
			if setErr := s.kv.Set(platform.DomainPairings, recordKey(k), buf); setErr != nil {
				return 0, platform.NewError("pairing.Insert", platform.ErrUnknown, setErr)
			}
			return k, nil
		}
	}
	return 0, platform.NewError("pairing.Insert", platform.ErrOutOfResources, nil)
}

// Update overwrites the permission bits of the pairing at key,
// preserving its identifier and public key.
func (s *Store) Update(key int, permissions uint8) error {
	p, found, err := s.Get(key)
	if err != nil {
		return err
	}
	if !found {
		return platform.NewError("pairing.Update", platform.ErrUnknown, nil)
	}
	p.Permissions = permissions
	buf, encErr := encodeRecord(p)
	if encErr != nil {
		return platform.NewError("pairing.Update", platform.ErrInvalidData, encErr)
	}
	if setErr := s.kv.Set(platform.DomainPairings, recordKey(key), buf); setErr != nil {
		return platform.NewError("pairing.Update", platform.ErrUnknown, setErr)
	}
	return nil
}

// Remove deletes the pairing at key. Removing a key with no pairing is
// not an error (spec.md §4.7: "Remove on a non-existent identifier is
// success").
func (s *Store) Remove(key int) error {
	if err := s.kv.Remove(platform.DomainPairings, recordKey(key)); err != nil {
		return platform.NewError("pairing.Remove", platform.ErrUnknown, err)
	}
	return nil
}

// Enumerate calls fn once per stored pairing, in unspecified order. fn
// returning false stops enumeration early.
func (s *Store) Enumerate(fn func(key int, p Pairing) bool) error {
	var outerErr error
	err := s.kv.Enumerate(platform.DomainPairings, func(k string, value []byte) bool {
		n, convErr := strconv.Atoi(k)
		if convErr != nil {
			return true
		}
		rec, decErr := decodeRecord(value)
		if decErr != nil {
			outerErr = platform.NewError("pairing.Enumerate", platform.ErrUnknown, decErr)
			return false
		}
		return fn(n, rec)
	})
	if err != nil {
		return platform.NewError("pairing.Enumerate", platform.ErrUnknown, err)
	}
	return outerErr
}

// Count returns the number of stored pairings.
func (s *Store) Count() (int, error) {
	n := 0
	err := s.Enumerate(func(int, Pairing) bool { n++; return true })
	return n, err
}

// HasAdmin reports whether at least one stored pairing has admin
// permission.
func (s *Store) HasAdmin() (bool, error) {
	found := false
	err := s.Enumerate(func(_ int, p Pairing) bool {
		if p.IsAdmin() {
			found = true
			return false
		}
		return true
	})
	return found, err
}

// PurgeAll removes every stored pairing.
func (s *Store) PurgeAll() error {
	if err := s.kv.PurgeDomain(platform.DomainPairings); err != nil {
		return platform.NewError("pairing.PurgeAll", platform.ErrUnknown, err)
	}
	return nil
}

// CleanupInvariant enforces spec.md §3's admin-cleanup invariant: if
// the pairing set is non-empty but holds no admin, the entire set
// (plus whatever BLE broadcast parameters and Pair Resume cache the
// caller is responsible for) must be purged. It reports whether a
// purge happened so the caller can invalidate those related caches.
func (s *Store) CleanupInvariant() (purged bool, err error) {
	n, err := s.Count()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	hasAdmin, err := s.HasAdmin()
	if err != nil {
		return false, err
	}
	if hasAdmin {
		return false, nil
	}
	if err := s.PurgeAll(); err != nil {
		return false, err
	}
	return true, nil
}
