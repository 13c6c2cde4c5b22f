package boltkv

import (
	"path/filepath"
	"testing"

	"github.com/hapcore/hap/internal/platform"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return s
}

func TestGetMissingKeyNotFound(t *testing.T) {
	s := openTestStore(t)
	_, found, err := s.Get(platform.DomainConfiguration, "nope")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if found {
		t.Fatal("expected found=false for a missing key")
	}
}

func TestSetThenGetRoundTrips(t *testing.T) {
	s := openTestStore(t)
	if err := s.Set(platform.DomainConfiguration, "k", []byte("v1")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	value, found, err := s.Get(platform.DomainConfiguration, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !found {
		t.Fatal("expected found=true after Set")
	}
	if string(value) != "v1" {
		t.Errorf("value = %q, want %q", value, "v1")
	}
}

func TestSetOverwritesExistingValue(t *testing.T) {
	s := openTestStore(t)
	_ = s.Set(platform.DomainConfiguration, "k", []byte("v1"))
	_ = s.Set(platform.DomainConfiguration, "k", []byte("v2"))
	value, _, _ := s.Get(platform.DomainConfiguration, "k")
	if string(value) != "v2" {
		t.Errorf("value = %q, want %q", value, "v2")
	}
}

func TestRemoveMissingKeyIsNotAnError(t *testing.T) {
	s := openTestStore(t)
	if err := s.Remove(platform.DomainConfiguration, "nope"); err != nil {
		t.Fatalf("Remove on a missing key should not error, got: %v", err)
	}
}

func TestRemoveDeletesKey(t *testing.T) {
	s := openTestStore(t)
	_ = s.Set(platform.DomainConfiguration, "k", []byte("v"))
	if err := s.Remove(platform.DomainConfiguration, "k"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	_, found, _ := s.Get(platform.DomainConfiguration, "k")
	if found {
		t.Fatal("expected key to be gone after Remove")
	}
}

func TestPurgeDomainClearsOnlyThatDomain(t *testing.T) {
	s := openTestStore(t)
	_ = s.Set(platform.DomainConfiguration, "k", []byte("v"))
	_ = s.Set(platform.DomainPairings, "0", []byte("p"))

	if err := s.PurgeDomain(platform.DomainConfiguration); err != nil {
		t.Fatalf("PurgeDomain: %v", err)
	}

	if _, found, _ := s.Get(platform.DomainConfiguration, "k"); found {
		t.Error("expected DomainConfiguration to be empty after purge")
	}
	if _, found, _ := s.Get(platform.DomainPairings, "0"); !found {
		t.Error("expected DomainPairings to be untouched by purging DomainConfiguration")
	}
}

func TestPurgeDomainNeverCreatedIsNotAnError(t *testing.T) {
	s := openTestStore(t)
	if err := s.PurgeDomain(platform.DomainPairings); err != nil {
		t.Fatalf("PurgeDomain on an empty domain should not error, got: %v", err)
	}
}

func TestEnumerateVisitsEveryKey(t *testing.T) {
	s := openTestStore(t)
	want := map[string]string{"0": "a", "1": "b", "2": "c"}
	for k, v := range want {
		_ = s.Set(platform.DomainPairings, k, []byte(v))
	}

	got := make(map[string]string)
	err := s.Enumerate(platform.DomainPairings, func(key string, value []byte) bool {
		got[key] = string(value)
		return true
	})
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("Enumerate visited %d keys, want %d", len(got), len(want))
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("key %s = %q, want %q", k, got[k], v)
		}
	}
}

func TestEnumerateStopsEarly(t *testing.T) {
	s := openTestStore(t)
	for _, k := range []string{"0", "1", "2"} {
		_ = s.Set(platform.DomainPairings, k, []byte("v"))
	}

	count := 0
	err := s.Enumerate(platform.DomainPairings, func(key string, value []byte) bool {
		count++
		return false
	})
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}
	if count != 1 {
		t.Errorf("Enumerate visited %d keys before stopping, want 1", count)
	}
}

func TestValuesSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s1, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s1.Set(platform.DomainConfiguration, "k", []byte("v")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	value, found, err := s2.Get(platform.DomainConfiguration, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !found || string(value) != "v" {
		t.Errorf("value = %q, found = %v, want %q, true", value, found, "v")
	}
}
