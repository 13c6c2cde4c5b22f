package session

import (
	"testing"

	"github.com/hapcore/hap/internal/pairing"
	"github.com/hapcore/hap/internal/tlv"
)

func addPairingRequest(t *testing.T, identifier string, publicKey [32]byte, permissions uint8) []byte {
	t.Helper()
	w := tlv.NewWriter()
	_ = tlv.EncodeUint8(w, TLVState, 1)
	_ = tlv.EncodeUint8(w, TLVMethod, uint8(MethodAddPairing))
	_ = tlv.EncodeString(w, TLVIdentifier, identifier)
	_ = tlv.EncodeData(w, TLVPublicKey, publicKey[:])
	_ = tlv.EncodeUint8(w, TLVPermissions, permissions)
	return w.Bytes()
}

func removePairingRequest(t *testing.T, identifier string) []byte {
	t.Helper()
	w := tlv.NewWriter()
	_ = tlv.EncodeUint8(w, TLVState, 1)
	_ = tlv.EncodeUint8(w, TLVMethod, uint8(MethodRemovePairing))
	_ = tlv.EncodeString(w, TLVIdentifier, identifier)
	return w.Bytes()
}

func listPairingsRequest(t *testing.T) []byte {
	t.Helper()
	w := tlv.NewWriter()
	_ = tlv.EncodeUint8(w, TLVState, 1)
	_ = tlv.EncodeUint8(w, TLVMethod, uint8(MethodListPairings))
	return w.Bytes()
}

func TestPairingsManagerRejectsNonAdmin(t *testing.T) {
	store := pairing.NewStore(newMemKV(), 4)
	mgr := NewPairingsManager(store, nil)

	var pk [32]byte
	resp, err := mgr.Handle(false, addPairingRequest(t, "id-1", pk, pairing.PermissionAdmin))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	idx, err := tlv.NewIndexedReader(resp)
	if err != nil {
		t.Fatalf("NewIndexedReader: %v", err)
	}
	errItem, ok := idx.Find(TLVError)
	if !ok {
		t.Fatal("expected an authentication error for a non-admin request")
	}
	code, err := tlv.DecodeUint8(errItem, 0, 255)
	if err != nil || ErrorCode(code) != ErrorAuthentication {
		t.Errorf("error code = %v, %v, want ErrorAuthentication", code, err)
	}
}

func TestPairingsManagerAddFindListRemove(t *testing.T) {
	store := pairing.NewStore(newMemKV(), 4)
	resume := NewPairResumeCache()
	mgr := NewPairingsManager(store, resume)

	var pk [32]byte
	pk[0] = 1
	// Seed an existing admin so the invariant never purges the store
	// out from under this test.
	if _, err := store.Insert(pairing.Pairing{Identifier: []byte("admin"), PublicKey: pk, Permissions: pairing.PermissionAdmin}); err != nil {
		t.Fatalf("seed Insert: %v", err)
	}

	var pk2 [32]byte
	pk2[0] = 2
	resp, err := mgr.Handle(true, addPairingRequest(t, "guest", pk2, 0))
	if err != nil {
		t.Fatalf("Handle(Add): %v", err)
	}
	idx, err := tlv.NewIndexedReader(resp)
	if err != nil {
		t.Fatalf("NewIndexedReader: %v", err)
	}
	if _, ok := idx.Find(TLVError); ok {
		t.Fatal("unexpected error adding a new pairing")
	}

	_, _, found, err := store.Find([]byte("guest"))
	if err != nil || !found {
		t.Fatalf("Find(guest) = _, _, %v, %v, want found", found, err)
	}

	listResp, err := mgr.Handle(true, listPairingsRequest(t))
	if err != nil {
		t.Fatalf("Handle(List): %v", err)
	}
	var identifiers []string
	err = tlv.DecodeSequence(listResp, TLVIdentifier, func(item tlv.Item) error {
		identifiers = append(identifiers, string(item.Value))
		return nil
	})
	if err != nil {
		t.Fatalf("DecodeSequence: %v", err)
	}
	if len(identifiers) != 2 {
		t.Fatalf("listed %d identifiers, want 2: %v", len(identifiers), identifiers)
	}

	removeResp, err := mgr.Handle(true, removePairingRequest(t, "guest"))
	if err != nil {
		t.Fatalf("Handle(Remove): %v", err)
	}
	if idx, err := tlv.NewIndexedReader(removeResp); err != nil {
		t.Fatalf("NewIndexedReader: %v", err)
	} else if _, ok := idx.Find(TLVError); ok {
		t.Fatal("unexpected error removing an existing pairing")
	}
	if _, _, found, err := store.Find([]byte("guest")); err != nil || found {
		t.Fatalf("expected guest pairing to be gone, found=%v err=%v", found, err)
	}
}

func TestPairingsManagerRemoveLastAdminPurgesStoreAndResumeCache(t *testing.T) {
	store := pairing.NewStore(newMemKV(), 4)
	resume := NewPairResumeCache()
	mgr := NewPairingsManager(store, resume)

	var pk [32]byte
	key, err := store.Insert(pairing.Pairing{Identifier: []byte("only-admin"), PublicKey: pk, Permissions: pairing.PermissionAdmin})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	resume.Store("sess", pk, key, []byte("only-admin"))

	if _, err := mgr.Handle(true, removePairingRequest(t, "only-admin")); err != nil {
		t.Fatalf("Handle(Remove): %v", err)
	}

	count, err := store.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 0 {
		t.Errorf("Count after removing the last admin = %d, want 0 (full purge)", count)
	}
	if _, _, _, found := resume.Fetch("sess"); found {
		t.Error("expected the Pair Resume cache to be invalidated when the store is purged")
	}
}

func TestPairingsManagerAddExistingIdentifierMismatchedKeyIsUnknown(t *testing.T) {
	store := pairing.NewStore(newMemKV(), 4)
	mgr := NewPairingsManager(store, nil)

	var pk [32]byte
	pk[0] = 1
	if _, err := store.Insert(pairing.Pairing{Identifier: []byte("ctrl"), PublicKey: pk, Permissions: pairing.PermissionAdmin}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	var otherKey [32]byte
	otherKey[0] = 9
	resp, err := mgr.Handle(true, addPairingRequest(t, "ctrl", otherKey, pairing.PermissionAdmin))
	if err != nil {
		t.Fatalf("Handle(Add): %v", err)
	}
	idx, err := tlv.NewIndexedReader(resp)
	if err != nil {
		t.Fatalf("NewIndexedReader: %v", err)
	}
	errItem, ok := idx.Find(TLVError)
	if !ok {
		t.Fatal("expected an Unknown error for a mismatched LTPK on an existing identifier")
	}
	code, err := tlv.DecodeUint8(errItem, 0, 255)
	if err != nil || ErrorCode(code) != ErrorUnknown {
		t.Errorf("error code = %v, %v, want ErrorUnknown", code, err)
	}
}

func TestPairingsManagerRemoveMissingIdentifierIsSuccess(t *testing.T) {
	store := pairing.NewStore(newMemKV(), 4)
	mgr := NewPairingsManager(store, nil)
	var pk [32]byte
	if _, err := store.Insert(pairing.Pairing{Identifier: []byte("admin"), PublicKey: pk, Permissions: pairing.PermissionAdmin}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	resp, err := mgr.Handle(true, removePairingRequest(t, "nonexistent"))
	if err != nil {
		t.Fatalf("Handle(Remove): %v", err)
	}
	idx, err := tlv.NewIndexedReader(resp)
	if err != nil {
		t.Fatalf("NewIndexedReader: %v", err)
	}
	if _, ok := idx.Find(TLVError); ok {
		t.Error("removing a nonexistent identifier should not be an error")
	}
}
