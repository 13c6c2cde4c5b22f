package cryptoprim

import (
	"crypto/rand"
	"testing"
)

func TestSRPFullExchange(t *testing.T) {
	salt := make([]byte, SRPSaltSize)
	if _, err := rand.Read(salt); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}
	password := []byte("111-22-333")

	verifier := SRPGenerateVerifier(salt, password)

	b, B, err := SRPServerKeyPair(verifier)
	if err != nil {
		t.Fatalf("SRPServerKeyPair: %v", err)
	}
	a, A, err := SRPClientKeyPair()
	if err != nil {
		t.Fatalf("SRPClientKeyPair: %v", err)
	}

	u := SRPScramblingParameter(A, B)
	if u.Sign() == 0 {
		t.Fatal("scrambling parameter u is zero")
	}

	x := srpComputeX(salt, password)

	serverPremaster, err := SRPServerPremasterSecret(A, verifier, b, u)
	if err != nil {
		t.Fatalf("SRPServerPremasterSecret: %v", err)
	}
	clientPremaster, err := SRPClientPremasterSecret(B, x, a, u)
	if err != nil {
		t.Fatalf("SRPClientPremasterSecret: %v", err)
	}
	if serverPremaster != clientPremaster {
		t.Fatalf("premaster secrets differ:\n server=%x\n client=%x", serverPremaster, clientPremaster)
	}

	serverK := SRPSessionKey(serverPremaster)
	clientK := SRPSessionKey(clientPremaster)
	if serverK != clientK {
		t.Fatalf("session keys differ")
	}

	clientM1 := SRPClientProof(A, B, salt, clientK)
	serverM1 := SRPClientProof(A, B, salt, serverK)
	if clientM1 != serverM1 {
		t.Fatal("client and server computed different M1")
	}

	serverM2 := SRPServerProof(A, serverM1, serverK)
	clientM2 := SRPServerProof(A, clientM1, clientK)
	if serverM2 != clientM2 {
		t.Fatal("client and server computed different M2")
	}
}

func TestSRPWrongPasswordProducesDifferentSessionKey(t *testing.T) {
	salt := make([]byte, SRPSaltSize)
	if _, err := rand.Read(salt); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}
	verifier := SRPGenerateVerifier(salt, []byte("correct-horse"))

	b, B, err := SRPServerKeyPair(verifier)
	if err != nil {
		t.Fatalf("SRPServerKeyPair: %v", err)
	}
	a, A, err := SRPClientKeyPair()
	if err != nil {
		t.Fatalf("SRPClientKeyPair: %v", err)
	}
	u := SRPScramblingParameter(A, B)

	wrongX := srpComputeX(salt, []byte("wrong-password"))
	clientPremaster, err := SRPClientPremasterSecret(B, wrongX, a, u)
	if err != nil {
		t.Fatalf("SRPClientPremasterSecret: %v", err)
	}
	serverPremaster, err := SRPServerPremasterSecret(A, verifier, b, u)
	if err != nil {
		t.Fatalf("SRPServerPremasterSecret: %v", err)
	}

	if serverPremaster == clientPremaster {
		t.Fatal("wrong password produced a matching premaster secret")
	}

	clientM1 := SRPClientProof(A, B, salt, SRPSessionKey(clientPremaster))
	serverM1 := SRPClientProof(A, B, salt, SRPSessionKey(serverPremaster))
	if clientM1 == serverM1 {
		t.Fatal("wrong password produced a matching client proof")
	}
}

func TestSRPServerPremasterRejectsDegenerateA(t *testing.T) {
	salt := make([]byte, SRPSaltSize)
	verifier := SRPGenerateVerifier(salt, []byte("password"))
	b, _, err := SRPServerKeyPair(verifier)
	if err != nil {
		t.Fatalf("SRPServerKeyPair: %v", err)
	}

	var zeroA [SRPVerifierSize]byte // A == N (reduces to 0 mod N) would also be rejected; 0 is the simplest case
	u := SRPScramblingParameter(zeroA, zeroA)
	if _, err := SRPServerPremasterSecret(zeroA, verifier, b, u); err == nil {
		t.Error("expected an error for a degenerate (zero) client public key")
	}
}

func TestSRPVerifierDeterministic(t *testing.T) {
	salt := []byte("0123456789abcdef")
	v1 := SRPGenerateVerifier(salt, []byte("password"))
	v2 := SRPGenerateVerifier(salt, []byte("password"))
	if v1 != v2 {
		t.Error("SRPGenerateVerifier not deterministic for identical inputs")
	}
	v3 := SRPGenerateVerifier(salt, []byte("different"))
	if v1 == v3 {
		t.Error("different passwords produced the same verifier")
	}
}
