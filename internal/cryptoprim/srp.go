package cryptoprim

import (
	"crypto/rand"
	"errors"
	"math/big"
)

// SRPIdentity is the fixed SRP username HAP uses for every accessory;
// Pair Setup never transmits or negotiates a real username (spec.md
// §4.5 EXPANSION note), so the identity folded into x is this constant.
// Grounded on original_source/HAP/HAPPairingPairSetup.c's fixed "Pair-Setup"
// SRP username.
const SRPIdentity = "Pair-Setup"

// SRPSaltSize is the size of the per-accessory salt spec.md §4.1 names.
const SRPSaltSize = 16

// SRPVerifierSize is the fixed byte width of every N-sized SRP value:
// the verifier, both public keys, and the padded premaster secret.
const SRPVerifierSize = srpByteLen

var errSRPDegenerateKey = errors.New("cryptoprim: degenerate SRP public key (A or B mod N == 0)")

// srpComputeX derives the private SRP exponent x from a salt and
// password, following RFC 5054's x = H(s, H(I ":" P)) with I fixed to
// SRPIdentity.
func srpComputeX(salt, password []byte) *big.Int {
	inner := SHA512(append([]byte(SRPIdentity+":"), password...))
	outer := SHA512(append(append([]byte{}, salt...), inner[:]...))
	return new(big.Int).SetBytes(outer[:])
}

// SRPGenerateVerifier computes the verifier v = g^x mod N stored in the
// pairing's setup-code record, from the setup code's salt and password
// bytes (the setup code's ASCII digits, per internal/setupinfo).
func SRPGenerateVerifier(salt, password []byte) [SRPVerifierSize]byte {
	x := srpComputeX(salt, password)
	v := new(big.Int).Exp(srpG, x, srpN)
	var out [SRPVerifierSize]byte
	copy(out[:], padSRP(v.Bytes()))
	return out
}

// srpRandomExponent returns a cryptographically random value in [1, N).
func srpRandomExponent() (*big.Int, error) {
	max := new(big.Int).Sub(srpN, big.NewInt(1))
	v, err := rand.Int(rand.Reader, max)
	if err != nil {
		return nil, err
	}
	return v.Add(v, big.NewInt(1)), nil
}

// SRPServerKeyPair generates the server's ephemeral private exponent b
// and public key B = (k*v + g^b) mod N from the stored verifier.
func SRPServerKeyPair(verifier [SRPVerifierSize]byte) (b *big.Int, B [SRPVerifierSize]byte, err error) {
	b, err = srpRandomExponent()
	if err != nil {
		return nil, B, err
	}
	v := new(big.Int).SetBytes(verifier[:])

	term1 := new(big.Int).Mul(srpK, v)
	term2 := new(big.Int).Exp(srpG, b, srpN)
	sum := new(big.Int).Add(term1, term2)
	sum.Mod(sum, srpN)

	copy(B[:], padSRP(sum.Bytes()))
	return b, B, nil
}

// SRPClientKeyPair generates the client's ephemeral private exponent a
// and public key A = g^a mod N. Exposed for round-trip testing of the
// server-side primitives above; the accessory itself only ever plays
// the server role.
func SRPClientKeyPair() (a *big.Int, A [SRPVerifierSize]byte, err error) {
	a, err = srpRandomExponent()
	if err != nil {
		return nil, A, err
	}
	pub := new(big.Int).Exp(srpG, a, srpN)
	copy(A[:], padSRP(pub.Bytes()))
	return a, A, nil
}

// SRPScramblingParameter computes u = H(PAD(A) || PAD(B)), the value
// binding the two ephemeral public keys together in the premaster
// derivation.
func SRPScramblingParameter(A, B [SRPVerifierSize]byte) *big.Int {
	h := SHA512(append(append([]byte{}, A[:]...), B[:]...))
	return new(big.Int).SetBytes(h[:])
}

// SRPServerPremasterSecret computes the server's view of the shared
// secret S = (A * v^u)^b mod N. It rejects a client public key that
// reduces to zero mod N, the standard SRP defense against a client
// forcing a known premaster secret.
func SRPServerPremasterSecret(A [SRPVerifierSize]byte, verifier [SRPVerifierSize]byte, b, u *big.Int) ([SRPVerifierSize]byte, error) {
	var out [SRPVerifierSize]byte
	Aint := new(big.Int).SetBytes(A[:])
	if new(big.Int).Mod(Aint, srpN).Sign() == 0 {
		return out, errSRPDegenerateKey
	}
	v := new(big.Int).SetBytes(verifier[:])

	vu := new(big.Int).Exp(v, u, srpN)
	base := new(big.Int).Mul(Aint, vu)
	base.Mod(base, srpN)
	s := new(big.Int).Exp(base, b, srpN)

	copy(out[:], padSRP(s.Bytes()))
	return out, nil
}

// SRPClientPremasterSecret computes the client's view of the shared
// secret S = (B - k*g^x)^(a+u*x) mod N, for round-trip testing against
// SRPServerPremasterSecret.
func SRPClientPremasterSecret(B [SRPVerifierSize]byte, x, a, u *big.Int) ([SRPVerifierSize]byte, error) {
	var out [SRPVerifierSize]byte
	Bint := new(big.Int).SetBytes(B[:])
	if new(big.Int).Mod(Bint, srpN).Sign() == 0 {
		return out, errSRPDegenerateKey
	}

	gx := new(big.Int).Exp(srpG, x, srpN)
	kgx := new(big.Int).Mul(srpK, gx)
	base := new(big.Int).Sub(Bint, kgx)
	base.Mod(base, srpN)

	exp := new(big.Int).Mul(u, x)
	exp.Add(exp, a)

	s := new(big.Int).Exp(base, exp, srpN)
	copy(out[:], padSRP(s.Bytes()))
	return out, nil
}

// SRPSessionKey derives the 64-byte session key K = H(S) from the
// padded premaster secret, stripping its leading zero bytes before
// hashing as RFC 5054 and HAP both require.
func SRPSessionKey(premaster [SRPVerifierSize]byte) [64]byte {
	i := 0
	for i < len(premaster) && premaster[i] == 0 {
		i++
	}
	return SHA512(premaster[i:])
}

// srpTrimLeadingZeroes drops b's leading zero bytes, the PAD_trim
// operation HAP_srp_proof_m1 applies to A and B before hashing them.
func srpTrimLeadingZeroes(b []byte) []byte {
	i := 0
	for i < len(b) && b[i] == 0 {
		i++
	}
	return b[i:]
}

// SRPClientProof computes HAP's M1, which departs from the textbook
// M1 = H(PAD(A) || PAD(B) || K): it folds in H(N) XOR H(g) and H(I) and
// the salt, and hashes A and B with their leading zero bytes trimmed.
// Grounded on original_source/PAL/Crypto/MbedTLS/HAPMbedTLS.c's
// HAP_srp_proof_m1: M1 = H( (H(N) XOR H(g)) || H(I) || s || A' || B' || K ).
func SRPClientProof(A, B [SRPVerifierSize]byte, salt []byte, K [64]byte) [64]byte {
	hN := SHA512(srpN.Bytes())
	hG := SHA512([]byte{byte(srpGeneratorG)})
	var hNg [64]byte
	for i := range hNg {
		hNg[i] = hN[i] ^ hG[i]
	}
	hU := SHA512([]byte(SRPIdentity))

	buf := make([]byte, 0, 64+64+len(salt)+2*SRPVerifierSize+64)
	buf = append(buf, hNg[:]...)
	buf = append(buf, hU[:]...)
	buf = append(buf, salt...)
	buf = append(buf, srpTrimLeadingZeroes(A[:])...)
	buf = append(buf, srpTrimLeadingZeroes(B[:])...)
	buf = append(buf, K[:]...)
	return SHA512(buf)
}

// SRPServerProof computes M2 = H(PAD(A) || M1 || K), the evidence
// message the accessory returns proving it derived the same session key.
func SRPServerProof(A [SRPVerifierSize]byte, M1, K [64]byte) [64]byte {
	buf := make([]byte, 0, SRPVerifierSize+64+64)
	buf = append(buf, A[:]...)
	buf = append(buf, M1[:]...)
	buf = append(buf, K[:]...)
	return SHA512(buf)
}
