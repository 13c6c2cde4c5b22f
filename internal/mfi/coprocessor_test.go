package mfi

import (
	"crypto/sha256"
	"testing"
)

// fakeHardware is a scripted platform.MFiCoprocessor: registers start
// out pre-seeded, and writing the Authentication Control and Status
// register's PROC_CONTROL bit immediately "completes" by setting the
// status register, the way a fast simulated coprocessor would.
type fakeHardware struct {
	poweredOn bool
	powerOnCalls, powerOffCalls int
	registers map[uint8][]byte
}

func newFakeHardware() *fakeHardware {
	return &fakeHardware{registers: make(map[uint8][]byte)}
}

func (f *fakeHardware) PowerOn() error {
	f.poweredOn = true
	f.powerOnCalls++
	return nil
}

func (f *fakeHardware) PowerOff() {
	f.poweredOn = false
	f.powerOffCalls++
}

func (f *fakeHardware) IsPoweredOn() bool { return f.poweredOn }

func (f *fakeHardware) ReadRegister(addr uint8, buf []byte) error {
	stored := f.registers[addr]
	copy(buf, stored)
	return nil
}

func (f *fakeHardware) WriteRegister(bytes []byte) error {
	addr, payload := bytes[0], bytes[1:]
	switch {
	case addr == uint8(regAuthControlAndStatus) && len(payload) == 1 && payload[0] == 1:
		// Triggering authentication completes immediately; the status
		// register reports success rather than echoing the trigger byte.
		f.registers[addr] = []byte{1 << 4}
	case addr == uint8(regSelfTestStatus) && len(payload) == 1 && payload[0] == 1:
		// Triggering the self-test doesn't change what it reports; the
		// certificate/private-key bits reflect whatever was pre-seeded.
	default:
		f.registers[addr] = append([]byte(nil), payload...)
	}
	return nil
}

func newCoprocessor(t *testing.T, hw *fakeHardware, enableV2_0C bool) *Coprocessor {
	t.Helper()
	return New(Config{Platform: hw, Timer: nil, EnableV2_0C: enableV2_0C})
}

func seedV3Identification(hw *fakeHardware) {
	hw.registers[uint8(regDeviceVersion)] = []byte{0x07}
	hw.registers[uint8(regAuthenticationRevision)] = []byte{0x00}
	hw.registers[uint8(regAuthProtocolMajorVersion)] = []byte{3}
	hw.registers[uint8(regAuthProtocolMinorVersion)] = []byte{0}
	hw.registers[uint8(regErrorCode)] = []byte{0}
}

func TestIsAvailableV3Success(t *testing.T) {
	hw := newFakeHardware()
	seedV3Identification(hw)
	c := newCoprocessor(t, hw, false)

	if !c.IsAvailable() {
		t.Fatal("expected IsAvailable to report true for a healthy v3.0 coprocessor")
	}
	if hw.powerOnCalls != 1 {
		t.Errorf("powerOnCalls = %d, want 1", hw.powerOnCalls)
	}
}

func TestIsAvailableReportsFalseOnErrorCode(t *testing.T) {
	hw := newFakeHardware()
	seedV3Identification(hw)
	hw.registers[uint8(regErrorCode)] = []byte{0x02}
	c := newCoprocessor(t, hw, false)

	if c.IsAvailable() {
		t.Fatal("expected IsAvailable to report false when the error register is non-zero")
	}
}

func TestIsAvailableV2_0CChecksSelfTestBits(t *testing.T) {
	hw := newFakeHardware()
	hw.registers[uint8(regDeviceVersion)] = []byte{deviceVersion2_0C}
	hw.registers[uint8(regAuthenticationRevision)] = []byte{1}
	hw.registers[uint8(regAuthProtocolMajorVersion)] = []byte{2}
	hw.registers[uint8(regAuthProtocolMinorVersion)] = []byte{0}
	hw.registers[uint8(regErrorCode)] = []byte{0}
	hw.registers[uint8(regSelfTestStatus)] = []byte{0xC0} // certificate + private key bits set
	c := newCoprocessor(t, hw, true)

	if !c.IsAvailable() {
		t.Fatal("expected IsAvailable to report true when both self-test bits are set")
	}
}

func TestIsAvailableV2_0CRejectsMissingCertificate(t *testing.T) {
	hw := newFakeHardware()
	hw.registers[uint8(regDeviceVersion)] = []byte{deviceVersion2_0C}
	hw.registers[uint8(regAuthenticationRevision)] = []byte{1}
	hw.registers[uint8(regAuthProtocolMajorVersion)] = []byte{2}
	hw.registers[uint8(regAuthProtocolMinorVersion)] = []byte{0}
	hw.registers[uint8(regErrorCode)] = []byte{0}
	hw.registers[uint8(regSelfTestStatus)] = []byte{0x40} // private key only, no certificate
	c := newCoprocessor(t, hw, true)

	if c.IsAvailable() {
		t.Fatal("expected IsAvailable to report false when the certificate bit is unset")
	}
}

func TestIsSafeToReleaseTrueWhenNotPoweredOn(t *testing.T) {
	hw := newFakeHardware()
	c := newCoprocessor(t, hw, false)
	if !c.IsSafeToRelease() {
		t.Fatal("expected IsSafeToRelease to be true when the coprocessor is not powered on")
	}
}

func TestIsSafeToReleaseV2_0CWaitsForEventCounter(t *testing.T) {
	hw := newFakeHardware()
	hw.poweredOn = true
	hw.registers[uint8(regAuthProtocolMajorVersion)] = []byte{2}
	hw.registers[uint8(regSystemEventCounter)] = []byte{5}
	c := newCoprocessor(t, hw, true)

	if c.IsSafeToRelease() {
		t.Fatal("expected IsSafeToRelease to be false while the system event counter is non-zero")
	}

	hw.registers[uint8(regSystemEventCounter)] = []byte{0}
	if !c.IsSafeToRelease() {
		t.Fatal("expected IsSafeToRelease to be true once the system event counter reaches zero")
	}
}

func TestCreateSignatureV3HashesWithSHA256(t *testing.T) {
	hw := newFakeHardware()
	seedV3Identification(hw)
	hw.registers[uint8(regChallengeResponseDataLength)] = []byte{0, 64}
	hw.registers[uint8(regChallengeResponseData)] = make([]byte, 64)
	for i := range hw.registers[uint8(regChallengeResponseData)] {
		hw.registers[uint8(regChallengeResponseData)][i] = byte(i)
	}
	c := newCoprocessor(t, hw, false)

	challenge := []byte("pair-setup M4 challenge")
	sig, err := c.CreateSignature(challenge)
	if err != nil {
		t.Fatalf("CreateSignature: %v", err)
	}
	if len(sig) != 64 {
		t.Fatalf("len(sig) = %d, want 64", len(sig))
	}

	wantDigest := sha256.Sum256(challenge)
	gotDigest := hw.registers[uint8(regChallengeData)]
	if string(gotDigest) != string(wantDigest[:]) {
		t.Error("expected the coprocessor to receive a SHA-256 digest of the challenge")
	}
}

func TestCreateSignatureV2_0CRejectedWhenDisabled(t *testing.T) {
	hw := newFakeHardware()
	hw.registers[uint8(regAuthProtocolMajorVersion)] = []byte{2}
	hw.registers[uint8(regErrorCode)] = []byte{0}
	c := newCoprocessor(t, hw, false)

	if _, err := c.CreateSignature([]byte("x")); err == nil {
		t.Fatal("expected CreateSignature to reject a v2.0C coprocessor when EnableV2_0C is false")
	}
}

func TestCopyCertificateV3ConcatenatesParts(t *testing.T) {
	hw := newFakeHardware()
	seedV3Identification(hw)

	const certLen = 609
	hw.registers[uint8(regAccessoryCertificateDataLength)] = []byte{byte(certLen >> 8), byte(certLen & 0xFF)}

	full := make([]byte, certLen)
	for i := range full {
		full[i] = byte(i % 251)
	}
	for i, part := 0, uint8(regAccessoryCertificateDataPart1); i < certLen; i, part = i+certificatePartSize, part+1 {
		end := i + certificatePartSize
		if end > certLen {
			end = certLen
		}
		hw.registers[part] = full[i:end]
	}

	c := newCoprocessor(t, hw, false)
	cert, err := c.CopyCertificate()
	if err != nil {
		t.Fatalf("CopyCertificate: %v", err)
	}
	if len(cert) != certLen {
		t.Fatalf("len(cert) = %d, want %d", len(cert), certLen)
	}
	if string(cert) != string(full) {
		t.Error("reassembled certificate does not match the source bytes")
	}
}

func TestCopyCertificateRejectsOutOfRangeLength(t *testing.T) {
	hw := newFakeHardware()
	seedV3Identification(hw)
	hw.registers[uint8(regAccessoryCertificateDataLength)] = []byte{0x03, 0x00} // 768, out of the 607-609 v3.0 range
	c := newCoprocessor(t, hw, false)

	if _, err := c.CopyCertificate(); err == nil {
		t.Fatal("expected CopyCertificate to reject a certificate length outside the v3.0 valid range")
	}
}

func TestReleaseWarnsButDoesNotBlockWhenUnsafe(t *testing.T) {
	hw := newFakeHardware()
	hw.poweredOn = true
	hw.registers[uint8(regAuthProtocolMajorVersion)] = []byte{2}
	hw.registers[uint8(regSystemEventCounter)] = []byte{3}
	c := newCoprocessor(t, hw, true)

	c.Release() // must not panic even though IsSafeToRelease is false
}
