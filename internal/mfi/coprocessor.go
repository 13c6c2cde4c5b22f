package mfi

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"log/slog"
	"time"

	"github.com/hapcore/hap/internal/platform"
)

func secondsToDuration(seconds int) time.Duration {
	return time.Duration(seconds) * time.Second
}

// powerOffDelaySeconds is the coprocessor's auto-power-off grace
// period after last use (spec.md §5: "auto-power-off 3 s after last
// use, extended by 1 s when the SEC register is non-zero on v2.0C
// devices").
const powerOffDelaySeconds = 3

// powerOffExtensionSeconds is the re-check interval applied while the
// coprocessor reports it is not yet safe to power off.
const powerOffExtensionSeconds = 1

// certificatePartSize is the chunk size the coprocessor's certificate
// registers are read in.
const certificatePartSize = 128

// Config wires a Coprocessor to its platform collaborator and timer.
type Config struct {
	Platform platform.MFiCoprocessor
	Timer    platform.Timer
	Logger   *slog.Logger

	// EnableV2_0C retains the obsolete 2.0C register set (System Event
	// Counter, write-capable self-test control, larger certificate
	// parts) alongside the 3.0 protocol. A policy decision, not a
	// protocol one: left false by default since 2.0C coprocessors have
	// been out of production for years.
	EnableV2_0C bool
}

// Coprocessor manages one Apple Authentication Coprocessor's power
// state and drives its certificate/challenge-response registers.
type Coprocessor struct {
	cfg       Config
	powerOff  platform.TimerID
	available bool
}

// New returns a Coprocessor that has not yet powered anything on.
func New(cfg Config) *Coprocessor {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Coprocessor{cfg: cfg}
}

// Release deregisters any pending power-off timer and, if the
// coprocessor does not report itself safe to power down, logs a
// warning rather than blocking shutdown on it.
func (c *Coprocessor) Release() {
	if !c.IsSafeToRelease() {
		c.cfg.Logger.Warn("mfi: releasing coprocessor that does not report ready for power off")
	}
	if c.powerOff != 0 {
		c.cfg.Timer.Deregister(c.powerOff)
		c.powerOff = 0
	}
}

// IsSafeToRelease reports whether the coprocessor can be powered off
// without interrupting in-progress hardware work. A v2.0C coprocessor
// with the legacy System Event Counter register must count down to
// zero first; a 3.0 coprocessor has no such register and is always
// safe.
func (c *Coprocessor) IsSafeToRelease() bool {
	if c.cfg.Platform == nil || !c.cfg.Platform.IsPoweredOn() {
		return true
	}

	major, err := c.readByte(regAuthProtocolMajorVersion)
	if err != nil {
		c.cfg.Logger.Warn("mfi: reading protocol major version failed, reporting safe to disable", "error", err)
		return true
	}

	if major == 2 && c.cfg.EnableV2_0C {
		sec, err := c.readByte(regSystemEventCounter)
		if err != nil {
			c.cfg.Logger.Warn("mfi: reading system event counter failed, reporting safe to disable", "error", err)
			return true
		}
		return sec == 0
	}
	return true
}

// enable powers the coprocessor on if necessary and (re)schedules the
// power-off timer. Mirrors HAPMFiHWAuthEnable / PowerOffTimerExpired's
// extend-or-disable loop.
func (c *Coprocessor) enable() error {
	if c.cfg.Platform == nil {
		return fmt.Errorf("mfi: no coprocessor platform configured")
	}
	if c.cfg.Platform.IsPoweredOn() {
		c.scheduleOrExtendPowerOff(powerOffDelaySeconds)
		return nil
	}

	c.cfg.Logger.Info("mfi: powering on coprocessor")
	if err := c.cfg.Platform.PowerOn(); err != nil {
		return fmt.Errorf("mfi: power on: %w", err)
	}
	c.scheduleOrExtendPowerOff(powerOffDelaySeconds)
	return nil
}

func (c *Coprocessor) scheduleOrExtendPowerOff(delaySeconds int) {
	if c.cfg.Timer == nil {
		return
	}
	if c.powerOff != 0 {
		c.cfg.Timer.Deregister(c.powerOff)
	}
	deadline := c.cfg.Timer.Now().Add(secondsToDuration(delaySeconds))
	id, err := c.cfg.Timer.Register(deadline, c.powerOffExpired)
	if err != nil {
		c.cfg.Logger.Error("mfi: scheduling power-off timer failed, leaving hardware on", "error", err)
		return
	}
	c.powerOff = id
}

func (c *Coprocessor) powerOffExpired() {
	c.powerOff = 0
	if !c.IsSafeToRelease() {
		c.scheduleOrExtendPowerOff(powerOffExtensionSeconds)
		return
	}
	c.cfg.Logger.Info("mfi: powering off coprocessor")
	c.cfg.Platform.PowerOff()
}

// IsAvailable powers the coprocessor on, resets its error register,
// reads its identification registers, and (for v2.0C devices) runs its
// self-test, reporting whether a certificate and private key are
// present. Mirrors HAPMFiHWAuthIsAvailable.
func (c *Coprocessor) IsAvailable() bool {
	if err := c.enable(); err != nil {
		c.cfg.Logger.Warn("mfi: enabling coprocessor failed", "error", err)
		return false
	}
	if _, err := c.readByte(regErrorCode); err != nil {
		return false
	}

	deviceVersion, err := c.readByte(regDeviceVersion)
	if err != nil {
		return false
	}
	authRevision, err := c.readByte(regAuthenticationRevision)
	if err != nil {
		return false
	}
	major, err := c.readByte(regAuthProtocolMajorVersion)
	if err != nil {
		return false
	}
	minor, err := c.readByte(regAuthProtocolMinorVersion)
	if err != nil {
		return false
	}

	if code, err := c.readByte(regErrorCode); err != nil || errorCode(code) != errorCodeNone {
		c.cfg.Logger.Warn("mfi: error reported while reading identification registers", "error_code", code)
		return false
	}

	c.cfg.Logger.Info("mfi: coprocessor information",
		"device_version", deviceVersion, "authentication_revision", authRevision,
		"protocol_major", major, "protocol_minor", minor)

	if major == 2 && c.cfg.EnableV2_0C {
		if err := c.writeRegister(regSelfTestStatus, []byte{0x01}); err != nil {
			return false
		}
		status, err := c.readByte(regSelfTestStatus)
		if err != nil {
			return false
		}
		hasCertificate := status>>7&1 == 1
		hasPrivateKey := status>>6&1 == 1
		if !hasCertificate {
			c.cfg.Logger.Warn("mfi: coprocessor reports certificate not found in memory")
			return false
		}
		if !hasPrivateKey {
			c.cfg.Logger.Warn("mfi: coprocessor reports private key not found in memory")
			return false
		}
	}

	c.available = true
	return true
}

// CopyCertificate reads the coprocessor's accessory certificate in
// certificatePartSize chunks. Mirrors HAPMFiHWAuthCopyCertificate.
func (c *Coprocessor) CopyCertificate() ([]byte, error) {
	if err := c.enable(); err != nil {
		return nil, err
	}
	if _, err := c.readByte(regErrorCode); err != nil {
		return nil, err
	}

	major, err := c.readByte(regAuthProtocolMajorVersion)
	if err != nil {
		return nil, err
	}
	if major != 2 && major != 3 {
		return nil, fmt.Errorf("mfi: unsupported authentication protocol major version %d", major)
	}

	length, err := c.readUint16(regAccessoryCertificateDataLength)
	if err != nil {
		return nil, err
	}
	if major == 3 && (length < 607 || length > 609) {
		return nil, fmt.Errorf("mfi: coprocessor returned %d for accessory certificate data length", length)
	}
	if major == 2 && length > 1280 {
		return nil, fmt.Errorf("mfi: coprocessor returned %d for accessory certificate data length", length)
	}

	cert := make([]byte, 0, length)
	remaining := int(length)
	part := regAccessoryCertificateDataPart1
	for remaining > 0 {
		n := remaining
		if n > certificatePartSize {
			n = certificatePartSize
		}
		buf := make([]byte, n)
		if err := c.cfg.Platform.ReadRegister(uint8(part), buf); err != nil {
			return nil, fmt.Errorf("mfi: reading certificate part at register 0x%02x: %w", part, err)
		}
		cert = append(cert, buf...)
		remaining -= n
		part++
	}

	if code, err := c.readByte(regErrorCode); err != nil || errorCode(code) != errorCodeNone {
		return nil, fmt.Errorf("mfi: error occurred while getting accessory certificate: 0x%02x", code)
	}
	return cert, nil
}

// CreateSignature hashes challenge and has the coprocessor sign it
// with its provisioned key, returning the raw signature bytes. Mirrors
// HAPMFiHWAuthCreateSignature.
func (c *Coprocessor) CreateSignature(challenge []byte) ([]byte, error) {
	if err := c.enable(); err != nil {
		return nil, err
	}
	if _, err := c.readByte(regErrorCode); err != nil {
		return nil, err
	}

	major, err := c.readByte(regAuthProtocolMajorVersion)
	if err != nil {
		return nil, err
	}
	if major != 2 && major != 3 {
		return nil, fmt.Errorf("mfi: unsupported authentication protocol major version %d", major)
	}

	if major == 3 {
		digest := sha256.Sum256(challenge)
		if err := c.writeRegister(regChallengeData, digest[:]); err != nil {
			return nil, err
		}
	} else {
		if !c.cfg.EnableV2_0C {
			return nil, fmt.Errorf("mfi: v2.0C coprocessor detected but EnableV2_0C is false")
		}
		digest := sha1.Sum(challenge)
		if err := c.writeUint16Register(regChallengeDataLength, uint16(len(digest))); err != nil {
			return nil, err
		}
		if err := c.writeRegister(regChallengeData, digest[:]); err != nil {
			return nil, err
		}
		if err := c.writeUint16Register(regChallengeResponseDataLength, 0x80); err != nil {
			return nil, err
		}
	}

	if err := c.writeRegister(regAuthControlAndStatus, []byte{1}); err != nil {
		return nil, err
	}

	status, err := c.readByte(regAuthControlAndStatus)
	if err != nil {
		return nil, err
	}
	if status != 1<<4 {
		return nil, fmt.Errorf("mfi: coprocessor returned 0x%02x for authentication protocol status", status)
	}

	length, err := c.readUint16(regChallengeResponseDataLength)
	if err != nil {
		return nil, err
	}
	if major == 3 && length != 64 {
		return nil, fmt.Errorf("mfi: coprocessor returned %d for challenge response data length", length)
	}
	if major == 2 && length > 0x80 {
		return nil, fmt.Errorf("mfi: coprocessor returned %d for challenge response data length", length)
	}

	signature := make([]byte, length)
	if err := c.cfg.Platform.ReadRegister(uint8(regChallengeResponseData), signature); err != nil {
		return nil, fmt.Errorf("mfi: reading challenge response data: %w", err)
	}

	if code, err := c.readByte(regErrorCode); err != nil || errorCode(code) != errorCodeNone {
		return nil, fmt.Errorf("mfi: error occurred while getting signature: 0x%02x", code)
	}
	return signature, nil
}

func (c *Coprocessor) readByte(r register) (uint8, error) {
	buf := make([]byte, 1)
	if err := c.cfg.Platform.ReadRegister(uint8(r), buf); err != nil {
		return 0, fmt.Errorf("mfi: reading register 0x%02x: %w", r, err)
	}
	return buf[0], nil
}

func (c *Coprocessor) readUint16(r register) (uint16, error) {
	buf := make([]byte, 2)
	if err := c.cfg.Platform.ReadRegister(uint8(r), buf); err != nil {
		return 0, fmt.Errorf("mfi: reading register 0x%02x: %w", r, err)
	}
	return binary.BigEndian.Uint16(buf), nil
}

func (c *Coprocessor) writeRegister(r register, payload []byte) error {
	bytes := append([]byte{uint8(r)}, payload...)
	if err := c.cfg.Platform.WriteRegister(bytes); err != nil {
		return fmt.Errorf("mfi: writing register 0x%02x: %w", r, err)
	}
	return nil
}

func (c *Coprocessor) writeUint16Register(r register, value uint16) error {
	payload := make([]byte, 2)
	binary.BigEndian.PutUint16(payload, value)
	return c.writeRegister(r, payload)
}
