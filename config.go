package authflow

import (
	"errors"
	"time"
)

const (
	defaultCodeDigits     = 6
	defaultResendCooldown = 60 * time.Second
	defaultTrustTTL       = 30 * 24 * time.Hour
)

// Config defines a public type used by authflow APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	OneTimeCode   OneTimeCodeConfig
	TrustedDevice TrustedDeviceConfig
	Registration  RegistrationConfig
	Session       SessionConfig
	Audit         AuditConfig
	Metrics       MetricsConfig

	// ProductionMode enables hardening checks in Validate: the code
	// validation bypass is rejected, cooldown and TTL floors apply, and a
	// session signing key must meet the minimum length.
	ProductionMode bool
}

/*
====================================
ONE-TIME CODE CONFIG
====================================
*/

// OneTimeCodeConfig defines a public type used by authflow APIs.
//
// OneTimeCodeConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type OneTimeCodeConfig struct {
	Digits         int
	ResendCooldown time.Duration

	// BypassValidation accepts any fully filled code. It exists for developer
	// and UI-test builds only and must never be enabled in production;
	// Validate enforces this when ProductionMode is set.
	BypassValidation bool
}

/*
====================================
TRUSTED DEVICE CONFIG
====================================
*/

// TrustedDeviceConfig defines a public type used by authflow APIs.
//
// TrustedDeviceConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type TrustedDeviceConfig struct {
	TTL       time.Duration
	KeyPrefix string
}

// RegistrationConfig defines a public type used by authflow APIs.
//
// RegistrationConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type RegistrationConfig struct {
	MinPasswordLength int
}

// SessionConfig configures the optional client session receipt minted on
// full authentication success. The feature is disabled while SigningKey is
// empty; the backend remains the owner of the real session either way.
type SessionConfig struct {
	TokenTTL   time.Duration
	SigningKey []byte
	Issuer     string
}

// AuditConfig defines a public type used by authflow APIs.
//
// AuditConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig defines a public type used by authflow APIs.
//
// MetricsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the baseline configuration: 6-digit codes with a 60
// second resend cooldown, 30-day device trust, 8-character password minimum,
// audit and metrics disabled.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		OneTimeCode: OneTimeCodeConfig{
			Digits:           defaultCodeDigits,
			ResendCooldown:   defaultResendCooldown,
			BypassValidation: false,
		},
		TrustedDevice: TrustedDeviceConfig{
			TTL:       defaultTrustTTL,
			KeyPrefix: "af",
		},
		Registration: RegistrationConfig{
			MinPasswordLength: 8,
		},
		Session: SessionConfig{
			TokenTTL: 12 * time.Hour,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
		ProductionMode: false,
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Session.SigningKey = cloneBytes(cfg.Session.SigningKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate describes the validate operation and its observable behavior.
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
// Validate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Config) Validate() error {
	// One-time codes
	if c.OneTimeCode.Digits != 6 {
		return errors.New("OneTimeCode Digits must be 6")
	}
	if c.OneTimeCode.ResendCooldown <= 0 {
		return errors.New("OneTimeCode ResendCooldown must be > 0")
	}

	// Trusted devices
	if c.TrustedDevice.TTL <= 0 {
		return errors.New("TrustedDevice TTL must be > 0")
	}
	if c.TrustedDevice.KeyPrefix == "" {
		return errors.New("TrustedDevice KeyPrefix is required")
	}

	// Registration
	if c.Registration.MinPasswordLength < 8 {
		return errors.New("Registration MinPasswordLength must be >= 8")
	}

	// Session receipt
	if len(c.Session.SigningKey) > 0 && c.Session.TokenTTL <= 0 {
		return errors.New("Session TokenTTL must be > 0 when SigningKey is set")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	if c.ProductionMode {
		if c.OneTimeCode.BypassValidation {
			return errors.New("ProductionMode forbids OneTimeCode BypassValidation")
		}
		if c.OneTimeCode.ResendCooldown < 30*time.Second {
			return errors.New("ProductionMode requires OneTimeCode ResendCooldown >= 30s")
		}
		if c.TrustedDevice.TTL > 90*24*time.Hour {
			return errors.New("ProductionMode requires TrustedDevice TTL <= 90d")
		}
		if len(c.Session.SigningKey) > 0 && len(c.Session.SigningKey) < 32 {
			return errors.New("ProductionMode requires Session SigningKey length >= 256 bits")
		}
	}

	return nil
}
