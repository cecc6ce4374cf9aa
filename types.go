package authflow

import (
	"context"
	"io"
	"time"

	internalaudit "github.com/emberchat/authflow/internal/audit"
)

// Stage identifies the current step of the sign-in / sign-up state machine.
//
//	Docs: docs/flow.md
type Stage uint8

const (
	// StageLogin is an exported constant or variable used by the flow engine.
	StageLogin Stage = iota
	// StageRegister is an exported constant or variable used by the flow engine.
	StageRegister
	// StageVerifyCode is an exported constant or variable used by the flow engine.
	StageVerifyCode
	// StageSecondFactor is an exported constant or variable used by the flow engine.
	StageSecondFactor
	// StageResetPassword is an exported constant or variable used by the flow engine.
	StageResetPassword
)

// String describes the string operation and its observable behavior.
func (s Stage) String() string {
	switch s {
	case StageLogin:
		return "login"
	case StageRegister:
		return "register"
	case StageVerifyCode:
		return "verify-code"
	case StageSecondFactor:
		return "second-factor"
	case StageResetPassword:
		return "reset-password"
	default:
		return "unknown"
	}
}

// SignInResult is returned by [CredentialStore.SignIn] on success. It carries
// the authenticated user id and the out-of-band destination used to deliver
// second-factor codes for that account.
type SignInResult struct {
	UserID          string
	CodeDestination string
}

// CredentialStore is the external backend that owns user records and
// credential verification. Implementations must return errors that wrap the
// package sentinels: [ErrInvalidCredentials] for rejected credentials,
// [ErrNetworkUnreachable] for transport failures, [ErrConflict] for duplicate
// registrations. Unknown errors are treated as transport failures (retryable).
//
//	Docs: docs/engine.md
type CredentialStore interface {
	SignIn(ctx context.Context, identifier, secret string) (SignInResult, error)
	SecondFactorStatus(ctx context.Context, userID string) (bool, error)
	Register(ctx context.Context, identifier, secret, displayName string) error
	RequestPasswordReset(ctx context.Context, identifier string) error
	SignOut(ctx context.Context) error
}

// CodeDelivery dispatches one-time codes over an out-of-band channel.
// The destination is an opaque address supplied by the user (for example a
// chat-bot channel id). A failed send must return an error wrapping
// [ErrDeliveryFailed].
type CodeDelivery interface {
	Send(ctx context.Context, destination, code string) error
}

// KeyValueStore is the persistence capability used for device identity and
// trusted-device grants. Get returns [ErrKeyNotFound] for missing keys and an
// error wrapping [ErrStorageUnavailable] for backend failures.
//
// Two implementations ship with the package: [NewMemoryStore] and
// [NewRedisStore].
type KeyValueStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// Clock abstracts time for cooldown and TTL arithmetic so they can be tested
// deterministically. The zero configuration uses the system clock.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// TrustedDeviceGrant is a bounded-duration second-factor exemption for one
// user on one installation. Grants are persisted as JSON records in the
// configured [KeyValueStore].
//
//	Docs: docs/trusted_devices.md
type TrustedDeviceGrant struct {
	DeviceID  string    `json:"device_id"`
	UserID    string    `json:"user_id"`
	Label     string    `json:"label,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the grant is no longer valid at the given instant.
func (g TrustedDeviceGrant) Expired(now time.Time) bool {
	return !now.Before(g.ExpiresAt)
}

// RegistrationInput is the form data collected on the register stage. The
// Engine preserves it across failed submits so the user never re-types
// everything after a recoverable error.
type RegistrationInput struct {
	Email           string
	Password        string
	Confirm         string
	DisplayName     string
	CodeDestination string
}

// LoginResult is returned by [Engine.Login] and [Engine.ConfirmSecondFactor].
// When SecondFactorRequired is set the flow has moved to [StageSecondFactor]
// and a code has already been dispatched; otherwise the session is
// established and SessionToken carries the optional client session receipt.
type LoginResult struct {
	UserID               string
	SecondFactorRequired bool
	SessionToken         string
}

// SecondFactorOptions controls the trust side effects of
// [Engine.ConfirmSecondFactor]. RememberDevice requires PasswordConfirmation
// to match the password used at login; a mismatch fails the whole submit with
// [ErrTrustDenied] and grants nothing.
type SecondFactorOptions struct {
	RememberDevice       bool
	PasswordConfirmation string
}

// AuditEvent is a structured audit record emitted by the engine.
//
//	Docs: docs/audit.md
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine’s audit dispatcher.
//
//	Docs: docs/audit.md
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
//
//	Docs: docs/audit.md
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON-encoded events to an
// [io.Writer].
//
//	Docs: docs/audit.md
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
//
//	Docs: docs/audit.md
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
//
//	Docs: docs/audit.md
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}
