package authflow

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is the root of all local, pre-network validation failures.
	// Concrete failures are [FieldError] values that unwrap to this sentinel.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidCredentials is an exported constant or variable used by the flow engine.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrNetworkUnreachable is an exported constant or variable used by the flow engine.
	ErrNetworkUnreachable = errors.New("network unreachable")
	// ErrConflict is an exported constant or variable used by the flow engine.
	ErrConflict = errors.New("account already exists")
	// ErrDeliveryFailed is an exported constant or variable used by the flow engine.
	ErrDeliveryFailed = errors.New("code delivery failed")
	// ErrCodeMismatch is an exported constant or variable used by the flow engine.
	ErrCodeMismatch = errors.New("verification code mismatch")
	// ErrNoActiveCode is an exported constant or variable used by the flow engine.
	ErrNoActiveCode = errors.New("no active verification code")
	// ErrResendCooldown is an exported constant or variable used by the flow engine.
	ErrResendCooldown = errors.New("resend cooldown active")
	// ErrTrustDenied is an exported constant or variable used by the flow engine.
	ErrTrustDenied = errors.New("device trust denied")
	// ErrTrustUnconfirmed is an exported constant or variable used by the flow engine.
	ErrTrustUnconfirmed = errors.New("device trust requires confirmed intent")
	// ErrStageInvalid is an exported constant or variable used by the flow engine.
	ErrStageInvalid = errors.New("operation not valid in current stage")
	// ErrFlowSuperseded is an exported constant or variable used by the flow engine.
	ErrFlowSuperseded = errors.New("flow state superseded")
	// ErrStorageUnavailable is an exported constant or variable used by the flow engine.
	ErrStorageUnavailable = errors.New("storage backend unavailable")
	// ErrKeyNotFound is an exported constant or variable used by the flow engine.
	ErrKeyNotFound = errors.New("key not found")
	// ErrIdentityUnavailable is an exported constant or variable used by the flow engine.
	ErrIdentityUnavailable = errors.New("device identity unavailable")
	// ErrSignOutFailed is an exported constant or variable used by the flow engine.
	ErrSignOutFailed = errors.New("sign out failed")
	// ErrEngineNotReady is an exported constant or variable used by the flow engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// FieldError is a local validation failure tied to a single input field.
// It is always resolved inside the Engine before any external call is made
// and unwraps to [ErrValidation] for errors.Is checks.
type FieldError struct {
	Field  string
	Reason string
}

// Error describes the error operation and its observable behavior.
func (e *FieldError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Unwrap describes the unwrap operation and its observable behavior.
func (e *FieldError) Unwrap() error {
	return ErrValidation
}

func fieldErr(field, reason string) error {
	return &FieldError{Field: field, Reason: reason}
}
