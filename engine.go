package authflow

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"
)

// Engine defines a public type used by authflow APIs.
//
// Engine instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Engine struct {
	config    Config
	users     CredentialStore
	delivery  CodeDelivery
	store     KeyValueStore
	clock     Clock
	devices   *TrustedDeviceRegistry
	bootstrap *SessionBootstrapper
	issuer    *OneTimeCodeIssuer
	receipt   *sessionReceipt
	audit     *auditDispatcher
	metrics   *Metrics
	logger    *log.Logger

	mu   sync.Mutex
	flow flowState
}

// flowState is the ephemeral per-flow state. Every navigation bumps epoch;
// responses captured under an older epoch are discarded instead of being
// applied to state the user already abandoned.
type flowState struct {
	stage       Stage
	epoch       uint64
	identifier  string
	password    string
	userID      string
	destination string
	reg         RegistrationInput
	countdown   *countdown
}

// Close describes the close operation and its observable behavior.
//
// Close does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Close() {
	if e == nil {
		return
	}

	e.mu.Lock()
	e.stopCountdownLocked()
	e.mu.Unlock()

	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped describes the auditdropped operation and its observable behavior.
//
// AuditDropped does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) warn(format string, args ...any) {
	if e == nil || e.logger == nil {
		return
	}
	e.logger.Printf("authflow: "+format, args...)
}

// Stage returns the current step of the flow state machine.
func (e *Engine) Stage() Stage {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.flow.stage
}

// PendingRegistration returns the registration form data preserved from the
// last submit, so a recoverable failure never costs the user their input.
func (e *Engine) PendingRegistration() RegistrationInput {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.flow.reg
}

// Devices exposes the trusted-device registry for read-side consumers.
// Granting and revoking remain engine operations tied to explicit user
// confirmation.
func (e *Engine) Devices() *TrustedDeviceRegistry {
	return e.devices
}

// CanResendCode reports whether the resend cooldown has elapsed.
func (e *Engine) CanResendCode() bool {
	return e.issuer.CanResend()
}

// SecondsUntilResend returns the whole seconds left on the resend cooldown,
// for UI display. Zero when resending is allowed.
func (e *Engine) SecondsUntilResend() int {
	remaining := e.issuer.Remaining()
	if remaining <= 0 {
		return 0
	}
	seconds := int(remaining / time.Second)
	if remaining%time.Second > 0 {
		seconds++
	}
	return seconds
}

// StartResendCountdown begins a once-per-second countdown callback for the
// resend cooldown, replacing any previous one. The returned stop function
// cancels it; the engine also cancels it on navigation so no tick ever fires
// into a disposed view.
func (e *Engine) StartResendCountdown(onTick func(secondsRemaining int)) (stop func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.stopCountdownLocked()
	c := startCountdown(e.issuer, onTick)
	e.flow.countdown = c
	return c.Stop
}

// BeginRegistration navigates from the login stage to the register stage.
//
// BeginRegistration may return an error when input validation, dependency calls, or security checks fail.
func (e *Engine) BeginRegistration() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.flow.stage != StageLogin {
		return ErrStageInvalid
	}
	e.flow.stage = StageRegister
	e.flow.epoch++
	return nil
}

// BeginPasswordReset navigates from the login stage to the reset-password
// stage.
//
// BeginPasswordReset may return an error when input validation, dependency calls, or security checks fail.
func (e *Engine) BeginPasswordReset() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.flow.stage != StageLogin {
		return ErrStageInvalid
	}
	e.flow.stage = StageResetPassword
	e.flow.epoch++
	return nil
}

// Back cancels the current stage and navigates backwards:
//
//	register, reset-password → login
//	verify-code              → register (form data preserved)
//	second-factor            → login (backend session signed out)
//
// Leaving a code-entry stage invalidates the active code and stops the
// countdown, and any response still in flight for the abandoned stage is
// discarded when it lands. Back is a no-op on the login stage.
//
// Back may return an error when input validation, dependency calls, or security checks fail.
func (e *Engine) Back(ctx context.Context) error {
	e.mu.Lock()

	switch e.flow.stage {
	case StageLogin:
		e.mu.Unlock()
		return nil

	case StageRegister, StageResetPassword:
		e.flow.stage = StageLogin
		e.flow.epoch++
		e.mu.Unlock()
		return nil

	case StageVerifyCode:
		e.abandonCodeEntryLocked()
		e.flow.stage = StageRegister
		e.mu.Unlock()
		e.metricInc(MetricFlowAbandoned)
		return nil

	case StageSecondFactor:
		e.abandonCodeEntryLocked()
		e.flow.stage = StageLogin
		userID := e.flow.userID
		e.clearAuthenticatedLocked()
		e.mu.Unlock()

		e.metricInc(MetricFlowAbandoned)

		// The half-authenticated backend session must not be resumable
		// without re-entering credentials.
		if err := e.users.SignOut(ctx); err != nil {
			e.warn("sign out after abandoned second factor failed: %v", err)
			e.emitAudit(ctx, auditEventFlowBack, false, userID, StageSecondFactor, ErrSignOutFailed, nil)
			return ErrSignOutFailed
		}
		e.emitAudit(ctx, auditEventFlowBack, true, userID, StageSecondFactor, nil, nil)
		return nil

	default:
		e.mu.Unlock()
		return ErrStageInvalid
	}
}

func (e *Engine) abandonCodeEntryLocked() {
	e.issuer.Invalidate()
	e.stopCountdownLocked()
	e.flow.epoch++
}

func (e *Engine) clearAuthenticatedLocked() {
	e.flow.password = ""
	e.flow.userID = ""
	e.flow.destination = ""
}

func (e *Engine) stopCountdownLocked() {
	if e.flow.countdown != nil {
		e.flow.countdown.Stop()
		e.flow.countdown = nil
	}
}

// superseded reports whether the flow moved on while a call was in flight.
// Callers must hold e.mu.
func (e *Engine) supersededLocked(ctx context.Context, epoch uint64, op string) bool {
	if e.flow.epoch == epoch {
		return false
	}
	e.metricInc(MetricStaleResponseDiscarded)
	e.emitAudit(ctx, auditEventStaleResponse, false, "", e.flow.stage, ErrFlowSuperseded, func() map[string]string {
		return map[string]string{"operation": op}
	})
	return true
}

func buildDeviceLabel(ctx context.Context) string {
	platform := platformFromContext(ctx)
	ua := condenseUserAgent(userAgentFromContext(ctx))

	switch {
	case platform != "" && ua != "":
		return platform + " / " + ua
	case platform != "":
		return platform
	default:
		return ua
	}
}

func condenseUserAgent(ua string) string {
	ua = strings.Join(strings.Fields(ua), " ")
	const maxLabelLen = 48
	if len(ua) > maxLabelLen {
		return ua[:maxLabelLen]
	}
	return ua
}
