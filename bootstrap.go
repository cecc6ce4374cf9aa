package authflow

import "context"

// SessionBootstrapper decides the post-login path after a successful primary
// credential check:
//
//	2FA disabled            → session established immediately
//	2FA enabled + trusted   → session established immediately
//	2FA enabled + untrusted → second-factor challenge
//
// The decision is recomputed from scratch on every login; the only state that
// survives restarts is the trusted-device grant itself.
type SessionBootstrapper struct {
	users   CredentialStore
	devices *TrustedDeviceRegistry
	warn    func(format string, args ...any)
}

// BootstrapDecision is the outcome of one post-login evaluation.
// TrustApplied is set when an active device grant substituted for the
// challenge; Degraded is set when the status probe failed and the decision
// fell back to "second factor disabled".
type BootstrapDecision struct {
	SecondFactorRequired bool
	TrustApplied         bool
	Degraded             bool
}

// NewSessionBootstrapper describes the newsessionbootstrapper operation and its observable behavior.
//
// NewSessionBootstrapper does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewSessionBootstrapper(users CredentialStore, devices *TrustedDeviceRegistry, warn func(format string, args ...any)) *SessionBootstrapper {
	if warn == nil {
		warn = func(string, ...any) {}
	}
	return &SessionBootstrapper{
		users:   users,
		devices: devices,
		warn:    warn,
	}
}

// Decide resolves whether the given authenticated user must pass the
// second-factor challenge before a session is established.
//
// A failed status probe degrades to "second factor disabled" so a transient
// backend error cannot hard-lock users out; the degrade is logged. A failed
// trust lookup degrades the other way, to "untrusted", so storage trouble can
// only re-challenge, never silently skip the factor.
func (b *SessionBootstrapper) Decide(ctx context.Context, userID string) BootstrapDecision {
	enabled, err := b.users.SecondFactorStatus(ctx, userID)
	if err != nil {
		b.warn("second factor status probe failed, treating as disabled: %v", err)
		return BootstrapDecision{Degraded: true}
	}
	if !enabled {
		return BootstrapDecision{}
	}

	trusted, err := b.devices.IsTrusted(ctx, userID)
	if err != nil {
		b.warn("trusted device lookup failed, treating as untrusted: %v", err)
		return BootstrapDecision{SecondFactorRequired: true}
	}
	if trusted {
		return BootstrapDecision{TrustApplied: true}
	}
	return BootstrapDecision{SecondFactorRequired: true}
}

// SecondFactorRequired is a convenience wrapper over Decide.
func (b *SessionBootstrapper) SecondFactorRequired(ctx context.Context, userID string) bool {
	return b.Decide(ctx, userID).SecondFactorRequired
}
