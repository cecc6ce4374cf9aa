package authflow

import (
	"context"
	"errors"
	"strings"
)

// Login describes the login operation and its observable behavior.
//
// Login validates the primary credential through the CredentialStore, then
// resolves the post-login path: an immediate session, or a transition to the
// second-factor stage with a one-time code already dispatched. Failures keep
// the flow on the login stage. ErrInvalidCredentials and
// ErrNetworkUnreachable are distinguished so the caller can offer the right
// recovery, without revealing which part of the credential was wrong.
//
// Login may return an error when input validation, dependency calls, or security checks fail.
// Login does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Login(ctx context.Context, identifier, password string) (LoginResult, error) {
	if e == nil || e.users == nil || e.delivery == nil || e.issuer == nil {
		return LoginResult{}, ErrEngineNotReady
	}
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return LoginResult{}, fieldErr("identifier", "must not be empty")
	}
	if password == "" {
		return LoginResult{}, fieldErr("password", "must not be empty")
	}

	e.mu.Lock()
	if e.flow.stage != StageLogin {
		e.mu.Unlock()
		return LoginResult{}, ErrStageInvalid
	}
	e.flow.identifier = identifier
	epoch := e.flow.epoch
	e.mu.Unlock()

	start := e.clock.Now()
	result, err := e.users.SignIn(ctx, identifier, password)
	if err != nil {
		classified := classifyCredentialErr(err)

		e.mu.Lock()
		if e.supersededLocked(ctx, epoch, "login") {
			e.mu.Unlock()
			return LoginResult{}, ErrFlowSuperseded
		}
		e.mu.Unlock()

		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", StageLogin, classified, nil)
		return LoginResult{}, classified
	}

	decision := e.bootstrap.Decide(ctx, result.UserID)
	if decision.Degraded {
		e.metricInc(MetricStatusProbeDegraded)
		e.emitAudit(ctx, auditEventStatusProbeDegraded, false, result.UserID, StageLogin, nil, func() map[string]string {
			return map[string]string{"degraded": "true"}
		})
	}
	if decision.TrustApplied {
		e.metricInc(MetricSecondFactorSkippedTrusted)
		e.emitAudit(ctx, auditEventSecondFactorSkipped, true, result.UserID, StageLogin, nil, nil)
	}

	e.mu.Lock()
	if e.supersededLocked(ctx, epoch, "login") {
		e.mu.Unlock()
		return LoginResult{}, ErrFlowSuperseded
	}
	e.flow.userID = result.UserID
	e.flow.password = password
	e.flow.destination = result.CodeDestination
	e.mu.Unlock()

	if !decision.SecondFactorRequired {
		token := e.establishSession(ctx, result.UserID)

		if e.metrics.LatencyEnabled() {
			e.metrics.Observe(MetricLoginLatency, e.clock.Now().Sub(start))
		}
		e.metricInc(MetricLoginSuccess)
		e.emitAudit(ctx, auditEventLoginSuccess, true, result.UserID, StageLogin, nil, nil)
		return LoginResult{UserID: result.UserID, SessionToken: token}, nil
	}

	if err := e.dispatchSecondFactorCode(ctx, epoch, result); err != nil {
		return LoginResult{}, err
	}

	e.mu.Lock()
	if e.supersededLocked(ctx, epoch, "login") {
		e.mu.Unlock()
		return LoginResult{}, ErrFlowSuperseded
	}
	e.flow.stage = StageSecondFactor
	e.mu.Unlock()

	e.metricInc(MetricSecondFactorRequired)
	e.emitAudit(ctx, auditEventSecondFactorRequired, true, result.UserID, StageSecondFactor, nil, nil)
	return LoginResult{UserID: result.UserID, SecondFactorRequired: true}, nil
}

// dispatchSecondFactorCode issues a fresh code and sends it out-of-band. An
// undeliverable code is invalidated so the flow never waits on a code nobody
// received.
func (e *Engine) dispatchSecondFactorCode(ctx context.Context, epoch uint64, signIn SignInResult) error {
	code, err := e.issuer.Issue()
	if err != nil {
		return err
	}

	if err := e.delivery.Send(ctx, signIn.CodeDestination, code); err != nil {
		e.issuer.Invalidate()
		e.metricInc(MetricDeliveryFailed)
		e.emitAudit(ctx, auditEventCodeDeliveryFailed, false, signIn.UserID, StageLogin, ErrDeliveryFailed, nil)
		if errors.Is(err, ErrDeliveryFailed) {
			return err
		}
		return errors.Join(ErrDeliveryFailed, err)
	}

	e.metricInc(MetricCodeIssued)
	e.emitAudit(ctx, auditEventCodeIssued, true, signIn.UserID, StageLogin, nil, nil)
	return nil
}

// establishSession finalizes a successful authentication: the transient flow
// state is destroyed, the flow returns to the login stage for the next run,
// and the optional client session receipt is minted. Receipt problems only
// degrade to an empty token; they never fail an otherwise successful login.
func (e *Engine) establishSession(ctx context.Context, userID string) string {
	var token string
	if e.receipt.enabled() {
		deviceID, err := e.devices.DeviceID(ctx)
		if err != nil {
			e.warn("device identity unavailable while minting session receipt: %v", err)
		} else {
			token, err = e.receipt.mint(userID, deviceID, e.clock.Now())
			if err != nil {
				e.warn("session receipt minting failed: %v", err)
				token = ""
			}
		}
	}

	e.mu.Lock()
	e.issuer.Invalidate()
	e.stopCountdownLocked()
	e.clearAuthenticatedLocked()
	e.flow.identifier = ""
	e.flow.reg = RegistrationInput{}
	e.flow.stage = StageLogin
	e.flow.epoch++
	e.mu.Unlock()

	return token
}

// classifyCredentialErr maps a CredentialStore failure onto the package
// taxonomy. Unknown errors are treated as transport failures: retry guidance
// is the safer default and nothing about the account is revealed.
func classifyCredentialErr(err error) error {
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return ErrInvalidCredentials
	case errors.Is(err, ErrNetworkUnreachable):
		return err
	default:
		return errors.Join(ErrNetworkUnreachable, err)
	}
}
