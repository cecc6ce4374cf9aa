package authflow

import (
	"context"
	"errors"
	"strings"
)

// RequestPasswordReset describes the requestpasswordreset operation and its observable behavior.
//
// Delegates the out-of-band reset dispatch to the CredentialStore. An
// accepted dispatch always returns the flow to the login stage regardless of
// whether the identifier maps to an account; neither the result nor the audit
// trail may reveal account existence. A transport failure keeps the flow on
// reset-password so the user can retry.
//
// RequestPasswordReset may return an error when input validation, dependency calls, or security checks fail.
// RequestPasswordReset does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) RequestPasswordReset(ctx context.Context, identifier string) error {
	if e == nil || e.users == nil {
		return ErrEngineNotReady
	}
	identifier = strings.TrimSpace(identifier)
	if err := validateEmail(identifier); err != nil {
		return err
	}

	e.mu.Lock()
	if e.flow.stage != StageLogin && e.flow.stage != StageResetPassword {
		e.mu.Unlock()
		return ErrStageInvalid
	}
	e.flow.stage = StageResetPassword
	epoch := e.flow.epoch
	e.mu.Unlock()

	resetErr := e.users.RequestPasswordReset(ctx, identifier)

	e.mu.Lock()
	if e.supersededLocked(ctx, epoch, "password_reset") {
		e.mu.Unlock()
		return ErrFlowSuperseded
	}

	if resetErr != nil {
		e.mu.Unlock()

		classified := resetErr
		if !errors.Is(resetErr, ErrNetworkUnreachable) {
			classified = errors.Join(ErrNetworkUnreachable, resetErr)
		}
		e.emitAudit(ctx, auditEventPasswordResetRequest, false, "", StageResetPassword, classified, nil)
		return classified
	}

	e.flow.stage = StageLogin
	e.flow.epoch++
	e.mu.Unlock()

	e.metricInc(MetricPasswordResetRequest)
	e.emitAudit(ctx, auditEventPasswordResetRequest, true, "", StageLogin, nil, nil)
	return nil
}
