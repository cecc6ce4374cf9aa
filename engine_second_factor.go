package authflow

import (
	"context"
	"errors"

	"github.com/emberchat/authflow/internal"
)

// ConfirmSecondFactor describes the confirmsecondfactor operation and its observable behavior.
//
// The submitted code must fill all digit slots; a mismatch is recoverable and
// leaves the challenge active. When opts.RememberDevice is set the account
// password must be re-entered and match the password used at login — checked
// in constant time — before any trust is granted; a mismatch fails the whole
// submit with ErrTrustDenied, granting nothing and establishing no session.
// On success the session is established and, if requested, the device grant
// is written with a fresh 30-day window.
//
// ConfirmSecondFactor may return an error when input validation, dependency calls, or security checks fail.
// ConfirmSecondFactor does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) ConfirmSecondFactor(ctx context.Context, code string, opts SecondFactorOptions) (LoginResult, error) {
	if e == nil || e.issuer == nil || e.devices == nil {
		return LoginResult{}, ErrEngineNotReady
	}

	e.mu.Lock()
	if e.flow.stage != StageSecondFactor {
		e.mu.Unlock()
		return LoginResult{}, ErrStageInvalid
	}
	userID := e.flow.userID
	loginPassword := e.flow.password
	epoch := e.flow.epoch
	e.mu.Unlock()

	if err := e.issuer.Validate(code); err != nil {
		if errors.Is(err, ErrCodeMismatch) || errors.Is(err, ErrNoActiveCode) {
			e.metricInc(MetricCodeMismatch)
			e.metricInc(MetricSecondFactorFailure)
			e.emitAudit(ctx, auditEventSecondFactorFailure, false, userID, StageSecondFactor, err, nil)
		}
		return LoginResult{}, err
	}

	if opts.RememberDevice {
		if !internal.SecretsEqual(opts.PasswordConfirmation, loginPassword) {
			e.metricInc(MetricTrustDenied)
			e.emitAudit(ctx, auditEventTrustDenied, false, userID, StageSecondFactor, ErrTrustDenied, nil)
			return LoginResult{}, ErrTrustDenied
		}

		grant, err := e.devices.Grant(ctx, userID, buildDeviceLabel(ctx), true)

		e.mu.Lock()
		if e.supersededLocked(ctx, epoch, "confirm_second_factor") {
			e.mu.Unlock()
			return LoginResult{}, ErrFlowSuperseded
		}
		e.mu.Unlock()

		if err != nil {
			// Storage trouble must not undo an already-passed challenge;
			// the user simply stays untrusted and is challenged again next
			// time.
			e.warn("trusted device grant failed: %v", err)
			e.emitAudit(ctx, auditEventTrustDenied, false, userID, StageSecondFactor, err, func() map[string]string {
				return map[string]string{"degraded": "true"}
			})
		} else {
			e.metricInc(MetricTrustGranted)
			e.emitAudit(ctx, auditEventTrustGranted, true, userID, StageSecondFactor, nil, func() map[string]string {
				return map[string]string{
					"device_id":  grant.DeviceID,
					"expires_at": grant.ExpiresAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
				}
			})
		}
	}

	e.mu.Lock()
	if e.supersededLocked(ctx, epoch, "confirm_second_factor") {
		e.mu.Unlock()
		return LoginResult{}, ErrFlowSuperseded
	}
	e.mu.Unlock()

	token := e.establishSession(ctx, userID)

	e.metricInc(MetricSecondFactorSuccess)
	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventSecondFactorSuccess, true, userID, StageSecondFactor, nil, nil)
	return LoginResult{UserID: userID, SessionToken: token}, nil
}
