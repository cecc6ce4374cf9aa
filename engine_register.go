package authflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// StartRegistration describes the startregistration operation and its observable behavior.
//
// Local validation (email shape, password length, confirmation match,
// delivery destination) runs before any network call; a validation failure
// keeps the flow on the register stage with the entered fields preserved. On
// pass, a one-time code is issued and dispatched to the destination; the flow
// moves to verify-code only when dispatch succeeded.
//
// StartRegistration may return an error when input validation, dependency calls, or security checks fail.
// StartRegistration does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) StartRegistration(ctx context.Context, input RegistrationInput) error {
	if e == nil || e.users == nil || e.delivery == nil || e.issuer == nil {
		return ErrEngineNotReady
	}
	input.Email = strings.TrimSpace(input.Email)
	input.DisplayName = strings.TrimSpace(input.DisplayName)
	input.CodeDestination = strings.TrimSpace(input.CodeDestination)

	e.mu.Lock()
	if e.flow.stage != StageLogin && e.flow.stage != StageRegister {
		e.mu.Unlock()
		return ErrStageInvalid
	}
	e.flow.stage = StageRegister
	e.flow.reg = input
	epoch := e.flow.epoch
	e.mu.Unlock()

	if err := validateRegistration(input, e.config.Registration.MinPasswordLength); err != nil {
		return err
	}

	code, err := e.issuer.Issue()
	if err != nil {
		return err
	}

	sendErr := e.delivery.Send(ctx, input.CodeDestination, code)

	e.mu.Lock()
	if e.supersededLocked(ctx, epoch, "start_registration") {
		e.mu.Unlock()
		return ErrFlowSuperseded
	}

	if sendErr != nil {
		e.issuer.Invalidate()
		e.mu.Unlock()

		e.metricInc(MetricDeliveryFailed)
		e.emitAudit(ctx, auditEventCodeDeliveryFailed, false, "", StageRegister, ErrDeliveryFailed, nil)
		if errors.Is(sendErr, ErrDeliveryFailed) {
			return sendErr
		}
		return errors.Join(ErrDeliveryFailed, sendErr)
	}

	e.flow.stage = StageVerifyCode
	e.mu.Unlock()

	e.metricInc(MetricCodeIssued)
	e.emitAudit(ctx, auditEventCodeIssued, true, "", StageVerifyCode, nil, nil)
	return nil
}

// ConfirmRegistrationCode describes the confirmregistrationcode operation and its observable behavior.
//
// A code mismatch leaves the flow on verify-code with the registration data
// intact; the caller clears the code input. On match the account is created
// through the CredentialStore: success returns the flow to login, while a
// duplicate account or transport failure returns it to register with every
// entered field preserved for correction.
//
// ConfirmRegistrationCode may return an error when input validation, dependency calls, or security checks fail.
// ConfirmRegistrationCode does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) ConfirmRegistrationCode(ctx context.Context, code string) error {
	if e == nil || e.users == nil || e.issuer == nil {
		return ErrEngineNotReady
	}

	e.mu.Lock()
	if e.flow.stage != StageVerifyCode {
		e.mu.Unlock()
		return ErrStageInvalid
	}
	reg := e.flow.reg
	epoch := e.flow.epoch
	e.mu.Unlock()

	if err := e.issuer.Validate(code); err != nil {
		if errors.Is(err, ErrCodeMismatch) || errors.Is(err, ErrNoActiveCode) {
			e.metricInc(MetricCodeMismatch)
			e.emitAudit(ctx, auditEventRegistrationFailure, false, "", StageVerifyCode, err, nil)
		}
		return err
	}

	registerErr := e.users.Register(ctx, reg.Email, reg.Password, reg.DisplayName)

	e.mu.Lock()
	if e.supersededLocked(ctx, epoch, "confirm_registration") {
		e.mu.Unlock()
		return ErrFlowSuperseded
	}

	if registerErr != nil {
		classified := classifyRegisterErr(registerErr)

		// Back to the form, data preserved, so the email can be corrected.
		e.issuer.Invalidate()
		e.stopCountdownLocked()
		e.flow.stage = StageRegister
		e.flow.epoch++
		e.mu.Unlock()

		if errors.Is(classified, ErrConflict) {
			e.metricInc(MetricRegistrationDuplicate)
		} else {
			e.metricInc(MetricRegistrationFailure)
		}
		e.emitAudit(ctx, auditEventRegistrationFailure, false, "", StageRegister, classified, nil)
		return classified
	}

	e.issuer.Invalidate()
	e.stopCountdownLocked()
	e.flow.reg = RegistrationInput{}
	e.flow.stage = StageLogin
	e.flow.epoch++
	e.mu.Unlock()

	e.metricInc(MetricRegistrationSuccess)
	e.emitAudit(ctx, auditEventRegistrationSuccess, true, "", StageLogin, nil, nil)
	return nil
}

// ResendCode describes the resendcode operation and its observable behavior.
//
// Valid on the verify-code and second-factor stages. While the cooldown from
// the previous issuance is still running the call is a rejected no-op, never
// a queued action, so rapid double-invocation cannot double-issue. A
// successful resend supersedes the previous code and restarts the cooldown.
//
// ResendCode may return an error when input validation, dependency calls, or security checks fail.
// ResendCode does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) ResendCode(ctx context.Context) error {
	if e == nil || e.delivery == nil || e.issuer == nil {
		return ErrEngineNotReady
	}

	e.mu.Lock()
	stage := e.flow.stage
	if stage != StageVerifyCode && stage != StageSecondFactor {
		e.mu.Unlock()
		return ErrStageInvalid
	}

	if !e.issuer.CanResend() {
		e.mu.Unlock()
		e.metricInc(MetricResendBlocked)
		e.emitAudit(ctx, auditEventCodeResendBlocked, false, "", stage, ErrResendCooldown, nil)
		return ErrResendCooldown
	}

	var destination string
	if stage == StageVerifyCode {
		destination = e.flow.reg.CodeDestination
	} else {
		destination = e.flow.destination
	}
	userID := e.flow.userID
	epoch := e.flow.epoch
	e.mu.Unlock()

	code, err := e.issuer.Issue()
	if err != nil {
		return err
	}

	sendErr := e.delivery.Send(ctx, destination, code)

	e.mu.Lock()
	if e.supersededLocked(ctx, epoch, "resend_code") {
		e.mu.Unlock()
		return ErrFlowSuperseded
	}

	if sendErr != nil {
		e.issuer.Invalidate()
		e.mu.Unlock()

		e.metricInc(MetricDeliveryFailed)
		e.emitAudit(ctx, auditEventCodeDeliveryFailed, false, userID, stage, ErrDeliveryFailed, nil)
		if errors.Is(sendErr, ErrDeliveryFailed) {
			return sendErr
		}
		return errors.Join(ErrDeliveryFailed, sendErr)
	}
	e.mu.Unlock()

	e.metricInc(MetricCodeIssued)
	e.emitAudit(ctx, auditEventCodeIssued, true, userID, stage, nil, func() map[string]string {
		return map[string]string{"resend": "true"}
	})
	return nil
}

func validateRegistration(input RegistrationInput, minPasswordLength int) error {
	if err := validateEmail(input.Email); err != nil {
		return err
	}
	if len(input.Password) < minPasswordLength {
		return fieldErr("password", fmt.Sprintf("must be at least %d characters", minPasswordLength))
	}
	if input.Password != input.Confirm {
		return fieldErr("confirm", "does not match password")
	}
	if input.CodeDestination == "" {
		return fieldErr("destination", "must not be empty")
	}
	return nil
}

// validateEmail checks the standard local@domain shape. Deliverability is the
// delivery channel's problem; this only rejects obviously malformed input
// before a network round trip is spent on it.
func validateEmail(email string) error {
	if email == "" {
		return fieldErr("email", "must not be empty")
	}
	at := strings.Index(email, "@")
	if at <= 0 || at != strings.LastIndex(email, "@") {
		return fieldErr("email", "must be a valid address")
	}
	domain := email[at+1:]
	if domain == "" || strings.ContainsAny(email, " \t") {
		return fieldErr("email", "must be a valid address")
	}
	dot := strings.Index(domain, ".")
	if dot <= 0 || strings.HasSuffix(domain, ".") {
		return fieldErr("email", "must be a valid address")
	}
	return nil
}

func classifyRegisterErr(err error) error {
	switch {
	case errors.Is(err, ErrConflict):
		return ErrConflict
	case errors.Is(err, ErrNetworkUnreachable):
		return err
	default:
		return errors.Join(ErrNetworkUnreachable, err)
	}
}
