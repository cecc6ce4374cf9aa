package authflow

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventLoginSuccess         = "login_success"
	auditEventLoginFailure         = "login_failure"
	auditEventSecondFactorRequired = "second_factor_required"
	auditEventSecondFactorSuccess  = "second_factor_success"
	auditEventSecondFactorFailure  = "second_factor_failure"
	auditEventSecondFactorSkipped  = "second_factor_skipped_trusted"
	auditEventCodeIssued           = "code_issued"
	auditEventCodeResendBlocked    = "code_resend_blocked"
	auditEventCodeDeliveryFailed   = "code_delivery_failed"
	auditEventRegistrationSuccess  = "registration_success"
	auditEventRegistrationFailure  = "registration_failure"
	auditEventPasswordResetRequest = "password_reset_request"
	auditEventTrustGranted         = "trust_granted"
	auditEventTrustDenied          = "trust_denied"
	auditEventTrustRevoked         = "trust_revoked"
	auditEventTrustRevokedAll      = "trust_revoked_all"
	auditEventFlowBack             = "flow_back"
	auditEventStaleResponse        = "stale_response_discarded"
	auditEventStatusProbeDegraded  = "status_probe_degraded"
)

// AuditErrorCode defines a public type used by authflow APIs.
//
// AuditErrorCode instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditErrorCode string

const (
	auditErrValidation     AuditErrorCode = "validation"
	auditErrInvalidCreds   AuditErrorCode = "invalid_credentials"
	auditErrNetwork        AuditErrorCode = "network_unreachable"
	auditErrConflict       AuditErrorCode = "duplicate_account"
	auditErrDelivery       AuditErrorCode = "delivery_failed"
	auditErrCodeMismatch   AuditErrorCode = "code_mismatch"
	auditErrNoActiveCode   AuditErrorCode = "no_active_code"
	auditErrResendCooldown AuditErrorCode = "resend_cooldown"
	auditErrTrustDenied    AuditErrorCode = "trust_denied"
	auditErrStageInvalid   AuditErrorCode = "stage_invalid"
	auditErrSuperseded     AuditErrorCode = "flow_superseded"
	auditErrStorage        AuditErrorCode = "storage_unavailable"
	auditErrSignOut        AuditErrorCode = "sign_out_failed"
	auditErrInternal       AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	stage Stage,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		UserID:    userID,
		Stage:     stage.String(),
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrValidation):
		return auditErrValidation
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCreds
	case errors.Is(err, ErrNetworkUnreachable):
		return auditErrNetwork
	case errors.Is(err, ErrConflict):
		return auditErrConflict
	case errors.Is(err, ErrDeliveryFailed):
		return auditErrDelivery
	case errors.Is(err, ErrCodeMismatch):
		return auditErrCodeMismatch
	case errors.Is(err, ErrNoActiveCode):
		return auditErrNoActiveCode
	case errors.Is(err, ErrResendCooldown):
		return auditErrResendCooldown
	case errors.Is(err, ErrTrustDenied), errors.Is(err, ErrTrustUnconfirmed):
		return auditErrTrustDenied
	case errors.Is(err, ErrStageInvalid):
		return auditErrStageInvalid
	case errors.Is(err, ErrFlowSuperseded):
		return auditErrSuperseded
	case errors.Is(err, ErrStorageUnavailable), errors.Is(err, ErrKeyNotFound), errors.Is(err, ErrIdentityUnavailable):
		return auditErrStorage
	case errors.Is(err, ErrSignOutFailed):
		return auditErrSignOut
	default:
		return auditErrInternal
	}
}
