package authflow

import "context"

// TrustedDevices describes the trusteddevices operation and its observable behavior.
//
// Returns the user's non-expired device grants in issuance order, pruning
// expired entries from storage first.
//
// TrustedDevices may return an error when input validation, dependency calls, or security checks fail.
// TrustedDevices does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) TrustedDevices(ctx context.Context, userID string) ([]TrustedDeviceGrant, error) {
	if userID == "" {
		return nil, fieldErr("userID", "must not be empty")
	}
	return e.devices.List(ctx, userID)
}

// RevokeTrustedDevice describes the revoketrusteddevice operation and its observable behavior.
//
// RevokeTrustedDevice may return an error when input validation, dependency calls, or security checks fail.
// RevokeTrustedDevice does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) RevokeTrustedDevice(ctx context.Context, userID, deviceID string) error {
	if userID == "" {
		return fieldErr("userID", "must not be empty")
	}
	if deviceID == "" {
		return fieldErr("deviceID", "must not be empty")
	}

	if err := e.devices.Revoke(ctx, userID, deviceID); err != nil {
		e.emitAudit(ctx, auditEventTrustRevoked, false, userID, e.Stage(), err, nil)
		return err
	}

	e.metricInc(MetricTrustRevoked)
	e.emitAudit(ctx, auditEventTrustRevoked, true, userID, e.Stage(), nil, func() map[string]string {
		return map[string]string{"device_id": deviceID}
	})
	return nil
}

// RevokeAllTrustedDevices describes the revokealltrusteddevices operation and its observable behavior.
//
// Clears every grant for the user, re-arming the second-factor challenge on
// all installations.
//
// RevokeAllTrustedDevices may return an error when input validation, dependency calls, or security checks fail.
// RevokeAllTrustedDevices does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) RevokeAllTrustedDevices(ctx context.Context, userID string) error {
	if userID == "" {
		return fieldErr("userID", "must not be empty")
	}

	if err := e.devices.RevokeAll(ctx, userID); err != nil {
		e.emitAudit(ctx, auditEventTrustRevokedAll, false, userID, e.Stage(), err, nil)
		return err
	}

	e.metricInc(MetricTrustRevoked)
	e.emitAudit(ctx, auditEventTrustRevokedAll, true, userID, e.Stage(), nil, nil)
	return nil
}
