package internaldefs

import (
	authflow "github.com/emberchat/authflow"
)

// CounterDef defines a public type used by authflow APIs.
//
// CounterDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type CounterDef struct {
	ID   authflow.MetricID
	Name string
	Help string
}

// HistogramDef defines a public type used by authflow APIs.
//
// HistogramDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type HistogramDef struct {
	ID   authflow.MetricID
	Name string
	Help string
}

// CounterDefs is an exported constant or variable used by the flow engine.
var CounterDefs = []CounterDef{
	{ID: authflow.MetricLoginSuccess, Name: "authflow_login_success_total", Help: "Successful login completions."},
	{ID: authflow.MetricLoginFailure, Name: "authflow_login_failure_total", Help: "Failed login attempts."},
	{ID: authflow.MetricSecondFactorRequired, Name: "authflow_second_factor_required_total", Help: "Logins escalated to the second-factor challenge."},
	{ID: authflow.MetricSecondFactorSuccess, Name: "authflow_second_factor_success_total", Help: "Successful second-factor confirmations."},
	{ID: authflow.MetricSecondFactorFailure, Name: "authflow_second_factor_failure_total", Help: "Failed second-factor confirmations."},
	{ID: authflow.MetricSecondFactorSkippedTrusted, Name: "authflow_second_factor_skipped_trusted_total", Help: "Second-factor challenges skipped for trusted devices."},
	{ID: authflow.MetricCodeIssued, Name: "authflow_code_issued_total", Help: "One-time codes issued and dispatched."},
	{ID: authflow.MetricCodeMismatch, Name: "authflow_code_mismatch_total", Help: "One-time code validation mismatches."},
	{ID: authflow.MetricResendBlocked, Name: "authflow_resend_blocked_total", Help: "Resend requests rejected by the cooldown."},
	{ID: authflow.MetricDeliveryFailed, Name: "authflow_delivery_failed_total", Help: "Failed out-of-band code deliveries."},
	{ID: authflow.MetricTrustGranted, Name: "authflow_trust_granted_total", Help: "Trusted-device grants created."},
	{ID: authflow.MetricTrustDenied, Name: "authflow_trust_denied_total", Help: "Trust grants denied on password re-confirmation mismatch."},
	{ID: authflow.MetricTrustRevoked, Name: "authflow_trust_revoked_total", Help: "Trusted-device revocations."},
	{ID: authflow.MetricTrustExpired, Name: "authflow_trust_expired_total", Help: "Expired trust grants purged on read."},
	{ID: authflow.MetricRegistrationSuccess, Name: "authflow_registration_success_total", Help: "Successful account registrations."},
	{ID: authflow.MetricRegistrationFailure, Name: "authflow_registration_failure_total", Help: "Failed account registrations."},
	{ID: authflow.MetricRegistrationDuplicate, Name: "authflow_registration_duplicate_total", Help: "Registrations rejected as duplicate."},
	{ID: authflow.MetricPasswordResetRequest, Name: "authflow_password_reset_request_total", Help: "Password reset dispatches."},
	{ID: authflow.MetricFlowAbandoned, Name: "authflow_flow_abandoned_total", Help: "Code-entry stages abandoned via back navigation."},
	{ID: authflow.MetricStaleResponseDiscarded, Name: "authflow_stale_response_discarded_total", Help: "In-flight responses discarded after navigation."},
	{ID: authflow.MetricStatusProbeDegraded, Name: "authflow_status_probe_degraded_total", Help: "Second-factor status probes that failed and degraded to disabled."},
}

// HistogramDefs is an exported constant or variable used by the flow engine.
var HistogramDefs = []HistogramDef{
	{ID: authflow.MetricLoginLatency, Name: "authflow_login_latency_seconds", Help: "Login latency histogram."},
}

// HistogramBounds is an exported constant or variable used by the flow engine.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix is an exported constant or variable used by the flow engine.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets describes the normalizebuckets operation and its observable behavior.
//
// NormalizeBuckets does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets describes the cumulativebuckets operation and its observable behavior.
//
// CumulativeBuckets does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
