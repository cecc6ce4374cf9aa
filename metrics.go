package authflow

import (
	"sync/atomic"
	"time"
)

// MetricID defines a public type used by authflow APIs.
//
// MetricID instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricID uint16

const (
	// MetricLoginSuccess is an exported constant or variable used by the flow engine.
	MetricLoginSuccess MetricID = iota
	// MetricLoginFailure is an exported constant or variable used by the flow engine.
	MetricLoginFailure
	// MetricSecondFactorRequired is an exported constant or variable used by the flow engine.
	MetricSecondFactorRequired
	// MetricSecondFactorSuccess is an exported constant or variable used by the flow engine.
	MetricSecondFactorSuccess
	// MetricSecondFactorFailure is an exported constant or variable used by the flow engine.
	MetricSecondFactorFailure
	// MetricSecondFactorSkippedTrusted is an exported constant or variable used by the flow engine.
	MetricSecondFactorSkippedTrusted
	// MetricCodeIssued is an exported constant or variable used by the flow engine.
	MetricCodeIssued
	// MetricCodeMismatch is an exported constant or variable used by the flow engine.
	MetricCodeMismatch
	// MetricResendBlocked is an exported constant or variable used by the flow engine.
	MetricResendBlocked
	// MetricDeliveryFailed is an exported constant or variable used by the flow engine.
	MetricDeliveryFailed
	// MetricTrustGranted is an exported constant or variable used by the flow engine.
	MetricTrustGranted
	// MetricTrustDenied is an exported constant or variable used by the flow engine.
	MetricTrustDenied
	// MetricTrustRevoked is an exported constant or variable used by the flow engine.
	MetricTrustRevoked
	// MetricTrustExpired is an exported constant or variable used by the flow engine.
	MetricTrustExpired
	// MetricRegistrationSuccess is an exported constant or variable used by the flow engine.
	MetricRegistrationSuccess
	// MetricRegistrationFailure is an exported constant or variable used by the flow engine.
	MetricRegistrationFailure
	// MetricRegistrationDuplicate is an exported constant or variable used by the flow engine.
	MetricRegistrationDuplicate
	// MetricPasswordResetRequest is an exported constant or variable used by the flow engine.
	MetricPasswordResetRequest
	// MetricFlowAbandoned is an exported constant or variable used by the flow engine.
	MetricFlowAbandoned
	// MetricStaleResponseDiscarded is an exported constant or variable used by the flow engine.
	MetricStaleResponseDiscarded
	// MetricStatusProbeDegraded is an exported constant or variable used by the flow engine.
	MetricStatusProbeDegraded
	// MetricLoginLatency is an exported constant or variable used by the flow engine.
	MetricLoginLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics defines a public type used by authflow APIs.
//
// Metrics instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot defines a public type used by authflow APIs.
//
// MetricsSnapshot instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics describes the newmetrics operation and its observable behavior.
//
// NewMetrics does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled describes the enabled operation and its observable behavior.
//
// Enabled does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// LatencyEnabled describes the latencyenabled operation and its observable behavior.
//
// LatencyEnabled does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc describes the inc operation and its observable behavior.
//
// Inc does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe describes the observe operation and its observable behavior.
//
// Observe does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricLoginLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value describes the value operation and its observable behavior.
//
// Value does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot describes the snapshot operation and its observable behavior.
//
// Snapshot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricLoginLatency].buckets[i])
		}
		s.Histograms[MetricLoginLatency] = buckets
	}

	return s
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
