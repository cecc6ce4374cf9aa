package authflow

import (
	"errors"
	"log"

	"github.com/redis/go-redis/v9"
)

// Builder defines a public type used by authflow APIs.
//
// Builder instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Builder struct {
	config  Config
	storage KeyValueStore

	users     CredentialStore
	delivery  CodeDelivery
	clock     Clock
	auditSink AuditSink
	logger    *log.Logger

	built bool
}

// New describes the new operation and its observable behavior.
//
// New does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig describes the withconfig operation and its observable behavior.
//
// WithConfig does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithCredentialStore describes the withcredentialstore operation and its observable behavior.
//
// WithCredentialStore does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithCredentialStore(store CredentialStore) *Builder {
	b.users = store
	return b
}

// WithCodeDelivery describes the withcodedelivery operation and its observable behavior.
//
// WithCodeDelivery does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithCodeDelivery(delivery CodeDelivery) *Builder {
	b.delivery = delivery
	return b
}

// WithStorage describes the withstorage operation and its observable behavior.
//
// WithStorage does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithStorage(store KeyValueStore) *Builder {
	b.storage = store
	return b
}

// WithRedis wires a Redis-backed KeyValueStore as the persistence substrate.
//
// WithRedis does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.storage = NewRedisStore(client)
	return b
}

// WithClock describes the withclock operation and its observable behavior.
//
// WithClock does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithClock(clock Clock) *Builder {
	b.clock = clock
	return b
}

// WithAuditSink describes the withauditsink operation and its observable behavior.
//
// WithAuditSink does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	if sink != nil {
		b.config.Audit.Enabled = true
	}
	return b
}

// WithMetricsEnabled describes the withmetricsenabled operation and its observable behavior.
//
// WithMetricsEnabled does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms describes the withlatencyhistograms operation and its observable behavior.
//
// WithLatencyHistograms does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// WithLogger describes the withlogger operation and its observable behavior.
//
// WithLogger does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithLogger(logger *log.Logger) *Builder {
	b.logger = logger
	return b
}

// Build describes the build operation and its observable behavior.
//
// Build may return an error when input validation, dependency calls, or security checks fail.
// Build does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.users == nil {
		return nil, errors.New("credential store required")
	}
	if b.delivery == nil {
		return nil, errors.New("code delivery required")
	}

	storage := b.storage
	if storage == nil {
		storage = NewMemoryStore()
	}

	clock := b.clock
	if clock == nil {
		clock = systemClock{}
	}

	logger := b.logger
	if logger == nil {
		logger = log.Default()
	}

	engine := &Engine{
		config:   cfg,
		users:    b.users,
		delivery: b.delivery,
		store:    storage,
		clock:    clock,
		logger:   logger,
	}

	engine.devices = NewTrustedDeviceRegistry(cfg.TrustedDevice, storage, clock)
	engine.bootstrap = NewSessionBootstrapper(b.users, engine.devices, engine.warn)
	engine.issuer = NewOneTimeCodeIssuer(cfg.OneTimeCode, clock)
	engine.receipt = newSessionReceipt(cfg.Session)
	engine.audit = newAuditDispatcher(cfg.Audit, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)
	engine.devices.onExpired = func() { engine.metricInc(MetricTrustExpired) }
	engine.flow.stage = StageLogin

	b.built = true

	return engine, nil
}
