package authflow

import (
	internalaudit "github.com/emberchat/authflow/internal/audit"
)

// auditDispatcher is the engine-facing wrapper over the internal async
// dispatcher. nil when auditing is disabled; every method is nil-safe so flow
// code never branches on the audit config.
type auditDispatcher = internalaudit.Dispatcher

func newAuditDispatcher(cfg AuditConfig, sink AuditSink) *auditDispatcher {
	return internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Enabled,
		BufferSize: cfg.BufferSize,
		DropIfFull: cfg.DropIfFull,
	}, sink)
}
