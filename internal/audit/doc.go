// Package audit implements async event dispatching for security-relevant flow operations.
//
// # Components
//
//   - [Event] — structured audit record with timestamp, type, user, device, stage, IP, metadata.
//   - [Sink] — delivery endpoint implemented by consumers (channel, JSON writer, no-op).
//   - [Dispatcher] — buffered async relay; drop-if-full or block-if-full per configuration.
//
// # Architecture boundaries
//
// This package owns buffering and sink delivery only. Deciding WHICH events to
// emit, and with what content, is the Engine's job.
//
// # What this package must NOT do
//
//   - Filter or suppress events on business-logic grounds.
//   - Import authflow or any sibling internal package.
//   - Perform network I/O beyond what a caller-supplied Sink does.
package audit
