package audit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Event records one observable edge of an authentication flow: a login
// attempt, a code issuance, a trust grant, a navigation. Fields that do
// not apply to a given event type are omitted from the encoded form.
type Event struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	UserID    string            `json:"user_id,omitempty"`
	DeviceID  string            `json:"device_id,omitempty"`
	Stage     string            `json:"stage,omitempty"`
	IP        string            `json:"ip,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Sink is the delivery endpoint for audit events. Implementations must
// tolerate concurrent Emit calls.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink discards every event. Used when auditing is enabled without a
// configured destination.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink hands events to a consumer over a buffered channel. Emit
// blocks until the consumer reads or the context is cancelled.
type ChannelSink struct {
	ch chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{ch: make(chan Event, buffer)}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.ch <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan Event {
	return s.ch
}

// JSONWriterSink appends newline-delimited JSON to a writer. Writes are
// serialized; encoding failures are dropped silently rather than letting
// audit output disturb the flow.
type JSONWriterSink struct {
	mu  sync.Mutex
	out io.Writer
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{out: w}
}

func (s *JSONWriterSink) Emit(_ context.Context, event Event) {
	if s == nil || s.out == nil {
		return
	}
	line, err := json.Marshal(event)
	if err != nil {
		return
	}
	line = append(line, '\n')

	s.mu.Lock()
	_, _ = s.out.Write(line)
	s.mu.Unlock()
}
