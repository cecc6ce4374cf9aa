package audit

import (
	"context"
	"sync"
	"sync/atomic"
)

// Config controls dispatcher buffering. DropIfFull trades completeness for
// latency: when set, Emit never blocks the flow operation and a full buffer
// counts drops instead.
type Config struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// Dispatcher decouples flow operations from sink latency: events are queued
// and forwarded by a single worker goroutine. A nil *Dispatcher is valid and
// does nothing, so disabled auditing costs one nil check per call site.
type Dispatcher struct {
	sink     Sink
	queue    chan Event
	stop     chan struct{}
	dropFull bool

	worker  sync.WaitGroup
	once    sync.Once
	stopped atomic.Bool
	dropped atomic.Uint64
}

// NewDispatcher returns nil when cfg.Enabled is false.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	size := cfg.BufferSize
	if size <= 0 {
		size = 1
	}

	d := &Dispatcher{
		sink:     sink,
		queue:    make(chan Event, size),
		stop:     make(chan struct{}),
		dropFull: cfg.DropIfFull,
	}
	d.worker.Add(1)
	go d.forward()
	return d
}

func (d *Dispatcher) forward() {
	defer d.worker.Done()

	for {
		select {
		case event := <-d.queue:
			d.sink.Emit(context.Background(), event)
		case <-d.stop:
			d.flush()
			return
		}
	}
}

// flush delivers everything still queued at shutdown.
func (d *Dispatcher) flush() {
	for {
		select {
		case event := <-d.queue:
			d.sink.Emit(context.Background(), event)
		default:
			return
		}
	}
}

func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil || d.stopped.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.dropFull {
		select {
		case d.queue <- event:
		case <-d.stop:
		default:
			d.dropped.Add(1)
		}
		return
	}

	select {
	case d.queue <- event:
	case <-ctx.Done():
	case <-d.stop:
	}
}

// Close stops the worker after draining the queue. Safe to call more than
// once; Emit calls racing with Close may be delivered or silently dropped.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.once.Do(func() {
		d.stopped.Store(true)
		close(d.stop)
		d.worker.Wait()
	})
}

// Dropped reports how many events were discarded because the buffer was
// full while DropIfFull was set.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
