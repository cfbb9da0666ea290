package audit

import (
	"context"
	"sync"
	"sync/atomic"
)

// Config controls queueing. With DropIfFull a full queue discards the event;
// otherwise Emit waits for room.
type Config struct {
	Enabled    bool `yaml:"enabled"`
	BufferSize int  `yaml:"buffer_size"`
	DropIfFull bool `yaml:"drop_if_full"`
}

// Dispatcher queues events and forwards them to a Sink in order.
type Dispatcher struct {
	sink       Sink
	dropIfFull bool
	onDrop     func()

	queue    chan Event
	stop     chan struct{}
	finished chan struct{}

	stopping atomic.Bool
	dropped  atomic.Uint64
	stopOnce sync.Once
}

// NewDispatcher starts delivery to sink. It returns nil when cfg is disabled,
// and every method is safe on a nil *Dispatcher. onDrop runs once per
// discarded event.
func NewDispatcher(cfg Config, sink Sink, onDrop func()) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	size := cfg.BufferSize
	if size < 1 {
		size = 1
	}

	d := &Dispatcher{
		sink:       sink,
		dropIfFull: cfg.DropIfFull,
		onDrop:     onDrop,
		queue:      make(chan Event, size),
		stop:       make(chan struct{}),
		finished:   make(chan struct{}),
	}
	go d.deliver()
	return d
}

func (d *Dispatcher) deliver() {
	defer close(d.finished)
	ctx := context.Background()
	for {
		select {
		case ev := <-d.queue:
			d.sink.Emit(ctx, ev)
		case <-d.stop:
			d.drain(ctx)
			return
		}
	}
}

// drain forwards whatever is still queued after Close.
func (d *Dispatcher) drain(ctx context.Context) {
	for {
		select {
		case ev := <-d.queue:
			d.sink.Emit(ctx, ev)
		default:
			return
		}
	}
}

// Emit queues ev. Events emitted after Close are ignored.
func (d *Dispatcher) Emit(ctx context.Context, ev Event) {
	if d == nil || d.stopping.Load() {
		return
	}

	if d.dropIfFull {
		select {
		case d.queue <- ev:
		case <-d.stop:
		default:
			d.recordDrop()
		}
		return
	}

	var cancelled <-chan struct{}
	if ctx != nil {
		cancelled = ctx.Done()
	}
	select {
	case d.queue <- ev:
	case <-cancelled:
	case <-d.stop:
	}
}

func (d *Dispatcher) recordDrop() {
	d.dropped.Add(1)
	if d.onDrop != nil {
		d.onDrop()
	}
}

// Close rejects new events, forwards the queued ones, and returns once the
// sink has received them.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.stopOnce.Do(func() {
		d.stopping.Store(true)
		close(d.stop)
	})
	<-d.finished
}

// Dropped reports how many events were discarded on a full queue.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
