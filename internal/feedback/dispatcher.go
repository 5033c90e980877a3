package feedback

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/claude/repform/internal/config"
	"github.com/claude/repform/internal/models"
)

// Sink delivers one announcement to a person, e.g. by speech or on screen.
// Deliver may be slow; it must return once ctx is done.
type Sink interface {
	Deliver(ctx context.Context, a models.Announcement) error
}

// Publisher accepts announcements without blocking.
type Publisher interface {
	Publish(a models.Announcement)
}

// Dispatcher queues announcements for a single delivery goroutine. Publish
// never blocks: when the queue is full the oldest queued announcement is
// dropped. Delivery preserves publish order.
type Dispatcher struct {
	sink   Sink
	size   int
	minGap time.Duration
	log    *slog.Logger

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []models.Announcement
	closed bool

	dropped   atomic.Uint64
	delivered atomic.Uint64

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewDispatcher starts a dispatcher using the queue size and minimum gap
// between deliveries from cfg.
func NewDispatcher(sink Sink, cfg config.FeedbackConfig, log *slog.Logger) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		sink:   sink,
		size:   cfg.QueueSize,
		minGap: cfg.MinGap,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	d.cond = sync.NewCond(&d.mu)
	go d.run()
	return d
}

// Publish enqueues a. After Close it only counts a as dropped.
func (d *Dispatcher) Publish(a models.Announcement) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		d.dropped.Add(1)
		return
	}
	if len(d.queue) >= d.size {
		d.queue = d.queue[1:]
		d.dropped.Add(1)
	}
	d.queue = append(d.queue, a)
	d.cond.Signal()
}

// Close stops accepting announcements and waits for the queue to drain.
// If ctx ends first, the in-flight delivery is cancelled, the rest of the
// queue is dropped and ctx's error is returned.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.cond.Broadcast()
	d.mu.Unlock()

	select {
	case <-d.done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-d.done
		return ctx.Err()
	}
}

// Dropped returns how many announcements were discarded.
func (d *Dispatcher) Dropped() uint64 { return d.dropped.Load() }

// Delivered returns how many announcements the sink accepted.
func (d *Dispatcher) Delivered() uint64 { return d.delivered.Load() }

func (d *Dispatcher) run() {
	defer close(d.done)

	var last time.Time
	for {
		a, ok := d.next()
		if !ok {
			return
		}

		if wait := d.minGap - time.Since(last); !last.IsZero() && wait > 0 {
			select {
			case <-time.After(wait):
			case <-d.ctx.Done():
			}
		}
		if d.ctx.Err() != nil {
			d.dropped.Add(1)
			d.drain()
			return
		}

		if err := d.sink.Deliver(d.ctx, a); err != nil {
			d.log.Warn("feedback delivery failed", "seq", a.Seq, "kind", a.Kind, "error", err)
		} else {
			d.delivered.Add(1)
		}
		last = time.Now()
	}
}

// next blocks until an announcement is queued or the dispatcher is closed
// with an empty queue.
func (d *Dispatcher) next() (models.Announcement, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for len(d.queue) == 0 && !d.closed {
		d.cond.Wait()
	}
	if len(d.queue) == 0 {
		return models.Announcement{}, false
	}
	a := d.queue[0]
	d.queue = d.queue[1:]
	return a, true
}

func (d *Dispatcher) drain() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dropped.Add(uint64(len(d.queue)))
	d.queue = nil
}
