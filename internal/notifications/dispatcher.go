package notifications

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/campusmart/campusmart-backend/pkg/config"
	"github.com/campusmart/campusmart-backend/pkg/enums"
	"github.com/campusmart/campusmart-backend/pkg/logger"
	"github.com/campusmart/campusmart-backend/pkg/metrics"
	"github.com/google/uuid"
	"go.uber.org/multierr"
)

// Message is one notification addressed to one user.
type Message struct {
	UserID uuid.UUID
	Type   enums.NotificationType
	Title  string
	Body   string
	Link   string
}

// Fanout addresses the same message to every recipient.
func Fanout(recipients []uuid.UUID, msg Message) []Message {
	out := make([]Message, 0, len(recipients))
	for _, id := range recipients {
		m := msg
		m.UserID = id
		out = append(out, m)
	}
	return out
}

// Notifier accepts messages once the unit of work that produced them has committed.
type Notifier interface {
	Notify(ctx context.Context, msgs ...Message)
}

// Sink delivers a message through one channel.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, msg Message) error
}

type job struct {
	ctx context.Context
	msg Message
}

// Dispatcher hands messages to a bounded queue drained by worker goroutines.
// Delivery failures are logged and counted, never returned to the caller.
type Dispatcher struct {
	sinks   []Sink
	queue   chan job
	workers int
	timeout time.Duration
	logg    *logger.Logger
	metrics *metrics.Marketplace

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
	start  sync.Once
}

// NewDispatcher builds a dispatcher over the provided sinks.
func NewDispatcher(cfg config.NotificationsConfig, logg *logger.Logger, m *metrics.Marketplace, sinks ...Sink) (*Dispatcher, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if len(sinks) == 0 {
		return nil, fmt.Errorf("at least one notification sink required")
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = 64
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{
		sinks:   sinks,
		queue:   make(chan job, size),
		workers: workers,
		timeout: timeout,
		logg:    logg,
		metrics: m,
	}, nil
}

// Start launches the workers. Calling it more than once is a no-op.
func (d *Dispatcher) Start() {
	d.start.Do(func() {
		for i := 0; i < d.workers; i++ {
			d.wg.Add(1)
			go d.work()
		}
	})
}

// Notify enqueues messages without blocking. A full queue drops the message.
func (d *Dispatcher) Notify(ctx context.Context, msgs ...Message) {
	if ctx == nil {
		ctx = context.Background()
	}
	// request contexts are cancelled once the response is written
	detached := context.WithoutCancel(ctx)

	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, msg := range msgs {
		if msg.UserID == uuid.Nil {
			continue
		}
		if d.closed {
			d.drop(detached, msg, "dispatcher closed")
			continue
		}
		select {
		case d.queue <- job{ctx: detached, msg: msg}:
		default:
			d.drop(detached, msg, "notification queue full")
		}
	}
}

// Close stops accepting messages and waits for queued deliveries to finish.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for j := range d.queue {
		d.deliver(j)
	}
}

func (d *Dispatcher) deliver(j job) {
	ctx, cancel := context.WithTimeout(j.ctx, d.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			d.logg.Error(d.logg.WithField(ctx, "stack", string(debug.Stack())), "notification delivery panicked", fmt.Errorf("%v", r))
		}
	}()

	var errs error
	for _, sink := range d.sinks {
		err := sink.Deliver(ctx, j.msg)
		d.metrics.NotificationDelivery(sink.Name(), err == nil)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
		}
	}
	if errs != nil {
		logCtx := d.logg.WithFields(ctx, map[string]any{
			"user_id":           j.msg.UserID.String(),
			"notification_type": string(j.msg.Type),
			"failed_sinks":      len(multierr.Errors(errs)),
		})
		d.logg.Error(logCtx, "notification delivery failed", errs)
	}
}

func (d *Dispatcher) drop(ctx context.Context, msg Message, reason string) {
	d.metrics.NotificationDelivery("queue", false)
	logCtx := d.logg.WithFields(ctx, map[string]any{
		"user_id":           msg.UserID.String(),
		"notification_type": string(msg.Type),
	})
	d.logg.Warn(logCtx, reason)
}
