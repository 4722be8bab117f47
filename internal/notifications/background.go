package notifications

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"tagflow/internal/logging"
)

const (
	defaultBackgroundBuffer = 64
	backgroundDrainGrace    = 5 * time.Second
)

type envelope struct {
	ctx     context.Context
	event   Event
	payload Payload
}

// Background delivers events to another Service from a single goroutine.
// Publish only queues the event; when the queue is full the event is dropped
// and logged, the same way the Hub treats a slow client.
type Background struct {
	next   Service
	logger *slog.Logger
	queue  chan envelope
	done   chan struct{}

	stop   context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool
}

// NewBackground starts the delivery goroutine for next. buffer <= 0 uses a
// default queue size.
func NewBackground(next Service, logger *slog.Logger, buffer int) *Background {
	if buffer <= 0 {
		buffer = defaultBackgroundBuffer
	}
	stop, cancel := context.WithCancel(context.Background())
	b := &Background{
		next:   next,
		logger: logging.NewComponentLogger(logger, "notifications"),
		queue:  make(chan envelope, buffer),
		done:   make(chan struct{}),
		stop:   stop,
		cancel: cancel,
	}
	go b.run()
	return b
}

// Publish queues the event and returns immediately. It never reports a
// delivery error; failures are logged by the delivery goroutine.
func (b *Background) Publish(ctx context.Context, event Event, payload Payload) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil
	}
	select {
	case b.queue <- envelope{ctx: context.WithoutCancel(ctx), event: event, payload: payload}:
	default:
		b.logger.Warn("notification queue full; event dropped",
			logging.String("event", string(event)),
			logging.String(logging.FieldEventType, "notification_dropped"),
		)
	}
	return nil
}

// Close stops accepting events and waits for queued ones to drain. Anything
// still pending after a short grace period is abandoned.
func (b *Background) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	close(b.queue)
	b.mu.Unlock()

	select {
	case <-b.done:
	case <-time.After(backgroundDrainGrace):
		b.cancel()
		<-b.done
	}
	b.cancel()
}

func (b *Background) run() {
	defer close(b.done)
	for env := range b.queue {
		ctx, cancel := context.WithCancel(env.ctx)
		unhook := context.AfterFunc(b.stop, cancel)
		err := b.next.Publish(ctx, env.event, env.payload)
		unhook()
		cancel()
		if err != nil {
			logging.WarnWithContext(logging.WithContext(env.ctx, b.logger), "notification delivery failed", "notification_failed",
				logging.String("event", string(env.event)),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic and network access"),
				logging.String(logging.FieldImpact, "push notification not delivered"),
			)
		}
	}
}
