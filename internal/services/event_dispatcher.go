package services

import (
	"context"
	"errors"
	"sync"
	"time"
)

const (
	dispatcherEventQueued  = "order.event.queued"
	dispatcherEventDropped = "order.event.dropped"
	dispatcherEventFailed  = "order.event.failed"

	defaultDispatchQueueSize = 256
	defaultDispatchWorkers   = 2
	defaultDispatchAttempts  = 3
	defaultDispatchBackoff   = 500 * time.Millisecond
	defaultDispatchTimeout   = 15 * time.Second
)

// ErrDispatcherClosed is returned when events are published after Close.
var ErrDispatcherClosed = errors.New("event dispatcher: closed")

// AsyncEventDispatcherDeps enumerates collaborators for the async dispatcher.
type AsyncEventDispatcherDeps struct {
	Publisher OrderEventPublisher
	QueueSize int
	Workers   int
	Attempts  int
	Backoff   time.Duration
	Timeout   time.Duration
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

// asyncEventDispatcher decouples order event publishing from the request
// path. Events are queued and delivered by background workers with bounded
// retries; a full queue drops the event rather than blocking a checkout.
type asyncEventDispatcher struct {
	publisher OrderEventPublisher
	queue     chan OrderEvent
	attempts  int
	backoff   time.Duration
	timeout   time.Duration
	logger    func(context.Context, string, map[string]any)

	closeOnce sync.Once
	closed    chan struct{}
	wg        sync.WaitGroup
}

// NewAsyncEventDispatcher wires dependencies into an asynchronous
// OrderEventPublisher. Callers must Close it on shutdown to flush the queue.
func NewAsyncEventDispatcher(deps AsyncEventDispatcherDeps) (*asyncEventDispatcher, error) {
	if deps.Publisher == nil {
		return nil, errors.New("event dispatcher: publisher is required")
	}

	queueSize := deps.QueueSize
	if queueSize <= 0 {
		queueSize = defaultDispatchQueueSize
	}
	workers := deps.Workers
	if workers <= 0 {
		workers = defaultDispatchWorkers
	}
	attempts := deps.Attempts
	if attempts <= 0 {
		attempts = defaultDispatchAttempts
	}
	backoff := deps.Backoff
	if backoff <= 0 {
		backoff = defaultDispatchBackoff
	}
	timeout := deps.Timeout
	if timeout <= 0 {
		timeout = defaultDispatchTimeout
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	d := &asyncEventDispatcher{
		publisher: deps.Publisher,
		queue:     make(chan OrderEvent, queueSize),
		attempts:  attempts,
		backoff:   backoff,
		timeout:   timeout,
		logger:    logger,
		closed:    make(chan struct{}),
	}

	d.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go d.work()
	}
	return d, nil
}

// PublishOrderEvent queues the event for background delivery. It never blocks
// the caller: when the queue is full the event is dropped and logged.
func (d *asyncEventDispatcher) PublishOrderEvent(ctx context.Context, event OrderEvent) error {
	select {
	case <-d.closed:
		return ErrDispatcherClosed
	default:
	}

	select {
	case d.queue <- event:
		d.logger(ctx, dispatcherEventQueued, map[string]any{
			"type":    event.Type,
			"orderId": event.OrderID,
		})
		return nil
	default:
		d.logger(ctx, dispatcherEventDropped, map[string]any{
			"type":    event.Type,
			"orderId": event.OrderID,
		})
		return errors.New("event dispatcher: queue full")
	}
}

// Close stops accepting events and waits for queued deliveries to finish.
func (d *asyncEventDispatcher) Close() error {
	d.closeOnce.Do(func() {
		close(d.closed)
		close(d.queue)
	})
	d.wg.Wait()
	return nil
}

func (d *asyncEventDispatcher) work() {
	defer d.wg.Done()
	for event := range d.queue {
		d.deliver(event)
	}
}

func (d *asyncEventDispatcher) deliver(event OrderEvent) {
	var lastErr error
	for attempt := 1; attempt <= d.attempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		lastErr = d.publisher.PublishOrderEvent(ctx, event)
		cancel()
		if lastErr == nil {
			return
		}
		if attempt < d.attempts {
			time.Sleep(d.backoff * time.Duration(attempt))
		}
	}

	d.logger(context.Background(), dispatcherEventFailed, map[string]any{
		"type":     event.Type,
		"orderId":  event.OrderID,
		"attempts": d.attempts,
		"error":    lastErr.Error(),
	})
}
