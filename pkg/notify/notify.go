// Package notify delivers community notifications in the background so that
// posting a message never waits on push delivery.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/xhad/commons/internal/logger"
	"github.com/xhad/commons/internal/types"
)

const KindNewMessage = "new_message"

// Notification is one event to fan out to subscribers. Delivery skips ActorID.
type Notification struct {
	Kind      string
	ActorID   string
	Title     string
	Body      string
	CreatedAt time.Time
}

// Notifier delivers a notification to its recipients.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NotifierFunc adapts a function to a Notifier.
type NotifierFunc func(ctx context.Context, n Notification) error

func (f NotifierFunc) Notify(ctx context.Context, n Notification) error {
	return f(ctx, n)
}

// LogNotifier writes notifications to the log instead of delivering them.
type LogNotifier struct{}

func (LogNotifier) Notify(ctx context.Context, n Notification) error {
	logger.Info("Notification %s from %s: %s", n.Kind, n.ActorID, n.Title)
	return nil
}

type QueueConfig struct {
	Size            int
	Workers         int
	MaxRetries      uint64
	InitialInterval time.Duration
	// Timeout bounds a single delivery attempt.
	Timeout time.Duration
}

// Queue is a bounded in-process queue drained by a fixed set of workers.
// Enqueue never blocks; a full queue drops the notification.
type Queue struct {
	config   QueueConfig
	notifier Notifier

	mu     sync.RWMutex
	closed bool
	jobs   chan Notification

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewQueue(config QueueConfig, notifier Notifier) *Queue {
	if config.Size <= 0 {
		config.Size = 100
	}
	if config.Workers <= 0 {
		config.Workers = 2
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = 3
	}
	if config.InitialInterval <= 0 {
		config.InitialInterval = 500 * time.Millisecond
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		config:   config,
		notifier: notifier,
		jobs:     make(chan Notification, config.Size),
		ctx:      ctx,
		cancel:   cancel,
	}

	for i := 0; i < config.Workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	return q
}

// Enqueue schedules n for delivery and returns immediately.
func (q *Queue) Enqueue(n Notification) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return fmt.Errorf("notification queue closed")
	}

	select {
	case q.jobs <- n:
		return nil
	default:
		return types.ErrQueueFull
	}
}

// Close stops accepting notifications and waits for the queued ones to be
// delivered or for ctx to end, whichever comes first.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.cancel()
		return nil
	case <-ctx.Done():
		q.cancel()
		<-done
		return ctx.Err()
	}
}

func (q *Queue) worker() {
	defer q.wg.Done()

	for n := range q.jobs {
		if err := q.deliver(n); err != nil {
			logger.Error("Failed to deliver %s notification: %v", n.Kind, err)
		}
	}
}

func (q *Queue) deliver(n Notification) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = q.config.InitialInterval

	attempt := 0
	operation := func() error {
		attempt++
		ctx, cancel := context.WithTimeout(q.ctx, q.config.Timeout)
		defer cancel()
		return q.notifier.Notify(ctx, n)
	}

	return backoff.RetryNotify(
		operation,
		backoff.WithContext(backoff.WithMaxRetries(policy, q.config.MaxRetries), q.ctx),
		func(err error, wait time.Duration) {
			logger.Debug("Notification attempt %d failed, retrying in %s: %v", attempt, wait, err)
		},
	)
}
