// Package notify delivers order status notifications. Delivery is best
// effort: callers log failures and never roll back state because of them.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Govind-619/paysync/utils"
)

// Audiences of a notification
const (
	AudienceCustomer = "customer"
	AudienceAdmin    = "admin"
)

var (
	ErrNoRecipient = errors.New("notification has no recipient")
	ErrQueueFull   = errors.New("notification queue is full")
	ErrClosed      = errors.New("notification dispatcher is closed")
)

// Notification tells one recipient about an order status change
type Notification struct {
	OrderID   uint
	Status    string
	Recipient string
	Audience  string
	Reason    string
}

// Dispatcher sends a notification
type Dispatcher interface {
	Dispatch(ctx context.Context, n Notification) error
}

// DispatcherFunc adapts a function to Dispatcher
type DispatcherFunc func(ctx context.Context, n Notification) error

func (f DispatcherFunc) Dispatch(ctx context.Context, n Notification) error {
	return f(ctx, n)
}

// LogDispatcher only writes notifications to the info log; used when SMTP is not configured
type LogDispatcher struct{}

func (LogDispatcher) Dispatch(_ context.Context, n Notification) error {
	if n.Recipient == "" {
		return ErrNoRecipient
	}
	utils.LogInfo("Notification (%s) to %s: order %d is %s %s", n.Audience, n.Recipient, n.OrderID, n.Status, n.Reason)
	return nil
}

// AsyncDispatcher queues notifications for a fixed pool of workers so the
// caller returns before delivery completes
type AsyncDispatcher struct {
	next    Dispatcher
	timeout time.Duration
	queue   chan Notification

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewAsyncDispatcher starts workers delivering through next
func NewAsyncDispatcher(next Dispatcher, workers, queueSize int, timeout time.Duration) *AsyncDispatcher {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	d := &AsyncDispatcher{
		next:    next,
		timeout: timeout,
		queue:   make(chan Notification, queueSize),
	}
	d.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go d.worker()
	}
	return d
}

// Dispatch enqueues n without blocking
func (d *AsyncDispatcher) Dispatch(_ context.Context, n Notification) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	select {
	case d.queue <- n:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting notifications and waits for the queue to drain
func (d *AsyncDispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *AsyncDispatcher) worker() {
	defer d.wg.Done()
	for n := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		if err := d.next.Dispatch(ctx, n); err != nil {
			utils.LogError("Failed to deliver %s notification for order %d: %v", n.Audience, n.OrderID, err)
		}
		cancel()
	}
}

func subject(n Notification) string {
	switch n.Status {
	case "paid":
		return fmt.Sprintf("Order #%d: payment confirmed", n.OrderID)
	case "failed":
		return fmt.Sprintf("Order #%d: payment failed", n.OrderID)
	default:
		return fmt.Sprintf("Order #%d: status %s", n.OrderID, n.Status)
	}
}
