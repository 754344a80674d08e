// Package notify queues and delivers localized notifications. Delivery
// failures never affect the compliance record: an escalated deadline
// stays escalated whether or not the message arrives.
package notify

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

const maxAttempts = 3

// Message is one queued notification.
type Message struct {
	ID        string            `json:"id"`
	TenantID  string            `json:"tenant_id"`
	Recipient string            `json:"recipient"`
	Template  Template          `json:"template"`
	Data      map[string]string `json:"data"`
	CreatedAt time.Time         `json:"created_at"`
}

// Sender delivers one rendered message. Implementations must honor the
// context deadline.
type Sender interface {
	Send(ctx context.Context, tenantID, recipient, subject, body string) error
}

// Dispatcher delivers messages asynchronously through a bounded queue and
// a worker pool with exponential retry. Retries happen inside the worker,
// never by re-enqueueing, so shutdown cannot race a retry against the
// closed queue.
type Dispatcher struct {
	sender  Sender
	queue   chan *job
	done    chan struct{}
	logger  *log.Logger
	wg      sync.WaitGroup
	mu      sync.Mutex
	closed  bool
	workers int
	timeout time.Duration
	backoff func(attempt int) time.Duration
}

type job struct {
	msg *Message
}

// NewDispatcher starts a dispatcher with the given worker pool size.
func NewDispatcher(sender Sender, workers int) *Dispatcher {
	if workers <= 0 {
		workers = 4
	}
	d := &Dispatcher{
		sender:  sender,
		queue:   make(chan *job, 1000),
		done:    make(chan struct{}),
		logger:  log.New(log.Writer(), "[NOTIFY] ", log.LstdFlags),
		workers: workers,
		timeout: 10 * time.Second,
		backoff: func(attempt int) time.Duration {
			return time.Duration(attempt*attempt) * time.Second
		},
	}

	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}

	return d
}

// Notify enqueues a message. Never blocks: when the queue is full the
// message is dropped with a log line. After Shutdown it is a no-op.
func (d *Dispatcher) Notify(m Message) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	if m.Recipient == "" {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	select {
	case d.queue <- &job{msg: &m}:
	default:
		d.logger.Printf("⚠️  Notification queue full, dropping %s (%s)", m.ID, m.Template)
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()

	for j := range d.queue {
		d.deliver(j)
	}
}

// deliver attempts a message up to maxAttempts times with exponential
// backoff. A shutdown aborts the backoff wait.
func (d *Dispatcher) deliver(j *job) {
	subject, body := Render(j.msg.Template, j.msg.Data)

	for attempt := 1; ; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		err := d.sender.Send(ctx, j.msg.TenantID, j.msg.Recipient, subject, body)
		cancel()

		if err == nil {
			d.logger.Printf("✅ Notification delivered: %s (%s)", j.msg.ID, j.msg.Template)
			return
		}

		d.logger.Printf("❌ Notification delivery failed: %s (%s) attempt %d: %v",
			j.msg.ID, j.msg.Template, attempt, err)
		if attempt >= maxAttempts {
			return
		}

		select {
		case <-time.After(d.backoff(attempt)):
		case <-d.done:
			return
		}
	}
}

// Shutdown stops intake, drains the queue and waits for the workers.
// Pending retry waits are cut short.
func (d *Dispatcher) Shutdown() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	close(d.done)
	d.wg.Wait()
}
