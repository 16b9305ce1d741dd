package mail

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pagefeedhq/pagefeed/pkg/metrics"
)

// ErrQueueFull is returned when the dispatch buffer cannot accept more messages.
var ErrQueueFull = errors.New("mail: dispatch queue full")

// ErrDispatcherClosed is returned when enqueueing after Close.
var ErrDispatcherClosed = errors.New("mail: dispatcher closed")

const (
	defaultQueueSize   = 64
	defaultMaxAttempts = 3
	defaultRetryDelay  = 2 * time.Second
	defaultSendTimeout = 15 * time.Second
)

// DispatcherOption customises the Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithQueueSize overrides the dispatch buffer capacity.
func WithQueueSize(size int) DispatcherOption {
	return func(d *Dispatcher) {
		if size > 0 {
			d.queueSize = size
		}
	}
}

// WithMaxAttempts overrides how many delivery attempts are made per message.
func WithMaxAttempts(attempts int) DispatcherOption {
	return func(d *Dispatcher) {
		if attempts > 0 {
			d.maxAttempts = attempts
		}
	}
}

// WithRetryDelay overrides the delay between delivery attempts.
func WithRetryDelay(delay time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if delay > 0 {
			d.retryDelay = delay
		}
	}
}

// WithDispatcherLogger injects a logger for delivery outcomes.
func WithDispatcherLogger(log *zap.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if log != nil {
			d.log = log
		}
	}
}

// Dispatcher delivers messages in the background, decoupled from the HTTP
// request lifecycle. Enqueue succeeds once the message is accepted into the
// buffer; delivery retries happen on the worker goroutine with its own policy.
type Dispatcher struct {
	mailer      Mailer
	queue       chan Message
	queueSize   int
	maxAttempts int
	retryDelay  time.Duration
	log         *zap.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher starts a background worker draining the queue through the mailer.
func NewDispatcher(mailer Mailer, opts ...DispatcherOption) (*Dispatcher, error) {
	if mailer == nil {
		return nil, errors.New("mail: mailer is required")
	}

	d := &Dispatcher{
		mailer:      mailer,
		queueSize:   defaultQueueSize,
		maxAttempts: defaultMaxAttempts,
		retryDelay:  defaultRetryDelay,
		log:         zap.NewNop(),
	}

	for _, opt := range opts {
		opt(d)
	}

	d.queue = make(chan Message, d.queueSize)
	d.wg.Add(1)
	go d.run()

	return d, nil
}

// Enqueue hands a message to the background worker. The caller's contract
// ends here: a nil return means accepted, not delivered.
func (d *Dispatcher) Enqueue(msg Message) error {
	// The closed check and the send must happen under one lock, or a
	// concurrent Close could close the queue between them.
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrDispatcherClosed
	}

	select {
	case d.queue <- msg:
		return nil
	default:
		metrics.MailDispatches.WithLabelValues("dropped").Inc()
		return ErrQueueFull
	}
}

// Close stops accepting new messages and waits for in-flight deliveries.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	alreadyClosed := d.closed
	d.closed = true
	d.mu.Unlock()

	if !alreadyClosed {
		close(d.queue)
	}
	d.wg.Wait()
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for msg := range d.queue {
		d.deliver(msg)
	}
}

func (d *Dispatcher) deliver(msg Message) {
	var lastErr error

	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), defaultSendTimeout)
		err := d.mailer.Send(ctx, msg)
		cancel()

		if err == nil {
			metrics.MailDispatches.WithLabelValues("sent").Inc()
			return
		}
		if errors.Is(err, ErrSMTPDisabled) {
			// Nothing to retry when delivery is switched off.
			metrics.MailDispatches.WithLabelValues("dropped").Inc()
			return
		}

		lastErr = err
		if attempt < d.maxAttempts {
			time.Sleep(d.retryDelay)
		}
	}

	metrics.MailDispatches.WithLabelValues("failed").Inc()
	d.log.Warn("mail delivery failed",
		zap.Strings("to", redactAddresses(msg.To)),
		zap.String("subject", msg.Subject),
		zap.Int("attempts", d.maxAttempts),
		zap.Error(lastErr),
	)
}

// redactAddresses keeps only the domain part of recipient addresses for logs.
func redactAddresses(addresses []string) []string {
	out := make([]string, len(addresses))
	for i, addr := range addresses {
		at := -1
		for j := range addr {
			if addr[j] == '@' {
				at = j
			}
		}
		if at == -1 {
			out[i] = "***"
			continue
		}
		out[i] = "***" + addr[at:]
	}
	return out
}
