package kafka

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Domenick1991/airreservations/internal/metrics"
	"github.com/sirupsen/logrus"
)

var (
	ErrPublishBufferFull = errors.New("publish buffer is full")
	ErrPublisherClosed   = errors.New("publisher is closed")
)

type RetryingPublisher interface {
	PublishWithRetry(ctx context.Context, topic, key string, payload interface{}, maxRetries int) error
}

type outbound struct {
	topic   string
	key     string
	payload interface{}
}

// AsyncPublisher queues events in memory and writes them from a single
// goroutine. Publish never blocks; a full queue drops the event.
type AsyncPublisher struct {
	next    RetryingPublisher
	queue   chan outbound
	timeout time.Duration
	retries int
	log     *logrus.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewAsyncPublisher(next RetryingPublisher, buffer int, timeout time.Duration, log *logrus.Logger) *AsyncPublisher {
	if buffer <= 0 {
		buffer = 1
	}
	return &AsyncPublisher{
		next:    next,
		queue:   make(chan outbound, buffer),
		timeout: timeout,
		retries: 3,
		log:     log,
	}
}

func (p *AsyncPublisher) Start() {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for msg := range p.queue {
			p.send(msg)
		}
	}()
}

func (p *AsyncPublisher) send(msg outbound) {
	ctx := context.Background()
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	if err := p.next.PublishWithRetry(ctx, msg.topic, msg.key, msg.payload, p.retries); err != nil {
		metrics.IncKafkaError("publisher", "send")
		p.log.WithError(err).WithFields(logrus.Fields{"topic": msg.topic, "key": msg.key}).Error("event lost after retries")
	}
}

// Publish enqueues the event. ctx is not used for the write itself: the
// caller's request may finish long before the broker acknowledges.
func (p *AsyncPublisher) Publish(_ context.Context, topic, key string, payload interface{}) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPublisherClosed
	}

	select {
	case p.queue <- outbound{topic: topic, key: key, payload: payload}:
		return nil
	default:
		metrics.IncPublishDropped()
		p.log.WithFields(logrus.Fields{"topic": topic, "key": key}).Warn("publish buffer full, event dropped")
		return ErrPublishBufferFull
	}
}

// Close stops accepting events and waits for the queue to drain.
func (p *AsyncPublisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
}
