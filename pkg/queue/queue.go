package queue

import (
	"github.com/sirupsen/logrus"
	"github.com/tkartasl/lease-ledger/pkg/models"
)

// Queue is the in-process buffer decoupling the synchronous payment path from
// the invalid-payment corrector. Delivery is at-least-once from the
// consumer's point of view; consumers are expected to be idempotent.
type Queue struct {
	events chan models.InvalidPayment
	log    *logrus.Logger
}

// New creates a Queue with the given buffer size.
func New(size int, log *logrus.Logger) *Queue {
	if size <= 0 {
		size = 64
	}
	return &Queue{
		events: make(chan models.InvalidPayment, size),
		log:    log,
	}
}

// Enqueue offers an event to the queue without blocking the request path.
// A full queue drops the event and reports false.
func (q *Queue) Enqueue(event models.InvalidPayment) bool {
	select {
	case q.events <- event:
		return true
	default:
		q.log.WithFields(logrus.Fields{"lease": event.Lease.ID, "payment": event.Payment.ID}).
			Warn("invalid-payment queue full, dropping event")
		return false
	}
}

// Events exposes the consumer side of the queue.
func (q *Queue) Events() <-chan models.InvalidPayment {
	return q.events
}

// Close stops the queue. Pending events are still delivered to the consumer.
func (q *Queue) Close() {
	close(q.events)
}
