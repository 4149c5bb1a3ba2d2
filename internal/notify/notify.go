// Package notify delivers post-commit domain events to an external sink.
// Services publish after the authoritative state transition has committed;
// delivery is asynchronous and its failure never aborts the operation that
// triggered it.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Kind identifies the domain event being delivered.
type Kind string

const (
	KindEventPublished        Kind = "event.published"
	KindRegistrationCreated   Kind = "registration.created"
	KindRegistrationCancelled Kind = "registration.cancelled"
	KindPaymentApproved       Kind = "payment.approved"
	KindPaymentRejected       Kind = "payment.rejected"
	KindAttendanceMarked      Kind = "attendance.marked"
)

// Message is one domain event addressed to one user.
type Message struct {
	Kind           Kind
	UserID         string
	EventID        string
	RegistrationID string
	Title          string
	Body           string
	At             time.Time
}

// Sink is the external notification collaborator. Implementations must not
// block for long; the dispatcher calls them from a single worker.
type Sink interface {
	Notify(ctx context.Context, m Message) error
}

// LogSink writes notifications to the structured log. It stands in for the
// real email/webhook delivery service.
type LogSink struct {
	Log *logrus.Logger
}

func (s *LogSink) Notify(_ context.Context, m Message) error {
	s.Log.WithFields(logrus.Fields{
		"kind":            m.Kind,
		"user_id":         m.UserID,
		"event_id":        m.EventID,
		"registration_id": m.RegistrationID,
	}).Info(m.Title)
	return nil
}

// Dispatcher fans published messages out to the sink on a background worker.
// Publish never blocks the caller: when the buffer is full the message is
// dropped with a warning, matching the fire-and-forget contract.
type Dispatcher struct {
	sink Sink
	log  *logrus.Logger
	ch   chan Message
	once sync.Once
	wg   sync.WaitGroup
}

// NewDispatcher starts the delivery worker.
func NewDispatcher(sink Sink, log *logrus.Logger) *Dispatcher {
	d := &Dispatcher{sink: sink, log: log, ch: make(chan Message, 256)}
	d.wg.Add(1)
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for m := range d.ch {
		if err := d.sink.Notify(context.Background(), m); err != nil {
			d.log.WithError(err).WithField("kind", m.Kind).Warn("notification delivery failed")
		}
	}
}

// Publish queues a message for delivery. Safe on a nil dispatcher, which
// makes the notifier optional in tests.
func (d *Dispatcher) Publish(m Message) {
	if d == nil {
		return
	}
	if m.At.IsZero() {
		m.At = time.Now().UTC()
	}
	select {
	case d.ch <- m:
	default:
		d.log.WithField("kind", m.Kind).Warn("notification buffer full, dropping")
	}
}

// Close drains the queue and stops the worker.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.once.Do(func() { close(d.ch) })
	d.wg.Wait()
}
