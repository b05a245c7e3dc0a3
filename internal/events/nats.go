package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/aipainter/backend/internal/payments"
)

const (
	SubjectPaymentCompleted = "payments.completed"
	SubjectCustomerCreated  = "customers.created"

	StreamName   = "PAINTER_EVENTS"
	ConsumerName = "painter"

	ackWait    = 30 * time.Second
	maxDeliver = 20
)

var errMalformedMessage = errors.New("malformed message")

// Enqueuer is implemented by *Queue.
type Enqueuer interface {
	EnqueuePayment(ctx context.Context, d payments.Delivery) error
	EnqueueProvisioned(ctx context.Context, userID string) error
}

// ackMsg is the subset of jetstream.Msg the bridge settles.
type ackMsg interface {
	Subject() string
	Data() []byte
	Ack() error
	Nak() error
	Term() error
}

// Bridge moves bus messages into the durable job queue. Replicas share one
// durable consumer, so each message is handled by a single replica and is
// only acked once the job insert has committed.
type Bridge struct {
	js    jetstream.JetStream
	queue Enqueuer
	log   *slog.Logger
}

func NewBridge(js jetstream.JetStream, queue Enqueuer, log *slog.Logger) *Bridge {
	if log == nil {
		log = slog.Default()
	}
	return &Bridge{js: js, queue: queue, log: log}
}

// Start ensures the stream and consumer exist, consumes until ctx is
// cancelled, then stops.
func (b *Bridge) Start(ctx context.Context) error {
	stream, err := b.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     StreamName,
		Subjects: []string{SubjectPaymentCompleted, SubjectCustomerCreated},
	})
	if err != nil {
		return fmt.Errorf("ensure stream %s: %w", StreamName, err)
	}
	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:    ConsumerName,
		AckPolicy:  jetstream.AckExplicitPolicy,
		AckWait:    ackWait,
		MaxDeliver: maxDeliver,
	})
	if err != nil {
		return fmt.Errorf("ensure consumer %s: %w", ConsumerName, err)
	}
	cc, err := cons.Consume(func(m jetstream.Msg) { b.handle(ctx, m) })
	if err != nil {
		return fmt.Errorf("consume %s: %w", StreamName, err)
	}
	b.log.Info("nats bridge running", "stream", StreamName, "consumer", ConsumerName)

	<-ctx.Done()
	b.log.Info("nats bridge shutting down")
	cc.Stop()
	return nil
}

// handle settles m: Ack once enqueued, Nak on a transient failure so the
// server redelivers, Term on input that can never succeed.
func (b *Bridge) handle(ctx context.Context, m ackMsg) {
	var err error
	switch m.Subject() {
	case SubjectPaymentCompleted:
		err = b.handlePayment(ctx, m.Data())
	case SubjectCustomerCreated:
		err = b.handleCustomer(ctx, m.Data())
	default:
		err = fmt.Errorf("%w: unexpected subject %q", errMalformedMessage, m.Subject())
	}

	switch {
	case err == nil:
		err = m.Ack()
	case errors.Is(err, errMalformedMessage), errors.Is(err, ErrMissingUserID):
		b.log.Error("nats message rejected", "subject", m.Subject(), "error", err)
		err = m.Term()
	default:
		b.log.Warn("nats message enqueue failed, requesting redelivery", "subject", m.Subject(), "error", err)
		err = m.Nak()
	}
	if err != nil {
		b.log.Error("nats message settle failed", "subject", m.Subject(), "error", err)
	}
}

func (b *Bridge) handlePayment(ctx context.Context, data []byte) error {
	var d payments.Delivery
	if err := json.Unmarshal(data, &d); err != nil {
		return fmt.Errorf("%w: decode payment: %w", errMalformedMessage, err)
	}
	return b.queue.EnqueuePayment(ctx, d)
}

func (b *Bridge) handleCustomer(ctx context.Context, data []byte) error {
	var msg AccountProvisionedArgs
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("%w: decode customer: %w", errMalformedMessage, err)
	}
	return b.queue.EnqueueProvisioned(ctx, msg.UserID)
}
