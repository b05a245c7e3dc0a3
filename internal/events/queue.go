package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"

	"github.com/aipainter/backend/internal/payments"
)

var ErrMissingUserID = errors.New("events: user id is required")

// Inserter is the part of *river.Client used for enqueueing.
type Inserter interface {
	Insert(ctx context.Context, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error)
}

// Queue enqueues deliveries as River jobs.
type Queue struct {
	client Inserter
}

func NewQueue(client Inserter) *Queue {
	return &Queue{client: client}
}

var _ payments.Enqueuer = (*Queue)(nil)

func (q *Queue) EnqueuePayment(ctx context.Context, d payments.Delivery) error {
	if _, err := q.client.Insert(ctx, PaymentEventArgs{Delivery: d}, nil); err != nil {
		return fmt.Errorf("insert %s job for payment %s: %w", KindPaymentEvent, d.PaymentID, err)
	}
	return nil
}

func (q *Queue) EnqueueProvisioned(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrMissingUserID
	}
	if _, err := q.client.Insert(ctx, AccountProvisionedArgs{UserID: userID}, nil); err != nil {
		return fmt.Errorf("insert %s job for user %s: %w", KindAccountProvisioned, userID, err)
	}
	return nil
}
