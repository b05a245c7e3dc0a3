package events

import (
	"context"
	"time"

	"github.com/riverqueue/river"

	"github.com/aipainter/backend/internal/models"
	"github.com/aipainter/backend/internal/payments"
)

const (
	KindPaymentEvent       = "payment_event"
	KindAccountProvisioned = "account_provisioned"
)

// PaymentEventArgs carries one payment delivery into the reconciler.
type PaymentEventArgs struct {
	payments.Delivery
}

func (PaymentEventArgs) Kind() string { return KindPaymentEvent }

func (PaymentEventArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{MaxAttempts: 10}
}

type AccountProvisionedArgs struct {
	UserID string `json:"user_id"`
}

func (AccountProvisionedArgs) Kind() string { return KindAccountProvisioned }

// PaymentHandler is satisfied by *payments.Reconciler.
type PaymentHandler interface {
	HandlePaymentEvent(ctx context.Context, userID, paymentID string, ev models.PaymentEvent) error
}

// ProvisionHandler is satisfied by the accounts service.
type ProvisionHandler interface {
	HandleProvisioned(ctx context.Context, userID string) error
}

type PaymentEventWorker struct {
	river.WorkerDefaults[PaymentEventArgs]
	handler PaymentHandler
}

func NewPaymentEventWorker(h PaymentHandler) *PaymentEventWorker {
	return &PaymentEventWorker{handler: h}
}

// Work returns the reconciler's error as-is so River retries store failures.
func (w *PaymentEventWorker) Work(ctx context.Context, job *river.Job[PaymentEventArgs]) error {
	a := job.Args
	return w.handler.HandlePaymentEvent(ctx, a.UserID, a.PaymentID, a.Event)
}

func (w *PaymentEventWorker) Timeout(*river.Job[PaymentEventArgs]) time.Duration {
	return 30 * time.Second
}

type AccountProvisionedWorker struct {
	river.WorkerDefaults[AccountProvisionedArgs]
	handler ProvisionHandler
}

func NewAccountProvisionedWorker(h ProvisionHandler) *AccountProvisionedWorker {
	return &AccountProvisionedWorker{handler: h}
}

func (w *AccountProvisionedWorker) Work(ctx context.Context, job *river.Job[AccountProvisionedArgs]) error {
	return w.handler.HandleProvisioned(ctx, job.Args.UserID)
}

// Register adds both workers to workers.
func Register(workers *river.Workers, payments PaymentHandler, provisioning ProvisionHandler) {
	river.AddWorker(workers, NewPaymentEventWorker(payments))
	river.AddWorker(workers, NewAccountProvisionedWorker(provisioning))
}
