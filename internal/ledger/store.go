package ledger

import (
	"context"
	"errors"

	"github.com/aipainter/backend/internal/models"
)

var (
	// ErrAccountNotFound is returned when no account exists for the user.
	ErrAccountNotFound = errors.New("ledger: account not found")
	// ErrInsufficientCredits is returned when a debit would drive the balance negative.
	ErrInsufficientCredits = errors.New("ledger: insufficient credits")
	// ErrPaymentAlreadyApplied is returned when a grant's payment id was seen before.
	ErrPaymentAlreadyApplied = errors.New("ledger: payment already applied")
	// ErrInvalidAmount is returned for non-positive debit or grant amounts.
	ErrInvalidAmount = errors.New("ledger: amount must be positive")
	// ErrMissingPaymentID is returned for grants without a payment id.
	ErrMissingPaymentID = errors.New("ledger: grant requires a payment id")
)

// Grant is a credit increment caused by a confirmed payment.
type Grant struct {
	UserID    string
	PaymentID string
	PriceID   string
	Credits   int
}

// Store is the durable per-user credit ledger. Every mutation is atomic with
// respect to concurrent callers; none is a read-modify-write.
type Store interface {
	// EnsureAccount creates the account with initial credits if it does not
	// exist. created reports whether this call created it.
	EnsureAccount(ctx context.Context, userID string, initial int) (acc *models.Account, created bool, err error)
	GetAccount(ctx context.Context, userID string) (*models.Account, error)
	// DebitCredits subtracts amount only if the balance covers it at write time.
	DebitCredits(ctx context.Context, userID string, amount int, entryType string) (newBalance int, err error)
	// GrantCredits adds the grant once per payment id.
	GrantCredits(ctx context.Context, g Grant) (newBalance int, err error)
	ListEntries(ctx context.Context, userID string, limit int) ([]*models.CreditLedger, error)
}
