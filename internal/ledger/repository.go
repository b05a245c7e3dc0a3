package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aipainter/backend/internal/models"
)

// Repository is the Postgres-backed Store.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Store = (*Repository)(nil)

// EnsureAccount inserts the account if absent. Concurrent callers serialize on
// the primary key; the loser sees no returned row and reads the winner's.
func (r *Repository) EnsureAccount(ctx context.Context, userID string, initial int) (*models.Account, bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback(ctx)

	var a models.Account
	err = tx.QueryRow(ctx, `
		INSERT INTO accounts (user_id, credits)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO NOTHING
		RETURNING user_id, credits, created_at, updated_at
	`, userID, initial).Scan(&a.UserID, &a.Credits, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		if err := tx.Rollback(ctx); err != nil {
			return nil, false, err
		}
		existing, err := r.GetAccount(ctx, userID)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("insert account: %w", err)
	}

	if initial > 0 {
		if err := insertEntry(ctx, tx, userID, nil, models.CreditEntrySignupBonus, initial, a.Credits); err != nil {
			return nil, false, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, false, err
	}
	return &a, true, nil
}

func (r *Repository) GetAccount(ctx context.Context, userID string) (*models.Account, error) {
	var a models.Account
	err := r.pool.QueryRow(ctx, `
		SELECT user_id, credits, created_at, updated_at
		FROM accounts WHERE user_id = $1
	`, userID).Scan(&a.UserID, &a.Credits, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// DebitCredits re-checks the balance inside the UPDATE itself, so two callers
// racing on a balance of 1 cannot both succeed.
func (r *Repository) DebitCredits(ctx context.Context, userID string, amount int, entryType string) (int, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	var newBalance int
	err = tx.QueryRow(ctx, `
		UPDATE accounts SET credits = credits - $1, updated_at = now()
		WHERE user_id = $2 AND credits >= $1
		RETURNING credits
	`, amount, userID).Scan(&newBalance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrInsufficientCredits
	}
	if err != nil {
		return 0, fmt.Errorf("debit credits: %w", err)
	}
	if err := insertEntry(ctx, tx, userID, nil, entryType, -amount, newBalance); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return newBalance, nil
}

// GrantCredits records the payment id and increments the balance in one
// transaction. A payment id seen before leaves the balance untouched.
func (r *Repository) GrantCredits(ctx context.Context, g Grant) (int, error) {
	if g.Credits <= 0 {
		return 0, ErrInvalidAmount
	}
	if g.PaymentID == "" {
		return 0, ErrMissingPaymentID
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		INSERT INTO processed_payments (payment_id, user_id, price_id, credits)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (payment_id) DO NOTHING
	`, g.PaymentID, g.UserID, g.PriceID, g.Credits)
	if err != nil {
		return 0, fmt.Errorf("record payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return 0, ErrPaymentAlreadyApplied
	}

	var newBalance int
	err = tx.QueryRow(ctx, `
		INSERT INTO accounts (user_id, credits)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE
		SET credits = accounts.credits + EXCLUDED.credits, updated_at = now()
		RETURNING credits
	`, g.UserID, g.Credits).Scan(&newBalance)
	if err != nil {
		return 0, fmt.Errorf("grant credits: %w", err)
	}
	paymentID := g.PaymentID
	if err := insertEntry(ctx, tx, g.UserID, &paymentID, models.CreditEntryPurchase, g.Credits, newBalance); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return newBalance, nil
}

func (r *Repository) ListEntries(ctx context.Context, userID string, limit int) ([]*models.CreditLedger, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, payment_id, entry_type, amount, balance_after, created_at
		FROM credit_ledger WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []*models.CreditLedger{}
	for rows.Next() {
		var c models.CreditLedger
		if err := rows.Scan(&c.ID, &c.UserID, &c.PaymentID, &c.EntryType, &c.Amount, &c.BalanceAfter, &c.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &c)
	}
	return list, rows.Err()
}

func insertEntry(ctx context.Context, tx pgx.Tx, userID string, paymentID *string, entryType string, amount, balanceAfter int) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO credit_ledger (id, user_id, payment_id, entry_type, amount, balance_after)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, uuid.New(), userID, paymentID, entryType, amount, balanceAfter)
	if err != nil {
		return fmt.Errorf("insert %s entry: %w", entryType, err)
	}
	return nil
}
