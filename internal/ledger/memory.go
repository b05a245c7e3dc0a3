package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aipainter/backend/internal/models"
)

// MemoryStore is an in-process Store. A single mutex stands in for the
// database's row-level atomicity, so it honours the same contract as
// Repository.
type MemoryStore struct {
	mu        sync.Mutex
	accounts  map[string]*models.Account
	entries   []*models.CreditLedger
	processed map[string]Grant
	now       func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:  make(map[string]*models.Account),
		processed: make(map[string]Grant),
		now:       time.Now,
	}
}

var _ Store = (*MemoryStore)(nil)

// Seed sets the balance for userID directly, creating the account if needed.
// It writes no ledger entry.
func (s *MemoryStore) Seed(userID string, credits int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.accounts[userID] = &models.Account{UserID: userID, Credits: credits, CreatedAt: now, UpdatedAt: now}
}

// Balance returns the current credits for userID, or -1 if no account exists.
func (s *MemoryStore) Balance(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[userID]
	if !ok {
		return -1
	}
	return a.Credits
}

func (s *MemoryStore) EnsureAccount(_ context.Context, userID string, initial int) (*models.Account, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.accounts[userID]; ok {
		cp := *a
		return &cp, false, nil
	}
	now := s.now()
	a := &models.Account{UserID: userID, Credits: initial, CreatedAt: now, UpdatedAt: now}
	s.accounts[userID] = a
	if initial > 0 {
		s.appendEntry(userID, nil, models.CreditEntrySignupBonus, initial, initial)
	}
	cp := *a
	return &cp, true, nil
}

func (s *MemoryStore) GetAccount(_ context.Context, userID string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[userID]
	if !ok {
		return nil, ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *MemoryStore) DebitCredits(_ context.Context, userID string, amount int, entryType string) (int, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[userID]
	if !ok || a.Credits < amount {
		return 0, ErrInsufficientCredits
	}
	a.Credits -= amount
	a.UpdatedAt = s.now()
	s.appendEntry(userID, nil, entryType, -amount, a.Credits)
	return a.Credits, nil
}

func (s *MemoryStore) GrantCredits(_ context.Context, g Grant) (int, error) {
	if g.Credits <= 0 {
		return 0, ErrInvalidAmount
	}
	if g.PaymentID == "" {
		return 0, ErrMissingPaymentID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, seen := s.processed[g.PaymentID]; seen {
		return 0, ErrPaymentAlreadyApplied
	}
	s.processed[g.PaymentID] = g
	now := s.now()
	a, ok := s.accounts[g.UserID]
	if !ok {
		a = &models.Account{UserID: g.UserID, CreatedAt: now}
		s.accounts[g.UserID] = a
	}
	a.Credits += g.Credits
	a.UpdatedAt = now
	paymentID := g.PaymentID
	s.appendEntry(g.UserID, &paymentID, models.CreditEntryPurchase, g.Credits, a.Credits)
	return a.Credits, nil
}

func (s *MemoryStore) ListEntries(_ context.Context, userID string, limit int) ([]*models.CreditLedger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*models.CreditLedger{}
	for i := len(s.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if e := s.entries[i]; e.UserID == userID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

// appendEntry must be called with mu held.
func (s *MemoryStore) appendEntry(userID string, paymentID *string, entryType string, amount, balanceAfter int) {
	s.entries = append(s.entries, &models.CreditLedger{
		ID:           uuid.New(),
		UserID:       userID,
		PaymentID:    paymentID,
		EntryType:    entryType,
		Amount:       amount,
		BalanceAfter: balanceAfter,
		CreatedAt:    s.now(),
	})
}
