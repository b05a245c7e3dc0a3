package models

import (
	"time"

	"github.com/google/uuid"
)

// Credit ledger entry_type enums.
const (
	CreditEntrySignupBonus = "signup_bonus"
	CreditEntryPurchase    = "purchase"
	CreditEntryGeneration  = "generation"
)

type CreditLedger struct {
	ID           uuid.UUID `json:"id"`
	UserID       string    `json:"user_id"`
	PaymentID    *string   `json:"payment_id,omitempty"`
	EntryType    string    `json:"entry_type"`
	Amount       int       `json:"amount"`
	BalanceAfter int       `json:"balance_after"`
	CreatedAt    time.Time `json:"created_at"`
}
