package models

import (
	"time"
)

// InitialFreeCredits is the balance a brand-new account is seeded with.
const InitialFreeCredits = 3

// Account is the per-user credit balance. UserID comes from the identity
// provider and never changes.
type Account struct {
	UserID    string    `json:"user_id"`
	Credits   int       `json:"credits"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
