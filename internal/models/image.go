package models

import (
	"time"

	"github.com/google/uuid"
)

// GeneratedImage is the durable record of one successful generation.
type GeneratedImage struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Prompt    string
	ImageURL  string
	CreatedAt time.Time
}

// CreditTransaction is one row of the credit audit trail. Each generation
// attempt has at most one debit and at most one refund.
type CreditTransaction struct {
	ID        int64
	AttemptID uuid.UUID
	UserID    uuid.UUID
	Kind      string
	Amount    int
	CreatedAt time.Time
}
