package domain

import (
	"time"

	"github.com/google/uuid"
)

// Coin journal entry types
const (
	TransactionTypeTreasureBox = "treasure_box"
)

// Transaction is one row of the coin journal written next to every balance credit.
type Transaction struct {
	ID        int64                  `db:"id" json:"id"`
	UserID    uuid.UUID              `db:"user_id" json:"user_id"`
	Type      string                 `db:"type" json:"type"`
	Amount    int64                  `db:"amount" json:"amount"`
	Meta      map[string]interface{} `db:"meta" json:"meta,omitempty"`
	CreatedAt time.Time              `db:"created_at" json:"created_at"`
}
