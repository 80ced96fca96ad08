package domain

import (
	"time"

	"github.com/google/uuid"
)

// TreasureBox is a sealed reward. IsOpened is true exactly when OpenedAt is set.
type TreasureBox struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	UserID       uuid.UUID  `db:"user_id" json:"user_id"`
	CoinsAwarded int64      `db:"coins_awarded" json:"coins_awarded"`
	EarnedAt     time.Time  `db:"earned_at" json:"earned_at"`
	OpenedAt     *time.Time `db:"opened_at" json:"opened_at,omitempty"`
	IsOpened     bool       `db:"is_opened" json:"is_opened"`
}

// RewardPolicy is the inclusive coin range a box is drawn from.
type RewardPolicy struct {
	MinCoins int64
	MaxCoins int64
}

// BoxRetention decides what a daily reset does with the user's boxes.
type BoxRetention string

const (
	// BoxRetentionDeleteAll drops every box, opened or not.
	BoxRetentionDeleteAll BoxRetention = "delete_all"
	// BoxRetentionKeepUnopened drops opened boxes only, unclaimed rewards survive the reset.
	BoxRetentionKeepUnopened BoxRetention = "keep_unopened"
)

// OpenResult is returned after a box has been opened and paid out.
type OpenResult struct {
	Box        *TreasureBox `json:"box"`
	NewBalance int64        `json:"coins"`
}
