package service

import (
	"context"
	"math/rand"
	"time"

	"reward_engine/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Clock is the time source for earned_at/opened_at stamps.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// RNG draws the coin amount of a new box.
type RNG interface {
	// IntInRange returns a uniform value in [min, max].
	IntInRange(min, max int64) int64
}

type MathRNG struct{}

func (MathRNG) IntInRange(min, max int64) int64 {
	if max <= min {
		return min
	}
	return min + rand.Int63n(max-min+1)
}

// Transactor runs fn inside one storage transaction. A non-nil error from fn
// rolls back everything fn wrote.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error
}

type QuotaStore interface {
	GetOrCreate(ctx context.Context, fresh domain.DailyQuota) (*domain.DailyQuota, error)
	UpdateWithTx(ctx context.Context, tx pgx.Tx, fresh domain.DailyQuota, mutate func(*domain.DailyQuota) error) (*domain.DailyQuota, error)
	ResetWithTx(ctx context.Context, tx pgx.Tx, fresh domain.DailyQuota) (*domain.DailyQuota, error)
}

type BoxStore interface {
	InsertWithTx(ctx context.Context, tx pgx.Tx, b *domain.TreasureBox) error
	GetOwnedForUpdateWithTx(ctx context.Context, tx pgx.Tx, userID, boxID uuid.UUID) (*domain.TreasureBox, error)
	MarkOpenedWithTx(ctx context.Context, tx pgx.Tx, boxID uuid.UUID, openedAt time.Time) (*domain.TreasureBox, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.TreasureBox, error)
	DeleteForUserWithTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, retention domain.BoxRetention) (int64, error)
}

// BalanceLedger credits the user's coin balance. It never debits.
type BalanceLedger interface {
	CreditWithTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int64, meta map[string]interface{}) (int64, error)
}

type AdViewRecorder interface {
	RecordAdView(ctx context.Context, v *domain.AdView) error
}
