package repository

import (
	"context"
	"fmt"

	"reward_engine/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type AdViewRepository struct {
	db *pgxpool.Pool
}

func NewAdViewRepository(db *pgxpool.Pool) *AdViewRepository {
	return &AdViewRepository{db: db}
}

func (r *AdViewRepository) RecordAdView(ctx context.Context, v *domain.AdView) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}

	err := r.db.QueryRow(ctx,
		`INSERT INTO ad_view_counts (id, user_id, advertisement_id)
		 VALUES ($1, $2, $3)
		 RETURNING created_at`,
		v.ID, v.UserID, v.AdvertisementID,
	).Scan(&v.CreatedAt)
	if err != nil {
		return fmt.Errorf("record ad view: %w", translate(err))
	}
	return nil
}

// CountByUser is used by reporting and tests.
func (r *AdViewRepository) CountByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	var n int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM ad_view_counts WHERE user_id = $1`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count ad views: %w", translate(err))
	}
	return n, nil
}
