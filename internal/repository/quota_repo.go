package repository

import (
	"context"
	"fmt"

	"reward_engine/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const quotaColumns = `user_id, total_views, remaining_views, next_reward_in, rewards_earned_today, can_watch_more, created_at, updated_at`

type QuotaRepository struct {
	db *pgxpool.Pool
}

func NewQuotaRepository(db *pgxpool.Pool) *QuotaRepository {
	return &QuotaRepository{db: db}
}

// GetOrCreate returns the user's row, inserting fresh first when none exists.
func (r *QuotaRepository) GetOrCreate(ctx context.Context, fresh domain.DailyQuota) (*domain.DailyQuota, error) {
	if err := insertIfMissing(ctx, r.db, fresh); err != nil {
		return nil, err
	}

	q, err := scanQuota(r.db.QueryRow(ctx,
		`SELECT `+quotaColumns+` FROM daily_quotas WHERE user_id = $1`,
		fresh.UserID,
	))
	if err != nil {
		return nil, fmt.Errorf("get daily quota: %w", translate(err))
	}
	return q, nil
}

// UpdateWithTx locks the user's row (creating it from fresh if needed), applies
// mutate and writes the result back. A mutate error aborts without writing.
func (r *QuotaRepository) UpdateWithTx(ctx context.Context, tx pgx.Tx, fresh domain.DailyQuota, mutate func(*domain.DailyQuota) error) (*domain.DailyQuota, error) {
	if err := insertIfMissing(ctx, tx, fresh); err != nil {
		return nil, err
	}

	q, err := scanQuota(tx.QueryRow(ctx,
		`SELECT `+quotaColumns+` FROM daily_quotas WHERE user_id = $1 FOR UPDATE`,
		fresh.UserID,
	))
	if err != nil {
		return nil, fmt.Errorf("lock daily quota: %w", translate(err))
	}

	if err := mutate(q); err != nil {
		return nil, err
	}

	err = tx.QueryRow(ctx,
		`UPDATE daily_quotas
		 SET total_views = $2, remaining_views = $3, next_reward_in = $4,
		     rewards_earned_today = $5, can_watch_more = $6, updated_at = NOW()
		 WHERE user_id = $1
		 RETURNING updated_at`,
		q.UserID, q.TotalViews, q.RemainingViews, q.NextRewardIn, q.RewardsEarnedToday, q.CanWatchMore,
	).Scan(&q.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("update daily quota: %w", translate(err))
	}
	return q, nil
}

// ResetWithTx overwrites the user's counters with fresh, creating the row if needed.
func (r *QuotaRepository) ResetWithTx(ctx context.Context, tx pgx.Tx, fresh domain.DailyQuota) (*domain.DailyQuota, error) {
	q, err := scanQuota(tx.QueryRow(ctx,
		`INSERT INTO daily_quotas (user_id, total_views, remaining_views, next_reward_in, rewards_earned_today, can_watch_more)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (user_id) DO UPDATE SET
		     total_views = EXCLUDED.total_views,
		     remaining_views = EXCLUDED.remaining_views,
		     next_reward_in = EXCLUDED.next_reward_in,
		     rewards_earned_today = EXCLUDED.rewards_earned_today,
		     can_watch_more = EXCLUDED.can_watch_more,
		     updated_at = NOW()
		 RETURNING `+quotaColumns,
		fresh.UserID, fresh.TotalViews, fresh.RemainingViews, fresh.NextRewardIn, fresh.RewardsEarnedToday, fresh.CanWatchMore,
	))
	if err != nil {
		return nil, fmt.Errorf("reset daily quota: %w", translate(err))
	}
	return q, nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertIfMissing(ctx context.Context, db execer, fresh domain.DailyQuota) error {
	_, err := db.Exec(ctx,
		`INSERT INTO daily_quotas (user_id, total_views, remaining_views, next_reward_in, rewards_earned_today, can_watch_more)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (user_id) DO NOTHING`,
		fresh.UserID, fresh.TotalViews, fresh.RemainingViews, fresh.NextRewardIn, fresh.RewardsEarnedToday, fresh.CanWatchMore,
	)
	if err != nil {
		return fmt.Errorf("create daily quota: %w", translate(err))
	}
	return nil
}

func scanQuota(row pgx.Row) (*domain.DailyQuota, error) {
	var q domain.DailyQuota
	if err := row.Scan(
		&q.UserID,
		&q.TotalViews,
		&q.RemainingViews,
		&q.NextRewardIn,
		&q.RewardsEarnedToday,
		&q.CanWatchMore,
		&q.CreatedAt,
		&q.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &q, nil
}
