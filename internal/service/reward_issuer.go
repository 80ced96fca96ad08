package service

import (
	"context"
	"errors"
	"log/slog"

	"reward_engine/internal/domain"
	"reward_engine/internal/logger"
	"reward_engine/internal/metrics"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// RewardIssuer creates treasure boxes and pays them out exactly once.
type RewardIssuer struct {
	tx          Transactor
	boxes       BoxStore
	balances    BalanceLedger
	clock       Clock
	rng         RNG
	policy      domain.RewardPolicy
	maxAttempts int
	log         *slog.Logger
}

func NewRewardIssuer(tx Transactor, boxes BoxStore, balances BalanceLedger, clock Clock, rng RNG, policy domain.RewardPolicy, maxAttempts int) *RewardIssuer {
	return &RewardIssuer{
		tx:          tx,
		boxes:       boxes,
		balances:    balances,
		clock:       clock,
		rng:         rng,
		policy:      policy,
		maxAttempts: maxAttempts,
		log:         logger.Component("reward_issuer"),
	}
}

// Award inserts a new unopened box for userID inside the caller's transaction.
func (i *RewardIssuer) Award(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*domain.TreasureBox, error) {
	b := &domain.TreasureBox{
		ID:           uuid.New(),
		UserID:       userID,
		CoinsAwarded: i.rng.IntInRange(i.policy.MinCoins, i.policy.MaxCoins),
		EarnedAt:     i.clock.Now(),
	}
	if err := i.boxes.InsertWithTx(ctx, tx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// Open credits the box's coins to its owner and marks it opened, both or neither.
func (i *RewardIssuer) Open(ctx context.Context, userID, boxID uuid.UUID) (*domain.OpenResult, error) {
	var res *domain.OpenResult

	err := retryOnConflict(ctx, "open_box", i.maxAttempts, func() error {
		return i.tx.WithinTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
			b, err := i.boxes.GetOwnedForUpdateWithTx(ctx, tx, userID, boxID)
			if err != nil {
				return err
			}
			if b.IsOpened {
				return domain.ErrBoxAlreadyOpened
			}

			balance, err := i.balances.CreditWithTx(ctx, tx, userID, b.CoinsAwarded, map[string]interface{}{
				"box_id": b.ID.String(),
			})
			if err != nil {
				return err
			}

			opened, err := i.boxes.MarkOpenedWithTx(ctx, tx, b.ID, i.clock.Now())
			if err != nil {
				return err
			}

			res = &domain.OpenResult{Box: opened, NewBalance: balance}
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, domain.ErrBoxNotFound) || errors.Is(err, domain.ErrBoxAlreadyOpened) {
			i.log.Debug("open rejected", "user_id", userID, "box_id", boxID, "error", err)
		} else {
			i.log.Error("open box failed", "user_id", userID, "box_id", boxID, "error", err)
		}
		return nil, err
	}

	metrics.BoxesOpened.Inc()
	metrics.CoinsCredited.Add(float64(res.Box.CoinsAwarded))
	i.log.Info("treasure box opened", "user_id", userID, "box_id", boxID, "coins", res.Box.CoinsAwarded, "balance", res.NewBalance)
	return res, nil
}

// ListByUser returns the user's boxes, newest first.
func (i *RewardIssuer) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.TreasureBox, error) {
	return i.boxes.ListByUser(ctx, userID)
}
