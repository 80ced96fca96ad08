package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"reward_engine/internal/domain"
	"reward_engine/internal/logger"
	"reward_engine/internal/metrics"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const adViewWriteTimeout = 5 * time.Second

type LedgerConfig struct {
	Policy      domain.QuotaPolicy
	Retention   domain.BoxRetention
	MaxAttempts int
}

// QuotaLedger owns the daily quota rows: counting views, handing out boxes
// through the issuer and resetting at local midnight.
type QuotaLedger struct {
	tx      Transactor
	quotas  QuotaStore
	boxes   BoxStore
	issuer  *RewardIssuer
	adViews AdViewRecorder
	cfg     LedgerConfig
	log     *slog.Logger

	mu      sync.Mutex
	closed  bool
	pending sync.WaitGroup
}

// NewQuotaLedger wires the ledger. adViews may be nil, ad ids are then ignored.
func NewQuotaLedger(tx Transactor, quotas QuotaStore, boxes BoxStore, issuer *RewardIssuer, adViews AdViewRecorder, cfg LedgerConfig) *QuotaLedger {
	if cfg.Retention == "" {
		cfg.Retention = domain.BoxRetentionDeleteAll
	}
	return &QuotaLedger{
		tx:      tx,
		quotas:  quotas,
		boxes:   boxes,
		issuer:  issuer,
		adViews: adViews,
		cfg:     cfg,
		log:     logger.Component("quota_ledger"),
	}
}

// GetOrCreate returns the user's quota, creating the start-of-day row on first use.
func (l *QuotaLedger) GetOrCreate(ctx context.Context, userID uuid.UUID) (*domain.DailyQuota, error) {
	return l.quotas.GetOrCreate(ctx, l.cfg.Policy.Fresh(userID))
}

// RecordView counts one completed view and awards a box every ViewsPerReward
// views until MaxRewardsPerDay is reached. The quota update and the box
// insert commit together.
func (l *QuotaLedger) RecordView(ctx context.Context, userID uuid.UUID, adID *uuid.UUID) (*domain.ViewResult, error) {
	var res *domain.ViewResult

	err := retryOnConflict(ctx, "record_view", l.cfg.MaxAttempts, func() error {
		return l.tx.WithinTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
			var box *domain.TreasureBox

			q, err := l.quotas.UpdateWithTx(ctx, tx, l.cfg.Policy.Fresh(userID), func(q *domain.DailyQuota) error {
				if !q.CanWatchMore || q.RemainingViews <= 0 {
					return domain.ErrQuotaExhausted
				}

				q.TotalViews++
				q.RemainingViews--
				q.NextRewardIn--

				if q.NextRewardIn <= 0 && q.RewardsEarnedToday < l.cfg.Policy.MaxRewardsPerDay {
					b, err := l.issuer.Award(ctx, tx, userID)
					if err != nil {
						return err
					}
					box = b
					q.NextRewardIn = l.cfg.Policy.ViewsPerReward
					q.RewardsEarnedToday++
				}

				if q.RemainingViews <= 0 {
					q.CanWatchMore = false
				}
				return nil
			})
			if err != nil {
				return err
			}

			res = &domain.ViewResult{Quota: q, Awarded: box != nil, Box: box}
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, domain.ErrQuotaExhausted) {
			metrics.ViewsRejected.WithLabelValues("quota_exhausted").Inc()
			l.log.Debug("view rejected", "user_id", userID, "error", err)
		} else {
			metrics.ViewsRejected.WithLabelValues("error").Inc()
			l.log.Error("record view failed", "user_id", userID, "error", err)
		}
		return nil, err
	}

	metrics.ViewsRecorded.Inc()
	if res.Awarded {
		metrics.BoxesAwarded.Inc()
		l.log.Info("treasure box awarded", "user_id", userID, "box_id", res.Box.ID, "coins", res.Box.CoinsAwarded)
	}

	if adID != nil {
		l.recordAdView(userID, *adID)
	}
	return res, nil
}

// Reset puts the user back at the start of the day and removes boxes per the
// retention policy. Running it twice leaves the same state.
func (l *QuotaLedger) Reset(ctx context.Context, userID uuid.UUID) (*domain.DailyQuota, error) {
	var (
		res     *domain.DailyQuota
		removed int64
	)

	err := retryOnConflict(ctx, "reset", l.cfg.MaxAttempts, func() error {
		return l.tx.WithinTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
			q, err := l.quotas.ResetWithTx(ctx, tx, l.cfg.Policy.Fresh(userID))
			if err != nil {
				return err
			}
			n, err := l.boxes.DeleteForUserWithTx(ctx, tx, userID, l.cfg.Retention)
			if err != nil {
				return err
			}
			res, removed = q, n
			return nil
		})
	})
	switch {
	case err == nil:
		metrics.QuotaResets.WithLabelValues("ok").Inc()
		logger.FromContext(ctx, l.log).Debug("quota reset", "user_id", userID, "boxes_removed", removed)
		return res, nil
	case errors.Is(err, domain.ErrUserNotFound):
		metrics.QuotaResets.WithLabelValues("user_not_found").Inc()
	default:
		metrics.QuotaResets.WithLabelValues("error").Inc()
	}
	return nil, err
}

// Close waits for ad-view writes still in flight. Later ad ids are dropped.
func (l *QuotaLedger) Close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()

	l.pending.Wait()
}

func (l *QuotaLedger) recordAdView(userID, adID uuid.UUID) {
	if l.adViews == nil {
		return
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		l.log.Warn("ledger closed, ad view dropped", "user_id", userID, "ad_id", adID)
		return
	}
	l.pending.Add(1)
	l.mu.Unlock()

	go func() {
		defer l.pending.Done()

		ctx, cancel := context.WithTimeout(context.Background(), adViewWriteTimeout)
		defer cancel()

		v := &domain.AdView{UserID: userID, AdvertisementID: adID}
		if err := l.adViews.RecordAdView(ctx, v); err != nil {
			l.log.Warn("failed to record ad view", "user_id", userID, "ad_id", adID, "error", err)
		}
	}()
}
