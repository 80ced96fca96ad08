package service

import (
	"context"
	"time"

	"reward_engine/internal/domain"

	"github.com/google/uuid"
)

// RewardService is what the HTTP layer talks to. Every call is bounded by the
// request timeout on top of the caller's context.
type RewardService struct {
	ledger  *QuotaLedger
	issuer  *RewardIssuer
	timeout time.Duration
}

func NewRewardService(ledger *QuotaLedger, issuer *RewardIssuer, timeout time.Duration) *RewardService {
	return &RewardService{ledger: ledger, issuer: issuer, timeout: timeout}
}

func (s *RewardService) RecordView(ctx context.Context, userID uuid.UUID, adID *uuid.UUID) (*domain.ViewResult, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.ledger.RecordView(ctx, userID, adID)
}

func (s *RewardService) GetQuota(ctx context.Context, userID uuid.UUID) (*domain.DailyQuota, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.ledger.GetOrCreate(ctx, userID)
}

func (s *RewardService) OpenBox(ctx context.Context, userID, boxID uuid.UUID) (*domain.OpenResult, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.issuer.Open(ctx, userID, boxID)
}

func (s *RewardService) ListBoxes(ctx context.Context, userID uuid.UUID) ([]*domain.TreasureBox, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.issuer.ListByUser(ctx, userID)
}

// ResetNow is the caller-initiated version of the scheduled midnight reset.
func (s *RewardService) ResetNow(ctx context.Context, userID uuid.UUID) (*domain.DailyQuota, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.ledger.Reset(ctx, userID)
}

func (s *RewardService) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}
