package domain

import (
	"time"

	"github.com/google/uuid"
)

// DailyQuota is the per-user view allowance for the current local day.
type DailyQuota struct {
	UserID             uuid.UUID `db:"user_id" json:"user_id"`
	TotalViews         int       `db:"total_views" json:"total_views"`
	RemainingViews     int       `db:"remaining_views" json:"remaining_views"`
	NextRewardIn       int       `db:"next_reward_in" json:"next_reward_in"`
	RewardsEarnedToday int       `db:"rewards_earned_today" json:"rewards_earned_today"`
	CanWatchMore       bool      `db:"can_watch_more" json:"can_watch_more"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}

// QuotaPolicy holds the daily limits applied to every user.
type QuotaPolicy struct {
	DailyViews       int
	ViewsPerReward   int
	MaxRewardsPerDay int
}

// DefaultQuotaPolicy: 20 views a day, a box every 2 views, at most 10 boxes.
func DefaultQuotaPolicy() QuotaPolicy {
	return QuotaPolicy{
		DailyViews:       20,
		ViewsPerReward:   2,
		MaxRewardsPerDay: 10,
	}
}

// Fresh returns the start-of-day state for userID.
func (p QuotaPolicy) Fresh(userID uuid.UUID) DailyQuota {
	return DailyQuota{
		UserID:             userID,
		TotalViews:         0,
		RemainingViews:     p.DailyViews,
		NextRewardIn:       p.ViewsPerReward,
		RewardsEarnedToday: 0,
		CanWatchMore:       true,
	}
}

// ViewResult is returned for every accepted view.
type ViewResult struct {
	Quota   *DailyQuota  `json:"quota"`
	Awarded bool         `json:"awarded"`
	Box     *TreasureBox `json:"box,omitempty"`
}

// AdView is a single "advertisement watched" fact.
type AdView struct {
	ID              uuid.UUID `db:"id" json:"id"`
	UserID          uuid.UUID `db:"user_id" json:"user_id"`
	AdvertisementID uuid.UUID `db:"advertisement_id" json:"advertisement_id"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}
