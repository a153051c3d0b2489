package models

import "time"

const (
	SubscriptionStatusActive    = "ACTIVE"
	SubscriptionStatusCancelled = "CANCELLED"
	SubscriptionStatusExpired   = "EXPIRED"
	SubscriptionStatusPending   = "PENDING"
)

// Subscription is a user's entitlement to a plan.
//
// ActiveUserID mirrors UserID while Status is ACTIVE and is NULL otherwise. The
// unique index on it is how MySQL enforces "at most one ACTIVE subscription per
// user" without partial indexes.
type Subscription struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	UserID          uint       `gorm:"not null;index:idx_subscriptions_user_status,priority:1" json:"user_id"`
	PlanID          uint       `gorm:"not null;index" json:"plan_id"`
	Status          string     `gorm:"type:varchar(16);not null;default:'ACTIVE';index:idx_subscriptions_user_status,priority:2" json:"status"`
	StartDate       time.Time  `gorm:"type:timestamp;not null" json:"start_date"`
	NextBillingDate *time.Time `gorm:"type:timestamp;default:null" json:"next_billing_date"`
	CancelledAt     *time.Time `gorm:"type:timestamp;default:null" json:"cancelled_at"`
	ExternalID      string     `gorm:"type:varchar(191);default:'';index" json:"external_id"`
	ActiveUserID    *uint      `gorm:"uniqueIndex:ux_subscriptions_active_user;default:null" json:"-"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`

	Plan *Plan `gorm:"foreignKey:PlanID" json:"plan,omitempty"`
}

// IsActive reports whether the subscription currently entitles the user.
func (s *Subscription) IsActive() bool {
	return s != nil && s.Status == SubscriptionStatusActive
}

// NextBillingDateFor computes the renewal date for a subscription to plan that
// starts at start. Lifetime plans never renew and yield nil.
func NextBillingDateFor(plan *Plan, start time.Time) *time.Time {
	if plan == nil {
		return nil
	}
	var next time.Time
	switch plan.Interval {
	case PlanIntervalMonthly:
		next = start.AddDate(0, 1, 0)
	case PlanIntervalYearly:
		next = start.AddDate(1, 0, 0)
	default:
		return nil
	}
	return &next
}
