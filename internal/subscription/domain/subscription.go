package domain

import (
	"strings"
	"time"
)

// BillingCycle is how often a subscription renews
type BillingCycle string

const (
	CycleWeekly    BillingCycle = "weekly"
	CycleMonthly   BillingCycle = "monthly"
	CycleQuarterly BillingCycle = "quarterly"
	CycleAnnual    BillingCycle = "annual"
	CycleUnknown   BillingCycle = "unknown"
)

// ParseBillingCycle maps free-form model output onto a cycle, defaulting to Unknown
func ParseBillingCycle(s string) BillingCycle {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "weekly", "week":
		return CycleWeekly
	case "monthly", "month":
		return CycleMonthly
	case "quarterly", "quarter":
		return CycleQuarterly
	case "annual", "annually", "yearly", "year":
		return CycleAnnual
	}
	return CycleUnknown
}

// MonthlyAmount normalizes a price to its monthly equivalent:
// Annual/12, Quarterly/3, Weekly x 4.33, Monthly unchanged. Unknown cycles
// are treated as monthly.
func (c BillingCycle) MonthlyAmount(price float64) float64 {
	switch c {
	case CycleAnnual:
		return price / 12
	case CycleQuarterly:
		return price / 3
	case CycleWeekly:
		return price * 4.33
	}
	return price
}

type SubscriptionStatus string

const (
	StatusActive        SubscriptionStatus = "active"
	StatusPendingReview SubscriptionStatus = "pending_review"
	StatusTrialActive   SubscriptionStatus = "trial_active"
	StatusCancelled     SubscriptionStatus = "cancelled"
	StatusArchived      SubscriptionStatus = "archived"
)

// Subscription is one detected service per user. Within a user, at most one
// live (non-archived) record represents a given real-world service.
type Subscription struct {
	ID                 string             `json:"id" gorm:"primaryKey"`
	UserID             string             `json:"user_id" gorm:"index;not null"`
	AccountID          string             `json:"account_id" gorm:"index"`
	ServiceName        string             `json:"service_name" gorm:"not null"`
	NormalizedName     string             `json:"-" gorm:"index"`
	Price              float64            `json:"price"`
	Currency           string             `json:"currency"`
	BillingCycle       BillingCycle       `json:"billing_cycle" gorm:"default:unknown"`
	NextRenewalDate    *time.Time         `json:"next_renewal_date,omitempty"`
	Category           string             `json:"category"`
	VendorID           *string            `json:"vendor_id,omitempty" gorm:"index"`
	CancellationLink   string             `json:"cancellation_link,omitempty"`
	Confidence         float64            `json:"confidence"`
	RequiresUserReview bool               `json:"requires_user_review"`
	Status             SubscriptionStatus `json:"status" gorm:"index;default:active"`
	TrialEndsAt        *time.Time         `json:"trial_ends_at,omitempty"`
	LastActivityAt     time.Time          `json:"last_activity_at"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`

	History []SubscriptionHistory `json:"history,omitempty" gorm:"foreignKey:SubscriptionID"`
}

// Live reports whether this record still represents the service for dedup
// purposes. Archived records are retained but never matched against.
func (s *Subscription) Live() bool {
	return s.Status != StatusArchived
}
