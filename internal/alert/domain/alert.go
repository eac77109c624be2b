package domain

import "time"

// AlertType is the class of condition that triggered an alert
type AlertType string

const (
	AlertRenewal7Days  AlertType = "renewal_upcoming_7d"
	AlertRenewal3Days  AlertType = "renewal_upcoming_3d"
	AlertPriceIncrease AlertType = "price_increase"
	AlertTrialEnding   AlertType = "trial_ending"
	AlertUnused        AlertType = "unused_subscription"
)

type AlertStatus string

const (
	AlertPending   AlertStatus = "pending"
	AlertSent      AlertStatus = "sent"
	AlertFailed    AlertStatus = "failed"
	AlertSnoozed   AlertStatus = "snoozed"
	AlertDismissed AlertStatus = "dismissed"
)

// Alert is one triggered condition awaiting (or past) delivery
type Alert struct {
	ID             string      `json:"id" gorm:"primaryKey"`
	UserID         string      `json:"user_id" gorm:"index;not null"`
	SubscriptionID string      `json:"subscription_id" gorm:"index;not null"`
	Type           AlertType   `json:"type" gorm:"index;not null"`
	Message        string      `json:"message" gorm:"type:text"`
	ScheduledFor   time.Time   `json:"scheduled_for" gorm:"index"`
	Status         AlertStatus `json:"status" gorm:"index;default:pending"`
	SentAt         *time.Time  `json:"sent_at,omitempty"`
	RetryCount     int         `json:"retry_count" gorm:"default:0"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// Unresolved reports whether the alert still blocks emission of another
// alert of the same type for the same subscription. Anything not yet
// delivered or explicitly closed by the user counts.
func (a *Alert) Unresolved() bool {
	switch a.Status {
	case AlertPending, AlertSnoozed, AlertFailed:
		return true
	}
	return false
}
