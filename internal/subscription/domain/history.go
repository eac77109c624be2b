package domain

import "time"

// ChangeType classifies one audit-trail entry
type ChangeType string

const (
	ChangeCreated      ChangeType = "created"
	ChangePrice        ChangeType = "price_change"
	ChangeBillingCycle ChangeType = "billing_cycle_change"
	ChangeRenewalDate  ChangeType = "renewal_date_change"
	ChangeStatus       ChangeType = "status_change"
	ChangeApproved     ChangeType = "approved"
	ChangeRejected     ChangeType = "rejected"
)

// SubscriptionHistory is an immutable audit entry. Entries are only ever
// appended; nothing mutates or deletes them.
type SubscriptionHistory struct {
	ID              string     `json:"id" gorm:"primaryKey"`
	SubscriptionID  string     `json:"subscription_id" gorm:"index;not null"`
	ChangeType      ChangeType `json:"change_type" gorm:"index;not null"`
	OldValue        string     `json:"old_value"`
	NewValue        string     `json:"new_value"`
	SourceMessageID string     `json:"source_message_id,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

func (SubscriptionHistory) TableName() string {
	return "subscription_history"
}
