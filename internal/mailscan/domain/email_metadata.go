package domain

import "time"

// ProcessingStatus is the state machine for one tracked message
type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "pending"
	StatusQueued     ProcessingStatus = "queued"
	StatusProcessing ProcessingStatus = "processing"
	StatusCompleted  ProcessingStatus = "completed"
	StatusFailed     ProcessingStatus = "failed"
)

// EmailMetadata is the dedup/tracking record for one external message,
// independent of its business content. The (account, message id) pair is
// unique; re-ingesting a known id never creates a second entry.
type EmailMetadata struct {
	ID             string           `json:"id" gorm:"primaryKey"`
	AccountID      string           `json:"account_id" gorm:"index:idx_account_message,unique;not null"`
	MessageID      string           `json:"message_id" gorm:"index:idx_account_message,unique;not null"`
	UserID         string           `json:"user_id" gorm:"index;not null"`
	Sender         string           `json:"sender"`
	Subject        string           `json:"subject"`
	ReceivedAt     time.Time        `json:"received_at"`
	Status         ProcessingStatus `json:"status" gorm:"index;default:pending"`
	ProcessedAt    *time.Time       `json:"processed_at,omitempty"`
	SubscriptionID *string          `json:"subscription_id,omitempty" gorm:"index"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

func (EmailMetadata) TableName() string {
	return "email_metadata"
}

// Reschedulable reports whether an entry left over from a prior run should be
// re-offered for queueing. Completed work and in-flight work are excluded.
func (m *EmailMetadata) Reschedulable() bool {
	switch m.Status {
	case StatusPending, StatusQueued, StatusFailed:
		return true
	}
	return false
}
