package repository

import (
	"subtrack-backend/internal/mailscan/domain"
)

// EmailAccountRepository defines storage operations for connected mailboxes
type EmailAccountRepository interface {
	Create(account *domain.EmailAccount) error
	Update(account *domain.EmailAccount) error
	FindByID(id string) (*domain.EmailAccount, error)
	FindByUserID(userID string) ([]*domain.EmailAccount, error)
	// FindAllConnected returns every connected account across users, for
	// scheduled full-system scans.
	FindAllConnected() ([]*domain.EmailAccount, error)
	// MarkDisconnected flips the account to disconnected without deleting it
	MarkDisconnected(id string) error
}

// EmailMetadataRepository is the metadata ledger: one entry per external
// message id per account, with at-most-once creation.
type EmailMetadataRepository interface {
	// RecordBatch upserts a fetched page of messages in one existing-ids
	// lookup and returns the entries eligible for queueing: brand-new ids
	// plus ids left in a non-terminal state by a prior run.
	RecordBatch(account *domain.EmailAccount, msgs []*domain.Message) ([]*domain.EmailMetadata, error)
	FindByID(id string) (*domain.EmailMetadata, error)
	MarkQueued(id string) error
	MarkProcessing(id string) error
	MarkCompleted(id string, subscriptionID *string) error
	MarkFailed(id string) error
}
