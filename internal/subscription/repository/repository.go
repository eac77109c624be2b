package repository

import (
	"time"

	"subtrack-backend/internal/subscription/domain"
)

// SubscriptionRepository defines storage operations for the subscription ledger
type SubscriptionRepository interface {
	Create(sub *domain.Subscription) error
	Update(sub *domain.Subscription) error
	FindByID(id string) (*domain.Subscription, error)
	// FindLiveByUserID returns every non-archived subscription for a user
	FindLiveByUserID(userID string) ([]*domain.Subscription, error)
	FindByUserID(userID string, status *domain.SubscriptionStatus) ([]*domain.Subscription, error)
	// ArchiveByAccountID bulk-archives every live subscription attributed to
	// an account and returns how many were touched. Nothing is deleted.
	ArchiveByAccountID(accountID string) (int64, error)

	AppendHistory(entry *domain.SubscriptionHistory) error
	FindHistory(subscriptionID string) ([]*domain.SubscriptionHistory, error)
	// FindUserHistorySince returns a user's history entries of one change
	// type created after the given instant, newest first.
	FindUserHistorySince(userID string, changeType domain.ChangeType, since time.Time) ([]*domain.SubscriptionHistory, error)
}

// VendorRepository defines storage operations for the vendor directory
type VendorRepository interface {
	Create(vendor *domain.VendorMetadata) error
	Update(vendor *domain.VendorMetadata) error
	FindByID(id string) (*domain.VendorMetadata, error)
	FindByNormalizedName(name string) (*domain.VendorMetadata, error)
	All() ([]*domain.VendorMetadata, error)
}
