package repository

import (
	"time"

	"subtrack-backend/internal/subscription/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// gormSubscriptionRepository implements SubscriptionRepository using GORM
type gormSubscriptionRepository struct {
	db *gorm.DB
}

func NewSubscriptionRepository(db *gorm.DB) SubscriptionRepository {
	return &gormSubscriptionRepository{db: db}
}

func (r *gormSubscriptionRepository) Create(sub *domain.Subscription) error {
	if sub.ID == "" {
		sub.ID = uuid.New().String()
	}
	now := time.Now()
	sub.CreatedAt = now
	sub.UpdatedAt = now
	if sub.LastActivityAt.IsZero() {
		sub.LastActivityAt = now
	}
	return r.db.Create(sub).Error
}

func (r *gormSubscriptionRepository) Update(sub *domain.Subscription) error {
	sub.UpdatedAt = time.Now()
	return r.db.Save(sub).Error
}

func (r *gormSubscriptionRepository) FindByID(id string) (*domain.Subscription, error) {
	var sub domain.Subscription
	err := r.db.Where("id = ?", id).First(&sub).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

func (r *gormSubscriptionRepository) FindLiveByUserID(userID string) ([]*domain.Subscription, error) {
	var subs []*domain.Subscription
	err := r.db.Where("user_id = ? AND status <> ?", userID, domain.StatusArchived).
		Order("created_at ASC").Find(&subs).Error
	return subs, err
}

func (r *gormSubscriptionRepository) FindByUserID(userID string, status *domain.SubscriptionStatus) ([]*domain.Subscription, error) {
	var subs []*domain.Subscription
	query := r.db.Where("user_id = ?", userID)
	if status != nil {
		query = query.Where("status = ?", *status)
	}
	err := query.Order("created_at ASC").Find(&subs).Error
	return subs, err
}

func (r *gormSubscriptionRepository) ArchiveByAccountID(accountID string) (int64, error) {
	result := r.db.Model(&domain.Subscription{}).
		Where("account_id = ? AND status <> ?", accountID, domain.StatusArchived).
		Updates(map[string]interface{}{
			"status":     domain.StatusArchived,
			"updated_at": time.Now(),
		})
	return result.RowsAffected, result.Error
}

func (r *gormSubscriptionRepository) AppendHistory(entry *domain.SubscriptionHistory) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	return r.db.Create(entry).Error
}

func (r *gormSubscriptionRepository) FindHistory(subscriptionID string) ([]*domain.SubscriptionHistory, error) {
	var entries []*domain.SubscriptionHistory
	err := r.db.Where("subscription_id = ?", subscriptionID).
		Order("created_at DESC").Find(&entries).Error
	return entries, err
}

func (r *gormSubscriptionRepository) FindUserHistorySince(userID string, changeType domain.ChangeType, since time.Time) ([]*domain.SubscriptionHistory, error) {
	var entries []*domain.SubscriptionHistory
	err := r.db.
		Joins("JOIN subscriptions ON subscriptions.id = subscription_history.subscription_id").
		Where("subscriptions.user_id = ? AND subscription_history.change_type = ? AND subscription_history.created_at >= ?",
			userID, changeType, since).
		Order("subscription_history.created_at DESC").
		Find(&entries).Error
	return entries, err
}
