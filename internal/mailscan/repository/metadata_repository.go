package repository

import (
	"time"

	"subtrack-backend/internal/mailscan/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// gormMetadataRepository implements EmailMetadataRepository using GORM
type gormMetadataRepository struct {
	db *gorm.DB
}

func NewEmailMetadataRepository(db *gorm.DB) EmailMetadataRepository {
	return &gormMetadataRepository{db: db}
}

// RecordBatch performs the dedup check for a fetched page with a single
// existing-ids query. New ids become Pending entries; insertion tolerates a
// concurrent producer racing on the same (account, message id) pair via the
// unique index. Returned entries are the ones a scheduler should queue.
func (r *gormMetadataRepository) RecordBatch(account *domain.EmailAccount, msgs []*domain.Message) ([]*domain.EmailMetadata, error) {
	if len(msgs) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.ID)
	}

	var existing []*domain.EmailMetadata
	if err := r.db.Where("account_id = ? AND message_id IN ?", account.ID, ids).
		Find(&existing).Error; err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(existing))
	for _, e := range existing {
		known[e.MessageID] = true
	}

	now := time.Now()
	var fresh []*domain.EmailMetadata
	for _, m := range msgs {
		if known[m.ID] {
			continue
		}
		fresh = append(fresh, &domain.EmailMetadata{
			ID:         uuid.New().String(),
			AccountID:  account.ID,
			MessageID:  m.ID,
			UserID:     account.UserID,
			Sender:     m.From,
			Subject:    m.Subject,
			ReceivedAt: m.ReceivedAt,
			Status:     domain.StatusPending,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}

	if len(fresh) > 0 {
		if err := r.db.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&fresh).Error; err != nil {
			return nil, err
		}
	}

	// Re-read the whole batch so entries created by a racing producer are
	// reflected, then keep only the ones eligible for scheduling.
	var all []*domain.EmailMetadata
	if err := r.db.Where("account_id = ? AND message_id IN ?", account.ID, ids).
		Find(&all).Error; err != nil {
		return nil, err
	}

	eligible := make([]*domain.EmailMetadata, 0, len(all))
	for _, e := range all {
		if e.Reschedulable() {
			eligible = append(eligible, e)
		}
	}
	return eligible, nil
}

func (r *gormMetadataRepository) FindByID(id string) (*domain.EmailMetadata, error) {
	var entry domain.EmailMetadata
	err := r.db.Where("id = ?", id).First(&entry).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

func (r *gormMetadataRepository) MarkQueued(id string) error {
	return r.setStatus(id, domain.StatusQueued, nil, false)
}

func (r *gormMetadataRepository) MarkProcessing(id string) error {
	return r.setStatus(id, domain.StatusProcessing, nil, false)
}

func (r *gormMetadataRepository) MarkCompleted(id string, subscriptionID *string) error {
	return r.setStatus(id, domain.StatusCompleted, subscriptionID, true)
}

func (r *gormMetadataRepository) MarkFailed(id string) error {
	return r.setStatus(id, domain.StatusFailed, nil, true)
}

func (r *gormMetadataRepository) setStatus(id string, status domain.ProcessingStatus, subscriptionID *string, terminal bool) error {
	updates := map[string]interface{}{
		"status":     status,
		"updated_at": time.Now(),
	}
	if terminal {
		updates["processed_at"] = time.Now()
	}
	if subscriptionID != nil {
		updates["subscription_id"] = *subscriptionID
	}
	return r.db.Model(&domain.EmailMetadata{}).Where("id = ?", id).
		Updates(updates).Error
}
