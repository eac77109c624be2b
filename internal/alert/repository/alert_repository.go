package repository

import (
	"time"

	"subtrack-backend/internal/alert/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// gormAlertRepository implements AlertRepository using GORM
type gormAlertRepository struct {
	db *gorm.DB
}

func NewAlertRepository(db *gorm.DB) AlertRepository {
	return &gormAlertRepository{db: db}
}

func (r *gormAlertRepository) Create(alert *domain.Alert) error {
	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}
	if alert.Status == "" {
		alert.Status = domain.AlertPending
	}
	now := time.Now()
	alert.CreatedAt = now
	alert.UpdatedAt = now
	return r.db.Create(alert).Error
}

func (r *gormAlertRepository) Update(alert *domain.Alert) error {
	alert.UpdatedAt = time.Now()
	return r.db.Save(alert).Error
}

func (r *gormAlertRepository) FindByID(id string) (*domain.Alert, error) {
	var alert domain.Alert
	err := r.db.Where("id = ?", id).First(&alert).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &alert, nil
}

func (r *gormAlertRepository) FindByUserID(userID string, status *domain.AlertStatus) ([]*domain.Alert, error) {
	var alerts []*domain.Alert
	query := r.db.Where("user_id = ?", userID)
	if status != nil {
		query = query.Where("status = ?", *status)
	}
	err := query.Order("scheduled_for DESC").Find(&alerts).Error
	return alerts, err
}

func (r *gormAlertRepository) FindDue(now time.Time) ([]*domain.Alert, error) {
	var alerts []*domain.Alert
	err := r.db.Where("status = ? AND scheduled_for <= ?", domain.AlertPending, now).
		Order("scheduled_for ASC").Find(&alerts).Error
	return alerts, err
}

func (r *gormAlertRepository) RequeueSnoozed(now time.Time) (int64, error) {
	result := r.db.Model(&domain.Alert{}).
		Where("status = ? AND scheduled_for <= ?", domain.AlertSnoozed, now).
		Updates(map[string]interface{}{"status": domain.AlertPending, "updated_at": now})
	return result.RowsAffected, result.Error
}

func (r *gormAlertRepository) HasUnresolved(subscriptionID string, alertType domain.AlertType) (bool, error) {
	var count int64
	err := r.db.Model(&domain.Alert{}).
		Where("subscription_id = ? AND type = ? AND status IN ?",
			subscriptionID, alertType,
			[]domain.AlertStatus{domain.AlertPending, domain.AlertSnoozed, domain.AlertFailed}).
		Count(&count).Error
	return count > 0, err
}

func (r *gormAlertRepository) LastSentAt(subscriptionID string, alertType domain.AlertType) (*time.Time, error) {
	var alert domain.Alert
	err := r.db.Where("subscription_id = ? AND type = ? AND status = ?",
		subscriptionID, alertType, domain.AlertSent).
		Order("sent_at DESC").First(&alert).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return alert.SentAt, nil
}
