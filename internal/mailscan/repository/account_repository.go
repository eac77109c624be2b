package repository

import (
	"time"

	"subtrack-backend/internal/mailscan/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// gormAccountRepository implements EmailAccountRepository using GORM
type gormAccountRepository struct {
	db *gorm.DB
}

func NewEmailAccountRepository(db *gorm.DB) EmailAccountRepository {
	return &gormAccountRepository{db: db}
}

func (r *gormAccountRepository) Create(account *domain.EmailAccount) error {
	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	if account.Status == "" {
		account.Status = domain.AccountConnected
	}
	account.CreatedAt = time.Now()
	account.UpdatedAt = time.Now()
	return r.db.Create(account).Error
}

func (r *gormAccountRepository) Update(account *domain.EmailAccount) error {
	account.UpdatedAt = time.Now()
	return r.db.Save(account).Error
}

func (r *gormAccountRepository) FindByID(id string) (*domain.EmailAccount, error) {
	var account domain.EmailAccount
	err := r.db.Where("id = ?", id).First(&account).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

func (r *gormAccountRepository) FindByUserID(userID string) ([]*domain.EmailAccount, error) {
	var accounts []*domain.EmailAccount
	err := r.db.Where("user_id = ? AND status = ?", userID, domain.AccountConnected).
		Order("created_at ASC").Find(&accounts).Error
	return accounts, err
}

func (r *gormAccountRepository) FindAllConnected() ([]*domain.EmailAccount, error) {
	var accounts []*domain.EmailAccount
	err := r.db.Where("status = ?", domain.AccountConnected).
		Order("created_at ASC").Find(&accounts).Error
	return accounts, err
}

func (r *gormAccountRepository) MarkDisconnected(id string) error {
	return r.db.Model(&domain.EmailAccount{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     domain.AccountDisconnected,
			"updated_at": time.Now(),
		}).Error
}
