package repository

import (
	"time"

	"subtrack-backend/internal/alert/domain"

	"gorm.io/gorm"
)

// gormPreferencesRepository implements PreferencesRepository using GORM
type gormPreferencesRepository struct {
	db *gorm.DB
}

func NewPreferencesRepository(db *gorm.DB) PreferencesRepository {
	return &gormPreferencesRepository{db: db}
}

// Get returns the user's preferences, falling back to defaults when no row
// exists or the stored payload cannot be decoded.
func (r *gormPreferencesRepository) Get(userID string) (domain.Preferences, error) {
	var row domain.UserPreferences
	err := r.db.Where("user_id = ?", userID).First(&row).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.DefaultPreferences(), nil
		}
		return domain.DefaultPreferences(), err
	}
	return row.Decode(), nil
}

func (r *gormPreferencesRepository) Put(userID string, prefs domain.Preferences) error {
	row := domain.UserPreferences{
		UserID:    userID,
		Payload:   domain.EncodePreferences(prefs),
		UpdatedAt: time.Now(),
	}
	return r.db.Save(&row).Error
}
