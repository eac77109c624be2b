package repository

import (
	"time"

	"subtrack-backend/internal/alert/domain"
)

// AlertRepository defines storage operations for alerts
type AlertRepository interface {
	Create(alert *domain.Alert) error
	Update(alert *domain.Alert) error
	FindByID(id string) (*domain.Alert, error)
	FindByUserID(userID string, status *domain.AlertStatus) ([]*domain.Alert, error)
	// FindDue returns pending alerts whose scheduled time has passed
	FindDue(now time.Time) ([]*domain.Alert, error)
	// RequeueSnoozed flips snoozed alerts whose wake time has passed back
	// to pending so the next dispatch cycle picks them up.
	RequeueSnoozed(now time.Time) (int64, error)
	// HasUnresolved reports whether an undelivered/unclosed alert of this
	// type already exists for the subscription.
	HasUnresolved(subscriptionID string, alertType domain.AlertType) (bool, error)
	// LastSentAt returns when an alert of this type was last delivered for
	// the subscription, or nil if never.
	LastSentAt(subscriptionID string, alertType domain.AlertType) (*time.Time, error)
}

// PreferencesRepository stores per-user alert preferences
type PreferencesRepository interface {
	Get(userID string) (domain.Preferences, error)
	Put(userID string, prefs domain.Preferences) error
}
