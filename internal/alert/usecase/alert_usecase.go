package usecase

import (
	"errors"
	"time"

	"subtrack-backend/internal/alert/domain"
	"subtrack-backend/internal/alert/repository"
)

var (
	ErrAlertNotFound = errors.New("alert not found")
	ErrInvalidState  = errors.New("alert cannot transition from its current state")
)

// AlertUsecase exposes the user-facing alert operations
type AlertUsecase interface {
	List(userID string, status *domain.AlertStatus) ([]*domain.Alert, error)
	// Snooze hides an alert until the given wake time, after which it is
	// redelivered.
	Snooze(userID, alertID string, until time.Time) (*domain.Alert, error)
	// Dismiss closes an alert permanently
	Dismiss(userID, alertID string) (*domain.Alert, error)

	GetPreferences(userID string) (domain.Preferences, error)
	UpdatePreferences(userID string, prefs domain.Preferences) error
}

type alertUsecase struct {
	alertRepo repository.AlertRepository
	prefsRepo repository.PreferencesRepository
}

func NewAlertUsecase(alertRepo repository.AlertRepository, prefsRepo repository.PreferencesRepository) AlertUsecase {
	return &alertUsecase{
		alertRepo: alertRepo,
		prefsRepo: prefsRepo,
	}
}

func (u *alertUsecase) List(userID string, status *domain.AlertStatus) ([]*domain.Alert, error) {
	return u.alertRepo.FindByUserID(userID, status)
}

func (u *alertUsecase) Snooze(userID, alertID string, until time.Time) (*domain.Alert, error) {
	alert, err := u.owned(userID, alertID)
	if err != nil {
		return nil, err
	}
	if !alert.Unresolved() && alert.Status != domain.AlertSent {
		return nil, ErrInvalidState
	}
	if until.Before(time.Now()) {
		return nil, errors.New("snooze time must be in the future")
	}

	alert.Status = domain.AlertSnoozed
	alert.ScheduledFor = until
	if err := u.alertRepo.Update(alert); err != nil {
		return nil, err
	}
	return alert, nil
}

func (u *alertUsecase) Dismiss(userID, alertID string) (*domain.Alert, error) {
	alert, err := u.owned(userID, alertID)
	if err != nil {
		return nil, err
	}
	if alert.Status == domain.AlertDismissed {
		return alert, nil
	}

	alert.Status = domain.AlertDismissed
	if err := u.alertRepo.Update(alert); err != nil {
		return nil, err
	}
	return alert, nil
}

func (u *alertUsecase) GetPreferences(userID string) (domain.Preferences, error) {
	return u.prefsRepo.Get(userID)
}

func (u *alertUsecase) UpdatePreferences(userID string, prefs domain.Preferences) error {
	return u.prefsRepo.Put(userID, prefs)
}

func (u *alertUsecase) owned(userID, alertID string) (*domain.Alert, error) {
	alert, err := u.alertRepo.FindByID(alertID)
	if err != nil {
		return nil, err
	}
	if alert == nil || alert.UserID != userID {
		return nil, ErrAlertNotFound
	}
	return alert, nil
}
