package usecase

import (
	"context"
	"errors"
	"log"
	"time"

	"subtrack-backend/internal/alert/domain"
	"subtrack-backend/internal/alert/repository"
)

// Dispatcher drains due alerts through the configured delivery channels.
// An alert is Sent once any enabled channel accepts it; transient failures
// are rescheduled with exponential backoff until the retry ceiling, after
// which the alert is marked Failed.
type Dispatcher struct {
	alertRepo    repository.AlertRepository
	prefsRepo    repository.PreferencesRepository
	notifiers    []Notifier
	retryCeiling int
	baseDelay    time.Duration
}

func NewDispatcher(
	alertRepo repository.AlertRepository,
	prefsRepo repository.PreferencesRepository,
	notifiers []Notifier,
	retryCeiling int,
	baseDelay time.Duration,
) *Dispatcher {
	return &Dispatcher{
		alertRepo:    alertRepo,
		prefsRepo:    prefsRepo,
		notifiers:    notifiers,
		retryCeiling: retryCeiling,
		baseDelay:    baseDelay,
	}
}

// DispatchDue runs one delivery pass: wakes expired snoozes, then attempts
// every pending alert whose scheduled time has passed.
func (d *Dispatcher) DispatchDue(ctx context.Context) {
	now := time.Now()

	if woken, err := d.alertRepo.RequeueSnoozed(now); err != nil {
		log.Printf("[AlertDispatcher] Failed to requeue snoozed alerts: %v", err)
	} else if woken > 0 {
		log.Printf("[AlertDispatcher] Woke %d snoozed alerts", woken)
	}

	due, err := d.alertRepo.FindDue(now)
	if err != nil {
		log.Printf("[AlertDispatcher] Failed to list due alerts: %v", err)
		return
	}

	for _, alert := range due {
		select {
		case <-ctx.Done():
			return
		default:
		}
		d.deliver(ctx, alert)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, alert *domain.Alert) {
	prefs, err := d.prefsRepo.Get(alert.UserID)
	if err != nil {
		log.Printf("[AlertDispatcher] Failed to load preferences for alert %s: %v", alert.ID, err)
		return
	}

	var enabled []Notifier
	for _, n := range d.notifiers {
		if n.Enabled(prefs) {
			enabled = append(enabled, n)
		}
	}

	// Nothing to deliver over is a terminal success, not a failure that
	// should retry forever.
	if len(enabled) == 0 {
		d.markSent(alert)
		return
	}

	delivered := false
	permanent := false
	for _, n := range enabled {
		if err := n.Send(ctx, alert); err != nil {
			if errors.Is(err, ErrPermanent) {
				permanent = true
			}
			log.Printf("[AlertDispatcher] %s delivery failed for alert %s: %v", n.Name(), alert.ID, err)
			continue
		}
		delivered = true
	}

	switch {
	case delivered:
		d.markSent(alert)
	case permanent:
		alert.Status = domain.AlertFailed
		d.update(alert)
	default:
		d.reschedule(alert)
	}
}

func (d *Dispatcher) markSent(alert *domain.Alert) {
	now := time.Now()
	alert.Status = domain.AlertSent
	alert.SentAt = &now
	d.update(alert)
}

// reschedule pushes the alert out by baseDelay doubled per prior attempt.
// Once the ceiling is hit the alert fails for good.
func (d *Dispatcher) reschedule(alert *domain.Alert) {
	alert.RetryCount++
	if alert.RetryCount >= d.retryCeiling {
		alert.Status = domain.AlertFailed
		log.Printf("[AlertDispatcher] Alert %s failed after %d attempts", alert.ID, alert.RetryCount)
	} else {
		delay := d.baseDelay << (alert.RetryCount - 1)
		alert.ScheduledFor = time.Now().Add(delay)
	}
	d.update(alert)
}

func (d *Dispatcher) update(alert *domain.Alert) {
	if err := d.alertRepo.Update(alert); err != nil {
		log.Printf("[AlertDispatcher] Failed to update alert %s: %v", alert.ID, err)
	}
}
