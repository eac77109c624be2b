package usecase

import (
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"subtrack-backend/internal/alert/domain"
	"subtrack-backend/internal/alert/repository"
	authrepo "subtrack-backend/internal/auth/repository"
	subdomain "subtrack-backend/internal/subscription/domain"
	subrepo "subtrack-backend/internal/subscription/repository"
)

// EvaluatorConfig carries the timing knobs for alert generation
type EvaluatorConfig struct {
	TrialLeadDays      int
	PriceWindowDays    int
	UnusedMonths       int
	UnusedCooldownDays int
}

// Evaluator walks every user's live subscriptions and emits pending alerts
// for conditions that hold right now. Each alert class is deduplicated
// against unresolved alerts of the same type for the same subscription, so
// repeated evaluation cycles never pile up duplicates.
type Evaluator struct {
	subRepo   subrepo.SubscriptionRepository
	alertRepo repository.AlertRepository
	prefsRepo repository.PreferencesRepository
	userRepo  authrepo.UserRepository
	cfg       EvaluatorConfig
}

func NewEvaluator(
	subRepo subrepo.SubscriptionRepository,
	alertRepo repository.AlertRepository,
	prefsRepo repository.PreferencesRepository,
	userRepo authrepo.UserRepository,
	cfg EvaluatorConfig,
) *Evaluator {
	return &Evaluator{
		subRepo:   subRepo,
		alertRepo: alertRepo,
		prefsRepo: prefsRepo,
		userRepo:  userRepo,
		cfg:       cfg,
	}
}

// EvaluateAll runs one evaluation pass over every user. A failure for one
// user is logged and does not stop the pass.
func (e *Evaluator) EvaluateAll() {
	userIDs, err := e.userRepo.AllIDs()
	if err != nil {
		log.Printf("[AlertEvaluator] Failed to list users: %v", err)
		return
	}

	for _, userID := range userIDs {
		if err := e.Evaluate(userID); err != nil {
			log.Printf("[AlertEvaluator] Evaluation failed for user %s: %v", userID, err)
		}
	}
}

// Evaluate runs every alert check for a single user
func (e *Evaluator) Evaluate(userID string) error {
	prefs, err := e.prefsRepo.Get(userID)
	if err != nil {
		return fmt.Errorf("failed to load preferences: %w", err)
	}

	subs, err := e.subRepo.FindLiveByUserID(userID)
	if err != nil {
		return fmt.Errorf("failed to load subscriptions: %w", err)
	}

	now := time.Now()
	for _, sub := range subs {
		if prefs.RenewalAlerts {
			if err := e.checkRenewal(sub, now); err != nil {
				log.Printf("[AlertEvaluator] Renewal check failed for subscription %s: %v", sub.ID, err)
			}
		}
		if prefs.TrialEndingAlerts {
			if err := e.checkTrialEnding(sub, now); err != nil {
				log.Printf("[AlertEvaluator] Trial check failed for subscription %s: %v", sub.ID, err)
			}
		}
		if prefs.UnusedAlerts {
			if err := e.checkUnused(sub, now); err != nil {
				log.Printf("[AlertEvaluator] Unused check failed for subscription %s: %v", sub.ID, err)
			}
		}
	}

	if prefs.PriceIncreaseAlerts {
		if err := e.checkPriceIncreases(userID, now); err != nil {
			log.Printf("[AlertEvaluator] Price check failed for user %s: %v", userID, err)
		}
	}

	return nil
}

// checkRenewal emits at most one renewal alert per subscription per window.
// Inside the 3-day window only the 3-day alert fires; the 7-day alert covers
// strictly more than 3 days out. Cancelled and review-pending subscriptions
// never trigger renewal alerts.
func (e *Evaluator) checkRenewal(sub *subdomain.Subscription, now time.Time) error {
	if sub.Status != subdomain.StatusActive && sub.Status != subdomain.StatusTrialActive {
		return nil
	}
	if sub.NextRenewalDate == nil {
		return nil
	}

	days := daysUntil(now, *sub.NextRenewalDate)
	var alertType domain.AlertType
	switch {
	case days >= 0 && days <= 3:
		alertType = domain.AlertRenewal3Days
	case days > 3 && days <= 7:
		alertType = domain.AlertRenewal7Days
	default:
		return nil
	}

	exists, err := e.alertRepo.HasUnresolved(sub.ID, alertType)
	if err != nil || exists {
		return err
	}

	message := fmt.Sprintf("%s renews in %d day%s", sub.ServiceName, days, plural(days))
	if sub.Price > 0 {
		message += fmt.Sprintf(" (%.2f %s)", sub.Price, sub.Currency)
	}
	return e.alertRepo.Create(&domain.Alert{
		UserID:         sub.UserID,
		SubscriptionID: sub.ID,
		Type:           alertType,
		Message:        message,
		ScheduledFor:   now,
	})
}

func (e *Evaluator) checkTrialEnding(sub *subdomain.Subscription, now time.Time) error {
	if sub.Status != subdomain.StatusTrialActive || sub.TrialEndsAt == nil {
		return nil
	}

	days := daysUntil(now, *sub.TrialEndsAt)
	if days < 0 || days > e.cfg.TrialLeadDays {
		return nil
	}

	exists, err := e.alertRepo.HasUnresolved(sub.ID, domain.AlertTrialEnding)
	if err != nil || exists {
		return err
	}

	message := fmt.Sprintf("Your %s trial ends in %d day%s", sub.ServiceName, days, plural(days))
	if sub.Price > 0 {
		message += fmt.Sprintf(", after which you will be charged %.2f %s", sub.Price, sub.Currency)
	}
	return e.alertRepo.Create(&domain.Alert{
		UserID:         sub.UserID,
		SubscriptionID: sub.ID,
		Type:           domain.AlertTrialEnding,
		Message:        message,
		ScheduledFor:   now,
	})
}

// checkUnused flags active subscriptions with no observed activity for the
// configured number of months. After an unused alert is delivered, the
// cooldown suppresses a repeat until it elapses.
func (e *Evaluator) checkUnused(sub *subdomain.Subscription, now time.Time) error {
	if sub.Status != subdomain.StatusActive {
		return nil
	}

	idleCutoff := now.AddDate(0, -e.cfg.UnusedMonths, 0)
	if sub.LastActivityAt.IsZero() || sub.LastActivityAt.After(idleCutoff) {
		return nil
	}

	exists, err := e.alertRepo.HasUnresolved(sub.ID, domain.AlertUnused)
	if err != nil || exists {
		return err
	}

	lastSent, err := e.alertRepo.LastSentAt(sub.ID, domain.AlertUnused)
	if err != nil {
		return err
	}
	if lastSent != nil && now.Sub(*lastSent) < time.Duration(e.cfg.UnusedCooldownDays)*24*time.Hour {
		return nil
	}

	idleMonths := monthsBetween(sub.LastActivityAt, now)
	monthly := sub.BillingCycle.MonthlyAmount(sub.Price)
	message := fmt.Sprintf("No activity from %s in %d months", sub.ServiceName, idleMonths)
	if monthly > 0 {
		wasted := monthly * float64(idleMonths)
		message += fmt.Sprintf(" — about %.2f %s wasted (%.2f %s/month)",
			wasted, sub.Currency, monthly, sub.Currency)
	}
	return e.alertRepo.Create(&domain.Alert{
		UserID:         sub.UserID,
		SubscriptionID: sub.ID,
		Type:           domain.AlertUnused,
		Message:        message,
		ScheduledFor:   now,
	})
}

// checkPriceIncreases scans recent price-change history entries and alerts
// on the ones that went up. Decreases are ignored.
func (e *Evaluator) checkPriceIncreases(userID string, now time.Time) error {
	since := now.AddDate(0, 0, -e.cfg.PriceWindowDays)
	entries, err := e.subRepo.FindUserHistorySince(userID, subdomain.ChangePrice, since)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		oldPrice := parsePrice(entry.OldValue)
		newPrice := parsePrice(entry.NewValue)
		if newPrice <= oldPrice {
			continue
		}

		exists, err := e.alertRepo.HasUnresolved(entry.SubscriptionID, domain.AlertPriceIncrease)
		if err != nil || exists {
			continue
		}

		sub, err := e.subRepo.FindByID(entry.SubscriptionID)
		if err != nil || sub == nil || !sub.Live() {
			continue
		}

		message := fmt.Sprintf("%s price increased from %s to %s",
			sub.ServiceName, entry.OldValue, entry.NewValue)
		if createErr := e.alertRepo.Create(&domain.Alert{
			UserID:         userID,
			SubscriptionID: sub.ID,
			Type:           domain.AlertPriceIncrease,
			Message:        message,
			ScheduledFor:   now,
		}); createErr != nil {
			log.Printf("[AlertEvaluator] Failed to create price alert for %s: %v", sub.ID, createErr)
		}
	}

	return nil
}

// daysUntil counts whole days from now until the target, flooring so a
// renewal later today reads as 0 days away. Targets already in the past
// report negative regardless of how recently they elapsed.
func daysUntil(now, target time.Time) int {
	d := target.Sub(now)
	if d < 0 {
		return -1
	}
	return int(d.Hours() / 24)
}

func monthsBetween(from, to time.Time) int {
	months := int(to.Sub(from).Hours() / (24 * 30))
	if months < 1 {
		months = 1
	}
	return months
}

// parsePrice reads the numeric part of a history value like "15.99 USD"
func parsePrice(s string) float64 {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return 0
	}
	v, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0
	}
	return v
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
