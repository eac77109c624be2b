package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"

	"subtrack-backend/internal/alert/domain"
	authrepo "subtrack-backend/internal/auth/repository"
	"subtrack-backend/pkg/fcm"
	"subtrack-backend/pkg/mailer"
)

// ErrPermanent marks a delivery failure that retrying cannot fix, such as a
// recipient that no longer exists. The dispatcher fails the alert
// immediately instead of rescheduling it.
var ErrPermanent = errors.New("permanent delivery failure")

// Notifier is one delivery channel for alerts
type Notifier interface {
	Name() string
	// Enabled reports whether the user has opted into this channel
	Enabled(prefs domain.Preferences) bool
	Send(ctx context.Context, alert *domain.Alert) error
}

// PushNotifier delivers alerts to the user's registered devices over FCM.
// Tokens rejected by FCM are pruned so they are not retried forever.
type PushNotifier struct {
	client    *fcm.Client
	tokenRepo authrepo.FCMTokenRepository
}

func NewPushNotifier(client *fcm.Client, tokenRepo authrepo.FCMTokenRepository) *PushNotifier {
	return &PushNotifier{client: client, tokenRepo: tokenRepo}
}

func (n *PushNotifier) Name() string { return "push" }

func (n *PushNotifier) Enabled(prefs domain.Preferences) bool { return prefs.PushEnabled }

func (n *PushNotifier) Send(ctx context.Context, alert *domain.Alert) error {
	tokens, err := n.tokenRepo.GetTokensByUserID(alert.UserID)
	if err != nil {
		return fmt.Errorf("failed to load device tokens: %w", err)
	}
	if len(tokens) == 0 {
		// No registered devices is not a delivery failure
		return nil
	}

	tokenStrings := make([]string, len(tokens))
	for i, t := range tokens {
		tokenStrings[i] = t.Token
	}

	failed, err := n.client.SendToDevices(ctx, tokenStrings, fcm.NotificationData{
		Title: subjectFor(alert.Type),
		Body:  alert.Message,
		Data: map[string]string{
			"alert_id":        alert.ID,
			"subscription_id": alert.SubscriptionID,
			"type":            string(alert.Type),
		},
	})
	for _, token := range failed {
		if delErr := n.tokenRepo.DeleteToken(token); delErr != nil {
			log.Printf("[PushNotifier] Failed to prune stale token: %v", delErr)
		}
	}
	return err
}

// EmailNotifier delivers alerts to the user's account email via Mailgun
type EmailNotifier struct {
	mailer   *mailer.Mailer
	userRepo authrepo.UserRepository
}

func NewEmailNotifier(m *mailer.Mailer, userRepo authrepo.UserRepository) *EmailNotifier {
	return &EmailNotifier{mailer: m, userRepo: userRepo}
}

func (n *EmailNotifier) Name() string { return "email" }

func (n *EmailNotifier) Enabled(prefs domain.Preferences) bool { return prefs.EmailEnabled }

func (n *EmailNotifier) Send(ctx context.Context, alert *domain.Alert) error {
	user, err := n.userRepo.FindByID(alert.UserID)
	if err != nil {
		return fmt.Errorf("failed to load user: %w", err)
	}
	if user == nil {
		return fmt.Errorf("user %s: %w", alert.UserID, ErrPermanent)
	}

	id, err := n.mailer.Send(ctx, user.Email, subjectFor(alert.Type), alert.Message)
	if err != nil {
		return err
	}
	log.Printf("[EmailNotifier] Sent alert %s to %s (message %s)", alert.ID, user.Email, id)
	return nil
}

func subjectFor(t domain.AlertType) string {
	switch t {
	case domain.AlertRenewal7Days, domain.AlertRenewal3Days:
		return "Upcoming renewal"
	case domain.AlertPriceIncrease:
		return "Price increase detected"
	case domain.AlertTrialEnding:
		return "Trial ending soon"
	case domain.AlertUnused:
		return "Unused subscription"
	}
	return "Subscription alert"
}
