package mailer

import (
	"context"
	"fmt"
	"log"

	"github.com/mailgun/mailgun-go/v4"
)

// Mailer sends transactional alert mail through Mailgun
type Mailer struct {
	mg     *mailgun.MailgunImpl
	sender string
}

func NewMailer(domain, apiKey, sender string) *Mailer {
	return &Mailer{
		mg:     mailgun.NewMailgun(domain, apiKey),
		sender: sender,
	}
}

// Send delivers one message and returns the provider's message id
func (m *Mailer) Send(ctx context.Context, to, subject, body string) (string, error) {
	message := m.mg.NewMessage(m.sender, subject, body, to)

	_, id, err := m.mg.Send(ctx, message)
	if err != nil {
		return "", fmt.Errorf("mailgun send failed: %w", err)
	}

	log.Printf("[Mailer] Sent %q to %s (id %s)", subject, to, id)
	return id, nil
}
