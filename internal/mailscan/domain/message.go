package domain

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrCursorInvalid is returned by a gateway when the stored sync cursor is no
// longer usable and the caller must fall back to a full fetch.
var ErrCursorInvalid = errors.New("sync cursor is stale or invalid")

// Message is a raw mail message as returned by a provider gateway
type Message struct {
	ID         string
	From       string
	Subject    string
	ReceivedAt time.Time
	Body       string
}

// FetchFilter bounds a mailbox fetch
type FetchFilter struct {
	Since           time.Time
	Before          time.Time
	SenderDomains   []string
	SubjectKeywords []string
	MaxResults      int
}

// MessageGateway is the provider-side contract for fetching mail. Fetch
// performs a full windowed fetch and reports the cursor position as of the
// fetch; FetchSinceCursor returns only messages added since the cursor and
// fails with ErrCursorInvalid when the cursor is stale.
type MessageGateway interface {
	Fetch(ctx context.Context, creds *AccountCredentials, filter FetchFilter) ([]*Message, SyncCursor, error)
	FetchSinceCursor(ctx context.Context, creds *AccountCredentials, cursor SyncCursor, filter FetchFilter) ([]*Message, SyncCursor, error)
}

// MatchesFilter reports whether a message passes the sender/keyword filter.
// An empty filter matches everything; otherwise a sender-domain or
// subject-keyword hit is required.
func (m *Message) MatchesFilter(filter FetchFilter) bool {
	if len(filter.SenderDomains) == 0 && len(filter.SubjectKeywords) == 0 {
		return true
	}

	from := strings.ToLower(m.From)
	for _, d := range filter.SenderDomains {
		if strings.Contains(from, strings.ToLower(d)) {
			return true
		}
	}

	subject := strings.ToLower(m.Subject)
	for _, kw := range filter.SubjectKeywords {
		if strings.Contains(subject, strings.ToLower(kw)) {
			return true
		}
	}

	return false
}
