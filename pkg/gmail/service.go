package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	maildomain "subtrack-backend/internal/mailscan/domain"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// Service implements maildomain.MessageGateway against the Gmail API
type Service struct {
	clientID     string
	clientSecret string
	batchSize    int
	batchDelay   time.Duration
}

// notifyTokenSource wraps an oauth2 token source and fires a callback when
// the access token changes, so refreshed tokens are persisted instead of
// thrown away.
type notifyTokenSource struct {
	src      oauth2.TokenSource
	current  *oauth2.Token
	callback maildomain.TokenUpdateFunc
}

func (s *notifyTokenSource) Token() (*oauth2.Token, error) {
	t, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	if s.callback != nil && s.current.AccessToken != t.AccessToken {
		s.current = t
		if err := s.callback(t.AccessToken, t.RefreshToken); err != nil {
			log.Printf("[Gmail] Failed to persist refreshed token: %v", err)
		}
	}
	return t, nil
}

func NewService(clientID, clientSecret string, batchSize int, batchDelay time.Duration) *Service {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &Service{
		clientID:     clientID,
		clientSecret: clientSecret,
		batchSize:    batchSize,
		batchDelay:   batchDelay,
	}
}

func (s *Service) client(ctx context.Context, creds *maildomain.AccountCredentials) (*gmail.Service, error) {
	token := &oauth2.Token{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		TokenType:    "Bearer",
	}

	// Only force refresh if we have a refresh token
	if creds.RefreshToken != "" {
		token.Expiry = time.Now()
	}

	config := &oauth2.Config{
		ClientID:     s.clientID,
		ClientSecret: s.clientSecret,
		Endpoint:     google.Endpoint,
	}

	wrappedSource := &notifyTokenSource{
		src:      config.TokenSource(ctx, token),
		current:  token,
		callback: creds.OnTokenRefresh,
	}

	httpClient := oauth2.NewClient(ctx, wrappedSource)

	srv, err := gmail.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %v", err)
	}
	return srv, nil
}

// Fetch performs a full windowed fetch. The returned cursor is the mailbox
// history position as of the fetch, suitable for later incremental syncs.
func (s *Service) Fetch(ctx context.Context, creds *maildomain.AccountCredentials, filter maildomain.FetchFilter) ([]*maildomain.Message, maildomain.SyncCursor, error) {
	srv, err := s.client(ctx, creds)
	if err != nil {
		return nil, maildomain.SyncCursor{}, err
	}

	// Capture the history position before listing so messages arriving
	// mid-scan are picked up by the next incremental sync rather than lost.
	profile, err := srv.Users.GetProfile("me").Do()
	if err != nil {
		return nil, maildomain.SyncCursor{}, fmt.Errorf("unable to read mailbox profile: %v", err)
	}
	cursor := maildomain.SyncCursor{
		Provider:       maildomain.ProviderGmail,
		GmailHistoryID: profile.HistoryId,
	}

	ids, err := s.listMessageIDs(srv, buildQuery(filter), filter.MaxResults)
	if err != nil {
		return nil, maildomain.SyncCursor{}, err
	}

	messages, err := s.fetchDetails(ctx, srv, ids, filter)
	if err != nil {
		return nil, maildomain.SyncCursor{}, err
	}
	return messages, cursor, nil
}

// FetchSinceCursor returns messages added since the cursor position. A
// history ID Gmail no longer retains yields ErrCursorInvalid; the caller is
// expected to fall back to a full fetch.
func (s *Service) FetchSinceCursor(ctx context.Context, creds *maildomain.AccountCredentials, cursor maildomain.SyncCursor, filter maildomain.FetchFilter) ([]*maildomain.Message, maildomain.SyncCursor, error) {
	srv, err := s.client(ctx, creds)
	if err != nil {
		return nil, maildomain.SyncCursor{}, err
	}

	var ids []string
	seen := make(map[string]bool)
	latestHistoryID := cursor.GmailHistoryID

	pageToken := ""
	for {
		call := srv.Users.History.List("me").
			StartHistoryId(cursor.GmailHistoryID).
			HistoryTypes("messageAdded")
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		resp, err := call.Do()
		if err != nil {
			if apiErr, ok := err.(*googleapi.Error); ok && (apiErr.Code == 404 || apiErr.Code == 410) {
				return nil, maildomain.SyncCursor{}, maildomain.ErrCursorInvalid
			}
			return nil, maildomain.SyncCursor{}, fmt.Errorf("unable to list history: %v", err)
		}

		if resp.HistoryId > latestHistoryID {
			latestHistoryID = resp.HistoryId
		}
		for _, h := range resp.History {
			for _, added := range h.MessagesAdded {
				if added.Message != nil && !seen[added.Message.Id] {
					seen[added.Message.Id] = true
					ids = append(ids, added.Message.Id)
				}
			}
		}

		pageToken = resp.NextPageToken
		if pageToken == "" {
			break
		}
	}

	messages, err := s.fetchDetails(ctx, srv, ids, filter)
	if err != nil {
		return nil, maildomain.SyncCursor{}, err
	}

	next := maildomain.SyncCursor{
		Provider:       maildomain.ProviderGmail,
		GmailHistoryID: latestHistoryID,
	}
	return messages, next, nil
}

func (s *Service) listMessageIDs(srv *gmail.Service, query string, maxResults int) ([]string, error) {
	var ids []string
	pageToken := ""

	for {
		remaining := int64(maxResults - len(ids))
		if remaining <= 0 {
			break
		}
		if remaining > 500 {
			remaining = 500 // Gmail API maximum per page
		}

		call := srv.Users.Messages.List("me").MaxResults(remaining)
		if query != "" {
			call = call.Q(query)
		}
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		resp, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("unable to list messages: %v", err)
		}

		for _, msg := range resp.Messages {
			ids = append(ids, msg.Id)
		}

		pageToken = resp.NextPageToken
		if pageToken == "" {
			break
		}
	}

	return ids, nil
}

// fetchDetails downloads full messages in bounded concurrent batches, with a
// pause between batches to stay under Gmail's per-user rate limits. Messages
// that fail to download or fail the filter are skipped.
func (s *Service) fetchDetails(ctx context.Context, srv *gmail.Service, ids []string, filter maildomain.FetchFilter) ([]*maildomain.Message, error) {
	messages := make([]*maildomain.Message, 0, len(ids))

	for start := 0; start < len(ids); start += s.batchSize {
		end := start + s.batchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[start:end]

		type result struct {
			msg *maildomain.Message
			err error
		}
		results := make(chan result, len(batch))

		for _, id := range batch {
			go func(msgID string) {
				fullMsg, err := srv.Users.Messages.Get("me", msgID).Format("full").Do()
				if err != nil {
					results <- result{nil, err}
					return
				}
				results <- result{convertMessage(fullMsg), nil}
			}(id)
		}

		for range batch {
			r := <-results
			if r.err != nil {
				log.Printf("[Gmail] Failed to fetch message: %v", r.err)
				continue
			}
			if r.msg.MatchesFilter(filter) {
				messages = append(messages, r.msg)
			}
		}

		if end < len(ids) && s.batchDelay > 0 {
			select {
			case <-time.After(s.batchDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	// Parallel fetching returns messages in arbitrary order
	sort.Slice(messages, func(i, j int) bool {
		return messages[i].ReceivedAt.Before(messages[j].ReceivedAt)
	})

	return messages, nil
}

// buildQuery translates a fetch filter into a Gmail search query. Sender
// domains and subject keywords form one OR group so a hit on either side
// matches, mirroring the client-side filter.
func buildQuery(filter maildomain.FetchFilter) string {
	var parts []string

	if !filter.Since.IsZero() {
		parts = append(parts, "after:"+filter.Since.Format("2006/01/02"))
	}
	if !filter.Before.IsZero() {
		parts = append(parts, "before:"+filter.Before.Format("2006/01/02"))
	}

	var terms []string
	for _, d := range filter.SenderDomains {
		terms = append(terms, "from:"+d)
	}
	for _, kw := range filter.SubjectKeywords {
		if strings.ContainsAny(kw, " \t") {
			terms = append(terms, fmt.Sprintf("subject:%q", kw))
		} else {
			terms = append(terms, "subject:"+kw)
		}
	}
	if len(terms) > 0 {
		parts = append(parts, "{"+strings.Join(terms, " ")+"}")
	}

	return strings.Join(parts, " ")
}

func convertMessage(msg *gmail.Message) *maildomain.Message {
	return &maildomain.Message{
		ID:         msg.Id,
		From:       getHeader(msg.Payload.Headers, "From"),
		Subject:    getHeader(msg.Payload.Headers, "Subject"),
		ReceivedAt: time.Unix(msg.InternalDate/1000, 0),
		Body:       getMessageBody(msg.Payload),
	}
}

func getHeader(headers []*gmail.MessagePartHeader, name string) string {
	for _, header := range headers {
		if header.Name == name {
			return header.Value
		}
	}
	return ""
}

// getMessageBody extracts the text body, preferring text/plain over
// text/html since the extraction model works on plain text.
func getMessageBody(payload *gmail.MessagePart) string {
	if payload.Body != nil && payload.Body.Data != "" {
		data, err := base64.URLEncoding.DecodeString(payload.Body.Data)
		if err == nil {
			return string(data)
		}
	}

	var htmlBody string
	var plainBody string

	var findBody func(parts []*gmail.MessagePart)
	findBody = func(parts []*gmail.MessagePart) {
		for _, part := range parts {
			if part.Body != nil && part.Body.Data != "" {
				data, err := base64.URLEncoding.DecodeString(part.Body.Data)
				if err == nil {
					switch part.MimeType {
					case "text/plain":
						if plainBody == "" {
							plainBody = string(data)
						}
					case "text/html":
						if htmlBody == "" {
							htmlBody = string(data)
						}
					}
				}
			}
			if len(part.Parts) > 0 {
				findBody(part.Parts)
			}
		}
	}
	findBody(payload.Parts)

	if plainBody != "" {
		return plainBody
	}
	return htmlBody
}
