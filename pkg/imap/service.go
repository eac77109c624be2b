package imap

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log"
	"net"
	"net/mail"
	"sort"
	"strings"
	"time"

	maildomain "subtrack-backend/internal/mailscan/domain"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
)

// Service implements maildomain.MessageGateway over IMAP. Incremental sync
// uses the mailbox UIDVALIDITY/UID pair; a change in UIDVALIDITY invalidates
// every stored UID and forces the caller back to a full fetch.
type Service struct {
	batchSize int
}

func NewService(batchSize int) *Service {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &Service{batchSize: batchSize}
}

func (s *Service) connect(creds *maildomain.AccountCredentials) (*client.Client, error) {
	addr := fmt.Sprintf("%s:%d", creds.IMAPHost, creds.IMAPPort)
	dialer := &net.Dialer{Timeout: 10 * time.Second}

	tlsConfig := &tls.Config{ServerName: creds.IMAPHost}
	conn, err := tls.DialWithDialer(dialer, "tcp", addr, tlsConfig)
	if err != nil {
		return nil, fmt.Errorf("IMAP connection failed: %v", err)
	}

	c, err := client.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("IMAP connection failed: %v", err)
	}

	// Full scans of large mailboxes take a while
	c.Timeout = 5 * time.Minute

	if err := c.Login(creds.Email, creds.IMAPPassword); err != nil {
		c.Logout()
		return nil, fmt.Errorf("IMAP login failed: %v", err)
	}

	return c, nil
}

// Fetch performs a full windowed fetch of the INBOX. The returned cursor
// records the mailbox UIDVALIDITY and the highest UID as of the fetch.
func (s *Service) Fetch(ctx context.Context, creds *maildomain.AccountCredentials, filter maildomain.FetchFilter) ([]*maildomain.Message, maildomain.SyncCursor, error) {
	c, err := s.connect(creds)
	if err != nil {
		return nil, maildomain.SyncCursor{}, err
	}
	defer c.Logout()

	mbox, err := c.Select("INBOX", true)
	if err != nil {
		return nil, maildomain.SyncCursor{}, fmt.Errorf("failed to select INBOX: %v", err)
	}

	cursor := maildomain.SyncCursor{
		Provider:        maildomain.ProviderIMAP,
		IMAPUIDValidity: mbox.UidValidity,
		IMAPLastUID:     mbox.UidNext - 1,
	}

	if mbox.Messages == 0 {
		return nil, cursor, nil
	}

	criteria := imap.NewSearchCriteria()
	if !filter.Since.IsZero() {
		criteria.Since = filter.Since
	}
	if !filter.Before.IsZero() {
		criteria.Before = filter.Before
	}

	uids, err := c.UidSearch(criteria)
	if err != nil {
		return nil, maildomain.SyncCursor{}, fmt.Errorf("IMAP search failed: %v", err)
	}
	if len(uids) == 0 {
		return nil, cursor, nil
	}

	// Keep the newest messages when the window exceeds the cap
	if filter.MaxResults > 0 && len(uids) > filter.MaxResults {
		sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
		uids = uids[len(uids)-filter.MaxResults:]
	}

	messages, err := s.fetchByUID(ctx, c, uids, filter)
	if err != nil {
		return nil, maildomain.SyncCursor{}, err
	}
	return messages, cursor, nil
}

// FetchSinceCursor returns messages with UIDs above the cursor position.
func (s *Service) FetchSinceCursor(ctx context.Context, creds *maildomain.AccountCredentials, cursor maildomain.SyncCursor, filter maildomain.FetchFilter) ([]*maildomain.Message, maildomain.SyncCursor, error) {
	c, err := s.connect(creds)
	if err != nil {
		return nil, maildomain.SyncCursor{}, err
	}
	defer c.Logout()

	mbox, err := c.Select("INBOX", true)
	if err != nil {
		return nil, maildomain.SyncCursor{}, fmt.Errorf("failed to select INBOX: %v", err)
	}

	if mbox.UidValidity != cursor.IMAPUIDValidity {
		return nil, maildomain.SyncCursor{}, maildomain.ErrCursorInvalid
	}

	next := maildomain.SyncCursor{
		Provider:        maildomain.ProviderIMAP,
		IMAPUIDValidity: mbox.UidValidity,
		IMAPLastUID:     mbox.UidNext - 1,
	}

	// A UID range whose start exceeds the highest UID would wrap around and
	// refetch the newest message, so bail out before asking.
	if mbox.UidNext-1 <= cursor.IMAPLastUID {
		next.IMAPLastUID = cursor.IMAPLastUID
		return nil, next, nil
	}

	set := new(imap.SeqSet)
	set.AddRange(cursor.IMAPLastUID+1, mbox.UidNext-1)

	uids, err := c.UidSearch(&imap.SearchCriteria{Uid: set})
	if err != nil {
		return nil, maildomain.SyncCursor{}, fmt.Errorf("IMAP search failed: %v", err)
	}
	if len(uids) == 0 {
		return nil, next, nil
	}

	messages, err := s.fetchByUID(ctx, c, uids, filter)
	if err != nil {
		return nil, maildomain.SyncCursor{}, err
	}
	return messages, next, nil
}

// fetchByUID downloads envelopes and bodies for the given UIDs in batches
// over the single connection. Messages failing the filter are dropped here
// so callers only see relevant mail.
func (s *Service) fetchByUID(ctx context.Context, c *client.Client, uids []uint32, filter maildomain.FetchFilter) ([]*maildomain.Message, error) {
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, imap.FetchEnvelope, section.FetchItem()}

	var out []*maildomain.Message

	for start := 0; start < len(uids); start += s.batchSize {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		end := start + s.batchSize
		if end > len(uids) {
			end = len(uids)
		}

		uidSet := new(imap.SeqSet)
		uidSet.AddNum(uids[start:end]...)

		messages := make(chan *imap.Message, s.batchSize)
		done := make(chan error, 1)
		go func() {
			done <- c.UidFetch(uidSet, items, messages)
		}()

		for msg := range messages {
			if msg == nil {
				continue
			}
			parsed := parseMessage(msg, section)
			if parsed != nil && parsed.MatchesFilter(filter) {
				out = append(out, parsed)
			}
		}

		if err := <-done; err != nil {
			log.Printf("[IMAP] UID fetch error: %v", err)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].ReceivedAt.Before(out[j].ReceivedAt)
	})
	return out, nil
}

func parseMessage(msg *imap.Message, section *imap.BodySectionName) *maildomain.Message {
	out := &maildomain.Message{
		ID: fmt.Sprintf("uid:%d", msg.Uid),
	}

	if msg.Envelope != nil {
		if msg.Envelope.MessageId != "" {
			out.ID = msg.Envelope.MessageId
		}
		out.Subject = msg.Envelope.Subject
		out.ReceivedAt = msg.Envelope.Date
		if len(msg.Envelope.From) > 0 {
			out.From = formatAddress(msg.Envelope.From[0])
		}
	}

	if literal := msg.GetBody(section); literal != nil {
		content, err := io.ReadAll(literal)
		if err == nil && len(content) > 0 {
			out.Body = extractTextBody(content)
		}
	}

	return out
}

// extractTextBody parses a raw RFC 822 message and returns its text body,
// preferring text/plain over text/html.
func extractTextBody(raw []byte) string {
	entity, err := message.Read(bytes.NewReader(raw))
	if err != nil {
		// Fall back to a plain RFC 822 parse for malformed MIME
		m, mailErr := mail.ReadMessage(bytes.NewReader(raw))
		if mailErr != nil {
			return ""
		}
		body, _ := io.ReadAll(m.Body)
		return string(body)
	}

	var plain, html string
	collectTextParts(entity, &plain, &html)
	if plain != "" {
		return plain
	}
	return html
}

func collectTextParts(entity *message.Entity, plain, html *string) {
	mediaType, _, _ := entity.Header.ContentType()

	if strings.HasPrefix(mediaType, "multipart/") {
		mr := entity.MultipartReader()
		for {
			part, err := mr.NextPart()
			if err != nil {
				break
			}
			collectTextParts(part, plain, html)
		}
		return
	}

	switch mediaType {
	case "text/plain":
		if *plain == "" {
			body, _ := io.ReadAll(entity.Body)
			*plain = string(body)
		}
	case "text/html":
		if *html == "" {
			body, _ := io.ReadAll(entity.Body)
			*html = string(body)
		}
	}
}

func formatAddress(addr *imap.Address) string {
	if addr.PersonalName != "" {
		return fmt.Sprintf("%s <%s@%s>", addr.PersonalName, addr.MailboxName, addr.HostName)
	}
	return fmt.Sprintf("%s@%s", addr.MailboxName, addr.HostName)
}
