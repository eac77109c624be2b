package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"subtrack-backend/internal/mailscan/domain"
	"subtrack-backend/internal/mailscan/repository"
	"subtrack-backend/pkg/crypto"
)

// billingKeywords is the default subject filter for a scan. Sender-domain
// hits from the extraction side come later in the pipeline; the subject
// filter just keeps obviously unrelated mail out of the queue.
var billingKeywords = []string{
	"receipt", "invoice", "payment", "subscription",
	"renewal", "billing", "trial", "order confirmation",
}

type ScannerConfig struct {
	LookbackMonths int
	MaxResults     int
	Concurrency    int
}

// ScanResult summarizes one account scan
type ScanResult struct {
	AccountID   string `json:"account_id"`
	Fetched     int    `json:"fetched"`
	Queued      int    `json:"queued"`
	Incremental bool   `json:"incremental"`
}

// Scanner drives mailbox ingestion: it fetches messages through the
// provider gateway, records them in the metadata ledger, and queues the
// unprocessed ones for classification by message age.
type Scanner struct {
	accountRepo  repository.EmailAccountRepository
	metadataRepo repository.EmailMetadataRepository
	gateways     map[domain.Provider]domain.MessageGateway
	box          *crypto.Box
	queue        *PriorityQueue
	cfg          ScannerConfig
}

func NewScanner(
	accountRepo repository.EmailAccountRepository,
	metadataRepo repository.EmailMetadataRepository,
	gateways map[domain.Provider]domain.MessageGateway,
	box *crypto.Box,
	queue *PriorityQueue,
	cfg ScannerConfig,
) *Scanner {
	return &Scanner{
		accountRepo:  accountRepo,
		metadataRepo: metadataRepo,
		gateways:     gateways,
		box:          box,
		queue:        queue,
		cfg:          cfg,
	}
}

// EncryptCredentials serializes and seals a credential set for storage
func EncryptCredentials(box *crypto.Box, creds *domain.AccountCredentials) (string, error) {
	plain, err := json.Marshal(creds)
	if err != nil {
		return "", err
	}
	return box.Encrypt(plain)
}

// ScanAccount runs one scan of a single account. With a valid cursor the
// scan is incremental; otherwise, or when the provider rejects the cursor,
// it falls back to a full lookback-window fetch. Cursor staleness is always
// recoverable and never surfaces to the caller.
func (s *Scanner) ScanAccount(ctx context.Context, accountID string) (*ScanResult, error) {
	account, err := s.accountRepo.FindByID(accountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, fmt.Errorf("account %s not found", accountID)
	}
	if account.Status != domain.AccountConnected {
		return nil, fmt.Errorf("account %s is disconnected", accountID)
	}

	gateway, ok := s.gateways[account.Provider]
	if !ok {
		return nil, fmt.Errorf("no gateway for provider %s", account.Provider)
	}

	creds, err := s.decryptCredentials(account)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt credentials: %w", err)
	}

	filter := domain.FetchFilter{
		Since:           time.Now().AddDate(0, -s.cfg.LookbackMonths, 0),
		SubjectKeywords: billingKeywords,
		MaxResults:      s.cfg.MaxResults,
	}

	var (
		messages    []*domain.Message
		cursor      domain.SyncCursor
		incremental bool
	)

	if c := account.Cursor(); !c.IsZero() {
		messages, cursor, err = gateway.FetchSinceCursor(ctx, creds, c, filter)
		incremental = true
		if errors.Is(err, domain.ErrCursorInvalid) {
			log.Printf("[Scanner] Cursor invalid for account %s, falling back to full scan", accountID)
			account.ClearCursor()
			messages, cursor, err = gateway.Fetch(ctx, creds, filter)
			incremental = false
		}
	} else {
		messages, cursor, err = gateway.Fetch(ctx, creds, filter)
	}
	if err != nil {
		return nil, err
	}

	queued, err := s.recordAndQueue(ctx, account, messages)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	account.SetCursor(cursor)
	account.LastScannedAt = &now
	if err := s.accountRepo.Update(account); err != nil {
		return nil, fmt.Errorf("failed to persist scan cursor: %w", err)
	}

	log.Printf("[Scanner] Account %s: fetched %d, queued %d (incremental=%v)",
		accountID, len(messages), queued, incremental)

	return &ScanResult{
		AccountID:   accountID,
		Fetched:     len(messages),
		Queued:      queued,
		Incremental: incremental,
	}, nil
}

// ScanAllAccounts fans a scan out over every connected account with bounded
// concurrency. One account's failure never blocks the others.
func (s *Scanner) ScanAllAccounts(ctx context.Context) {
	accounts, err := s.accountRepo.FindAllConnected()
	if err != nil {
		log.Printf("[Scanner] Failed to list accounts: %v", err)
		return
	}
	s.scanConcurrently(ctx, accounts)
}

// ScanUserAccounts scans every connected account belonging to one user and
// returns the per-account results. Failed accounts are logged and omitted.
func (s *Scanner) ScanUserAccounts(ctx context.Context, userID string) ([]*ScanResult, error) {
	accounts, err := s.accountRepo.FindByUserID(userID)
	if err != nil {
		return nil, err
	}
	connected := accounts[:0]
	for _, account := range accounts {
		if account.Status == domain.AccountConnected {
			connected = append(connected, account)
		}
	}
	return s.scanConcurrently(ctx, connected), nil
}

func (s *Scanner) scanConcurrently(ctx context.Context, accounts []*domain.EmailAccount) []*ScanResult {
	if len(accounts) == 0 {
		return nil
	}

	semaphore := make(chan struct{}, s.cfg.Concurrency)
	results := make([]*ScanResult, len(accounts))
	var wg sync.WaitGroup

	for i, account := range accounts {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			result, err := s.ScanAccount(ctx, id)
			if err != nil {
				log.Printf("[Scanner] Scan failed for account %s: %v", id, err)
				return
			}
			results[i] = result
		}(i, account.ID)
	}
	wg.Wait()

	out := make([]*ScanResult, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

// recordAndQueue writes the fetched page into the metadata ledger and
// queues the entries the ledger reports as schedulable, laned by message
// age. Bodies travel with the queue items and are never persisted.
func (s *Scanner) recordAndQueue(ctx context.Context, account *domain.EmailAccount, messages []*domain.Message) (int, error) {
	if len(messages) == 0 {
		return 0, nil
	}

	entries, err := s.metadataRepo.RecordBatch(account, messages)
	if err != nil {
		return 0, err
	}

	bodies := make(map[string]string, len(messages))
	for _, m := range messages {
		bodies[m.ID] = m.Body
	}

	now := time.Now()
	queued := 0
	for _, entry := range entries {
		item := &WorkItem{
			Metadata: entry,
			Body:     bodies[entry.MessageID],
		}
		if err := s.queue.Enqueue(ctx, LaneFor(entry.ReceivedAt, now), item); err != nil {
			return queued, err
		}
		if err := s.metadataRepo.MarkQueued(entry.ID); err != nil {
			log.Printf("[Scanner] Failed to mark %s queued: %v", entry.ID, err)
		}
		queued++
	}

	return queued, nil
}

func (s *Scanner) decryptCredentials(account *domain.EmailAccount) (*domain.AccountCredentials, error) {
	plain, err := s.box.Decrypt(account.EncryptedCredentials)
	if err != nil {
		return nil, err
	}

	var creds domain.AccountCredentials
	if err := json.Unmarshal(plain, &creds); err != nil {
		return nil, err
	}

	// Persist refreshed OAuth tokens back into the encrypted blob so the
	// next scan does not start from a dead access token.
	accountID := account.ID
	creds.OnTokenRefresh = func(accessToken, refreshToken string) error {
		stored, err := s.accountRepo.FindByID(accountID)
		if err != nil || stored == nil {
			return err
		}

		updated := creds
		updated.AccessToken = accessToken
		if refreshToken != "" {
			updated.RefreshToken = refreshToken
		}
		blob, err := EncryptCredentials(s.box, &updated)
		if err != nil {
			return err
		}
		stored.EncryptedCredentials = blob
		return s.accountRepo.Update(stored)
	}

	return &creds, nil
}
