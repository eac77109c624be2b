package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"

	"subtrack-backend/internal/mailscan/domain"
	"subtrack-backend/internal/mailscan/repository"
	"subtrack-backend/pkg/crypto"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrInvalidAccount  = errors.New("invalid account input")
)

// SubscriptionArchiver is the disconnect cascade hook into the ledger
type SubscriptionArchiver interface {
	ArchiveAccountSubscriptions(accountID string) (int64, error)
}

// AccountUsecase manages connected mailboxes
type AccountUsecase interface {
	Connect(userID string, provider domain.Provider, creds *domain.AccountCredentials) (*domain.EmailAccount, error)
	List(userID string) ([]*domain.EmailAccount, error)
	// Disconnect marks the account disconnected and archives its live
	// subscriptions, returning how many were archived. Other accounts and
	// their subscriptions are untouched.
	Disconnect(userID, accountID string) (int64, error)
	// Scan triggers an on-demand scan of one owned account
	Scan(ctx context.Context, userID, accountID string) (*ScanResult, error)
	// ScanAll scans every connected account the user owns
	ScanAll(ctx context.Context, userID string) ([]*ScanResult, error)
}

type accountUsecase struct {
	accountRepo repository.EmailAccountRepository
	archiver    SubscriptionArchiver
	scanner     *Scanner
	box         *crypto.Box
}

func NewAccountUsecase(
	accountRepo repository.EmailAccountRepository,
	archiver SubscriptionArchiver,
	scanner *Scanner,
	box *crypto.Box,
) AccountUsecase {
	return &accountUsecase{
		accountRepo: accountRepo,
		archiver:    archiver,
		scanner:     scanner,
		box:         box,
	}
}

func (u *accountUsecase) Connect(userID string, provider domain.Provider, creds *domain.AccountCredentials) (*domain.EmailAccount, error) {
	if userID == "" || creds == nil || creds.Email == "" {
		return nil, fmt.Errorf("%w: user and email are required", ErrInvalidAccount)
	}

	switch provider {
	case domain.ProviderGmail:
		if creds.AccessToken == "" {
			return nil, fmt.Errorf("%w: gmail accounts require an access token", ErrInvalidAccount)
		}
	case domain.ProviderIMAP:
		if creds.IMAPHost == "" || creds.IMAPPort == 0 || creds.IMAPPassword == "" {
			return nil, fmt.Errorf("%w: imap accounts require host, port and password", ErrInvalidAccount)
		}
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidAccount, provider)
	}

	blob, err := EncryptCredentials(u.box, creds)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt credentials: %w", err)
	}

	account := &domain.EmailAccount{
		UserID:               userID,
		Provider:             provider,
		Email:                creds.Email,
		EncryptedCredentials: blob,
		Status:               domain.AccountConnected,
	}
	if err := u.accountRepo.Create(account); err != nil {
		return nil, err
	}

	log.Printf("[Account] Connected %s account %s for user %s", provider, account.ID, userID)
	return account, nil
}

func (u *accountUsecase) List(userID string) ([]*domain.EmailAccount, error) {
	return u.accountRepo.FindByUserID(userID)
}

func (u *accountUsecase) Disconnect(userID, accountID string) (int64, error) {
	account, err := u.owned(userID, accountID)
	if err != nil {
		return 0, err
	}

	if err := u.accountRepo.MarkDisconnected(account.ID); err != nil {
		return 0, err
	}

	archived, err := u.archiver.ArchiveAccountSubscriptions(account.ID)
	if err != nil {
		return 0, fmt.Errorf("account disconnected but archive cascade failed: %w", err)
	}

	log.Printf("[Account] Disconnected account %s, archived %d subscriptions", accountID, archived)
	return archived, nil
}

func (u *accountUsecase) Scan(ctx context.Context, userID, accountID string) (*ScanResult, error) {
	if _, err := u.owned(userID, accountID); err != nil {
		return nil, err
	}
	return u.scanner.ScanAccount(ctx, accountID)
}

func (u *accountUsecase) ScanAll(ctx context.Context, userID string) ([]*ScanResult, error) {
	return u.scanner.ScanUserAccounts(ctx, userID)
}

func (u *accountUsecase) owned(userID, accountID string) (*domain.EmailAccount, error) {
	account, err := u.accountRepo.FindByID(accountID)
	if err != nil {
		return nil, err
	}
	if account == nil || account.UserID != userID {
		return nil, ErrAccountNotFound
	}
	return account, nil
}
