package domain

import "time"

// Provider identifies the mail provider an account is connected through
type Provider string

const (
	ProviderGmail Provider = "gmail"
	ProviderIMAP  Provider = "imap"
)

type AccountStatus string

const (
	AccountConnected    AccountStatus = "connected"
	AccountDisconnected AccountStatus = "disconnected"
)

// EmailAccount is a connected mailbox owned by a user. Credentials are stored
// as an encrypted blob and decrypted only for the duration of a scan.
type EmailAccount struct {
	ID                   string        `json:"id" gorm:"primaryKey"`
	UserID               string        `json:"user_id" gorm:"index;not null"`
	Provider             Provider      `json:"provider" gorm:"not null"`
	Email                string        `json:"email" gorm:"not null"`
	EncryptedCredentials string        `json:"-" gorm:"type:text"`
	Status               AccountStatus `json:"status" gorm:"default:connected"`

	// Incremental-sync cursor, tagged by provider. Exactly one variant is
	// meaningful for a given account.
	GmailHistoryID  uint64 `json:"-"`
	IMAPUIDValidity uint32 `json:"-"`
	IMAPLastUID     uint32 `json:"-"`

	LastScannedAt *time.Time `json:"last_scanned_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// SyncCursor is the provider-tagged incremental-sync position for an account.
type SyncCursor struct {
	Provider        Provider
	GmailHistoryID  uint64
	IMAPUIDValidity uint32
	IMAPLastUID     uint32
}

func (c SyncCursor) IsZero() bool {
	switch c.Provider {
	case ProviderGmail:
		return c.GmailHistoryID == 0
	case ProviderIMAP:
		return c.IMAPLastUID == 0
	}
	return true
}

func (a *EmailAccount) Cursor() SyncCursor {
	return SyncCursor{
		Provider:        a.Provider,
		GmailHistoryID:  a.GmailHistoryID,
		IMAPUIDValidity: a.IMAPUIDValidity,
		IMAPLastUID:     a.IMAPLastUID,
	}
}

func (a *EmailAccount) SetCursor(c SyncCursor) {
	a.GmailHistoryID = c.GmailHistoryID
	a.IMAPUIDValidity = c.IMAPUIDValidity
	a.IMAPLastUID = c.IMAPLastUID
}

func (a *EmailAccount) ClearCursor() {
	a.GmailHistoryID = 0
	a.IMAPUIDValidity = 0
	a.IMAPLastUID = 0
}

// TokenUpdateFunc persists refreshed OAuth tokens back to storage
type TokenUpdateFunc func(accessToken, refreshToken string) error

// AccountCredentials is the decrypted credential set handed to a gateway.
// Gmail accounts use the OAuth token pair; IMAP accounts use host/password.
type AccountCredentials struct {
	Email        string `json:"email"`
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	IMAPHost     string `json:"imap_host,omitempty"`
	IMAPPort     int    `json:"imap_port,omitempty"`
	IMAPPassword string `json:"imap_password,omitempty"`

	OnTokenRefresh TokenUpdateFunc `json:"-"`
}
