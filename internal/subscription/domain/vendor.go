package domain

import "time"

// VendorMetadata is a normalized vendor-directory entry. Entries are created
// lazily on first sighting and enriched asynchronously.
type VendorMetadata struct {
	ID                   string    `json:"id" gorm:"primaryKey"`
	Name                 string    `json:"name" gorm:"not null"`
	NormalizedName       string    `json:"normalized_name" gorm:"uniqueIndex;not null"`
	Category             string    `json:"category"`
	LogoURL              string    `json:"logo_url,omitempty"`
	WebsiteURL           string    `json:"website_url,omitempty"`
	AccountManagementURL string    `json:"account_management_url,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

func (VendorMetadata) TableName() string {
	return "vendor_metadata"
}
