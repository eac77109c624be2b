package domain

import (
	"encoding/json"
	"time"
)

// Preferences is the typed per-user alert configuration. Every class of
// alert is gated independently.
type Preferences struct {
	RenewalAlerts       bool `json:"renewal_alerts"`
	PriceIncreaseAlerts bool `json:"price_increase_alerts"`
	TrialEndingAlerts   bool `json:"trial_ending_alerts"`
	UnusedAlerts        bool `json:"unused_alerts"`
	PushEnabled         bool `json:"push_enabled"`
	EmailEnabled        bool `json:"email_enabled"`
}

// DefaultPreferences enables every alert class over both channels
func DefaultPreferences() Preferences {
	return Preferences{
		RenewalAlerts:       true,
		PriceIncreaseAlerts: true,
		TrialEndingAlerts:   true,
		UnusedAlerts:        true,
		PushEnabled:         true,
		EmailEnabled:        true,
	}
}

// UserPreferences is the stored row; the payload is JSON and is decoded
// defensively, falling back to defaults when it cannot be parsed.
type UserPreferences struct {
	UserID    string    `json:"user_id" gorm:"primaryKey"`
	Payload   string    `json:"-" gorm:"type:text"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (UserPreferences) TableName() string {
	return "user_alert_preferences"
}

// Decode parses the stored payload into typed preferences. A missing or
// corrupt payload yields the defaults, never an error.
func (p *UserPreferences) Decode() Preferences {
	if p == nil || p.Payload == "" {
		return DefaultPreferences()
	}
	var prefs Preferences
	if err := json.Unmarshal([]byte(p.Payload), &prefs); err != nil {
		return DefaultPreferences()
	}
	return prefs
}

// EncodePreferences serializes typed preferences for storage
func EncodePreferences(prefs Preferences) string {
	b, _ := json.Marshal(prefs)
	return string(b)
}
