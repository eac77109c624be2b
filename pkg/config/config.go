package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	DatabaseURL string

	JWTSecret       string
	JWTAccessExpiry time.Duration

	GoogleClientID     string
	GoogleClientSecret string

	GeminiAPIKey string

	MailgunDomain string
	MailgunAPIKey string
	MailgunSender string

	FirebaseCredentials string

	// CredentialKey is the AES-256 key (hex, 64 chars) used to encrypt
	// stored mailbox credentials.
	CredentialKey string

	// Ingestion
	LookbackMonths  int
	MaxScanResults  int
	ScanConcurrency int
	FetchBatchSize  int
	FetchBatchDelay time.Duration
	QueueCapacity   int
	ScanInterval    time.Duration

	// Classification / extraction
	ReviewThreshold     float64
	ModelMaxRetries     int
	ModelRetryBaseDelay time.Duration

	// Alerts
	AlertEvalInterval     time.Duration
	AlertDispatchInterval time.Duration
	AlertRetryCeiling     int
	AlertRetryBaseDelay   time.Duration
	TrialLeadDays         int
	PriceWindowDays       int
	UnusedMonths          int
	UnusedCooldownDays    int
}

func Load() *Config {
	// Load .env file if it exists
	_ = godotenv.Load()

	return &Config{
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: getEnv("DATABASE_URL", "host=localhost user=postgres password=postgres dbname=subtrack port=5432 sslmode=disable"),

		JWTSecret:       getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
		JWTAccessExpiry: getDuration("JWT_ACCESS_EXPIRY", 15*time.Minute),

		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),

		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),

		MailgunDomain: getEnv("MAILGUN_DOMAIN", ""),
		MailgunAPIKey: getEnv("MAILGUN_API_KEY", ""),
		MailgunSender: getEnv("MAILGUN_SENDER", "alerts@subtrack.app"),

		FirebaseCredentials: getEnv("FIREBASE_CREDENTIALS", ""),

		CredentialKey: getEnv("CREDENTIAL_KEY", ""),

		LookbackMonths:  getInt("SCAN_LOOKBACK_MONTHS", 12),
		MaxScanResults:  getInt("SCAN_MAX_RESULTS", 500),
		ScanConcurrency: getInt("SCAN_CONCURRENCY", 3),
		FetchBatchSize:  getInt("FETCH_BATCH_SIZE", 10),
		FetchBatchDelay: getDuration("FETCH_BATCH_DELAY", 500*time.Millisecond),
		QueueCapacity:   getInt("QUEUE_CAPACITY", 100),
		ScanInterval:    getDuration("SCAN_INTERVAL", 6*time.Hour),

		ReviewThreshold:     getFloat("REVIEW_THRESHOLD", 0.60),
		ModelMaxRetries:     getInt("MODEL_MAX_RETRIES", 3),
		ModelRetryBaseDelay: getDuration("MODEL_RETRY_BASE_DELAY", 2*time.Second),

		AlertEvalInterval:     getDuration("ALERT_EVAL_INTERVAL", time.Hour),
		AlertDispatchInterval: getDuration("ALERT_DISPATCH_INTERVAL", time.Minute),
		AlertRetryCeiling:     getInt("ALERT_RETRY_CEILING", 5),
		AlertRetryBaseDelay:   getDuration("ALERT_RETRY_BASE_DELAY", 5*time.Minute),
		TrialLeadDays:         getInt("TRIAL_LEAD_DAYS", 3),
		PriceWindowDays:       getInt("PRICE_WINDOW_DAYS", 7),
		UnusedMonths:          getInt("UNUSED_MONTHS", 3),
		UnusedCooldownDays:    getInt("UNUSED_COOLDOWN_DAYS", 30),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
