package classify

import (
	"context"
	"errors"
	"time"

	subdomain "subtrack-backend/internal/subscription/domain"
)

// Typed collaborator failures. The first three are retryable; a malformed
// response is terminal and treated as an extraction failure.
var (
	ErrRateLimited       = errors.New("model provider rate limited")
	ErrUnavailable       = errors.New("model provider unavailable")
	ErrTimeout           = errors.New("model provider timed out")
	ErrMalformedResponse = errors.New("model provider returned malformed response")
)

// IsRetryable reports whether a provider error warrants a backoff retry
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrUnavailable) ||
		errors.Is(err, ErrTimeout)
}

// Classification is the stage-1 relevance verdict
type Classification struct {
	IsSubscriptionRelated bool
	Confidence            float64
	EmailType             string
}

// FieldConfidence carries the model's per-field confidence scores
type FieldConfidence struct {
	ServiceName  float64 `json:"service_name"`
	Price        float64 `json:"price"`
	BillingCycle float64 `json:"billing_cycle"`
	RenewalDate  float64 `json:"renewal_date"`
	Category     float64 `json:"category"`
	Currency     float64 `json:"currency"`
}

// Extraction is the stage-2 structured result
type Extraction struct {
	ServiceName      string
	Price            float64
	Currency         string
	BillingCycle     subdomain.BillingCycle
	RenewalDate      *time.Time
	Category         string
	CancellationLink string
	Fields           FieldConfidence
}

// Fixed per-field weighting for the overall confidence score
const (
	weightServiceName  = 0.25
	weightPrice        = 0.25
	weightBillingCycle = 0.20
	weightRenewalDate  = 0.15
	weightCategory     = 0.10
	weightCurrency     = 0.05
)

// OverallConfidence folds the per-field scores into one weighted value
func (e *Extraction) OverallConfidence() float64 {
	return e.Fields.ServiceName*weightServiceName +
		e.Fields.Price*weightPrice +
		e.Fields.BillingCycle*weightBillingCycle +
		e.Fields.RenewalDate*weightRenewalDate +
		e.Fields.Category*weightCategory +
		e.Fields.Currency*weightCurrency
}

// Provider is the contract for the classification/extraction model.
// Implement this interface to add new model providers.
type Provider interface {
	Classify(ctx context.Context, text string) (*Classification, error)
	Extract(ctx context.Context, text string) (*Extraction, error)
}
