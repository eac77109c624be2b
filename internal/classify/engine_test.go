package classify

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"
	"unicode/utf8"

	subdomain "subtrack-backend/internal/subscription/domain"
)

// fakeProvider scripts per-call outcomes for engine tests
type fakeProvider struct {
	classification *Classification
	extraction     *Extraction

	classifyErrs []error
	extractErrs  []error

	classifyCalls int
	extractCalls  int
}

func (p *fakeProvider) Classify(ctx context.Context, text string) (*Classification, error) {
	p.classifyCalls++
	if len(p.classifyErrs) > 0 {
		err := p.classifyErrs[0]
		p.classifyErrs = p.classifyErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return p.classification, nil
}

func (p *fakeProvider) Extract(ctx context.Context, text string) (*Extraction, error) {
	p.extractCalls++
	if len(p.extractErrs) > 0 {
		err := p.extractErrs[0]
		p.extractErrs = p.extractErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return p.extraction, nil
}

func relevantClassification() *Classification {
	return &Classification{IsSubscriptionRelated: true, Confidence: 0.92, EmailType: "receipt"}
}

func sampleExtraction() *Extraction {
	return &Extraction{
		ServiceName:  "Netflix",
		Price:        15.99,
		Currency:     "USD",
		BillingCycle: subdomain.CycleMonthly,
		Category:     "entertainment",
		Fields: FieldConfidence{
			ServiceName: 0.9, Price: 0.9, BillingCycle: 0.8,
			RenewalDate: 0.7, Category: 0.6, Currency: 0.95,
		},
	}
}

func TestProcessIrrelevantSkipsExtraction(t *testing.T) {
	provider := &fakeProvider{
		classification: &Classification{IsSubscriptionRelated: false, Confidence: 0.95},
	}
	engine := NewEngine(provider, 3, time.Millisecond)

	classification, extraction, err := engine.Process(context.Background(), "lunch on thursday?")
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if extraction != nil {
		t.Error("extraction returned for irrelevant mail")
	}
	if classification == nil || classification.IsSubscriptionRelated {
		t.Errorf("classification = %+v, want irrelevant", classification)
	}
	if provider.extractCalls != 0 {
		t.Errorf("Extract called %d times for irrelevant mail", provider.extractCalls)
	}
}

func TestProcessRelevantExtracts(t *testing.T) {
	provider := &fakeProvider{
		classification: relevantClassification(),
		extraction:     sampleExtraction(),
	}
	engine := NewEngine(provider, 3, time.Millisecond)

	_, extraction, err := engine.Process(context.Background(), "Your Netflix receipt")
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if extraction == nil || extraction.ServiceName != "Netflix" {
		t.Fatalf("extraction = %+v, want Netflix", extraction)
	}
}

func TestProcessRetriesRateLimit(t *testing.T) {
	provider := &fakeProvider{
		classification: relevantClassification(),
		extraction:     sampleExtraction(),
		classifyErrs:   []error{ErrRateLimited, ErrRateLimited, nil},
	}
	engine := NewEngine(provider, 3, time.Millisecond)

	_, extraction, err := engine.Process(context.Background(), "Your Netflix receipt")
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if extraction == nil {
		t.Fatal("extraction missing after retried classification")
	}
	if provider.classifyCalls != 3 {
		t.Errorf("Classify called %d times, want 3", provider.classifyCalls)
	}
}

func TestProcessRetriesExhausted(t *testing.T) {
	provider := &fakeProvider{
		classifyErrs: []error{ErrUnavailable, ErrUnavailable, ErrUnavailable},
	}
	engine := NewEngine(provider, 2, time.Millisecond)

	_, _, err := engine.Process(context.Background(), "body")
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("Process() error = %v, want ErrUnavailable", err)
	}
	if provider.classifyCalls != 3 {
		t.Errorf("Classify called %d times, want 3 (initial + 2 retries)", provider.classifyCalls)
	}
}

func TestProcessMalformedFailsFast(t *testing.T) {
	provider := &fakeProvider{
		classification: relevantClassification(),
		extractErrs:    []error{ErrMalformedResponse},
	}
	engine := NewEngine(provider, 3, time.Millisecond)

	classification, extraction, err := engine.Process(context.Background(), "body")
	if !errors.Is(err, ErrMalformedResponse) {
		t.Errorf("Process() error = %v, want ErrMalformedResponse", err)
	}
	if extraction != nil {
		t.Error("extraction returned alongside a terminal failure")
	}
	if classification == nil {
		t.Error("stage-1 classification lost on extraction failure")
	}
	if provider.extractCalls != 1 {
		t.Errorf("Extract called %d times, want 1 (no retry on malformed)", provider.extractCalls)
	}
}

func TestProcessContextCancelledDuringBackoff(t *testing.T) {
	provider := &fakeProvider{
		classifyErrs: []error{ErrTimeout, ErrTimeout, ErrTimeout, ErrTimeout},
	}
	engine := NewEngine(provider, 3, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := engine.Process(ctx, "body")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Process() error = %v, want context.Canceled", err)
	}
}

func TestIsRetryable(t *testing.T) {
	retryable := []error{ErrRateLimited, ErrUnavailable, ErrTimeout}
	for _, err := range retryable {
		if !IsRetryable(err) {
			t.Errorf("IsRetryable(%v) = false, want true", err)
		}
	}
	if IsRetryable(ErrMalformedResponse) {
		t.Error("IsRetryable(ErrMalformedResponse) = true, want false")
	}
	if IsRetryable(errors.New("something else")) {
		t.Error("IsRetryable(arbitrary error) = true, want false")
	}
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	cases := []struct {
		name   string
		in     string
		budget int
		want   string
	}{
		{"under budget", "hello", 10, "hello"},
		{"exact budget", "hello", 5, "hello"},
		{"ascii cut", "hello", 3, "hel"},
		{"boundary inside two-byte rune", "aé", 2, "a"},
		{"boundary inside three-byte rune", "a€b", 3, "a"},
		{"multibyte survives when whole", "aé", 3, "aé"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := truncate(tc.in, tc.budget)
			if got != tc.want {
				t.Errorf("truncate(%q, %d) = %q, want %q", tc.in, tc.budget, got, tc.want)
			}
			if !utf8.ValidString(got) {
				t.Errorf("truncate(%q, %d) produced invalid UTF-8 %q", tc.in, tc.budget, got)
			}
		})
	}
}

func TestOverallConfidenceWeighting(t *testing.T) {
	ext := sampleExtraction()
	want := 0.9*0.25 + 0.9*0.25 + 0.8*0.20 + 0.7*0.15 + 0.6*0.10 + 0.95*0.05
	if got := ext.OverallConfidence(); math.Abs(got-want) > 1e-9 {
		t.Errorf("OverallConfidence() = %v, want %v", got, want)
	}

	uniform := &Extraction{Fields: FieldConfidence{
		ServiceName: 0.5, Price: 0.5, BillingCycle: 0.5,
		RenewalDate: 0.5, Category: 0.5, Currency: 0.5,
	}}
	if got := uniform.OverallConfidence(); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("uniform OverallConfidence() = %v, want 0.5", got)
	}
}
