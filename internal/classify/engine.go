package classify

import (
	"context"
	"fmt"
	"log"
	"time"
	"unicode/utf8"
)

// Fixed truncation budgets for model calls. Classification sees a short
// prefix; extraction gets a larger one.
const (
	classifyBudget = 2000
	extractBudget  = 8000
)

// Engine orchestrates the two-stage model call: a cheap relevance
// classification followed, only for relevant mail, by field extraction.
type Engine struct {
	provider   Provider
	maxRetries int
	baseDelay  time.Duration
}

func NewEngine(provider Provider, maxRetries int, baseDelay time.Duration) *Engine {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if baseDelay <= 0 {
		baseDelay = 2 * time.Second
	}
	return &Engine{
		provider:   provider,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
	}
}

// Process classifies a message body and, when it is subscription-related,
// extracts structured facts. A nil Extraction with a nil error means the
// message was confidently irrelevant.
func (e *Engine) Process(ctx context.Context, body string) (*Classification, *Extraction, error) {
	var classification *Classification
	err := e.withRetry(ctx, "classify", func() error {
		var callErr error
		classification, callErr = e.provider.Classify(ctx, truncate(body, classifyBudget))
		return callErr
	})
	if err != nil {
		return nil, nil, fmt.Errorf("classification failed: %w", err)
	}

	if !classification.IsSubscriptionRelated {
		return classification, nil, nil
	}

	var extraction *Extraction
	err = e.withRetry(ctx, "extract", func() error {
		var callErr error
		extraction, callErr = e.provider.Extract(ctx, truncate(body, extractBudget))
		return callErr
	})
	if err != nil {
		return classification, nil, fmt.Errorf("extraction failed: %w", err)
	}

	return classification, extraction, nil
}

// withRetry retries retryable provider failures with exponential backoff.
// Terminal failures (malformed responses) surface immediately.
func (e *Engine) withRetry(ctx context.Context, stage string, call func() error) error {
	var lastErr error
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if attempt > 0 {
			delay := e.baseDelay * time.Duration(1<<(attempt-1))
			log.Printf("[Classify] %s attempt %d/%d after %v: %v", stage, attempt+1, e.maxRetries+1, delay, lastErr)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastErr = call()
		if lastErr == nil {
			return nil
		}
		if !IsRetryable(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

// truncate cuts s down to at most budget bytes without splitting a rune
func truncate(s string, budget int) string {
	if len(s) <= budget {
		return s
	}
	cut := budget
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
