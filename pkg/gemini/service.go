package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"subtrack-backend/internal/classify"
	subdomain "subtrack-backend/internal/subscription/domain"
)

const defaultModel = "gemini-2.5-flash"

// GeminiService implements classify.Provider against the Generative Language API
type GeminiService struct {
	ApiKey string
	Model  string
	client *http.Client
}

func NewGeminiService(apiKey string) *GeminiService {
	return &GeminiService{
		ApiKey: apiKey,
		Model:  defaultModel,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

const classifyPrompt = `You are an email analyst for a subscription tracker. Decide whether the email below describes a paid subscription: a renewal notice, payment receipt, trial notice, or price change.

Respond with ONLY a JSON object, no markdown:
{"is_subscription_related": boolean, "confidence": number between 0 and 1, "email_type": one of "renewal"|"receipt"|"trial"|"price_change"|"other"}

EMAIL:
%s`

const extractPrompt = `You are an email analyst for a subscription tracker. Extract subscription facts from the email below.

Respond with ONLY a JSON object, no markdown:
{
  "service_name": string,
  "price": number,
  "currency": ISO 4217 code,
  "billing_cycle": one of "weekly"|"monthly"|"quarterly"|"annual"|"unknown",
  "renewal_date": "YYYY-MM-DD" or null,
  "category": one of "Streaming"|"Software"|"Music"|"News"|"Gaming"|"Fitness"|"Storage"|"Other",
  "cancellation_link": string or null,
  "field_confidence": {"service_name": 0-1, "price": 0-1, "billing_cycle": 0-1, "renewal_date": 0-1, "category": 0-1, "currency": 0-1}
}

Use 0 confidence for any field you cannot find.

EMAIL:
%s`

type classifyResponse struct {
	IsSubscriptionRelated bool    `json:"is_subscription_related"`
	Confidence            float64 `json:"confidence"`
	EmailType             string  `json:"email_type"`
}

type extractResponse struct {
	ServiceName      string                   `json:"service_name"`
	Price            float64                  `json:"price"`
	Currency         string                   `json:"currency"`
	BillingCycle     string                   `json:"billing_cycle"`
	RenewalDate      *string                  `json:"renewal_date"`
	Category         string                   `json:"category"`
	CancellationLink *string                  `json:"cancellation_link"`
	FieldConfidence  classify.FieldConfidence `json:"field_confidence"`
}

// Classify runs the stage-1 relevance prompt
func (g *GeminiService) Classify(ctx context.Context, text string) (*classify.Classification, error) {
	raw, err := g.generate(ctx, fmt.Sprintf(classifyPrompt, text))
	if err != nil {
		return nil, err
	}

	var parsed classifyResponse
	if err := json.Unmarshal(stripFences(raw), &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", classify.ErrMalformedResponse, err)
	}

	return &classify.Classification{
		IsSubscriptionRelated: parsed.IsSubscriptionRelated,
		Confidence:            parsed.Confidence,
		EmailType:             parsed.EmailType,
	}, nil
}

// Extract runs the stage-2 field-extraction prompt
func (g *GeminiService) Extract(ctx context.Context, text string) (*classify.Extraction, error) {
	raw, err := g.generate(ctx, fmt.Sprintf(extractPrompt, text))
	if err != nil {
		return nil, err
	}

	var parsed extractResponse
	if err := json.Unmarshal(stripFences(raw), &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", classify.ErrMalformedResponse, err)
	}

	result := &classify.Extraction{
		ServiceName:  parsed.ServiceName,
		Price:        parsed.Price,
		Currency:     strings.ToUpper(parsed.Currency),
		BillingCycle: subdomain.ParseBillingCycle(parsed.BillingCycle),
		Category:     parsed.Category,
		Fields:       parsed.FieldConfidence,
	}
	if parsed.CancellationLink != nil {
		result.CancellationLink = *parsed.CancellationLink
	}
	if parsed.RenewalDate != nil && *parsed.RenewalDate != "" {
		if t, err := time.Parse("2006-01-02", *parsed.RenewalDate); err == nil {
			result.RenewalDate = &t
		}
	}
	return result, nil
}

// generate calls the generateContent endpoint and returns the model text
func (g *GeminiService) generate(ctx context.Context, prompt string) ([]byte, error) {
	url := fmt.Sprintf("https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent?key=%s", g.Model, g.ApiKey)

	payload := map[string]interface{}{
		"contents": []map[string]interface{}{
			{"parts": []map[string]string{{"text": prompt}}},
		},
	}

	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, classify.ErrTimeout
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, classify.ErrTimeout
		}
		return nil, fmt.Errorf("%w: %v", classify.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, classify.ErrRateLimited
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d", classify.ErrUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: %s", classify.ErrMalformedResponse, string(respBody))
	}

	var result map[string]interface{}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("%w: %v", classify.ErrMalformedResponse, err)
	}

	// Parse text from the first candidate
	if c, ok := result["candidates"].([]interface{}); ok && len(c) > 0 {
		if cand, ok := c[0].(map[string]interface{}); ok {
			if content, ok := cand["content"].(map[string]interface{}); ok {
				if parts, ok := content["parts"].([]interface{}); ok && len(parts) > 0 {
					if part, ok := parts[0].(map[string]interface{}); ok {
						if text, ok := part["text"].(string); ok {
							return []byte(text), nil
						}
					}
				}
			}
		}
	}
	return nil, fmt.Errorf("%w: no candidates returned", classify.ErrMalformedResponse)
}

// stripFences removes a markdown code fence the model sometimes wraps JSON in
func stripFences(raw []byte) []byte {
	s := strings.TrimSpace(string(raw))
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return []byte(strings.TrimSpace(s))
}
