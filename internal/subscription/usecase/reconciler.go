package usecase

import (
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"subtrack-backend/internal/classify"
	"subtrack-backend/internal/subscription/domain"
	"subtrack-backend/internal/subscription/repository"
	"subtrack-backend/pkg/fuzzy"

	"github.com/google/uuid"
)

// MatchThreshold is the similarity at or above which two names are treated
// as the same real-world service, both for vendor lookup and for the
// create-vs-update decision against a user's own subscriptions.
const MatchThreshold = 0.85

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
)

// Reconciler turns extraction results into subscription-ledger mutations:
// vendor resolution, create-vs-update with field-level diffing, and the
// append-only history trail.
type Reconciler struct {
	subRepo         repository.SubscriptionRepository
	vendorRepo      repository.VendorRepository
	enricher        *VendorEnricher
	reviewThreshold float64

	// cached full vendor list for fuzzy misses; invalidated by the enricher
	cacheMu     sync.Mutex
	vendorCache []*domain.VendorMetadata
	cacheValid  bool
}

func NewReconciler(subRepo repository.SubscriptionRepository, vendorRepo repository.VendorRepository, enricher *VendorEnricher, reviewThreshold float64) *Reconciler {
	if reviewThreshold <= 0 {
		reviewThreshold = 0.60
	}
	r := &Reconciler{
		subRepo:         subRepo,
		vendorRepo:      vendorRepo,
		enricher:        enricher,
		reviewThreshold: reviewThreshold,
	}
	if enricher != nil {
		enricher.SetOnUpdate(r.InvalidateVendorCache)
	}
	return r
}

// InvalidateVendorCache drops the cached vendor list; the next miss reloads it
func (r *Reconciler) InvalidateVendorCache() {
	r.cacheMu.Lock()
	r.cacheValid = false
	r.cacheMu.Unlock()
}

// Reconcile applies one extraction result to the user's ledger and returns
// the created or updated subscription.
func (r *Reconciler) Reconcile(userID, accountID string, ext *classify.Extraction, sourceMessageID string) (*domain.Subscription, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if ext == nil || ext.ServiceName == "" {
		return nil, fmt.Errorf("%w: service name is required", ErrInvalidInput)
	}
	if ext.Price < 0 {
		return nil, fmt.Errorf("%w: price must not be negative", ErrInvalidInput)
	}

	normalized := NormalizeServiceName(ext.ServiceName)
	if normalized == "" {
		return nil, fmt.Errorf("%w: service name is empty after normalization", ErrInvalidInput)
	}

	vendor, err := r.resolveVendor(ext.ServiceName, normalized, ext.Category)
	if err != nil {
		// Vendor directory trouble must not lose the extraction; the
		// subscription is still recorded without a vendor link.
		log.Printf("[Reconciler] Vendor resolution failed for %q: %v", ext.ServiceName, err)
	}

	existing, err := r.matchUserSubscription(userID, normalized)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return r.updateExisting(existing, ext, sourceMessageID)
	}
	return r.createNew(userID, accountID, normalized, vendor, ext, sourceMessageID)
}

// matchUserSubscription finds the first live subscription whose normalized
// name meets the threshold. First match wins, not closest.
func (r *Reconciler) matchUserSubscription(userID, normalized string) (*domain.Subscription, error) {
	subs, err := r.subRepo.FindLiveByUserID(userID)
	if err != nil {
		return nil, err
	}
	for _, sub := range subs {
		if fuzzy.Similarity(normalized, sub.NormalizedName) >= MatchThreshold {
			return sub, nil
		}
	}
	return nil, nil
}

func (r *Reconciler) createNew(userID, accountID, normalized string, vendor *domain.VendorMetadata, ext *classify.Extraction, sourceMessageID string) (*domain.Subscription, error) {
	confidence := ext.OverallConfidence()

	sub := &domain.Subscription{
		ID:               uuid.New().String(),
		UserID:           userID,
		AccountID:        accountID,
		ServiceName:      ext.ServiceName,
		NormalizedName:   normalized,
		Price:            ext.Price,
		Currency:         ext.Currency,
		BillingCycle:     ext.BillingCycle,
		NextRenewalDate:  ext.RenewalDate,
		Category:         ext.Category,
		CancellationLink: ext.CancellationLink,
		Confidence:       confidence,
		Status:           domain.StatusActive,
		LastActivityAt:   time.Now(),
	}
	if sub.Category == "" {
		sub.Category = "Other"
	}
	if vendor != nil {
		sub.VendorID = &vendor.ID
	}

	// Low-confidence extractions are parked for user review instead of
	// silently joining the active ledger.
	if confidence < r.reviewThreshold {
		sub.RequiresUserReview = true
		sub.Status = domain.StatusPendingReview
	}

	if err := r.subRepo.Create(sub); err != nil {
		return nil, err
	}

	if err := r.subRepo.AppendHistory(&domain.SubscriptionHistory{
		SubscriptionID:  sub.ID,
		ChangeType:      domain.ChangeCreated,
		NewValue:        fmt.Sprintf("%s %.2f %s/%s", sub.ServiceName, sub.Price, sub.Currency, sub.BillingCycle),
		SourceMessageID: sourceMessageID,
	}); err != nil {
		return nil, err
	}

	log.Printf("[Reconciler] Created subscription %q (%s) for user %s", sub.ServiceName, sub.Status, userID)
	return sub, nil
}

// updateExisting diffs price, billing cycle and renewal date field-by-field,
// appending one history entry per changed field.
func (r *Reconciler) updateExisting(sub *domain.Subscription, ext *classify.Extraction, sourceMessageID string) (*domain.Subscription, error) {
	changed := false

	if ext.Price > 0 && math.Abs(ext.Price-sub.Price) > 0.004 {
		if err := r.subRepo.AppendHistory(&domain.SubscriptionHistory{
			SubscriptionID:  sub.ID,
			ChangeType:      domain.ChangePrice,
			OldValue:        fmt.Sprintf("%.2f %s", sub.Price, sub.Currency),
			NewValue:        fmt.Sprintf("%.2f %s", ext.Price, ext.Currency),
			SourceMessageID: sourceMessageID,
		}); err != nil {
			return nil, err
		}
		sub.Price = ext.Price
		if ext.Currency != "" {
			sub.Currency = ext.Currency
		}
		changed = true
	}

	if ext.BillingCycle != domain.CycleUnknown && ext.BillingCycle != sub.BillingCycle {
		if err := r.subRepo.AppendHistory(&domain.SubscriptionHistory{
			SubscriptionID:  sub.ID,
			ChangeType:      domain.ChangeBillingCycle,
			OldValue:        string(sub.BillingCycle),
			NewValue:        string(ext.BillingCycle),
			SourceMessageID: sourceMessageID,
		}); err != nil {
			return nil, err
		}
		sub.BillingCycle = ext.BillingCycle
		changed = true
	}

	if ext.RenewalDate != nil && (sub.NextRenewalDate == nil || !ext.RenewalDate.Equal(*sub.NextRenewalDate)) {
		if err := r.subRepo.AppendHistory(&domain.SubscriptionHistory{
			SubscriptionID:  sub.ID,
			ChangeType:      domain.ChangeRenewalDate,
			OldValue:        formatRenewalDate(sub.NextRenewalDate),
			NewValue:        formatRenewalDate(ext.RenewalDate),
			SourceMessageID: sourceMessageID,
		}); err != nil {
			return nil, err
		}
		sub.NextRenewalDate = ext.RenewalDate
		changed = true
	}

	sub.LastActivityAt = time.Now()
	if err := r.subRepo.Update(sub); err != nil {
		return nil, err
	}

	if changed {
		log.Printf("[Reconciler] Updated subscription %q for user %s", sub.ServiceName, sub.UserID)
	}
	return sub, nil
}

func formatRenewalDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}

// resolveVendor looks up an exact normalized match, falls back to a fuzzy
// match over the cached directory, and lazily creates a new entry (queued for
// background enrichment) when nothing matches.
func (r *Reconciler) resolveVendor(name, normalized, category string) (*domain.VendorMetadata, error) {
	vendor, err := r.vendorRepo.FindByNormalizedName(normalized)
	if err != nil {
		return nil, err
	}
	if vendor != nil {
		return vendor, nil
	}

	vendors, err := r.cachedVendors()
	if err != nil {
		return nil, err
	}
	for _, v := range vendors {
		if fuzzy.Similarity(normalized, v.NormalizedName) >= MatchThreshold {
			return v, nil
		}
	}

	if category == "" {
		category = "Other"
	}
	vendor = &domain.VendorMetadata{
		ID:             uuid.New().String(),
		Name:           name,
		NormalizedName: normalized,
		Category:       category,
	}
	if err := r.vendorRepo.Create(vendor); err != nil {
		return nil, err
	}
	r.InvalidateVendorCache()

	if r.enricher != nil {
		if !r.enricher.Queue(EnrichmentJob{VendorID: vendor.ID, Name: name}) {
			log.Printf("[Reconciler] Enrichment queue full, skipping vendor %q", name)
		}
	}
	return vendor, nil
}

func (r *Reconciler) cachedVendors() ([]*domain.VendorMetadata, error) {
	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	if r.cacheValid {
		return r.vendorCache, nil
	}
	vendors, err := r.vendorRepo.All()
	if err != nil {
		return nil, err
	}
	r.vendorCache = vendors
	r.cacheValid = true
	return vendors, nil
}
