package usecase

import (
	"errors"
	"os"
	"testing"
	"time"

	"subtrack-backend/internal/classify"
	"subtrack-backend/internal/subscription/domain"
	"subtrack-backend/internal/subscription/repository"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) (*gorm.DB, func()) {
	tmpFile, err := os.CreateTemp("", "test_*.db")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	tmpFile.Close()

	db, err := gorm.Open(sqlite.Open(tmpFile.Name()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		os.Remove(tmpFile.Name())
		t.Fatalf("Failed to open database: %v", err)
	}

	err = db.AutoMigrate(
		&domain.Subscription{},
		&domain.SubscriptionHistory{},
		&domain.VendorMetadata{},
	)
	if err != nil {
		os.Remove(tmpFile.Name())
		t.Fatalf("Failed to migrate: %v", err)
	}

	cleanup := func() {
		sqlDB, _ := db.DB()
		if sqlDB != nil {
			sqlDB.Close()
		}
		os.Remove(tmpFile.Name())
	}

	return db, cleanup
}

func newTestReconciler(db *gorm.DB) (*Reconciler, repository.SubscriptionRepository) {
	subRepo := repository.NewSubscriptionRepository(db)
	vendorRepo := repository.NewVendorRepository(db)
	return NewReconciler(subRepo, vendorRepo, nil, 0.60), subRepo
}

func fullConfidence() classify.FieldConfidence {
	return classify.FieldConfidence{
		ServiceName: 1, Price: 1, BillingCycle: 1, RenewalDate: 1, Category: 1, Currency: 1,
	}
}

func TestReconcileCreatesNewSubscription(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	rec, subRepo := newTestReconciler(db)

	renewal := time.Now().AddDate(0, 1, 0)
	sub, err := rec.Reconcile("user-1", "acct-1", &classify.Extraction{
		ServiceName:  "Netflix",
		Price:        15.99,
		Currency:     "USD",
		BillingCycle: domain.CycleMonthly,
		RenewalDate:  &renewal,
		Category:     "Streaming",
		Fields:       fullConfidence(),
	}, "msg-1")
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	if sub.Status != domain.StatusActive {
		t.Errorf("high-confidence extraction should be active, got %s", sub.Status)
	}
	if sub.RequiresUserReview {
		t.Error("high-confidence extraction should not require review")
	}
	if sub.NormalizedName != "netflix" {
		t.Errorf("normalized name = %q, want netflix", sub.NormalizedName)
	}

	history, err := subRepo.FindHistory(sub.ID)
	if err != nil {
		t.Fatalf("FindHistory failed: %v", err)
	}
	if len(history) != 1 || history[0].ChangeType != domain.ChangeCreated {
		t.Fatalf("expected one Created history entry, got %v", history)
	}
}

func TestReconcileLowConfidenceParksForReview(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	rec, _ := newTestReconciler(db)

	// uniform 0.5 confidence lands below the 0.60 review threshold
	sub, err := rec.Reconcile("user-1", "acct-1", &classify.Extraction{
		ServiceName: "Mystery Service",
		Price:       5,
		Fields: classify.FieldConfidence{
			ServiceName: 0.5, Price: 0.5, BillingCycle: 0.5,
			RenewalDate: 0.5, Category: 0.5, Currency: 0.5,
		},
	}, "msg-1")
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	if sub.Status != domain.StatusPendingReview {
		t.Errorf("low-confidence extraction should be pending review, got %s", sub.Status)
	}
	if !sub.RequiresUserReview {
		t.Error("low-confidence extraction should require review")
	}
}

func TestReconcileReviewThresholdBoundary(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	rec, _ := newTestReconciler(db)

	// uniform 0.60 sits exactly at the threshold: not below, so no review
	sub, err := rec.Reconcile("user-1", "acct-1", &classify.Extraction{
		ServiceName: "Edge Service",
		Price:       5,
		Fields: classify.FieldConfidence{
			ServiceName: 0.6, Price: 0.6, BillingCycle: 0.6,
			RenewalDate: 0.6, Category: 0.6, Currency: 0.6,
		},
	}, "msg-1")
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if sub.RequiresUserReview {
		t.Error("confidence exactly at the threshold should not require review")
	}
}

func TestReconcileMatchesFuzzyName(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	rec, _ := newTestReconciler(db)

	first, err := rec.Reconcile("user-1", "acct-1", &classify.Extraction{
		ServiceName: "Netflix",
		Price:       15.99,
		Currency:    "USD",
		Fields:      fullConfidence(),
	}, "msg-1")
	if err != nil {
		t.Fatalf("first Reconcile failed: %v", err)
	}

	// "Netflix Inc" normalizes to "netflix" and must update, not duplicate
	second, err := rec.Reconcile("user-1", "acct-1", &classify.Extraction{
		ServiceName: "Netflix, Inc.",
		Price:       15.99,
		Currency:    "USD",
		Fields:      fullConfidence(),
	}, "msg-2")
	if err != nil {
		t.Fatalf("second Reconcile failed: %v", err)
	}

	if second.ID != first.ID {
		t.Errorf("fuzzy-equal names created a duplicate: %s vs %s", first.ID, second.ID)
	}
}

func TestReconcileDistinctNamesCreateSeparate(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	rec, _ := newTestReconciler(db)

	first, err := rec.Reconcile("user-1", "acct-1", &classify.Extraction{
		ServiceName: "Netflix", Price: 15.99, Fields: fullConfidence(),
	}, "msg-1")
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	second, err := rec.Reconcile("user-1", "acct-1", &classify.Extraction{
		ServiceName: "Spotify", Price: 9.99, Fields: fullConfidence(),
	}, "msg-2")
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	if second.ID == first.ID {
		t.Error("distinct services must not merge")
	}
}

func TestReconcilePriceChangeAppendsHistory(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	rec, subRepo := newTestReconciler(db)

	first, err := rec.Reconcile("user-1", "acct-1", &classify.Extraction{
		ServiceName: "Netflix", Price: 15.99, Currency: "USD",
		BillingCycle: domain.CycleMonthly, Fields: fullConfidence(),
	}, "msg-1")
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	updated, err := rec.Reconcile("user-1", "acct-1", &classify.Extraction{
		ServiceName: "Netflix", Price: 17.99, Currency: "USD",
		BillingCycle: domain.CycleMonthly, Fields: fullConfidence(),
	}, "msg-2")
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	if updated.ID != first.ID {
		t.Fatal("price change created a new subscription instead of updating")
	}
	if updated.Price != 17.99 {
		t.Errorf("price = %f, want 17.99", updated.Price)
	}

	history, err := subRepo.FindHistory(first.ID)
	if err != nil {
		t.Fatalf("FindHistory failed: %v", err)
	}
	var priceChanges int
	for _, h := range history {
		if h.ChangeType == domain.ChangePrice {
			priceChanges++
			if h.OldValue != "15.99 USD" || h.NewValue != "17.99 USD" {
				t.Errorf("price history %q -> %q, want 15.99 USD -> 17.99 USD", h.OldValue, h.NewValue)
			}
		}
	}
	if priceChanges != 1 {
		t.Errorf("expected exactly one PriceChange entry, got %d", priceChanges)
	}
}

func TestReconcileRenewalDateChangeAppendsHistory(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	rec, subRepo := newTestReconciler(db)

	oldRenewal := time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC)
	first, err := rec.Reconcile("user-1", "acct-1", &classify.Extraction{
		ServiceName: "Netflix", Price: 15.99, Currency: "USD",
		RenewalDate: &oldRenewal, Fields: fullConfidence(),
	}, "msg-1")
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	newRenewal := time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)
	updated, err := rec.Reconcile("user-1", "acct-1", &classify.Extraction{
		ServiceName: "Netflix", Price: 15.99, Currency: "USD",
		RenewalDate: &newRenewal, Fields: fullConfidence(),
	}, "msg-2")
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	if updated.NextRenewalDate == nil || !updated.NextRenewalDate.Equal(newRenewal) {
		t.Errorf("renewal date = %v, want %v", updated.NextRenewalDate, newRenewal)
	}

	history, err := subRepo.FindHistory(first.ID)
	if err != nil {
		t.Fatalf("FindHistory failed: %v", err)
	}
	var renewalChanges int
	for _, h := range history {
		if h.ChangeType == domain.ChangeRenewalDate {
			renewalChanges++
			if h.OldValue != "2026-09-15" || h.NewValue != "2026-10-15" {
				t.Errorf("renewal history %q -> %q, want 2026-09-15 -> 2026-10-15", h.OldValue, h.NewValue)
			}
			if h.SourceMessageID != "msg-2" {
				t.Errorf("source message = %q, want msg-2", h.SourceMessageID)
			}
		}
	}
	if renewalChanges != 1 {
		t.Errorf("expected exactly one renewal-date entry, got %d", renewalChanges)
	}
}

func TestReconcileSamePriceIsNoOp(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	rec, subRepo := newTestReconciler(db)

	first, err := rec.Reconcile("user-1", "acct-1", &classify.Extraction{
		ServiceName: "Netflix", Price: 15.99, Currency: "USD", Fields: fullConfidence(),
	}, "msg-1")
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	if _, err := rec.Reconcile("user-1", "acct-1", &classify.Extraction{
		ServiceName: "Netflix", Price: 15.99, Currency: "USD", Fields: fullConfidence(),
	}, "msg-2"); err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	history, _ := subRepo.FindHistory(first.ID)
	for _, h := range history {
		if h.ChangeType == domain.ChangePrice {
			t.Error("identical price must not append a PriceChange entry")
		}
	}
}

func TestReconcileValidation(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	rec, _ := newTestReconciler(db)

	cases := []struct {
		name string
		uid  string
		ext  *classify.Extraction
	}{
		{"missing user", "", &classify.Extraction{ServiceName: "Netflix"}},
		{"missing service name", "user-1", &classify.Extraction{}},
		{"negative price", "user-1", &classify.Extraction{ServiceName: "Netflix", Price: -1}},
		{"nil extraction", "user-1", nil},
	}

	for _, tc := range cases {
		if _, err := rec.Reconcile(tc.uid, "acct-1", tc.ext, "msg"); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("%s: expected ErrInvalidInput, got %v", tc.name, err)
		}
	}
}

func TestReconcileIsolatesUsers(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	rec, _ := newTestReconciler(db)

	a, err := rec.Reconcile("user-a", "acct-a", &classify.Extraction{
		ServiceName: "Netflix", Price: 15.99, Fields: fullConfidence(),
	}, "msg-1")
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	b, err := rec.Reconcile("user-b", "acct-b", &classify.Extraction{
		ServiceName: "Netflix", Price: 15.99, Fields: fullConfidence(),
	}, "msg-2")
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	if a.ID == b.ID {
		t.Error("subscriptions must never merge across users")
	}
}
