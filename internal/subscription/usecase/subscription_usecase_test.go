package usecase

import (
	"errors"
	"testing"
	"time"

	"subtrack-backend/internal/subscription/domain"
	"subtrack-backend/internal/subscription/repository"
)

func seedSubscription(t *testing.T, repo repository.SubscriptionRepository, userID, accountID string, status domain.SubscriptionStatus) *domain.Subscription {
	t.Helper()
	sub := &domain.Subscription{
		UserID:         userID,
		AccountID:      accountID,
		ServiceName:    "Netflix",
		NormalizedName: "netflix",
		Price:          15.99,
		Currency:       "USD",
		Status:         status,
	}
	if err := repo.Create(sub); err != nil {
		t.Fatalf("failed to seed subscription: %v", err)
	}
	return sub
}

func TestCreateManualValidation(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	uc := NewSubscriptionUsecase(repository.NewSubscriptionRepository(db))

	if _, err := uc.CreateManual("user-1", ManualSubscriptionInput{}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("empty name: expected ErrInvalidInput, got %v", err)
	}
	if _, err := uc.CreateManual("user-1", ManualSubscriptionInput{ServiceName: "X", Price: -5}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("negative price: expected ErrInvalidInput, got %v", err)
	}
}

func TestCreateManualTrustsUserInput(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	uc := NewSubscriptionUsecase(repository.NewSubscriptionRepository(db))

	sub, err := uc.CreateManual("user-1", ManualSubscriptionInput{
		ServiceName:  "Netflix",
		Price:        15.99,
		Currency:     "USD",
		BillingCycle: "monthly",
	})
	if err != nil {
		t.Fatalf("CreateManual failed: %v", err)
	}
	if sub.Confidence != 1.0 {
		t.Errorf("manual entries carry full confidence, got %f", sub.Confidence)
	}
	if sub.Status != domain.StatusActive {
		t.Errorf("manual entries are active, got %s", sub.Status)
	}
}

func TestCreateManualDeduplicatesAgainstLiveRecords(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	repo := repository.NewSubscriptionRepository(db)
	uc := NewSubscriptionUsecase(repo)

	existing := seedSubscription(t, repo, "user-1", "acct-1", domain.StatusActive)

	// A manual entry for the same service updates the live record rather
	// than inserting a second one.
	renewal := time.Now().Add(20 * 24 * time.Hour).Truncate(time.Second)
	got, err := uc.CreateManual("user-1", ManualSubscriptionInput{
		ServiceName:     "Netflix Inc",
		Price:           17.99,
		Currency:        "USD",
		BillingCycle:    "monthly",
		NextRenewalDate: &renewal,
	})
	if err != nil {
		t.Fatalf("CreateManual failed: %v", err)
	}
	if got.ID != existing.ID {
		t.Errorf("manual entry created a new record %s, want update of %s", got.ID, existing.ID)
	}

	live, err := repo.FindLiveByUserID("user-1")
	if err != nil {
		t.Fatalf("FindLiveByUserID failed: %v", err)
	}
	if len(live) != 1 {
		t.Fatalf("got %d live subscriptions, want 1", len(live))
	}
	if live[0].Price != 17.99 {
		t.Errorf("price = %.2f, want 17.99", live[0].Price)
	}

	history, err := repo.FindHistory(existing.ID)
	if err != nil {
		t.Fatalf("FindHistory failed: %v", err)
	}
	var priceChanges, renewalChanges int
	for _, h := range history {
		switch h.ChangeType {
		case domain.ChangePrice:
			priceChanges++
		case domain.ChangeRenewalDate:
			renewalChanges++
		}
	}
	if priceChanges != 1 {
		t.Errorf("got %d price-change entries, want 1", priceChanges)
	}
	if renewalChanges != 1 {
		t.Errorf("got %d renewal-date entries, want 1", renewalChanges)
	}
}

func TestCreateManualDistinctServiceStillCreates(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	repo := repository.NewSubscriptionRepository(db)
	uc := NewSubscriptionUsecase(repo)

	seedSubscription(t, repo, "user-1", "acct-1", domain.StatusActive)

	sub, err := uc.CreateManual("user-1", ManualSubscriptionInput{
		ServiceName: "Spotify",
		Price:       9.99,
		Currency:    "USD",
	})
	if err != nil {
		t.Fatalf("CreateManual failed: %v", err)
	}

	live, err := repo.FindLiveByUserID("user-1")
	if err != nil {
		t.Fatalf("FindLiveByUserID failed: %v", err)
	}
	if len(live) != 2 {
		t.Fatalf("got %d live subscriptions, want 2", len(live))
	}
	if sub.NormalizedName != "spotify" {
		t.Errorf("normalized name = %s, want spotify", sub.NormalizedName)
	}
}

func TestApproveOnlyFromPendingReview(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	repo := repository.NewSubscriptionRepository(db)
	uc := NewSubscriptionUsecase(repo)

	pending := seedSubscription(t, repo, "user-1", "acct-1", domain.StatusPendingReview)
	if err := uc.Approve("user-1", pending.ID); err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	got, _ := repo.FindByID(pending.ID)
	if got.Status != domain.StatusActive {
		t.Errorf("approved subscription status = %s, want active", got.Status)
	}

	active := seedSubscription(t, repo, "user-1", "acct-1", domain.StatusActive)
	if err := uc.Approve("user-1", active.ID); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("approving an active subscription: expected ErrInvalidInput, got %v", err)
	}
}

func TestRejectArchives(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	repo := repository.NewSubscriptionRepository(db)
	uc := NewSubscriptionUsecase(repo)

	pending := seedSubscription(t, repo, "user-1", "acct-1", domain.StatusPendingReview)
	if err := uc.Reject("user-1", pending.ID); err != nil {
		t.Fatalf("Reject failed: %v", err)
	}
	got, _ := repo.FindByID(pending.ID)
	if got.Status != domain.StatusArchived {
		t.Errorf("rejected subscription status = %s, want archived", got.Status)
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	repo := repository.NewSubscriptionRepository(db)
	uc := NewSubscriptionUsecase(repo)

	sub := seedSubscription(t, repo, "user-1", "acct-1", domain.StatusActive)
	if err := uc.Cancel("user-1", sub.ID); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if err := uc.Cancel("user-1", sub.ID); err != nil {
		t.Errorf("second Cancel should be a no-op, got %v", err)
	}

	history, _ := repo.FindHistory(sub.ID)
	statusChanges := 0
	for _, h := range history {
		if h.ChangeType == domain.ChangeStatus {
			statusChanges++
		}
	}
	if statusChanges != 1 {
		t.Errorf("expected one status-change entry, got %d", statusChanges)
	}
}

func TestReactivateOnlyFromCancelled(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	repo := repository.NewSubscriptionRepository(db)
	uc := NewSubscriptionUsecase(repo)

	sub := seedSubscription(t, repo, "user-1", "acct-1", domain.StatusCancelled)
	if err := uc.Reactivate("user-1", sub.ID); err != nil {
		t.Fatalf("Reactivate failed: %v", err)
	}
	got, _ := repo.FindByID(sub.ID)
	if got.Status != domain.StatusActive {
		t.Errorf("reactivated status = %s, want active", got.Status)
	}

	if err := uc.Reactivate("user-1", sub.ID); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("reactivating an active subscription: expected ErrInvalidInput, got %v", err)
	}
}

func TestOwnershipEnforced(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	repo := repository.NewSubscriptionRepository(db)
	uc := NewSubscriptionUsecase(repo)

	sub := seedSubscription(t, repo, "user-1", "acct-1", domain.StatusActive)
	if _, err := uc.Get("intruder", sub.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("cross-user access: expected ErrNotFound, got %v", err)
	}
	if err := uc.Cancel("intruder", sub.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("cross-user cancel: expected ErrNotFound, got %v", err)
	}
}

func TestArchiveAccountSubscriptions(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	repo := repository.NewSubscriptionRepository(db)
	uc := NewSubscriptionUsecase(repo)

	own1 := seedSubscription(t, repo, "user-1", "acct-1", domain.StatusActive)
	own2 := seedSubscription(t, repo, "user-1", "acct-1", domain.StatusTrialActive)
	other := seedSubscription(t, repo, "user-1", "acct-2", domain.StatusActive)

	count, err := uc.ArchiveAccountSubscriptions("acct-1")
	if err != nil {
		t.Fatalf("ArchiveAccountSubscriptions failed: %v", err)
	}
	if count != 2 {
		t.Errorf("archived count = %d, want 2", count)
	}

	for _, id := range []string{own1.ID, own2.ID} {
		got, _ := repo.FindByID(id)
		if got.Status != domain.StatusArchived {
			t.Errorf("subscription %s status = %s, want archived", id, got.Status)
		}
	}

	untouched, _ := repo.FindByID(other.ID)
	if untouched.Status != domain.StatusActive {
		t.Errorf("other account's subscription was touched: %s", untouched.Status)
	}

	// Archived records never match again; a fresh extraction recreates
	live, _ := repo.FindLiveByUserID("user-1")
	if len(live) != 1 {
		t.Errorf("live subscriptions after cascade = %d, want 1", len(live))
	}
}
