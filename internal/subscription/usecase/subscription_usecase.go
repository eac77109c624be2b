package usecase

import (
	"fmt"
	"log"
	"math"
	"time"

	"subtrack-backend/internal/subscription/domain"
	"subtrack-backend/internal/subscription/repository"
	"subtrack-backend/pkg/fuzzy"

	"github.com/google/uuid"
)

// SubscriptionUsecase exposes the user-facing ledger operations
type SubscriptionUsecase interface {
	List(userID string, status *domain.SubscriptionStatus) ([]*domain.Subscription, error)
	Get(userID, subscriptionID string) (*domain.Subscription, error)
	GetHistory(userID, subscriptionID string) ([]*domain.SubscriptionHistory, error)
	CreateManual(userID string, input ManualSubscriptionInput) (*domain.Subscription, error)
	Approve(userID, subscriptionID string) error
	Reject(userID, subscriptionID string) error
	Cancel(userID, subscriptionID string) error
	Reactivate(userID, subscriptionID string) error
	// ArchiveAccountSubscriptions is the disconnect cascade: every live
	// subscription tied to the account is archived, nothing is deleted, and
	// other accounts are untouched.
	ArchiveAccountSubscriptions(accountID string) (int64, error)
}

// ManualSubscriptionInput is a user-entered subscription
type ManualSubscriptionInput struct {
	ServiceName     string     `json:"service_name"`
	Price           float64    `json:"price"`
	Currency        string     `json:"currency"`
	BillingCycle    string     `json:"billing_cycle"`
	NextRenewalDate *time.Time `json:"next_renewal_date"`
	Category        string     `json:"category"`
}

type subscriptionUsecase struct {
	subRepo repository.SubscriptionRepository
}

func NewSubscriptionUsecase(subRepo repository.SubscriptionRepository) SubscriptionUsecase {
	return &subscriptionUsecase{subRepo: subRepo}
}

func (u *subscriptionUsecase) List(userID string, status *domain.SubscriptionStatus) ([]*domain.Subscription, error) {
	return u.subRepo.FindByUserID(userID, status)
}

func (u *subscriptionUsecase) Get(userID, subscriptionID string) (*domain.Subscription, error) {
	return u.owned(userID, subscriptionID)
}

func (u *subscriptionUsecase) GetHistory(userID, subscriptionID string) ([]*domain.SubscriptionHistory, error) {
	if _, err := u.owned(userID, subscriptionID); err != nil {
		return nil, err
	}
	return u.subRepo.FindHistory(subscriptionID)
}

func (u *subscriptionUsecase) CreateManual(userID string, input ManualSubscriptionInput) (*domain.Subscription, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if input.ServiceName == "" {
		return nil, fmt.Errorf("%w: service name is required", ErrInvalidInput)
	}
	if input.Price < 0 {
		return nil, fmt.Errorf("%w: price must not be negative", ErrInvalidInput)
	}

	normalized := NormalizeServiceName(input.ServiceName)

	// Manual entry goes through the same dedup as mail-derived entries: a
	// live record for the same service is updated, never duplicated.
	existing, err := u.matchLive(userID, normalized)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return u.applyManualUpdate(existing, input)
	}

	sub := &domain.Subscription{
		ID:              uuid.New().String(),
		UserID:          userID,
		ServiceName:     input.ServiceName,
		NormalizedName:  normalized,
		Price:           input.Price,
		Currency:        input.Currency,
		BillingCycle:    domain.ParseBillingCycle(input.BillingCycle),
		NextRenewalDate: input.NextRenewalDate,
		Category:        input.Category,
		Confidence:      1.0, // user-entered facts are trusted
		Status:          domain.StatusActive,
		LastActivityAt:  time.Now(),
	}
	if sub.Category == "" {
		sub.Category = "Other"
	}

	if err := u.subRepo.Create(sub); err != nil {
		return nil, err
	}
	if err := u.subRepo.AppendHistory(&domain.SubscriptionHistory{
		SubscriptionID: sub.ID,
		ChangeType:     domain.ChangeCreated,
		NewValue:       fmt.Sprintf("%s %.2f %s/%s", sub.ServiceName, sub.Price, sub.Currency, sub.BillingCycle),
	}); err != nil {
		return nil, err
	}
	return sub, nil
}

// matchLive finds the first live subscription whose normalized name meets
// the match threshold, mirroring the reconciler's create-vs-update decision.
func (u *subscriptionUsecase) matchLive(userID, normalized string) (*domain.Subscription, error) {
	subs, err := u.subRepo.FindLiveByUserID(userID)
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

// applyManualUpdate folds user-entered facts into an existing record,
// diffing field-by-field with one history entry per change. User-entered
// values are trusted fully.
func (u *subscriptionUsecase) applyManualUpdate(sub *domain.Subscription, input ManualSubscriptionInput) (*domain.Subscription, error) {
	if input.Price > 0 && math.Abs(input.Price-sub.Price) > 0.004 {
		if err := u.subRepo.AppendHistory(&domain.SubscriptionHistory{
			SubscriptionID: sub.ID,
			ChangeType:     domain.ChangePrice,
			OldValue:       fmt.Sprintf("%.2f %s", sub.Price, sub.Currency),
			NewValue:       fmt.Sprintf("%.2f %s", input.Price, input.Currency),
		}); err != nil {
			return nil, err
		}
		sub.Price = input.Price
		if input.Currency != "" {
			sub.Currency = input.Currency
		}
	}

	if cycle := domain.ParseBillingCycle(input.BillingCycle); cycle != domain.CycleUnknown && cycle != sub.BillingCycle {
		if err := u.subRepo.AppendHistory(&domain.SubscriptionHistory{
			SubscriptionID: sub.ID,
			ChangeType:     domain.ChangeBillingCycle,
			OldValue:       string(sub.BillingCycle),
			NewValue:       string(cycle),
		}); err != nil {
			return nil, err
		}
		sub.BillingCycle = cycle
	}

	if input.NextRenewalDate != nil && (sub.NextRenewalDate == nil || !input.NextRenewalDate.Equal(*sub.NextRenewalDate)) {
		if err := u.subRepo.AppendHistory(&domain.SubscriptionHistory{
			SubscriptionID: sub.ID,
			ChangeType:     domain.ChangeRenewalDate,
			OldValue:       formatRenewalDate(sub.NextRenewalDate),
			NewValue:       formatRenewalDate(input.NextRenewalDate),
		}); err != nil {
			return nil, err
		}
		sub.NextRenewalDate = input.NextRenewalDate
	}

	sub.Confidence = 1.0
	sub.LastActivityAt = time.Now()
	if err := u.subRepo.Update(sub); err != nil {
		return nil, err
	}
	return sub, nil
}

func (u *subscriptionUsecase) Approve(userID, subscriptionID string) error {
	sub, err := u.owned(userID, subscriptionID)
	if err != nil {
		return err
	}
	if sub.Status != domain.StatusPendingReview {
		return fmt.Errorf("%w: subscription is not pending review", ErrInvalidInput)
	}
	return u.transition(sub, domain.StatusActive, domain.ChangeApproved, func(s *domain.Subscription) {
		s.RequiresUserReview = false
	})
}

func (u *subscriptionUsecase) Reject(userID, subscriptionID string) error {
	sub, err := u.owned(userID, subscriptionID)
	if err != nil {
		return err
	}
	if sub.Status != domain.StatusPendingReview {
		return fmt.Errorf("%w: subscription is not pending review", ErrInvalidInput)
	}
	return u.transition(sub, domain.StatusArchived, domain.ChangeRejected, func(s *domain.Subscription) {
		s.RequiresUserReview = false
	})
}

func (u *subscriptionUsecase) Cancel(userID, subscriptionID string) error {
	sub, err := u.owned(userID, subscriptionID)
	if err != nil {
		return err
	}
	if sub.Status == domain.StatusCancelled {
		// Already cancelled, nothing to do
		return nil
	}
	return u.transition(sub, domain.StatusCancelled, domain.ChangeStatus, nil)
}

func (u *subscriptionUsecase) Reactivate(userID, subscriptionID string) error {
	sub, err := u.owned(userID, subscriptionID)
	if err != nil {
		return err
	}
	if sub.Status != domain.StatusCancelled {
		return fmt.Errorf("%w: only cancelled subscriptions can be reactivated", ErrInvalidInput)
	}
	return u.transition(sub, domain.StatusActive, domain.ChangeStatus, nil)
}

func (u *subscriptionUsecase) ArchiveAccountSubscriptions(accountID string) (int64, error) {
	count, err := u.subRepo.ArchiveByAccountID(accountID)
	if err != nil {
		return 0, err
	}
	log.Printf("[Subscriptions] Archived %d subscriptions for account %s", count, accountID)
	return count, nil
}

func (u *subscriptionUsecase) owned(userID, subscriptionID string) (*domain.Subscription, error) {
	sub, err := u.subRepo.FindByID(subscriptionID)
	if err != nil {
		return nil, err
	}
	if sub == nil || sub.UserID != userID {
		return nil, fmt.Errorf("%w: subscription %s", ErrNotFound, subscriptionID)
	}
	return sub, nil
}

func (u *subscriptionUsecase) transition(sub *domain.Subscription, to domain.SubscriptionStatus, change domain.ChangeType, mutate func(*domain.Subscription)) error {
	old := sub.Status
	sub.Status = to
	sub.LastActivityAt = time.Now()
	if mutate != nil {
		mutate(sub)
	}
	if err := u.subRepo.Update(sub); err != nil {
		return err
	}
	return u.subRepo.AppendHistory(&domain.SubscriptionHistory{
		SubscriptionID: sub.ID,
		ChangeType:     change,
		OldValue:       string(old),
		NewValue:       string(to),
	})
}
