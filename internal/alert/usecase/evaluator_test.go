package usecase

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"subtrack-backend/internal/alert/domain"
	"subtrack-backend/internal/alert/repository"
	authdomain "subtrack-backend/internal/auth/domain"
	authrepo "subtrack-backend/internal/auth/repository"
	subdomain "subtrack-backend/internal/subscription/domain"
	subrepo "subtrack-backend/internal/subscription/repository"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) (*gorm.DB, func()) {
	t.Helper()
	dir, err := os.MkdirTemp("", "alert-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	db, err := gorm.Open(sqlite.Open(filepath.Join(dir, "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		os.RemoveAll(dir)
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&authdomain.User{},
		&subdomain.Subscription{},
		&subdomain.SubscriptionHistory{},
		&domain.Alert{},
		&domain.UserPreferences{},
	); err != nil {
		os.RemoveAll(dir)
		t.Fatalf("failed to migrate: %v", err)
	}
	return db, func() { os.RemoveAll(dir) }
}

type evaluatorFixture struct {
	evaluator *Evaluator
	subRepo   subrepo.SubscriptionRepository
	alertRepo repository.AlertRepository
	prefsRepo repository.PreferencesRepository
	userID    string
}

func newEvaluatorFixture(t *testing.T, db *gorm.DB) *evaluatorFixture {
	t.Helper()
	subRepo := subrepo.NewSubscriptionRepository(db)
	alertRepo := repository.NewAlertRepository(db)
	prefsRepo := repository.NewPreferencesRepository(db)
	userRepo := authrepo.NewUserRepository(db)

	user := &authdomain.User{Email: "user@example.com", Name: "Test User"}
	if err := userRepo.Create(user); err != nil {
		t.Fatalf("create user: %v", err)
	}

	cfg := EvaluatorConfig{
		TrialLeadDays:      3,
		PriceWindowDays:    30,
		UnusedMonths:       2,
		UnusedCooldownDays: 30,
	}
	return &evaluatorFixture{
		evaluator: NewEvaluator(subRepo, alertRepo, prefsRepo, userRepo, cfg),
		subRepo:   subRepo,
		alertRepo: alertRepo,
		prefsRepo: prefsRepo,
		userID:    user.ID,
	}
}

func (f *evaluatorFixture) addSubscription(t *testing.T, sub *subdomain.Subscription) *subdomain.Subscription {
	t.Helper()
	sub.UserID = f.userID
	if sub.Currency == "" {
		sub.Currency = "USD"
	}
	if sub.BillingCycle == "" {
		sub.BillingCycle = subdomain.CycleMonthly
	}
	if err := f.subRepo.Create(sub); err != nil {
		t.Fatalf("create subscription: %v", err)
	}
	return sub
}

func (f *evaluatorFixture) alertsFor(t *testing.T, subID string) []*domain.Alert {
	t.Helper()
	all, err := f.alertRepo.FindByUserID(f.userID, nil)
	if err != nil {
		t.Fatalf("list alerts: %v", err)
	}
	var out []*domain.Alert
	for _, a := range all {
		if a.SubscriptionID == subID {
			out = append(out, a)
		}
	}
	return out
}

func datePtr(v time.Time) *time.Time { return &v }

func TestEvaluateRenewalThreeDayWindow(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	f := newEvaluatorFixture(t, db)

	sub := f.addSubscription(t, &subdomain.Subscription{
		ServiceName:     "Netflix",
		Status:          subdomain.StatusActive,
		Price:           15.99,
		NextRenewalDate: datePtr(time.Now().Add(2 * 24 * time.Hour)),
		LastActivityAt:  time.Now(),
	})

	if err := f.evaluator.Evaluate(f.userID); err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}

	alerts := f.alertsFor(t, sub.ID)
	if len(alerts) != 1 {
		t.Fatalf("got %d alerts, want 1", len(alerts))
	}
	if alerts[0].Type != domain.AlertRenewal3Days {
		t.Errorf("alert type = %s, want %s", alerts[0].Type, domain.AlertRenewal3Days)
	}
	if alerts[0].Status != domain.AlertPending {
		t.Errorf("alert status = %s, want pending", alerts[0].Status)
	}
}

func TestEvaluateRenewalSevenDayWindow(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	f := newEvaluatorFixture(t, db)

	sub := f.addSubscription(t, &subdomain.Subscription{
		ServiceName:     "Spotify",
		Status:          subdomain.StatusActive,
		Price:           9.99,
		NextRenewalDate: datePtr(time.Now().Add(6 * 24 * time.Hour)),
		LastActivityAt:  time.Now(),
	})

	if err := f.evaluator.Evaluate(f.userID); err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}

	alerts := f.alertsFor(t, sub.ID)
	if len(alerts) != 1 {
		t.Fatalf("got %d alerts, want 1", len(alerts))
	}
	if alerts[0].Type != domain.AlertRenewal7Days {
		t.Errorf("alert type = %s, want %s", alerts[0].Type, domain.AlertRenewal7Days)
	}
}

func TestEvaluateRenewalNeverBothWindows(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	f := newEvaluatorFixture(t, db)

	// Two days out sits inside both nominal windows; only the tighter
	// 3-day alert may fire, and re-evaluation must not add more.
	sub := f.addSubscription(t, &subdomain.Subscription{
		ServiceName:     "Netflix",
		Status:          subdomain.StatusActive,
		NextRenewalDate: datePtr(time.Now().Add(2 * 24 * time.Hour)),
		LastActivityAt:  time.Now(),
	})

	for i := 0; i < 3; i++ {
		if err := f.evaluator.Evaluate(f.userID); err != nil {
			t.Fatalf("Evaluate() error = %v", err)
		}
	}

	alerts := f.alertsFor(t, sub.ID)
	if len(alerts) != 1 {
		t.Fatalf("got %d alerts after repeated evaluation, want 1", len(alerts))
	}
	if alerts[0].Type != domain.AlertRenewal3Days {
		t.Errorf("alert type = %s, want %s", alerts[0].Type, domain.AlertRenewal3Days)
	}
}

func TestEvaluateRenewalSkipsElapsedDate(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	f := newEvaluatorFixture(t, db)

	// A renewal twelve hours in the past is not upcoming, however recent.
	sub := f.addSubscription(t, &subdomain.Subscription{
		ServiceName:     "Netflix",
		Status:          subdomain.StatusActive,
		Price:           15.99,
		NextRenewalDate: datePtr(time.Now().Add(-12 * time.Hour)),
		LastActivityAt:  time.Now(),
	})

	if err := f.evaluator.Evaluate(f.userID); err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}

	if got := f.alertsFor(t, sub.ID); len(got) != 0 {
		t.Errorf("elapsed renewal produced %d alerts, want 0", len(got))
	}
}

func TestEvaluateRenewalIgnoresNonLiveStatuses(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	f := newEvaluatorFixture(t, db)

	renewal := datePtr(time.Now().Add(2 * 24 * time.Hour))
	cancelled := f.addSubscription(t, &subdomain.Subscription{
		ServiceName:     "Hulu",
		Status:          subdomain.StatusCancelled,
		NextRenewalDate: renewal,
		LastActivityAt:  time.Now(),
	})
	pending := f.addSubscription(t, &subdomain.Subscription{
		ServiceName:     "Disney+",
		Status:          subdomain.StatusPendingReview,
		NextRenewalDate: renewal,
		LastActivityAt:  time.Now(),
	})

	if err := f.evaluator.Evaluate(f.userID); err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}

	if got := f.alertsFor(t, cancelled.ID); len(got) != 0 {
		t.Errorf("cancelled subscription produced %d alerts", len(got))
	}
	if got := f.alertsFor(t, pending.ID); len(got) != 0 {
		t.Errorf("review-pending subscription produced %d alerts", len(got))
	}
}

func TestEvaluateTrialEnding(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	f := newEvaluatorFixture(t, db)

	ending := f.addSubscription(t, &subdomain.Subscription{
		ServiceName:    "Apple TV+",
		Status:         subdomain.StatusTrialActive,
		Price:          9.99,
		TrialEndsAt:    datePtr(time.Now().Add(2 * 24 * time.Hour)),
		LastActivityAt: time.Now(),
	})
	farOut := f.addSubscription(t, &subdomain.Subscription{
		ServiceName:    "Paramount+",
		Status:         subdomain.StatusTrialActive,
		TrialEndsAt:    datePtr(time.Now().Add(20 * 24 * time.Hour)),
		LastActivityAt: time.Now(),
	})

	if err := f.evaluator.Evaluate(f.userID); err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}

	alerts := f.alertsFor(t, ending.ID)
	if len(alerts) != 1 || alerts[0].Type != domain.AlertTrialEnding {
		t.Fatalf("ending trial: got %d alerts (first type %v), want one trial_ending", len(alerts), typeOf(alerts))
	}
	if got := f.alertsFor(t, farOut.ID); len(got) != 0 {
		t.Errorf("trial outside lead window produced %d alerts", len(got))
	}
}

func TestEvaluateUnusedSubscription(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	f := newEvaluatorFixture(t, db)

	idle := f.addSubscription(t, &subdomain.Subscription{
		ServiceName:    "Audible",
		Status:         subdomain.StatusActive,
		Price:          14.95,
		LastActivityAt: time.Now().AddDate(0, -4, 0),
	})
	active := f.addSubscription(t, &subdomain.Subscription{
		ServiceName:    "Spotify",
		Status:         subdomain.StatusActive,
		LastActivityAt: time.Now().AddDate(0, 0, -5),
	})

	if err := f.evaluator.Evaluate(f.userID); err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}

	alerts := f.alertsFor(t, idle.ID)
	if len(alerts) != 1 || alerts[0].Type != domain.AlertUnused {
		t.Fatalf("idle subscription: got %d alerts, want one unused alert", len(alerts))
	}
	// Four idle months at 14.95/month: the message spells out both the
	// total wasted and the monthly rate.
	msg := alerts[0].Message
	if !strings.Contains(msg, "4 months") {
		t.Errorf("message %q missing idle duration", msg)
	}
	if !strings.Contains(msg, "59.80 USD wasted") {
		t.Errorf("message %q missing wasted total", msg)
	}
	if !strings.Contains(msg, "14.95 USD/month") {
		t.Errorf("message %q missing monthly rate", msg)
	}
	if got := f.alertsFor(t, active.ID); len(got) != 0 {
		t.Errorf("recently used subscription produced %d alerts", len(got))
	}
}

func TestEvaluateUnusedCooldown(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	f := newEvaluatorFixture(t, db)

	idle := f.addSubscription(t, &subdomain.Subscription{
		ServiceName:    "Audible",
		Status:         subdomain.StatusActive,
		LastActivityAt: time.Now().AddDate(0, -4, 0),
	})

	// An unused alert delivered ten days ago is inside the 30-day
	// cooldown, so no new one may be created.
	sent := time.Now().AddDate(0, 0, -10)
	if err := f.alertRepo.Create(&domain.Alert{
		UserID:         f.userID,
		SubscriptionID: idle.ID,
		Type:           domain.AlertUnused,
		Status:         domain.AlertSent,
		SentAt:         &sent,
		ScheduledFor:   sent,
	}); err != nil {
		t.Fatalf("seed sent alert: %v", err)
	}

	if err := f.evaluator.Evaluate(f.userID); err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}

	var unused int
	for _, a := range f.alertsFor(t, idle.ID) {
		if a.Type == domain.AlertUnused {
			unused++
		}
	}
	if unused != 1 {
		t.Errorf("got %d unused alerts, want only the pre-existing one", unused)
	}
}

func TestEvaluatePriceIncrease(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	f := newEvaluatorFixture(t, db)

	increased := f.addSubscription(t, &subdomain.Subscription{
		ServiceName:    "Netflix",
		Status:         subdomain.StatusActive,
		Price:          17.99,
		LastActivityAt: time.Now(),
	})
	decreased := f.addSubscription(t, &subdomain.Subscription{
		ServiceName:    "Spotify",
		Status:         subdomain.StatusActive,
		Price:          7.99,
		LastActivityAt: time.Now(),
	})

	for _, h := range []*subdomain.SubscriptionHistory{
		{SubscriptionID: increased.ID, ChangeType: subdomain.ChangePrice, OldValue: "15.99 USD", NewValue: "17.99 USD"},
		{SubscriptionID: decreased.ID, ChangeType: subdomain.ChangePrice, OldValue: "9.99 USD", NewValue: "7.99 USD"},
	} {
		if err := f.subRepo.AppendHistory(h); err != nil {
			t.Fatalf("append history: %v", err)
		}
	}

	if err := f.evaluator.Evaluate(f.userID); err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}

	alerts := f.alertsFor(t, increased.ID)
	if len(alerts) != 1 || alerts[0].Type != domain.AlertPriceIncrease {
		t.Fatalf("price increase: got %d alerts, want one price_increase", len(alerts))
	}
	if got := f.alertsFor(t, decreased.ID); len(got) != 0 {
		t.Errorf("price decrease produced %d alerts", len(got))
	}
}

func TestEvaluatePreferenceGating(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	f := newEvaluatorFixture(t, db)

	prefs := domain.DefaultPreferences()
	prefs.RenewalAlerts = false
	if err := f.prefsRepo.Put(f.userID, prefs); err != nil {
		t.Fatalf("put preferences: %v", err)
	}

	sub := f.addSubscription(t, &subdomain.Subscription{
		ServiceName:     "Netflix",
		Status:          subdomain.StatusActive,
		NextRenewalDate: datePtr(time.Now().Add(2 * 24 * time.Hour)),
		LastActivityAt:  time.Now(),
	})

	if err := f.evaluator.Evaluate(f.userID); err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}

	if got := f.alertsFor(t, sub.ID); len(got) != 0 {
		t.Errorf("renewal alerts disabled but %d alerts created", len(got))
	}
}

func typeOf(alerts []*domain.Alert) domain.AlertType {
	if len(alerts) == 0 {
		return ""
	}
	return alerts[0].Type
}
