package main

import (
	"context"
	"log"
	"time"

	api "subtrack-backend/cmd/api"
	alertdomain "subtrack-backend/internal/alert/domain"
	alertRepo "subtrack-backend/internal/alert/repository"
	alertUsecase "subtrack-backend/internal/alert/usecase"
	authdomain "subtrack-backend/internal/auth/domain"
	authRepo "subtrack-backend/internal/auth/repository"
	authUsecase "subtrack-backend/internal/auth/usecase"
	"subtrack-backend/internal/classify"
	maildomain "subtrack-backend/internal/mailscan/domain"
	mailRepo "subtrack-backend/internal/mailscan/repository"
	mailUsecase "subtrack-backend/internal/mailscan/usecase"
	subdomain "subtrack-backend/internal/subscription/domain"
	subRepo "subtrack-backend/internal/subscription/repository"
	subUsecase "subtrack-backend/internal/subscription/usecase"
	"subtrack-backend/pkg/config"
	"subtrack-backend/pkg/crypto"
	"subtrack-backend/pkg/database"
	"subtrack-backend/pkg/fcm"
	"subtrack-backend/pkg/gemini"
	"subtrack-backend/pkg/gmail"
	"subtrack-backend/pkg/imap"
	"subtrack-backend/pkg/mailer"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize database
	db, err := database.NewPostgresConnection(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	// Auto-migrate database schemas
	if err := db.AutoMigrate(
		&authdomain.User{}, &authdomain.RefreshToken{}, &authdomain.FCMToken{},
		&maildomain.EmailAccount{}, &maildomain.EmailMetadata{},
		&subdomain.Subscription{}, &subdomain.SubscriptionHistory{}, &subdomain.VendorMetadata{},
		&alertdomain.Alert{}, &alertdomain.UserPreferences{},
	); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	// Credential store
	box, err := crypto.NewBox(cfg.CredentialKey)
	if err != nil {
		log.Fatal("Failed to initialize credential store:", err)
	}

	// Initialize repositories (dependency injection)
	userRepo := authRepo.NewUserRepository(db)
	fcmTokenRepo := authRepo.NewFCMTokenRepository(db)
	accountRepo := mailRepo.NewEmailAccountRepository(db)
	metadataRepo := mailRepo.NewEmailMetadataRepository(db)
	subscriptionRepo := subRepo.NewSubscriptionRepository(db)
	vendorRepo := subRepo.NewVendorRepository(db)
	alertRepository := alertRepo.NewAlertRepository(db)
	prefsRepo := alertRepo.NewPreferencesRepository(db)

	// Provider gateways
	gateways := map[maildomain.Provider]maildomain.MessageGateway{
		maildomain.ProviderGmail: gmail.NewService(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.FetchBatchSize, cfg.FetchBatchDelay),
		maildomain.ProviderIMAP:  imap.NewService(cfg.FetchBatchSize),
	}

	// Vendor enrichment worker pool feeding the reconciler
	enricher := subUsecase.NewVendorEnricher(vendorRepo, 2)
	enricher.Start()

	reconciler := subUsecase.NewReconciler(subscriptionRepo, vendorRepo, enricher, cfg.ReviewThreshold)
	enricher.SetOnUpdate(reconciler.InvalidateVendorCache)

	// Classification engine on Gemini
	geminiService := gemini.NewGeminiService(cfg.GeminiAPIKey)
	engine := classify.NewEngine(geminiService, cfg.ModelMaxRetries, cfg.ModelRetryBaseDelay)

	// Ingestion: priority queue, scanner, pipeline consumer
	queue := mailUsecase.NewPriorityQueue(cfg.QueueCapacity)
	scanner := mailUsecase.NewScanner(accountRepo, metadataRepo, gateways, box, queue, mailUsecase.ScannerConfig{
		LookbackMonths: cfg.LookbackMonths,
		MaxResults:     cfg.MaxScanResults,
		Concurrency:    cfg.ScanConcurrency,
	})
	pipeline := mailUsecase.NewPipeline(queue, metadataRepo, engine, reconciler)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go pipeline.Run(ctx)

	// Periodic full-system scan across every connected account
	go func() {
		ticker := time.NewTicker(cfg.ScanInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				scanner.ScanAllAccounts(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()

	// Alert delivery channels
	var notifiers []alertUsecase.Notifier
	if cfg.FirebaseCredentials != "" {
		fcmClient, err := fcm.NewClient(cfg.FirebaseCredentials)
		if err != nil {
			log.Printf("[WARN] Failed to initialize FCM client (push alerts disabled): %v", err)
		} else {
			notifiers = append(notifiers, alertUsecase.NewPushNotifier(fcmClient, fcmTokenRepo))
		}
	}
	if cfg.MailgunDomain != "" && cfg.MailgunAPIKey != "" {
		m := mailer.NewMailer(cfg.MailgunDomain, cfg.MailgunAPIKey, cfg.MailgunSender)
		notifiers = append(notifiers, alertUsecase.NewEmailNotifier(m, userRepo))
	}
	if len(notifiers) == 0 {
		log.Println("[WARN] No alert delivery channels configured")
	}

	// Alert pipeline: evaluation + dispatch on independent cadences
	evaluator := alertUsecase.NewEvaluator(subscriptionRepo, alertRepository, prefsRepo, userRepo, alertUsecase.EvaluatorConfig{
		TrialLeadDays:      cfg.TrialLeadDays,
		PriceWindowDays:    cfg.PriceWindowDays,
		UnusedMonths:       cfg.UnusedMonths,
		UnusedCooldownDays: cfg.UnusedCooldownDays,
	})
	dispatcher := alertUsecase.NewDispatcher(alertRepository, prefsRepo, notifiers, cfg.AlertRetryCeiling, cfg.AlertRetryBaseDelay)
	alertScheduler := alertUsecase.NewScheduler(evaluator, dispatcher, cfg.AlertEvalInterval, cfg.AlertDispatchInterval)
	alertScheduler.Start(ctx)
	defer alertScheduler.Stop()

	// Initialize use cases (dependency injection)
	authUsecaseInstance := authUsecase.NewAuthUsecase(userRepo, cfg)
	subscriptionUsecaseInstance := subUsecase.NewSubscriptionUsecase(subscriptionRepo)
	accountUsecaseInstance := mailUsecase.NewAccountUsecase(accountRepo, subscriptionUsecaseInstance, scanner, box)
	alertUsecaseInstance := alertUsecase.NewAlertUsecase(alertRepository, prefsRepo)

	// Initialize HTTP handler
	handler := api.NewHandler(authUsecaseInstance, fcmTokenRepo, accountUsecaseInstance, subscriptionUsecaseInstance, alertUsecaseInstance)

	log.Printf("Server starting on port %s", cfg.Port)
	if err := handler.Start(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
