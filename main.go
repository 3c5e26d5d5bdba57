package main

import (
	"context"
	"log"

	api "buddyalert-backend/cmd/api"
	alertDelivery "buddyalert-backend/internal/alert/delivery"
	alertdomain "buddyalert-backend/internal/alert/domain"
	alertRepo "buddyalert-backend/internal/alert/repository"
	"buddyalert-backend/internal/alert/scheduler"
	alertUsecase "buddyalert-backend/internal/alert/usecase"
	authDelivery "buddyalert-backend/internal/auth/delivery"
	"buddyalert-backend/internal/fanout"
	"buddyalert-backend/internal/notification"
	userDelivery "buddyalert-backend/internal/user/delivery"
	userdomain "buddyalert-backend/internal/user/domain"
	userRepo "buddyalert-backend/internal/user/repository"
	"buddyalert-backend/pkg/config"
	"buddyalert-backend/pkg/database"
	"buddyalert-backend/pkg/fcm"
	"buddyalert-backend/pkg/firebase"
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
	if err := db.AutoMigrate(&alertdomain.Alert{}, &alertdomain.DeliveryRecord{}, &userdomain.UserProfile{}); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	// Initialize repositories (dependency injection)
	alerts := alertRepo.NewAlertRepository(db)
	deliveries := alertRepo.NewDeliveryRepository(db)
	users := userRepo.NewUserRepository(db)

	// Initialize Firebase (push delivery + ID token verification)
	var provider fanout.PushProvider = fanout.NewLogProvider()
	var verifier authDelivery.TokenVerifier
	app, err := firebase.NewApp(cfg.FirebaseCredentials)
	if err != nil {
		log.Fatal("Failed to initialize Firebase:", err)
	}
	if fcmClient, err := fcm.NewClient(app); err != nil {
		log.Printf("[WARN] FCM unavailable, falling back to log-only delivery: %v", err)
	} else {
		provider = fanout.NewFCMProvider(fcmClient)
	}
	verifier, err = app.Auth(context.Background())
	if err != nil {
		log.Fatal("Failed to initialize Firebase auth:", err)
	}

	// Assemble the fan-out core
	filter := fanout.EligibilityFilter{StalenessHorizon: cfg.LocationStaleness}
	dispatcher := fanout.NewDispatcher(provider, cfg.DeliveryTimeout)
	engine := fanout.NewEngine(alerts, users, deliveries, dispatcher, filter, cfg.CandidateQueryTimeout)

	// Initialize the alert-created trigger (Pub/Sub change stream)
	var publisher alertDelivery.EventPublisher
	if cfg.GoogleProjectID != "" {
		notifService, err := notification.NewService(cfg.GoogleProjectID, cfg.PubSubTopic, engine, cfg.FirebaseCredentials)
		if err != nil {
			log.Printf("[ERROR] Failed to initialize trigger service, falling back to direct fan-out: %v", err)
		} else {
			publisher = notifService
			go notifService.Start(context.Background())
		}
	} else {
		log.Printf("[WARN] GoogleProjectID not configured, fan-out runs in-process")
	}

	// Lifecycle + TTL sweep
	lifecycle := alertUsecase.NewAlertLifecycle(alerts, users)
	sweeper := scheduler.NewExpirySweeper(lifecycle)
	if err := sweeper.Start(); err != nil {
		log.Fatal("Failed to start expiry sweeper:", err)
	}
	defer sweeper.Stop()

	// Initialize HTTP handlers
	alertHandler := alertDelivery.NewAlertHandler(lifecycle, engine, deliveries, publisher, notification.PayloadForAlert)
	userHandler := userDelivery.NewUserHandler(users)
	handler := api.NewHandler(alertHandler, userHandler, verifier, cfg)

	// Start server
	log.Printf("Server starting on port %s", cfg.Port)
	if err := handler.Start(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
