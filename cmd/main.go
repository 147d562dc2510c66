package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/liverlink/liverlink-backend/internal/clients/predictor"
	"github.com/liverlink/liverlink-backend/internal/clients/twilio"
	"github.com/liverlink/liverlink-backend/internal/db"
	"github.com/liverlink/liverlink-backend/internal/handlers"
	"github.com/liverlink/liverlink-backend/internal/logger"
	"github.com/liverlink/liverlink-backend/internal/middleware"
	"github.com/liverlink/liverlink-backend/internal/observability"
	"github.com/liverlink/liverlink-backend/internal/realtime"
	"github.com/liverlink/liverlink-backend/internal/realtime/bus"
	"github.com/liverlink/liverlink-backend/internal/repos"
	"github.com/liverlink/liverlink-backend/internal/server"
	"github.com/liverlink/liverlink-backend/internal/services"
	"github.com/liverlink/liverlink-backend/internal/utils"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx := context.Background()

	// Env
	log.Info("Loading environment variables from main...")
	operatorToken := utils.GetEnv("OPERATOR_API_TOKEN", "", log)
	allowedOrigins := utils.GetEnv("ALLOWED_ORIGINS", "", log)
	claimIntervalMS := utils.GetEnvAsInt("WORKER_CLAIM_INTERVAL_MS", 1000, log)
	maxAttempts := utils.GetEnvAsInt("WORKER_MAX_ATTEMPTS", 3, log)
	staleRunningSec := utils.GetEnvAsInt("WORKER_STALE_RUNNING_SEC", 120, log)
	predictParallelism := utils.GetEnvAsInt("PREDICT_PARALLELISM", 8, log)

	// Tracing
	otelShutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: "liverlink-backend",
		Environment: utils.GetEnv("APP_ENV", "development", log),
	})
	defer otelShutdown(context.Background())

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Warn("Postgres auto migration failed", "error", err)
	}
	thePG := postgresService.DB()

	// Repos
	log.Info("Setting up Repos from main...")
	patientRepo := repos.NewPatientRepo(thePG, log)
	donorRepo := repos.NewDonorRepo(thePG, log)
	runRepo := repos.NewAllocationRunRepo(thePG, log)
	eventRepo := repos.NewAllocationEventRepo(thePG, log)

	// Realtime
	log.Info("Setting up realtime hub now...")
	hub := realtime.NewHub(log)
	var emitter services.Emitter = &services.HubEmitter{Hub: hub}
	if os.Getenv("REDIS_ADDR") != "" {
		eventBus, err := bus.NewRedisBus(log)
		if err != nil {
			log.Error("Could not init redis event bus", "error", err)
			os.Exit(1)
		}
		defer eventBus.Close()
		if err := eventBus.StartForwarder(ctx, hub.Broadcast); err != nil {
			log.Error("Could not start event bus forwarder", "error", err)
			os.Exit(1)
		}
		emitter = &services.BusEmitter{Bus: eventBus, Log: log}
	}
	runNotifier := services.NewRunNotifier(emitter)

	// Clients
	var alerts services.AlertNotifier
	twilioClient, err := twilio.NewFromEnv(log)
	if err != nil {
		log.Warn("Twilio not configured, falling back to mock SMS", "error", err)
		alerts = services.NewMockNotifier(log)
	} else {
		alerts = services.NewSMSNotifier(log, twilioClient)
	}
	predictorClient, err := predictor.NewFromEnv(log)
	if err != nil {
		log.Error("Could not init survival predictor client", "error", err)
		os.Exit(1)
	}

	// Services
	log.Info("Setting up Services from main...")
	source := services.NewWaitlistSource(log, patientRepo)
	estimator := services.NewPredictorEstimator(log, predictorClient)
	allocationService := services.NewAllocationService(
		thePG,
		log,
		services.AllocationConfig{
			ClaimInterval:      time.Duration(claimIntervalMS) * time.Millisecond,
			MaxAttempts:        maxAttempts,
			StaleRunning:       time.Duration(staleRunningSec) * time.Second,
			PredictParallelism: predictParallelism,
		},
		runRepo,
		eventRepo,
		source,
		estimator,
		runNotifier,
	)
	allocationService.StartWorker(ctx)
	actionService := services.NewActionService(thePG, log, runRepo, eventRepo, alerts, runNotifier)

	// Handlers
	log.Info("Setting up handlers from main...")
	donorHandler := handlers.NewDonorHandler(log, donorRepo, allocationService, actionService)
	patientHandler := handlers.NewPatientHandler(log, patientRepo)
	allocationHandler := handlers.NewAllocationHandler(log, actionService)
	sseHandler := handlers.NewSSEHandler(log, hub)

	// Middleware
	log.Info("Setting up middleware from main...")
	operatorAuth := middleware.NewOperatorAuth(log, operatorToken)

	// Router
	log.Info("Setting up router from main...")
	router := server.NewRouter(server.RouterConfig{
		AllowedOrigins:    allowedOrigins,
		OperatorAuth:      operatorAuth,
		DonorHandler:      donorHandler,
		PatientHandler:    patientHandler,
		AllocationHandler: allocationHandler,
		SSEHandler:        sseHandler,
	})

	port := utils.GetEnv("PORT", "8080", log)
	fmt.Printf("Server listening on :%s\n", port)
	if err := router.Run(":" + port); err != nil {
		log.Warn("Server failed", "error", err)
	}
}
