package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/panelproof/engine/internal/api"
	"github.com/panelproof/engine/internal/api/handlers"
	"github.com/panelproof/engine/internal/extraction"
	"github.com/panelproof/engine/internal/repository"
	"github.com/panelproof/engine/internal/services"
	"github.com/panelproof/engine/pkg/config"
	"github.com/panelproof/engine/pkg/database"
	"github.com/panelproof/engine/pkg/logger"
)

func main() {
	// Load configuration
	cfg := config.MustLoad()

	// Initialize logger
	log, err := logger.Init(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	log.Info("Starting PanelProof Engine",
		zap.String("env", cfg.AppEnv),
		zap.String("addr", cfg.HTTPAddr),
	)

	// Connect to database
	ctx := context.Background()
	db, err := database.OpenPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	log.Info("Database connected successfully")

	// Initialize repositories
	projectRepo := repository.NewProjectRepository(db)
	documentRepo := repository.NewDocumentRepository(db)
	geometryRepo := repository.NewGeometryRepository(db)
	transformRepo := repository.NewTransformRepository(db)
	layoutRepo := repository.NewLayoutRepository(db)
	validationRepo := repository.NewValidationRepository(db)
	operationRepo := repository.NewOperationRepository(db)

	// Async task client for background revalidation
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	defer asynqClient.Close()

	// External geometry extractor
	extractor := extraction.NewHTTPClient(cfg.ExtractorBaseURL, cfg.ExtractorTimeout)

	// Initialize services
	extractionSvc := services.NewExtractionService(geometryRepo, documentRepo, extractor, cfg.ExtractorTimeout)
	registrationSvc := services.NewRegistrationService(geometryRepo, transformRepo, layoutRepo)
	validationSvc := services.NewValidationService(geometryRepo, transformRepo, layoutRepo, validationRepo)
	governanceSvc := services.NewGovernanceService(operationRepo, transformRepo, layoutRepo, geometryRepo)
	complianceSvc := services.NewComplianceService(extractionSvc, registrationSvc, validationSvc, geometryRepo, asynqClient)

	// JWT Secret from config
	jwtSecret := []byte(cfg.JWTSecret)
	if len(jwtSecret) == 0 {
		log.Warn("JWT_SECRET not set, using default (INSECURE for production)")
		jwtSecret = []byte("change-me-in-production-please")
	}

	// Create router with dependencies
	router := api.NewRouter(api.Dependencies{
		HMACSecret:         jwtSecret,
		ProjectsHandler:    handlers.NewProjectsHandler(projectRepo, documentRepo),
		GeometryHandler:    handlers.NewGeometryHandler(extractionSvc, geometryRepo),
		TransformsHandler:  handlers.NewTransformsHandler(registrationSvc),
		LayoutHandler:      handlers.NewLayoutHandler(layoutRepo),
		ValidationsHandler: handlers.NewValidationsHandler(validationSvc),
		OperationsHandler:  handlers.NewOperationsHandler(governanceSvc),
		ComplianceHandler:  handlers.NewComplianceHandler(complianceSvc),
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server starting", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("shutdown signal received", zap.String("signal", sig.String()))
	case err := <-errCh:
		log.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown error", zap.Error(err))
	} else {
		log.Info("server exited gracefully")
	}
}
