package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/panelproof/engine/internal/extraction"
	"github.com/panelproof/engine/internal/queue/tasks"
	"github.com/panelproof/engine/internal/repository"
	"github.com/panelproof/engine/internal/services"
	"github.com/panelproof/engine/pkg/config"
	"github.com/panelproof/engine/pkg/database"
	"github.com/panelproof/engine/pkg/logger"
)

func main() {
	cfg := config.MustLoad()

	log, err := logger.Init(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	log.Info("Starting PanelProof worker",
		zap.String("env", cfg.AppEnv),
		zap.String("redis", cfg.RedisAddr),
		zap.Int("concurrency", cfg.AsynqConcurrency),
	)

	// Verify redis connectivity before starting the task server
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		cancel()
		log.Fatal("Redis unreachable", zap.Error(err))
	}
	cancel()
	rdb.Close()

	ctx := context.Background()
	db, err := database.OpenPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}

	geometryRepo := repository.NewGeometryRepository(db)
	documentRepo := repository.NewDocumentRepository(db)
	transformRepo := repository.NewTransformRepository(db)
	layoutRepo := repository.NewLayoutRepository(db)
	validationRepo := repository.NewValidationRepository(db)

	extractor := extraction.NewHTTPClient(cfg.ExtractorBaseURL, cfg.ExtractorTimeout)

	extractionSvc := services.NewExtractionService(geometryRepo, documentRepo, extractor, cfg.ExtractorTimeout)
	registrationSvc := services.NewRegistrationService(geometryRepo, transformRepo, layoutRepo)
	validationSvc := services.NewValidationService(geometryRepo, transformRepo, layoutRepo, validationRepo)
	// The worker processes tasks but never enqueues follow-ups itself.
	complianceSvc := services.NewComplianceService(extractionSvc, registrationSvc, validationSvc, geometryRepo, nil)

	handler := tasks.NewComplianceTaskHandler(extractionSvc, complianceSvc)

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       0,
		},
		asynq.Config{
			Concurrency: cfg.AsynqConcurrency,
			Queues: map[string]int{
				"default": 1,
			},
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeGeometryExtract, handler.HandleGeometryExtract)
	mux.HandleFunc(tasks.TypeComplianceRevalidate, handler.HandleComplianceRevalidate)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Run(mux); err != nil {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("shutdown signal received", zap.String("signal", sig.String()))
	case err := <-errCh:
		log.Error("task server error", zap.Error(err))
	}

	srv.Shutdown()
	log.Info("worker exited gracefully")
}
