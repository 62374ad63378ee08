package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"tabflow/internal/config"
	"tabflow/internal/handler"
	"tabflow/internal/offload"
	"tabflow/internal/port"
	"tabflow/internal/repository/postgres"
	"tabflow/internal/router"
	"tabflow/internal/service"
	s3storage "tabflow/internal/storage/s3"
	"tabflow/internal/transform"
	"tabflow/internal/validator"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Saved-mapping persistence is optional: without a database the importer
	// still works, it just re-maps from scratch every time.
	var mappingRepo port.SavedMappingRepository
	db, err := postgres.NewDB(&cfg.DB)
	if err != nil {
		log.Printf("server: database unavailable, saved mappings disabled: %v", err)
		db = nil
	} else {
		defer db.Close()
		mappingRepo = postgres.NewSavedMappingRepo(db)
	}

	storage, err := s3storage.NewS3Client(&cfg.S3)
	if err != nil {
		return fmt.Errorf("failed to initialize S3 client: %w", err)
	}

	// A nil concrete client must stay a nil interface.
	var offloadClient port.OffloadClient
	if c := offload.NewClient(&cfg.Offload); c != nil {
		offloadClient = c
		log.Printf("server: remote processing enabled via %s", cfg.Offload.BaseURL)
	}

	importSvc := service.NewImportService(
		transform.NewRegistry(),
		validator.NewRegistry(),
		mappingRepo,
		storage,
		offloadClient,
		&cfg.Processing,
		&cfg.S3,
	)

	janitor := service.NewSessionJanitor(importSvc, service.JanitorConfig{
		PollInterval: time.Minute,
		SessionTTL:   time.Duration(cfg.Processing.SessionTTLMins) * time.Minute,
	})
	go janitor.Start(ctx)

	importH := handler.NewImportHandler(importSvc, cfg.Processing.MaxFileSizeMB)
	healthH := handler.NewHealthHandler(db)

	r := router.Setup(cfg, importH, healthH)

	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Server starting on %s", cfg.Server.Port)
		if serveErr := srv.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errCh <- serveErr
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	log.Println("Server shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}
