package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/spf13/cobra"

	"prodtrack-backend/config"
	"prodtrack-backend/internal/api"
	"prodtrack-backend/internal/db"
	"prodtrack-backend/internal/notification"
	"prodtrack-backend/internal/scan"
	"prodtrack-backend/internal/store"
	"prodtrack-backend/internal/tracker"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runServe(cfg)
		},
	}
}

func runServe(cfg *config.Config) error {
	// Setup logger
	logger := log.New(os.Stdout, "prodtrack ", log.LstdFlags)

	// Create a context that can be cancelled
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	logger.Println("database initialized successfully")

	appStore := store.NewGormStore(gormDB)
	logger.Println("data store initialized")

	var extractor scan.Model
	if cfg.Extraction.APIKey == "" {
		logger.Println("no extraction API key configured, sheet scanning is disabled")
	} else {
		m, err := scan.NewGeminiModel(ctx, cfg.Extraction)
		if err != nil {
			return err
		}
		extractor = m
		logger.Printf("sheet extraction uses model %s", cfg.Extraction.Model)
	}
	scans := scan.NewService(extractor, cfg.Workflow.StagingTTL)

	var webpushOptions *webpush.Options
	var notifier tracker.FollowUpNotifier
	if cfg.Push.Enabled() {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		pool := notification.NewWorkerPool(cfg.WorkerPool.Size, cfg.WorkerPool.Queue, gormDB, webpushOptions)
		pool.Start(ctx)
		notifier = pool
	} else {
		logger.Println("VAPID keys are not configured, follow-up notifications are disabled")
	}

	trackerSvc := tracker.NewService(appStore, scans, notifier, cfg.Workflow.HandoffTTL)
	handler := api.NewHandler(appStore, trackerSvc, scans, webpushOptions, api.ShareOptions{
		PublicURL:  cfg.Server.PublicURL,
		QREndpoint: cfg.Server.QREndpoint,
	})

	// Initialize router
	router := api.NewRouter(handler, cfg.Server)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start the server in a goroutine
	serveErr := make(chan error, 1)
	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	// Setup signal handling for graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Println("Shutdown signal received, stopping services...")
	case err := <-serveErr:
		return fmt.Errorf("HTTP server ListenAndServe: %w", err)
	}

	// Create a deadline to wait for.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server Shutdown: %w", err)
	}

	logger.Println("Server gracefully stopped")
	return nil
}
