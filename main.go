package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nr2bj/transcribe-server/internal/acquire"
	"github.com/nr2bj/transcribe-server/internal/api"
	"github.com/nr2bj/transcribe-server/internal/auth"
	"github.com/nr2bj/transcribe-server/internal/config"
	"github.com/nr2bj/transcribe-server/internal/db"
	"github.com/nr2bj/transcribe-server/internal/extract"
	"github.com/nr2bj/transcribe-server/internal/format"
	"github.com/nr2bj/transcribe-server/internal/job"
	"github.com/nr2bj/transcribe-server/internal/model"
	"github.com/nr2bj/transcribe-server/internal/model/whispercpp"
	"github.com/nr2bj/transcribe-server/internal/transcribe"
	"github.com/nr2bj/transcribe-server/internal/webhook"
)

// retentionSweepInterval is how often the Retention Sweeper checks for
// expired jobs; finer-grained than the retention horizon itself since
// the cost of an extra pass over an empty result set is negligible.
const retentionSweepInterval = time.Hour

func main() {
	cfg := config.Load()

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		log.Fatalf("failed to create data directory: %v", err)
	}

	database, err := db.NewSQLite(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to initialize database: %v", err)
	}
	defer database.Close()

	store := job.NewStore(database.DB())
	if err := store.Migrate(); err != nil {
		log.Fatalf("failed to migrate job store: %v", err)
	}

	backend := whispercpp.New(cfg.WhisperServerURL)
	manager := model.NewManager(backend, cfg.WhisperModel, cfg.IdleThreshold())
	go manager.Run()
	defer manager.Stop()

	queue := job.NewQueue(cfg.QueueCapacity)
	completions := job.NewCompletionRegistry()
	notifier := webhook.New(nil)

	processor := job.NewProcessor(
		store, queue, cfg.DataDir, cfg.PublicBaseURL,
		acquire.NewYTDLP(),
		extract.FFmpeg{},
		transcribe.New(manager),
		format.Generator{},
		notifier,
		completions,
	)
	processor.ResumeOnStartup()
	go processor.Run()
	defer processor.Stop()

	sweeper := job.NewRetentionSweeper(store, cfg.DataDir, retentionSweepInterval)
	go sweeper.Run()
	defer sweeper.Stop()

	jwtService := auth.NewJWTService(cfg.JWTSecret)

	router := api.NewRouter(database, store, queue, completions, manager, sweeper, jwtService, cfg, cfg.PublicBaseURL, cfg.AllowedOrigins)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: router}

	go func() {
		log.Printf("starting server on %s (data_dir=%s model=%s)", addr, cfg.DataDir, cfg.WhisperModel)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Println("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}
