package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"legajo/api/internal/app"
	"legajo/api/internal/config"
	"legajo/api/internal/email"
	"legajo/api/internal/flags"
	"legajo/api/internal/ocr"
	"legajo/api/internal/search"
	"legajo/api/internal/session"
	"legajo/api/internal/storage"
	"legajo/api/internal/store"
	"legajo/api/internal/undo"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	dataStore := store.NewPostgresStore(db)

	blobs, err := storage.New(ctx, storage.Config{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		Bucket:    cfg.MinioBucket,
		UseSSL:    cfg.MinioUseSSL,
	})
	if err != nil {
		log.Fatalf("object storage connection failed: %v", err)
	}

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
	}
	searchService := search.NewService(meiliClient, pgfts)

	featureFlags := flags.NewSet()
	featureFlags.Subscribe(func(flag flags.Flag, enabled bool) {
		log.Printf("feature flag %s set to %t", flag, enabled)
		if flag == flags.SemanticSearch {
			searchService.SetSemantic(enabled)
		}
	})

	deps := app.Dependencies{
		Store:  dataStore,
		Blobs:  blobs,
		Search: searchService,
		Flags:  featureFlags,
	}

	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Printf("Using Redis for refresh tokens and undo records")
		sessionStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer sessionStore.Close()
		deps.Sessions = sessionStore

		undoStore, err := undo.NewRedisStore(cfg.RedisURL, cfg.UndoTTL)
		if err != nil {
			log.Fatalf("redis undo store failed: %v", err)
		}
		deps.Undo = undoStore

		queue, err := ocr.NewQueueClient(cfg.RedisURL)
		if err != nil {
			log.Fatalf("ocr queue client failed: %v", err)
		}
		defer queue.Close()
		deps.Queue = queue
	} else {
		log.Printf("Using PostgreSQL for refresh tokens; undo and the OCR queue are disabled")
	}

	// The reprocess endpoint runs extraction inline in the API process.
	extractor := ocr.NewExtractor(cfg.TesseractPath)
	processor := ocr.NewProcessor(dataStore, blobs, extractor, searchService)
	deps.Reprocess = ocr.NewReprocessor(dataStore, processor, cfg.ReprocessDelay)

	mailer := email.NewService(email.Config{
		Host:      cfg.SMTPHost,
		Port:      cfg.SMTPPort,
		Username:  cfg.SMTPUsername,
		Password:  cfg.SMTPPassword,
		From:      cfg.SMTPFrom,
		FromName:  cfg.SMTPFromName,
		EnableTLS: cfg.SMTPEnableTLS,
	})
	deps.Email = mailer
	if !mailer.IsConfigured() {
		log.Printf("SMTP not configured; workflow notifications disabled")
	}

	service := app.New(cfg, deps)
	if err := service.Bootstrap(ctx); err != nil {
		log.Printf("WARNING: bootstrap error (will retry on next restart): %v", err)
	}

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Legajo API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
