package main

import (
	"context"
	"log"
	"strings"

	"github.com/hibiken/asynq"

	"legajo/api/internal/config"
	"legajo/api/internal/ocr"
	"legajo/api/internal/search"
	"legajo/api/internal/storage"
	"legajo/api/internal/store"
)

// The worker consumes OCR tasks enqueued by the API: it downloads the
// document, extracts its text and writes the content index and search
// entries. It shares the API's configuration.
func main() {
	cfg := config.Load()
	ctx := context.Background()

	if strings.TrimSpace(cfg.RedisURL) == "" {
		log.Fatalf("REDIS_URL is required for the OCR worker")
	}

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

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

	extractor := ocr.NewExtractor(cfg.TesseractPath)
	processor := ocr.NewProcessor(dataStore, blobs, extractor, searchService)

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		log.Fatalf("parse redis url: %v", err)
	}

	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 2,
	})
	mux := asynq.NewServeMux()
	mux.Handle(ocr.TypeDocumentOCR, ocr.NewTaskHandler(processor))

	log.Printf("Legajo OCR worker running")
	if err := server.Run(mux); err != nil {
		log.Fatalf("worker failed: %v", err)
	}
}
