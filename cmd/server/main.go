package main

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/badradine/Smart-Scan-Storage/internal/config"
	"github.com/badradine/Smart-Scan-Storage/internal/ingest"
	"github.com/badradine/Smart-Scan-Storage/internal/ratelimit"
	"github.com/badradine/Smart-Scan-Storage/internal/search"
	"github.com/badradine/Smart-Scan-Storage/internal/server"
	"github.com/badradine/Smart-Scan-Storage/internal/usertoken"
	"github.com/badradine/Smart-Scan-Storage/internal/util"
	"github.com/badradine/Smart-Scan-Storage/pkg/access"
	"github.com/badradine/Smart-Scan-Storage/pkg/ocr"
	"github.com/badradine/Smart-Scan-Storage/pkg/queue"
	"github.com/badradine/Smart-Scan-Storage/pkg/storage"
	"github.com/badradine/Smart-Scan-Storage/pkg/store"
)

func main() {
	if err := access.ValidateMatrix(); err != nil {
		log.Fatalf("invalid permission matrix: %v", err)
	}

	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	dataStore, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to init postgres store: %v", err)
	}
	blobs, err := storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
	if err != nil {
		log.Fatalf("failed to init minio store: %v", err)
	}
	recognizer, err := ocr.NewCommandRecognizer(ocr.Config{
		Command:   cfg.OCRCommand,
		Languages: cfg.OCRLanguages,
		Timeout:   time.Duration(cfg.OCRTimeoutSeconds) * time.Second,
		Sessions:  cfg.OCRSessions,
	})
	if err != nil {
		log.Fatalf("failed to init ocr recognizer: %v", err)
	}

	jobQueue, err := queue.NewRedisJobQueue(queue.Config{
		Addr:       cfg.RedisAddr,
		Password:   cfg.RedisPassword,
		Stream:     cfg.QueueName,
		Group:      cfg.QueueGroup,
		MaxRetries: cfg.QueueMaxRetries,
		RetryDelay: time.Duration(cfg.QueueRetryDelaySeconds) * time.Second,
	})
	if err != nil {
		log.Fatalf("failed to init job queue: %v", err)
	}

	pipeline, err := ingest.New(ingest.Config{
		Store:           dataStore,
		Blobs:           blobs,
		Recognizer:      recognizer,
		Queue:           jobQueue,
		Workers:         cfg.OCRSessions,
		PrimaryLanguage: cfg.PrimaryLanguage,
	})
	if err != nil {
		log.Fatalf("failed to init ingest pipeline: %v", err)
	}

	tokenVerifier, err := usertoken.NewVerifier(usertoken.Config{
		JWKSURL:    cfg.JWKSURL,
		Issuer:     cfg.JWTIssuer,
		Audience:   cfg.JWTAudience,
		Leeway:     time.Duration(cfg.JWTLeewaySeconds) * time.Second,
		HTTPClient: &http.Client{Timeout: 5 * time.Second},
	})
	if err != nil {
		log.Fatalf("failed to init jwks verifier: %v", err)
	}

	var limiter server.Limiter
	if cfg.RateLimitPerMinute > 0 {
		rl, err := ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, "", cfg.RateLimitPerMinute, time.Minute)
		if err != nil {
			log.Fatalf("failed to init rate limiter: %v", err)
		}
		limiter = rl
	}
	proxies, err := util.NewTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		log.Fatalf("failed to parse trusted proxies: %v", err)
	}

	httpServer, err := server.New(server.Config{
		Store:             dataStore,
		Pipeline:          pipeline,
		Search:            search.NewEngine(dataStore),
		TokenVerifier:     tokenVerifier,
		Jobs:              jobQueue,
		Limiter:           limiter,
		TrustedProxies:    proxies,
		MaxUploadBytes:    cfg.MaxUploadBytes,
		MaxFilesPerBatch:  cfg.MaxFilesPerBatch,
		AllowedExtensions: cfg.AllowedExtensions,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	concurrency := cfg.QueueConcurrency
	if concurrency <= 0 {
		concurrency = 2
	}
	jobQueue.Start(ctx, concurrency, func(ctx context.Context, job queue.Job) (json.RawMessage, error) {
		outcomes, err := pipeline.Process(ctx, job.DocumentID)
		if err != nil {
			return nil, err
		}
		return json.Marshal(outcomes)
	})

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", "err", err)
		}
	}()

	slog.Info("scanstore server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
