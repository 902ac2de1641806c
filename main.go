package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"powercast/config"
	"powercast/db"
	qhttp "powercast/http"
	"powercast/logger"
	"powercast/modelstore"
	"powercast/monitoring"
	"powercast/prediction"
)

func main() {
	// 1. Load config
	cfg, err := config.Load(config.Path(os.Getenv))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	cfg.ApplyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	zl, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zl.Sync()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := monitoring.NewMetrics(registry)
	if err != nil {
		zl.Fatal("Failed to register metrics", zap.Error(err))
	}

	// 2. Load models
	ctx := context.Background()
	store, report := modelstore.Initialize(ctx, cfg.Registry(), modelstore.Options{
		Bucket:  cfg.Storage.Bucket,
		Fetcher: newFetcher(ctx, cfg, zl),
		Logger:  zl,
	})
	metrics.SetLoadedModels(store.Len())
	metrics.AddLoadFailures(len(report.Errors()))
	if store.Len() == 0 {
		zl.Warn("No models loaded; UI will show an error until models are added.")
	} else {
		zl.Info("Models ready", zap.Strings("models", store.Names()), zap.Strings("skipped", report.Skipped))
	}

	if cfg.WatchArtifacts {
		watcher, err := modelstore.Watch(cfg.Registry(), zl)
		if err != nil {
			zl.Warn("Failed to watch model artifacts", zap.Error(err))
		} else {
			defer watcher.Close()
		}
	}

	// 3. Prediction service
	opts := []prediction.Option{prediction.WithMetrics(metrics), prediction.WithCache(cfg.Cache.Size)}
	var history qhttp.HistoryReader
	if cfg.Database.Path != "" {
		predictionLog, err := db.Open(cfg.Database.Path)
		if err != nil {
			zl.Warn("Prediction history disabled", zap.String("path", cfg.Database.Path), zap.Error(err))
		} else {
			defer predictionLog.Close()
			opts = append(opts, prediction.WithRecorder(predictionLog))
			history = predictionLog
			zl.Info("Prediction history enabled", zap.String("path", cfg.Database.Path))
		}
	}
	service, err := prediction.NewService(store, zl, opts...)
	if err != nil {
		zl.Fatal("Failed to create prediction service", zap.Error(err))
	}

	// 4. Start HTTP server
	server := qhttp.NewServer(qhttp.ServerConfig{
		Port:         cfg.Http.Port,
		Timeout:      cfg.Http.Timeout,
		RateLimit:    cfg.Http.RateLimit,
		RateBurst:    cfg.Http.RateBurst,
		MaxBodyBytes: cfg.Http.MaxBodyBytes,
	}, qhttp.NewHandlers(service, history, zl), metrics, zl)

	errc := make(chan error, 1)
	go func() {
		errc <- server.Start()
	}()

	// 5. Handle graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
		zl.Info("Shutting down...")
	case err := <-errc:
		if err != nil {
			zl.Error("HTTP server failed", zap.Error(err))
		}
		return
	}

	if err := server.Stop(); err != nil {
		zl.Error("Server forced to shutdown", zap.Error(err))
	}

	zl.Info("Exiting")
}

// newFetcher returns the S3 fetcher when a bucket is configured.
func newFetcher(ctx context.Context, cfg *config.Config, zl *zap.Logger) modelstore.Fetcher {
	if cfg.Storage.Bucket == "" {
		return modelstore.NopFetcher{}
	}
	fetcher, err := modelstore.NewS3Fetcher(ctx, modelstore.S3Options{
		Region:       cfg.Storage.Region,
		Endpoint:     cfg.Storage.Endpoint,
		UsePathStyle: cfg.Storage.UsePathStyle,
		Timeout:      cfg.Storage.FetchTimeout,
	})
	if err != nil {
		zl.Warn("S3 client unavailable; cannot download models", zap.Error(err))
		return modelstore.NopFetcher{}
	}
	return fetcher
}
