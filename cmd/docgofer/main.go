package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"docgofer/internal/analysis"
	"docgofer/internal/batcher"
	"docgofer/internal/cache"
	"docgofer/internal/config"
	"docgofer/internal/dispatcher"
	"docgofer/internal/endpoint"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "config.json", "path to config file")
	inputPath := flag.String("input", "", "path to JSON file with input documents")
	op := flag.String("op", analysis.OpSentiment, "analysis operation to run")
	flag.Parse()

	// Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		// Basic logger for startup errors
		log := zerolog.New(os.Stderr).With().Timestamp().Logger()
		log.Fatal().Err(err).Msg("failed to load config")
	}

	// Setup logger
	logger := setupLogger(cfg.LogLevel)

	if *inputPath == "" {
		logger.Fatal().Msg("-input is required")
	}
	if !analysis.IsKnownOperation(*op) {
		logger.Fatal().Str("op", *op).Strs("known", analysis.KnownOperations).Msg("unknown operation")
	}

	docs, err := readDocuments(*inputPath)
	if err != nil {
		logger.Fatal().Err(err).Str("input", *inputPath).Msg("failed to read input documents")
	}

	logger.Info().
		Str("config", *configPath).
		Str("op", *op).
		Int("documents", len(docs)).
		Int("endpoints", len(cfg.Endpoints)).
		Msg("starting docgofer")

	// Cancel the dispatch on SIGINT/SIGTERM; batches not yet started are
	// reported as cancelled instead of silently dropped.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-quit
		logger.Info().Str("signal", sig.String()).Msg("received shutdown signal, cancelling dispatch")
		cancel()
	}()

	report, err := run(ctx, cfg, docs, *op, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("dispatch failed")
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		logger.Fatal().Err(err).Msg("failed to write report")
	}

	logger.Info().
		Int("items", len(report.Results)).
		Int("succeeded", report.SuccessCount()).
		Int("failed", report.FailureCount()).
		Int("batches", report.BatchCount).
		Int("failedBatches", report.FailedBatchCount).
		Msg("done")

	if report.FailureCount() > 0 {
		os.Exit(1)
	}
}

// run wires endpoints, cache and dispatcher together and dispatches the documents
func run(ctx context.Context, cfg *config.Config, docs []analysis.Document, op string, logger zerolog.Logger) (*dispatcher.Report, error) {
	endpoints := make([]*endpoint.Endpoint, 0, len(cfg.Endpoints))
	for _, epCfg := range cfg.Endpoints {
		ep, err := endpoint.NewFromConfig(epCfg, cfg, logger)
		if err != nil {
			return nil, err
		}
		if epCfg.WSURL != "" && epCfg.URL == "" {
			if err := ep.StartWS(ctx, 0, 0); err != nil {
				return nil, fmt.Errorf("endpoint %s: %w", epCfg.Name, err)
			}
		}
		endpoints = append(endpoints, ep)
	}

	var respCache cache.Cache
	if cfg.IsCacheEnabled() {
		mc, err := cache.NewMemoryCache(cfg.Cache.Size, cfg.Cache.GetTTLDuration())
		if err != nil {
			return nil, fmt.Errorf("failed to create cache: %w", err)
		}
		respCache = mc
		defer respCache.Close()
	}

	exec := endpoint.NewExecutor(endpoints, endpoint.RetryConfig{
		Enabled:     cfg.Retry.IsRetryEnabled(),
		MaxAttempts: cfg.Retry.MaxAttempts,
	}, respCache, logger)
	defer exec.Close()

	d, err := dispatcher.New(dispatcher.Options{
		MaxBatchSize:         cfg.Batching.MaxBatchSize,
		MaxBatchPayload:      cfg.Batching.MaxBatchPayload,
		MaxConcurrentBatches: cfg.Batching.MaxConcurrentBatches,
		PerBatchTimeout:      cfg.Batching.GetPerBatchTimeoutDuration(),
	}, logger)
	if err != nil {
		return nil, err
	}

	items := make([]batcher.Item, len(docs))
	for i, doc := range docs {
		items[i] = batcher.Item{ID: doc.ID, Payload: doc, SizeHint: doc.Size()}
	}

	return d.Dispatch(ctx, items, exec.Transport(op))
}

// readDocuments reads a JSON array of documents, assigning sequential IDs
// to documents that have none.
func readDocuments(path string) ([]analysis.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read input file: %w", err)
	}

	var docs []analysis.Document
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("failed to parse input file: %w", err)
	}

	for i := range docs {
		if docs[i].ID == "" {
			docs[i].ID = fmt.Sprintf("%d", i+1)
		}
		if err := docs[i].Validate(); err != nil {
			return nil, err
		}
	}
	return docs, nil
}

// setupLogger configures the zerolog logger
func setupLogger(level string) zerolog.Logger {
	var logLevel zerolog.Level
	switch level {
	case "debug":
		logLevel = zerolog.DebugLevel
	case "info":
		logLevel = zerolog.InfoLevel
	case "warn":
		logLevel = zerolog.WarnLevel
	case "error":
		logLevel = zerolog.ErrorLevel
	default:
		logLevel = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(logLevel)

	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}

	return zerolog.New(output).With().Timestamp().Logger()
}
