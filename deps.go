package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"subsai/analytics"
	"subsai/api"
	"subsai/batch"
	"subsai/config"
	"subsai/logger"
	"subsai/storage"
	"subsai/subtitle"
	"subsai/translate"
	"subsai/whisper"

	"github.com/redis/go-redis/v9"
)

// collaborators is everything built from config that the processor and API need.
type collaborators struct {
	deps   batch.Dependencies
	events api.RecentEvents
	close  func()
}

type dependencyBuilder func(ctx context.Context, cfg *config.Config) (*collaborators, error)

// defaultDependencies wires the real backends. Optional ones are skipped when
// their settings are empty.
func defaultDependencies(ctx context.Context, cfg *config.Config) (*collaborators, error) {
	c := &collaborators{close: func() {}}
	var closers []func()

	factory, err := whisper.NewFactory(cfg)
	if err != nil {
		return nil, fmt.Errorf("init whisper: %w", err)
	}
	c.deps.Transcribers = factory

	renderer := subtitle.NewRenderer()
	if cfg.OoonaEnabled() {
		conv, err := storage.NewOoonaConverter(cfg, nil)
		if err != nil {
			return nil, err
		}
		renderer.RegisterConverter("ooona", conv)
		logger.Info("OOONA conversion enabled")
	}
	c.deps.Renderer = renderer

	if cfg.OllamaHost != "" && cfg.OllamaModel != "" {
		tr, err := translate.NewOllama(translate.Config{
			Host:    cfg.OllamaHost,
			Model:   cfg.OllamaModel,
			Timeout: cfg.OllamaTimeout,
		})
		if err != nil {
			return nil, err
		}
		c.deps.Translator = tr
	}

	if cfg.S3Enabled() {
		sink, err := storage.NewS3Sink(ctx, cfg)
		if err != nil {
			return nil, err
		}
		c.deps.Sink = sink
		logger.Info("S3 uploads enabled", "bucket", cfg.S3Bucket)
	}

	var sinks analytics.Multi
	if cfg.AnalyticsDB != "" {
		store, err := analytics.NewSQLiteStore(cfg.AnalyticsDB)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, store)
		c.events = store
		closers = append(closers, func() {
			if err := store.Close(); err != nil {
				logger.Warn("Failed to close analytics store", "error", err)
			}
		})
	}
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := client.Ping(pctx).Err(); err != nil {
			logger.Warn("Redis not reachable, publishing anyway", "addr", cfg.RedisAddr, "error", err)
		}
		cancel()
		sinks = append(sinks, analytics.NewRedisPublisher(client, cfg.RedisChannel))
		closers = append(closers, func() { _ = client.Close() })
	}
	if len(sinks) > 0 {
		c.deps.Analytics = sinks
	}

	c.close = func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	return c, nil
}

var errJobsFailed = errors.New("one or more jobs failed")
