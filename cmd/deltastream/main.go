// Command deltastream runs the full enrichment and fan-out pipeline:
// ingest subscriber, enrichment worker pool, and the combined query
// API / fan-out gateway HTTP server, wired the same way the teacher
// gateway's main.go wires config → logger → Redis → router → server.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AnkushSinghGandhi/DeltaStream-OptionAnalysis2-sub001/internal/broker"
	"github.com/AnkushSinghGandhi/DeltaStream-OptionAnalysis2-sub001/internal/config"
	"github.com/AnkushSinghGandhi/DeltaStream-OptionAnalysis2-sub001/internal/gateway"
	"github.com/AnkushSinghGandhi/DeltaStream-OptionAnalysis2-sub001/internal/ingest"
	"github.com/AnkushSinghGandhi/DeltaStream-OptionAnalysis2-sub001/internal/logger"
	"github.com/AnkushSinghGandhi/DeltaStream-OptionAnalysis2-sub001/internal/metrics"
	"github.com/AnkushSinghGandhi/DeltaStream-OptionAnalysis2-sub001/internal/model"
	"github.com/AnkushSinghGandhi/DeltaStream-OptionAnalysis2-sub001/internal/queryapi"
	"github.com/AnkushSinghGandhi/DeltaStream-OptionAnalysis2-sub001/internal/store"
	"github.com/AnkushSinghGandhi/DeltaStream-OptionAnalysis2-sub001/internal/worker"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg)

	log.Info().Str("env", cfg.Env).Msg("deltastream starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cache, err := store.NewRedisCache(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build redis cache/bus client")
	}
	defer cache.Close()
	if err := cache.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("redis ping failed")
	}
	log.Info().Msg("redis connected")

	docStore, err := store.NewPostgresStore(ctx, cfg.StoreDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres store")
	}
	defer docStore.Close()
	log.Info().Msg("postgres store connected, schema ensured")

	reg := metrics.NewRegistry()

	cb := broker.NewCircuitBreaker(5, 30*time.Second, log)
	queue := broker.NewRedisQueue(cache.Client(), cb)

	runner := worker.NewEnrichmentRunner(cache, docStore, cache, model.TTLIdempotency, log)
	pool := worker.NewPool(queue, cache, runner, worker.Config{
		Count:       cfg.WorkerCount,
		Prefetch:    cfg.WorkerPrefetch,
		RetryBase:   cfg.TaskRetryBase,
		MaxAttempts: cfg.TaskMaxAttempts,
		SoftTimeout: cfg.TaskSoftTimeout,
		HardTimeout: cfg.TaskHardTimeout,
	}, log)
	pool.SetMetrics(reg)
	pool.Start(ctx)

	subscriber := ingest.NewSubscriber(cache, queue, cache, ingest.Config{
		HighWatermark: cfg.BrokerHighWatermark,
		LowWatermark:  cfg.BrokerLowWatermark,
	}, log)
	subscriber.SetMetrics(reg)
	go func() {
		if err := subscriber.Run(ctx); err != nil {
			log.Error().Err(err).Msg("ingest subscriber exited")
		}
	}()

	hub := gateway.NewHub(cache, cache, docStore, reg, log)
	go func() {
		if err := hub.Run(ctx); err != nil {
			log.Error().Err(err).Msg("fan-out hub exited")
		}
	}()

	api := queryapi.NewServer(cache, docStore, hub, reg, log)
	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      api.Router(1 << 20),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("query api + gateway listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.GracefulTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful http shutdown failed")
	}
	pool.Wait()
	log.Info().Msg("deltastream stopped gracefully")
}
