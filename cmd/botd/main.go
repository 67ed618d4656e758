// Command botd is the process entry point: it wires config, logging,
// observability, storage, the durable queue, and the HTTP surface, then
// runs the estimate worker pool alongside the webhook listener until
// signaled to shut down.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"caloriebot/internal/analytics"
	"caloriebot/internal/chatapi"
	"caloriebot/internal/config"
	"caloriebot/internal/estimator"
	"caloriebot/internal/httpapi"
	"caloriebot/internal/notice"
	"caloriebot/internal/objectstore"
	"caloriebot/internal/observability"
	"caloriebot/internal/persistence/databases"
	"caloriebot/internal/queue"
	"caloriebot/internal/telemetry"
	"caloriebot/internal/trigger"
	"caloriebot/internal/version"
	"caloriebot/internal/webhook"
	"caloriebot/internal/worker"
)

const serviceVersion = "0.1.0"

func main() {
	os.Exit(run())
}

func run() int {
	observability.InitLogger("botd.log", "info")

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		log.Error().Err(err).Msg("failed to load config")
		return 1
	}
	observability.InitLogger("botd.log", cfg.LogLevel)
	log.Info().Str("version", version.Version).Str("env", cfg.AppEnv).Msg("starting botd")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.InitOTel(ctx, observability.OTelSettings{
		Endpoint:       cfg.OTLPEndpoint,
		ServiceName:    "botd",
		ServiceVersion: serviceVersion,
		Environment:    cfg.AppEnv,
	})
	if err != nil {
		log.Warn().Err(err).Msg("otel init failed, continuing without observability")
		shutdownOTel = nil
	}
	if shutdownOTel != nil {
		defer func() { _ = shutdownOTel(context.Background()) }()
	}

	pool, err := databases.OpenPool(ctx, cfg.DSN())
	if err != nil {
		log.Error().Err(err).Msg("failed to open postgres pool")
		return 2
	}
	defer pool.Close()

	meals, err := databases.NewMealStore(ctx, pool)
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize meal store schema")
		return 2
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Error().Err(err).Msg("invalid REDIS_URL")
		return 1
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Error().Err(err).Msg("failed to reach redis")
		return 2
	}

	uploader, err := objectstore.New(ctx, cfg)
	if err != nil {
		log.Error().Err(err).Msg("failed to init object storage")
		return 1
	}
	if err := uploader.Ping(ctx); err != nil {
		log.Warn().Err(err).Msg("object storage ping failed; continuing, photo resolution may fail at runtime")
	}

	reg := telemetry.New()
	analyticsAgg := analytics.New()
	jobQueue := queue.New(redisClient)
	notices := notice.New(redisClient)
	classifier := trigger.New(trigger.BotMention(cfg.BotMention))
	chat := chatapi.New(cfg.BotAPIBaseURL, cfg.BotToken)
	est := estimator.New(cfg.OpenAIAPIKey, cfg.OpenAIModel)

	dispatcher := webhook.New(webhook.Dependencies{
		Classifier: classifier,
		Queue:      jobQueue,
		Notices:    notices,
		Telemetry:  reg,
		Analytics:  analyticsAgg,
		Chat:       chat,
		HashSalt:   cfg.HashSalt,
	})

	server := httpapi.NewServer(dispatcher, analyticsAgg)

	var wg sync.WaitGroup
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	for i := 0; i < cfg.WorkerConcurrency; i++ {
		w := worker.New(worker.Dependencies{
			Queue:     jobQueue,
			Uploader:  uploader,
			Estimator: est,
			Meals:     meals,
			Chat:      chat,
			Telemetry: reg,
			Analytics: analyticsAgg,
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Run(workerCtx)
		}()
	}
	log.Info().Int("workers", cfg.WorkerConcurrency).Msg("estimate worker pool started")

	httpServer := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: server.Handler(),
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", httpServer.Addr).Msg("botd listening")
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("http server failed")
			stopWorkers()
			wg.Wait()
			return 1
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http server shutdown did not complete cleanly")
	}

	stopWorkers()
	wg.Wait()
	log.Info().Msg("botd exited cleanly")
	return 0
}
