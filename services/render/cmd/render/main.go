package main

import (
	"context"
	"log"
	"log/slog"
	"os/signal"
	"syscall"

	"tubestudio/internal/util"
	"tubestudio/pkg/ai"
	"tubestudio/pkg/notify"
	"tubestudio/pkg/queue"
	"tubestudio/pkg/secrets"
	"tubestudio/pkg/store"
	"tubestudio/services/render/internal/app"
	"tubestudio/services/render/internal/config"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	util.InitLogger("render", cfg.LogLevel)

	pollInterval, err := config.ParseDuration(cfg.PollInterval)
	if err != nil {
		log.Fatalf("failed to parse pollInterval: %v", err)
	}
	renderBudget, err := config.ParseDuration(cfg.RenderBudget)
	if err != nil {
		log.Fatalf("failed to parse renderBudget: %v", err)
	}

	st, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to init store: %v", err)
	}
	box, err := secrets.NewBox(cfg.CredentialKey)
	if err != nil {
		log.Fatalf("failed to init credential box: %v", err)
	}
	client, err := ai.NewGeminiClient(cfg.GeminiAPIKey)
	if err != nil {
		log.Fatalf("failed to init gemini client: %v", err)
	}

	var events notify.Publisher = notify.NopPublisher{}
	if cfg.AMQPURL != "" {
		exchange := cfg.AMQPExchange
		if exchange == "" {
			exchange = "studio.events"
		}
		publisher, err := notify.NewAMQPPublisher(cfg.AMQPURL, exchange)
		if err != nil {
			log.Fatalf("failed to init event publisher: %v", err)
		}
		defer publisher.Close()
		events = publisher
	}

	renders, err := queue.NewRedisRenderQueue(queue.RedisQueueConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		Stream:   cfg.RenderStream,
	})
	if err != nil {
		log.Fatalf("failed to init render queue: %v", err)
	}

	worker := app.New(app.Config{
		Store:        st,
		Client:       client,
		Box:          box,
		Events:       events,
		PollInterval: pollInterval,
		RenderBudget: renderBudget,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 2
	}
	renders.Start(ctx, concurrency, worker.Handle)
	slog.Info("render worker consuming", "stream", cfg.RenderStream, "concurrency", concurrency)

	<-ctx.Done()
	slog.Info("render worker shutting down")
}
