package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pavebot/pkg/bot"
	"pavebot/pkg/config"
	"pavebot/pkg/gateway"
	"pavebot/pkg/gateway/telegram"
	"pavebot/pkg/gateway/twilio"
	"pavebot/pkg/logger"
	"pavebot/pkg/orders"
	"pavebot/pkg/pipeline"
	"pavebot/pkg/provider"
	_ "pavebot/pkg/provider/openai"
	"pavebot/pkg/reply"
	"pavebot/pkg/retry"
	"pavebot/pkg/session"
	"pavebot/pkg/store"
	"pavebot/pkg/tools"
	"pavebot/pkg/webhook"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the message-processing service",
	Long:  "Runs the webhook listener (or the Telegram poller), the conversation pipeline, and outbound delivery until interrupted.",
	Run: func(cmd *cobra.Command, args []string) {
		_ = args

		cfg, err := config.LoadConfig()
		if err != nil {
			fmt.Printf("failed to load config: %v\n", err)
			return
		}

		appLogger, err := logger.New(cfg.Logging)
		if err != nil {
			fmt.Printf("failed to initialize logger: %v\n", err)
			return
		}
		slog.SetDefault(appLogger)
		log := slog.Default().With("component", "cmd.serve")

		runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		redisClient, err := store.Connect(runCtx, cfg.Redis.URL)
		if err != nil {
			log.Error("Failed to connect to redis", "error", err)
			return
		}
		if redisClient == nil {
			log.Warn("Running without redis: no deduplication, rate limiting, or session memory")
		}

		client, err := provider.New(cfg)
		if err != nil {
			log.Error("Failed to initialize provider", "error", err)
			return
		}

		limits := cfg.Limits
		toolTimeout := time.Duration(limits.ToolTimeoutSeconds) * time.Second
		policy := retry.Policy{
			Attempts:  limits.RetryAttempts,
			BaseDelay: time.Duration(limits.RetryBaseDelayMs) * time.Millisecond,
		}

		registry := tools.NewRegistry(toolTimeout, limits.MaxToolPayloadBytes)
		tools.RegisterOrderTools(registry, orders.NewMemoryService(), toolTimeout)

		sessions := session.NewManager(redisClient, time.Duration(limits.SessionTTLHours)*time.Hour, log)
		idempotency := store.NewIdempotency(redisClient, time.Duration(limits.IdempotencyTTLHours)*time.Hour, log)
		limiter := store.NewRateLimiter(redisClient, time.Minute, log)

		b := bot.New(client, registry, sessions, policy, time.Duration(limits.ModelTimeoutSeconds)*time.Second, log)

		pacing := time.Duration(limits.DeliveryPacingMs) * time.Millisecond
		processTimeout := time.Duration(limits.ProcessTimeoutSeconds) * time.Second

		switch cfg.Gateway.Driver {
		case "twilio":
			gw, err := twilio.New(cfg.Gateway.Twilio, log)
			if err != nil {
				log.Error("Gateway configuration invalid", "error", err)
				return
			}
			deliverer := gateway.NewDeliverer(gw, pacing, policy, log)
			processor := pipeline.NewProcessor(idempotency, limiter, b, deliverer, limits.RatePerMinute, processTimeout, log)
			server := webhook.NewServer(cfg.Server, processor, gw, log)

			log.Info("Service started", "gateway", "twilio", "provider", cfg.Provider.Default, "model", cfg.Provider.OpenAI.Model)
			if err := server.Start(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("Service runtime failed", "error", err)
			}

		case "telegram":
			adapter, err := telegram.NewAdapter(cfg.Gateway.Telegram, log)
			if err != nil {
				log.Error("Gateway configuration invalid", "error", err)
				return
			}
			deliverer := gateway.NewDeliverer(adapter, pacing, policy, log)

			handle := func(ctx context.Context, sender, text string) reply.StructuredReply {
				turnCtx, cancel := context.WithTimeout(ctx, processTimeout)
				defer cancel()
				return b.HandleMessage(turnCtx, sender, text)
			}

			log.Info("Service started", "gateway", "telegram", "provider", cfg.Provider.Default, "model", cfg.Provider.OpenAI.Model)
			if err := adapter.Run(runCtx, handle, deliverer); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("Service runtime failed", "error", err)
			}

		default:
			log.Error("Unsupported gateway driver", "driver", cfg.Gateway.Driver)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
