package cmd

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"pavebot/pkg/bot"
	"pavebot/pkg/config"
	"pavebot/pkg/logger"
	"pavebot/pkg/orders"
	"pavebot/pkg/provider"
	_ "pavebot/pkg/provider/openai"
	"pavebot/pkg/reply"
	"pavebot/pkg/retry"
	"pavebot/pkg/session"
	"pavebot/pkg/tools"

	"github.com/spf13/cobra"
)

var chatSender string

// chatCmd talks to the bot from the terminal, without a gateway or
// redis: the full conversation loop, none of the transport.
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the bot from the terminal",
	Long:  "Starts an interactive conversation against the configured provider with an in-memory catalog, no gateway or redis required.",
	Run: func(cmd *cobra.Command, args []string) {
		_ = args

		cfg, err := config.LoadConfig()
		if err != nil {
			cfg = config.Defaults()
		}

		appLogger, err := logger.New(cfg.Logging)
		if err != nil {
			fmt.Printf("failed to initialize logger: %v\n", err)
			return
		}
		slog.SetDefault(appLogger)

		client, err := provider.New(cfg)
		if err != nil {
			fmt.Printf("failed to initialize provider: %v\n", err)
			return
		}

		limits := cfg.Limits
		toolTimeout := time.Duration(limits.ToolTimeoutSeconds) * time.Second
		registry := tools.NewRegistry(toolTimeout, limits.MaxToolPayloadBytes)
		tools.RegisterOrderTools(registry, orders.NewMemoryService(), toolTimeout)

		sessions := session.NewManager(nil, 0, slog.Default())
		policy := retry.Policy{
			Attempts:  limits.RetryAttempts,
			BaseDelay: time.Duration(limits.RetryBaseDelayMs) * time.Millisecond,
		}
		b := bot.New(client, registry, sessions, policy, time.Duration(limits.ModelTimeoutSeconds)*time.Second, slog.Default())

		runInteractive(context.Background(), b, chatSender)
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVarP(&chatSender, "sender", "s", "+570000000000", "sender identity to chat as")
}

func runInteractive(ctx context.Context, b *bot.Bot, sender string) {
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("👨🏻 ")
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				fmt.Printf("input error: %v\n", err)
			}
			return
		}

		message := strings.TrimSpace(scanner.Text())
		if message == "" {
			continue
		}
		if isExitCommand(message) {
			return
		}

		printReply(b.HandleMessage(ctx, sender, message))
	}
}

func printReply(r reply.StructuredReply) {
	if r.Message != "" {
		for _, line := range strings.Split(strings.TrimSpace(r.Message), "\n") {
			fmt.Printf("🍮 %s\n", line)
		}
	}
	for _, img := range r.Images {
		if img.Caption != "" {
			fmt.Printf("🖼  %s (%s)\n", img.URL, img.Caption)
		} else {
			fmt.Printf("🖼  %s\n", img.URL)
		}
	}
	fmt.Println()
}

func isExitCommand(input string) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "exit", "quit", ":q":
		return true
	default:
		return false
	}
}
