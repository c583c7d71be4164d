// Package telegram is the alternate gateway driver: long polling in,
// the shared delivery policy out. Useful for trying the bot without a
// Twilio account.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"pavebot/pkg/config"
	"pavebot/pkg/reply"
)

const messagePreviewLimit = 240

// Handler processes one inbound message and returns the validated
// reply to deliver.
type Handler func(ctx context.Context, sender, text string) reply.StructuredReply

// Deliverer is the slice of gateway delivery the adapter drives.
type Deliverer interface {
	Deliver(ctx context.Context, to string, r reply.StructuredReply) error
}

// Adapter bridges Telegram chats into the message pipeline.
type Adapter struct {
	bot       *telego.Bot
	allowFrom map[string]struct{}
	log       *slog.Logger
}

// NewAdapter validates configuration and connects the bot client.
func NewAdapter(cfg config.TelegramConfig, log *slog.Logger) (*Adapter, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("gateway.telegram.token is required")
	}

	bot, err := telego.NewBot(token)
	if err != nil {
		return nil, fmt.Errorf("initialize telegram bot: %w", err)
	}

	if log == nil {
		log = slog.Default()
	}

	return &Adapter{
		bot:       bot,
		allowFrom: allowFromSet(cfg.AllowFrom),
		log:       log.With("component", "gateway.telegram"),
	}, nil
}

// SendText implements the gateway client contract; to is the chat id.
func (a *Adapter) SendText(ctx context.Context, to, body string) error {
	chatID, err := strconv.ParseInt(to, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat id %q: %w", to, err)
	}

	_, err = a.bot.SendMessage(ctx, tu.Message(tu.ID(chatID), body))
	return err
}

// SendImage sends one photo by URL with an optional caption.
func (a *Adapter) SendImage(ctx context.Context, to, url, caption string) error {
	chatID, err := strconv.ParseInt(to, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat id %q: %w", to, err)
	}

	photo := tu.Photo(tu.ID(chatID), tu.FileFromURL(url))
	if caption != "" {
		photo = photo.WithCaption(caption)
	}

	_, err = a.bot.SendPhoto(ctx, photo)
	return err
}

// Run consumes updates via long polling until the context ends. Each
// text message goes through the handler and the deliverer; non-text
// updates still get a turn through the pipeline's placeholder handling.
func (a *Adapter) Run(ctx context.Context, handle Handler, deliver Deliverer) error {
	if handle == nil || deliver == nil {
		return errors.New("handler and deliverer are required")
	}

	updates, err := a.bot.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		return fmt.Errorf("start long polling: %w", err)
	}

	a.log.Info("Telegram gateway started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("telegram updates channel closed")
			}

			message := update.Message
			if message == nil || message.From == nil {
				continue
			}

			senderID := strconv.FormatInt(message.From.ID, 10)
			if !a.senderAllowed(senderID) {
				a.log.Debug("Ignoring message from unauthorized sender", "sender_id", senderID)
				continue
			}

			chatID := strconv.FormatInt(message.Chat.ID, 10)
			text := strings.TrimSpace(message.Text)
			a.log.Info("Received message", "chat_id", chatID, "content", previewText(text))

			stopTyping := a.startTypingIndicator(ctx, message.Chat.ID)
			response := handle(ctx, chatID, text)
			stopTyping()

			if err := deliver.Deliver(ctx, chatID, response); err != nil {
				a.log.Error("Failed to deliver reply", "chat_id", chatID, "error", err)
			}
		}
	}
}

func (a *Adapter) senderAllowed(senderID string) bool {
	if len(a.allowFrom) == 0 {
		return true
	}

	_, ok := a.allowFrom[strings.TrimSpace(senderID)]
	return ok
}

func allowFromSet(allowFrom []string) map[string]struct{} {
	if len(allowFrom) == 0 {
		return nil
	}

	allowed := make(map[string]struct{}, len(allowFrom))
	for _, value := range allowFrom {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		allowed[trimmed] = struct{}{}
	}

	if len(allowed) == 0 {
		return nil
	}

	return allowed
}

func previewText(text string) string {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) <= messagePreviewLimit {
		return trimmed
	}

	return trimmed[:messagePreviewLimit] + "..."
}

// startTypingIndicator sends an initial typing action and refreshes it
// until the returned cancel function is called.
func (a *Adapter) startTypingIndicator(ctx context.Context, chatID int64) context.CancelFunc {
	typingCtx, cancel := context.WithCancel(ctx)

	sendTyping := func() {
		if err := a.bot.SendChatAction(typingCtx, tu.ChatAction(tu.ID(chatID), telego.ChatActionTyping)); err != nil && typingCtx.Err() == nil {
			a.log.Debug("Failed to send typing indicator", "chat_id", chatID, "error", err)
		}
	}

	sendTyping()

	go func() {
		ticker := time.NewTicker(4 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-typingCtx.Done():
				return
			case <-ticker.C:
				sendTyping()
			}
		}
	}()

	return cancel
}
