package triggers

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mymmrac/telego"

	"github.com/nextlevelbuilder/agentdaemon/internal/bus"
	"github.com/nextlevelbuilder/agentdaemon/internal/role"
)

// telegramMessageLimit is the bot API's hard per-message character cap.
const telegramMessageLimit = 4096

// TelegramDriver is a long-polling, outbound-only Telegram bot client.
type TelegramDriver struct {
	cfg     role.TelegramTrigger
	handler bus.Handler
	logger  *slog.Logger

	bot *telego.Bot

	pollCancel context.CancelFunc
	pollDone   chan struct{}
}

// NewTelegramDriver reads the bot token from cfg.TokenEnv and constructs
// the bot client. Returns an error if the env var is unset; the daemon
// skips this driver and starts the rest.
func NewTelegramDriver(cfg role.TelegramTrigger, handler bus.Handler, logger *slog.Logger) (*TelegramDriver, error) {
	token := os.Getenv(cfg.TokenEnv)
	if token == "" {
		return nil, fmt.Errorf("telegram: env var %s is not set", cfg.TokenEnv)
	}
	bot, err := telego.NewBot(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &TelegramDriver{cfg: cfg, handler: handler, logger: logger, bot: bot}, nil
}

func (d *TelegramDriver) Start(ctx context.Context) error {
	pollCtx, cancel := context.WithCancel(ctx)
	d.pollCancel = cancel
	d.pollDone = make(chan struct{})

	updates, err := d.bot.UpdatesViaLongPolling(pollCtx, &telego.GetUpdatesParams{
		Timeout:        30,
		AllowedUpdates: []string{"message"},
	})
	if err != nil {
		cancel()
		return fmt.Errorf("start telegram long polling: %w", err)
	}

	go func() {
		defer close(d.pollDone)
		for {
			select {
			case <-pollCtx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				d.handleUpdate(update)
			}
		}
	}()

	return nil
}

func (d *TelegramDriver) Stop() error {
	if d.pollCancel != nil {
		d.pollCancel()
	}
	if d.pollDone != nil {
		select {
		case <-d.pollDone:
		case <-time.After(10 * time.Second):
			d.logger.Warn("telegram: polling goroutine did not exit within timeout")
		}
	}
	return nil
}

func (d *TelegramDriver) handleUpdate(update telego.Update) {
	message := update.Message
	if message == nil || message.From == nil {
		return
	}

	userID := strconv.FormatInt(message.From.ID, 10)
	username := message.From.Username

	if !d.isAllowed(username, userID) {
		d.logger.Debug("telegram: message rejected by access control", slog.String("user_id", userID))
		return
	}

	chatID := message.Chat.ID
	prompt := strings.ReplaceAll(d.cfg.PromptTemplate, "{message}", message.Text)

	metadata := map[string]string{
		"user":    username,
		"chat_id": strconv.FormatInt(chatID, 10),
		"user_id": userID,
	}

	d.handler(bus.TriggerEvent{
		TriggerType: bus.TriggerTelegram,
		Prompt:      prompt,
		Timestamp:   time.Now().UTC(),
		Metadata:    metadata,
		ReplyFn: func(text string) error {
			return d.reply(chatID, text)
		},
	})
}

// isAllowed applies union access-control semantics: if either allowlist is
// configured, the sender must match at least one; if neither is
// configured, every sender passes.
func (d *TelegramDriver) isAllowed(username, userID string) bool {
	if len(d.cfg.AllowedUsers) == 0 && len(d.cfg.AllowedUserIDs) == 0 {
		return true
	}
	for _, u := range d.cfg.AllowedUsers {
		if u == username {
			return true
		}
	}
	for _, id := range d.cfg.AllowedUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func (d *TelegramDriver) reply(chatID int64, text string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, chunk := range bus.Chunk(text, telegramMessageLimit) {
		params := &telego.SendMessageParams{
			ChatID: telego.ChatID{ID: chatID},
			Text:   chunk,
		}
		if _, err := d.bot.SendMessage(ctx, params); err != nil {
			return fmt.Errorf("send telegram message: %w", err)
		}
	}
	return nil
}
