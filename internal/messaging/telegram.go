// Package messaging provides the message delivery abstraction for Aide.
//
// This file implements the Telegram transport on long polling.
package messaging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/aide-bot/aide/internal/models"
)

const updateChannelBuffer = 64

// Opts holds Telegram service configuration.
type Opts struct {
	Token       string
	PollTimeout int
}

// Option configures the Telegram service.
type Option func(*Opts)

// WithToken sets the bot token.
func WithToken(token string) Option {
	return func(o *Opts) { o.Token = token }
}

// WithPollTimeout sets the long poll timeout in seconds.
func WithPollTimeout(seconds int) Option {
	return func(o *Opts) { o.PollTimeout = seconds }
}

// TelegramService implements Service on the Telegram Bot API.
type TelegramService struct {
	bot     *tgbotapi.BotAPI
	updates chan models.Update
	timeout int
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewTelegramService creates a Telegram service. The token comes from
// options or the TELEGRAM_BOT_TOKEN environment variable.
func NewTelegramService(opts ...Option) (*TelegramService, error) {
	cfg := Opts{PollTimeout: 30}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Token == "" {
		cfg.Token = os.Getenv("TELEGRAM_BOT_TOKEN")
	}
	if cfg.Token == "" {
		slog.Error("Telegram service creation failed: bot token not set")
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN not set")
	}
	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		slog.Error("Telegram bot authorization failed", "error", err)
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	slog.Info("Telegram bot authorized", "username", bot.Self.UserName)
	return &TelegramService{
		bot:     bot,
		updates: make(chan models.Update, updateChannelBuffer),
		timeout: cfg.PollTimeout,
		done:    make(chan struct{}),
	}, nil
}

// Start begins long polling for updates until ctx is canceled or Stop is called.
func (t *TelegramService) Start(ctx context.Context) error {
	pollCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel

	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = t.timeout
	raw := t.bot.GetUpdatesChan(cfg)

	go func() {
		defer close(t.done)
		defer close(t.updates)
		slog.Debug("Telegram update loop started", "poll_timeout", t.timeout)
		for {
			select {
			case <-pollCtx.Done():
				slog.Debug("Telegram update loop stopping")
				return
			case upd, ok := <-raw:
				if !ok {
					slog.Debug("Telegram update channel closed")
					return
				}
				if normalized, ok := normalizeUpdate(upd); ok {
					select {
					case t.updates <- normalized:
					case <-pollCtx.Done():
						return
					}
				}
			}
		}
	}()
	return nil
}

// Stop halts polling and waits for the update loop to exit.
func (t *TelegramService) Stop() {
	if t.cancel != nil {
		t.cancel()
	}
	t.bot.StopReceivingUpdates()
	<-t.done
	slog.Debug("Telegram service stopped")
}

// Updates returns the normalized inbound update channel.
func (t *TelegramService) Updates() <-chan models.Update {
	return t.updates
}

// normalizeUpdate converts a raw Telegram update into the domain Update.
// Callback payloads are decoded here, once, so handlers work with typed
// commands only.
func normalizeUpdate(upd tgbotapi.Update) (models.Update, bool) {
	if cb := upd.CallbackQuery; cb != nil && cb.Message != nil {
		return models.Update{
			UserID:    cb.From.ID,
			ChatID:    cb.Message.Chat.ID,
			Username:  cb.From.UserName,
			MessageID: cb.Message.MessageID,
			Callback: &models.Callback{
				ID:        cb.ID,
				MessageID: cb.Message.MessageID,
				Command:   models.ParseCommand(cb.Data),
			},
		}, true
	}
	if msg := upd.Message; msg != nil && msg.From != nil {
		out := models.Update{
			UserID:    msg.From.ID,
			ChatID:    msg.Chat.ID,
			Username:  msg.From.UserName,
			MessageID: msg.MessageID,
		}
		if msg.Voice != nil {
			out.Voice = &models.Voice{FileID: msg.Voice.FileID, Duration: msg.Voice.Duration}
			return out, true
		}
		if msg.IsCommand() {
			out.IsCommand = true
			out.Text = msg.Command()
			return out, true
		}
		if strings.TrimSpace(msg.Text) != "" {
			out.Text = msg.Text
			return out, true
		}
	}
	return models.Update{}, false
}

// SendMessage sends a message with an optional inline keyboard.
func (t *TelegramService) SendMessage(ctx context.Context, chatID int64, text string, keyboard models.Keyboard) (int, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if len(keyboard) > 0 {
		msg.ReplyMarkup = buildMarkup(keyboard)
	}
	sent, err := t.bot.Send(msg)
	if err != nil {
		slog.Error("Telegram SendMessage failed", "error", err, "chatID", chatID)
		return 0, fmt.Errorf("failed to send message to %d: %w", chatID, err)
	}
	slog.Debug("Telegram SendMessage succeeded", "chatID", chatID, "messageID", sent.MessageID)
	return sent.MessageID, nil
}

// EditMessage replaces the text and keyboard of a sent message.
func (t *TelegramService) EditMessage(ctx context.Context, chatID int64, messageID int, text string, keyboard models.Keyboard) error {
	edit := tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, text, buildMarkup(keyboard))
	edit.ParseMode = tgbotapi.ModeHTML
	if _, err := t.bot.Send(edit); err != nil {
		slog.Error("Telegram EditMessage failed", "error", err, "chatID", chatID, "messageID", messageID)
		return fmt.Errorf("failed to edit message %d: %w", messageID, err)
	}
	return nil
}

// AnswerCallback acknowledges an inline button press.
func (t *TelegramService) AnswerCallback(ctx context.Context, callbackID, text string) error {
	if _, err := t.bot.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		slog.Warn("Telegram AnswerCallback failed", "error", err)
		return fmt.Errorf("failed to answer callback: %w", err)
	}
	return nil
}

// DownloadVoice fetches a voice note payload via the Bot API file endpoint.
func (t *TelegramService) DownloadVoice(ctx context.Context, fileID string) (io.ReadCloser, error) {
	url, err := t.bot.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve voice file %s: %w", fileID, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build voice download request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download voice file: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("voice download returned status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

// buildMarkup converts a domain keyboard into Telegram markup.
func buildMarkup(keyboard models.Keyboard) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(keyboard))
	for _, row := range keyboard {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Label, b.Data))
		}
		rows = append(rows, buttons)
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}
