// Package bot implements the Telegram transport and the submission state
// machine.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"curator_bot/internal/ai"
	"curator_bot/internal/banner"
	"curator_bot/internal/config"
	"curator_bot/internal/fetch"
	"curator_bot/internal/model"
	"curator_bot/internal/preview"
	"curator_bot/internal/storage"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Bot is the Telegram bot driving submissions from intake to publication.
type Bot struct {
	api        telegramAPI
	store      storage.Storage
	cfg        *config.Config
	fetcher    fetch.Fetcher
	summarizer ai.Summarizer
	reviser    ai.Reviser
	renderer   banner.Renderer
	registry   *preview.Registry
	sched      publishScheduler
	log        *slog.Logger
}

// New creates a Bot with the given Telegram token and collaborators.
func New(store storage.Storage, cfg *config.Config, registry *preview.Registry, log *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	aiClient := ai.New(http.DefaultClient, cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.SummaryModel, cfg.RevisionModel)

	return &Bot{
		api:        api,
		store:      store,
		cfg:        cfg,
		fetcher:    fetch.New(http.DefaultClient, cfg.GitHubToken, cfg.GitLabToken),
		summarizer: aiClient,
		reviser:    aiClient,
		renderer:   banner.NewGenerator(),
		registry:   registry,
		log:        log,
	}, nil
}

// Run starts the bot's long-polling loop, blocking until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update := <-updates:
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.CallbackQuery != nil {
		if !b.cfg.IsUserAllowed(update.CallbackQuery.From.ID) {
			return
		}
		b.handleCallback(ctx, update.CallbackQuery)
		return
	}

	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}
	if !b.cfg.IsUserAllowed(msg.From.ID) {
		if msg.IsCommand() {
			b.reply(msg.Chat.ID, "Access denied.")
		}
		return
	}

	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}
	b.handleText(ctx, msg)
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()
	chatID := msg.Chat.ID

	b.log.Debug("command", "cmd", cmd, "chat_id", chatID, "user_id", msg.From.ID)

	switch cmd {
	case "start":
		b.handleStart(chatID)
	case "help":
		b.handleHelp(chatID)
	case "post":
		b.handlePost(ctx, msg)
	case "cancel":
		b.handleCancelCommand(ctx, msg)
	case "scheduled":
		b.handleScheduled(ctx, chatID)
	default:
		b.reply(chatID, "Unknown command. Use /help for a list of commands.")
	}
}

func (b *Bot) handleText(ctx context.Context, msg *tgbotapi.Message) {
	session, err := b.store.LoadSession(ctx, msg.Chat.ID, msg.From.ID)
	if err != nil {
		b.log.Error("load session", "chat_id", msg.Chat.ID, "error", err)
		return
	}
	if session == nil {
		return
	}

	switch session.State {
	case model.StateWaitingURL:
		b.handleURLInput(ctx, session, msg)
	case model.StateEditingField:
		b.handleEditInput(ctx, session, msg)
	case model.StateAwaitingRevision:
		b.handleReviseInput(ctx, session, msg)
	}
}

// SendPhoto publishes a photo with a caption and returns the message id.
// It implements the scheduler's Publisher interface.
func (b *Bot) SendPhoto(_ context.Context, chatID int64, photo []byte, caption string) (int64, error) {
	msg := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: "banner.png", Bytes: photo})
	msg.Caption = caption
	msg.ParseMode = tgbotapi.ModeHTML
	sent, err := b.api.Send(msg)
	if err != nil {
		return 0, fmt.Errorf("send photo: %w", err)
	}
	return int64(sent.MessageID), nil
}

func (b *Bot) reply(chatID int64, text string) int {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	sent, err := b.api.Send(msg)
	if err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
		return 0
	}
	return sent.MessageID
}

func (b *Bot) editMessage(chatID int64, messageID int, text string) {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	edit.ParseMode = tgbotapi.ModeHTML
	if _, err := b.api.Send(edit); err != nil {
		b.log.Debug("edit message", "chat_id", chatID, "message_id", messageID, "error", err)
	}
}

func (b *Bot) deleteMessage(chatID int64, messageID int) {
	if messageID == 0 {
		return
	}
	if _, err := b.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		b.log.Debug("delete message", "chat_id", chatID, "message_id", messageID, "error", err)
	}
}

func (b *Bot) deleteAll(refs []model.MessageRef) {
	for _, ref := range refs {
		b.deleteMessage(ref.ChatID, ref.MessageID)
	}
}

func (b *Bot) saveSession(ctx context.Context, session *model.Session) {
	if err := b.store.SaveSession(ctx, session); err != nil {
		b.log.Error("save session", "chat_id", session.ChatID, "user_id", session.UserID, "error", err)
	}
}
