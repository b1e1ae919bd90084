package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"curator_bot/internal/ai"
	"curator_bot/internal/fetch"
	"curator_bot/internal/model"
	"curator_bot/internal/scheduler"
	"curator_bot/internal/storage"
)

// publishScheduler is the slice of the slot scheduler the bot depends on.
type publishScheduler interface {
	Publish(ctx context.Context, repositoryID int64, fullName, postText string, banner []byte) (scheduler.Outcome, error)
}

// AttachScheduler wires the slot scheduler into the bot. Must be called
// before Run.
func (b *Bot) AttachScheduler(s publishScheduler) {
	b.sched = s
}

func (b *Bot) handleStart(chatID int64) {
	b.reply(chatID, `Welcome to the curation bot!

Submit an open-source project and I will fetch its metadata, draft a
promotional post, and publish it to the channel.

1. /post — start a submission
2. Send the repository URL (GitHub or GitLab)
3. Review the preview, edit if needed, then publish

Use /help for the full command reference.`)
}

func (b *Bot) handleHelp(chatID int64) {
	b.reply(chatID, `Commands:
/post — start a new submission
/cancel — cancel the current submission
/scheduled — list scheduled posts

During a submission:
Confirm — fetch metadata and generate the post
Edit — change one field, or ask the AI to revise
Regenerate — discard the draft and generate again
Publish — send now, or schedule for the next free slot`)
}

func (b *Bot) handlePost(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	// A new /post supersedes any submission in flight.
	if old, err := b.store.LoadSession(ctx, chatID, msg.From.ID); err == nil && old != nil {
		b.deleteAll(old.CleanupTargets())
		b.registry.Discard(old.SubmissionID)
		if err := b.store.DeleteSession(ctx, chatID, msg.From.ID); err != nil {
			b.log.Error("delete session", "chat_id", chatID, "error", err)
		}
	}

	session := &model.Session{
		ChatID:       chatID,
		UserID:       msg.From.ID,
		State:        model.StateWaitingURL,
		SubmissionID: uuid.NewString(),
	}
	session.Track(chatID, msg.MessageID)
	session.Track(chatID, b.reply(chatID, "Send the repository URL (GitHub or GitLab)."))
	b.saveSession(ctx, session)
}

func (b *Bot) handleCancelCommand(ctx context.Context, msg *tgbotapi.Message) {
	session, err := b.store.LoadSession(ctx, msg.Chat.ID, msg.From.ID)
	if err != nil {
		b.log.Error("load session", "chat_id", msg.Chat.ID, "error", err)
		return
	}
	if session == nil {
		b.reply(msg.Chat.ID, "No active submission.")
		return
	}
	session.Track(msg.Chat.ID, msg.MessageID)
	b.cancelSession(ctx, session, "Submission cancelled.")
}

func (b *Bot) handleScheduled(ctx context.Context, chatID int64) {
	posts, err := b.store.ListScheduledPosts(ctx)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, FormatScheduledList(posts))
}

func (b *Bot) handleURLInput(ctx context.Context, session *model.Session, msg *tgbotapi.Message) {
	session.Track(msg.Chat.ID, msg.MessageID)

	ref, err := ParseRepositoryURL(msg.Text)
	if err != nil {
		session.Track(msg.Chat.ID, b.reply(msg.Chat.ID,
			"That does not look like a supported repository URL.\nSend a link like https://github.com/owner/project or /cancel."))
		b.saveSession(ctx, session)
		return
	}

	session.Ref = ref
	session.RepositoryURL = msg.Text
	session.State = model.StateWaitingConfirmation

	confirm := tgbotapi.NewMessage(msg.Chat.ID, fmt.Sprintf("Submit <b>%s</b> to the channel?", ref.FullName()))
	confirm.ParseMode = tgbotapi.ModeHTML
	confirm.ReplyMarkup = confirmKeyboard(session.SubmissionID)
	sent, err := b.api.Send(confirm)
	if err != nil {
		b.log.Error("send confirmation", "chat_id", msg.Chat.ID, "error", err)
	} else {
		session.Track(msg.Chat.ID, sent.MessageID)
	}
	b.saveSession(ctx, session)
}

// runSubmission drives the fetch → dedup gate → summarize → render path.
// Transient failures keep the session at the confirmation step so the
// Confirm button retries; rejections and the cooldown gate are terminal.
func (b *Bot) runSubmission(ctx context.Context, session *model.Session) {
	chatID := session.ChatID
	progressID := b.reply(chatID, "Fetching repository metadata...")
	session.Track(chatID, progressID)
	b.saveSession(ctx, session)

	repo, err := b.fetcher.Fetch(ctx, session.Ref)
	if err != nil {
		text := "Failed to fetch the repository. Press Confirm to retry or /cancel."
		if errors.Is(err, fetch.ErrNotFound) {
			text = fmt.Sprintf("Repository <b>%s</b> was not found. Press Confirm to retry or /cancel.", session.Ref.FullName())
		}
		b.log.Error("fetch repository", "repo", session.Ref.FullName(), "error", err)
		b.editMessage(chatID, progressID, text)
		b.saveSession(ctx, session)
		return
	}

	allowed, last, err := b.store.CanSubmit(ctx, repo.ID)
	if err != nil {
		b.log.Error("check cooldown", "repo_id", repo.ID, "error", err)
		b.editMessage(chatID, progressID, "Storage error. Press Confirm to retry.")
		return
	}
	if !allowed && last != nil {
		b.finishWithMessage(ctx, session, chatID, progressID, FormatCooldown(repo.FullName, *last, time.Now().UTC()))
		return
	}

	session.RepositoryID = repo.ID
	session.FullName = repo.FullName
	b.editMessage(chatID, progressID, fmt.Sprintf("Generating a post for <b>%s</b>...", repo.FullName))

	summary, err := b.summarizer.Summarize(ctx, repo)
	if err != nil {
		var rejection *ai.RejectionError
		if errors.As(err, &rejection) {
			b.finishWithMessage(ctx, session, chatID, progressID,
				fmt.Sprintf("<b>%s</b> was not accepted: %s", repo.FullName, rejection.Reason))
			return
		}
		b.log.Error("summarize", "repo", repo.FullName, "error", err)
		b.editMessage(chatID, progressID, "Summary generation failed. Press Confirm to retry or /cancel.")
		b.saveSession(ctx, session)
		return
	}

	bannerBytes, err := b.renderer.Render(summary.ProjectName)
	if err != nil {
		b.log.Error("render banner", "repo", repo.FullName, "error", err)
		b.editMessage(chatID, progressID, "Banner rendering failed. Press Confirm to retry or /cancel.")
		b.saveSession(ctx, session)
		return
	}

	session.Summary = summary
	session.Caption = FormatPost(repo, summary)
	session.Banner = bannerBytes
	b.registry.Save(session.SubmissionID, repo.ID, repo.FullName, b.cfg.SummaryModel)

	b.sendPreview(ctx, session)
}

// sendPreview replaces the preview message with a fresh render and deletes
// the intermediate messages it supersedes.
func (b *Bot) sendPreview(ctx context.Context, session *model.Session) {
	if session.PreviewMessageID != 0 {
		b.deleteMessage(session.PreviewChatID, session.PreviewMessageID)
		session.PreviewMessageID = 0
	}

	photo := tgbotapi.NewPhoto(session.ChatID, tgbotapi.FileBytes{Name: "banner.png", Bytes: session.Banner})
	photo.Caption = session.Caption
	photo.ParseMode = tgbotapi.ModeHTML
	photo.ReplyMarkup = previewKeyboard(session.SubmissionID)

	sent, err := b.api.Send(photo)
	if err != nil {
		b.log.Error("send preview", "chat_id", session.ChatID, "error", err)
		session.Track(session.ChatID, b.reply(session.ChatID, "Failed to send the preview. Press Confirm to retry."))
		session.State = model.StateWaitingConfirmation
		b.saveSession(ctx, session)
		return
	}

	session.PreviewChatID = session.ChatID
	session.PreviewMessageID = sent.MessageID
	b.deleteAll(session.Tracked)
	session.Tracked = nil
	session.State = model.StatePreviewing
	session.EditField = ""
	b.saveSession(ctx, session)
}

func (b *Bot) handlePublish(ctx context.Context, session *model.Session, cb *tgbotapi.CallbackQuery) {
	if !b.ensureLive(ctx, session, cb) {
		return
	}
	if session.Summary == nil || len(session.Banner) == 0 {
		b.expireSession(ctx, session)
		return
	}

	pending, err := b.store.HasPendingScheduledPost(ctx, session.RepositoryID)
	if err != nil {
		b.log.Error("check pending post", "repo_id", session.RepositoryID, "error", err)
		b.reply(session.ChatID, "Storage error. Try again.")
		return
	}
	if pending {
		b.answerAlert(cb.ID, "This repository already has a scheduled post pending.")
		return
	}

	outcome, err := b.sched.Publish(ctx, session.RepositoryID, session.FullName, session.Caption, session.Banner)
	if err != nil {
		if errors.Is(err, storage.ErrAlreadyScheduled) {
			b.answerAlert(cb.ID, "This repository already has a scheduled post pending.")
			return
		}
		if errors.Is(err, scheduler.ErrRecordFailed) {
			// The post is live in the channel. Keeping the session open
			// would invite a retry that sends it again.
			b.log.Error("publish", "repo", session.FullName, "error", err)
			b.cancelSession(ctx, session, fmt.Sprintf(
				"<b>%s</b> was sent to the channel, but recording the submission failed. Do not publish it again.",
				session.FullName))
			return
		}
		b.log.Error("publish", "repo", session.FullName, "error", err)
		b.reply(session.ChatID, "Publishing failed. Check the channel permissions and try again.")
		return
	}

	var text string
	if outcome.Published {
		text = fmt.Sprintf("<b>%s</b> published to the channel.", session.FullName)
	} else {
		text = fmt.Sprintf("<b>%s</b> scheduled for %s UTC.",
			session.FullName, outcome.Slot.UTC().Format("2006-01-02 15:04"))
	}

	b.deleteAll(session.CleanupTargets())
	b.registry.Discard(session.SubmissionID)
	if err := b.store.DeleteSession(ctx, session.ChatID, session.UserID); err != nil {
		b.log.Error("delete session", "chat_id", session.ChatID, "error", err)
	}
	b.reply(session.ChatID, text)
}

func (b *Bot) handleEditMenu(ctx context.Context, session *model.Session, cb *tgbotapi.CallbackQuery) {
	if !b.ensureLive(ctx, session, cb) {
		return
	}
	markup := editMenuKeyboard(session.SubmissionID)
	edit := tgbotapi.NewEditMessageReplyMarkup(session.PreviewChatID, session.PreviewMessageID, markup)
	if _, err := b.api.Send(edit); err != nil {
		b.log.Debug("edit preview keyboard", "error", err)
	}
}

func (b *Bot) handleEditField(ctx context.Context, session *model.Session, cb *tgbotapi.CallbackQuery, field model.EditField) {
	if !b.ensureLive(ctx, session, cb) {
		return
	}
	session.State = model.StateEditingField
	session.EditField = field
	session.Track(session.ChatID, b.reply(session.ChatID,
		fmt.Sprintf("Send the new %s, or /cancel.", fieldLabel(field))))
	b.saveSession(ctx, session)
}

func (b *Bot) handleEditInput(ctx context.Context, session *model.Session, msg *tgbotapi.Message) {
	session.Track(msg.Chat.ID, msg.MessageID)
	if session.Summary == nil || session.EditField == "" {
		b.expireSession(ctx, session)
		return
	}
	if _, ok := b.registry.Get(session.SubmissionID); !ok {
		b.expireSession(ctx, session)
		return
	}

	applyEdit(session.Summary, session.EditField, msg.Text)
	b.rerender(ctx, session)
}

func (b *Bot) handleRevisePrompt(ctx context.Context, session *model.Session, cb *tgbotapi.CallbackQuery) {
	if !b.ensureLive(ctx, session, cb) {
		return
	}
	session.State = model.StateAwaitingRevision
	session.Track(session.ChatID, b.reply(session.ChatID,
		"Describe the changes you want, or /cancel."))
	b.saveSession(ctx, session)
}

func (b *Bot) handleReviseInput(ctx context.Context, session *model.Session, msg *tgbotapi.Message) {
	session.Track(msg.Chat.ID, msg.MessageID)
	if session.Summary == nil {
		b.expireSession(ctx, session)
		return
	}
	if _, ok := b.registry.Get(session.SubmissionID); !ok {
		b.expireSession(ctx, session)
		return
	}

	statusID := b.reply(msg.Chat.ID, "Revising the post...")
	session.Track(msg.Chat.ID, statusID)
	b.saveSession(ctx, session)

	repo := b.sessionRepository(session)
	revised, err := b.reviser.Revise(ctx, repo, session.Summary, msg.Text)
	if err != nil {
		b.log.Error("revise", "repo", session.FullName, "error", err)
		b.editMessage(msg.Chat.ID, statusID, "Revision failed. Send the request again or /cancel.")
		b.saveSession(ctx, session)
		return
	}

	session.Summary = revised
	b.registry.SetRevisionModel(session.SubmissionID, b.cfg.RevisionModel)
	b.rerender(ctx, session)
}

func (b *Bot) handleRegenerate(ctx context.Context, session *model.Session, cb *tgbotapi.CallbackQuery) {
	if !b.ensureLive(ctx, session, cb) {
		return
	}

	if session.PreviewMessageID != 0 {
		b.deleteMessage(session.PreviewChatID, session.PreviewMessageID)
		session.PreviewMessageID = 0
	}
	session.Summary = nil
	session.Caption = ""
	session.Banner = nil
	session.State = model.StateWaitingConfirmation
	b.saveSession(ctx, session)

	b.runSubmission(ctx, session)
}

func (b *Bot) handleBackToPreview(ctx context.Context, session *model.Session, cb *tgbotapi.CallbackQuery) {
	if !b.ensureLive(ctx, session, cb) {
		return
	}
	session.State = model.StatePreviewing
	session.EditField = ""
	markup := previewKeyboard(session.SubmissionID)
	edit := tgbotapi.NewEditMessageReplyMarkup(session.PreviewChatID, session.PreviewMessageID, markup)
	if _, err := b.api.Send(edit); err != nil {
		b.log.Debug("restore preview keyboard", "error", err)
	}
	b.saveSession(ctx, session)
}

// rerender rebuilds the caption and banner from the current summary and
// replaces the preview.
func (b *Bot) rerender(ctx context.Context, session *model.Session) {
	bannerBytes, err := b.renderer.Render(session.Summary.ProjectName)
	if err != nil {
		b.log.Error("render banner", "repo", session.FullName, "error", err)
		session.Track(session.ChatID, b.reply(session.ChatID, "Banner rendering failed. Try again or /cancel."))
		b.saveSession(ctx, session)
		return
	}
	session.Banner = bannerBytes
	session.Caption = FormatPost(b.sessionRepository(session), session.Summary)
	b.sendPreview(ctx, session)
}

// sessionRepository reconstructs the repository view carried by the
// session; only identity fields are persisted.
func (b *Bot) sessionRepository(session *model.Session) *model.Repository {
	return &model.Repository{
		ID:       session.RepositoryID,
		Platform: session.Ref.Platform,
		Owner:    session.Ref.Owner,
		Name:     session.Ref.Name,
		FullName: session.FullName,
		URL:      session.RepositoryURL,
	}
}

// ensureLive verifies the session's registry entry still exists. A missing
// entry means the preview outlived its debug metadata (eviction or an
// undurable restart path) and the session is expired, not an error.
func (b *Bot) ensureLive(ctx context.Context, session *model.Session, cb *tgbotapi.CallbackQuery) bool {
	if _, ok := b.registry.Get(session.SubmissionID); ok {
		return true
	}
	b.answerAlert(cb.ID, "This preview expired. Please run /post again.")
	b.expireSession(ctx, session)
	return false
}

func (b *Bot) cancelSession(ctx context.Context, session *model.Session, text string) {
	b.deleteAll(session.CleanupTargets())
	b.registry.Discard(session.SubmissionID)
	if err := b.store.DeleteSession(ctx, session.ChatID, session.UserID); err != nil {
		b.log.Error("delete session", "chat_id", session.ChatID, "error", err)
	}
	b.reply(session.ChatID, text)
}

func (b *Bot) expireSession(ctx context.Context, session *model.Session) {
	b.cancelSession(ctx, session, "This submission expired. Please run /post again.")
}

// finishWithMessage ends the submission, keeping one message as the final
// explanation and deleting every other ephemeral message.
func (b *Bot) finishWithMessage(ctx context.Context, session *model.Session, keepChatID int64, keepMessageID int, text string) {
	b.editMessage(keepChatID, keepMessageID, text)
	for _, ref := range session.CleanupTargets() {
		if ref.ChatID == keepChatID && ref.MessageID == keepMessageID {
			continue
		}
		b.deleteMessage(ref.ChatID, ref.MessageID)
	}
	b.registry.Discard(session.SubmissionID)
	if err := b.store.DeleteSession(ctx, session.ChatID, session.UserID); err != nil {
		b.log.Error("delete session", "chat_id", session.ChatID, "error", err)
	}
}
