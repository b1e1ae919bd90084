package bot

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"curator_bot/internal/model"
)

// Callback actions. Payloads are "post:<action>:<submission_id>" with an
// optional ":<field>" tail, and must stay within Telegram's 64-byte
// callback data budget.
const (
	actionConfirm    = "confirm"
	actionCancel     = "cancel"
	actionPublish    = "publish"
	actionEditMenu   = "edit"
	actionEditField  = "field"
	actionRevise     = "revise"
	actionRegenerate = "regen"
	actionBack       = "back"
)

const callbackPrefix = "post"

// callbackData is the decoded form of an inline button payload.
type callbackData struct {
	Action       string
	SubmissionID string
	Field        model.EditField
}

func encodeCallback(action, submissionID string) string {
	return fmt.Sprintf("%s:%s:%s", callbackPrefix, action, submissionID)
}

func encodeFieldCallback(submissionID string, field model.EditField) string {
	return fmt.Sprintf("%s:%s:%s:%s", callbackPrefix, actionEditField, submissionID, field)
}

func parseCallback(data string) (callbackData, error) {
	parts := strings.Split(data, ":")
	if len(parts) < 3 || parts[0] != callbackPrefix {
		return callbackData{}, fmt.Errorf("malformed callback payload %q", data)
	}

	cb := callbackData{Action: parts[1], SubmissionID: parts[2]}
	if cb.Action == actionEditField {
		if len(parts) != 4 {
			return callbackData{}, fmt.Errorf("field callback missing field: %q", data)
		}
		field, err := model.ParseEditField(parts[3])
		if err != nil {
			return callbackData{}, err
		}
		cb.Field = field
	}
	return cb, nil
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil {
		return
	}
	chatID := cb.Message.Chat.ID

	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		b.log.Debug("ack callback", "error", err)
	}

	data, err := parseCallback(cb.Data)
	if err != nil {
		b.log.Debug("callback", "data", cb.Data, "error", err)
		return
	}

	b.log.Info("callback",
		"action", data.Action,
		"submission_id", data.SubmissionID,
		"chat_id", chatID,
		"user_id", cb.From.ID,
	)

	session, err := b.store.LoadSession(ctx, chatID, cb.From.ID)
	if err != nil {
		b.log.Error("load session", "chat_id", chatID, "error", err)
		return
	}
	if session == nil || session.SubmissionID != data.SubmissionID {
		b.answerAlert(cb.ID, "This preview expired. Please run /post again.")
		return
	}

	switch data.Action {
	case actionConfirm:
		if session.State != model.StateWaitingConfirmation {
			return
		}
		b.runSubmission(ctx, session)
	case actionCancel:
		b.cancelSession(ctx, session, "Submission cancelled.")
	case actionPublish:
		b.handlePublish(ctx, session, cb)
	case actionEditMenu:
		b.handleEditMenu(ctx, session, cb)
	case actionEditField:
		b.handleEditField(ctx, session, cb, data.Field)
	case actionRevise:
		b.handleRevisePrompt(ctx, session, cb)
	case actionRegenerate:
		b.handleRegenerate(ctx, session, cb)
	case actionBack:
		b.handleBackToPreview(ctx, session, cb)
	}
}

func (b *Bot) answerAlert(callbackID, text string) {
	alert := tgbotapi.NewCallbackWithAlert(callbackID, text)
	if _, err := b.api.Request(alert); err != nil {
		b.log.Debug("answer callback", "error", err)
	}
}

func confirmKeyboard(submissionID string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Confirm", encodeCallback(actionConfirm, submissionID)),
			tgbotapi.NewInlineKeyboardButtonData("Cancel", encodeCallback(actionCancel, submissionID)),
		),
	)
}

func previewKeyboard(submissionID string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Publish", encodeCallback(actionPublish, submissionID)),
			tgbotapi.NewInlineKeyboardButtonData("Edit", encodeCallback(actionEditMenu, submissionID)),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Regenerate", encodeCallback(actionRegenerate, submissionID)),
			tgbotapi.NewInlineKeyboardButtonData("Cancel", encodeCallback(actionCancel, submissionID)),
		),
	)
}

func editMenuKeyboard(submissionID string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Description", encodeFieldCallback(submissionID, model.FieldDescription)),
			tgbotapi.NewInlineKeyboardButtonData("Features", encodeFieldCallback(submissionID, model.FieldFeatures)),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Tags", encodeFieldCallback(submissionID, model.FieldTags)),
			tgbotapi.NewInlineKeyboardButtonData("Links", encodeFieldCallback(submissionID, model.FieldLinks)),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("AI revise", encodeCallback(actionRevise, submissionID)),
			tgbotapi.NewInlineKeyboardButtonData("Back", encodeCallback(actionBack, submissionID)),
		),
	)
}
