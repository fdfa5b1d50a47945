package messaging

import (
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/aide-bot/aide/internal/models"
)

func TestNormalizeUpdateCallback(t *testing.T) {
	raw := tgbotapi.Update{
		CallbackQuery: &tgbotapi.CallbackQuery{
			ID:   "cb1",
			Data: "rate:0:2",
			From: &tgbotapi.User{ID: 10, UserName: "tester"},
			Message: &tgbotapi.Message{
				MessageID: 77,
				Chat:      &tgbotapi.Chat{ID: 10},
			},
		},
	}
	upd, ok := normalizeUpdate(raw)
	if !ok {
		t.Fatal("expected callback update to normalize")
	}
	if upd.Callback == nil {
		t.Fatal("expected callback payload")
	}
	if upd.Callback.Command.Prefix != models.CmdRate {
		t.Errorf("expected decoded prefix %q, got %q", models.CmdRate, upd.Callback.Command.Prefix)
	}
	if upd.Callback.MessageID != 77 {
		t.Errorf("expected message id 77, got %d", upd.Callback.MessageID)
	}
}

func TestNormalizeUpdateTextAndCommand(t *testing.T) {
	text := tgbotapi.Update{
		Message: &tgbotapi.Message{
			MessageID: 1,
			From:      &tgbotapi.User{ID: 5, UserName: "u"},
			Chat:      &tgbotapi.Chat{ID: 5},
			Text:      "привет",
		},
	}
	upd, ok := normalizeUpdate(text)
	if !ok || upd.Text != "привет" || upd.IsCommand {
		t.Errorf("unexpected normalization of plain text: %+v ok=%v", upd, ok)
	}

	cmd := tgbotapi.Update{
		Message: &tgbotapi.Message{
			MessageID: 2,
			From:      &tgbotapi.User{ID: 5},
			Chat:      &tgbotapi.Chat{ID: 5},
			Text:      "/start",
			Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: 6}},
		},
	}
	upd, ok = normalizeUpdate(cmd)
	if !ok || !upd.IsCommand || upd.Text != "start" {
		t.Errorf("unexpected normalization of command: %+v ok=%v", upd, ok)
	}
}

func TestNormalizeUpdateIgnoresEmpty(t *testing.T) {
	if _, ok := normalizeUpdate(tgbotapi.Update{}); ok {
		t.Error("empty update must be ignored")
	}
}

func TestBuildMarkup(t *testing.T) {
	kb := models.Keyboard{
		models.Row(models.Button{Label: "Да", Data: "preview_confirm:yes"}),
		models.Row(models.Button{Label: "Меню", Data: "menu:show"}, models.Button{Label: "Помощь", Data: "menu:help"}),
	}
	markup := buildMarkup(kb)
	if len(markup.InlineKeyboard) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(markup.InlineKeyboard))
	}
	if len(markup.InlineKeyboard[1]) != 2 {
		t.Errorf("expected 2 buttons in second row, got %d", len(markup.InlineKeyboard[1]))
	}
	if *markup.InlineKeyboard[0][0].CallbackData != "preview_confirm:yes" {
		t.Errorf("unexpected callback data %q", *markup.InlineKeyboard[0][0].CallbackData)
	}
}
