package flow

import (
	"context"
	"fmt"

	"github.com/aide-bot/aide/internal/models"
	"github.com/aide-bot/aide/internal/safety"
)

// ShowMenu resets the active flow and presents the main menu.
func (f *Flows) ShowMenu(ctx context.Context, sess *Session) {
	sess.Deactivate()
	text := fmt.Sprintf("%s, что хочешь сделать?", userName(sess))
	kb := models.Keyboard{
		models.Row(models.Button{Label: "🧩 Упражнения", Data: models.Cmd(models.CmdMenu, "exercises")}),
		models.Row(models.Button{Label: "🧘 Практики осознанности", Data: models.Cmd(models.CmdMenu, "practice")}),
		models.Row(models.Button{Label: "📖 Дневник", Data: models.Cmd(models.CmdMenu, "diary")}),
		models.Row(models.Button{Label: "📅 Чек-ин недели", Data: models.Cmd(models.CmdMenu, "checkin")}),
		models.Row(models.Button{Label: "📊 Мой прогресс", Data: models.Cmd(models.CmdMenu, "progress")}),
		models.Row(models.Button{Label: "🔄 Сменить программу", Data: models.Cmd(models.CmdMenu, "switch_protocol")}),
		models.Row(models.Button{Label: "🆘 Помощь", Data: models.Cmd(models.CmdMenu, "help")}),
	}
	f.send(ctx, sess, text, kb)
}

// HandleMenuAction dispatches a menu button press.
func (f *Flows) HandleMenuAction(ctx context.Context, sess *Session, action string) {
	switch action {
	case "", "show":
		f.ShowMenu(ctx, sess)
	case "exercises":
		f.ShowRecommendations(ctx, sess)
	case "practice":
		f.ShowPractices(ctx, sess)
	case "diary":
		f.StartDiary(ctx, sess)
	case "checkin":
		f.StartCheckin(ctx, sess)
	case "progress":
		f.ShowProgress(ctx, sess)
	case "switch_protocol":
		f.ShowProtocolSelection(ctx, sess)
	case "help":
		f.send(ctx, sess, safety.HelpText, models.Keyboard{menuButton()})
	default:
		f.ShowMenu(ctx, sess)
	}
}
