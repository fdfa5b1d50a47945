package safety

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aide-bot/aide/internal/messaging"
	"github.com/aide-bot/aide/internal/models"
)

// HelpText lists emergency resources. It is shown on every crisis support
// message and behind the hotlines button.
const HelpText = `🆘 <b>Экстренная помощь:</b>

<b>Горячие линии (круглосуточно, бесплатно):</b>
• 8-800-2000-122 - Детский телефон доверия
• 8-800-100-0191 - Кризисная линия доверия
• 051 - Телефон доверия (с городского)

<b>Онлайн-поддержка:</b>
• tvoyteritoriya.online - чат с психологом
• www.ya-roditel.ru - помощь родителям

<b>Экстренная помощь:</b>
• 112 - Единая служба экстренной помощи
• 103 - Скорая медицинская помощь

Помни: кризис временный, помощь доступна! 💙`

// introMessages picks an empathetic opening per crisis type. The %s slot
// takes the user's name.
var introMessages = map[string]string{
	TypeSuicidal:     "%s, я очень беспокоюсь за тебя. Эти мысли - сигнал о сильной боли.",
	TypeSelfHarm:     "%s, я вижу, что тебе очень тяжело. Боль, которую ты чувствуешь, реальна.",
	TypePsychosis:    "%s, то, что ты описываешь, требует профессиональной поддержки.",
	TypeDissociation: "%s, ощущение отключения от реальности может быть очень пугающим.",
	TypeAddiction:    "%s, борьба с зависимостью требует профессиональной помощи.",
	TypeMania:        "%s, важно стабилизировать твоё состояние с помощью специалиста.",
	TypeGeneric:      "%s, я чувствую, что тебе сейчас очень трудно.",
}

// SupportMessage renders the crisis support text and keyboard for a
// detected crisis. When continueAfter is true the user gets a button to
// resume the interrupted flow.
func SupportMessage(name, crisisType, checkContext string, continueAfter bool) (string, models.Keyboard) {
	if name == "" {
		name = "Дорогой друг"
	}
	intro, ok := introMessages[crisisType]
	if !ok {
		intro = "%s, я переживаю за тебя."
	}
	text := fmt.Sprintf(intro, name) +
		"\n\nСейчас самое важное - получить поддержку. Ты не один/одна в этом.\n\n" + HelpText

	kb := models.Keyboard{
		models.Row(models.Button{Label: "🆘 Горячие линии", Data: models.Cmd(models.CmdSafety, "hotlines")}),
	}
	if continueAfter {
		kb = append(kb, models.Row(models.Button{
			Label: "➡️ Продолжить позже",
			Data:  models.Cmd(models.CmdSafety, "continue_"+checkContext),
		}))
	}
	kb = append(kb, models.Row(models.Button{Label: "📱 Главное меню", Data: models.Cmd(models.CmdMenu, "show")}))
	return text, kb
}

// ShowSupport sends the crisis support message and logs the crisis event.
func (g *Gate) ShowSupport(ctx context.Context, msgr messaging.Service, profile *models.Profile, verdict models.Verdict, checkContext, text string, continueAfter bool) {
	body, kb := SupportMessage(profile.Name, verdict.Type, checkContext, continueAfter)
	if _, err := msgr.SendMessage(ctx, profile.ChatID, body, kb); err != nil {
		slog.Error("SafetyGate failed to send crisis support", "error", err, "userID", profile.UserID)
	}
	if err := g.LogCrisis(ctx, profile.UserID, profile.Username, verdict.Type, checkContext, text); err != nil {
		slog.Error("SafetyGate failed to log crisis", "error", err, "userID", profile.UserID)
	}
}
