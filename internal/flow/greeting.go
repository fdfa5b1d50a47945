package flow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aide-bot/aide/internal/models"
)

const greetingText = `Привет! Я Aide - бот-помощник на основе когнитивно-поведенческой терапии. 👋

Я помогу тебе разобраться с тем, что беспокоит: вместе поставим цель, подберём упражнения и будем отслеживать прогресс.`

const disclaimerText = `⚠️ Важно: я не заменяю психолога или врача. Если тебе очень тяжело, пожалуйста, обратись к специалисту. В экстренной ситуации звони 112.`

// StartGreeting begins (or restarts) onboarding. A repeated /start resets
// the greeting state but keeps an existing profile.
func (f *Flows) StartGreeting(ctx context.Context, sess *Session) {
	slog.Debug("Greeting started", "userID", sess.Profile.UserID)
	sess.Greeting = GreetingState{Step: GreetingAwaitingForm}
	sess.Activate(KindGreeting)

	f.send(ctx, sess, greetingText, nil)
	f.send(ctx, sess, disclaimerText, nil)
	f.send(ctx, sess, "Как мне к тебе обращаться?", models.Keyboard{
		models.Row(
			models.Button{Label: "На «ты»", Data: models.Cmd(models.CmdFormAddress, "informal")},
			models.Button{Label: "На «Вы»", Data: models.Cmd(models.CmdFormAddress, "formal")},
		),
	})
}

// HandleFormAddress stores the chosen register and asks for a name.
func (f *Flows) HandleFormAddress(ctx context.Context, sess *Session, choice string) {
	if sess.Greeting.Step != GreetingAwaitingForm {
		return
	}
	if choice == string(models.AddressFormal) {
		sess.Profile.FormOfAddress = models.AddressFormal
	} else {
		sess.Profile.FormOfAddress = models.AddressInformal
	}
	sess.Greeting.Step = GreetingAwaitingName
	f.send(ctx, sess, "Как тебя зовут? Напиши имя, которое тебе приятно слышать.", nil)
}

// HandleGreetingText consumes the name answer. Names skip the safety gate
// and the substance validation.
func (f *Flows) HandleGreetingText(ctx context.Context, sess *Session, text string) {
	if sess.Greeting.Step != GreetingAwaitingName {
		return
	}
	sess.Profile.Name = text
	sess.Greeting.Step = GreetingAwaitingReady
	f.sessions.SaveProfile(ctx, sess)
	f.appendRow(ctx, sess, models.SheetMessages, map[string]string{"type": "name", "text": text})

	f.send(ctx, sess, fmt.Sprintf("Приятно познакомиться, %s! 😊\n\nГотов(а) начать?", text), models.Keyboard{
		models.Row(models.Button{Label: "🚀 Начать", Data: models.CmdReadyToStart}),
	})
}

// HandleReadyToStart finishes onboarding and enters goal setting.
func (f *Flows) HandleReadyToStart(ctx context.Context, sess *Session) {
	if sess.Greeting.Step != GreetingAwaitingReady {
		return
	}
	sess.Greeting = GreetingState{}
	f.StartGoal(ctx, sess, false, false, false)
}
