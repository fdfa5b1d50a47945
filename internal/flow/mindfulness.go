package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aide-bot/aide/internal/models"
)

// Practice is one fixed mindfulness practice.
type Practice struct {
	ID          string
	Name        string
	Emoji       string
	Description string
}

// Practices is the fixed mindfulness catalog, in display order.
var Practices = []Practice{
	{ID: "breathing_space", Name: "Дыхательная пауза", Emoji: "🌬",
		Description: "Три минуты: отметь, что происходит в теле и мыслях, собери внимание на дыхании, затем расширь его на всё тело."},
	{ID: "body_scan", Name: "Сканирование тела", Emoji: "🧘",
		Description: "Медленно пройди вниманием по телу от макушки до стоп, замечая ощущения без оценки."},
	{ID: "mindful_breathing", Name: "Осознанное дыхание", Emoji: "🫁",
		Description: "Несколько минут наблюдай за дыханием. Когда внимание уходит, мягко возвращай его к вдоху и выдоху."},
	{ID: "mindful_walking", Name: "Осознанная ходьба", Emoji: "🚶",
		Description: "Иди медленно и замечай каждое движение: перенос веса, касание стопы, ритм шагов."},
	{ID: "decentering", Name: "Децентрирование", Emoji: "☁️",
		Description: "Понаблюдай за мыслями как за облаками на небе: они приходят и уходят, а ты остаёшься наблюдателем."},
	{ID: "turning_toward", Name: "Поворот к трудному", Emoji: "🌊",
		Description: "Вместо избегания мягко направь внимание к неприятному ощущению. Дыши рядом с ним, давая ему место."},
}

// practiceFinalQuestions are the reflection questions after a practice.
var practiceFinalQuestions = []string{
	"Что ты заметил(а) во время практики?",
	"Что было полезно?",
	"Что вызвало сложности?",
}

// practiceFinalFields are the record fields the answers patch into.
var practiceFinalFields = []string{"noticed", "helpful", "difficulty"}

// PracticeByID looks up a practice.
func PracticeByID(id string) (Practice, bool) {
	for _, p := range Practices {
		if p.ID == id {
			return p, true
		}
	}
	return Practice{}, false
}

// ShowPractices renders the mindfulness practice cards.
func (f *Flows) ShowPractices(ctx context.Context, sess *Session) {
	sess.Practice = PracticeState{Step: MvstSelecting}
	sess.Activate(KindMindfulness)
	var kb models.Keyboard
	for _, p := range Practices {
		label := fmt.Sprintf("%s %s", p.Emoji, p.Name)
		if containsString(sess.Profile.CompletedPractices, p.ID) {
			label = "✅ " + label
		}
		kb = append(kb, models.Row(models.Button{Label: label, Data: models.Cmd(models.CmdMvstSelect, p.ID)}))
	}
	kb = append(kb, menuButton())
	f.send(ctx, sess, "🧘 Практики осознанности. Выбери, что попробуем:", kb)
}

// HandleMvstSelect shows the chosen practice before starting.
func (f *Flows) HandleMvstSelect(ctx context.Context, sess *Session, id string) {
	st := &sess.Practice
	if st.Step != MvstSelecting {
		return
	}
	p, ok := PracticeByID(id)
	if !ok {
		slog.Warn("Mindfulness: unknown practice id", "id", id)
		return
	}
	st.Selected = p.ID
	f.send(ctx, sess, fmt.Sprintf("%s <b>%s</b>\n\n%s", p.Emoji, p.Name, p.Description), models.Keyboard{
		models.Row(models.Button{Label: "▶️ Начать практику", Data: models.CmdMvstStart}),
		models.Row(models.Button{Label: "🔄 Другая практика", Data: models.Cmd(models.CmdMenu, "practice")}),
	})
}

// HandleMvstStart begins the practice input stage.
func (f *Flows) HandleMvstStart(ctx context.Context, sess *Session) {
	st := &sess.Practice
	if st.Selected == "" {
		return
	}
	st.Step = MvstAwaitingPractice
	st.Pending = ""
	f.send(ctx, sess, "Выполни практику в своём темпе. Когда закончишь, напиши пару слов о том, как прошло (можно просто «готово»).", nil)
}

// HandleMvstText consumes practice free text. Practice input is lenient:
// anything is accepted, even a single word.
func (f *Flows) HandleMvstText(ctx context.Context, sess *Session, text string) {
	st := &sess.Practice
	switch st.Step {
	case MvstAwaitingPractice:
		if f.capture(ctx, sess, text, captureSpec{
			Context: "mvst",
			Lenient: true,
			Preview: "<i>%s</i>\n\nГотов(а) продолжить?",
			Confirm: models.Cmd(models.CmdMvstInputConfirm, "yes"),
			Edit:    models.Cmd(models.CmdMvstInputConfirm, "edit"),
		}) {
			st.Pending = text
		}
	case MvstAwaitingFinal:
		if f.capture(ctx, sess, text, captureSpec{
			Context: "mvst",
			Preview: "<i>%s</i>\n\nСохранить ответ?",
			Confirm: models.Cmd(models.CmdMvstAnswerConfirm, "yes"),
			Edit:    models.Cmd(models.CmdMvstAnswerConfirm, "edit"),
		}) {
			st.Pending = text
		}
	}
}

// HandleMvstInputConfirm resolves the practice input preview.
func (f *Flows) HandleMvstInputConfirm(ctx context.Context, sess *Session, action string) {
	st := &sess.Practice
	if st.Step != MvstAwaitingPractice {
		return
	}
	switch action {
	case "yes":
		p, _ := PracticeByID(st.Selected)
		f.appendRow(ctx, sess, models.SheetPractices, map[string]string{
			"practice": p.Name,
			"input":    st.Pending,
		})
		st.Pending = ""
		st.Step = MvstAwaitingFinal
		st.FinalIdx = 0
		st.FinalAnswers = nil
		f.send(ctx, sess, practiceFinalQuestions[0], nil)
	case "edit":
		st.Pending = ""
		f.send(ctx, sess, "Хорошо, напиши ещё раз.", nil)
	}
}

// HandleMvstAnswerConfirm resolves a reflection answer preview.
func (f *Flows) HandleMvstAnswerConfirm(ctx context.Context, sess *Session, action string) {
	st := &sess.Practice
	if st.Step != MvstAwaitingFinal {
		return
	}
	switch action {
	case "yes":
		if st.Pending == "" {
			return
		}
		st.FinalAnswers = append(st.FinalAnswers, st.Pending)
		st.Pending = ""
		st.FinalIdx++
		if st.FinalIdx >= len(practiceFinalQuestions) {
			f.send(ctx, sess, "Спасибо! 🙏", models.Keyboard{
				models.Row(models.Button{Label: "✅ Завершить практику", Data: models.CmdMvstMarkComplete}),
			})
			return
		}
		f.send(ctx, sess, practiceFinalQuestions[st.FinalIdx], nil)
	case "edit":
		st.Pending = ""
		f.send(ctx, sess, practiceFinalQuestions[st.FinalIdx], nil)
	}
}

// HandleMvstMarkComplete patches the answers into the latest practice row
// and shows remaining practices or a congratulation.
func (f *Flows) HandleMvstMarkComplete(ctx context.Context, sess *Session) {
	st := &sess.Practice
	if st.Step != MvstAwaitingFinal || len(st.FinalAnswers) < len(practiceFinalQuestions) {
		return
	}
	p, _ := PracticeByID(st.Selected)

	patch := make(map[string]string, len(practiceFinalFields))
	for i, field := range practiceFinalFields {
		patch[field] = st.FinalAnswers[i]
	}
	match := func(r models.Record) bool { return r.Fields["practice"] == p.Name }
	if err := f.store.PatchLatestRow(ctx, models.SheetPractices, sess.Profile.UserID, match, patch); err != nil {
		slog.Error("Practice completion patch failed", "error", err, "practice", p.Name, "userID", sess.Profile.UserID)
	}

	joined := strings.Join(st.FinalAnswers, "\n")
	if verdict, err := f.gate.Check(ctx, joined, "mvst"); err == nil && verdict.Crisis {
		f.gate.ShowSupport(ctx, f.msg, &sess.Profile, verdict, "mvst", joined, false)
	}

	if !containsString(sess.Profile.CompletedPractices, p.ID) {
		sess.Profile.CompletedPractices = append(sess.Profile.CompletedPractices, p.ID)
		f.sessions.SaveProfile(ctx, sess)
	}
	slog.Info("Practice completed", "practice", p.Name, "userID", sess.Profile.UserID)

	sess.Practice = PracticeState{}
	if len(sess.Profile.CompletedPractices) >= len(Practices) {
		sess.Deactivate()
		f.send(ctx, sess, "Поздравляю! 🎉 Ты попробовал(а) все практики осознанности.", models.Keyboard{menuButton()})
		return
	}
	f.ShowPractices(ctx, sess)
}
