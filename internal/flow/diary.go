package flow

import (
	"context"
	"log/slog"

	"github.com/aide-bot/aide/internal/models"
)

// StartDiary opens a feelings diary entry.
func (f *Flows) StartDiary(ctx context.Context, sess *Session) {
	slog.Debug("Diary flow started", "userID", sess.Profile.UserID)
	sess.Diary = DiaryState{Step: DiaryAwaitingText}
	sess.Activate(KindDiary)
	f.send(ctx, sess, "📖 Дневник чувств.\n\nНапиши, что ты сейчас чувствуешь и что к этому привело.", nil)
}

// HandleDiaryText captures the diary entry.
func (f *Flows) HandleDiaryText(ctx context.Context, sess *Session, text string) {
	st := &sess.Diary
	if st.Step != DiaryAwaitingText {
		return
	}
	if f.capture(ctx, sess, text, captureSpec{
		Context: "diary",
		Lenient: true,
		Preview: "Твоя запись:\n\n<i>%s</i>\n\nСохранить?",
		Confirm: models.Cmd(models.CmdDiary, "confirm"),
		Edit:    models.Cmd(models.CmdDiary, "edit"),
		Back:    models.Cmd(models.CmdDiary, "back"),
	}) {
		st.Pending = text
	}
}

// HandleDiaryAction resolves the diary preview.
func (f *Flows) HandleDiaryAction(ctx context.Context, sess *Session, action string) {
	st := &sess.Diary
	if st.Step != DiaryAwaitingText {
		return
	}
	switch action {
	case "confirm":
		if st.Pending == "" {
			return
		}
		f.appendRow(ctx, sess, models.SheetDiary, map[string]string{"text": st.Pending})
		sess.Diary = DiaryState{}
		sess.Deactivate()
		f.send(ctx, sess, "Запись сохранена. Спасибо, что поделился(ась). 💙", models.Keyboard{menuButton()})
	case "edit":
		st.Pending = ""
		f.send(ctx, sess, "Хорошо, напиши запись ещё раз.", nil)
	case "back":
		sess.Diary = DiaryState{}
		sess.Deactivate()
		f.ShowMenu(ctx, sess)
	}
}
