package flow

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/aide-bot/aide/internal/models"
)

// stepLineRe matches numbered instruction lines ("1. Запиши ситуацию").
var stepLineRe = regexp.MustCompile(`^(\d+)\.\s+(.+)`)

// exerciseFinalQuestions are asked after the exercise body, in order.
var exerciseFinalQuestions = []string{
	"Какой инсайт ты получил?",
	"Что было полезно?",
	"Что вызвало трудность?",
}

// exerciseFinalFields are the record fields the answers patch into.
var exerciseFinalFields = []string{"insight", "helpful", "difficulty"}

// ParseSteps extracts numbered steps from an exercise description. Only
// lines starting with "N. " count; everything else is narrative.
func ParseSteps(text string) []string {
	var steps []string
	for _, line := range strings.Split(text, "\n") {
		if m := stepLineRe.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			steps = append(steps, m[2])
		}
	}
	return steps
}

// ShowRecommendations renders exercise cards for the first selected
// problem that has catalog exercises.
func (f *Flows) ShowRecommendations(ctx context.Context, sess *Session) {
	problems := sess.Goal.Problems
	if len(problems) == 0 {
		problems = sess.Profile.Problems
	}

	var problem string
	var exercises []string
	for _, id := range problems {
		if !models.IsCatalogProblem(id) {
			continue
		}
		if found := f.catalog.ExercisesForProblem(models.ProblemDisplay(id)); len(found) > 0 {
			problem = id
			exercises = found
			break
		}
	}
	if len(exercises) == 0 {
		exercises = f.catalog.ExercisesForGoal(sess.Profile.Goal)
	}
	if len(exercises) == 0 {
		sess.Deactivate()
		f.send(ctx, sess, "Пока у меня нет упражнений под выбранные проблемы. Загляни в меню - там есть дневник и практики осознанности.", models.Keyboard{menuButton()})
		return
	}

	sess.Exercise = ExerciseState{
		Step:        ExSelecting,
		Problem:     problem,
		Recommended: exercises,
	}
	sess.Activate(KindExercise)

	var b strings.Builder
	if problem != "" {
		fmt.Fprintf(&b, "Для работы с «%s» я рекомендую эти упражнения:\n\n", models.ProblemDisplay(problem))
	} else {
		b.WriteString("Под твою цель я рекомендую эти упражнения:\n\n")
	}
	var kb models.Keyboard
	for i, name := range exercises {
		fmt.Fprintf(&b, "%d. <b>%s</b>\n", i+1, name)
		if goal, ok := f.catalog.ExerciseGoal(name); ok {
			fmt.Fprintf(&b, "   %s\n", goal)
		}
		label := name
		if containsString(sess.Profile.CompletedExercises, name) {
			label = "✅ " + label
		}
		kb = append(kb, models.Row(models.Button{Label: label, Data: models.Cmd(models.CmdExSelect, strconv.Itoa(i))}))
	}
	b.WriteString("\nВыбери упражнение, с которого начнём.")
	kb = append(kb, menuButton())
	f.send(ctx, sess, b.String(), kb)
}

// HandleExSelect shows the chosen exercise before starting it.
func (f *Flows) HandleExSelect(ctx context.Context, sess *Session, idx int) {
	st := &sess.Exercise
	if st.Step != ExSelecting || idx < 0 || idx >= len(st.Recommended) {
		return
	}
	st.Selected = st.Recommended[idx]
	desc, ok := f.catalog.ExerciseDescription(st.Selected)
	if !ok {
		slog.Warn("Exercise description not found", "exercise", st.Selected)
		f.send(ctx, sess, "Не нашла описание этого упражнения. Попробуй выбрать другое.", models.Keyboard{menuButton()})
		return
	}
	f.send(ctx, sess, fmt.Sprintf("<b>%s</b>\n\n%s", st.Selected, desc), models.Keyboard{
		models.Row(models.Button{Label: "▶️ Начать", Data: models.CmdExStartExec}),
		models.Row(models.Button{Label: "🔄 Выбрать другое", Data: models.CmdExChangeSelect}),
	})
}

// StartNamedExercise runs a specific exercise, used by the protocol walk.
func (f *Flows) StartNamedExercise(ctx context.Context, sess *Session, name, protocolID string, protocolIdx int) {
	sess.Exercise = ExerciseState{
		Step:        ExSelecting,
		Recommended: []string{name},
		Selected:    name,
		ProtocolID:  protocolID,
		ProtocolIdx: protocolIdx,
	}
	sess.Activate(KindExercise)
	desc, ok := f.catalog.ExerciseDescription(name)
	if !ok {
		slog.Warn("Exercise description not found", "exercise", name)
		f.send(ctx, sess, fmt.Sprintf("Не нашла описание упражнения «%s».", name), models.Keyboard{menuButton()})
		return
	}
	f.send(ctx, sess, fmt.Sprintf("<b>%s</b>\n\n%s", name, desc), models.Keyboard{
		models.Row(models.Button{Label: "▶️ Начать", Data: models.CmdExStartExec}),
	})
}

// HandleExChangeSelect returns to the recommendation list.
func (f *Flows) HandleExChangeSelect(ctx context.Context, sess *Session) {
	sess.Exercise.Selected = ""
	f.ShowRecommendations(ctx, sess)
}

// HandleExStartExec begins execution: per-step capture when the
// description has numbered steps, whole-text capture otherwise.
func (f *Flows) HandleExStartExec(ctx context.Context, sess *Session) {
	st := &sess.Exercise
	if st.Selected == "" {
		return
	}
	desc, _ := f.catalog.ExerciseDescription(st.Selected)
	st.Steps = ParseSteps(desc)
	st.StepIdx = 0
	st.StepResults = nil
	st.Pending = ""
	st.FinalIdx = 0
	st.FinalAnswers = nil

	if len(st.Steps) == 0 {
		st.Step = ExAwaitingText
		f.send(ctx, sess, "Выполни упражнение и опиши, что получилось.", nil)
		return
	}
	st.Step = ExAwaitingStepInput
	f.askExerciseStep(ctx, sess)
}

// askExerciseStep prompts the current numbered step.
func (f *Flows) askExerciseStep(ctx context.Context, sess *Session) {
	st := &sess.Exercise
	f.send(ctx, sess, fmt.Sprintf("Шаг %d из %d:\n\n%s", st.StepIdx+1, len(st.Steps), st.Steps[st.StepIdx]), nil)
}

// HandleExerciseText consumes free text for the current exercise stage.
func (f *Flows) HandleExerciseText(ctx context.Context, sess *Session, text string) {
	st := &sess.Exercise
	switch st.Step {
	case ExAwaitingText:
		if f.capture(ctx, sess, text, captureSpec{
			Context:       "exercise",
			ContinueAfter: true,
			Preview:       "Твоя запись:\n\n<i>%s</i>\n\nСохранить?",
			Confirm:       models.Cmd(models.CmdExTextConfirm, "yes"),
			Edit:          models.Cmd(models.CmdExTextConfirm, "edit"),
			Back:          models.Cmd(models.CmdExTextConfirm, "back"),
		}) {
			st.Pending = text
		}
	case ExAwaitingStepInput:
		if st.StepIdx >= len(st.Steps) {
			return
		}
		if f.capture(ctx, sess, text, captureSpec{
			Context:       "exercise",
			ContinueAfter: true,
			Preview:       fmt.Sprintf("Шаг %d:\n\n<i>%%s</i>\n\nСохранить ответ?", st.StepIdx+1),
			Confirm:       models.Cmd(models.CmdExStepConfirm, "yes"),
			Edit:          models.Cmd(models.CmdExStepConfirm, "edit"),
			Back:          models.Cmd(models.CmdExStepConfirm, "back"),
		}) {
			st.Pending = text
		}
	case ExAwaitingFinal:
		if f.capture(ctx, sess, text, captureSpec{
			Context:       "exercise",
			ContinueAfter: true,
			Preview:       "<i>%s</i>\n\nСохранить ответ?",
			Confirm:       models.Cmd(models.CmdExAnswerConfirm, "yes"),
			Edit:          models.Cmd(models.CmdExAnswerConfirm, "edit"),
		}) {
			st.Pending = text
		}
	}
}

// HandleExTextConfirm resolves the whole-text preview.
func (f *Flows) HandleExTextConfirm(ctx context.Context, sess *Session, action string) {
	st := &sess.Exercise
	if st.Step != ExAwaitingText {
		return
	}
	switch action {
	case "yes":
		if st.Pending == "" {
			return
		}
		f.appendRow(ctx, sess, models.SheetExercises, map[string]string{
			"exercise": st.Selected,
			"text":     st.Pending,
		})
		st.Pending = ""
		f.beginFinalQuestions(ctx, sess)
	case "edit":
		st.Pending = ""
		f.send(ctx, sess, "Хорошо, опиши ещё раз.", nil)
	case "back":
		st.Pending = ""
		st.Selected = ""
		f.ShowRecommendations(ctx, sess)
	}
}

// HandleExStepConfirm resolves a per-step preview. Backing out of the
// first step drops the exercise and returns to selection.
func (f *Flows) HandleExStepConfirm(ctx context.Context, sess *Session, action string) {
	st := &sess.Exercise
	if st.Step != ExAwaitingStepInput {
		return
	}
	switch action {
	case "yes":
		if st.Pending == "" {
			return
		}
		f.appendRow(ctx, sess, models.SheetExercises, map[string]string{
			"exercise":                           st.Selected,
			fmt.Sprintf("step_%d", st.StepIdx+1): st.Pending,
		})
		st.StepResults = append(st.StepResults, st.Pending)
		st.Pending = ""
		st.StepIdx++
		if st.StepIdx >= len(st.Steps) {
			f.finishExerciseSteps(ctx, sess)
			return
		}
		f.askExerciseStep(ctx, sess)
	case "edit":
		st.Pending = ""
		f.askExerciseStep(ctx, sess)
	case "back":
		st.Pending = ""
		if st.StepIdx == 0 {
			st.Selected = ""
			f.ShowRecommendations(ctx, sess)
			return
		}
		st.StepIdx--
		if len(st.StepResults) > st.StepIdx {
			st.StepResults = st.StepResults[:st.StepIdx]
		}
		f.askExerciseStep(ctx, sess)
	}
}

// finishExerciseSteps runs the aggregate safety check over all step
// answers before moving to the final questions.
func (f *Flows) finishExerciseSteps(ctx context.Context, sess *Session) {
	st := &sess.Exercise
	joined := strings.Join(st.StepResults, "\n")
	verdict, err := f.gate.Check(ctx, joined, "exercise")
	if err == nil && verdict.Crisis {
		f.gate.ShowSupport(ctx, f.msg, &sess.Profile, verdict, "exercise", joined, true)
		return
	}
	f.beginFinalQuestions(ctx, sess)
}

// beginFinalQuestions starts the reflection questions.
func (f *Flows) beginFinalQuestions(ctx context.Context, sess *Session) {
	st := &sess.Exercise
	st.Step = ExAwaitingFinal
	st.FinalIdx = 0
	st.FinalAnswers = nil
	f.askFinalQuestion(ctx, sess)
}

func (f *Flows) askFinalQuestion(ctx context.Context, sess *Session) {
	st := &sess.Exercise
	f.send(ctx, sess, exerciseFinalQuestions[st.FinalIdx], nil)
}

// HandleExAnswerConfirm resolves a final question preview. There is no
// back navigation between final questions.
func (f *Flows) HandleExAnswerConfirm(ctx context.Context, sess *Session, action string) {
	st := &sess.Exercise
	if st.Step != ExAwaitingFinal {
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
		if st.FinalIdx >= len(exerciseFinalQuestions) {
			f.send(ctx, sess, "Спасибо за честные ответы! 🙏", models.Keyboard{
				models.Row(models.Button{Label: "✅ Завершить упражнение", Data: models.CmdExMarkComplete}),
			})
			return
		}
		f.askFinalQuestion(ctx, sess)
	case "edit":
		st.Pending = ""
		f.askFinalQuestion(ctx, sess)
	}
}

// HandleExMarkComplete patches the reflection answers into the latest
// exercise row, runs the aggregate safety check over them, and shows what
// is left.
func (f *Flows) HandleExMarkComplete(ctx context.Context, sess *Session) {
	st := &sess.Exercise
	if st.Step != ExAwaitingFinal || len(st.FinalAnswers) < len(exerciseFinalQuestions) {
		return
	}

	patch := make(map[string]string, len(exerciseFinalFields))
	for i, field := range exerciseFinalFields {
		patch[field] = st.FinalAnswers[i]
	}
	name := st.Selected
	match := func(r models.Record) bool { return r.Fields["exercise"] == name }
	if err := f.store.PatchLatestRow(ctx, models.SheetExercises, sess.Profile.UserID, match, patch); err != nil {
		slog.Error("Exercise completion patch failed", "error", err, "exercise", name, "userID", sess.Profile.UserID)
	}

	joined := strings.Join(st.FinalAnswers, "\n")
	if verdict, err := f.gate.Check(ctx, joined, "exercise"); err == nil && verdict.Crisis {
		f.gate.ShowSupport(ctx, f.msg, &sess.Profile, verdict, "exercise", joined, false)
	}

	if !containsString(sess.Profile.CompletedExercises, name) {
		sess.Profile.CompletedExercises = append(sess.Profile.CompletedExercises, name)
		f.sessions.SaveProfile(ctx, sess)
	}
	slog.Info("Exercise completed", "exercise", name, "userID", sess.Profile.UserID)

	if st.ProtocolID != "" {
		protocolID, idx := st.ProtocolID, st.ProtocolIdx
		sess.Exercise = ExerciseState{}
		f.advanceProtocol(ctx, sess, protocolID, idx+1)
		return
	}

	var remaining []string
	for _, e := range st.Recommended {
		if !containsString(sess.Profile.CompletedExercises, e) {
			remaining = append(remaining, e)
		}
	}
	if len(remaining) == 0 {
		sess.Exercise = ExerciseState{}
		sess.Deactivate()
		f.send(ctx, sess, "Поздравляю! 🎉 Ты выполнил(а) все упражнения по этой проблеме. Загляни в меню - там есть дневник и практики осознанности.", models.Keyboard{menuButton()})
		return
	}
	st.Step = ExSelecting
	st.Selected = ""
	f.send(ctx, sess, fmt.Sprintf("Упражнение «%s» завершено! Осталось ещё %d.", name, len(remaining)), nil)
	f.ShowRecommendations(ctx, sess)
}

// ResumeExercise re-prompts the stage the safety interception paused.
func (f *Flows) ResumeExercise(ctx context.Context, sess *Session) {
	st := &sess.Exercise
	sess.Activate(KindExercise)
	switch st.Step {
	case ExAwaitingText:
		f.send(ctx, sess, "Продолжим. Опиши, что получилось в упражнении.", nil)
	case ExAwaitingStepInput:
		if st.StepIdx >= len(st.Steps) {
			f.beginFinalQuestions(ctx, sess)
			return
		}
		f.askExerciseStep(ctx, sess)
	case ExAwaitingFinal:
		f.askFinalQuestion(ctx, sess)
	default:
		f.ShowRecommendations(ctx, sess)
	}
}
