package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/aide-bot/aide/internal/models"
)

// Rating bounds.
const (
	MaxProblemRating = 3
	MaxGoalRating    = 10
)

const goalPrompt = `Давай поставим цель работы. 🎯

Напиши одним-двумя предложениями: что ты хочешь изменить или чего достичь?`

// StartGoal enters goal setting. skipGoal jumps straight to problem
// selection with the existing goal; forceChangeGoal and
// forceChangeProblems restrict a re-entry to editing only that part.
func (f *Flows) StartGoal(ctx context.Context, sess *Session, skipGoal, forceChangeGoal, forceChangeProblems bool) {
	slog.Debug("Goal flow started", "userID", sess.Profile.UserID, "skipGoal", skipGoal, "changeGoal", forceChangeGoal, "changeProblems", forceChangeProblems)
	st := &sess.Goal
	st.Pending = ""
	st.Goal = sess.Profile.Goal
	if st.Ratings == nil {
		st.Ratings = make(map[string]int)
	}
	sess.Activate(KindGoal)

	switch {
	case forceChangeGoal:
		st.IsChanging = true
		st.ChangeType = "goal"
		st.Step = GoalStep1
		f.send(ctx, sess, goalPrompt, nil)
	case forceChangeProblems:
		st.IsChanging = true
		st.ChangeType = "problems"
		st.Problems = nil
		st.Ratings = make(map[string]int)
		st.Step = GoalStep2
		f.showProblemSelection(ctx, sess, nil)
	case st.Goal != "" || skipGoal:
		st.Step = GoalStep2
		f.showProblemSelection(ctx, sess, nil)
	default:
		st.IsChanging = false
		st.ChangeType = ""
		st.Step = GoalStep1
		f.send(ctx, sess, goalPrompt, nil)
	}
}

// HandleGoalText consumes the free-text goal at step 1.
func (f *Flows) HandleGoalText(ctx context.Context, sess *Session, text string) {
	st := &sess.Goal
	if st.Step != GoalStep1 {
		return
	}
	ok := f.capture(ctx, sess, text, captureSpec{
		Context:       "goal_setting",
		ContinueAfter: true,
		Preview:       "Твоя цель:\n\n<i>%s</i>\n\nВсё верно?",
		Confirm:       models.CmdGoalConfirm,
		Edit:          models.CmdGoalEdit,
		Back:          models.Cmd(models.CmdGoalBack, "step1"),
	})
	if ok {
		st.Pending = text
	}
}

// HandleGoalConfirm accepts the pending goal text. When the re-entry was
// goal-only, the change is saved and the flow ends here.
func (f *Flows) HandleGoalConfirm(ctx context.Context, sess *Session) {
	st := &sess.Goal
	if st.Step != GoalStep1 || st.Pending == "" {
		return
	}
	st.Goal = st.Pending
	st.Pending = ""

	if st.ChangeType == "goal" {
		sess.Profile.Goal = st.Goal
		f.sessions.SaveProfile(ctx, sess)
		f.appendRow(ctx, sess, models.SheetGoals, map[string]string{"goal": st.Goal, "change": "goal"})
		st.Step = ""
		sess.Deactivate()
		f.send(ctx, sess, "Цель обновлена! 🎯", models.Keyboard{menuButton()})
		return
	}

	st.Step = GoalStep2
	f.showProblemSelection(ctx, sess, nil)
}

// HandleGoalEdit clears the pending goal and re-prompts.
func (f *Flows) HandleGoalEdit(ctx context.Context, sess *Session) {
	st := &sess.Goal
	if st.Step != GoalStep1 {
		return
	}
	st.Pending = ""
	f.send(ctx, sess, "Хорошо, сформулируй цель ещё раз.", nil)
}

// HandleGoalBack returns from the goal preview to the prompt.
func (f *Flows) HandleGoalBack(ctx context.Context, sess *Session) {
	st := &sess.Goal
	if st.Step != GoalStep1 {
		return
	}
	st.Pending = ""
	f.send(ctx, sess, goalPrompt, nil)
}

// showProblemSelection renders step 2: the toggleable problem catalog.
// When cb is set the existing message is edited in place.
func (f *Flows) showProblemSelection(ctx context.Context, sess *Session, cb *models.Callback) {
	st := &sess.Goal
	var kb models.Keyboard
	for _, p := range models.ProblemCatalog {
		label := p.Display
		if containsString(st.Problems, p.ID) {
			label = "✅ " + label
		}
		kb = append(kb, models.Row(models.Button{Label: label, Data: models.Cmd(models.CmdProbSelect, p.ID)}))
	}
	kb = append(kb, models.Row(models.Button{Label: "Продолжить ▶️", Data: models.CmdProbDone}))

	text := "С чем ты хочешь поработать? Можно выбрать несколько пунктов."
	if cb != nil {
		if err := f.msg.EditMessage(ctx, sess.Profile.ChatID, cb.MessageID, text, kb); err == nil {
			return
		}
	}
	f.send(ctx, sess, text, kb)
}

// HandleProbSelect toggles a problem. Toggling is idempotent: selecting
// twice restores the previous set. The "other" entry detours into the
// other-problem flow.
func (f *Flows) HandleProbSelect(ctx context.Context, sess *Session, id string, cb *models.Callback) {
	st := &sess.Goal
	if st.Step != GoalStep2 {
		return
	}
	if id == "other" {
		f.StartOtherProblem(ctx, sess)
		return
	}
	if _, ok := models.ProblemByID(id); !ok {
		slog.Warn("Goal flow: unknown problem id", "id", id, "userID", sess.Profile.UserID)
		return
	}
	if containsString(st.Problems, id) {
		st.Problems = removeString(st.Problems, id)
	} else {
		st.Problems = append(st.Problems, id)
	}
	f.showProblemSelection(ctx, sess, cb)
}

// HandleProbDone leaves step 2. Stale ratings for deselected problems are
// purged here. Zero selected problems is allowed and goes straight to the
// preview.
func (f *Flows) HandleProbDone(ctx context.Context, sess *Session) {
	st := &sess.Goal
	if st.Step != GoalStep2 {
		return
	}
	for id := range st.Ratings {
		if !containsString(st.Problems, id) {
			delete(st.Ratings, id)
		}
	}
	if len(st.Problems) == 0 {
		st.Step = GoalStep4
		f.showGoalPreview(ctx, sess)
		return
	}
	st.Step = GoalStep3
	st.RatingIdx = 0
	f.askProblemRating(ctx, sess)
}

// askProblemRating renders the 0-3 scale for the current problem.
func (f *Flows) askProblemRating(ctx context.Context, sess *Session) {
	st := &sess.Goal
	problem := st.Problems[st.RatingIdx]
	text := fmt.Sprintf("Насколько сильно «%s» мешает тебе сейчас? (%d из %d)\n\n0 - совсем не мешает, 3 - мешает очень сильно",
		models.ProblemDisplay(problem), st.RatingIdx+1, len(st.Problems))
	var row []models.Button
	for v := 0; v <= MaxProblemRating; v++ {
		row = append(row, models.Button{Label: strconv.Itoa(v), Data: models.Cmd(models.CmdRate, strconv.Itoa(st.RatingIdx), strconv.Itoa(v))})
	}
	kb := models.Keyboard{
		row,
		models.Row(models.Button{Label: "⬅️ Назад", Data: models.Cmd(models.CmdRateBack, strconv.Itoa(st.RatingIdx))}),
	}
	f.send(ctx, sess, text, kb)
}

// HandleRate records one problem rating. Stale or out-of-range callbacks
// are rejected without touching state.
func (f *Flows) HandleRate(ctx context.Context, sess *Session, idx, val int) error {
	st := &sess.Goal
	if st.Step != GoalStep3 || idx != st.RatingIdx {
		return fmt.Errorf("stale rating callback: idx %d, current %d", idx, st.RatingIdx)
	}
	if val < 0 || val > MaxProblemRating {
		return fmt.Errorf("rating %d out of range 0-%d", val, MaxProblemRating)
	}
	st.Ratings[st.Problems[idx]] = val
	st.RatingIdx++
	if st.RatingIdx >= len(st.Problems) {
		st.Step = GoalStep4
		f.showGoalPreview(ctx, sess)
		return nil
	}
	f.askProblemRating(ctx, sess)
	return nil
}

// HandleRateBack steps the rating sequence backwards. Backing out of the
// first rating returns to problem selection with the selection cleared.
func (f *Flows) HandleRateBack(ctx context.Context, sess *Session, idx int) {
	st := &sess.Goal
	if st.Step != GoalStep3 {
		return
	}
	if idx == 0 {
		st.Problems = nil
		st.Ratings = make(map[string]int)
		st.Step = GoalStep2
		f.showProblemSelection(ctx, sess, nil)
		return
	}
	if st.RatingIdx > 0 {
		st.RatingIdx--
	}
	f.askProblemRating(ctx, sess)
}

// showGoalPreview renders step 4. The wording follows what is being
// changed on a re-entry.
func (f *Flows) showGoalPreview(ctx context.Context, sess *Session) {
	st := &sess.Goal
	var b strings.Builder
	switch st.ChangeType {
	case "problems":
		b.WriteString("Обновлённый список проблем:\n\n")
	default:
		b.WriteString("Давай сверим:\n\n")
		fmt.Fprintf(&b, "🎯 Цель: %s\n\n", st.Goal)
	}
	if len(st.Problems) == 0 {
		b.WriteString("Проблемы: пока не выбраны\n")
	} else {
		b.WriteString("Проблемы:\n")
		for _, id := range st.Problems {
			if rating, ok := st.Ratings[id]; ok {
				fmt.Fprintf(&b, "• %s - %d/%d\n", models.ProblemDisplay(id), rating, MaxProblemRating)
			} else {
				fmt.Fprintf(&b, "• %s\n", models.ProblemDisplay(id))
			}
		}
	}
	b.WriteString("\nВсё верно?")
	kb := models.Keyboard{
		models.Row(models.Button{Label: "✅ Да, сохранить", Data: models.Cmd(models.CmdPreviewConfirm, "yes")}),
		models.Row(models.Button{Label: "✏️ Изменить", Data: models.Cmd(models.CmdPreviewEdit, "choose")}),
	}
	f.send(ctx, sess, b.String(), kb)
}

// HandlePreviewConfirm persists the goal, problems and ratings, updates
// the profile, and moves on to exercise recommendations.
func (f *Flows) HandlePreviewConfirm(ctx context.Context, sess *Session) {
	st := &sess.Goal
	if st.Step != GoalStep4 {
		return
	}
	problemsJSON, _ := json.Marshal(st.Problems)
	ratingsJSON, _ := json.Marshal(st.Ratings)
	f.appendRow(ctx, sess, models.SheetGoals, map[string]string{
		"goal":     st.Goal,
		"problems": string(problemsJSON),
		"ratings":  string(ratingsJSON),
	})

	sess.Profile.Goal = st.Goal
	sess.Profile.Problems = append([]string(nil), st.Problems...)
	sess.Profile.ProblemRatings = make(map[string]int, len(st.Ratings))
	for k, v := range st.Ratings {
		sess.Profile.ProblemRatings[k] = v
	}
	f.sessions.SaveProfile(ctx, sess)

	st.Step = ""
	st.IsChanging = false
	st.ChangeType = ""
	f.ShowRecommendations(ctx, sess)
}

// HandlePreviewEdit asks which part to edit.
func (f *Flows) HandlePreviewEdit(ctx context.Context, sess *Session) {
	st := &sess.Goal
	if st.Step != GoalStep4 {
		return
	}
	kb := models.Keyboard{
		models.Row(models.Button{Label: "🎯 Цель", Data: models.Cmd(models.CmdPreviewChange, "goal")}),
		models.Row(models.Button{Label: "📋 Проблемы", Data: models.Cmd(models.CmdPreviewChange, "problems")}),
	}
	f.send(ctx, sess, "Что ты хочешь изменить?", kb)
}

// HandlePreviewChange routes the edit choice. Editing the part the
// re-entry did not restrict clears the restriction, since the change now
// spans both.
func (f *Flows) HandlePreviewChange(ctx context.Context, sess *Session, which string) {
	st := &sess.Goal
	if st.Step != GoalStep4 {
		return
	}
	switch which {
	case "goal":
		if st.ChangeType == "problems" {
			st.ChangeType = ""
		}
		st.Step = GoalStep1
		st.Pending = ""
		f.send(ctx, sess, goalPrompt, nil)
	case "problems":
		if st.ChangeType == "goal" {
			st.ChangeType = ""
		}
		st.Step = GoalStep2
		f.showProblemSelection(ctx, sess, nil)
	}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func removeString(list []string, s string) []string {
	out := list[:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}
