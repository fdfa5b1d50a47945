package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aide-bot/aide/internal/models"
)

// MaxOtherProblems caps how many entries one other-problem visit may add.
// A confirmed batch of suggestions counts as one entry, a custom name too.
const MaxOtherProblems = 3

const otherProblemPrompt = "Опиши своими словами, что тебя беспокоит. Я постараюсь подобрать подходящую категорию."

// StartOtherProblem enters the free-text problem classifier detour. The
// goal flow's state is left untouched and is resumed on finish.
func (f *Flows) StartOtherProblem(ctx context.Context, sess *Session) {
	slog.Debug("Other-problem flow started", "userID", sess.Profile.UserID)
	sess.Other = OtherProblemState{Step: OtherAwaitingText}
	sess.Activate(KindOtherProblem)
	f.send(ctx, sess, otherProblemPrompt, nil)
}

// HandleOtherText consumes free text: either the problem description to
// classify or a custom problem name.
func (f *Flows) HandleOtherText(ctx context.Context, sess *Session, text string) {
	st := &sess.Other
	switch st.Step {
	case OtherAwaitingText:
		if ok, reply := ValidateReflection(text); !ok {
			f.send(ctx, sess, reply, nil)
			return
		}
		verdict, err := f.gate.Check(ctx, text, "other_problem")
		if err == nil && verdict.Crisis {
			f.gate.ShowSupport(ctx, f.msg, &sess.Profile, verdict, "other_problem", text, false)
			return
		}
		st.Suggested = f.classifyProblem(ctx, text)
		st.Selected = nil
		st.Step = OtherChoosingOption
		f.showOtherOptions(ctx, sess, nil)
	case OtherAwaitingCustom:
		name := strings.TrimSpace(text)
		if name == "" {
			f.send(ctx, sess, "Напиши название проблемы.", nil)
			return
		}
		st.Added = append(st.Added, name)
		st.AddedCount++
		st.Step = OtherChoosingOption
		f.send(ctx, sess, fmt.Sprintf("Добавила проблему «%s».", name), nil)
		f.showOtherContinue(ctx, sess)
	}
}

// classificationSchema constrains the classifier reply.
var classificationSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"problem_ids": map[string]any{
			"type":     "array",
			"minItems": 1,
			"maxItems": 3,
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"id":         map[string]any{"type": "string"},
					"confidence": map[string]any{"type": "number"},
				},
				"required":             []string{"id", "confidence"},
				"additionalProperties": false,
			},
		},
	},
	"required":             []string{"problem_ids"},
	"additionalProperties": false,
}

// classifyProblem maps a free-text description to 1-3 catalog problem ids.
// Any failure falls back to anxiety, the most common category.
func (f *Flows) classifyProblem(ctx context.Context, text string) []string {
	fallback := []string{"anxiety"}
	if f.genai == nil {
		return fallback
	}

	var ids []string
	for _, p := range models.ProblemCatalog {
		if p.ID != "other" {
			ids = append(ids, fmt.Sprintf("%s (%s)", p.ID, p.Display))
		}
	}
	system := "Ты психолог-классификатор. Отнеси описание проблемы пользователя к 1-3 категориям из списка и верни их идентификаторы с уверенностью.\n\nКатегории:\n" + strings.Join(ids, "\n")
	raw, err := f.genai.GenerateStructured(ctx, system, text, "problem_classification", classificationSchema)
	if err != nil {
		slog.Warn("Other-problem classification failed, using fallback", "error", err)
		return fallback
	}
	var parsed struct {
		ProblemIDs []struct {
			ID         string  `json:"id"`
			Confidence float64 `json:"confidence"`
		} `json:"problem_ids"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &parsed); err != nil {
		slog.Warn("Other-problem classification parse failed, using fallback", "error", err)
		return fallback
	}
	var out []string
	for _, p := range parsed.ProblemIDs {
		if models.IsCatalogProblem(p.ID) && !containsString(out, p.ID) {
			out = append(out, p.ID)
		}
		if len(out) == 3 {
			break
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

// showOtherOptions renders the toggleable suggestion chips.
func (f *Flows) showOtherOptions(ctx context.Context, sess *Session, cb *models.Callback) {
	st := &sess.Other
	var kb models.Keyboard
	for _, id := range st.Suggested {
		label := models.ProblemDisplay(id)
		if containsString(st.Selected, id) {
			label = "✅ " + label
		}
		kb = append(kb, models.Row(models.Button{Label: label, Data: models.Cmd(models.CmdOtherSuggest, id)}))
	}
	kb = append(kb,
		models.Row(models.Button{Label: "✅ Подтвердить выбранное", Data: models.CmdOtherConfirmSel}),
		models.Row(models.Button{Label: "✏️ Своё название", Data: models.CmdOtherCustom}),
		models.Row(models.Button{Label: "Готово", Data: models.CmdOtherDone}),
	)
	text := "Похоже, это может быть связано с одной из этих категорий. Выбери подходящие или задай своё название."
	if cb != nil {
		if err := f.msg.EditMessage(ctx, sess.Profile.ChatID, cb.MessageID, text, kb); err == nil {
			return
		}
	}
	f.send(ctx, sess, text, kb)
}

// showOtherContinue offers another round or finishing. At the cap only
// finishing remains.
func (f *Flows) showOtherContinue(ctx context.Context, sess *Session) {
	st := &sess.Other
	if st.AddedCount >= MaxOtherProblems {
		f.send(ctx, sess, "Это максимум проблем за один раз. Давай остановимся на этом.", models.Keyboard{
			models.Row(models.Button{Label: "Готово", Data: models.CmdOtherDone}),
		})
		return
	}
	f.send(ctx, sess, "Хочешь добавить ещё одну проблему?", models.Keyboard{
		models.Row(models.Button{Label: "➕ Ещё проблема", Data: models.CmdOtherAnother}),
		models.Row(models.Button{Label: "Готово", Data: models.CmdOtherDone}),
	})
}

// HandleOtherSuggest toggles one suggested category.
func (f *Flows) HandleOtherSuggest(ctx context.Context, sess *Session, id string, cb *models.Callback) {
	st := &sess.Other
	if st.Step != OtherChoosingOption || !containsString(st.Suggested, id) {
		return
	}
	if containsString(st.Selected, id) {
		st.Selected = removeString(st.Selected, id)
	} else {
		st.Selected = append(st.Selected, id)
	}
	f.showOtherOptions(ctx, sess, cb)
}

// HandleOtherConfirmSelected commits the chip selection as one entry
// toward the cap.
func (f *Flows) HandleOtherConfirmSelected(ctx context.Context, sess *Session) {
	st := &sess.Other
	if st.Step != OtherChoosingOption {
		return
	}
	if len(st.Selected) == 0 {
		f.send(ctx, sess, "Выбери хотя бы одну категорию или задай своё название.", nil)
		return
	}
	for _, id := range st.Selected {
		if !containsString(st.Added, id) {
			st.Added = append(st.Added, id)
		}
	}
	st.Selected = nil
	st.AddedCount++
	f.showOtherContinue(ctx, sess)
}

// HandleOtherCustom switches to naming the problem directly.
func (f *Flows) HandleOtherCustom(ctx context.Context, sess *Session) {
	st := &sess.Other
	if st.Step != OtherChoosingOption {
		return
	}
	if st.AddedCount >= MaxOtherProblems {
		f.showOtherContinue(ctx, sess)
		return
	}
	st.Step = OtherAwaitingCustom
	f.send(ctx, sess, "Как назвать эту проблему? Напиши короткое название.", nil)
}

// HandleOtherAnother starts another description round.
func (f *Flows) HandleOtherAnother(ctx context.Context, sess *Session) {
	st := &sess.Other
	if st.AddedCount >= MaxOtherProblems {
		f.showOtherContinue(ctx, sess)
		return
	}
	st.Step = OtherAwaitingText
	f.send(ctx, sess, otherProblemPrompt, nil)
}

// HandleOtherDone merges the added problems into the goal selection.
// Catalog problems get the default rating and lead into exercise
// recommendations; custom-only additions return to the menu.
func (f *Flows) HandleOtherDone(ctx context.Context, sess *Session) {
	st := &sess.Other
	goal := &sess.Goal
	if goal.Ratings == nil {
		goal.Ratings = make(map[string]int)
	}

	anyCatalog := false
	for _, id := range st.Added {
		if !containsString(goal.Problems, id) {
			goal.Problems = append(goal.Problems, id)
		}
		if models.IsCatalogProblem(id) {
			anyCatalog = true
			if _, rated := goal.Ratings[id]; !rated {
				goal.Ratings[id] = 2
			}
		}
	}

	sess.Profile.Problems = append([]string(nil), goal.Problems...)
	if sess.Profile.ProblemRatings == nil {
		sess.Profile.ProblemRatings = make(map[string]int)
	}
	for k, v := range goal.Ratings {
		sess.Profile.ProblemRatings[k] = v
	}
	f.sessions.SaveProfile(ctx, sess)

	added := len(st.Added)
	sess.Other = OtherProblemState{}
	slog.Debug("Other-problem flow finished", "userID", sess.Profile.UserID, "added", added, "catalog", anyCatalog)

	if anyCatalog {
		sess.Goal.Step = ""
		f.ShowRecommendations(ctx, sess)
		return
	}
	sess.Deactivate()
	f.send(ctx, sess, "Записала. Я сохраню это в твоём профиле.", models.Keyboard{menuButton()})
}
