package flow

import (
	"context"
	"strings"
	"unicode"

	"github.com/aide-bot/aide/internal/models"
)

// minLetters is the minimum alphabetic character count for a meaningful
// reflection answer.
const minLetters = 10

// refusals are single-token answers that get an elaboration prompt instead
// of a too-short rejection.
var refusals = map[string]bool{
	"не":      true,
	"нет":     true,
	"да":      true,
	"не знаю": true,
}

// ValidateReflection checks free text for minimal substance. It returns
// ok=false with the prompt to send back when the text is not acceptable.
func ValidateReflection(text string) (bool, string) {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if refusals[normalized] {
		return false, "Понимаю, что бывает сложно сформулировать. Попробуй описать чуть подробнее: что ты замечаешь, о чём думаешь?"
	}
	letters := 0
	for _, r := range text {
		if unicode.IsLetter(r) {
			letters++
		}
	}
	if letters < minLetters {
		return false, "Ответ получился совсем коротким. Напиши, пожалуйста, немного подробнее - это важно для упражнения."
	}
	return true, ""
}

// captureSpec configures one confirmable free-text capture step.
type captureSpec struct {
	// Context is the safety check context (goal_setting, exercise, diary,
	// checkin, mvst, other_problem).
	Context string
	// ContinueAfter adds a resume button to the crisis support message.
	ContinueAfter bool
	// Lenient skips substance validation (mindfulness practices accept
	// anything, including silence).
	Lenient bool
	// Preview is the message shown with the confirm buttons; use %s for the
	// captured text.
	Preview string
	// Confirm/Edit/Back are the callback payloads for the preview buttons.
	// Back is omitted when empty.
	Confirm string
	Edit    string
	Back    string
}

// capture runs the shared free-text capture step: validate, safety gate,
// preview with confirm buttons. It returns true when the preview was sent
// and the caller should hold text as pending; false when the text was
// rejected or a crisis intercepted it (the user has already been answered
// either way).
func (f *Flows) capture(ctx context.Context, sess *Session, text string, spec captureSpec) bool {
	if !spec.Lenient {
		if ok, reply := ValidateReflection(text); !ok {
			f.send(ctx, sess, reply, nil)
			return false
		}
	}

	verdict, err := f.gate.Check(ctx, text, spec.Context)
	if err == nil && verdict.Crisis {
		f.gate.ShowSupport(ctx, f.msg, &sess.Profile, verdict, spec.Context, text, spec.ContinueAfter)
		return false
	}

	preview := spec.Preview
	if strings.Contains(preview, "%s") {
		preview = strings.Replace(preview, "%s", text, 1)
	}
	kb := models.Keyboard{
		models.Row(models.Button{Label: "✅ Да, всё верно", Data: spec.Confirm}),
		models.Row(models.Button{Label: "✏️ Изменить", Data: spec.Edit}),
	}
	if spec.Back != "" {
		kb = append(kb, models.Row(models.Button{Label: "⬅️ Назад", Data: spec.Back}))
	}
	f.send(ctx, sess, preview, kb)
	return true
}
