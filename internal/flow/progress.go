package flow

import (
	"context"
	"crypto/md5"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aide-bot/aide/internal/models"
	gocache "github.com/patrickmn/go-cache"
)

const progressFallback = "Каждый выполненный шаг - вклад в твоё состояние. Продолжай в своём темпе! 🌱"

// ShowProgress summarizes what the user has done so far: counts from the
// record store plus a short generated motivational note.
func (f *Flows) ShowProgress(ctx context.Context, sess *Session) {
	userID := sess.Profile.UserID
	exerciseRows, err := f.store.RowsByUser(ctx, models.SheetExercises, userID)
	if err != nil {
		slog.Error("Progress: exercise rows load failed", "error", err, "userID", userID)
	}
	diaryRows, err := f.store.RowsByUser(ctx, models.SheetDiary, userID)
	if err != nil {
		slog.Error("Progress: diary rows load failed", "error", err, "userID", userID)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📊 <b>Твой прогресс</b>\n\n")
	fmt.Fprintf(&b, "✅ Завершено упражнений: %d\n", len(sess.Profile.CompletedExercises))
	fmt.Fprintf(&b, "📝 Записей по упражнениям: %d\n", len(exerciseRows))
	fmt.Fprintf(&b, "📖 Записей в дневнике: %d\n", len(diaryRows))
	fmt.Fprintf(&b, "🧘 Практик осознанности: %d из %d\n", len(sess.Profile.CompletedPractices), len(Practices))
	if sess.Profile.Goal != "" {
		fmt.Fprintf(&b, "\n🎯 Цель: %s\n", sess.Profile.Goal)
	}
	b.WriteString("\n" + f.progressNote(ctx, sess, len(exerciseRows), len(diaryRows)))
	f.send(ctx, sess, b.String(), models.Keyboard{menuButton()})
}

// progressNote generates a short motivational note, cached for a day.
func (f *Flows) progressNote(ctx context.Context, sess *Session, exercises, diary int) string {
	if f.genai == nil {
		return progressFallback
	}
	payload := fmt.Sprintf("%d|%d|%d|%s", exercises, diary, len(sess.Profile.CompletedExercises), sess.Profile.Goal)
	sum := md5.Sum([]byte(payload))
	key := fmt.Sprintf("%d_progress_%x", sess.Profile.UserID, sum[:4])
	if cached, found := f.summaries.Get(key); found {
		return cached.(string)
	}
	system := "Ты поддерживающий психолог-помощник. Напиши 2-3 тёплых предложения о прогрессе пользователя, без преувеличений. По-русски, на «ты»."
	user := fmt.Sprintf("Записей по упражнениям: %d, записей в дневнике: %d, завершено упражнений: %d. Цель: %s",
		exercises, diary, len(sess.Profile.CompletedExercises), sess.Profile.Goal)
	note, err := f.genai.GeneratePrompt(ctx, system, user)
	if err != nil {
		slog.Warn("Progress note generation failed, using fallback", "error", err, "userID", sess.Profile.UserID)
		return progressFallback
	}
	f.summaries.Set(key, note, gocache.DefaultExpiration)
	return note
}
