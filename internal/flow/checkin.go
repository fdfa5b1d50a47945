package flow

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/aide-bot/aide/internal/models"
	"github.com/aide-bot/aide/internal/store"
	gocache "github.com/patrickmn/go-cache"
)

// CheckinInterval is the minimum gap between check-ins.
const CheckinInterval = 7 * 24 * time.Hour

// checkinGreetings are rotated for the first question.
var checkinGreetings = []string{
	"Привет, %s! Прошла неделя - время сверить курс. 🧭",
	"%s, рада тебя видеть! Давай посмотрим, как прошла неделя.",
	"Привет, %s! Как ты? Время еженедельного check-in.",
}

const checkinFallbackSummary = "Спасибо за ответы! Ты продолжаешь работу над собой, и это само по себе важный шаг. Увидимся через неделю! 💪"

// CheckinEligible reports whether the user is due for a check-in: at least
// a week since the first contact and a week since the last check-in.
func CheckinEligible(profile models.Profile, lastCheckin time.Time, now time.Time) bool {
	if lastCheckin.IsZero() {
		return !profile.CreatedAt.IsZero() && now.Sub(profile.CreatedAt) >= CheckinInterval
	}
	return now.Sub(lastCheckin) >= CheckinInterval
}

// StartCheckin begins the weekly check-in conversation.
func (f *Flows) StartCheckin(ctx context.Context, sess *Session) {
	slog.Debug("Check-in started", "userID", sess.Profile.UserID)
	sess.Checkin = CheckinState{Step: CheckinStep1, Ratings: make(map[string]int)}
	sess.Activate(KindCheckin)
	greeting := checkinGreetings[rand.Intn(len(checkinGreetings))]
	f.send(ctx, sess, fmt.Sprintf(greeting, userName(sess))+"\n\nЧто было самым важным для тебя на этой неделе?", nil)
}

// HandleCheckinText consumes the two free-text answers.
func (f *Flows) HandleCheckinText(ctx context.Context, sess *Session, text string) {
	st := &sess.Checkin
	switch st.Step {
	case CheckinStep1:
		st.Answer1 = text
		st.Step = CheckinStep2
		f.send(ctx, sess, "Как ты сейчас себя чувствуешь?", nil)
	case CheckinStep2:
		st.Answer2 = text
		if len(sess.Profile.Problems) == 0 {
			st.Step = CheckinStepGoal
			f.askCheckinGoal(ctx, sess)
			return
		}
		st.Step = CheckinStepRatings
		st.RatingIdx = 0
		f.askCheckinRating(ctx, sess)
	}
}

// askCheckinRating re-rates the current problem on the 0-3 scale.
func (f *Flows) askCheckinRating(ctx context.Context, sess *Session) {
	st := &sess.Checkin
	problem := sess.Profile.Problems[st.RatingIdx]
	text := fmt.Sprintf("Насколько «%s» мешает тебе сейчас? (%d из %d)\n\n0 - совсем не мешает, 3 - очень сильно",
		models.ProblemDisplay(problem), st.RatingIdx+1, len(sess.Profile.Problems))
	var row []models.Button
	for v := 0; v <= MaxProblemRating; v++ {
		row = append(row, models.Button{Label: strconv.Itoa(v), Data: models.Cmd(models.CmdCheckinRate, strconv.Itoa(st.RatingIdx), strconv.Itoa(v))})
	}
	f.send(ctx, sess, text, models.Keyboard{row})
}

// HandleCheckinRate records one problem re-rating.
func (f *Flows) HandleCheckinRate(ctx context.Context, sess *Session, idx, val int) error {
	st := &sess.Checkin
	if st.Step != CheckinStepRatings || idx != st.RatingIdx {
		return fmt.Errorf("stale check-in rating callback: idx %d, current %d", idx, st.RatingIdx)
	}
	if val < 0 || val > MaxProblemRating {
		return fmt.Errorf("rating %d out of range 0-%d", val, MaxProblemRating)
	}
	st.Ratings[sess.Profile.Problems[idx]] = val
	st.RatingIdx++
	if st.RatingIdx >= len(sess.Profile.Problems) {
		st.Step = CheckinStepGoal
		f.askCheckinGoal(ctx, sess)
		return nil
	}
	f.askCheckinRating(ctx, sess)
	return nil
}

// askCheckinGoal asks for goal progress on the 0-10 scale.
func (f *Flows) askCheckinGoal(ctx context.Context, sess *Session) {
	text := "Насколько ты продвинулся(ась) к своей цели?\n\n0 - совсем не продвинулся(ась), 10 - цель достигнута"
	var kb models.Keyboard
	var row []models.Button
	for v := 0; v <= MaxGoalRating; v++ {
		row = append(row, models.Button{Label: strconv.Itoa(v), Data: models.Cmd(models.CmdCheckinGoal, strconv.Itoa(v))})
		if len(row) == 6 {
			kb = append(kb, row)
			row = nil
		}
	}
	if len(row) > 0 {
		kb = append(kb, row)
	}
	f.send(ctx, sess, text, kb)
}

// HandleCheckinGoal records goal progress and finishes the check-in: the
// row is saved, a crisis check runs over the free-text answers, and only a
// clean result gets the weekly summary.
func (f *Flows) HandleCheckinGoal(ctx context.Context, sess *Session, val int) error {
	st := &sess.Checkin
	if st.Step != CheckinStepGoal {
		return fmt.Errorf("unexpected check-in goal callback")
	}
	if val < 0 || val > MaxGoalRating {
		return fmt.Errorf("goal progress %d out of range 0-%d", val, MaxGoalRating)
	}

	ratingsJSON, _ := json.Marshal(st.Ratings)
	f.appendRow(ctx, sess, models.SheetCheckins, map[string]string{
		"q1":            st.Answer1,
		"q2":            st.Answer2,
		"ratings":       string(ratingsJSON),
		"goal_progress": strconv.Itoa(val),
	})

	combined := st.Answer1 + "\n" + st.Answer2
	answers := *st
	sess.Checkin = CheckinState{}
	sess.Deactivate()

	if verdict, err := f.gate.Check(ctx, combined, "checkin"); err == nil && verdict.Crisis {
		f.gate.ShowSupport(ctx, f.msg, &sess.Profile, verdict, "checkin", combined, false)
		if err := f.store.PatchLatestRow(ctx, models.SheetCheckins, sess.Profile.UserID, nil, map[string]string{"crisis": "true"}); err != nil {
			slog.Error("Check-in crisis flag patch failed", "error", err, "userID", sess.Profile.UserID)
		}
		return nil
	}

	f.send(ctx, sess, f.checkinSummary(ctx, sess, answers, val), models.Keyboard{menuButton()})
	return nil
}

// checkinSummary builds the weekly summary from recent exercises and
// rating dynamics, cached for a day per payload.
func (f *Flows) checkinSummary(ctx context.Context, sess *Session, answers CheckinState, goalProgress int) string {
	if f.genai == nil {
		return checkinFallbackSummary
	}

	var recent []string
	weekAgo := f.now().Add(-CheckinInterval)
	if rows, err := f.store.RowsByUser(ctx, models.SheetExercises, sess.Profile.UserID); err == nil {
		for _, r := range rows {
			if r.CreatedAt.After(weekAgo) && r.Fields["exercise"] != "" && !containsString(recent, r.Fields["exercise"]) {
				recent = append(recent, r.Fields["exercise"])
			}
		}
	}

	var dynamics []string
	for problem, current := range answers.Ratings {
		baseline, ok := sess.Profile.ProblemRatings[problem]
		if !ok {
			continue
		}
		dynamics = append(dynamics, fmt.Sprintf("%s: было %d/3, стало %d/3", models.ProblemDisplay(problem), baseline, current))
	}

	payload, _ := json.Marshal(map[string]any{
		"q1": answers.Answer1, "q2": answers.Answer2,
		"exercises": recent, "dynamics": dynamics, "goal": goalProgress,
	})
	sum := md5.Sum(payload)
	key := fmt.Sprintf("%d_checkin_%x", sess.Profile.UserID, sum[:4])
	if cached, found := f.summaries.Get(key); found {
		return cached.(string)
	}

	system := "Ты тёплый и поддерживающий психолог-помощник. Напиши короткое (3-5 предложений) резюме недели для пользователя на основе его ответов: отметь прогресс, поддержи и мягко предложи фокус на следующую неделю. Пиши по-русски, обращайся на «ты»."
	user := fmt.Sprintf("Ответы: %s / %s\nУпражнения за неделю: %s\nДинамика проблем: %s\nПрогресс к цели: %d/10",
		answers.Answer1, answers.Answer2, strings.Join(recent, ", "), strings.Join(dynamics, "; "), goalProgress)
	summary, err := f.genai.GeneratePrompt(ctx, system, user)
	if err != nil {
		slog.Warn("Check-in summary generation failed, using fallback", "error", err, "userID", sess.Profile.UserID)
		return checkinFallbackSummary
	}
	f.summaries.Set(key, summary, gocache.DefaultExpiration)
	return summary
}

// LastCheckinTime returns when the user last completed a check-in.
func (f *Flows) LastCheckinTime(ctx context.Context, userID int64) (time.Time, error) {
	rows, err := f.store.RowsByUser(ctx, models.SheetCheckins, userID)
	if err != nil {
		return time.Time{}, err
	}
	if len(rows) == 0 {
		return time.Time{}, nil
	}
	return rows[len(rows)-1].CreatedAt, nil
}

// SweepAndOffer walks all known users and offers a check-in to everyone
// who is due. Runs from the daily scheduler job.
func (f *Flows) SweepAndOffer(ctx context.Context) {
	users, err := f.store.ListUsers(ctx, models.SheetMessages)
	if err != nil {
		slog.Error("Check-in sweep failed to list users", "error", err)
		return
	}
	slog.Debug("Check-in sweep started", "users", len(users))
	now := f.now()
	for _, userID := range users {
		profile, err := f.store.GetProfile(ctx, userID)
		if err != nil {
			if !errors.Is(err, store.ErrNoRows) {
				slog.Error("Check-in sweep profile load failed", "error", err, "userID", userID)
			}
			continue
		}
		last, err := f.LastCheckinTime(ctx, userID)
		if err != nil {
			slog.Error("Check-in sweep history load failed", "error", err, "userID", userID)
			continue
		}
		if !CheckinEligible(profile, last, now) {
			continue
		}
		_, err = f.msg.SendMessage(ctx, profile.ChatID,
			fmt.Sprintf("%s, прошла неделя с прошлой сверки. Готов(а) пройти check-in?", profile.Name),
			models.Keyboard{
				models.Row(models.Button{Label: "✅ Пройти check-in", Data: models.CmdCheckinStart}),
				menuButton(),
			})
		if err != nil {
			slog.Error("Check-in offer send failed", "error", err, "userID", userID)
		}
	}
}
