package flow

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/aide-bot/aide/internal/models"
)

func TestProblemToggleIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.sess.Goal = GoalState{Step: GoalStep2, Ratings: make(map[string]int)}
	env.sess.Activate(KindGoal)

	env.flows.HandleProbSelect(ctx, env.sess, "anxiety", nil)
	if !containsString(env.sess.Goal.Problems, "anxiety") {
		t.Fatal("first toggle must select the problem")
	}
	env.flows.HandleProbSelect(ctx, env.sess, "anxiety", nil)
	if len(env.sess.Goal.Problems) != 0 {
		t.Errorf("second toggle must deselect, got %v", env.sess.Goal.Problems)
	}
}

func TestProblemSelectRejectsUnknownID(t *testing.T) {
	env := newTestEnv(t)
	env.sess.Goal = GoalState{Step: GoalStep2, Ratings: make(map[string]int)}

	env.flows.HandleProbSelect(context.Background(), env.sess, "nonexistent", nil)
	if len(env.sess.Goal.Problems) != 0 {
		t.Errorf("unknown id must not be selected, got %v", env.sess.Goal.Problems)
	}
}

func TestProbDonePurgesStaleRatings(t *testing.T) {
	env := newTestEnv(t)
	env.sess.Goal = GoalState{
		Step:     GoalStep2,
		Problems: []string{"anxiety"},
		Ratings:  map[string]int{"anxiety": 1, "sleep": 3},
	}

	env.flows.HandleProbDone(context.Background(), env.sess)
	if _, ok := env.sess.Goal.Ratings["sleep"]; ok {
		t.Error("rating for a deselected problem must be purged")
	}
	if env.sess.Goal.Step != GoalStep3 {
		t.Errorf("expected step %q, got %q", GoalStep3, env.sess.Goal.Step)
	}
}

func TestProbDoneZeroProblemsGoesToPreview(t *testing.T) {
	env := newTestEnv(t)
	env.sess.Goal = GoalState{Step: GoalStep2, Goal: "спать лучше", Ratings: make(map[string]int)}

	env.flows.HandleProbDone(context.Background(), env.sess)
	if env.sess.Goal.Step != GoalStep4 {
		t.Fatalf("zero problems must jump to the preview, got step %q", env.sess.Goal.Step)
	}
	env.msg.AssertLastContains(t, "пока не выбраны")
}

func TestHandleRateRejectsStaleAndOutOfRange(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.sess.Goal = GoalState{
		Step:     GoalStep3,
		Problems: []string{"anxiety", "sleep"},
		Ratings:  make(map[string]int),
	}

	if err := env.flows.HandleRate(ctx, env.sess, 1, 2); err == nil {
		t.Error("stale index must be rejected")
	}
	if err := env.flows.HandleRate(ctx, env.sess, 0, MaxProblemRating+1); err == nil {
		t.Error("out-of-range rating must be rejected")
	}
	if len(env.sess.Goal.Ratings) != 0 {
		t.Errorf("rejected callbacks must not touch state, got %v", env.sess.Goal.Ratings)
	}

	if err := env.flows.HandleRate(ctx, env.sess, 0, 2); err != nil {
		t.Fatalf("valid rating failed: %v", err)
	}
	if env.sess.Goal.Ratings["anxiety"] != 2 || env.sess.Goal.RatingIdx != 1 {
		t.Errorf("rating not recorded: %+v", env.sess.Goal)
	}
}

func TestRateBackFromFirstClearsSelection(t *testing.T) {
	env := newTestEnv(t)
	env.sess.Goal = GoalState{
		Step:     GoalStep3,
		Problems: []string{"anxiety", "sleep"},
		Ratings:  map[string]int{"anxiety": 2},
	}

	env.flows.HandleRateBack(context.Background(), env.sess, 0)
	if env.sess.Goal.Step != GoalStep2 {
		t.Errorf("expected return to selection, got step %q", env.sess.Goal.Step)
	}
	if len(env.sess.Goal.Problems) != 0 || len(env.sess.Goal.Ratings) != 0 {
		t.Errorf("selection and ratings must be cleared, got %+v", env.sess.Goal)
	}
}

func TestStartGoalChangeProblemsClearsSelection(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.sess.Profile.Goal = "меньше тревожиться"
	env.sess.Profile.Problems = []string{"anxiety", "sleep"}
	env.sess.Profile.ProblemRatings = map[string]int{"anxiety": 3, "sleep": 2}

	env.flows.StartGoal(ctx, env.sess, false, false, true)

	st := env.sess.Goal
	if st.Step != GoalStep2 || st.ChangeType != "problems" {
		t.Fatalf("change-problems re-entry must open selection, step %q type %q", st.Step, st.ChangeType)
	}
	if len(st.Problems) != 0 || len(st.Ratings) != 0 {
		t.Errorf("selection must start empty, problems %v ratings %v", st.Problems, st.Ratings)
	}
}

func TestGoalConfirmGoalOnlyChangeEndsFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.sess.Goal = GoalState{
		Step:       GoalStep1,
		Pending:    "меньше тревожиться на работе",
		IsChanging: true,
		ChangeType: "goal",
		Ratings:    make(map[string]int),
	}
	env.sess.Activate(KindGoal)

	env.flows.HandleGoalConfirm(ctx, env.sess)
	if env.sess.Profile.Goal != "меньше тревожиться на работе" {
		t.Errorf("profile goal not updated: %q", env.sess.Profile.Goal)
	}
	if env.sess.Active != KindNone {
		t.Errorf("goal-only change must end the flow, active %q", env.sess.Active)
	}
	rows, err := env.store.RowsByUser(ctx, models.SheetGoals, 1)
	if err != nil || len(rows) != 1 {
		t.Fatalf("expected 1 goals row, got %d (err %v)", len(rows), err)
	}
	if rows[0].Fields["change"] != "goal" {
		t.Errorf("goals row change = %q, want %q", rows[0].Fields["change"], "goal")
	}
}

func TestPreviewConfirmPersistsAndRecommends(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.sess.Goal = GoalState{
		Step:     GoalStep4,
		Goal:     "справляться с тревогой",
		Problems: []string{"anxiety"},
		Ratings:  map[string]int{"anxiety": 3},
	}
	env.sess.Activate(KindGoal)

	env.flows.HandlePreviewConfirm(ctx, env.sess)

	rows, err := env.store.RowsByUser(ctx, models.SheetGoals, 1)
	if err != nil || len(rows) != 1 {
		t.Fatalf("expected 1 goals row, got %d (err %v)", len(rows), err)
	}
	var ratings map[string]int
	if err := json.Unmarshal([]byte(rows[0].Fields["ratings"]), &ratings); err != nil {
		t.Fatalf("ratings field is not JSON: %v", err)
	}
	if ratings["anxiety"] != 3 {
		t.Errorf("persisted rating = %d, want 3", ratings["anxiety"])
	}
	if env.sess.Profile.Goal != "справляться с тревогой" || env.sess.Profile.ProblemRatings["anxiety"] != 3 {
		t.Errorf("profile not updated: %+v", env.sess.Profile)
	}
	// Anxiety has catalog exercises, so the flow moves on to selection.
	if env.sess.Active != KindExercise || env.sess.Exercise.Step != ExSelecting {
		t.Errorf("expected exercise selection, active %q step %q", env.sess.Active, env.sess.Exercise.Step)
	}
	if last := env.msg.LastSent(t); !strings.Contains(last.Text, "Дневник мыслей") {
		t.Errorf("recommendations missing exercise name: %q", last.Text)
	}
}

func TestGoalTextCrisisIntercepted(t *testing.T) {
	env := newTestEnv(t)
	env.sess.Goal = GoalState{Step: GoalStep1, Ratings: make(map[string]int)}
	env.sess.Activate(KindGoal)

	env.flows.HandleGoalText(context.Background(), env.sess, "я больше не хочу жить совсем")
	if env.sess.Goal.Pending != "" {
		t.Error("crisis text must not become the pending goal")
	}
	env.msg.AssertLastContains(t, "Горячие линии")

	rows, err := env.store.RowsByUser(context.Background(), models.SheetCrisisLog, 1)
	if err != nil || len(rows) != 1 {
		t.Fatalf("expected 1 crisis log row, got %d (err %v)", len(rows), err)
	}
}
