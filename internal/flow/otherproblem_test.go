package flow

import (
	"context"
	"errors"
	"testing"
)

func TestOtherDetourPreservesGoalState(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.sess.Goal = GoalState{
		Step:     GoalStep2,
		Goal:     "меньше тревожиться",
		Problems: []string{"anxiety"},
		Ratings:  make(map[string]int),
	}
	env.sess.Activate(KindGoal)

	env.flows.HandleProbSelect(ctx, env.sess, "other", nil)
	if env.sess.Active != KindOtherProblem {
		t.Fatalf("expected other-problem detour, active %q", env.sess.Active)
	}
	if env.sess.Goal.Step != GoalStep2 || !containsString(env.sess.Goal.Problems, "anxiety") {
		t.Errorf("goal state must survive the detour: %+v", env.sess.Goal)
	}
}

func TestClassifyProblemFallsBackOnError(t *testing.T) {
	env := newTestEnv(t)
	env.gen.StructuredErr = errors.New("api down")

	got := env.flows.classifyProblem(context.Background(), "постоянно прокрастинирую")
	if len(got) != 1 || got[0] != "anxiety" {
		t.Errorf("expected anxiety fallback, got %v", got)
	}
}

func TestClassifyProblemFiltersInvalidIDs(t *testing.T) {
	env := newTestEnv(t)
	env.gen.StructuredResponse = `{"problem_ids": [
		{"id": "procrastination", "confidence": 0.9},
		{"id": "other", "confidence": 0.5},
		{"id": "nonexistent", "confidence": 0.8},
		{"id": "procrastination", "confidence": 0.7},
		{"id": "burnout", "confidence": 0.6}
	]}`

	got := env.flows.classifyProblem(context.Background(), "постоянно всё откладываю и выгораю")
	want := []string{"procrastination", "burnout"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestConfirmSelectedBatchCountsAsOne(t *testing.T) {
	env := newTestEnv(t)
	env.sess.Other = OtherProblemState{
		Step:      OtherChoosingOption,
		Suggested: []string{"sleep", "mood"},
		Selected:  []string{"sleep", "mood"},
	}

	env.flows.HandleOtherConfirmSelected(context.Background(), env.sess)
	st := env.sess.Other
	if st.AddedCount != 1 {
		t.Errorf("a confirmed batch counts as one entry, got %d", st.AddedCount)
	}
	if len(st.Added) != 2 {
		t.Errorf("both selected problems must be kept, got %v", st.Added)
	}
}

func TestOtherCapBlocksAnotherRound(t *testing.T) {
	env := newTestEnv(t)
	env.sess.Other = OtherProblemState{Step: OtherChoosingOption, AddedCount: MaxOtherProblems}

	env.flows.HandleOtherAnother(context.Background(), env.sess)
	if env.sess.Other.Step != OtherChoosingOption {
		t.Errorf("at the cap no new round may start, step %q", env.sess.Other.Step)
	}
	env.msg.AssertLastContains(t, "максимум")
}

func TestOtherDoneMergesCatalogWithDefaultRating(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.sess.Other = OtherProblemState{Added: []string{"sleep"}}
	env.sess.Activate(KindOtherProblem)

	env.flows.HandleOtherDone(ctx, env.sess)
	if !containsString(env.sess.Profile.Problems, "sleep") {
		t.Errorf("profile problems missing sleep: %v", env.sess.Profile.Problems)
	}
	if env.sess.Profile.ProblemRatings["sleep"] != 2 {
		t.Errorf("catalog additions get the default rating 2, got %d", env.sess.Profile.ProblemRatings["sleep"])
	}
	// Sleep has a catalog exercise, so recommendations follow.
	if env.sess.Active != KindExercise {
		t.Errorf("catalog addition must lead into recommendations, active %q", env.sess.Active)
	}
}

func TestOtherDoneCustomOnlyReturnsToMenu(t *testing.T) {
	env := newTestEnv(t)
	env.sess.Other = OtherProblemState{Added: []string{"Страх перед экзаменами"}}
	env.sess.Activate(KindOtherProblem)

	env.flows.HandleOtherDone(context.Background(), env.sess)
	if env.sess.Active != KindNone {
		t.Errorf("custom-only addition must end the detour, active %q", env.sess.Active)
	}
	if !containsString(env.sess.Profile.Problems, "Страх перед экзаменами") {
		t.Errorf("custom problem missing from profile: %v", env.sess.Profile.Problems)
	}
	if _, rated := env.sess.Profile.ProblemRatings["Страх перед экзаменами"]; rated {
		t.Error("custom problems are not rated")
	}
}
