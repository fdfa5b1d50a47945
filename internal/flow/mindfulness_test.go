package flow

import (
	"context"
	"testing"

	"github.com/aide-bot/aide/internal/models"
)

func TestPracticeInputIsLenient(t *testing.T) {
	env := newTestEnv(t)
	env.sess.Practice = PracticeState{Step: MvstAwaitingPractice, Selected: "body_scan"}
	env.sess.Activate(KindMindfulness)

	// A one-word answer would fail reflection validation; practices accept it.
	env.flows.HandleMvstText(context.Background(), env.sess, "готово")
	if env.sess.Practice.Pending != "готово" {
		t.Errorf("lenient capture must hold the text, pending %q", env.sess.Practice.Pending)
	}
}

func TestPracticeFinalAnswerIsStrict(t *testing.T) {
	env := newTestEnv(t)
	env.sess.Practice = PracticeState{Step: MvstAwaitingFinal, Selected: "body_scan"}
	env.sess.Activate(KindMindfulness)

	env.flows.HandleMvstText(context.Background(), env.sess, "норм")
	if env.sess.Practice.Pending != "" {
		t.Error("too-short reflection answers must be rejected")
	}
}

func TestMvstMarkCompletePatchesAndCongratulates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	// All but one practice already done: completing the last congratulates.
	for _, p := range Practices[:len(Practices)-1] {
		env.sess.Profile.CompletedPractices = append(env.sess.Profile.CompletedPractices, p.ID)
	}
	last := Practices[len(Practices)-1]
	env.flows.appendRow(ctx, env.sess, models.SheetPractices, map[string]string{"practice": last.Name, "input": "получилось"})
	env.sess.Practice = PracticeState{
		Step:         MvstAwaitingFinal,
		Selected:     last.ID,
		FinalAnswers: []string{"заметил напряжение в плечах", "помогло замедлиться", "сложно было не отвлекаться"},
		FinalIdx:     len(practiceFinalQuestions),
	}
	env.sess.Activate(KindMindfulness)

	env.flows.HandleMvstMarkComplete(ctx, env.sess)

	rows, err := env.store.RowsByUser(ctx, models.SheetPractices, 1)
	if err != nil || len(rows) != 1 {
		t.Fatalf("expected 1 practice row, got %d (err %v)", len(rows), err)
	}
	if rows[0].Fields["noticed"] != "заметил напряжение в плечах" {
		t.Errorf("noticed not patched: %v", rows[0].Fields)
	}
	if env.sess.Active != KindNone {
		t.Errorf("all practices done must end the flow, active %q", env.sess.Active)
	}
	env.msg.AssertLastContains(t, "Поздравляю")
}

func TestDiaryAcceptsShortEntries(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.flows.StartDiary(ctx, env.sess)

	env.flows.HandleDiaryText(ctx, env.sess, "грустно")
	if env.sess.Diary.Pending != "грустно" {
		t.Errorf("diary must take short entries as written, pending %q", env.sess.Diary.Pending)
	}
}

func TestDiaryConfirmPersistsEntry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.flows.StartDiary(ctx, env.sess)

	env.flows.HandleDiaryText(ctx, env.sess, "сегодня весь день чувствовал раздражение после созвона")
	if env.sess.Diary.Pending == "" {
		t.Fatal("accepted entry must be held as pending")
	}
	env.flows.HandleDiaryAction(ctx, env.sess, "confirm")

	rows, err := env.store.RowsByUser(ctx, models.SheetDiary, 1)
	if err != nil || len(rows) != 1 {
		t.Fatalf("expected 1 diary row, got %d (err %v)", len(rows), err)
	}
	if env.sess.Active != KindNone {
		t.Errorf("diary must end after saving, active %q", env.sess.Active)
	}
}
