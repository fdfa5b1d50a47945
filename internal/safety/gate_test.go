package safety

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aide-bot/aide/internal/models"
	"github.com/aide-bot/aide/internal/store"
	"github.com/aide-bot/aide/internal/testutil"
)

func TestKeywordCheckTypes(t *testing.T) {
	cases := []struct {
		text     string
		wantType string
	}{
		{"я думаю про суицид", TypeSuicidal},
		{"хочу умереть", TypeSuicidal},
		{"хочу повеситься", TypeGeneric},
		{"начал резать руки", TypeSelfHarm},
		{"они следят за мной постоянно", TypePsychosis},
		{"я не чувствую тело", TypeDissociation},
		{"у меня ломка", TypeAddiction},
		{"я бог и могу что угодно", TypeMania},
	}
	for _, c := range cases {
		v := KeywordCheck(c.text)
		if !v.Crisis {
			t.Errorf("KeywordCheck(%q): expected crisis", c.text)
			continue
		}
		if v.Type != c.wantType {
			t.Errorf("KeywordCheck(%q): type %q, want %q", c.text, v.Type, c.wantType)
		}
		if v.Confidence != keywordConfidence {
			t.Errorf("KeywordCheck(%q): confidence %v, want %v", c.text, v.Confidence, keywordConfidence)
		}
	}
}

func TestKeywordCheckClean(t *testing.T) {
	v := KeywordCheck("сегодня был хороший день, гулял в парке")
	if v.Crisis {
		t.Errorf("expected clean verdict, got %+v", v)
	}
}

func TestCheckShortTextSkipped(t *testing.T) {
	gen := &testutil.MockGenAI{StructuredErr: errors.New("must not be called")}
	g := NewGate(gen, store.NewInMemoryStore())

	v, err := g.Check(context.Background(), "ок", "general")
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if v.Crisis {
		t.Errorf("short text must yield a clean verdict, got %+v", v)
	}
	if len(gen.StructuredCalls) != 0 {
		t.Error("short text must not reach the LLM")
	}
}

func TestCheckKeywordShortCircuitsLLM(t *testing.T) {
	gen := &testutil.MockGenAI{StructuredErr: errors.New("must not be called")}
	g := NewGate(gen, store.NewInMemoryStore())

	v, err := g.Check(context.Background(), "больше не хочу жить", "diary")
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !v.Crisis || v.Type != TypeSuicidal {
		t.Errorf("expected suicidal keyword verdict, got %+v", v)
	}
	if len(gen.StructuredCalls) != 0 {
		t.Error("keyword hit must skip the LLM")
	}
}

func TestCheckLLMCrisisAboveFloor(t *testing.T) {
	gen := &testutil.MockGenAI{StructuredResponse: testutil.CrisisVerdictJSON(TypeSelfHarm, 0.85)}
	g := NewGate(gen, store.NewInMemoryStore())

	v, err := g.Check(context.Background(), "последнее время делаю себе больно когда ошибаюсь", "exercise")
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !v.Crisis || v.Type != TypeSelfHarm {
		t.Errorf("expected LLM crisis verdict, got %+v", v)
	}
}

func TestCheckLLMCrisisBelowFloorIsClean(t *testing.T) {
	gen := &testutil.MockGenAI{StructuredResponse: testutil.CrisisVerdictJSON(TypeGeneric, 0.4)}
	g := NewGate(gen, store.NewInMemoryStore())

	v, err := g.Check(context.Background(), "иногда всё кажется бессмысленным но я справляюсь", "checkin")
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if v.Crisis {
		t.Errorf("low-confidence verdict must be treated as clean, got %+v", v)
	}
}

func TestCheckLLMFailureReturnsNoError(t *testing.T) {
	gen := &testutil.MockGenAI{StructuredErr: errors.New("api down")}
	g := NewGate(gen, store.NewInMemoryStore())

	v, err := g.Check(context.Background(), "расскажу как прошла неделя на работе", "checkin")
	if err != nil {
		t.Fatalf("LLM failure must not surface as error: %v", err)
	}
	if v != (models.Verdict{}) {
		t.Errorf("clean keywords plus failed LLM must yield a zero verdict, got %+v", v)
	}
}

func TestCheckCachesVerdict(t *testing.T) {
	gen := &testutil.MockGenAI{StructuredResponse: testutil.CrisisVerdictJSON(TypePsychosis, 0.9)}
	g := NewGate(gen, store.NewInMemoryStore())
	ctx := context.Background()
	text := "мне кажется что кто-то вкладывает мысли мне в голову"

	first, err := g.Check(ctx, text, "general")
	if err != nil {
		t.Fatalf("first Check failed: %v", err)
	}

	// Break the LLM: the second check must come from the cache.
	gen.StructuredErr = errors.New("api down")
	second, err := g.Check(ctx, text, "general")
	if err != nil {
		t.Fatalf("second Check failed: %v", err)
	}
	if second != first {
		t.Errorf("cached verdict %+v differs from original %+v", second, first)
	}
	if len(gen.StructuredCalls) != 1 {
		t.Errorf("expected exactly 1 LLM call, got %d", len(gen.StructuredCalls))
	}
}

func TestLogCrisisTruncatesSample(t *testing.T) {
	st := store.NewInMemoryStore()
	g := NewGate(nil, st)
	long := strings.Repeat("оченьдлинныйтекст ", 30)

	if err := g.LogCrisis(context.Background(), 7, "user7", TypeGeneric, "diary", long); err != nil {
		t.Fatalf("LogCrisis failed: %v", err)
	}
	rows, err := st.RowsByUser(context.Background(), models.SheetCrisisLog, 7)
	if err != nil {
		t.Fatalf("RowsByUser failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 crisis row, got %d", len(rows))
	}
	sample := rows[0].Fields["text_sample"]
	if got := len([]rune(sample)); got > crisisSampleMaxRune {
		t.Errorf("sample length %d exceeds limit %d", got, crisisSampleMaxRune)
	}
	if rows[0].Fields["crisis_type"] != TypeGeneric {
		t.Errorf("crisis_type = %q, want %q", rows[0].Fields["crisis_type"], TypeGeneric)
	}
}
