// Package safety implements crisis detection for user-submitted text.
//
// Every piece of free text passes through the Gate before a flow accepts
// it: a keyword fast path catches explicit crisis language without any
// network call, and an LLM slow path catches subtler indicators. Verdicts
// are cached so repeated checks of the same text stay cheap.
package safety

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aide-bot/aide/internal/genai"
	"github.com/aide-bot/aide/internal/models"
	"github.com/aide-bot/aide/internal/store"
	gocache "github.com/patrickmn/go-cache"
)

// Crisis type labels. These exact strings appear in crisis logs and drive
// the support message selection.
const (
	TypeSuicidal     = "Суицидальные мысли"
	TypeSelfHarm     = "Самоповреждение"
	TypePsychosis    = "Психотические симптомы"
	TypeDissociation = "Диссоциация"
	TypeAddiction    = "Кризис зависимости"
	TypeMania        = "Маниакальное состояние"
	TypeGeneric      = "Кризисное состояние"
)

// Verdict cache and confidence parameters.
const (
	cacheTTL            = 30 * time.Minute
	cacheSweep          = 10 * time.Minute
	keywordConfidence   = 0.95
	llmConfidenceFloor  = 0.7
	crisisSampleMaxRune = 200
)

// crisisKeywords maps lowercase substrings to their crisis type, grouped by
// category. Matching is substring containment over the lowercased text.
var crisisKeywords = []struct {
	keyword string
	crisis  string
}{
	// suicidal ideation
	{"суицид", TypeSuicidal},
	{"самоубийство", TypeSuicidal},
	{"покончить с собой", TypeSuicidal},
	{"не хочу жить", TypeSuicidal},
	{"умереть", TypeSuicidal},
	{"убить себя", TypeSuicidal},
	{"прыгнуть с", TypeGeneric},
	{"повеситься", TypeGeneric},
	{"отравиться", TypeGeneric},
	{"вскрыть вены", TypeGeneric},
	{"таблетки выпить", TypeGeneric},
	{"нет смысла жить", TypeGeneric},

	// self-harm
	{"порезать себя", TypeSelfHarm},
	{"причинить себе боль", TypeSelfHarm},
	{"наказать себя", TypeGeneric},
	{"резать руки", TypeSelfHarm},
	{"бить себя", TypeGeneric},
	{"самоповреждение", TypeGeneric},

	// psychosis indicators
	{"голоса в голове", TypePsychosis},
	{"преследуют", TypePsychosis},
	{"следят за мной", TypePsychosis},
	{"читают мысли", TypePsychosis},
	{"управляют мной", TypePsychosis},
	{"заговор против меня", TypePsychosis},
	{"все против меня", TypeGeneric},

	// severe dissociation
	{"не чувствую тело", TypeDissociation},
	{"это не я", TypeDissociation},
	{"смотрю на себя со стороны", TypeGeneric},
	{"не реально", TypeDissociation},
	{"все как во сне", TypeDissociation},
	{"отключаюсь от реальности", TypeGeneric},

	// substance abuse crisis
	{"передозировка", TypeAddiction},
	{"ломка", TypeAddiction},
	{"абстиненция", TypeAddiction},
	{"не могу остановиться", TypeGeneric},

	// mania / extreme states
	{"не сплю неделю", TypeMania},
	{"могу всё", TypeGeneric},
	{"я бог", TypeMania},
	{"не нужна еда", TypeGeneric},
	{"энергия бьёт ключом", TypeMania},
}

// Gate performs safety checks and renders crisis support.
type Gate struct {
	genai genai.ClientInterface
	store store.Store
	cache *gocache.Cache
}

// NewGate creates a Gate. The GenAI client may be nil, in which case only
// the keyword fast path runs.
func NewGate(client genai.ClientInterface, st store.Store) *Gate {
	return &Gate{
		genai: client,
		store: st,
		cache: gocache.New(cacheTTL, cacheSweep),
	}
}

// cacheKey derives the verdict cache key from context and a text hash.
func cacheKey(text, checkContext string) string {
	sum := md5.Sum([]byte(text))
	return fmt.Sprintf("safety_%s_%x", checkContext, sum[:4])
}

// KeywordCheck runs the keyword fast path only.
func KeywordCheck(text string) models.Verdict {
	lower := strings.ToLower(text)
	for _, entry := range crisisKeywords {
		if strings.Contains(lower, entry.keyword) {
			return models.Verdict{Crisis: true, Type: entry.crisis, Confidence: keywordConfidence}
		}
	}
	return models.Verdict{}
}

// Check analyzes text for crisis indicators. checkContext names where the
// text came from (goal_setting, exercise, diary, checkin, mvst,
// other_problem, general).
//
// A keyword hit short-circuits the LLM and is never downgraded. When the
// LLM call fails on keyword-clean text the verdict is clean; Check never
// surfaces LLM failures as errors.
func (g *Gate) Check(ctx context.Context, text, checkContext string) (models.Verdict, error) {
	trimmed := strings.TrimSpace(text)
	if len([]rune(trimmed)) < 3 {
		return models.Verdict{}, nil
	}

	key := cacheKey(text, checkContext)
	if cached, found := g.cache.Get(key); found {
		v := cached.(models.Verdict)
		slog.Debug("SafetyGate cache hit", "context", checkContext, "crisis", v.Crisis)
		return v, nil
	}

	keyword := KeywordCheck(text)
	if keyword.Crisis {
		slog.Info("SafetyGate keyword crisis detected", "context", checkContext, "type", keyword.Type)
		g.cache.Set(key, keyword, gocache.DefaultExpiration)
		return keyword, nil
	}

	if g.genai == nil {
		return models.Verdict{}, nil
	}

	verdict, err := g.llmCheck(ctx, text, checkContext)
	if err != nil {
		slog.Warn("SafetyGate LLM check failed, treating as clean", "error", err, "context", checkContext)
		return models.Verdict{}, nil
	}

	if verdict.Crisis && verdict.Confidence >= llmConfidenceFloor {
		slog.Info("SafetyGate LLM crisis detected", "context", checkContext, "type", verdict.Type, "confidence", verdict.Confidence)
		g.cache.Set(key, verdict, gocache.DefaultExpiration)
		return verdict, nil
	}

	clean := models.Verdict{Confidence: verdict.Confidence}
	g.cache.Set(key, clean, gocache.DefaultExpiration)
	return clean, nil
}

const llmSystemPrompt = `Ты опытный кризисный психолог. Проанализируй текст на наличие кризисных индикаторов.

КРИТИЧЕСКИЕ индикаторы (требуют немедленной помощи):
1. Суицидальные мысли/намерения/планы
2. Самоповреждение (порезы, ожоги, удары)
3. Психотические симптомы (галлюцинации, бред, паранойя)
4. Тяжёлая диссоциация/дереализация
5. Острый кризис зависимости
6. Маниакальные/экстремальные состояния

ВАЖНО:
- Будь внимателен к скрытым признакам (безнадёжность, ощущение ловушки)
- Учитывай контекст: упоминание прошлого опыта vs текущее состояние
- Избегай ложных срабатываний на обсуждение темы в общем`

// verdictSchema constrains the LLM reply to the verdict JSON shape.
var verdictSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"crisis_detected": map[string]any{"type": "boolean"},
		"crisis_type":     map[string]any{"type": []string{"string", "null"}},
		"confidence":      map[string]any{"type": "number"},
		"reasoning":       map[string]any{"type": "string"},
	},
	"required":             []string{"crisis_detected", "crisis_type", "confidence", "reasoning"},
	"additionalProperties": false,
}

func (g *Gate) llmCheck(ctx context.Context, text, checkContext string) (models.Verdict, error) {
	userPrompt := fmt.Sprintf("Контекст: %s\n\nТекст для анализа:\n%s\n\nОпредели наличие кризисных индикаторов.", checkContext, text)
	raw, err := g.genai.GenerateStructured(ctx, llmSystemPrompt, userPrompt, "safety_verdict", verdictSchema)
	if err != nil {
		return models.Verdict{}, err
	}
	var verdict models.Verdict
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &verdict); err != nil {
		return models.Verdict{}, fmt.Errorf("safety verdict parse failed: %w", err)
	}
	return verdict, nil
}

// LogCrisis appends a crisis event to the crisis log sheet. The text sample
// is truncated to keep stored samples short.
func (g *Gate) LogCrisis(ctx context.Context, userID int64, username, crisisType, checkContext, text string) error {
	sample := []rune(text)
	if len(sample) > crisisSampleMaxRune {
		sample = sample[:crisisSampleMaxRune]
	}
	rec := models.Record{
		Sheet:    models.SheetCrisisLog,
		UserID:   userID,
		Username: username,
		Fields: map[string]string{
			"crisis_type": crisisType,
			"context":     checkContext,
			"text_sample": string(sample),
		},
	}
	if err := g.store.AppendRow(ctx, rec); err != nil {
		slog.Error("SafetyGate crisis log append failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to log crisis event: %w", err)
	}
	slog.Debug("SafetyGate crisis event logged", "userID", userID, "type", crisisType, "context", checkContext)
	return nil
}
