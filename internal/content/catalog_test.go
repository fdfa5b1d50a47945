package content

import (
	"strings"
	"testing"
)

const testMap = `## 1. Протокол работы с тревогой (CBT) · Время: 5–8 мин.

### Тревога и беспокойство
* Дневник мыслей
* Квадратное дыхание
* Декатастрофизация
* Поведенческий эксперимент
* Шкала вероятности
* Письмо себе
* Седьмое упражнение за пределами лимита

### Проблемы со сном
* Гигиена сна

## 2. Протокол работы с настроением

### Подавленное настроение
* Активация поведения
`

const testInterventions = `## 1. Дневник мыслей (ДМ)
##

Цель: научиться замечать автоматические мысли. Время: 5–8 мин.

1. Запиши ситуацию.
2. Запиши мысль.
3. Оцени эмоцию.

***

## 2. Квадратное дыхание

Цель: снизить физиологическое возбуждение.

Дыши по квадрату: вдох, пауза, выдох, пауза.
`

func testCatalog() *Catalog {
	return NewCatalogFromContent(testMap, testInterventions)
}

func TestExercisesForProblem(t *testing.T) {
	c := testCatalog()
	exercises := c.ExercisesForProblem("Тревога и беспокойство")
	if len(exercises) != MaxExercisesPerProblem {
		t.Fatalf("expected cap of %d exercises, got %d", MaxExercisesPerProblem, len(exercises))
	}
	if exercises[0] != "Дневник мыслей" {
		t.Errorf("expected first exercise %q, got %q", "Дневник мыслей", exercises[0])
	}
	for _, e := range exercises {
		if e == "Седьмое упражнение за пределами лимита" {
			t.Error("seventh exercise must be dropped by the cap")
		}
	}
	if got := c.ExercisesForProblem("Гнев"); got != nil {
		t.Errorf("expected no exercises for unknown problem, got %v", got)
	}
}

func TestExercisesForProblemStopsAtNextSection(t *testing.T) {
	c := testCatalog()
	exercises := c.ExercisesForProblem("Проблемы со сном")
	if len(exercises) != 1 || exercises[0] != "Гигиена сна" {
		t.Errorf("expected only the sleep exercise, got %v", exercises)
	}
}

func TestExerciseDescriptionExactMatch(t *testing.T) {
	c := testCatalog()
	desc, ok := c.ExerciseDescription("Дневник мыслей")
	if !ok {
		t.Fatal("expected description for exact title")
	}
	if want := "1. Запиши ситуацию."; !strings.Contains(desc, want) {
		t.Errorf("description missing %q: %q", want, desc)
	}
}

func TestExerciseDescriptionFuzzyAndAbbreviation(t *testing.T) {
	c := testCatalog()
	// Trailing punctuation and near-identical names still resolve.
	if _, ok := c.ExerciseDescription("Дневник мыслей."); !ok {
		t.Error("expected fuzzy match with trailing punctuation")
	}
	// The parenthesized abbreviation matches too.
	if _, ok := c.ExerciseDescription("ДМ"); !ok {
		t.Error("expected abbreviation match")
	}
	if _, ok := c.ExerciseDescription("Совершенно другое название"); ok {
		t.Error("expected no match below the similarity threshold")
	}
}

func TestExerciseGoalStripsTime(t *testing.T) {
	c := testCatalog()
	goal, ok := c.ExerciseGoal("Дневник мыслей")
	if !ok {
		t.Fatal("expected goal")
	}
	if strings.Contains(goal, "Время") {
		t.Errorf("time annotation must be stripped, got %q", goal)
	}
	if want := "научиться замечать автоматические мысли."; goal != want {
		t.Errorf("expected goal %q, got %q", want, goal)
	}
}

func TestProtocols(t *testing.T) {
	c := testCatalog()
	protocols := c.Protocols()
	if len(protocols) != 2 {
		t.Fatalf("expected 2 protocols, got %d", len(protocols))
	}
	if protocols[0].Title != "Протокол работы с тревогой (CBT)" {
		t.Errorf("unexpected protocol title %q", protocols[0].Title)
	}
	if len(protocols[0].Exercises) != 8 {
		t.Errorf("expected 8 exercises across the first protocol's problems, got %d", len(protocols[0].Exercises))
	}
	if p, ok := c.ProtocolByID("p1"); !ok || p.Title != "Протокол работы с настроением" {
		t.Errorf("protocol lookup by id failed: %+v ok=%v", p, ok)
	}
}

func TestSimilarity(t *testing.T) {
	if got := Similarity("дневник мыслей", "дневник мыслей"); got != 1.0 {
		t.Errorf("identical strings must score 1.0, got %f", got)
	}
	if got := Similarity("дневник мыслей", "квадратное дыхание"); got >= MatchThreshold {
		t.Errorf("unrelated strings must score below threshold, got %f", got)
	}
	if got := Similarity("", ""); got != 1.0 {
		t.Errorf("two empty strings score 1.0, got %f", got)
	}
	if got := Similarity("абв", ""); got != 0.0 {
		t.Errorf("empty against non-empty scores 0.0, got %f", got)
	}
}

func TestExercisesForGoal(t *testing.T) {
	c := testCatalog()
	exercises := c.ExercisesForGoal("протокол работы с настроением")
	if len(exercises) != 1 || exercises[0] != "Активация поведения" {
		t.Errorf("expected the mood protocol exercises, got %v", exercises)
	}
	if got := c.ExercisesForGoal("хочу выучить испанский"); got != nil {
		t.Errorf("expected no match for unrelated goal, got %v", got)
	}
	if got := c.ExercisesForGoal("   "); got != nil {
		t.Errorf("expected no match for blank goal, got %v", got)
	}
}
