package models

// Problem is one entry of the fixed problem catalog shown at goal setting.
type Problem struct {
	ID      string
	Display string
}

// ProblemCatalog is the fixed selectable problem list, in display order.
// The "other" entry hands off to the free-text other-problem flow.
var ProblemCatalog = []Problem{
	{ID: "anxiety", Display: "Тревога и беспокойство"},
	{ID: "apathy", Display: "Апатия и отсутствие сил"},
	{ID: "mood", Display: "Подавленное настроение"},
	{ID: "sleep", Display: "Проблемы со сном"},
	{ID: "procrastination", Display: "Прокрастинация"},
	{ID: "communication", Display: "Трудности в общении"},
	{ID: "self_criticism", Display: "Самокритика"},
	{ID: "anger", Display: "Раздражительность и гнев"},
	{ID: "ocd", Display: "Навязчивые мысли"},
	{ID: "panic", Display: "Панические атаки"},
	{ID: "social_anxiety", Display: "Социальная тревожность"},
	{ID: "perfectionism", Display: "Перфекционизм"},
	{ID: "loss", Display: "Переживание утраты"},
	{ID: "burnout", Display: "Выгорание"},
	{ID: "resilience", Display: "Устойчивость к стрессу"},
	{ID: "other", Display: "Другая проблема"},
}

// ProblemByID looks up a catalog problem by its id.
func ProblemByID(id string) (Problem, bool) {
	for _, p := range ProblemCatalog {
		if p.ID == id {
			return p, true
		}
	}
	return Problem{}, false
}

// ProblemDisplay returns the display name for an id, falling back to the id
// itself for custom (non-catalog) problems.
func ProblemDisplay(id string) string {
	if p, ok := ProblemByID(id); ok {
		return p.Display
	}
	return id
}

// IsCatalogProblem reports whether id names a catalog problem other than
// the "other" placeholder.
func IsCatalogProblem(id string) bool {
	if id == "other" {
		return false
	}
	_, ok := ProblemByID(id)
	return ok
}
