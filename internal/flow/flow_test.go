package flow

import (
	"context"
	"testing"

	"github.com/aide-bot/aide/internal/content"
	"github.com/aide-bot/aide/internal/safety"
	"github.com/aide-bot/aide/internal/store"
	"github.com/aide-bot/aide/internal/testutil"
)

const testMap = `## 1. Протокол работы с тревогой (CBT)

### Тревога и беспокойство
* Дневник мыслей
* Квадратное дыхание

### Проблемы со сном
* Гигиена сна
`

const testInterventions = `## 1. Дневник мыслей (ДМ)

Цель: научиться замечать автоматические мысли.

1. Запиши ситуацию.
2. Запиши мысль.
3. Оцени эмоцию.

***

## 2. Квадратное дыхание

Цель: снизить физиологическое возбуждение.

Дыши по квадрату: вдох, пауза, выдох, пауза.

***

## 3. Гигиена сна

Цель: наладить режим сна.

Убери экраны за час до сна.
`

// testEnv bundles the flow controllers with their recording doubles.
type testEnv struct {
	flows *Flows
	msg   *testutil.MockMessenger
	gen   *testutil.MockGenAI
	store *store.InMemoryStore
	sess  *Session
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	msg := testutil.NewMockMessenger()
	gen := &testutil.MockGenAI{StructuredResponse: testutil.SafeVerdictJSON()}
	st := store.NewInMemoryStore()
	gate := safety.NewGate(gen, st)
	catalog := content.NewCatalogFromContent(testMap, testInterventions)
	sessions := NewSessions(st)
	flows := New(msg, st, gen, gate, catalog, sessions)

	sess := sessions.Get(context.Background(), 1, 100, "tester")
	sess.Profile.Name = "Аня"
	return &testEnv{flows: flows, msg: msg, gen: gen, store: st, sess: sess}
}
