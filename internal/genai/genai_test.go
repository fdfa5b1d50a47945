package genai

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/openai/openai-go"
)

// mockChatService implements chatService for testing.
type mockChatService struct {
	resp  openai.ChatCompletion
	errs  []error // per-attempt errors; nil means success with resp
	calls int
}

func (m *mockChatService) Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	idx := m.calls
	m.calls++
	if idx < len(m.errs) && m.errs[idx] != nil {
		return openai.ChatCompletion{}, m.errs[idx]
	}
	return m.resp, nil
}

func testClient(chat chatService) *Client {
	return &Client{chat: chat, model: DefaultModel, attempts: 3}
}

func TestGeneratePromptSuccess(t *testing.T) {
	mock := &mockChatService{
		resp: openai.ChatCompletion{
			Choices: []openai.ChatCompletionChoice{
				{Message: openai.ChatCompletionMessage{Content: "Hello World"}},
			},
		},
	}
	out, err := testClient(mock).GeneratePrompt(context.Background(), "system prompt", "user prompt")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if out != "Hello World" {
		t.Errorf("expected %q, got %q", "Hello World", out)
	}
	if mock.calls != 1 {
		t.Errorf("expected 1 call, got %d", mock.calls)
	}
}

func TestGeneratePromptRetriesThenSucceeds(t *testing.T) {
	mock := &mockChatService{
		resp: openai.ChatCompletion{
			Choices: []openai.ChatCompletionChoice{
				{Message: openai.ChatCompletionMessage{Content: "ok"}},
			},
		},
		errs: []error{errors.New("transient"), nil},
	}
	c := testClient(mock)
	c.attempts = 2
	out, err := c.GeneratePrompt(context.Background(), "sys", "usr")
	if err != nil {
		t.Fatalf("expected success after retry, got %v", err)
	}
	if out != "ok" {
		t.Errorf("expected %q, got %q", "ok", out)
	}
	if mock.calls != 2 {
		t.Errorf("expected 2 calls, got %d", mock.calls)
	}
}

func TestGeneratePromptAllAttemptsFail(t *testing.T) {
	mock := &mockChatService{errs: []error{errors.New("boom"), errors.New("boom"), errors.New("boom")}}
	c := testClient(mock)
	_, err := c.GeneratePrompt(context.Background(), "sys", "usr")
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Errorf("expected wrapped service error, got %v", err)
	}
	if mock.calls != 3 {
		t.Errorf("expected 3 attempts, got %d", mock.calls)
	}
}

func TestGeneratePromptNoChoices(t *testing.T) {
	mock := &mockChatService{resp: openai.ChatCompletion{Choices: []openai.ChatCompletionChoice{}}}
	_, err := testClient(mock).GeneratePrompt(context.Background(), "sys", "usr")
	if err != ErrNoChoicesReturned {
		t.Errorf("expected ErrNoChoicesReturned, got %v", err)
	}
}

func TestGenerateStructuredReturnsRawJSON(t *testing.T) {
	mock := &mockChatService{
		resp: openai.ChatCompletion{
			Choices: []openai.ChatCompletionChoice{
				{Message: openai.ChatCompletionMessage{Content: `{"crisis_detected":false}`}},
			},
		},
	}
	schema := map[string]any{"type": "object"}
	out, err := testClient(mock).GenerateStructured(context.Background(), "sys", "usr", "verdict", schema)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != `{"crisis_detected":false}` {
		t.Errorf("unexpected structured output %q", out)
	}
}

func TestNewClientNoKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := NewClient()
	if err != ErrAPIKeyNotSet {
		t.Errorf("expected ErrAPIKeyNotSet, got %v", err)
	}
}

func TestNewClientWithKey(t *testing.T) {
	cli, err := NewClient(WithAPIKey("test-key"))
	if err != nil {
		t.Fatalf("expected no error with API key, got %v", err)
	}
	if cli == nil {
		t.Error("expected client instance, got nil")
	}
}
