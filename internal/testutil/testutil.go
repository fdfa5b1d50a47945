// Package testutil provides common test doubles and helpers for Aide tests.
package testutil

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/aide-bot/aide/internal/models"
)

// SentMessage records one outbound message.
type SentMessage struct {
	ChatID   int64
	Text     string
	Keyboard models.Keyboard
}

// EditedMessage records one message edit.
type EditedMessage struct {
	ChatID    int64
	MessageID int
	Text      string
	Keyboard  models.Keyboard
}

// MockMessenger implements messaging.Service and records everything sent
// through it.
type MockMessenger struct {
	mu      sync.Mutex
	Sent    []SentMessage
	Edits   []EditedMessage
	Answers []string
	SendErr error

	updates chan models.Update
	nextID  int

	// VoiceData is returned by DownloadVoice when set.
	VoiceData string
}

// NewMockMessenger creates a recording messenger.
func NewMockMessenger() *MockMessenger {
	return &MockMessenger{updates: make(chan models.Update, 16)}
}

func (m *MockMessenger) Start(ctx context.Context) error { return nil }

func (m *MockMessenger) Stop() {}

func (m *MockMessenger) SendMessage(ctx context.Context, chatID int64, text string, keyboard models.Keyboard) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SendErr != nil {
		return 0, m.SendErr
	}
	m.Sent = append(m.Sent, SentMessage{ChatID: chatID, Text: text, Keyboard: keyboard})
	m.nextID++
	return m.nextID, nil
}

func (m *MockMessenger) EditMessage(ctx context.Context, chatID int64, messageID int, text string, keyboard models.Keyboard) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Edits = append(m.Edits, EditedMessage{ChatID: chatID, MessageID: messageID, Text: text, Keyboard: keyboard})
	return nil
}

func (m *MockMessenger) AnswerCallback(ctx context.Context, callbackID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Answers = append(m.Answers, text)
	return nil
}

func (m *MockMessenger) Updates() <-chan models.Update { return m.updates }

func (m *MockMessenger) DownloadVoice(ctx context.Context, fileID string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(m.VoiceData)), nil
}

// Push feeds an inbound update into the mock's channel.
func (m *MockMessenger) Push(u models.Update) { m.updates <- u }

// LastSent returns the most recently sent message, failing the test when
// nothing was sent.
func (m *MockMessenger) LastSent(t *testing.T) SentMessage {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Sent) == 0 {
		t.Fatal("no messages were sent")
	}
	return m.Sent[len(m.Sent)-1]
}

// SentCount returns the number of sent messages.
func (m *MockMessenger) SentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Sent)
}

// Reset clears the recorded traffic.
func (m *MockMessenger) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = nil
	m.Edits = nil
	m.Answers = nil
}

// AssertLastContains fails the test when the most recent message does not
// contain the given substring.
func (m *MockMessenger) AssertLastContains(t *testing.T, substr string) {
	t.Helper()
	last := m.LastSent(t)
	if !strings.Contains(last.Text, substr) {
		t.Errorf("last message %q does not contain %q", last.Text, substr)
	}
}

// MockGenAI implements genai.ClientInterface with scripted responses.
type MockGenAI struct {
	PromptResponse     string
	PromptErr          error
	StructuredResponse string
	StructuredErr      error
	TranscribeResponse string
	TranscribeErr      error

	mu              sync.Mutex
	PromptCalls     []string
	StructuredCalls []string
}

func (m *MockGenAI) GeneratePrompt(ctx context.Context, system, user string) (string, error) {
	m.mu.Lock()
	m.PromptCalls = append(m.PromptCalls, user)
	m.mu.Unlock()
	if m.PromptErr != nil {
		return "", m.PromptErr
	}
	return m.PromptResponse, nil
}

func (m *MockGenAI) GenerateStructured(ctx context.Context, system, user, schemaName string, schema map[string]any) (string, error) {
	m.mu.Lock()
	m.StructuredCalls = append(m.StructuredCalls, user)
	m.mu.Unlock()
	if m.StructuredErr != nil {
		return "", m.StructuredErr
	}
	return m.StructuredResponse, nil
}

func (m *MockGenAI) TranscribeAudio(ctx context.Context, filename string, audio io.Reader) (string, error) {
	if m.TranscribeErr != nil {
		return "", m.TranscribeErr
	}
	return m.TranscribeResponse, nil
}

// SafeVerdictJSON is a structured-output payload that marks text as safe.
func SafeVerdictJSON() string {
	return `{"crisis_detected": false, "crisis_type": "", "confidence": 0.0, "reasoning": ""}`
}

// CrisisVerdictJSON builds a structured-output payload flagging a crisis.
func CrisisVerdictJSON(crisisType string, confidence float64) string {
	return fmt.Sprintf(`{"crisis_detected": true, "crisis_type": %q, "confidence": %g, "reasoning": "test"}`, crisisType, confidence)
}
