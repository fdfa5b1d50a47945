// Package genai integrates OpenAI-based generation for Aide.
//
// It provides chat completions for the safety slow path, the other-problem
// classifier and the summary features, plus voice note transcription. All
// calls retry with exponential backoff before giving up.
package genai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Errors returned by the client.
var (
	ErrAPIKeyNotSet      = errors.New("OPENAI_API_KEY not set")
	ErrNoChoicesReturned = errors.New("no choices returned from completion")
)

// Default generation parameters.
const (
	DefaultModel      = openai.ChatModelGPT4oMini
	DefaultAttempts   = 3
	DefaultAttemptTTL = 60 * time.Second
	backoffBase       = 2 * time.Second
)

// ClientInterface is the generation surface the rest of Aide depends on.
type ClientInterface interface {
	// GeneratePrompt produces a completion for a system+user prompt pair.
	GeneratePrompt(ctx context.Context, system, user string) (string, error)
	// GenerateStructured produces a completion constrained to a JSON schema
	// and returns the raw JSON string.
	GenerateStructured(ctx context.Context, system, user, schemaName string, schema map[string]any) (string, error)
	// TranscribeAudio transcribes a voice note into text.
	TranscribeAudio(ctx context.Context, filename string, audio io.Reader) (string, error)
}

// chatService abstracts chat completion creation for testability.
type chatService interface {
	Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error)
}

// audioService abstracts transcription creation for testability.
type audioService interface {
	Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error)
}

// Opts holds configuration for the client.
type Opts struct {
	APIKey   string
	Model    openai.ChatModel
	Attempts int
}

// Option configures the client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel overrides the default chat model.
func WithModel(model openai.ChatModel) Option {
	return func(o *Opts) { o.Model = model }
}

// WithAttempts overrides the retry attempt count.
func WithAttempts(n int) Option {
	return func(o *Opts) { o.Attempts = n }
}

// Client implements ClientInterface on the OpenAI API.
type Client struct {
	chat     chatService
	audio    audioService
	model    openai.ChatModel
	attempts int
}

// NewClient creates a client. The API key comes from options or the
// OPENAI_API_KEY environment variable.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		slog.Error("GenAI client creation failed: API key not set")
		return nil, ErrAPIKeyNotSet
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = DefaultAttempts
	}
	api := openai.NewClient(option.WithAPIKey(cfg.APIKey))
	slog.Debug("GenAI client created", "model", cfg.Model, "attempts", cfg.Attempts)
	return &Client{
		chat:     &openaiChatService{client: api},
		audio:    &openaiAudioService{client: api},
		model:    cfg.Model,
		attempts: cfg.Attempts,
	}, nil
}

// openaiChatService adapts the real API client to chatService.
type openaiChatService struct {
	client openai.Client
}

func (s *openaiChatService) Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	resp, err := s.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return openai.ChatCompletion{}, err
	}
	return *resp, nil
}

// openaiAudioService adapts the real API client to audioService.
type openaiAudioService struct {
	client openai.Client
}

func (s *openaiAudioService) Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error) {
	resp, err := s.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		Model:    openai.AudioModelWhisper1,
		File:     openai.File(audio, filename, "audio/ogg"),
		Language: openai.String("ru"),
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// GeneratePrompt produces a completion for a system+user prompt pair.
func (c *Client) GeneratePrompt(ctx context.Context, system, user string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
	}
	return c.completeWithRetry(ctx, params)
}

// GenerateStructured produces a completion constrained to a JSON schema.
func (c *Client) GenerateStructured(ctx context.Context, system, user, schemaName string, schema map[string]any) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   schemaName,
					Schema: schema,
					Strict: openai.Bool(true),
				},
			},
		},
	}
	return c.completeWithRetry(ctx, params)
}

// TranscribeAudio transcribes a voice note into text.
func (c *Client) TranscribeAudio(ctx context.Context, filename string, audio io.Reader) (string, error) {
	slog.Debug("GenAI TranscribeAudio", "filename", filename)
	text, err := c.audio.Transcribe(ctx, filename, audio)
	if err != nil {
		slog.Error("GenAI TranscribeAudio failed", "error", err, "filename", filename)
		return "", fmt.Errorf("transcription failed: %w", err)
	}
	slog.Debug("GenAI TranscribeAudio succeeded", "chars", len(text))
	return text, nil
}

// completeWithRetry runs the completion with exponential backoff (2s, 4s, 8s)
// and a per-attempt timeout.
func (c *Client) completeWithRetry(ctx context.Context, params openai.ChatCompletionNewParams) (string, error) {
	var lastErr error
	delay := backoffBase
	for attempt := 1; attempt <= c.attempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, DefaultAttemptTTL)
		resp, err := c.chat.Create(attemptCtx, params)
		cancel()
		if err == nil {
			if len(resp.Choices) == 0 {
				slog.Error("GenAI completion returned no choices")
				return "", ErrNoChoicesReturned
			}
			slog.Debug("GenAI completion succeeded", "attempt", attempt)
			return resp.Choices[0].Message.Content, nil
		}
		lastErr = err
		slog.Warn("GenAI completion attempt failed", "attempt", attempt, "error", err)
		if attempt == c.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return "", fmt.Errorf("completion failed after %d attempts: %w", c.attempts, lastErr)
}
