// Package messaging provides the message delivery abstraction for Aide.
package messaging

import (
	"context"
	"io"

	"github.com/aide-bot/aide/internal/models"
)

// Service defines a pluggable message delivery abstraction.
// It sends outbound messages with optional inline keyboards and exposes a
// channel of normalized inbound updates.
type Service interface {
	// Start begins background processing (long polling for updates).
	Start(ctx context.Context) error

	// Stop stops background processing and cleans up resources.
	Stop()

	// SendMessage sends a message to a chat, returning the sent message id.
	SendMessage(ctx context.Context, chatID int64, text string, keyboard models.Keyboard) (int, error)

	// EditMessage replaces the text and keyboard of a previously sent message.
	EditMessage(ctx context.Context, chatID int64, messageID int, text string, keyboard models.Keyboard) error

	// AnswerCallback acknowledges an inline button press, optionally with a
	// short notification text.
	AnswerCallback(ctx context.Context, callbackID, text string) error

	// Updates returns the channel of normalized inbound updates.
	Updates() <-chan models.Update

	// DownloadVoice fetches the audio payload of a voice note.
	DownloadVoice(ctx context.Context, fileID string) (io.ReadCloser, error)
}
