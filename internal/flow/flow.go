package flow

import (
	"context"
	"log/slog"
	"time"

	"github.com/aide-bot/aide/internal/content"
	"github.com/aide-bot/aide/internal/genai"
	"github.com/aide-bot/aide/internal/messaging"
	"github.com/aide-bot/aide/internal/models"
	"github.com/aide-bot/aide/internal/safety"
	"github.com/aide-bot/aide/internal/store"
	gocache "github.com/patrickmn/go-cache"
)

// summaryCacheTTL bounds how long generated check-in and progress
// summaries are reused.
const summaryCacheTTL = 24 * time.Hour

// Flows bundles the controllers for every conversational flow. All
// controllers share the same dependencies and operate on Sessions.
type Flows struct {
	msg       messaging.Service
	store     store.Store
	genai     genai.ClientInterface
	gate      *safety.Gate
	catalog   *content.Catalog
	sessions  *Sessions
	summaries *gocache.Cache

	// now is replaceable in tests.
	now func() time.Time
}

// New creates the flow controllers.
func New(msg messaging.Service, st store.Store, client genai.ClientInterface, gate *safety.Gate, catalog *content.Catalog, sessions *Sessions) *Flows {
	return &Flows{
		msg:       msg,
		store:     st,
		genai:     client,
		gate:      gate,
		catalog:   catalog,
		sessions:  sessions,
		summaries: gocache.New(summaryCacheTTL, time.Hour),
		now:       time.Now,
	}
}

// Sessions exposes the session manager to the router.
func (f *Flows) Sessions() *Sessions { return f.sessions }

// send delivers a message to the session's chat, logging failures.
func (f *Flows) send(ctx context.Context, sess *Session, text string, kb models.Keyboard) {
	if _, err := f.msg.SendMessage(ctx, sess.Profile.ChatID, text, kb); err != nil {
		slog.Error("Flow message send failed", "error", err, "userID", sess.Profile.UserID)
	}
}

// menuButton is appended to terminal messages so the user always has a way
// back.
func menuButton() []models.Button {
	return models.Row(models.Button{Label: "📱 Главное меню", Data: models.Cmd(models.CmdMenu, "show")})
}

// appendRow persists a record for the session's user.
func (f *Flows) appendRow(ctx context.Context, sess *Session, sheet string, fields map[string]string) {
	rec := models.Record{
		Sheet:    sheet,
		UserID:   sess.Profile.UserID,
		Username: sess.Profile.Username,
		Fields:   fields,
	}
	if err := f.store.AppendRow(ctx, rec); err != nil {
		slog.Error("Flow record append failed", "error", err, "sheet", sheet, "userID", sess.Profile.UserID)
	}
}

// userName returns the display name used in message templates.
func userName(sess *Session) string {
	if sess.Profile.Name != "" {
		return sess.Profile.Name
	}
	return "Дорогой друг"
}
