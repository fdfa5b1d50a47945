package bot

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/aide-bot/aide/internal/content"
	"github.com/aide-bot/aide/internal/flow"
	"github.com/aide-bot/aide/internal/genai"
	"github.com/aide-bot/aide/internal/messaging"
	"github.com/aide-bot/aide/internal/safety"
	"github.com/aide-bot/aide/internal/scheduler"
	"github.com/aide-bot/aide/internal/store"
)

// Content file names inside the content directory.
const (
	ProtocolMapFile   = "protocol_and_interventions_map.md"
	InterventionsFile = "interventions.md"
)

// Opts holds bot-level configuration.
type Opts struct {
	ContentDir      string
	CheckinSchedule string
}

// Option configures the bot.
type Option func(*Opts)

// WithContentDir sets the directory holding the markdown content catalog.
func WithContentDir(dir string) Option {
	return func(o *Opts) { o.ContentDir = dir }
}

// WithCheckinSchedule sets the cron expression for the check-in sweep.
func WithCheckinSchedule(expr string) Option {
	return func(o *Opts) { o.CheckinSchedule = expr }
}

// Run assembles every module and serves updates until ctx is canceled.
func Run(ctx context.Context, msgOpts []messaging.Option, storeOpts []store.Option, genaiOpts []genai.Option, botOpts []Option) error {
	cfg := Opts{CheckinSchedule: scheduler.DefaultCheckinSchedule}
	for _, opt := range botOpts {
		opt(&cfg)
	}

	st, err := newStore(storeOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer st.Close()

	var client genai.ClientInterface
	if c, err := genai.NewClient(genaiOpts...); err != nil {
		slog.Warn("GenAI client unavailable, running with keyword-only safety and static summaries", "error", err)
	} else {
		client = c
	}

	catalog, err := content.NewCatalog(
		filepath.Join(cfg.ContentDir, ProtocolMapFile),
		filepath.Join(cfg.ContentDir, InterventionsFile),
	)
	if err != nil {
		return fmt.Errorf("failed to load content catalog: %w", err)
	}

	msg, err := messaging.NewTelegramService(msgOpts...)
	if err != nil {
		return fmt.Errorf("failed to create Telegram service: %w", err)
	}
	if err := msg.Start(ctx); err != nil {
		return fmt.Errorf("failed to start Telegram service: %w", err)
	}
	defer msg.Stop()

	gate := safety.NewGate(client, st)
	sessions := flow.NewSessions(st)
	flows := flow.New(msg, st, client, gate, catalog, sessions)

	sched := scheduler.NewScheduler()
	if err := sched.AddJob(cfg.CheckinSchedule, func() { flows.SweepAndOffer(context.Background()) }); err != nil {
		return fmt.Errorf("failed to schedule check-in sweep: %w", err)
	}
	defer sched.Stop()

	slog.Info("Aide is up", "checkin_schedule", cfg.CheckinSchedule)
	NewRouter(msg, flows, gate, client, st).Run(ctx)
	return nil
}

// newStore builds the configured store backend. No options means the
// in-memory store, which loses everything on restart.
func newStore(opts []store.Option) (store.Store, error) {
	var cfg store.Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	switch cfg.Driver {
	case "postgres":
		return store.NewPostgresStore(opts...)
	case "sqlite3":
		return store.NewSQLiteStore(opts...)
	default:
		slog.Warn("No database configured, using in-memory store")
		return store.NewInMemoryStore(), nil
	}
}
