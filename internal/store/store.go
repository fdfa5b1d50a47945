// Package store provides storage backends for Aide.
//
// Records are append-only rows grouped into sheets; user profiles are kept
// separately so onboarding survives restarts. SQLite and PostgreSQL
// implementations share one interface; an in-memory store backs tests.
package store

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aide-bot/aide/internal/models"
	"github.com/google/uuid"
)

// ErrNoRows is returned when a lookup or patch matches nothing.
var ErrNoRows = errors.New("store: no matching rows")

// Store is the persistence surface used by flows and the safety gate.
type Store interface {
	// AppendRow appends a record to its sheet. ID and CreatedAt are filled
	// in when empty.
	AppendRow(ctx context.Context, rec models.Record) error
	// RowsByUser returns a user's rows in a sheet, oldest first.
	RowsByUser(ctx context.Context, sheet string, userID int64) ([]models.Record, error)
	// PatchLatestRow merges fields into the newest of the user's rows in a
	// sheet that satisfies match. Existing fields not named in the patch
	// are preserved. Returns ErrNoRows when nothing matches.
	PatchLatestRow(ctx context.Context, sheet string, userID int64, match func(models.Record) bool, fields map[string]string) error
	// ListUsers returns the distinct user ids that have rows in a sheet.
	ListUsers(ctx context.Context, sheet string) ([]int64, error)
	// SaveProfile upserts a user profile.
	SaveProfile(ctx context.Context, p models.Profile) error
	// GetProfile loads a profile, ErrNoRows when absent.
	GetProfile(ctx context.Context, userID int64) (models.Profile, error)
	// Close releases the backing resources.
	Close() error
}

// Opts holds store configuration.
type Opts struct {
	DSN    string
	Driver string
}

// Option configures a store.
type Option func(*Opts)

// WithSQLiteDSN configures an SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn; o.Driver = "sqlite3" }
}

// WithPostgresDSN configures a PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn; o.Driver = "postgres" }
}

// DetectDSNType reports "postgres" for PostgreSQL connection strings and
// "sqlite" for anything else (file paths).
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// stampRecord fills generated fields on an appended record.
func stampRecord(rec *models.Record) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
}

// mergeFields overlays patch onto base, preserving untouched keys.
func mergeFields(base, patch map[string]string) map[string]string {
	merged := make(map[string]string, len(base)+len(patch))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range patch {
		merged[k] = v
	}
	return merged
}

// InMemoryStore keeps everything in process memory. Used in tests and when
// no DSN is configured.
type InMemoryStore struct {
	mu       sync.Mutex
	records  []models.Record
	profiles map[int64]models.Profile
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{profiles: make(map[int64]models.Profile)}
}

func (s *InMemoryStore) AppendRow(ctx context.Context, rec models.Record) error {
	stampRecord(&rec)
	rec.Fields = mergeFields(nil, rec.Fields)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *InMemoryStore) RowsByUser(ctx context.Context, sheet string, userID int64) ([]models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Record
	for _, r := range s.records {
		if r.Sheet == sheet && r.UserID == userID {
			r.Fields = mergeFields(nil, r.Fields)
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryStore) PatchLatestRow(ctx context.Context, sheet string, userID int64, match func(models.Record) bool, fields map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.records) - 1; i >= 0; i-- {
		r := s.records[i]
		if r.Sheet != sheet || r.UserID != userID {
			continue
		}
		if match != nil && !match(r) {
			continue
		}
		s.records[i].Fields = mergeFields(r.Fields, fields)
		return nil
	}
	return ErrNoRows
}

func (s *InMemoryStore) ListUsers(ctx context.Context, sheet string) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[int64]bool)
	var out []int64
	for _, r := range s.records {
		if r.Sheet == sheet && !seen[r.UserID] {
			seen[r.UserID] = true
			out = append(out, r.UserID)
		}
	}
	return out, nil
}

func (s *InMemoryStore) SaveProfile(ctx context.Context, p models.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.UserID] = p
	return nil
}

func (s *InMemoryStore) GetProfile(ctx context.Context, userID int64) (models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	if !ok {
		return models.Profile{}, ErrNoRows
	}
	return p, nil
}

func (s *InMemoryStore) Close() error { return nil }
