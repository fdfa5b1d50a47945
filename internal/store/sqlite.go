// Package store provides storage backends for Aide.
//
// This file implements the SQLite-backed store.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/aide-bot/aide/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore persists records and profiles in an SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN is a file path; missing parent directories are created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	if cfg.DSN == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(cfg.DSN)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", cfg.DSN)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) AppendRow(ctx context.Context, rec models.Record) error {
	stampRecord(&rec)
	fieldsJSON, err := json.Marshal(rec.Fields)
	if err != nil {
		return fmt.Errorf("failed to marshal record fields: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO records (id, sheet, user_id, username, fields, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Sheet, rec.UserID, rec.Username, string(fieldsJSON), rec.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore AppendRow failed", "error", err, "sheet", rec.Sheet, "userID", rec.UserID)
		return fmt.Errorf("failed to insert record into %s: %w", rec.Sheet, err)
	}
	slog.Debug("SQLiteStore AppendRow succeeded", "sheet", rec.Sheet, "userID", rec.UserID)
	return nil
}

func (s *SQLiteStore) RowsByUser(ctx context.Context, sheet string, userID int64) ([]models.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, sheet, user_id, username, fields, created_at FROM records WHERE sheet = ? AND user_id = ? ORDER BY created_at ASC`,
		sheet, userID)
	if err != nil {
		slog.Error("SQLiteStore RowsByUser query failed", "error", err, "sheet", sheet)
		return nil, fmt.Errorf("failed to query %s rows: %w", sheet, err)
	}
	defer rows.Close()
	return scanRecords(rows, sheet)
}

func (s *SQLiteStore) PatchLatestRow(ctx context.Context, sheet string, userID int64, match func(models.Record) bool, fields map[string]string) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, sheet, user_id, username, fields, created_at FROM records WHERE sheet = ? AND user_id = ? ORDER BY created_at DESC`,
		sheet, userID)
	if err != nil {
		slog.Error("SQLiteStore PatchLatestRow query failed", "error", err, "sheet", sheet)
		return fmt.Errorf("failed to query %s rows for patch: %w", sheet, err)
	}
	candidates, err := scanRecords(rows, sheet)
	rows.Close()
	if err != nil {
		return err
	}
	for _, rec := range candidates {
		if match != nil && !match(rec) {
			continue
		}
		merged := mergeFields(rec.Fields, fields)
		mergedJSON, err := json.Marshal(merged)
		if err != nil {
			return fmt.Errorf("failed to marshal patched fields: %w", err)
		}
		if _, err := s.db.ExecContext(ctx, `UPDATE records SET fields = ? WHERE id = ?`, string(mergedJSON), rec.ID); err != nil {
			slog.Error("SQLiteStore PatchLatestRow update failed", "error", err, "id", rec.ID)
			return fmt.Errorf("failed to patch record %s: %w", rec.ID, err)
		}
		slog.Debug("SQLiteStore PatchLatestRow succeeded", "sheet", sheet, "userID", userID, "id", rec.ID)
		return nil
	}
	return ErrNoRows
}

func (s *SQLiteStore) ListUsers(ctx context.Context, sheet string) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT user_id FROM records WHERE sheet = ?`, sheet)
	if err != nil {
		slog.Error("SQLiteStore ListUsers query failed", "error", err, "sheet", sheet)
		return nil, fmt.Errorf("failed to list users in %s: %w", sheet, err)
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveProfile(ctx context.Context, p models.Profile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO profiles (user_id, data, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		p.UserID, string(data), time.Now().UTC())
	if err != nil {
		slog.Error("SQLiteStore SaveProfile failed", "error", err, "userID", p.UserID)
		return fmt.Errorf("failed to save profile for %d: %w", p.UserID, err)
	}
	return nil
}

func (s *SQLiteStore) GetProfile(ctx context.Context, userID int64) (models.Profile, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM profiles WHERE user_id = ?`, userID).Scan(&data)
	if err == sql.ErrNoRows {
		return models.Profile{}, ErrNoRows
	}
	if err != nil {
		slog.Error("SQLiteStore GetProfile failed", "error", err, "userID", userID)
		return models.Profile{}, fmt.Errorf("failed to load profile for %d: %w", userID, err)
	}
	var p models.Profile
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return models.Profile{}, fmt.Errorf("failed to unmarshal profile for %d: %w", userID, err)
	}
	return p, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
