package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// Store handles SQLite persistence.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the database and runs migrations.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if path == ":memory:" {
		// every pooled connection would get its own empty database
		db.SetMaxOpenConns(1)
	}
	// WAL mode for better concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS save_slots (
			name       TEXT PRIMARY KEY,
			data       TEXT NOT NULL,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS prefs (
			key   TEXT PRIMARY KEY,
			value INTEGER NOT NULL
		);
	`)
	return err
}

// SaveSlot upserts a save record.
func (s *Store) SaveSlot(ctx context.Context, name string, data []byte) error {
	if err := checkName(name); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO save_slots (name, data, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(name) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
	`, name, string(data))
	if err != nil {
		return fmt.Errorf("save slot %s: %w", name, err)
	}
	log.Debug().Str("slot", name).Str("size", humanize.Bytes(uint64(len(data)))).Msg("slot saved")
	return nil
}

// LoadSlot retrieves a save record.
func (s *Store) LoadSlot(ctx context.Context, name string) ([]byte, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	var data string
	err := s.db.QueryRowContext(ctx, "SELECT data FROM save_slots WHERE name = ?", name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load slot %s: %w", name, err)
	}
	return []byte(data), nil
}

// ListSlots returns every slot ordered by name.
func (s *Store) ListSlots(ctx context.Context) ([]SlotInfo, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name, length(data), updated_at FROM save_slots ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []SlotInfo
	for rows.Next() {
		var si SlotInfo
		if err := rows.Scan(&si.Name, &si.Size, &si.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, si)
	}
	return result, rows.Err()
}

// DeleteSlot removes a save record. Deleting a missing slot is not an error.
func (s *Store) DeleteSlot(ctx context.Context, name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, "DELETE FROM save_slots WHERE name = ?", name)
	return err
}

// GetInt reads an integer preference.
func (s *Store) GetInt(ctx context.Context, key string) (int, error) {
	var v int
	err := s.db.QueryRowContext(ctx, "SELECT value FROM prefs WHERE key = ?", key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	return v, err
}

// SetInt upserts an integer preference.
func (s *Store) SetInt(ctx context.Context, key string, value int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO prefs (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
