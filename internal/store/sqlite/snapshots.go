// Package sqlite persists ledger snapshots to SQLite. One row per mode
// holds the full JSON aggregate; saves happen after every ledger
// mutation and loads at startup and mode switch.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"tradesim/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// StoreConfig configures the snapshot store.
type StoreConfig struct {
	DBPath string // path to SQLite database file, e.g. "data/ledger.db"
}

// Store is a single-writer SQLite snapshot store implementing
// model.SnapshotStore.
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// New opens the snapshot database with WAL mode and creates the schema.
func New(cfg StoreConfig) (*Store, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single writer keeps snapshot saves strictly ordered.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened ledger store at %s", cfg.DBPath)
	return &Store{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS ledger_snapshots (
			mode       TEXT PRIMARY KEY,
			data       TEXT    NOT NULL,
			updated_at INTEGER NOT NULL
		);
	`)
	return err
}

// Save persists the full ledger snapshot for a mode, replacing any
// previous row. PAPER and REAL rows never collide.
func (s *Store) Save(mode string, snap *model.LedgerSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO ledger_snapshots (mode, data, updated_at) VALUES (?, ?, ?)`,
		mode, string(data), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("save snapshot %s: %w", mode, err)
	}
	return nil
}

// Load returns the last saved snapshot for a mode, or nil, nil when no
// snapshot exists yet.
func (s *Store) Load(mode string) (*model.LedgerSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var data string
	err := s.db.QueryRow(
		`SELECT data FROM ledger_snapshots WHERE mode = ?`, mode,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", mode, err)
	}

	var snap model.LedgerSnapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot %s: %w", mode, err)
	}
	return &snap, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
