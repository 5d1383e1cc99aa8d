package outputformats

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"sigview/types"
)

// SQLiteFormatter implements the EventFormatter interface for SQLite storage
type SQLiteFormatter struct {
	db         *sql.DB
	sessionUID string
	binary     BinaryInfo
	mu         sync.RWMutex
}

// NewSQLiteFormatter creates a new SQLite formatter
func NewSQLiteFormatter(dbPath string, binary BinaryInfo, sessionUID string) (*SQLiteFormatter, error) {
	// Create db directory if needed
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create db directory: %v", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %v", err)
	}

	// Initialize schema
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %v", err)
	}

	return &SQLiteFormatter{
		db:         db,
		sessionUID: sessionUID,
		binary:     binary,
	}, nil
}

// Initialize schema
func initSchema(db *sql.DB) error {
	schema := `
	-- Function renames
	CREATE TABLE IF NOT EXISTS renames (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_uid TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		binary_path TEXT NOT NULL,
		binary_hash TEXT,
		binary_arch TEXT,
		address INTEGER NOT NULL,
		old_name TEXT,
		new_name TEXT NOT NULL,
		library TEXT,
		signature TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_renames_session ON renames(session_uid);
	CREATE INDEX IF NOT EXISTS idx_renames_hash ON renames(binary_hash);
	CREATE INDEX IF NOT EXISTS idx_renames_address ON renames(address);
	CREATE INDEX IF NOT EXISTS idx_renames_library ON renames(library);

	-- Per-run summaries
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_uid TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		binary_path TEXT NOT NULL,
		binary_hash TEXT,
		signatures_applied INTEGER,
		parse_failures INTEGER,
		functions_scanned INTEGER,
		renamed INTEGER,
		dropped_unknown_addr INTEGER,
		dropped_named INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_runs_session ON runs(session_uid);
	CREATE INDEX IF NOT EXISTS idx_runs_hash ON runs(binary_hash);
	`

	_, err := db.Exec(schema)
	return err
}

func (f *SQLiteFormatter) Initialize() error {
	return nil
}

func (f *SQLiteFormatter) Close() error {
	return f.db.Close()
}

func (f *SQLiteFormatter) FormatRename(ev *types.RenameEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	_, err := f.db.Exec(`
		INSERT INTO renames (
			session_uid, timestamp, binary_path, binary_hash, binary_arch,
			address, old_name, new_name, library, signature
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.sessionUID, ev.Timestamp, f.binary.Path, f.binary.MD5Hash, f.binary.Arch,
		int64(ev.Addr), ev.OldName, ev.NewName, ev.Library, ev.SigPath)
	if err != nil {
		return fmt.Errorf("failed to insert rename: %v", err)
	}
	return nil
}

func (f *SQLiteFormatter) FormatSummary(stats types.RunStats) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	_, err := f.db.Exec(`
		INSERT INTO runs (
			session_uid, timestamp, binary_path, binary_hash,
			signatures_applied, parse_failures, functions_scanned,
			renamed, dropped_unknown_addr, dropped_named
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.sessionUID, time.Now(), f.binary.Path, f.binary.MD5Hash,
		stats.SignaturesApplied, stats.ParseFailures, stats.FunctionsScanned,
		stats.Renamed, stats.DroppedUnknownAddr, stats.DroppedNamed)
	if err != nil {
		return fmt.Errorf("failed to insert run summary: %v", err)
	}
	return nil
}
