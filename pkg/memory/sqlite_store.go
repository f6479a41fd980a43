package memory

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore keeps long-term memory as rows of a single table, ordered by
// arrival sequence.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens (and creates) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create memory directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS long_term_memory (
		seq INTEGER PRIMARY KEY,
		timestamp TEXT NOT NULL,
		content TEXT NOT NULL,
		importance REAL NOT NULL,
		tags TEXT NOT NULL
	);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Load reads all rows in sequence order. Any undecodable row fails the load.
func (s *SQLiteStore) Load() ([]Item, error) {
	rows, err := s.db.Query(`SELECT timestamp, content, importance, tags FROM long_term_memory ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to query memory: %w", err)
	}
	defer rows.Close()

	items := []Item{}
	for rows.Next() {
		var ts, content, tagsJSON string
		var importance float64
		if err := rows.Scan(&ts, &content, &importance, &tagsJSON); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreCorrupt, err)
		}
		parsed, err := parseTimestamp(ts)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreCorrupt, err)
		}
		var tags []string
		if err := json.Unmarshal([]byte(tagsJSON), &tags); err != nil {
			return nil, fmt.Errorf("%w: tags: %v", ErrStoreCorrupt, err)
		}
		items = append(items, NewItem(parsed, content, WithImportance(importance), WithTags(tags...)))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read memory rows: %w", err)
	}
	return items, nil
}

// Save replaces the table contents with items in one transaction.
func (s *SQLiteStore) Save(items []Item) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM long_term_memory`); err != nil {
		return fmt.Errorf("failed to clear memory: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO long_term_memory (seq, timestamp, content, importance, tags) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, it := range items {
		tags := it.Tags
		if tags == nil {
			tags = []string{}
		}
		tagsJSON, err := json.Marshal(tags)
		if err != nil {
			return fmt.Errorf("failed to marshal tags: %w", err)
		}
		if _, err := stmt.Exec(i, formatTimestamp(it.Timestamp), it.Content, it.Importance, string(tagsJSON)); err != nil {
			return fmt.Errorf("failed to insert memory item: %w", err)
		}
	}

	return tx.Commit()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
