package patternstore

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/context-foundry/core/pkg/model"
)

// GlobalDBPath returns the path to the cross-project pattern library shared
// by every workspace on the machine.
func GlobalDBPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, _ := os.UserHomeDir()
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "context-foundry", "patterns.db")
}

// ProjectDBPath returns the path to a workspace-local pattern library, used
// to override or extend the global one for a single project.
func ProjectDBPath(root string) string {
	return filepath.Join(root, ".state", "patterns.db")
}

// Store is a read-mostly SQLite-backed pattern library. GetPattern and
// ListByTaskKind are safe to call concurrently from workers; Seed is an offline
// ingestion path and must never be called while a task is running.
type Store struct {
	db   *sql.DB
	path string
	mu   sync.RWMutex
}

// Open opens (creating if absent) the pattern database at path.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("patternstore: create directory: %w", err)
	}

	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("patternstore: open: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("patternstore: enable WAL: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS patterns (
			task_kind   TEXT NOT NULL,
			pattern_id  TEXT NOT NULL,
			summary     TEXT NOT NULL,
			template    TEXT NOT NULL,
			usage_count INTEGER NOT NULL DEFAULT 0,
			last_used_at DATETIME,
			created_at  DATETIME NOT NULL,
			PRIMARY KEY (task_kind, pattern_id)
		)
	`)
	if err != nil {
		return fmt.Errorf("patternstore: migrate: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path this Store was opened against.
func (s *Store) Path() string {
	return s.path
}

// GetPattern is the pattern-library read-through: it looks up one known
// solution shape by task kind and pattern id. It never writes: a hit records
// no usage (usage changes only through Seed and RecordUsage), so concurrent
// lookups can never race each other or a concurrent ingestion pass.
func (s *Store) GetPattern(taskKind, patternID string) (*model.Pattern, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		p            model.Pattern
		lastUsedAt   sql.NullString
		createdAtStr string
	)

	row := s.db.QueryRow(`
		SELECT task_kind, pattern_id, summary, template, usage_count, last_used_at, created_at
		FROM patterns WHERE task_kind = ? AND pattern_id = ?
	`, taskKind, patternID)

	err := row.Scan(&p.TaskKind, &p.PatternID, &p.Summary, &p.Template, &p.UsageCount, &lastUsedAt, &createdAtStr)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("patternstore: get %s/%s: %w", taskKind, patternID, err)
	}

	if lastUsedAt.Valid {
		if t, perr := time.Parse(time.RFC3339, lastUsedAt.String); perr == nil {
			p.LastUsedAt = t
		}
	}
	if t, perr := time.Parse(time.RFC3339, createdAtStr); perr == nil {
		p.CreatedAt = t
	}

	return &p, true, nil
}

// ListByTaskKind returns every pattern registered for a task kind, most
// recently created first. cmd/foundry's scouting collaborator uses it to
// list known prior art for a scout topic.
func (s *Store) ListByTaskKind(taskKind string) ([]*model.Pattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT task_kind, pattern_id, summary, template, usage_count, last_used_at, created_at
		FROM patterns WHERE task_kind = ?
		ORDER BY created_at DESC
	`, taskKind)
	if err != nil {
		return nil, fmt.Errorf("patternstore: list %s: %w", taskKind, err)
	}
	defer rows.Close()

	var out []*model.Pattern
	for rows.Next() {
		var (
			p            model.Pattern
			lastUsedAt   sql.NullString
			createdAtStr string
		)
		if err := rows.Scan(&p.TaskKind, &p.PatternID, &p.Summary, &p.Template, &p.UsageCount, &lastUsedAt, &createdAtStr); err != nil {
			return nil, fmt.Errorf("patternstore: scan: %w", err)
		}
		if lastUsedAt.Valid {
			if t, perr := time.Parse(time.RFC3339, lastUsedAt.String); perr == nil {
				p.LastUsedAt = t
			}
		}
		if t, perr := time.Parse(time.RFC3339, createdAtStr); perr == nil {
			p.CreatedAt = t
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// Seed inserts or replaces a pattern. This is the library's only write path;
// it is an offline/ingestion operation (e.g. a "foundry patterns import"
// command) and must not be invoked from Architecting or Building.
func (s *Store) Seed(p model.Pattern) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}

	var lastUsed interface{}
	if !p.LastUsedAt.IsZero() {
		lastUsed = p.LastUsedAt.UTC().Format(time.RFC3339)
	}

	_, err := s.db.Exec(`
		INSERT INTO patterns (task_kind, pattern_id, summary, template, usage_count, last_used_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(task_kind, pattern_id) DO UPDATE SET
			summary = excluded.summary,
			template = excluded.template,
			usage_count = excluded.usage_count,
			last_used_at = excluded.last_used_at
	`, p.TaskKind, p.PatternID, p.Summary, p.Template, p.UsageCount, lastUsed, p.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("patternstore: seed %s/%s: %w", p.TaskKind, p.PatternID, err)
	}
	return nil
}

// RecordUsage bumps a pattern's usage_count and last_used_at. Like Seed,
// this is ingestion-path bookkeeping run between tasks, not during one.
func (s *Store) RecordUsage(taskKind, patternID string, when time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`
		UPDATE patterns SET usage_count = usage_count + 1, last_used_at = ?
		WHERE task_kind = ? AND pattern_id = ?
	`, when.UTC().Format(time.RFC3339), taskKind, patternID)
	if err != nil {
		return fmt.Errorf("patternstore: record usage %s/%s: %w", taskKind, patternID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("patternstore: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("patternstore: pattern not found: %s/%s", taskKind, patternID)
	}
	return nil
}
