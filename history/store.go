// Package history records VPN sessions in a local SQLite database so past
// connections can be listed and inspected after the fact.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/yllada/campus-vpn/common"
	_ "modernc.org/sqlite"
)

// DefaultKeep is how many sessions the database retains when pruned.
const DefaultKeep = 200

// Record is one session, open or finished.
type Record struct {
	// ID uniquely identifies the session row.
	ID string
	// Gateway is the VPN gateway the session targeted.
	Gateway string
	// StartedAt is when the connection attempt began.
	StartedAt time.Time
	// ConnectedAt is when the tunnel came up, nil if it never did.
	ConnectedAt *time.Time
	// EndedAt is when the session reached a resting state, nil while open.
	EndedAt *time.Time
	// Outcome is a short stable word: "disconnected", "cancelled",
	// "interrupted", or a failure code. Empty while the session is open.
	Outcome string
	// Detail is the free-text failure detail, empty otherwise.
	Detail string
}

// Open creates or opens the history database at path and runs migrations.
// WAL mode keeps a listing command readable while a session is being written.
func Open(path string) (*Store, error) {
	if !strings.HasPrefix(path, "file:") && path != ":memory:" {
		if err := common.EnsureDir(filepath.Dir(path)); err != nil {
			return nil, common.WrapError(err, "creating history directory")
		}
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	db, err := sql.Open("sqlite", path+sep+"_pragma=synchronous(normal)")
	if err != nil {
		return nil, common.WrapError(err, "opening history database")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, common.WrapError(err, fmt.Sprintf("history setup (%s)", pragma))
		}
	}
	s := &Store{db: db}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, common.WrapError(err, "migrating history database")
	}
	return s, nil
}

// Store persists session records. Safe for concurrent use.
type Store struct {
	db *sql.DB
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	gateway TEXT NOT NULL,
	started_at DATETIME NOT NULL,
	connected_at DATETIME NULL,
	ended_at DATETIME NULL,
	outcome TEXT NOT NULL DEFAULT '',
	detail TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at DESC);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// Begin inserts an open session row.
func (s *Store) Begin(ctx context.Context, id, gateway string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, gateway, started_at) VALUES (?, ?, ?)`,
		id, gateway, at.UTC())
	return err
}

// MarkConnected stamps the moment the tunnel came up.
func (s *Store) MarkConnected(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET connected_at = ? WHERE id = ?`,
		at.UTC(), id)
	return err
}

// Finish closes a session row with its outcome.
func (s *Store) Finish(ctx context.Context, id, outcome, detail string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET ended_at = ?, outcome = ?, detail = ? WHERE id = ?`,
		at.UTC(), outcome, detail, id)
	return err
}

// CloseInterrupted marks every still-open session as interrupted. Rows can
// only be left open by a crash or kill; this runs once at startup.
func (s *Store) CloseInterrupted(ctx context.Context, at time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET ended_at = ?, outcome = 'interrupted' WHERE ended_at IS NULL`,
		at.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Recent returns up to limit sessions, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, gateway, started_at, connected_at, ended_at, outcome, detail
FROM sessions
ORDER BY started_at DESC, id DESC
LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			r         Record
			connected sql.NullTime
			ended     sql.NullTime
		)
		if err := rows.Scan(&r.ID, &r.Gateway, &r.StartedAt, &connected, &ended, &r.Outcome, &r.Detail); err != nil {
			return nil, err
		}
		if connected.Valid {
			t := connected.Time
			r.ConnectedAt = &t
		}
		if ended.Valid {
			t := ended.Time
			r.EndedAt = &t
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Prune keeps the newest keep sessions and deletes the rest.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	if keep <= 0 {
		keep = DefaultKeep
	}
	res, err := s.db.ExecContext(ctx, `
DELETE FROM sessions
WHERE id NOT IN (
	SELECT id FROM sessions ORDER BY started_at DESC, id DESC LIMIT ?
)`, keep)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Duration reports how long the record's tunnel was up, zero if it never
// connected or is still open.
func (r Record) Duration() time.Duration {
	if r.ConnectedAt == nil || r.EndedAt == nil {
		return 0
	}
	d := r.EndedAt.Sub(*r.ConnectedAt)
	if d < 0 {
		return 0
	}
	return d
}
