// Package sqlite implements the store interfaces on an embedded SQLite
// database (modernc.org/sqlite, no cgo).
package sqlite

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nextlevelbuilder/pairlink/internal/store"
)

// Store implements store.LibraryStore and store.HistoryStore.
type Store struct {
	db *sqlx.DB
}

// Open opens (or creates) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	slog.Info("sqlite store opened", "path", path)
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS libraries (
			id TEXT PRIMARY KEY,
			display_name TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS library_members (
			library_id TEXT NOT NULL REFERENCES libraries(id) ON DELETE CASCADE,
			member_id TEXT NOT NULL,
			PRIMARY KEY (library_id, member_id)
		)`,
		`CREATE TABLE IF NOT EXISTS pairing_history (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			pairing_id INTEGER NOT NULL,
			role TEXT NOT NULL,
			peer_name TEXT NOT NULL DEFAULT '',
			peer_os TEXT NOT NULL DEFAULT '',
			outcome TEXT NOT NULL,
			cause TEXT NOT NULL DEFAULT '',
			origin_library TEXT NOT NULL DEFAULT '',
			library_name TEXT NOT NULL DEFAULT '',
			started_at INTEGER NOT NULL,
			ended_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pairing_history_ended ON pairing_history(ended_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:min(len(stmt), 60)], err)
		}
	}
	return nil
}

func (s *Store) ListLibraries(ctx context.Context) ([]store.LibraryDescriptor, error) {
	var rows []struct {
		ID          string `db:"id"`
		DisplayName string `db:"display_name"`
	}
	if err := s.db.SelectContext(ctx, &rows, `SELECT id, display_name FROM libraries ORDER BY display_name, id`); err != nil {
		return nil, fmt.Errorf("list libraries: %w", err)
	}
	out := make([]store.LibraryDescriptor, 0, len(rows))
	for _, r := range rows {
		id, err := uuid.Parse(r.ID)
		if err != nil {
			slog.Warn("sqlite store: skipping library with bad id", "id", r.ID)
			continue
		}
		out = append(out, store.LibraryDescriptor{UUID: id, DisplayName: r.DisplayName})
	}
	return out, nil
}

func (s *Store) ContainsLibrary(ctx context.Context, library, member uuid.UUID) (bool, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM libraries WHERE id = ?`, library.String())
	if err != nil {
		return false, fmt.Errorf("lookup library: %w", err)
	}
	if n == 0 {
		return false, fmt.Errorf("library %s: %w", library, store.ErrNotFound)
	}
	err = s.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM library_members WHERE library_id = ? AND member_id = ?`,
		library.String(), member.String())
	if err != nil {
		return false, fmt.Errorf("lookup member: %w", err)
	}
	return n > 0, nil
}

func (s *Store) PutLibrary(ctx context.Context, lib store.LibraryDescriptor) error {
	if err := store.ValidateLibrary(lib); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO libraries (id, display_name) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET display_name = excluded.display_name`,
		lib.UUID.String(), lib.DisplayName)
	if err != nil {
		return fmt.Errorf("put library: %w", err)
	}
	return nil
}

func (s *Store) AddMember(ctx context.Context, library, member uuid.UUID) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO library_members (library_id, member_id)
		 SELECT id, ? FROM libraries WHERE id = ?`,
		member.String(), library.String())
	if err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		ok, err := s.ContainsLibrary(ctx, library, member)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("library %s: %w", library, store.ErrNotFound)
		}
	}
	return nil
}

type historyRow struct {
	PairingID     int64  `db:"pairing_id"`
	Role          string `db:"role"`
	PeerName      string `db:"peer_name"`
	PeerOS        string `db:"peer_os"`
	Outcome       string `db:"outcome"`
	Cause         string `db:"cause"`
	OriginLibrary string `db:"origin_library"`
	LibraryName   string `db:"library_name"`
	StartedAt     int64  `db:"started_at"`
	EndedAt       int64  `db:"ended_at"`
}

func toRow(r store.PairingRecord) historyRow {
	row := historyRow{
		PairingID:   int64(r.PairingID),
		Role:        r.Role,
		PeerName:    r.PeerName,
		PeerOS:      r.PeerOS,
		Outcome:     r.Outcome,
		Cause:       r.Cause,
		LibraryName: r.LibraryName,
		StartedAt:   r.StartedAt.UnixMilli(),
		EndedAt:     r.EndedAt.UnixMilli(),
	}
	if r.OriginLibrary != uuid.Nil {
		row.OriginLibrary = r.OriginLibrary.String()
	}
	return row
}

func (row historyRow) record() store.PairingRecord {
	rec := store.PairingRecord{
		PairingID:   uint64(row.PairingID),
		Role:        row.Role,
		PeerName:    row.PeerName,
		PeerOS:      row.PeerOS,
		Outcome:     row.Outcome,
		Cause:       row.Cause,
		LibraryName: row.LibraryName,
		StartedAt:   time.UnixMilli(row.StartedAt).UTC(),
		EndedAt:     time.UnixMilli(row.EndedAt).UTC(),
	}
	if id, err := uuid.Parse(row.OriginLibrary); err == nil {
		rec.OriginLibrary = id
	}
	return rec
}

func (s *Store) RecordPairing(ctx context.Context, rec store.PairingRecord) error {
	_, err := s.db.NamedExecContext(ctx,
		`INSERT INTO pairing_history
			(pairing_id, role, peer_name, peer_os, outcome, cause, origin_library, library_name, started_at, ended_at)
		 VALUES
			(:pairing_id, :role, :peer_name, :peer_os, :outcome, :cause, :origin_library, :library_name, :started_at, :ended_at)`,
		toRow(rec))
	if err != nil {
		return fmt.Errorf("record pairing: %w", err)
	}
	return nil
}

func (s *Store) ListPairings(ctx context.Context, limit int) ([]store.PairingRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	var rows []historyRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT pairing_id, role, peer_name, peer_os, outcome, cause, origin_library, library_name, started_at, ended_at
		 FROM pairing_history ORDER BY ended_at DESC, seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list pairings: %w", err)
	}
	out := make([]store.PairingRecord, len(rows))
	for i, row := range rows {
		out[i] = row.record()
	}
	return out, nil
}

func (s *Store) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM pairing_history WHERE ended_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune pairings: %w", err)
	}
	return res.RowsAffected()
}
