package pg

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/pairlink/internal/store"
)

// PGHistoryStore implements store.HistoryStore backed by Postgres.
type PGHistoryStore struct {
	db *sql.DB
}

func NewPGHistoryStore(db *sql.DB) *PGHistoryStore {
	return &PGHistoryStore{db: db}
}

func (s *PGHistoryStore) RecordPairing(ctx context.Context, rec store.PairingRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pairing_history
			(id, pairing_id, role, peer_name, peer_os, outcome, cause, origin_library, library_name, started_at, ended_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		uuid.Must(uuid.NewV7()), int64(rec.PairingID), rec.Role, rec.PeerName, rec.PeerOS,
		rec.Outcome, rec.Cause, nilUUID(rec.OriginLibrary), rec.LibraryName, rec.StartedAt, rec.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("record pairing: %w", err)
	}
	return nil
}

func (s *PGHistoryStore) ListPairings(ctx context.Context, limit int) ([]store.PairingRecord, error) {
	q := `SELECT pairing_id, role, peer_name, peer_os, outcome, cause, origin_library, library_name, started_at, ended_at
	      FROM pairing_history ORDER BY ended_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		q += " LIMIT $1"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list pairings: %w", err)
	}
	defer rows.Close()

	result := []store.PairingRecord{}
	for rows.Next() {
		var r store.PairingRecord
		var pairingID int64
		var origin *uuid.UUID
		if err := rows.Scan(&pairingID, &r.Role, &r.PeerName, &r.PeerOS, &r.Outcome, &r.Cause,
			&origin, &r.LibraryName, &r.StartedAt, &r.EndedAt); err != nil {
			return nil, err
		}
		r.PairingID = uint64(pairingID)
		if origin != nil {
			r.OriginLibrary = *origin
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

func (s *PGHistoryStore) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM pairing_history WHERE ended_at < $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune pairings: %w", err)
	}
	return res.RowsAffected()
}

func nilUUID(u uuid.UUID) *uuid.UUID {
	if u == uuid.Nil {
		return nil
	}
	return &u
}
