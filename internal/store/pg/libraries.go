package pg

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/pairlink/internal/store"
)

// PGLibraryStore implements store.LibraryStore backed by Postgres.
type PGLibraryStore struct {
	db *sql.DB
}

func NewPGLibraryStore(db *sql.DB) *PGLibraryStore {
	return &PGLibraryStore{db: db}
}

func (s *PGLibraryStore) ListLibraries(ctx context.Context) ([]store.LibraryDescriptor, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, display_name FROM libraries ORDER BY display_name, id")
	if err != nil {
		return nil, fmt.Errorf("list libraries: %w", err)
	}
	defer rows.Close()

	result := []store.LibraryDescriptor{}
	for rows.Next() {
		var d store.LibraryDescriptor
		if err := rows.Scan(&d.UUID, &d.DisplayName); err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

func (s *PGLibraryStore) ContainsLibrary(ctx context.Context, library, member uuid.UUID) (bool, error) {
	var exists, contains bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM libraries WHERE id = $1),
		        EXISTS (SELECT 1 FROM library_members WHERE library_id = $1 AND member_id = $2)`,
		library, member,
	).Scan(&exists, &contains)
	if err != nil {
		return false, fmt.Errorf("lookup library: %w", err)
	}
	if !exists {
		return false, fmt.Errorf("library %s: %w", library, store.ErrNotFound)
	}
	return contains, nil
}

func (s *PGLibraryStore) PutLibrary(ctx context.Context, lib store.LibraryDescriptor) error {
	if err := store.ValidateLibrary(lib); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO libraries (id, display_name) VALUES ($1, $2)
		 ON CONFLICT (id) DO UPDATE SET display_name = EXCLUDED.display_name`,
		lib.UUID, lib.DisplayName)
	if err != nil {
		return fmt.Errorf("put library: %w", err)
	}
	return nil
}

func (s *PGLibraryStore) AddMember(ctx context.Context, library, member uuid.UUID) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO library_members (library_id, member_id)
		 SELECT id, $2 FROM libraries WHERE id = $1
		 ON CONFLICT DO NOTHING`,
		library, member)
	if err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := s.ContainsLibrary(ctx, library, member); err != nil {
			return err
		}
	}
	return nil
}
