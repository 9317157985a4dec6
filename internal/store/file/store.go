// Package file implements the store interfaces on a single JSON document,
// for standalone deployments without a database.
package file

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/pairlink/internal/store"
)

// maxHistory caps the history kept in the document.
const maxHistory = 1000

type libraryEntry struct {
	store.LibraryDescriptor
	Members []uuid.UUID `json:"members,omitempty"`
}

type document struct {
	Version   int                   `json:"version"`
	Libraries []libraryEntry        `json:"libraries"`
	History   []store.PairingRecord `json:"history"`
}

// Store keeps libraries and pairing history in memory and rewrites the JSON
// file after every change.
type Store struct {
	path string

	mu  sync.RWMutex
	doc document
}

// New loads path if it exists. A missing file starts an empty document.
func New(path string) (*Store, error) {
	s := &Store{path: path, doc: document{Version: 1}}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) ListLibraries(_ context.Context) ([]store.LibraryDescriptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.LibraryDescriptor, 0, len(s.doc.Libraries))
	for _, e := range s.doc.Libraries {
		out = append(out, e.LibraryDescriptor)
	}
	slices.SortFunc(out, func(a, b store.LibraryDescriptor) int {
		return cmp.Compare(a.DisplayName, b.DisplayName)
	})
	return out, nil
}

func (s *Store) ContainsLibrary(_ context.Context, library, member uuid.UUID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.indexLocked(library)
	if i < 0 {
		return false, fmt.Errorf("library %s: %w", library, store.ErrNotFound)
	}
	return slices.Contains(s.doc.Libraries[i].Members, member), nil
}

func (s *Store) PutLibrary(_ context.Context, lib store.LibraryDescriptor) error {
	if err := store.ValidateLibrary(lib); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexLocked(lib.UUID); i >= 0 {
		s.doc.Libraries[i].DisplayName = lib.DisplayName
	} else {
		s.doc.Libraries = append(s.doc.Libraries, libraryEntry{LibraryDescriptor: lib})
	}
	return s.saveLocked()
}

func (s *Store) AddMember(_ context.Context, library, member uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(library)
	if i < 0 {
		return fmt.Errorf("library %s: %w", library, store.ErrNotFound)
	}
	if slices.Contains(s.doc.Libraries[i].Members, member) {
		return nil
	}
	s.doc.Libraries[i].Members = append(s.doc.Libraries[i].Members, member)
	return s.saveLocked()
}

func (s *Store) RecordPairing(_ context.Context, rec store.PairingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.History = append(s.doc.History, rec)
	if n := len(s.doc.History); n > maxHistory {
		s.doc.History = slices.Clone(s.doc.History[n-maxHistory:])
	}
	return s.saveLocked()
}

func (s *Store) ListPairings(_ context.Context, limit int) ([]store.PairingRecord, error) {
	s.mu.RLock()
	out := slices.Clone(s.doc.History)
	s.mu.RUnlock()

	slices.SortStableFunc(out, func(a, b store.PairingRecord) int {
		return b.EndedAt.Compare(a.EndedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) PruneBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := len(s.doc.History)
	s.doc.History = slices.DeleteFunc(s.doc.History, func(r store.PairingRecord) bool {
		return r.EndedAt.Before(cutoff)
	})
	removed := int64(before - len(s.doc.History))
	if removed == 0 {
		return 0, nil
	}
	return removed, s.saveLocked()
}

func (s *Store) indexLocked(id uuid.UUID) int {
	return slices.IndexFunc(s.doc.Libraries, func(e libraryEntry) bool { return e.UUID == id })
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read store: %w", err)
	}
	if err := json.Unmarshal(data, &s.doc); err != nil {
		return fmt.Errorf("parse store %s: %w", s.path, err)
	}
	slog.Info("file store loaded", "path", s.path, "libraries", len(s.doc.Libraries), "history", len(s.doc.History))
	return nil
}

// saveLocked writes through a temp file so a crash never leaves a torn document.
func (s *Store) saveLocked() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}
	data, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write store: %w", err)
	}
	return os.Rename(tmp, s.path)
}
