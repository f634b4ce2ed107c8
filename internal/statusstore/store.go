// Package statusstore implements the process-wide video status map: a
// single mutex-guarded table rewritten to a JSON file on every mutation.
// It plays the role the teacher's internal/domain/repository.VideoRepository
// plus its Postgres implementation play, adapted to this system's explicit
// file-backed persistence model instead of a relational store.
package statusstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/hszk-dev/streamcast/internal/model"
)

// ErrNotFound is returned by Get for an unknown video ID.
var ErrNotFound = errors.New("video not found")

// Store is the single owned object holding the status map and its lock.
// Every mutation goes through Update, which serializes the whole map to
// disk under the same lock before returning.
type Store struct {
	mu   sync.Mutex
	path string
	data map[string]*model.Record
	log  *slog.Logger
}

// New creates an empty store bound to path. Call Load to populate it from
// disk.
func New(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		path: path,
		data: make(map[string]*model.Record),
		log:  logger,
	}
}

// Load reads the JSON file at the store's path, if it exists. A parse
// failure is logged and the store starts empty — the bad file is left on
// disk rather than deleted, per the recovery policy.
//
// Any record left in a non-terminal status is an orphan: its owning
// pipeline task died with the previous process. It is transitioned to
// error rather than resumed, since resuming would require re-deriving
// poll-queue state this store never persists.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read status file: %w", err)
	}

	var loaded map[string]*model.Record
	if err := json.Unmarshal(raw, &loaded); err != nil {
		s.log.Error("status file is corrupt, starting with an empty store",
			slog.String("path", s.path), slog.String("error", err.Error()))
		return nil
	}

	for id, rec := range loaded {
		if !rec.Status.IsTerminal() {
			rec.AppendError("orphaned: no owning pipeline task after restart")
			rec.Status = model.StatusError
		}
		loaded[id] = rec
	}
	s.data = loaded
	return s.persistLocked()
}

// Create inserts a brand-new record. It is an error to create over an
// existing ID.
func (s *Store) Create(rec *model.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[rec.VideoID]; exists {
		return fmt.Errorf("video %s already exists", rec.VideoID)
	}
	s.data[rec.VideoID] = rec.Clone()
	return s.persistLocked()
}

// Get returns a copy of the record for videoID, or ErrNotFound.
func (s *Store) Get(videoID string) (*model.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.data[videoID]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

// Update runs fn against the current record for videoID under the store's
// lock, then persists the whole map. fn mutates the record in place; it is
// the single entry point through which all state transitions, error
// appends, and qualities_done updates flow, per the single-writer
// discipline this system relies on for invariant 5.
func (s *Store) Update(videoID string, fn func(rec *model.Record)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.data[videoID]
	if !ok {
		return ErrNotFound
	}
	fn(rec)
	return s.persistLocked()
}

// Delete removes a record entirely. Used only for explicit purges; the
// pipeline never calls this on its own.
func (s *Store) Delete(videoID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[videoID]; !ok {
		return ErrNotFound
	}
	delete(s.data, videoID)
	return s.persistLocked()
}

// persistLocked rewrites the entire status file. Callers must hold s.mu.
// It writes to a temp file in the same directory and renames over the
// target, so a crash mid-write can never leave a partially-written file
// behind — the loader would otherwise have to tolerate truncated JSON from
// a crash during the write itself, which a plain truncate-and-write cannot
// guarantee.
func (s *Store) persistLocked() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create status dir: %w", err)
	}

	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal status map: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".video_status-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp status file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp status file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp status file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp status file: %w", err)
	}
	return nil
}
