package sessionstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
)

// ErrSessionActive is returned by TryAcquireRun when current_session.json
// already holds a running session (spec.md I4).
var ErrSessionActive = errors.New("sessionstore: a session is already running")

const (
	pauseStateFile   = "pause_state.json"
	chunkedStateFile = "chunked_processing_state.json"
	historyFile      = "processing_history.json"
	currentFile      = "current_session.json"
	lockFile         = ".newsxtract.lock"
)

// Store is the durable JSON state store for one data directory. All writes
// are serialized through mu and land via atomic write-then-rename with a
// .backup sibling kept, per spec.md §4.9.
type Store struct {
	mu  sync.Mutex
	dir string

	// lock enforces I4 (single active session) the way project-cortex's
	// SingletonDaemon enforces a single active daemon: a held file lock,
	// not an in-memory flag, so the invariant survives process restarts.
	lock *flock.Flock
}

// New opens a Store rooted at dir, creating it if necessary.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("sessionstore: creating state dir: %w", err)
	}
	return &Store{dir: dir, lock: flock.New(filepath.Join(dir, lockFile))}, nil
}

func (s *Store) path(name string) string { return filepath.Join(s.dir, name) }

// TryAcquireRun enforces I4: it fails with ErrSessionActive if current_session
// is present with status running, otherwise it takes the process-wide file
// lock so no concurrent process can start a run either.
func (s *Store) TryAcquireRun() error {
	locked, err := s.lock.TryLock()
	if err != nil {
		return fmt.Errorf("sessionstore: acquiring run lock: %w", err)
	}
	if !locked {
		return ErrSessionActive
	}

	current, err := s.LoadCurrentSession()
	if err == nil && current != nil && current.Status == StatusRunning {
		s.lock.Unlock()
		return ErrSessionActive
	}
	return nil
}

// ReleaseRun releases the lock TryAcquireRun took.
func (s *Store) ReleaseRun() error {
	return s.lock.Unlock()
}

// LoadPauseState reads pause_state.json, tolerating a missing or corrupt
// file by returning the zero value (spec.md §4.9).
func (s *Store) LoadPauseState() (*PauseState, error) {
	var v PauseState
	ok, err := s.load(pauseStateFile, &v)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &PauseState{}, nil
	}
	return &v, nil
}

// SavePauseState atomically persists v.
func (s *Store) SavePauseState(v *PauseState) error {
	return s.save(pauseStateFile, v)
}

// ClearPauseState resets persisted pause state to its zero value.
func (s *Store) ClearPauseState() error {
	return s.save(pauseStateFile, &PauseState{})
}

// LoadChunkedState reads chunked_processing_state.json. A missing file
// yields (nil, nil): chunked state exists only during a chunked run.
func (s *Store) LoadChunkedState() (*ChunkedProcessingState, error) {
	var v ChunkedProcessingState
	ok, err := s.load(chunkedStateFile, &v)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &v, nil
}

// SaveChunkedState atomically persists v.
func (s *Store) SaveChunkedState(v *ChunkedProcessingState) error {
	return s.save(chunkedStateFile, v)
}

// ClearChunkedState removes the chunked state file; the run has either
// completed or been discarded.
func (s *Store) ClearChunkedState() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path(chunkedStateFile)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("sessionstore: clearing chunked state: %w", err)
	}
	return nil
}

// LoadCurrentSession reads current_session.json; absence is not an error.
func (s *Store) LoadCurrentSession() (*SessionRecord, error) {
	var v SessionRecord
	ok, err := s.load(currentFile, &v)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &v, nil
}

// SaveCurrentSession atomically persists v as the active session.
func (s *Store) SaveCurrentSession(v *SessionRecord) error {
	return s.save(currentFile, v)
}

// ClearCurrentSession removes current_session.json.
func (s *Store) ClearCurrentSession() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path(currentFile)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("sessionstore: clearing current session: %w", err)
	}
	return nil
}

// AddSession prepends rec to processing_history.json, newest-first, capped
// at 100 entries (spec.md §4.9).
func (s *Store) AddSession(rec SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, err := s.loadHistoryLocked()
	if err != nil {
		return err
	}
	h.Sessions = append([]SessionRecord{rec}, h.Sessions...)
	if len(h.Sessions) > maxHistoryEntries {
		h.Sessions = h.Sessions[:maxHistoryEntries]
	}
	return s.saveLocked(historyFile, &h)
}

// UpdateSession is a read-modify-write that applies patch to the session
// identified by id, preserving all other fields (spec.md §4.9).
func (s *Store) UpdateSession(id string, patch func(*SessionRecord)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, err := s.loadHistoryLocked()
	if err != nil {
		return err
	}
	for i := range h.Sessions {
		if h.Sessions[i].ID == id {
			patch(&h.Sessions[i])
			return s.saveLocked(historyFile, &h)
		}
	}
	return fmt.Errorf("sessionstore: no session with id %q", id)
}

// DeleteSession removes the session identified by id from history.
func (s *Store) DeleteSession(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, err := s.loadHistoryLocked()
	if err != nil {
		return err
	}
	filtered := h.Sessions[:0]
	for _, rec := range h.Sessions {
		if rec.ID != id {
			filtered = append(filtered, rec)
		}
	}
	h.Sessions = filtered
	return s.saveLocked(historyFile, &h)
}

// ListSessions returns the full newest-first history.
func (s *Store) ListSessions() ([]SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, err := s.loadHistoryLocked()
	if err != nil {
		return nil, err
	}
	return h.Sessions, nil
}

// GetSession looks up one session by id.
func (s *Store) GetSession(id string) (*SessionRecord, error) {
	sessions, err := s.ListSessions()
	if err != nil {
		return nil, err
	}
	for i := range sessions {
		if sessions[i].ID == id {
			return &sessions[i], nil
		}
	}
	return nil, nil
}

// ClearHistory empties processing_history.json.
func (s *Store) ClearHistory() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(historyFile, &history{})
}

func (s *Store) loadHistoryLocked() (history, error) {
	var h history
	ok, err := s.loadLocked(historyFile, &h)
	if err != nil {
		return history{}, err
	}
	if !ok {
		return history{}, nil
	}
	return h, nil
}

// load reads and JSON-decodes name, tolerating a missing or corrupt file by
// reporting ok=false rather than erroring (spec.md §4.9: "must tolerate a
// missing or corrupt file").
func (s *Store) load(name string, out any) (ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(name, out)
}

func (s *Store) loadLocked(name string, out any) (ok bool, err error) {
	data, err := os.ReadFile(s.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, nil // unreadable is treated the same as absent
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, nil // corrupt file: treated as "no saved state"
	}
	return true, nil
}

// save atomically writes v to name: encode to a temp file in the same
// directory, fsync, then rename over the destination, keeping the previous
// contents as a .backup sibling.
func (s *Store) save(name string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(name, v)
}

func (s *Store) saveLocked(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("sessionstore: marshaling %s: %w", name, err)
	}

	dest := s.path(name)
	backup := dest + ".backup"
	if existing, err := os.ReadFile(dest); err == nil {
		_ = os.WriteFile(backup, existing, 0o644)
	}

	tmp := dest + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("sessionstore: creating temp file for %s: %w", name, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("sessionstore: writing %s: %w", name, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("sessionstore: syncing %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("sessionstore: closing %s: %w", name, err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("sessionstore: renaming %s into place: %w", name, err)
	}
	return nil
}
