// Package sessionstore persists authentication state (cookies plus a
// localStorage snapshot) to disk so a logical session survives browser
// process restarts. Persistence is best-effort: a failed save degrades to
// "no session" on the next start, never to a failed operation.
package sessionstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Cookie is the persisted subset of a browser cookie.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires,omitempty"` // unix seconds, 0 = session cookie
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite,omitempty"`
}

// StoredSession is the on-disk document, one file per session id.
type StoredSession struct {
	Cookies      []Cookie          `json:"cookies"`
	LocalStorage map[string]string `json:"localStorage"`
	Timestamp    time.Time         `json:"timestamp"`
}

// Status reports the outcome of a restore attempt.
type Status int

const (
	StatusNotFound Status = iota
	StatusExpired
	StatusRestored
)

func (s Status) String() string {
	switch s {
	case StatusNotFound:
		return "not found"
	case StatusExpired:
		return "expired"
	case StatusRestored:
		return "restored"
	default:
		return "unknown"
	}
}

// RestoreResult carries the restored state and its counts.
type RestoreResult struct {
	Status       Status
	Cookies      []Cookie
	LocalStorage map[string]string
}

// Store persists sessions under one directory, one JSON file per id.
type Store struct {
	logger *zap.Logger
	dir    string
	expiry time.Duration
}

// New creates a session store rooted at dir. Sessions older than expiry are
// invalid and deleted on the next read or sweep.
func New(logger *zap.Logger, dir string, expiry time.Duration) *Store {
	return &Store{
		logger: logger.Named("session_store"),
		dir:    dir,
		expiry: expiry,
	}
}

// Save serializes the session state to disk, creating the storage directory
// on demand. Failures are logged and swallowed: losing a saved session is
// recoverable, failing the caller's operation over it is not.
func (s *Store) Save(id string, cookies []Cookie, localStorage map[string]string) {
	doc := StoredSession{
		Cookies:      cookies,
		LocalStorage: localStorage,
		Timestamp:    time.Now(),
	}

	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		s.logger.Warn("Failed to create session storage directory.", zap.String("dir", s.dir), zap.Error(err))
		return
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		s.logger.Warn("Failed to serialize session.", zap.String("session_id", id), zap.Error(err))
		return
	}

	if err := os.WriteFile(s.path(id), data, 0o600); err != nil {
		s.logger.Warn("Failed to write session file.", zap.String("session_id", id), zap.Error(err))
		return
	}

	s.logger.Debug("Session saved.",
		zap.String("session_id", id),
		zap.Int("cookies", len(cookies)),
		zap.Int("local_storage_keys", len(localStorage)),
	)
}

// Restore loads the session for id. An expired session is deleted before
// returning StatusExpired, so a subsequent read reports StatusNotFound.
func (s *Store) Restore(id string) RestoreResult {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("Failed to read session file.", zap.String("session_id", id), zap.Error(err))
		}
		return RestoreResult{Status: StatusNotFound}
	}

	var doc StoredSession
	if err := json.Unmarshal(data, &doc); err != nil {
		// A corrupt file is as good as no file; remove it so it cannot keep
		// failing every start.
		s.logger.Warn("Session file is corrupt, removing.", zap.String("session_id", id), zap.Error(err))
		_ = os.Remove(s.path(id))
		return RestoreResult{Status: StatusNotFound}
	}

	if time.Since(doc.Timestamp) > s.expiry {
		if err := os.Remove(s.path(id)); err != nil {
			s.logger.Warn("Failed to remove expired session file.", zap.String("session_id", id), zap.Error(err))
		}
		s.logger.Info("Session expired.", zap.String("session_id", id), zap.Time("saved_at", doc.Timestamp))
		return RestoreResult{Status: StatusExpired}
	}

	s.logger.Info("Session restored.",
		zap.String("session_id", id),
		zap.Int("cookies", len(doc.Cookies)),
		zap.Int("local_storage_keys", len(doc.LocalStorage)),
	)
	return RestoreResult{
		Status:       StatusRestored,
		Cookies:      doc.Cookies,
		LocalStorage: doc.LocalStorage,
	}
}

// ClearExpired sweeps the storage directory and deletes every session file
// older than the expiry window. Idempotent: a second consecutive run deletes
// nothing. Returns the number of files removed.
func (s *Store) ClearExpired() (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read session directory: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		full := filepath.Join(s.dir, entry.Name())

		data, err := os.ReadFile(full)
		if err != nil {
			s.logger.Warn("Failed to read session file during sweep.", zap.String("file", entry.Name()), zap.Error(err))
			continue
		}
		var doc StoredSession
		if err := json.Unmarshal(data, &doc); err != nil {
			s.logger.Warn("Skipping unreadable session file during sweep.", zap.String("file", entry.Name()), zap.Error(err))
			continue
		}
		if time.Since(doc.Timestamp) <= s.expiry {
			continue
		}
		if err := os.Remove(full); err != nil {
			s.logger.Warn("Failed to remove expired session file.", zap.String("file", entry.Name()), zap.Error(err))
			continue
		}
		removed++
	}

	if removed > 0 {
		s.logger.Info("Expired sessions cleared.", zap.Int("removed", removed))
	}
	return removed, nil
}

// Entry summarizes one persisted session for listing.
type Entry struct {
	ID        string
	SavedAt   time.Time
	Cookies   int
	LocalKeys int
	Expired   bool
}

// List returns a summary of every session file in the storage directory,
// including expired ones. Unreadable files are skipped.
func (s *Store) List() ([]Entry, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read session directory: %w", err)
	}

	var out []Entry
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			s.logger.Warn("Failed to read session file during list.", zap.String("file", entry.Name()), zap.Error(err))
			continue
		}
		var doc StoredSession
		if err := json.Unmarshal(data, &doc); err != nil {
			s.logger.Warn("Skipping unreadable session file during list.", zap.String("file", entry.Name()), zap.Error(err))
			continue
		}
		out = append(out, Entry{
			ID:        strings.TrimSuffix(entry.Name(), ".json"),
			SavedAt:   doc.Timestamp,
			Cookies:   len(doc.Cookies),
			LocalKeys: len(doc.LocalStorage),
			Expired:   time.Since(doc.Timestamp) > s.expiry,
		})
	}
	return out, nil
}

// Delete removes the session for id unconditionally (logout).
func (s *Store) Delete(id string) error {
	if err := os.Remove(s.path(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	return nil
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}
