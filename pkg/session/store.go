// Package session implements the on-disk session store: one JSON file per
// session id, loaded at agent construction and saved after each run, with
// atomic whole-file-replace semantics on save.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/satibot/satibot/pkg/logger"
	"github.com/satibot/satibot/pkg/providers"
)

// ErrNotFound is returned by Load when no session file exists for the given id.
var ErrNotFound = errors.New("session: not found")

// Store loads and saves the full message list for a chat id to durable
// storage. One namespace (directory) is shared across front-ends; callers
// key sessions by stringifying their own chat/session id.
type Store struct {
	dir string
}

// NewStore returns a Store rooted at dir, creating it if necessary.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(sessionID string) string {
	return filepath.Join(s.dir, sanitizeID(sessionID)+".json")
}

// sanitizeID keeps a session id from escaping the session directory via
// path separators: only the id's last path element is kept, so ids with no
// separator (chat ids, plain session names) round-trip unchanged.
func sanitizeID(id string) string {
	return filepath.Base(filepath.Clean("/" + id))
}

// Load returns the ordered message list for sessionID, or ErrNotFound if no
// session file exists yet.
func (s *Store) Load(sessionID string) ([]providers.Message, error) {
	data, err := os.ReadFile(s.path(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read session %s: %w", sessionID, err)
	}

	var messages []providers.Message
	if err := json.Unmarshal(data, &messages); err != nil {
		return nil, fmt.Errorf("parse session %s: %w", sessionID, err)
	}
	return messages, nil
}

// Save persists messages for sessionID as a single atomic whole-file
// replace: written to a temp file in the same directory, then renamed over
// the target, so save is observed as all-or-nothing.
func (s *Store) Save(sessionID string, messages []providers.Message) error {
	data, err := json.MarshalIndent(messages, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", sessionID, err)
	}

	target := s.path(sessionID)
	tmp, err := os.CreateTemp(s.dir, ".session-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp session file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp session file: %w", err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp session file: %w", err)
	}

	logger.DebugCF("session", "saved session", map[string]interface{}{
		"session_id": sessionID,
		"messages":   len(messages),
	})
	return nil
}
