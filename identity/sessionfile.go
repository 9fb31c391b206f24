package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"octave/crypto"
)

const sessionFileVersion = 1

var (
	ErrNoSession          = errors.New("no stored session")
	ErrPersistenceOff     = errors.New("session persistence disabled")
	ErrUnsupportedVersion = errors.New("unsupported session file version")
)

// StoredSession is the part of a session that survives a restart.
type StoredSession struct {
	Identity     Identity  `json:"identity"`
	RefreshToken string    `json:"refresh_token"`
	SavedAt      time.Time `json:"saved_at"`
}

// sessionEnvelope is the on-disk format; Sealed holds the encrypted StoredSession.
type sessionEnvelope struct {
	Version int    `json:"version"`
	Sealed  []byte `json:"sealed"`
}

// SessionFile persists one session sealed under a passphrase.
// With an empty passphrase persistence is off.
type SessionFile struct {
	path       string
	passphrase string
	iterations int
}

// NewSessionFile returns a session file at path.
func NewSessionFile(path, passphrase string) *SessionFile {
	return &SessionFile{path: path, passphrase: passphrase, iterations: crypto.MinIterations * 2}
}

// DefaultSessionPath returns ~/.octave/session.json.
func DefaultSessionPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".octave", "session.json"), nil
}

// Enabled reports whether sessions are persisted.
func (f *SessionFile) Enabled() bool {
	return f != nil && f.passphrase != "" && f.path != ""
}

// Save seals and writes the session atomically.
func (f *SessionFile) Save(s StoredSession) error {
	if !f.Enabled() {
		return ErrPersistenceOff
	}
	plain, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	defer crypto.Wipe(plain)

	sealed, err := crypto.Seal(f.passphrase, plain, f.iterations)
	if err != nil {
		return fmt.Errorf("failed to seal session: %w", err)
	}
	data, err := json.MarshalIndent(sessionEnvelope{Version: sessionFileVersion, Sealed: sealed}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session envelope: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}
	return saveAtomically(f.path, data, 0o600)
}

// Load reads the stored session. It returns ErrNoSession if there is none.
func (f *SessionFile) Load() (*StoredSession, error) {
	if !f.Enabled() {
		return nil, ErrPersistenceOff
	}
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	var env sessionEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to parse session: %w", err)
	}
	if env.Version != sessionFileVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, env.Version)
	}

	plain, err := crypto.Open(f.passphrase, env.Sealed, f.iterations)
	if err != nil {
		return nil, fmt.Errorf("failed to open session: %w", err)
	}
	defer crypto.Wipe(plain)

	var s StoredSession
	if err := json.Unmarshal(plain, &s); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &s, nil
}

// Clear removes the stored session. Removing a missing file is not an error.
func (f *SessionFile) Clear() error {
	if f == nil || f.path == "" {
		return nil
	}
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove session: %w", err)
	}
	return nil
}

// saveAtomically writes data to path using temp file + rename so a crash
// never leaves a half-written session behind.
func saveAtomically(path string, data []byte, perm os.FileMode) error {
	// Same directory keeps the rename on one filesystem
	tmpFile, err := os.CreateTemp(filepath.Dir(path), ".octave-session-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	defer func() {
		if tmpFile != nil {
			tmpFile.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	tmpFile = nil

	if err := os.Chmod(tmpPath, perm); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
