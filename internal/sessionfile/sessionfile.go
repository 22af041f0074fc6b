// Package sessionfile persists a Salesforce session to disk so that "login"
// and a running "serve" can share it. Files are written atomically with
// owner-only permissions and never logged.
package sessionfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/tonimelisma/salesforce-mcp-go/internal/salesforce"
)

// FilePerms restricts session files to owner-only read/write.
const FilePerms = 0o600

// DirPerms is used when creating the session directory.
const DirPerms = 0o700

// Metadata keys written alongside the session.
const (
	MetaEnvironment = "environment"
	MetaUsername    = "username"
)

// File is the on-disk format: the session plus descriptive metadata that
// "status" can show without contacting the org.
type File struct {
	Session *salesforce.Session `json:"session"`
	SavedAt time.Time           `json:"saved_at"`
	Meta    map[string]string   `json:"meta,omitempty"`
}

// Load reads a saved session file. Returns (nil, nil) if the file does not
// exist.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil //nolint:nilnil // sentinel for "not found"
	}

	if err != nil {
		return nil, fmt.Errorf("sessionfile: reading %s: %w", path, err)
	}

	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("sessionfile: decoding %s: %w", path, err)
	}

	if f.Session == nil {
		return nil, fmt.Errorf("sessionfile: %s missing session field (re-login required)", path)
	}

	return &f, nil
}

// Save writes sess and meta to path atomically (write-to-temp + rename)
// with 0600 permissions.
func Save(path string, sess *salesforce.Session, meta map[string]string) error {
	if sess == nil {
		return errors.New("sessionfile: refusing to save nil session")
	}

	f := File{Session: sess, SavedAt: time.Now().UTC(), Meta: meta}

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("sessionfile: encoding: %w", err)
	}

	dir := filepath.Dir(path)
	if mkErr := os.MkdirAll(dir, DirPerms); mkErr != nil {
		return fmt.Errorf("sessionfile: creating directory %s: %w", dir, mkErr)
	}

	// Same directory guarantees same filesystem for rename(2).
	tmp, err := os.CreateTemp(dir, ".session-*.tmp")
	if err != nil {
		return fmt.Errorf("sessionfile: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, FilePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("sessionfile: setting permissions: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("sessionfile: writing: %w", err)
	}

	// Flush before rename so a crash cannot leave a partial file at path.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sessionfile: syncing: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("sessionfile: closing: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("sessionfile: renaming: %w", err)
	}

	success = true

	return nil
}

// Remove deletes the session file. Reports whether a file was removed; a
// missing file is not an error.
func Remove(path string) (bool, error) {
	err := os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("sessionfile: removing %s: %w", path, err)
	}

	return true, nil
}
