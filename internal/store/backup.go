package store

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const backupsDirName = "backups"

// Backup is the last editor buffer kept on disk as a recovery escape hatch
// when a save to the document store fails. It is not a format contract.
type Backup struct {
	Version    int       `json:"version"`
	DocumentID string    `json:"documentId,omitempty"`
	FileName   string    `json:"fileName"`
	Content    string    `json:"content"`
	SavedAt    time.Time `json:"savedAt"`
}

// Backups stores one Backup per user inside the data dir.
type Backups struct {
	Dir string
}

func (s Store) Backups() Backups {
	return Backups{Dir: filepath.Join(s.Dir, backupsDirName)}
}

func (b Backups) path(userID string) string {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		userID = "anonymous"
	}
	safe := strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(userID)
	return filepath.Join(b.Dir, "backup-"+safe+".json")
}

// Load returns (nil, nil) when there is no usable backup.
func (b Backups) Load(userID string) (*Backup, error) {
	if strings.TrimSpace(b.Dir) == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(b.path(userID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var bk Backup
	if err := json.Unmarshal(raw, &bk); err != nil {
		// Best-effort; if corrupted, treat as missing.
		return nil, nil
	}
	if bk.Version == 0 {
		bk.Version = 1
	}
	return &bk, nil
}

func (b Backups) Save(userID string, bk Backup) error {
	if strings.TrimSpace(b.Dir) == "" {
		return nil
	}
	if err := os.MkdirAll(b.Dir, 0o755); err != nil {
		return err
	}
	if bk.Version == 0 {
		bk.Version = 1
	}
	if bk.SavedAt.IsZero() {
		bk.SavedAt = time.Now().UTC()
	}
	raw, err := json.MarshalIndent(bk, "", "  ")
	if err != nil {
		return err
	}
	return atomicWriteFile(b.Dir, ".backup-*.tmp", b.path(userID), raw, 0o600)
}

func (b Backups) Clear(userID string) error {
	err := os.Remove(b.path(userID))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
