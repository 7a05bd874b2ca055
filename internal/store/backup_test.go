package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestBackups_SaveLoadClear(t *testing.T) {
	t.Parallel()

	s := Store{Dir: t.TempDir()}
	b := s.Backups()

	// Missing file => nil backup.
	got, err := b.Load("user-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != nil {
		t.Fatalf("expected no backup, got %#v", got)
	}

	at := time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC)
	if err := b.Save("user-1", Backup{DocumentID: "doc-1", FileName: "notes.md", Content: "# draft", SavedAt: at}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err = b.Load("user-1")
	if err != nil {
		t.Fatalf("Load (after save): %v", err)
	}
	if got == nil || got.Content != "# draft" || got.FileName != "notes.md" || !got.SavedAt.Equal(at) || got.Version != 1 {
		t.Fatalf("unexpected backup: %#v", got)
	}

	// Backups are per user.
	if other, _ := b.Load("user-2"); other != nil {
		t.Fatalf("expected user-2 to have no backup")
	}

	if err := b.Clear("user-1"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if got, _ := b.Load("user-1"); got != nil {
		t.Fatalf("expected backup to be cleared")
	}
}

func TestBackups_CorruptFileIsIgnored(t *testing.T) {
	t.Parallel()

	b := Store{Dir: t.TempDir()}.Backups()
	if err := os.MkdirAll(b.Dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(b.Dir, "backup-user-1.json"), []byte("{nope"), 0o600); err != nil {
		t.Fatal(err)
	}
	got, err := b.Load("user-1")
	if err != nil || got != nil {
		t.Fatalf("expected corrupt backup to be treated as missing, got %#v, %v", got, err)
	}
}
