package auth

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Outbox stands in for a mail server: every message becomes a text file.
type Outbox struct {
	Dir string
}

type Email struct {
	To      string
	Subject string
	Body    string
}

func (o Outbox) Send(to, subject, body string, now time.Time) error {
	if strings.TrimSpace(o.Dir) == "" {
		return nil
	}
	if err := os.MkdirAll(o.Dir, 0o755); err != nil {
		return err
	}
	ts := now.UTC().Format("20060102T150405.000Z")
	safeTo := strings.NewReplacer("@", "_at_", "/", "_", "\\", "_").Replace(strings.ToLower(strings.TrimSpace(to)))
	name := fmt.Sprintf("%s_%s_%s.txt", ts, uuid.NewString()[:8], safeTo)
	msg := fmt.Sprintf("TO: %s\nSUBJECT: %s\n\n%s\n", strings.TrimSpace(to), strings.TrimSpace(subject), strings.TrimSpace(body))
	return os.WriteFile(filepath.Join(o.Dir, name), []byte(msg), 0o600)
}

// List returns the messages in the outbox, oldest first.
func (o Outbox) List() ([]Email, error) {
	ents, err := os.ReadDir(o.Dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".txt") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	out := make([]Email, 0, len(names))
	for _, n := range names {
		b, err := os.ReadFile(filepath.Join(o.Dir, n))
		if err != nil {
			return nil, err
		}
		out = append(out, parseEmail(string(b)))
	}
	return out, nil
}

func parseEmail(raw string) Email {
	head, body, _ := strings.Cut(raw, "\n\n")
	var e Email
	for _, line := range strings.Split(head, "\n") {
		if v, ok := strings.CutPrefix(line, "TO: "); ok {
			e.To = v
		} else if v, ok := strings.CutPrefix(line, "SUBJECT: "); ok {
			e.Subject = v
		}
	}
	e.Body = strings.TrimSpace(body)
	return e
}
