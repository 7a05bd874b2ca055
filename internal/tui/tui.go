// Package tui is the terminal shell of the editor: a bubbletea program that
// drives an editor.Session with a textarea, a glamour preview and a document list.
package tui

import (
	"context"
	"log/slog"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"mdpreview/internal/editor"
	"mdpreview/internal/model"
	"mdpreview/internal/store"
)

// Documents is what the terminal editor needs from the document store;
// *store.Documents implements it.
type Documents interface {
	editor.DocumentStore
	ListByOwner(ctx context.Context, ownerID string) ([]model.Document, error)
}

type Options struct {
	Docs Documents
	// UserID is empty when nobody is signed in; the editor then only offers the template.
	UserID     string
	UserName   string
	DocumentID string
	Settings   model.Settings

	AutoSave    bool
	Delay       time.Duration
	Ceiling     time.Duration
	SaveTimeout time.Duration

	Backups  store.Backups
	Observer editor.Observer
	Logger   *slog.Logger
}

func newSession(opts Options) *editor.Session {
	var backup editor.BackupFunc
	if opts.UserID != "" {
		userID, backups := opts.UserID, opts.Backups
		backup = func(documentID, fileName, content string) error {
			if model.IsNewDocumentID(documentID) {
				documentID = ""
			}
			return backups.Save(userID, store.Backup{DocumentID: documentID, FileName: fileName, Content: content})
		}
	}
	vm, err := editor.ParseViewMode(opts.Settings.ViewMode)
	if err != nil {
		vm = editor.ViewSplit
	}
	return editor.NewSession(opts.Docs, editor.Options{
		AutoSave:    opts.AutoSave,
		Delay:       opts.Delay,
		Ceiling:     opts.Ceiling,
		SaveTimeout: opts.SaveTimeout,
		ViewMode:    vm,
		Backup:      backup,
		Observer:    opts.Observer,
		Logger:      opts.Logger,
	})
}

// Run blocks until the user quits. The session is closed on the way out, so
// a dirty buffer lands in the local backup.
func Run(ctx context.Context, opts Options) error {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	applyColorProfilePreference()
	applyThemePreference(opts.Settings.Theme)

	sess := newSession(opts)
	m := newAppModel(sess, opts)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))

	// Listeners must not block, so events go through a buffer; the model
	// re-reads the snapshot on every message and tolerates drops.
	events := make(chan editor.Event, 64)
	unsubscribe := sess.Subscribe(func(ev editor.Event) {
		select {
		case events <- ev:
		default:
		}
	})
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case ev := <-events:
				p.Send(sessionEventMsg{kind: ev.Kind, trigger: ev.Trigger, created: ev.Created, err: ev.Err})
			}
		}
	}()

	_, err := p.Run()
	unsubscribe()
	sess.Close()
	close(done)
	opts.Logger.Info("terminal editor closed")
	return err
}
