package editor

import (
	"fmt"
	"strings"
	"time"

	"mdpreview/internal/model"
)

type LoadStatus string

const (
	LoadIdle    LoadStatus = "idle"
	LoadLoading LoadStatus = "loading"
	LoadLoaded  LoadStatus = "loaded"
	LoadFailed  LoadStatus = "failed"
)

type SaveStatus string

const (
	SaveIdle   SaveStatus = "idle"
	SaveSaving SaveStatus = "saving"
	SaveSaved  SaveStatus = "saved"
	SaveFailed SaveStatus = "failed"
)

type Trigger string

const (
	TriggerManual Trigger = "manual"
	TriggerAuto   Trigger = "auto"
)

type ViewMode string

const (
	ViewSplit   ViewMode = "split"
	ViewEditor  ViewMode = "editor"
	ViewPreview ViewMode = "preview"
)

func ParseViewMode(s string) (ViewMode, error) {
	switch ViewMode(strings.ToLower(strings.TrimSpace(s))) {
	case ViewSplit:
		return ViewSplit, nil
	case ViewEditor:
		return ViewEditor, nil
	case ViewPreview:
		return ViewPreview, nil
	default:
		return "", fmt.Errorf("unknown view mode: %q", s)
	}
}

// State is a point-in-time copy of a Session.
type State struct {
	UserID      string
	DocumentID  string
	Title       string
	Text        string
	Dirty       bool
	Revision    uint64
	LoadStatus  LoadStatus
	SaveStatus  SaveStatus
	LastTrigger Trigger
	ViewMode    ViewMode
	AutoSave    bool
	LastSavedAt time.Time
	UpdatedAt   time.Time
	Err         error
}

func (st State) FileName() string { return model.FileName(st.Title) }

// Persisted reports whether the buffer is backed by a stored document.
func (st State) Persisted() bool { return !model.IsNewDocumentID(st.DocumentID) }

// StatusLabel is the short status shown next to the editor.
func (st State) StatusLabel() string {
	switch st.SaveStatus {
	case SaveSaving:
		if st.LastTrigger == TriggerAuto {
			return "Auto-saving..."
		}
		return "Saving..."
	case SaveFailed:
		if st.LastTrigger == TriggerAuto {
			return "Auto-save failed"
		}
		return "Save failed"
	}
	if st.Dirty {
		return "Unsaved changes"
	}
	if st.SaveStatus == SaveSaved {
		return "Saved"
	}
	return ""
}

type EventKind string

const (
	EventLoading    EventKind = "loading"
	EventLoaded     EventKind = "loaded"
	EventLoadFailed EventKind = "load_failed"
	EventEdited     EventKind = "edited"
	EventSaving     EventKind = "saving"
	EventSaved      EventKind = "saved"
	EventSaveFailed EventKind = "save_failed"
	EventChanged    EventKind = "changed"
	EventClosed     EventKind = "closed"
)

// Event reports a transition. State is the Session state right after it.
type Event struct {
	Kind    EventKind
	Trigger Trigger
	State   State
	Err     error
	// Created is set on the EventSaved that adopted a newly created id.
	Created bool
}

// SaveResult describes the outcome of Save.
type SaveResult struct {
	DocumentID string
	Trigger    Trigger
	// Created is true when this save created the document.
	Created bool
	// Coalesced is true when the request was folded into a save already in flight.
	Coalesced bool
	// Skipped is true when an auto-save declined (clean buffer, new document, no user, disabled).
	Skipped bool
}
