// Package editor is the single owner of an open document's in-memory buffer
// and its synchronization with the document store.
package editor

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"mdpreview/internal/model"
	"mdpreview/internal/perm"
	"mdpreview/internal/store"
)

// DocumentStore is the part of the document store a Session depends on.
// Get and Update report missing documents with store.ErrNotFound.
type DocumentStore interface {
	Create(ctx context.Context, ownerID, title, content string) (model.Document, error)
	Get(ctx context.Context, id string) (model.Document, error)
	Update(ctx context.Context, id string, patch model.DocumentPatch) (model.Document, error)
}

// BackupFunc receives the buffer when a save fails or a dirty session closes.
type BackupFunc func(documentID, fileName, content string) error

// Observer receives load and save outcomes (metrics).
type Observer interface {
	ObserveLoad(outcome string)
	ObserveSave(trigger Trigger, outcome string, d time.Duration)
}

type Options struct {
	AutoSave    bool
	Delay       time.Duration
	Ceiling     time.Duration
	SaveTimeout time.Duration
	ViewMode    ViewMode
	Clock       Clock
	Backup      BackupFunc
	Observer    Observer
	Logger      *slog.Logger
}

// Session is the editor state machine for one open editor view.
//
// Listeners registered with Subscribe run synchronously, in transition order,
// outside the state lock. They must not block and must not call back into the
// Session; the Event carries the State they need.
type Session struct {
	store       DocumentStore
	clock       Clock
	logger      *slog.Logger
	observer    Observer
	backup      BackupFunc
	saveTimeout time.Duration

	emitMu sync.Mutex

	mu     sync.Mutex
	closed bool

	userID      string
	documentID  string
	title       string
	text        string
	dirty       bool
	revision    uint64
	loadStatus  LoadStatus
	saveStatus  SaveStatus
	lastTrigger Trigger
	viewMode    ViewMode
	autoSave    bool
	lastSavedAt time.Time
	updatedAt   time.Time
	lastErr     error

	// lastAttemptAt is when the latest store call started, successful or not.
	lastAttemptAt time.Time

	lastAttemptedLoadKey string
	loadGen              uint64

	saving          bool
	followUp        bool
	followUpTrigger Trigger

	auto *autoSaver

	listeners    map[int]func(Event)
	nextListener int
}

func NewSession(docs DocumentStore, opts Options) *Session {
	clock := opts.Clock
	if clock == nil {
		clock = RealClock
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	saveTimeout := opts.SaveTimeout
	if saveTimeout <= 0 {
		saveTimeout = DefaultSaveTimeout
	}
	viewMode := opts.ViewMode
	if viewMode == "" {
		viewMode = ViewSplit
	}
	s := &Session{
		store:       docs,
		clock:       clock,
		logger:      logger,
		observer:    opts.Observer,
		backup:      opts.Backup,
		saveTimeout: saveTimeout,
		documentID:  model.NewDocumentID,
		title:       model.DefaultTitle,
		loadStatus:  LoadIdle,
		saveStatus:  SaveIdle,
		viewMode:    viewMode,
		autoSave:    opts.AutoSave,
		listeners:   map[int]func(Event){},
	}
	s.auto = newAutoSaver(clock, opts.Delay, opts.Ceiling, s.onTimer)
	return s
}

// LoadKey identifies one load attempt: the document and the user asking for it.
func LoadKey(documentID, userID string) string {
	documentID = strings.TrimSpace(documentID)
	if documentID == "" {
		documentID = model.NewDocumentID
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		userID = "anonymous"
	}
	return documentID + "-" + userID
}

// Subscribe registers fn for every subsequent Event and returns its cancel func.
func (s *Session) Subscribe(fn func(Event)) (cancel func()) {
	s.mu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Session) stateLocked() State {
	return State{
		UserID:      s.userID,
		DocumentID:  s.documentID,
		Title:       s.title,
		Text:        s.text,
		Dirty:       s.dirty,
		Revision:    s.revision,
		LoadStatus:  s.loadStatus,
		SaveStatus:  s.saveStatus,
		LastTrigger: s.lastTrigger,
		ViewMode:    s.viewMode,
		AutoSave:    s.autoSave,
		LastSavedAt: s.lastSavedAt,
		UpdatedAt:   s.updatedAt,
		Err:         s.lastErr,
	}
}

func (s *Session) eventLocked(kind EventKind, trigger Trigger, err error) Event {
	return Event{Kind: kind, Trigger: trigger, State: s.stateLocked(), Err: err}
}

// unlockAndEmit releases s.mu and delivers evs. emitMu is taken before the
// state lock is released so listeners observe transitions in order.
func (s *Session) unlockAndEmit(evs ...Event) {
	if len(evs) == 0 || len(s.listeners) == 0 {
		s.mu.Unlock()
		return
	}
	fns := make([]func(Event), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.emitMu.Lock()
	s.mu.Unlock()
	defer s.emitMu.Unlock()
	for _, ev := range evs {
		for _, fn := range fns {
			fn(ev)
		}
	}
}

func (s *Session) resetToTemplateLocked() {
	s.documentID = model.NewDocumentID
	s.title = model.DefaultTitle
	s.text = StarterTemplate
	s.dirty = false
	s.revision++
	s.saveStatus = SaveIdle
	s.updatedAt = time.Time{}
}

// Load opens documentID for userID. The sentinel id yields the starter
// template. A Load with the same (document, user) key as the previous attempt
// is ignored, whether that attempt is pending, succeeded or failed.
func (s *Session) Load(ctx context.Context, documentID, userID string) error {
	documentID = strings.TrimSpace(documentID)
	userID = strings.TrimSpace(userID)
	key := LoadKey(documentID, userID)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if key == s.lastAttemptedLoadKey {
		s.mu.Unlock()
		return nil
	}
	if s.dirty {
		// Runs after the lock is released on every path below.
		defer s.writeBackup(s.documentID, s.title, s.text)
	}
	s.lastAttemptedLoadKey = key
	s.loadGen++
	gen := s.loadGen
	s.auto.stop()
	s.userID = userID
	s.lastErr = nil
	s.lastSavedAt = s.clock.Now()

	if model.IsNewDocumentID(documentID) {
		s.resetToTemplateLocked()
		s.loadStatus = LoadLoaded
		s.observeLoad("new")
		s.unlockAndEmit(s.eventLocked(EventLoaded, "", nil))
		return nil
	}

	if userID == "" {
		err := newError(KindAuthRequired, "load", nil)
		s.resetToTemplateLocked()
		s.loadStatus = LoadFailed
		s.lastErr = err
		s.observeLoad("auth_required")
		s.unlockAndEmit(s.eventLocked(EventLoadFailed, "", err))
		return err
	}

	s.loadStatus = LoadLoading
	s.unlockAndEmit(s.eventLocked(EventLoading, "", nil))

	doc, err := s.store.Get(ctx, documentID)

	s.mu.Lock()
	if s.closed || gen != s.loadGen {
		// Torn down or superseded by a newer Load; the result belongs to nobody.
		s.mu.Unlock()
		return nil
	}
	var lerr *Error
	switch {
	case errors.Is(err, store.ErrNotFound):
		lerr = newError(KindNotFound, "load", err)
	case err != nil:
		lerr = newError(KindLoadFailed, "load", err)
	case !perm.CanReadDocument(userID, &doc):
		lerr = newError(KindPermissionDenied, "load", perm.ErrNotOwner)
	}
	if lerr != nil {
		// Never expose fetched content; drop the id so no save can target it.
		s.resetToTemplateLocked()
		s.loadStatus = LoadFailed
		s.lastErr = lerr
		s.observeLoad(outcomeForKind(lerr.Kind))
		s.logger.Info("document load failed",
			slog.String("document_id", documentID),
			slog.String("user_id", userID),
			slog.String("kind", lerr.Kind.String()))
		s.unlockAndEmit(s.eventLocked(EventLoadFailed, "", lerr))
		return lerr
	}

	s.documentID = doc.ID
	s.title = model.TitleFromFileName(doc.Title)
	s.text = doc.Content
	s.dirty = false
	s.revision++
	s.loadStatus = LoadLoaded
	s.saveStatus = SaveIdle
	s.updatedAt = doc.UpdatedAt
	s.lastSavedAt = s.clock.Now()
	s.observeLoad("ok")
	s.unlockAndEmit(s.eventLocked(EventLoaded, "", nil))
	return nil
}

// Edit replaces the buffer. It returns false when the edit was dropped
// (session closed or a load is pending).
func (s *Session) Edit(text string) bool {
	s.mu.Lock()
	if s.closed || s.loadStatus == LoadLoading {
		s.mu.Unlock()
		return false
	}
	if text == s.text {
		s.mu.Unlock()
		return true
	}
	s.text = text
	s.markDirtyLocked()
	s.unlockAndEmit(s.eventLocked(EventEdited, "", nil))
	return true
}

// SetTitle accepts either a bare title or a "<name>.md" file name.
func (s *Session) SetTitle(name string) bool {
	s.mu.Lock()
	if s.closed || s.loadStatus == LoadLoading {
		s.mu.Unlock()
		return false
	}
	title := model.TitleFromFileName(name)
	if title == s.title {
		s.mu.Unlock()
		return true
	}
	s.title = title
	s.markDirtyLocked()
	s.unlockAndEmit(s.eventLocked(EventEdited, "", nil))
	return true
}

// Replace swaps both title and text in one edit (restoring a local backup).
func (s *Session) Replace(title, text string) bool {
	s.mu.Lock()
	if s.closed || s.loadStatus == LoadLoading {
		s.mu.Unlock()
		return false
	}
	s.title = model.TitleFromFileName(title)
	s.text = text
	s.markDirtyLocked()
	s.unlockAndEmit(s.eventLocked(EventEdited, "", nil))
	return true
}

func (s *Session) markDirtyLocked() {
	s.dirty = true
	s.revision++
	if s.autoEligibleLocked() {
		s.auto.armDebounce()
		s.auto.armWatchdog(s.watchdogBaseLocked())
	}
}

// watchdogBaseLocked is the later of the last successful save and the last
// store attempt. A failed attempt restarts the ceiling.
func (s *Session) watchdogBaseLocked() time.Time {
	if s.lastAttemptAt.After(s.lastSavedAt) {
		return s.lastAttemptAt
	}
	return s.lastSavedAt
}

// autoEligibleLocked: auto-save is on, the document exists in the store and
// a user is known.
func (s *Session) autoEligibleLocked() bool {
	return s.autoSave && !model.IsNewDocumentID(s.documentID) && s.userID != ""
}

func (s *Session) SetViewMode(mode ViewMode) {
	s.mu.Lock()
	if s.closed || mode == "" || mode == s.viewMode {
		s.mu.Unlock()
		return
	}
	s.viewMode = mode
	s.unlockAndEmit(s.eventLocked(EventChanged, "", nil))
}

// SetAutoSave toggles both triggers. Manual save is unaffected.
func (s *Session) SetAutoSave(enabled bool) {
	s.mu.Lock()
	if s.closed || enabled == s.autoSave {
		s.mu.Unlock()
		return
	}
	s.autoSave = enabled
	if !enabled {
		s.auto.stop()
	} else if s.dirty && s.autoEligibleLocked() {
		s.auto.armDebounce()
		s.auto.armWatchdog(s.watchdogBaseLocked())
	}
	s.unlockAndEmit(s.eventLocked(EventChanged, "", nil))
}

// SetDelay changes the debounce delay for subsequent edits.
func (s *Session) SetDelay(d time.Duration) {
	if d <= 0 {
		return
	}
	s.mu.Lock()
	s.auto.delay = d
	s.mu.Unlock()
}

// Save persists the buffer. At most one store call is in flight per Session;
// a request that arrives meanwhile is coalesced into a single follow-up save
// that runs once the in-flight one settles, if the buffer changed or if a
// coalesced manual request is still owed a save after a failure.
func (s *Session) Save(ctx context.Context, trigger Trigger) (SaveResult, error) {
	if trigger == "" {
		trigger = TriggerManual
	}
	s.mu.Lock()
	if res, err, done := s.admitLocked(trigger); done {
		return res, err
	}
	if s.saving {
		s.followUp = true
		if trigger == TriggerManual || s.followUpTrigger == "" {
			s.followUpTrigger = trigger
		}
		res := SaveResult{DocumentID: s.documentID, Trigger: trigger, Coalesced: true}
		s.mu.Unlock()
		return res, nil
	}
	s.saving = true
	s.mu.Unlock()

	res, err := s.saveOnce(ctx, trigger)
	for {
		s.mu.Lock()
		retry := s.followUpTrigger == TriggerManual && IsKind(err, KindSaveFailed)
		if s.closed || !s.followUp || (s.revision == res.revision && !retry) {
			s.saving = false
			s.followUp = false
			s.followUpTrigger = ""
			s.mu.Unlock()
			return res.SaveResult, err
		}
		next := s.followUpTrigger
		s.followUp = false
		s.followUpTrigger = ""
		if _, _, done := s.admitLocked(next); done {
			s.mu.Lock()
			s.saving = false
			s.mu.Unlock()
			return res.SaveResult, err
		}
		s.mu.Unlock()

		nres, nerr := s.saveOnce(ctx, next)
		if nres.Created {
			res.Created = true
		}
		res.DocumentID = nres.DocumentID
		res.revision = nres.revision
		err = nerr
	}
}

// admitLocked decides whether a save may run. When done is true the lock has
// been released and (res, err) is the answer for the caller.
func (s *Session) admitLocked(trigger Trigger) (res SaveResult, err error, done bool) {
	if s.closed {
		s.mu.Unlock()
		return SaveResult{}, ErrClosed, true
	}
	skip := SaveResult{DocumentID: s.documentID, Trigger: trigger, Skipped: true}
	if s.loadStatus == LoadLoading {
		if trigger == TriggerManual {
			err := newError(KindSaveFailed, "save", errors.New("document is still loading"))
			s.mu.Unlock()
			return skip, err, true
		}
		s.mu.Unlock()
		return skip, nil, true
	}
	if s.userID == "" {
		if trigger == TriggerManual {
			err := newError(KindAuthRequired, "save", nil)
			s.unlockAndEmit(s.eventLocked(EventSaveFailed, trigger, err))
			return skip, err, true
		}
		s.mu.Unlock()
		return skip, nil, true
	}
	if trigger == TriggerAuto {
		if !s.autoSave || model.IsNewDocumentID(s.documentID) || !s.dirty {
			s.mu.Unlock()
			return skip, nil, true
		}
		return SaveResult{}, nil, false
	}
	// A manual save supersedes a pending debounce.
	s.auto.cancelDebounce()
	return SaveResult{}, nil, false
}

type saveOutcome struct {
	SaveResult
	revision uint64
}

func (s *Session) saveOnce(ctx context.Context, trigger Trigger) (saveOutcome, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return saveOutcome{}, ErrClosed
	}
	gen := s.loadGen
	rev := s.revision
	id, title, text, owner := s.documentID, s.title, s.text, s.userID
	s.saveStatus = SaveSaving
	s.lastTrigger = trigger
	s.lastAttemptAt = s.clock.Now()
	s.unlockAndEmit(s.eventLocked(EventSaving, trigger, nil))

	start := s.clock.Now()
	sctx, cancel := context.WithTimeout(ctx, s.saveTimeout)
	defer cancel()

	var doc model.Document
	var err error
	created := model.IsNewDocumentID(id)
	if created {
		doc, err = s.store.Create(sctx, owner, title, text)
	} else {
		doc, err = s.store.Update(sctx, id, model.DocumentPatch{Title: &title, Content: &text})
	}
	elapsed := s.clock.Now().Sub(start)

	s.mu.Lock()
	if s.closed || gen != s.loadGen {
		closed := s.closed
		s.mu.Unlock()
		s.observeSave(trigger, "discarded", elapsed)
		if closed {
			return saveOutcome{revision: rev}, ErrClosed
		}
		return saveOutcome{revision: rev}, ErrSuperseded
	}
	out := saveOutcome{SaveResult: SaveResult{DocumentID: id, Trigger: trigger}, revision: rev}

	if err != nil {
		serr := newError(KindSaveFailed, "save", err)
		s.saveStatus = SaveFailed
		s.dirty = true
		s.lastErr = serr
		if s.autoEligibleLocked() {
			// Retry on the next quiet period.
			s.auto.armDebounce()
		}
		s.observeSave(trigger, "error", elapsed)
		s.logger.Warn("document save failed",
			slog.String("document_id", id),
			slog.String("trigger", string(trigger)),
			slog.String("error", err.Error()))
		s.unlockAndEmit(s.eventLocked(EventSaveFailed, trigger, serr))
		s.writeBackup(id, title, text)
		return out, serr
	}

	if created {
		s.documentID = doc.ID
	}
	out.DocumentID = doc.ID
	out.Created = created
	s.saveStatus = SaveSaved
	s.lastErr = nil
	s.lastSavedAt = s.clock.Now()
	s.updatedAt = doc.UpdatedAt
	if s.revision == rev {
		s.dirty = false
	}
	s.auto.stopWatchdog()
	if s.dirty && s.autoEligibleLocked() {
		s.auto.armWatchdog(s.lastSavedAt)
		if s.revision != rev {
			// Edits made during the store call get their own quiet period.
			s.auto.armDebounce()
		}
	}
	s.observeSave(trigger, "ok", elapsed)
	s.logger.Debug("document saved",
		slog.String("document_id", doc.ID),
		slog.String("trigger", string(trigger)),
		slog.Bool("created", created))
	ev := s.eventLocked(EventSaved, trigger, nil)
	ev.Created = created
	s.unlockAndEmit(ev)
	return out, nil
}

func (s *Session) onTimer(kind timerKind, gen uint64) {
	s.mu.Lock()
	if s.closed || !s.auto.claim(kind, gen) {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	if _, err := s.Save(context.Background(), TriggerAuto); err != nil && !errors.Is(err, ErrClosed) {
		s.logger.Debug("auto-save failed", slog.String("timer", kind.String()), slog.String("error", err.Error()))
	}
}

// Close tears the session down: timers stop, listeners are dropped and any
// store result that settles later is discarded. A dirty buffer is handed to
// the backup sink; it is not saved.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.auto.stop()
	dirty := s.dirty
	id, title, text := s.documentID, s.title, s.text
	ev := s.eventLocked(EventClosed, "", nil)
	fns := make([]func(Event), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.listeners = map[int]func(Event){}
	s.emitMu.Lock()
	s.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
	s.emitMu.Unlock()
	if dirty {
		s.writeBackup(id, title, text)
	}
}

func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// PendingTimers reports which auto-save timers are armed.
func (s *Session) PendingTimers() (debounce, watchdog bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.auto.pending()
}

func (s *Session) writeBackup(id, title, text string) {
	if s.backup == nil {
		return
	}
	if err := s.backup(id, model.FileName(title), text); err != nil {
		s.logger.Warn("local backup failed", slog.String("error", err.Error()))
	}
}

func (s *Session) observeLoad(outcome string) {
	if s.observer != nil {
		s.observer.ObserveLoad(outcome)
	}
}

func (s *Session) observeSave(trigger Trigger, outcome string, d time.Duration) {
	if s.observer != nil {
		s.observer.ObserveSave(trigger, outcome, d)
	}
}

func outcomeForKind(k Kind) string {
	switch k {
	case KindAuthRequired:
		return "auth_required"
	case KindPermissionDenied:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	default:
		return "error"
	}
}
