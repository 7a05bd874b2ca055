package web

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/starfederation/datastar-go/datastar"

	"mdpreview/internal/editor"
	"mdpreview/internal/metrics"
	"mdpreview/internal/model"
	"mdpreview/internal/render"
	"mdpreview/internal/store"
	"mdpreview/internal/toolbar"
)

type notice struct {
	Level string
	Text  string
}

// editorEntry is one open editor page: a Session plus the hub its SSE
// streams listen on.
type editorEntry struct {
	id     string
	userID string
	// pageDocID is the id the page URL was opened with.
	pageDocID string
	sess      *editor.Session
	hub       *resourceHub

	unsubscribe func()

	mu       sync.Mutex
	notice   notice
	streams  int
	lastSeen time.Time
}

func (e *editorEntry) touch(now time.Time) {
	e.mu.Lock()
	e.lastSeen = now
	e.mu.Unlock()
}

func (e *editorEntry) setNotice(n notice) {
	e.mu.Lock()
	e.notice = n
	e.mu.Unlock()
}

func (e *editorEntry) currentNotice() notice {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.notice
}

// observe runs as a Session listener; it only records and wakes streams.
func (e *editorEntry) observe(ev editor.Event) {
	switch ev.Kind {
	case editor.EventLoadFailed:
		e.setNotice(notice{Level: "error", Text: editor.UserMessage(ev.Err)})
	case editor.EventSaveFailed:
		if ev.Trigger == editor.TriggerManual {
			e.setNotice(notice{Level: "error", Text: editor.UserMessage(ev.Err)})
		}
	case editor.EventSaved:
		if ev.Created {
			e.setNotice(notice{Level: "info", Text: "Document created."})
		} else if ev.Trigger == editor.TriggerManual {
			e.setNotice(notice{})
		}
	}
	e.hub.broadcast()
}

type editorRegistry struct {
	mu      sync.Mutex
	entries map[string]*editorEntry

	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

func newEditorRegistry(m *metrics.Metrics, logger *slog.Logger) *editorRegistry {
	return &editorRegistry{
		entries: map[string]*editorEntry{},
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

func (reg *editorRegistry) add(e *editorEntry) {
	e.lastSeen = reg.now()
	e.unsubscribe = e.sess.Subscribe(e.observe)
	reg.mu.Lock()
	reg.entries[e.id] = e
	reg.mu.Unlock()
	reg.metrics.SessionOpened()
}

// get returns the entry only to the user who opened it.
func (reg *editorRegistry) get(id, userID string) (*editorEntry, bool) {
	reg.mu.Lock()
	e, ok := reg.entries[id]
	reg.mu.Unlock()
	if !ok || e.userID != userID {
		return nil, false
	}
	e.touch(reg.now())
	return e, true
}

func (reg *editorRegistry) remove(id string) {
	reg.mu.Lock()
	e, ok := reg.entries[id]
	delete(reg.entries, id)
	reg.mu.Unlock()
	if !ok {
		return
	}
	e.unsubscribe()
	e.sess.Close()
	e.hub.closeAll()
	reg.metrics.SessionClosed()
	reg.logger.Debug("editor session closed", slog.String("session_id", id))
}

func (reg *editorRegistry) ids(match func(*editorEntry) bool) []string {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	var out []string
	for id, e := range reg.entries {
		if match(e) {
			out = append(out, id)
		}
	}
	return out
}

func (reg *editorRegistry) closeUser(userID string) {
	for _, id := range reg.ids(func(e *editorEntry) bool { return e.userID == userID }) {
		reg.remove(id)
	}
}

func (reg *editorRegistry) closeAll() {
	for _, id := range reg.ids(func(*editorEntry) bool { return true }) {
		reg.remove(id)
	}
}

// reapIdle closes sessions with no open stream that have been quiet for idle.
func (reg *editorRegistry) reapIdle(now time.Time, idle time.Duration) int {
	stale := reg.ids(func(e *editorEntry) bool {
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.streams == 0 && now.Sub(e.lastSeen) >= idle
	})
	for _, id := range stale {
		reg.remove(id)
	}
	return len(stale)
}

func (reg *editorRegistry) count() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return len(reg.entries)
}

// applySettings pushes changed auto-save preferences into the user's open sessions.
func (reg *editorRegistry) applySettings(userID string, st model.Settings, d EditorDefaults) {
	opts := sessionAutoSave(st, d)
	for _, id := range reg.ids(func(e *editorEntry) bool { return e.userID == userID }) {
		reg.mu.Lock()
		e, ok := reg.entries[id]
		reg.mu.Unlock()
		if !ok {
			continue
		}
		e.sess.SetDelay(opts.Delay)
		e.sess.SetAutoSave(opts.AutoSave)
	}
}

// sessionAutoSave combines server defaults with a user's preferences. A user
// can turn auto-save off but not force it on.
func sessionAutoSave(st model.Settings, d EditorDefaults) editor.Options {
	delay := d.Delay
	if st.AutoSaveDelayMS > 0 {
		delay = st.AutoSaveDelay()
	}
	return editor.Options{
		AutoSave:    d.AutoSave && st.AutoSave,
		Delay:       delay,
		Ceiling:     d.Ceiling,
		SaveTimeout: d.SaveTimeout,
	}
}

func (s *Server) newEditorEntry(userID, docID string, st model.Settings) *editorEntry {
	id := uuid.NewString()
	opts := sessionAutoSave(st, s.cfg.Editor)
	if vm, err := editor.ParseViewMode(st.ViewMode); err == nil {
		opts.ViewMode = vm
	}
	opts.Observer = s.cfg.Metrics
	opts.Logger = s.logger.With(slog.String("session_id", id))
	if strings.TrimSpace(userID) != "" {
		backups := s.cfg.Backups
		opts.Backup = func(documentID, fileName, content string) error {
			if model.IsNewDocumentID(documentID) {
				documentID = ""
			}
			return backups.Save(userID, store.Backup{
				DocumentID: documentID,
				FileName:   fileName,
				Content:    content,
			})
		}
	}
	return &editorEntry{
		id:        id,
		userID:    userID,
		pageDocID: docID,
		sess:      editor.NewSession(s.cfg.DB.Documents(), opts),
		hub:       newResourceHub(),
	}
}

type editorVM struct {
	baseVM
	SessionID  string
	State      editor.State
	Preview    template.HTML
	Stats      render.TextStats
	Toolbar    []toolbar.Kind
	ViewModes  []editor.ViewMode
	Signals    string
	RedirectTo string
	Alert      notice
}

func userID(r *http.Request) string {
	if u := userFromContext(r.Context()); u != nil {
		return u.ID
	}
	return ""
}

func (s *Server) handleEditor(w http.ResponseWriter, r *http.Request) {
	docID := strings.TrimSpace(r.PathValue("docId"))
	if docID == "" {
		docID = model.NewDocumentID
	}
	uid := userID(r)
	base := s.baseVMForRequest(r, "Editor")

	e := s.newEditorEntry(uid, docID, base.Settings)
	ctx, cancel := s.requestContext(r)
	err := e.sess.Load(ctx, docID, uid)
	cancel()

	vm := editorVM{baseVM: base, SessionID: e.id}
	switch kind, _ := editor.KindOf(err); {
	case err == nil:
	case kind == editor.KindAuthRequired:
		e.sess.Close()
		http.Redirect(w, r, loginURL("/editor/"+docID), http.StatusSeeOther)
		return
	case kind == editor.KindPermissionDenied || kind == editor.KindNotFound:
		vm.Alert = notice{Level: "error", Text: editor.UserMessage(err)}
		vm.RedirectTo = "/dashboard"
	default:
		vm.Alert = notice{Level: "error", Text: editor.UserMessage(err)}
	}
	s.editors.add(e)

	st := e.sess.Snapshot()
	vm.Title = st.FileName()
	vm.State = st
	vm.Preview = render.Template(st.Text)
	vm.Stats = render.Stats(st.Text)
	vm.Toolbar = toolbar.Kinds()
	vm.ViewModes = []editor.ViewMode{editor.ViewEditor, editor.ViewSplit, editor.ViewPreview}
	sig, _ := json.Marshal(map[string]any{
		"sid":        e.id,
		"content":    st.Text,
		"fileName":   st.FileName(),
		"viewMode":   string(st.ViewMode),
		"autoSave":   st.AutoSave,
		"docId":      st.DocumentID,
		"dirty":      st.Dirty,
		"saveStatus": string(st.SaveStatus),
		"kind":       "",
		"selStart":   0,
		"selEnd":     0,
	})
	vm.Signals = string(sig)
	s.writeHTMLTemplate(w, "editor.html", vm)
}

type editorStatusVM struct {
	State editor.State
	Stats render.TextStats
}

func (s *Server) renderEditorPatches(sse *datastar.ServerSentEventGenerator, e *editorEntry, st editor.State, withPreview bool) {
	if html, err := s.renderTemplate("editor_status", editorStatusVM{State: st, Stats: render.Stats(st.Text)}); err == nil {
		_ = sse.PatchElements(html, datastar.WithSelector("#editor-status"), datastar.WithMode(datastar.ElementPatchModeOuter))
	} else {
		_ = sse.ExecuteScript(fmt.Sprintf(`console.error(%q)`, err.Error()))
	}
	if html, err := s.renderTemplate("editor_notice", e.currentNotice()); err == nil {
		_ = sse.PatchElements(html, datastar.WithSelector("#editor-notice"), datastar.WithMode(datastar.ElementPatchModeOuter))
	}
	if withPreview {
		_ = sse.PatchElements(render.HTML(st.Text), datastar.WithSelector("#preview"), datastar.WithMode(datastar.ElementPatchModeInner))
	}
	_ = sse.MarshalAndPatchSignals(map[string]any{
		"docId":      st.DocumentID,
		"dirty":      st.Dirty,
		"saveStatus": string(st.SaveStatus),
		"viewMode":   string(st.ViewMode),
		"autoSave":   st.AutoSave,
	})
}

// handleEditorEvents streams status, preview and notices for one editor page.
func (s *Server) handleEditorEvents(w http.ResponseWriter, r *http.Request) {
	e, ok := s.editors.get(r.PathValue("sid"), userID(r))
	if !ok {
		http.NotFound(w, r)
		return
	}
	e.mu.Lock()
	e.streams++
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.streams--
		e.lastSeen = s.editors.now()
		e.mu.Unlock()
	}()

	ch, cancel := e.hub.subscribe()
	defer cancel()

	sse := datastar.NewSSE(w, r)

	urlDocID := e.pageDocID
	var lastRev uint64
	push := func(first bool) {
		st := e.sess.Snapshot()
		s.renderEditorPatches(sse, e, st, first || st.Revision != lastRev)
		lastRev = st.Revision
		if st.Persisted() && st.DocumentID != urlDocID {
			urlDocID = st.DocumentID
			_ = sse.ExecuteScript(fmt.Sprintf(`history.replaceState(null, "", %q)`, "/editor/"+urlDocID))
		}
	}
	push(true)

	keepAlive := time.NewTicker(25 * time.Second)
	defer keepAlive.Stop()

	for {
		select {
		case <-sse.Context().Done():
			return
		case <-keepAlive.C:
			_ = sse.PatchSignals([]byte(`{}`))
		case _, open := <-ch:
			if !open {
				return
			}
			if e.sess.Closed() {
				return
			}
			push(false)
		}
	}
}

type editorReq struct {
	Content  string `json:"content"`
	FileName string `json:"fileName"`
	ViewMode string `json:"viewMode"`
	AutoSave *bool  `json:"autoSave"`
	Kind     string `json:"kind"`
	SelStart int    `json:"selStart"`
	SelEnd   int    `json:"selEnd"`
}

func (s *Server) editorRequest(w http.ResponseWriter, r *http.Request) (*editorEntry, editorReq, bool) {
	var req editorReq
	e, ok := s.editors.get(r.PathValue("sid"), userID(r))
	if !ok {
		http.Error(w, "editor session expired", http.StatusNotFound)
		return nil, req, false
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return nil, req, false
	}
	return e, req, true
}

func (s *Server) handleEditorEdit(w http.ResponseWriter, r *http.Request) {
	e, req, ok := s.editorRequest(w, r)
	if !ok {
		return
	}
	e.sess.Edit(req.Content)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleEditorTitle(w http.ResponseWriter, r *http.Request) {
	e, req, ok := s.editorRequest(w, r)
	if !ok {
		return
	}
	e.sess.SetTitle(req.FileName)
	sse := datastar.NewSSE(w, r)
	_ = sse.MarshalAndPatchSignals(map[string]any{"fileName": e.sess.Snapshot().FileName()})
}

func (s *Server) handleEditorView(w http.ResponseWriter, r *http.Request) {
	e, req, ok := s.editorRequest(w, r)
	if !ok {
		return
	}
	mode, err := editor.ParseViewMode(req.ViewMode)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	e.sess.SetViewMode(mode)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleEditorAutoSave(w http.ResponseWriter, r *http.Request) {
	e, req, ok := s.editorRequest(w, r)
	if !ok {
		return
	}
	if req.AutoSave == nil {
		http.Error(w, "missing autoSave", http.StatusBadRequest)
		return
	}
	e.sess.SetAutoSave(*req.AutoSave)
	w.WriteHeader(http.StatusNoContent)
}

// saveContext outlives the request: a client that disconnects mid-save does
// not abort the store write.
func (s *Server) saveContext(r *http.Request) (context.Context, context.CancelFunc) {
	timeout := s.cfg.Editor.SaveTimeout
	if timeout <= 0 {
		timeout = editor.DefaultSaveTimeout
	}
	return context.WithTimeout(context.WithoutCancel(r.Context()), timeout)
}

// handleEditorSave is the manual save (button or Ctrl+S). The text in the
// request is applied first so a save never misses the last keystrokes.
func (s *Server) handleEditorSave(w http.ResponseWriter, r *http.Request) {
	e, req, ok := s.editorRequest(w, r)
	if !ok {
		return
	}
	if e.sess.Snapshot().LoadStatus != editor.LoadLoading {
		e.sess.Edit(req.Content)
	}
	ctx, cancel := s.saveContext(r)
	defer cancel()
	_, err := e.sess.Save(ctx, editor.TriggerManual)

	sse := datastar.NewSSE(w, r)
	switch {
	case err == nil:
		st := e.sess.Snapshot()
		_ = sse.MarshalAndPatchSignals(map[string]any{"docId": st.DocumentID, "dirty": st.Dirty, "saveStatus": string(st.SaveStatus)})
	case editor.IsKind(err, editor.KindAuthRequired):
		_ = sse.ExecuteScript(fmt.Sprintf(`window.location.assign(%q)`, loginURL("/editor/"+model.NewDocumentID)))
	default:
		s.logger.Warn("manual save failed", slog.String("session_id", e.id), slog.String("error", err.Error()))
		if html, rerr := s.renderTemplate("editor_notice", e.currentNotice()); rerr == nil {
			_ = sse.PatchElements(html, datastar.WithSelector("#editor-notice"), datastar.WithMode(datastar.ElementPatchModeOuter))
		}
	}
}

// handleEditorToolbar applies a formatting action. Selection offsets are rune
// indexes; app.js converts from and to the textarea's UTF-16 offsets.
func (s *Server) handleEditorToolbar(w http.ResponseWriter, r *http.Request) {
	e, req, ok := s.editorRequest(w, r)
	if !ok {
		return
	}
	kind, err := toolbar.ParseKind(req.Kind)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	res := toolbar.Apply(req.Content, req.SelStart, req.SelEnd, kind)
	e.sess.Edit(res.Text)

	sse := datastar.NewSSE(w, r)
	_ = sse.MarshalAndPatchSignals(map[string]any{"content": res.Text})
	_ = sse.ExecuteScript(fmt.Sprintf(`window.mdpreview && window.mdpreview.select(%d, %d)`, res.Start, res.End))
}

// handleEditorBackup restores the user's local backup into the buffer.
func (s *Server) handleEditorBackup(w http.ResponseWriter, r *http.Request) {
	e, _, ok := s.editorRequest(w, r)
	if !ok {
		return
	}
	sse := datastar.NewSSE(w, r)
	var bk *store.Backup
	var err error
	if e.userID != "" {
		bk, err = s.cfg.Backups.Load(e.userID)
	}
	switch {
	case err != nil:
		s.logger.Warn("load backup failed", slog.String("error", err.Error()))
		e.setNotice(notice{Level: "error", Text: "Could not read the local backup."})
	case bk == nil:
		e.setNotice(notice{Level: "info", Text: "No local backup found."})
	default:
		e.sess.Replace(model.TitleFromFileName(bk.FileName), bk.Content)
		e.setNotice(notice{Level: "info", Text: fmt.Sprintf("Loaded backup from %s.", bk.SavedAt.Local().Format("Jan 2 15:04"))})
		_ = sse.MarshalAndPatchSignals(map[string]any{"content": bk.Content, "fileName": model.FileName(bk.FileName)})
	}
	if html, rerr := s.renderTemplate("editor_notice", e.currentNotice()); rerr == nil {
		_ = sse.PatchElements(html, datastar.WithSelector("#editor-notice"), datastar.WithMode(datastar.ElementPatchModeOuter))
	}
}

// handleEditorClose is sent by the page on unload.
func (s *Server) handleEditorClose(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.editors.get(r.PathValue("sid"), userID(r)); ok {
		s.editors.remove(r.PathValue("sid"))
	}
	w.WriteHeader(http.StatusNoContent)
}
