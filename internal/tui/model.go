package tui

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"mdpreview/internal/editor"
	"mdpreview/internal/model"
	"mdpreview/internal/render"
	"mdpreview/internal/toolbar"
)

type screen int

const (
	screenEditor screen = iota
	screenDocuments
)

type noticeLevel int

const (
	noticeInfo noticeLevel = iota
	noticeError
)

type notice struct {
	level noticeLevel
	text  string
}

type (
	sessionEventMsg struct {
		kind    editor.EventKind
		trigger editor.Trigger
		created bool
		err     error
	}
	loadDoneMsg struct {
		id  string
		err error
	}
	saveDoneMsg struct {
		res editor.SaveResult
		err error
	}
	docsLoadedMsg struct {
		docs []model.Document
		err  error
	}
)

const opTimeout = 15 * time.Second

type docItem struct{ doc model.Document }

func (d docItem) Title() string { return d.doc.FileName() }
func (d docItem) Description() string {
	return fmt.Sprintf("updated %s · %d words", d.doc.UpdatedAt.Local().Format("Jan 2 15:04"), len(strings.Fields(d.doc.Content)))
}
func (d docItem) FilterValue() string { return d.doc.Title }

type appModel struct {
	opts Options
	sess *editor.Session
	keys keyMap
	help help.Model

	screen        screen
	width, height int

	ta       textarea.Model
	title    textinput.Model
	renaming bool
	preview  viewport.Model
	docs     list.Model

	state        editor.State
	renderedRev  uint64
	renderedText string
	renderedW    int

	notice   notice
	alert    string
	showHelp bool
}

func newAppModel(sess *editor.Session, opts Options) appModel {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	ta := textarea.New()
	ta.Placeholder = "Start writing markdown..."
	ta.ShowLineNumbers = opts.Settings.LineNumbers
	ta.CharLimit = 0
	ta.MaxHeight = 0
	ta.Prompt = ""
	ta.Focus()

	ti := textinput.New()
	ti.Prompt = "File name: "
	ti.CharLimit = 200

	docs := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	docs.Title = "Documents"
	docs.SetShowHelp(true)

	return appModel{
		opts:    opts,
		sess:    sess,
		keys:    defaultKeyMap(),
		help:    help.New(),
		ta:      ta,
		title:   ti,
		preview: viewport.New(0, 0),
		docs:    docs,
		state:   sess.Snapshot(),
	}
}

func (m appModel) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.loadCmd(m.opts.DocumentID))
}

// loadCmd flushes an eligible dirty buffer with an auto-save, then loads id.
func (m appModel) loadCmd(id string) tea.Cmd {
	sess, userID := m.sess, m.opts.UserID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		if sess.Snapshot().Dirty {
			_, _ = sess.Save(ctx, editor.TriggerAuto)
		}
		return loadDoneMsg{id: id, err: sess.Load(ctx, id, userID)}
	}
}

func (m appModel) saveCmd() tea.Cmd {
	sess := m.sess
	return func() tea.Msg {
		res, err := sess.Save(context.Background(), editor.TriggerManual)
		return saveDoneMsg{res: res, err: err}
	}
}

func (m appModel) listDocsCmd() tea.Cmd {
	docs, userID := m.opts.Docs, m.opts.UserID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		list, err := docs.ListByOwner(ctx, userID)
		return docsLoadedMsg{docs: list, err: err}
	}
}

func (m *appModel) setNotice(level noticeLevel, format string, args ...any) {
	m.notice = notice{level: level, text: fmt.Sprintf(format, args...)}
}

func (m *appModel) syncState() {
	m.state = m.sess.Snapshot()
}

// resetBuffer copies the session text into the textarea.
func (m *appModel) resetBuffer() {
	m.syncState()
	setTextareaValue(&m.ta, m.state.Text, 0)
	m.refreshPreview()
}

func (m *appModel) refreshPreview() {
	if m.preview.Width <= 0 {
		return
	}
	if m.renderedRev == m.state.Revision && m.renderedText == m.state.Text && m.renderedW == m.preview.Width {
		return
	}
	m.preview.SetContent(renderMarkdown(m.state.Text, m.preview.Width))
	m.renderedRev, m.renderedText, m.renderedW = m.state.Revision, m.state.Text, m.preview.Width
}

func (m *appModel) layout() {
	bodyH := m.height - 4
	if bodyH < 3 {
		bodyH = 3
	}
	inner := func(w int) int {
		if w < 4 {
			return 1
		}
		return w - 2
	}
	switch m.state.ViewMode {
	case editor.ViewEditor:
		m.ta.SetWidth(inner(m.width))
		m.preview.Width = inner(m.width)
	case editor.ViewPreview:
		m.ta.SetWidth(inner(m.width))
		m.preview.Width = inner(m.width)
	default:
		l, r := splitWidths(m.width)
		m.ta.SetWidth(inner(l))
		m.preview.Width = inner(r)
	}
	m.ta.SetHeight(bodyH - 2)
	m.preview.Height = bodyH - 2
	m.docs.SetSize(m.width, m.height-1)
	m.help.Width = m.width
	m.refreshPreview()
}

func (m appModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.layout()
		return m, nil

	case sessionEventMsg:
		m.syncState()
		switch {
		case msg.kind == editor.EventSaved && msg.created:
			m.setNotice(noticeInfo, "Created %s.", m.state.FileName())
		case msg.kind == editor.EventSaved && msg.trigger == editor.TriggerManual:
			m.setNotice(noticeInfo, "Saved %s.", m.state.FileName())
		case msg.kind == editor.EventSaveFailed && msg.trigger == editor.TriggerAuto:
			m.opts.Logger.Warn("auto-save failed", slog.String("document_id", m.state.DocumentID))
		case msg.kind == editor.EventSaveFailed && !editor.IsKind(msg.err, editor.KindAuthRequired):
			m.alert = editor.UserMessage(msg.err)
		}
		m.refreshPreview()
		return m, nil

	case loadDoneMsg:
		return m.handleLoaded(msg)

	case saveDoneMsg:
		m.syncState()
		switch {
		case msg.err == nil:
			switch {
			case msg.res.Coalesced:
				// The outcome arrives as a session event once the queued save runs.
				m.setNotice(noticeInfo, "Saving %s...", m.state.FileName())
			case !msg.res.Skipped:
				m.setNotice(noticeInfo, "Saved %s.", m.state.FileName())
			}
		case editor.IsKind(msg.err, editor.KindAuthRequired):
			m.alert = "Sign in with `mdpreview login` to save documents."
		default:
			m.alert = editor.UserMessage(msg.err)
		}
		return m, nil

	case docsLoadedMsg:
		if msg.err != nil {
			m.setNotice(noticeError, "Could not list documents: %v", msg.err)
			return m, nil
		}
		items := make([]list.Item, 0, len(msg.docs))
		for _, d := range msg.docs {
			items = append(items, docItem{doc: d})
		}
		cmd := m.docs.SetItems(items)
		m.screen = screenDocuments
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	if m.screen == screenDocuments {
		m.docs, cmd = m.docs.Update(msg)
		return m, cmd
	}
	m.ta, cmd = m.ta.Update(msg)
	return m, cmd
}

func (m appModel) handleLoaded(msg loadDoneMsg) (tea.Model, tea.Cmd) {
	m.resetBuffer()
	m.layout()
	if msg.err == nil {
		if m.state.Persisted() {
			m.setNotice(noticeInfo, "Opened %s.", m.state.FileName())
		}
		return m, nil
	}
	kind, _ := editor.KindOf(msg.err)
	switch kind {
	case editor.KindAuthRequired:
		m.setNotice(noticeError, "Sign in with `mdpreview login` to open stored documents.")
	case editor.KindPermissionDenied, editor.KindNotFound:
		m.setNotice(noticeError, "%s", editor.UserMessage(msg.err))
		if m.opts.UserID != "" {
			return m, m.listDocsCmd()
		}
	default:
		m.setNotice(noticeError, "%s", editor.UserMessage(msg.err))
	}
	return m, nil
}

func (m appModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.alert != "" {
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case msg.Type == tea.KeyEnter || msg.Type == tea.KeyEsc:
			m.alert = ""
		}
		return m, nil
	}
	if key.Matches(msg, m.keys.Quit) {
		return m, tea.Quit
	}

	if m.screen == screenDocuments {
		return m.handleDocumentsKey(msg)
	}
	if m.renaming {
		return m.handleRenameKey(msg)
	}
	if m.state.LoadStatus == editor.LoadLoading {
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Save):
		return m, m.saveCmd()
	case key.Matches(msg, m.keys.ViewEditor):
		return m.setViewMode(editor.ViewEditor), nil
	case key.Matches(msg, m.keys.ViewSplit):
		return m.setViewMode(editor.ViewSplit), nil
	case key.Matches(msg, m.keys.ViewPreview):
		return m.setViewMode(editor.ViewPreview), nil
	case key.Matches(msg, m.keys.Rename):
		m.renaming = true
		m.title.SetValue(m.state.FileName())
		m.title.CursorEnd()
		m.ta.Blur()
		return m, m.title.Focus()
	case key.Matches(msg, m.keys.Documents):
		if m.opts.UserID == "" {
			m.setNotice(noticeError, "Sign in with `mdpreview login` to see your documents.")
			return m, nil
		}
		return m, m.listDocsCmd()
	case key.Matches(msg, m.keys.New):
		return m, m.loadCmd(model.NewDocumentID)
	case key.Matches(msg, m.keys.Backup):
		m.loadBackup()
		return m, nil
	case key.Matches(msg, m.keys.CopyMD):
		m.copy(m.ta.Value(), "markdown")
		return m, nil
	case key.Matches(msg, m.keys.CopyHTML):
		m.copy(render.HTML(m.ta.Value()), "HTML")
		return m, nil
	case key.Matches(msg, m.keys.AutoSave):
		m.sess.SetAutoSave(!m.state.AutoSave)
		m.syncState()
		if m.state.AutoSave {
			m.setNotice(noticeInfo, "Auto-save on.")
		} else {
			m.setNotice(noticeInfo, "Auto-save off.")
		}
		return m, nil
	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp
		m.help.ShowAll = m.showHelp
		return m, nil
	}
	for _, kind := range toolbar.Kinds() {
		if key.Matches(msg, m.keys.Toolbar[kind]) {
			m.applyToolbar(kind)
			return m, nil
		}
	}

	var cmd tea.Cmd
	if m.state.ViewMode == editor.ViewPreview {
		m.preview, cmd = m.preview.Update(msg)
		return m, cmd
	}
	before := m.ta.Value()
	m.ta, cmd = m.ta.Update(msg)
	if after := m.ta.Value(); after != before {
		m.sess.Edit(after)
		m.syncState()
		m.refreshPreview()
	}
	return m, cmd
}

func (m appModel) handleDocumentsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.docs.FilterState() != list.Filtering {
		switch msg.Type {
		case tea.KeyEsc:
			m.screen = screenEditor
			return m, nil
		case tea.KeyEnter:
			it, ok := m.docs.SelectedItem().(docItem)
			if !ok {
				return m, nil
			}
			m.screen = screenEditor
			return m, m.loadCmd(it.doc.ID)
		}
	}
	var cmd tea.Cmd
	m.docs, cmd = m.docs.Update(msg)
	return m, cmd
}

func (m appModel) handleRenameKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		m.sess.SetTitle(m.title.Value())
		m.syncState()
		fallthrough
	case tea.KeyEsc:
		m.renaming = false
		m.title.Blur()
		return m, m.ta.Focus()
	}
	var cmd tea.Cmd
	m.title, cmd = m.title.Update(msg)
	return m, cmd
}

func (m appModel) setViewMode(mode editor.ViewMode) appModel {
	m.sess.SetViewMode(mode)
	m.syncState()
	if mode == editor.ViewPreview {
		m.ta.Blur()
	} else {
		m.ta.Focus()
	}
	m.layout()
	return m
}

// applyToolbar formats at the cursor. The textarea has no selection, so the
// operation always inserts its placeholder and leaves the cursor after it.
func (m *appModel) applyToolbar(kind toolbar.Kind) {
	off := textareaOffset(&m.ta)
	res := toolbar.Apply(m.ta.Value(), off, off, kind)
	setTextareaValue(&m.ta, res.Text, res.End)
	m.sess.Edit(res.Text)
	m.syncState()
	m.refreshPreview()
}

func (m *appModel) loadBackup() {
	if m.opts.UserID == "" {
		m.setNotice(noticeError, "Local backups are kept per account. Sign in first.")
		return
	}
	bk, err := m.opts.Backups.Load(m.opts.UserID)
	switch {
	case err != nil:
		m.setNotice(noticeError, "Could not read the local backup: %v", err)
	case bk == nil:
		m.setNotice(noticeInfo, "No local backup found.")
	default:
		m.sess.Replace(model.TitleFromFileName(bk.FileName), bk.Content)
		m.resetBuffer()
		m.setNotice(noticeInfo, "Loaded backup from %s.", bk.SavedAt.Local().Format("Jan 2 15:04"))
	}
}

func (m *appModel) copy(s, what string) {
	if err := copyToClipboard(s); err != nil {
		m.setNotice(noticeError, "Copy failed: %v", err)
		return
	}
	m.setNotice(noticeInfo, "Copied %s to the clipboard.", what)
}
