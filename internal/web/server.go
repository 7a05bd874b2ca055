// Package web is the browser shell: server-rendered pages, auth gating and
// live editor sessions streamed over Datastar SSE.
package web

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"mdpreview/internal/auth"
	"mdpreview/internal/metrics"
	"mdpreview/internal/model"
	"mdpreview/internal/render"
	"mdpreview/internal/store"
	"mdpreview/internal/webtui"
)

//go:embed templates/*.html static/*.js static/*.css
var assetsFS embed.FS

const defaultDatastarURL = "https://cdn.jsdelivr.net/gh/starfederation/datastar@v1.0.0/bundles/datastar.js"

// EditorDefaults are the server-wide auto-save settings; per-user settings
// can only narrow them (a user may turn auto-save off, not force it on).
type EditorDefaults struct {
	AutoSave    bool
	Delay       time.Duration
	Ceiling     time.Duration
	SaveTimeout time.Duration
}

type ServerConfig struct {
	Addr    string
	BaseURL string

	DB      *store.DB
	Auth    *auth.Service
	Backups store.Backups
	Editor  EditorDefaults

	Metrics     *metrics.Metrics
	MetricsPath string
	Logger      *slog.Logger

	SecureCookies bool
	// DatastarURL overrides where the browser loads the Datastar client from.
	DatastarURL string
	// SessionIdle closes editor sessions whose page never opened a stream.
	SessionIdle time.Duration
	// Terminal, when set, serves the terminal editor at /terminal.
	Terminal *webtui.Terminal
}

type Server struct {
	cfg    ServerConfig
	tmpl   *template.Template
	logger *slog.Logger

	editors *editorRegistry

	stopOnce sync.Once
	stopCh   chan struct{}
}

type baseVM struct {
	Title       string
	Now         string
	User        *model.User
	Settings    model.Settings
	Notice      string
	Error       string
	DatastarURL string
	GoogleAuth  bool
	Terminal    bool
}

func (s *Server) baseVMForRequest(r *http.Request, title string) baseVM {
	u := userFromContext(r.Context())
	vm := baseVM{
		Title:       title,
		Now:         time.Now().Format(time.RFC3339),
		User:        u,
		Settings:    model.DefaultSettings(),
		DatastarURL: s.cfg.DatastarURL,
		GoogleAuth:  s.cfg.Auth.GoogleEnabled(),
		Terminal:    s.cfg.Terminal != nil,
	}
	if u != nil {
		if st, err := s.cfg.DB.Settings().Load(r.Context(), u.ID); err == nil {
			vm.Settings = st
		}
	}
	return vm
}

func NewServer(cfg ServerConfig) (*Server, error) {
	cfg.Addr = strings.TrimSpace(cfg.Addr)
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	cfg.MetricsPath = strings.TrimSpace(cfg.MetricsPath)
	if cfg.Addr == "" {
		return nil, errors.New("web: addr is empty")
	}
	if cfg.DB == nil {
		return nil, errors.New("web: db is nil")
	}
	if cfg.Auth == nil {
		return nil, errors.New("web: auth service is nil")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://" + cfg.Addr
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, errors.New("web: invalid base url")
	}
	if cfg.DatastarURL == "" {
		cfg.DatastarURL = defaultDatastarURL
	}
	if cfg.SessionIdle <= 0 {
		cfg.SessionIdle = 2 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	tmpl, err := template.New("base").Funcs(template.FuncMap{
		"trim":     strings.TrimSpace,
		"markdown": render.Template,
		"ago":      humanizeAgo,
		"date":     func(t time.Time) string { return t.Local().Format("Jan 2, 2006 15:04") },
		"kb":       humanizeSize,
	}).ParseFS(assetsFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	srv := &Server{
		cfg:    cfg,
		tmpl:   tmpl,
		logger: cfg.Logger,
		stopCh: make(chan struct{}),
	}
	srv.editors = newEditorRegistry(cfg.Metrics, cfg.Logger)
	go srv.reapLoop()
	return srv, nil
}

func (s *Server) Addr() string { return s.cfg.Addr }

// Close stops background work and closes every live editor session.
func (s *Server) Close() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		s.editors.closeAll()
	})
}

func (s *Server) reapLoop() {
	t := time.NewTicker(30 * time.Second)
	defer t.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case now := <-t.C:
			s.editors.reapIdle(now, s.cfg.SessionIdle)
		}
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /static/app.css", s.handleAppCSS)
	mux.HandleFunc("GET /static/app.js", s.handleAppJS)
	if s.cfg.Metrics != nil && s.cfg.MetricsPath != "" {
		mux.Handle("GET "+s.cfg.MetricsPath, s.cfg.Metrics.Handler())
	}

	mux.HandleFunc("GET /{$}", s.handleHome)
	mux.HandleFunc("GET /login", s.handleLoginGet)
	mux.HandleFunc("POST /login", s.handleLoginPost)
	mux.HandleFunc("GET /signup", s.handleSignupGet)
	mux.HandleFunc("POST /signup", s.handleSignupPost)
	mux.HandleFunc("POST /logout", s.handleLogoutPost)
	mux.HandleFunc("POST /logout/all", s.requireUser(s.handleLogoutAllPost))
	mux.HandleFunc("GET /forgot-password", s.handleForgotGet)
	mux.HandleFunc("POST /forgot-password", s.handleForgotPost)
	mux.HandleFunc("GET /reset-password", s.handleResetGet)
	mux.HandleFunc("POST /reset-password", s.handleResetPost)
	mux.HandleFunc("GET /verify", s.handleVerifyGet)
	mux.HandleFunc("POST /verify/resend", s.requireUser(s.handleVerifyResend))
	mux.HandleFunc("GET /auth/google", s.handleGoogleStart)
	mux.HandleFunc("GET /auth/google/callback", s.handleGoogleCallback)

	mux.HandleFunc("GET /dashboard", s.requireUser(s.handleDashboard))
	mux.HandleFunc("POST /documents/{docId}/duplicate", s.requireUser(s.handleDocumentDuplicate))
	mux.HandleFunc("POST /documents/{docId}/delete", s.requireUser(s.handleDocumentDelete))
	mux.HandleFunc("GET /documents/{docId}/raw", s.requireUser(s.handleDocumentRaw))

	mux.HandleFunc("GET /settings", s.requireUser(s.handleSettingsGet))
	mux.HandleFunc("POST /settings", s.requireUser(s.handleSettingsPost))
	mux.HandleFunc("POST /settings/profile", s.requireUser(s.handleProfilePost))
	mux.HandleFunc("POST /settings/email", s.requireUser(s.handleEmailPost))
	mux.HandleFunc("POST /settings/password", s.requireUser(s.handlePasswordPost))

	mux.HandleFunc("GET /editor/{docId}", s.handleEditor)
	mux.HandleFunc("GET /editor/sessions/{sid}/events", s.handleEditorEvents)
	mux.HandleFunc("POST /editor/sessions/{sid}/edit", s.handleEditorEdit)
	mux.HandleFunc("POST /editor/sessions/{sid}/title", s.handleEditorTitle)
	mux.HandleFunc("POST /editor/sessions/{sid}/save", s.handleEditorSave)
	mux.HandleFunc("POST /editor/sessions/{sid}/view", s.handleEditorView)
	mux.HandleFunc("POST /editor/sessions/{sid}/autosave", s.handleEditorAutoSave)
	mux.HandleFunc("POST /editor/sessions/{sid}/toolbar", s.handleEditorToolbar)
	mux.HandleFunc("POST /editor/sessions/{sid}/backup", s.handleEditorBackup)
	mux.HandleFunc("POST /editor/sessions/{sid}/close", s.handleEditorClose)

	if s.cfg.Terminal != nil {
		mux.HandleFunc("GET /static/terminal.js", s.handleTerminalJS)
		mux.HandleFunc("GET /terminal", s.requireUser(s.handleTerminal))
		mux.HandleFunc("GET /terminal/ws", s.handleTerminalWS)
	}

	return s.logRequests(mux, s.withUser(mux))
}

// safeNext keeps post-login redirects on this site.
func safeNext(next, fallback string) string {
	next = strings.TrimSpace(next)
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return fallback
	}
	return next
}

func (s *Server) serveAsset(w http.ResponseWriter, r *http.Request, name, contentType string) {
	b, err := assetsFS.ReadFile(name)
	if err != nil || len(b) == 0 {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

func (s *Server) handleAppJS(w http.ResponseWriter, r *http.Request) {
	s.serveAsset(w, r, "static/app.js", "application/javascript; charset=utf-8")
}

func (s *Server) handleAppCSS(w http.ResponseWriter, r *http.Request) {
	s.serveAsset(w, r, "static/app.css", "text/css; charset=utf-8")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

type resourceHub struct {
	mu   sync.Mutex
	subs map[chan struct{}]struct{}
}

func newResourceHub() *resourceHub {
	return &resourceHub{subs: map[chan struct{}]struct{}{}}
}

func (h *resourceHub) subscribe() (ch chan struct{}, cancel func()) {
	ch = make(chan struct{}, 8)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch, func() {
		h.mu.Lock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
		h.mu.Unlock()
	}
}

func (h *resourceHub) broadcast() {
	h.mu.Lock()
	for ch := range h.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	h.mu.Unlock()
}

func (h *resourceHub) closeAll() {
	h.mu.Lock()
	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
	h.mu.Unlock()
}

func (s *Server) renderTemplate(name string, data any) (string, error) {
	var b strings.Builder
	if err := s.tmpl.ExecuteTemplate(&b, name, data); err != nil {
		return "", err
	}
	return b.String(), nil
}

func (s *Server) writeHTMLTemplate(w http.ResponseWriter, name string, data any) {
	s.writeHTMLTemplateStatus(w, http.StatusOK, name, data)
}

func (s *Server) writeHTMLTemplateStatus(w http.ResponseWriter, status int, name string, data any) {
	html, err := s.renderTemplate(name, data)
	if err != nil {
		s.logger.Error("render template failed", slog.String("template", name), slog.String("error", err.Error()))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, html)
}

func (s *Server) serverError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error("request failed",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()))
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func (s *Server) absURL(path string) string {
	return s.cfg.BaseURL + path
}

func (s *Server) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), 10*time.Second)
}
