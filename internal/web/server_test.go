package web

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"mdpreview/internal/auth"
	"mdpreview/internal/metrics"
	"mdpreview/internal/model"
	"mdpreview/internal/store"
)

type testEnv struct {
	srv     *Server
	ts      *httptest.Server
	db      *store.DB
	auth    *auth.Service
	metrics *metrics.Metrics
	backups store.Backups
}

func newTestEnv(t *testing.T, opts ...func(*ServerConfig)) *testEnv {
	t.Helper()
	dir := t.TempDir()
	st := store.Store{Dir: dir}
	db, err := st.Open(context.Background())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	svc, err := auth.NewService(db.Users(), auth.Config{
		Secret:     []byte("0123456789abcdef0123456789abcdef"),
		BcryptCost: bcrypt.MinCost,
		Outbox:     auth.Outbox{Dir: filepath.Join(dir, "outbox")},
	})
	if err != nil {
		t.Fatalf("auth: %v", err)
	}

	m := metrics.New()
	cfg := ServerConfig{
		Addr:        "127.0.0.1:0",
		BaseURL:     "http://example.test",
		DB:          db,
		Auth:        svc,
		Backups:     st.Backups(),
		Metrics:     m,
		MetricsPath: "/metrics",
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		Editor: EditorDefaults{
			AutoSave: true,
			Delay:    time.Minute,
			Ceiling:  time.Hour,
		},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	srv, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
	})
	return &testEnv{srv: srv, ts: ts, db: db, auth: svc, metrics: m, backups: st.Backups()}
}

func (e *testEnv) register(t *testing.T, email string) (model.User, string) {
	t.Helper()
	u, token, err := e.auth.Register(context.Background(), auth.RegisterInput{
		FirstName: "Test", LastName: "User", Email: email, Password: "correct horse",
	})
	if err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	return u, token
}

func (e *testEnv) do(t *testing.T, method, path, token string, body io.Reader, contentType string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, e.ts.URL+path, body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: token})
	}
	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (e *testEnv) get(t *testing.T, path, token string) *http.Response {
	return e.do(t, http.MethodGet, path, token, nil, "")
}

func (e *testEnv) postForm(t *testing.T, path, token string, form url.Values) *http.Response {
	return e.do(t, http.MethodPost, path, token, strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
}

func (e *testEnv) postJSON(t *testing.T, path, token, body string) *http.Response {
	return e.do(t, http.MethodPost, path, token, strings.NewReader(body), "application/json")
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(b)
}

func cookieValue(resp *http.Response, name string) (string, bool) {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c.Value, true
		}
	}
	return "", false
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	resp := env.get(t, "/health", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if got := readBody(t, resp); got != "ok\n" {
		t.Fatalf("body = %q", got)
	}
}

func TestStaticAssets(t *testing.T) {
	env := newTestEnv(t)
	for path, ct := range map[string]string{
		"/static/app.js":  "application/javascript",
		"/static/app.css": "text/css",
	} {
		resp := env.get(t, path, "")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s status = %d", path, resp.StatusCode)
		}
		if !strings.HasPrefix(resp.Header.Get("Content-Type"), ct) {
			t.Fatalf("%s content type = %q", path, resp.Header.Get("Content-Type"))
		}
	}
}

func TestProtectedPagesRedirectToLogin(t *testing.T) {
	env := newTestEnv(t)
	for _, path := range []string{"/dashboard", "/settings", "/documents/abc/raw"} {
		resp := env.get(t, path, "")
		if resp.StatusCode != http.StatusSeeOther {
			t.Fatalf("%s status = %d, want 303", path, resp.StatusCode)
		}
		want := "/login?next=" + url.QueryEscape(path)
		if got := resp.Header.Get("Location"); got != want {
			t.Fatalf("%s location = %q, want %q", path, got, want)
		}
	}
}

func TestHomeRedirectsSignedInUsers(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.register(t, "home@example.com")

	resp := env.get(t, "/", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("anonymous home status = %d", resp.StatusCode)
	}
	resp = env.get(t, "/", token)
	if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != "/dashboard" {
		t.Fatalf("signed in home = %d %q", resp.StatusCode, resp.Header.Get("Location"))
	}
}

func TestSignupThenDashboard(t *testing.T) {
	env := newTestEnv(t)
	resp := env.postForm(t, "/signup", "", url.Values{
		"first_name":       {"Grace"},
		"last_name":        {"Hopper"},
		"email":            {"grace@example.com"},
		"password":         {"cobol-forever"},
		"confirm_password": {"cobol-forever"},
	})
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("signup status = %d: %s", resp.StatusCode, readBody(t, resp))
	}
	token, ok := cookieValue(resp, sessionCookieName)
	if !ok || token == "" {
		t.Fatalf("expected session cookie")
	}

	dash := env.get(t, "/dashboard", token)
	if dash.StatusCode != http.StatusOK {
		t.Fatalf("dashboard status = %d", dash.StatusCode)
	}
	body := readBody(t, dash)
	if !strings.Contains(body, "Your documents") || !strings.Contains(body, "No documents yet") {
		t.Fatalf("unexpected dashboard body: %s", body)
	}

	mails, err := env.auth.Outbox().List()
	if err != nil {
		t.Fatalf("outbox: %v", err)
	}
	if len(mails) != 1 || mails[0].Subject != "Verify your email" || !strings.Contains(mails[0].Body, "http://example.test/verify?token=") {
		t.Fatalf("unexpected outbox: %+v", mails)
	}
}

func TestSignupRejectsMismatchedPasswords(t *testing.T) {
	env := newTestEnv(t)
	resp := env.postForm(t, "/signup", "", url.Values{
		"first_name":       {"Grace"},
		"email":            {"grace@example.com"},
		"password":         {"cobol-forever"},
		"confirm_password": {"fortran"},
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(readBody(t, resp), "Passwords do not match.") {
		t.Fatalf("expected mismatch message")
	}
}

func TestLoginRedirectsToNext(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "ada@example.com")

	resp := env.postForm(t, "/login", "", url.Values{
		"email":    {"ada@example.com"},
		"password": {"correct horse"},
		"next":     {"/settings"},
	})
	if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != "/settings" {
		t.Fatalf("login = %d %q", resp.StatusCode, resp.Header.Get("Location"))
	}
	if _, ok := cookieValue(resp, sessionCookieName); !ok {
		t.Fatalf("expected session cookie")
	}

	// Off-site next values are ignored.
	resp = env.postForm(t, "/login", "", url.Values{
		"email":    {"ada@example.com"},
		"password": {"correct horse"},
		"next":     {"//evil.example/"},
	})
	if resp.Header.Get("Location") != "/dashboard" {
		t.Fatalf("location = %q, want /dashboard", resp.Header.Get("Location"))
	}
}

func TestLoginWrongPassword(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "ada@example.com")

	resp := env.postForm(t, "/login", "", url.Values{
		"email":    {"ada@example.com"},
		"password": {"wrong"},
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(readBody(t, resp), "Invalid email or password") {
		t.Fatalf("expected credentials message")
	}
}

func TestLogoutClearsCookieAndRevokes(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.register(t, "bye@example.com")

	resp := env.postForm(t, "/logout", token, nil)
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var cleared bool
	for _, c := range resp.Cookies() {
		if c.Name == sessionCookieName && c.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Fatalf("expected cleared cookie")
	}
	if resp := env.get(t, "/dashboard", token); resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("revoked token still works: %d", resp.StatusCode)
	}
}

func TestRawDownloadIsOwnerOnly(t *testing.T) {
	env := newTestEnv(t)
	owner, ownerToken := env.register(t, "owner@example.com")
	_, otherToken := env.register(t, "other@example.com")
	doc, err := env.db.Documents().Create(context.Background(), owner.ID, "Notes", "# Secret")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	resp := env.get(t, "/documents/"+doc.ID+"/raw", ownerToken)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("owner status = %d", resp.StatusCode)
	}
	if cd := resp.Header.Get("Content-Disposition"); cd != `attachment; filename=Notes.md` {
		t.Fatalf("content disposition = %q", cd)
	}
	if got := readBody(t, resp); got != "# Secret" {
		t.Fatalf("body = %q", got)
	}

	resp = env.get(t, "/documents/"+doc.ID+"/raw", otherToken)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("other status = %d", resp.StatusCode)
	}
	if strings.Contains(readBody(t, resp), "Secret") {
		t.Fatalf("content leaked")
	}
}

func TestDuplicateAndDelete(t *testing.T) {
	env := newTestEnv(t)
	owner, token := env.register(t, "dup@example.com")
	_, otherToken := env.register(t, "nope@example.com")
	ctx := context.Background()
	doc, err := env.db.Documents().Create(ctx, owner.ID, "Plan", "body")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	resp := env.postForm(t, "/documents/"+doc.ID+"/duplicate", token, nil)
	if resp.StatusCode != http.StatusSeeOther || !strings.HasPrefix(resp.Header.Get("Location"), "/editor/") {
		t.Fatalf("duplicate = %d %q", resp.StatusCode, resp.Header.Get("Location"))
	}
	docs, _ := env.db.Documents().ListByOwner(ctx, owner.ID)
	if len(docs) != 2 {
		t.Fatalf("docs = %d, want 2", len(docs))
	}

	resp = env.postForm(t, "/documents/"+doc.ID+"/delete", otherToken, nil)
	if resp.Header.Get("Location") != "/dashboard?flash=missing" {
		t.Fatalf("foreign delete location = %q", resp.Header.Get("Location"))
	}
	if _, err := env.db.Documents().Get(ctx, doc.ID); err != nil {
		t.Fatalf("foreign delete removed the document: %v", err)
	}

	resp = env.postForm(t, "/documents/"+doc.ID+"/delete", token, nil)
	if resp.Header.Get("Location") != "/dashboard?flash=deleted" {
		t.Fatalf("delete location = %q", resp.Header.Get("Location"))
	}
	docs, _ = env.db.Documents().ListByOwner(ctx, owner.ID)
	if len(docs) != 1 || docs[0].Title != "Plan (Copy)" {
		t.Fatalf("unexpected docs after delete: %+v", docs)
	}
}

func TestDashboardSearch(t *testing.T) {
	env := newTestEnv(t)
	owner, token := env.register(t, "search@example.com")
	ctx := context.Background()
	for title, body := range map[string]string{"Groceries": "milk and eggs", "Trip": "pack the tent"} {
		if _, err := env.db.Documents().Create(ctx, owner.ID, title, body); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	body := readBody(t, env.get(t, "/dashboard?q=tent&sort=name", token))
	if !strings.Contains(body, "Trip.md") || strings.Contains(body, "Groceries.md") {
		t.Fatalf("search did not filter: %s", body)
	}
}

func TestSettingsSaveAndValidate(t *testing.T) {
	env := newTestEnv(t)
	u, token := env.register(t, "prefs@example.com")

	resp := env.postForm(t, "/settings", token, url.Values{
		"auto_save_delay":   {"5000"},
		"theme":             {"dark"},
		"editor_font_size":  {"15"},
		"preview_font_size": {"17"},
		"view_mode":         {"editor"},
		"word_wrap":         {"on"},
	})
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("status = %d: %s", resp.StatusCode, readBody(t, resp))
	}
	st, err := env.db.Settings().Load(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if st.AutoSave || st.AutoSaveDelayMS != 5000 || st.Theme != model.ThemeDark || st.ViewMode != "editor" {
		t.Fatalf("unexpected settings: %+v", st)
	}

	resp = env.postForm(t, "/settings", token, url.Values{
		"auto_save_delay":   {"10"},
		"theme":             {"dark"},
		"editor_font_size":  {"15"},
		"preview_font_size": {"17"},
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid settings status = %d", resp.StatusCode)
	}
}

func TestRequestsAreCountedByRoute(t *testing.T) {
	env := newTestEnv(t)
	env.get(t, "/dashboard", "")
	env.get(t, "/no/such/page", "")

	body := readBody(t, env.get(t, "/metrics", ""))
	for _, want := range []string{
		`mdpreview_http_requests_total{code="303",method="GET",route="GET /dashboard"} 1`,
		`mdpreview_http_requests_total{code="404",method="GET",route="unmatched"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics missing %q", want)
		}
	}
}

func TestSafeNext(t *testing.T) {
	cases := map[string]string{
		"":                  "/fallback",
		"/editor/abc":       "/editor/abc",
		"//evil.example":    "/fallback",
		"/\\evil.example":   "/fallback",
		"https://evil.test": "/fallback",
		"  /settings  ":     "/settings",
	}
	for in, want := range cases {
		if got := safeNext(in, "/fallback"); got != want {
			t.Fatalf("safeNext(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestStatusRecorderDefaultsTo200(t *testing.T) {
	rec := &statusRecorder{ResponseWriter: httptest.NewRecorder()}
	_, _ = rec.Write([]byte("hi"))
	rec.WriteHeader(http.StatusTeapot)
	if rec.code() != http.StatusOK || rec.bytes != 2 {
		t.Fatalf("code = %d bytes = %d", rec.code(), rec.bytes)
	}
}
