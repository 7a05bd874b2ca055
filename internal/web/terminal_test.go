package web

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"mdpreview/internal/webtui"
)

func withTerminal(t *testing.T, script string) func(*ServerConfig) {
	t.Helper()
	term, err := webtui.New(webtui.Config{Exe: "/bin/sh", Args: []string{"-c", script, "sh"}})
	if err != nil {
		t.Fatal(err)
	}
	return func(cfg *ServerConfig) { cfg.Terminal = term }
}

func TestTerminalRoutesOnlyWhenEnabled(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.register(t, "term-off@example.com")
	if resp := env.get(t, "/terminal", token); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("disabled terminal status = %d", resp.StatusCode)
	}
	if body := readBody(t, env.get(t, "/dashboard", token)); strings.Contains(body, `href="/terminal"`) {
		t.Fatalf("nav links to a disabled terminal")
	}
}

func TestTerminalPageRequiresSignIn(t *testing.T) {
	env := newTestEnv(t, withTerminal(t, "cat"))
	resp := env.get(t, "/terminal", "")
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("anonymous status = %d", resp.StatusCode)
	}
	if resp := env.get(t, "/terminal/ws", ""); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous ws status = %d", resp.StatusCode)
	}

	_, token := env.register(t, "term@example.com")
	body := readBody(t, env.get(t, "/terminal?doc=doc-1", token))
	if !strings.Contains(body, `data-doc="doc-1"`) || !strings.Contains(body, "/static/terminal.js") {
		t.Fatalf("terminal page = %s", body)
	}
	if resp := env.get(t, "/static/terminal.js", ""); resp.StatusCode != http.StatusOK {
		t.Fatalf("terminal.js status = %d", resp.StatusCode)
	}
}

func TestTerminalRunsAsBrowserUser(t *testing.T) {
	env := newTestEnv(t, withTerminal(t, `printf "session=%s\n" "$`+webtui.EnvSessionToken+`"; cat`))
	_, token := env.register(t, "pty@example.com")

	header := http.Header{}
	header.Add("Cookie", sessionCookieName+"="+token)
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(env.ts.URL, "http")+"/terminal/ws", header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var got strings.Builder
	for !strings.Contains(got.String(), "session="+token) {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v (got %q)", err, got.String())
		}
		if strings.HasPrefix(string(data), "failed to start editor") {
			t.Skipf("no pty available: %s", data)
		}
		got.Write(data)
	}
}
