// Package webtui runs the terminal editor inside a pseudo-terminal and
// bridges it to a browser xterm over a websocket.
package webtui

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"strings"
)

// EnvSessionToken hands the browser session to the child editor so it runs
// as the signed-in user instead of whoever owns the data dir token file.
const EnvSessionToken = "MDPREVIEW_SESSION_TOKEN"

const (
	defaultCols = 120
	defaultRows = 40
)

type Config struct {
	// Exe is the mdpreview binary; empty means os.Executable.
	Exe string
	// Args are passed before the subcommand (--config, --data-dir).
	Args []string
	// Env is appended to the child environment.
	Env    []string
	Logger *slog.Logger
}

type Terminal struct {
	cfg Config
}

// Session is what the caller knows about the browser user.
type Session struct {
	Token      string
	DocumentID string
}

func New(cfg Config) (*Terminal, error) {
	if strings.TrimSpace(cfg.Exe) == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, err
		}
		cfg.Exe = exe
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Terminal{cfg: cfg}, nil
}

// Command builds the child process for one browser session.
func (t *Terminal) Command(sess Session) (*exec.Cmd, error) {
	if strings.TrimSpace(sess.Token) == "" {
		return nil, errors.New("webtui: missing session token")
	}
	args := append([]string{}, t.cfg.Args...)
	args = append(args, "edit")
	if id := strings.TrimSpace(sess.DocumentID); id != "" {
		args = append(args, "--", id)
	}
	cmd := exec.Command(t.cfg.Exe, args...)
	cmd.Env = append(os.Environ(), t.cfg.Env...)
	cmd.Env = append(cmd.Env,
		"TERM=xterm-256color",
		"COLORTERM=truecolor",
		EnvSessionToken+"="+sess.Token,
	)
	return cmd, nil
}

// sameOrigin accepts requests without an Origin header (non-browser clients)
// and browser requests whose origin host matches the request host.
func sameOrigin(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, strings.TrimSpace(r.Host))
}
