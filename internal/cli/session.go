package cli

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"mdpreview/internal/auth"
	"mdpreview/internal/model"
	"mdpreview/internal/webtui"
)

// The CLI keeps the session token from `mdpreview login` in a file in the
// data dir. The token is the same one the browser holds in its cookie.
// Editors started by `serve --terminal` get the browser's token through the
// environment instead.

func (app *App) readToken() (string, error) {
	if v := strings.TrimSpace(os.Getenv(webtui.EnvSessionToken)); v != "" {
		return v, nil
	}
	b, err := os.ReadFile(app.cfg.TokenFile())
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

func (app *App) writeToken(token string) error {
	path := app.cfg.TokenFile()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(token+"\n"), 0o600)
}

func (app *App) removeToken() error {
	err := os.Remove(app.cfg.TokenFile())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// currentUser resolves the stored token. It returns (nil, nil) when nobody
// is signed in or the token is no longer valid.
func (app *App) currentUser(ctx context.Context, svc *auth.Service) (*model.User, error) {
	token, err := app.readToken()
	if err != nil || token == "" {
		return nil, err
	}
	return svc.CurrentUser(ctx, token)
}

// requireUser is currentUser for commands that need an account.
func (app *App) requireUser(ctx context.Context) (*model.User, error) {
	svc, err := app.authService(ctx)
	if err != nil {
		return nil, err
	}
	u, err := app.currentUser(ctx, svc)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, errNotSignedIn
	}
	return u, nil
}
