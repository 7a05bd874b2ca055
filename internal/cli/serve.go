package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"mdpreview/internal/format"
	"mdpreview/internal/metrics"
	"mdpreview/internal/web"
	"mdpreview/internal/webtui"
)

func newServeCmd(app *App) *cobra.Command {
	var addr string
	var open bool
	var secureCookies bool
	var terminal bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the browser editor",
		Long: strings.TrimSpace(`
Run the browser editor from a local HTTP server.

Pages are server-rendered HTML. The editor page keeps one live connection
(server-sent events) for preview and save status updates.
`),
		Example: strings.TrimSpace(`
# Serve on localhost and open a browser
mdpreview serve --open

# Also offer the keyboard editor in the browser at /terminal
mdpreview serve --terminal

# Serve on all interfaces behind a TLS proxy
mdpreview serve --addr :8080 --secure-cookies
`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := app.cfg
			listenAddr := strings.TrimSpace(addr)
			if listenAddr == "" {
				listenAddr = cfg.Server.Addr
			}
			if listenAddr == "" {
				return writeErr(cmd, errors.New("serve: missing --addr"))
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			db, err := app.openDB(ctx)
			if err != nil {
				return writeErr(cmd, err)
			}
			svc, err := app.authService(ctx)
			if err != nil {
				return writeErr(cmd, err)
			}

			var m *metrics.Metrics
			metricsPath := ""
			if cfg.Metrics.Enabled {
				m = metrics.New()
				metricsPath = cfg.Metrics.Path
			}

			var term *webtui.Terminal
			if terminal {
				childArgs := []string{"--data-dir", cfg.DataDir()}
				if app.ConfigPath != "" {
					childArgs = append(childArgs, "--config", app.ConfigPath)
				}
				if term, err = webtui.New(webtui.Config{Args: childArgs, Logger: app.logger}); err != nil {
					return writeErr(cmd, err)
				}
			}

			srv, err := web.NewServer(web.ServerConfig{
				Addr:    listenAddr,
				BaseURL: cfg.Server.BaseURL,
				DB:      db,
				Auth:    svc,
				Backups: app.store().Backups(),
				Editor: web.EditorDefaults{
					AutoSave:    cfg.Editor.AutoSave,
					Delay:       cfg.Editor.AutoSaveDelay,
					Ceiling:     cfg.Editor.AutoSaveCeiling,
					SaveTimeout: cfg.Editor.SaveTimeout,
				},
				Metrics:       m,
				MetricsPath:   metricsPath,
				Logger:        app.logger,
				SecureCookies: secureCookies,
				Terminal:      term,
			})
			if err != nil {
				return writeErr(cmd, err)
			}
			defer srv.Close()

			ln, err := net.Listen("tcp", listenAddr)
			if err != nil {
				return writeErr(cmd, err)
			}

			actualAddr := ln.Addr().String()
			url := "http://" + actualAddr + "/"

			opened := false
			openErr := ""
			if open {
				if err := openPath(url); err != nil {
					openErr = err.Error()
				} else {
					opened = true
				}
			}
			hints := []string{}
			if !opened {
				hints = append(hints, "open "+url)
			}
			_ = writeOut(cmd, app, format.Envelope{
				Data: map[string]any{
					"addr":      actualAddr,
					"url":       url,
					"baseUrl":   cfg.Server.BaseURL,
					"dataDir":   cfg.DataDir(),
					"autoSave":  cfg.Editor.AutoSave,
					"metrics":   metricsPath,
					"google":    svc.GoogleEnabled(),
					"terminal":  terminal,
					"opened":    opened,
					"openError": openErr,
					"startedAt": time.Now().UTC().Format(time.RFC3339Nano),
				},
				Hints: hints,
			})
			fmt.Fprintf(cmd.ErrOrStderr(), "mdpreview running at %s (data=%s)\n", url, cfg.DataDir())
			if openErr != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "Failed to open browser: %s\n", openErr)
			}

			return serveHTTP(ctx, ln, &http.Server{
				Handler:           srv.Handler(),
				ReadTimeout:       cfg.Server.ReadTimeout,
				ReadHeaderTimeout: 10 * time.Second,
				WriteTimeout:      cfg.Server.WriteTimeout,
				IdleTimeout:       2 * time.Minute,
			}, app)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Bind address (host:port or :port; default server.addr)")
	cmd.Flags().BoolVar(&open, "open", false, "Open the editor in your default browser")
	cmd.Flags().BoolVar(&terminal, "terminal", false, "Serve the terminal editor at /terminal (runs mdpreview edit in a pty per browser tab)")
	cmd.Flags().BoolVar(&secureCookies, "secure-cookies", false, "Mark the session cookie Secure (serve behind HTTPS)")
	return cmd
}

// serveHTTP runs hs on ln until ctx is cancelled, then drains for up to ten
// seconds. Editor sessions are closed by the caller's srv.Close, which
// flushes unsaved buffers to their backups.
func serveHTTP(ctx context.Context, ln net.Listener, hs *http.Server, app *App) error {
	errCh := make(chan error, 1)
	go func() { errCh <- hs.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	app.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := hs.Shutdown(shutdownCtx); err != nil {
		app.logger.Warn("shutdown", "err", err)
		_ = hs.Close()
	}
	return nil
}
