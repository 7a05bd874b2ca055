package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"mdpreview/internal/auth"
	"mdpreview/internal/config"
	"mdpreview/internal/format"
	"mdpreview/internal/store"
)

// annotationLogFile marks commands that own the terminal; their logs go to
// the data dir instead of stderr.
const annotationLogFile = "mdpreview/log-to-file"

// annotationDefaults marks commands that must run before a config file exists.
const annotationDefaults = "mdpreview/config-defaults"

type App struct {
	ConfigPath string
	DataDir    string
	LogLevel   string
	PrettyJSON bool
	Format     string

	cfg     *config.Config
	logger  *slog.Logger
	closers []io.Closer
	db      *store.DB
}

func NewRootCmd() *cobra.Command {
	app := &App{}

	cmd := &cobra.Command{
		Use:          "mdpreview",
		Short:        "Markdown editor with live preview (web + terminal)",
		SilenceUsage: true,
		Example: strings.TrimSpace(`
  # Start the terminal editor on a new document
  mdpreview

  # Serve the browser editor
  mdpreview serve --addr 127.0.0.1:8080

  # Open a stored document (shortcut for: mdpreview edit <document-id>)
  mdpreview doc-6f1c2d7e0b7a4e559a530d5c0f3a8b21

  # Scriptable commands
  mdpreview docs list --sort lastModified
`),
		Annotations: map[string]string{annotationLogFile: "true"},
		Args:        cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// No subcommand => terminal editor.
			return runEdit(cmd, app, "")
		},
	}

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return app.setup(cmd)
	}
	cmd.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		app.teardown()
		return nil
	}

	cmd.PersistentFlags().StringVar(&app.ConfigPath, "config", envOr(config.EnvConfig, ""), "Config file (default ~/.config/mdpreview/config.yaml)")
	cmd.PersistentFlags().StringVar(&app.DataDir, "data-dir", "", "Data directory (overrides storage.data_dir)")
	cmd.PersistentFlags().StringVar(&app.LogLevel, "log-level", "", "Log level (debug|info|warn|error)")
	cmd.PersistentFlags().BoolVar(&app.PrettyJSON, "pretty", false, "Pretty-print JSON output")
	cmd.PersistentFlags().StringVar(&app.Format, "format", envOr("MDPREVIEW_FORMAT", "json"), "Output format (json|yaml|text)")

	cmd.AddCommand(newServeCmd(app))
	cmd.AddCommand(newEditCmd(app))
	cmd.AddCommand(newRegisterCmd(app))
	cmd.AddCommand(newLoginCmd(app))
	cmd.AddCommand(newLogoutCmd(app))
	cmd.AddCommand(newWhoamiCmd(app))
	cmd.AddCommand(newDocsCmd(app))
	cmd.AddCommand(newBackupCmd(app))
	cmd.AddCommand(newConfigCmd(app))
	cmd.AddCommand(newGuideCmd(app))

	return cmd
}

func (app *App) setup(cmd *cobra.Command) error {
	bootstrap := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelWarn}))
	var cfg *config.Config
	if cmd.Annotations[annotationDefaults] == "true" {
		cfg = config.DefaultConfig()
	} else {
		loaded, err := config.NewLoader(bootstrap).WithPath(app.ConfigPath).Load()
		if err != nil {
			return writeErr(cmd, err)
		}
		cfg = loaded
	}
	cfg.Merge(&config.Config{
		Storage: config.StorageConfig{DataDir: strings.TrimSpace(app.DataDir)},
		Log:     config.LogConfig{Level: strings.TrimSpace(app.LogLevel)},
	})
	if err := cfg.Validate(); err != nil {
		return writeErr(cmd, err)
	}
	app.cfg = cfg

	logger, closer, err := newLogger(cfg, cmd.ErrOrStderr(), logsToFile(cmd))
	if err != nil {
		return writeErr(cmd, err)
	}
	if closer != nil {
		app.closers = append(app.closers, closer)
	}
	app.logger = logger
	slog.SetDefault(logger)
	return nil
}

func (app *App) teardown() {
	if app.db != nil {
		_ = app.db.Close()
		app.db = nil
	}
	for i := len(app.closers) - 1; i >= 0; i-- {
		_ = app.closers[i].Close()
	}
	app.closers = nil
}

func logsToFile(cmd *cobra.Command) bool {
	return cmd.Annotations[annotationLogFile] == "true"
}

// newLogger builds the slog handler from log.level and log.format. Terminal
// UI commands append to the log file in the data dir.
func newLogger(cfg *config.Config, stderr io.Writer, toFile bool) (*slog.Logger, io.Closer, error) {
	level, err := config.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, nil, err
	}
	w := stderr
	var closer io.Closer
	if toFile {
		path := cfg.LogFile()
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, nil, err
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, nil, err
		}
		w, closer = f, f
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if cfg.Log.Format == "json" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h), closer, nil
}

func (app *App) openDB(ctx context.Context) (*store.DB, error) {
	if app.db != nil {
		return app.db, nil
	}
	db, err := app.store().Open(ctx, store.WithLogger(app.logger))
	if err != nil {
		return nil, err
	}
	app.db = db
	return db, nil
}

func (app *App) store() store.Store {
	return store.Store{Dir: app.cfg.DataDir()}
}

func (app *App) authService(ctx context.Context) (*auth.Service, error) {
	db, err := app.openDB(ctx)
	if err != nil {
		return nil, err
	}
	secret := []byte(app.cfg.Auth.Secret)
	if len(secret) == 0 {
		if secret, err = auth.LoadOrInitSecret(app.cfg.SecretPath()); err != nil {
			return nil, fmt.Errorf("signing secret: %w", err)
		}
	}
	a := app.cfg.Auth
	return auth.NewService(db.Users(), auth.Config{
		Secret:           secret,
		SessionTTL:       a.SessionTTL,
		RecoveryTTL:      a.RecoveryTTL,
		VerificationTTL:  a.VerificationTTL,
		BcryptCost:       a.BcryptCost,
		MaxLoginAttempts: a.MaxLoginAttempts,
		AttemptWindow:    a.AttemptWindow,
		Google: auth.GoogleConfig{
			ClientID:     a.Google.ClientID,
			ClientSecret: a.Google.ClientSecret,
			RedirectURL:  app.cfg.GoogleRedirectURL(),
		},
		Outbox: auth.Outbox{Dir: app.cfg.OutboxDir()},
	}, auth.WithLogger(app.logger))
}

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func writeOut(cmd *cobra.Command, app *App, v any) error {
	return format.Write(cmd.OutOrStdout(), v, app.Format, app.PrettyJSON)
}

func writeErr(cmd *cobra.Command, err error) error {
	fmt.Fprintln(cmd.ErrOrStderr(), err.Error())
	return err
}
