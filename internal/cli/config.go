package cli

import (
	"log/slog"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"mdpreview/internal/config"
	"mdpreview/internal/format"
)

const redacted = "<redacted>"

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create or inspect the config file",
	}

	initCmd := &cobra.Command{
		Use:         "init",
		Short:       "Write a config file with the defaults (kept if it exists)",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationDefaults: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.NewLoader(app.logger).WithPath(app.ConfigPath).EnsureUserConfig()
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, format.Envelope{Data: map[string]any{"path": path}})
		},
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective config (file + environment + flags)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := *app.cfg
			if cfg.Auth.Secret != "" {
				cfg.Auth.Secret = redacted
			}
			if cfg.Auth.Google.ClientSecret != "" {
				cfg.Auth.Google.ClientSecret = redacted
			}
			// Round-trip through YAML so keys and durations read like the file.
			raw, err := yaml.Marshal(&cfg)
			if err != nil {
				return writeErr(cmd, err)
			}
			var data map[string]any
			if err := yaml.Unmarshal(raw, &data); err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, format.Envelope{
				Data: data,
				Meta: map[string]any{
					"path":    config.NewLoader(slog.Default()).WithPath(app.ConfigPath).Path(),
					"dataDir": cfg.DataDir(),
				},
			})
		},
	}

	cmd.AddCommand(initCmd, show)
	return cmd
}
