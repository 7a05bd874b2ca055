package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"mdpreview/internal/format"
	"mdpreview/internal/model"
	"mdpreview/internal/store"
)

func newBackupCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Inspect the local editor backup",
		Long:  "The editor keeps the last unsaved buffer per account as a local backup (after a failed save or when closing with unsaved changes).",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the local backup",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := app.requireUser(cmd.Context())
			if err != nil {
				return writeErr(cmd, err)
			}
			bk, err := app.store().Backups().Load(u.ID)
			if err != nil {
				return writeErr(cmd, err)
			}
			if bk == nil {
				return writeErr(cmd, errors.New("no local backup"))
			}
			return writeOut(cmd, app, format.Envelope{Data: bk})
		},
	}

	restore := &cobra.Command{
		Use:   "restore",
		Short: "Store the backup as a new document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDocs(cmd, app, func(ctx context.Context, u *model.User, docs *store.Documents) error {
				backups := app.store().Backups()
				bk, err := backups.Load(u.ID)
				if err != nil {
					return err
				}
				if bk == nil {
					return errors.New("no local backup")
				}
				d, err := docs.Create(ctx, u.ID, model.TitleFromFileName(bk.FileName), bk.Content)
				if err != nil {
					return err
				}
				if err := backups.Clear(u.ID); err != nil {
					app.logger.Warn("clear backup", "user_id", u.ID, "err", err)
				}
				return writeOut(cmd, app, format.Envelope{
					Data:  newDocView(d),
					Hints: []string{"mdpreview edit " + d.ID},
				})
			})
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete the local backup",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := app.requireUser(cmd.Context())
			if err != nil {
				return writeErr(cmd, err)
			}
			if err := app.store().Backups().Clear(u.ID); err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, format.Envelope{Data: map[string]any{"cleared": true}})
		},
	}

	cmd.AddCommand(show, restore, clearCmd)
	return cmd
}
