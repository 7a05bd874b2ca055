package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"mdpreview/internal/model"
	"mdpreview/internal/tui"
)

func newEditCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edit [document-id]",
		Short: "Open the terminal editor",
		Long: strings.TrimSpace(`
Open the terminal editor on a stored document, or on a new document when no
id is given. Without ` + "`mdpreview login`" + ` only new documents can be edited and
nothing can be saved.

Logs go to mdpreview.log in the data dir while the editor owns the terminal.
`),
		Args:        cobra.MaximumNArgs(1),
		Annotations: map[string]string{annotationLogFile: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			id := ""
			if len(args) == 1 {
				id = args[0]
			}
			return runEdit(cmd, app, id)
		},
	}
	return cmd
}

func runEdit(cmd *cobra.Command, app *App, docID string) error {
	ctx := cmd.Context()
	docID = strings.TrimSpace(docID)
	if docID == "" {
		docID = model.NewDocumentID
	}

	db, err := app.openDB(ctx)
	if err != nil {
		return writeErr(cmd, err)
	}
	svc, err := app.authService(ctx)
	if err != nil {
		return writeErr(cmd, err)
	}
	u, err := app.currentUser(ctx, svc)
	if err != nil {
		return writeErr(cmd, err)
	}

	opts := tui.Options{
		Docs:        db.Documents(),
		DocumentID:  docID,
		Settings:    model.DefaultSettings(),
		AutoSave:    app.cfg.Editor.AutoSave,
		Delay:       app.cfg.Editor.AutoSaveDelay,
		Ceiling:     app.cfg.Editor.AutoSaveCeiling,
		SaveTimeout: app.cfg.Editor.SaveTimeout,
		Backups:     app.store().Backups(),
		Logger:      app.logger,
	}
	if u != nil {
		opts.UserID, opts.UserName = u.ID, u.Name
		settings, err := db.Settings().Load(ctx, u.ID)
		if err != nil {
			return writeErr(cmd, err)
		}
		opts.Settings = settings
		opts.AutoSave = opts.AutoSave && settings.AutoSave
		if settings.AutoSaveDelayMS > 0 {
			opts.Delay = settings.AutoSaveDelay()
		}
	}

	app.logger.Info("terminal editor starting", "document_id", docID, "signed_in", u != nil)
	if err := tui.Run(ctx, opts); err != nil {
		return writeErr(cmd, err)
	}
	return nil
}
