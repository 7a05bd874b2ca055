package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"mdpreview/internal/format"
	"mdpreview/internal/model"
	"mdpreview/internal/perm"
	"mdpreview/internal/publish"
	"mdpreview/internal/render"
	"mdpreview/internal/store"
)

type docView struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	FileName   string    `json:"fileName"`
	Words      int       `json:"words"`
	Characters int       `json:"characters"`
	Size       int       `json:"size"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func newDocView(d model.Document) docView {
	st := render.Stats(d.Content)
	return docView{
		ID:         d.ID,
		Title:      d.Title,
		FileName:   d.FileName(),
		Words:      st.Words,
		Characters: st.Characters,
		Size:       d.Size(),
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
}

type docList []docView

func (l docList) Text() string {
	if len(l) == 0 {
		return "no documents"
	}
	var b strings.Builder
	tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tFILE\tWORDS\tUPDATED")
	for _, d := range l {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", d.ID, d.FileName, d.Words, d.UpdatedAt.Local().Format("2006-01-02 15:04"))
	}
	_ = tw.Flush()
	return b.String()
}

type docContent struct {
	docView
	Content string `json:"content"`
	HTML    string `json:"html,omitempty"`
}

func (d docContent) Text() string {
	if d.HTML != "" {
		return d.HTML
	}
	return d.Content
}

type statsView struct {
	model.DocumentStats
}

func (s statsView) Text() string {
	last := "never"
	if s.LastModified != nil {
		last = s.LastModified.Local().Format("2006-01-02 15:04")
	}
	return fmt.Sprintf("documents: %d\ncharacters: %d\naverage length: %d\nlast modified: %s",
		s.TotalDocuments, s.TotalCharacters, s.AverageLength, last)
}

func toDocList(docs []model.Document) docList {
	out := make(docList, 0, len(docs))
	for _, d := range docs {
		out = append(out, newDocView(d))
	}
	return out
}

// ownedDocument loads id for u. Documents owned by someone else are reported
// as not found so ids of other accounts cannot be probed.
func ownedDocument(ctx context.Context, docs *store.Documents, u *model.User, id string) (model.Document, error) {
	id = strings.TrimSpace(id)
	d, err := docs.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return model.Document{}, errNotFound("document", id)
	}
	if err != nil {
		return model.Document{}, err
	}
	if !perm.CanReadDocument(u.ID, &d) {
		return model.Document{}, errNotFound("document", id)
	}
	return d, nil
}

// withDocs runs fn with the signed-in user and the document store.
func withDocs(cmd *cobra.Command, app *App, fn func(ctx context.Context, u *model.User, docs *store.Documents) error) error {
	ctx := cmd.Context()
	u, err := app.requireUser(ctx)
	if err != nil {
		return writeErr(cmd, err)
	}
	db, err := app.openDB(ctx)
	if err != nil {
		return writeErr(cmd, err)
	}
	if err := fn(ctx, u, db.Documents()); err != nil {
		return writeErr(cmd, err)
	}
	return nil
}

func newDocsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docs",
		Short: "Manage your stored documents",
	}
	cmd.AddCommand(newDocsListCmd(app))
	cmd.AddCommand(newDocsSearchCmd(app))
	cmd.AddCommand(newDocsStatsCmd(app))
	cmd.AddCommand(newDocsShowCmd(app))
	cmd.AddCommand(newDocsDuplicateCmd(app))
	cmd.AddCommand(newDocsDeleteCmd(app))
	cmd.AddCommand(newDocsExportCmd(app))
	cmd.AddCommand(newDocsImportCmd(app))
	return cmd
}

func newDocsListCmd(app *App) *cobra.Command {
	var sortKey string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDocs(cmd, app, func(ctx context.Context, u *model.User, docs *store.Documents) error {
				list, err := docs.ListByOwner(ctx, u.ID)
				if err != nil {
					return err
				}
				key := store.ParseSortKey(sortKey)
				store.SortDocuments(list, key)
				return writeOut(cmd, app, format.Envelope{
					Data: toDocList(list),
					Meta: map[string]any{"count": len(list), "sort": string(key)},
				})
			})
		},
	}
	cmd.Flags().StringVar(&sortKey, "sort", string(store.SortByLastModified), "Sort by name|created|lastModified|size")
	return cmd
}

func newDocsSearchCmd(app *App) *cobra.Command {
	var sortKey string
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Find documents by title or content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDocs(cmd, app, func(ctx context.Context, u *model.User, docs *store.Documents) error {
				list, err := docs.Search(ctx, u.ID, args[0])
				if err != nil {
					return err
				}
				if sortKey != "" {
					store.SortDocuments(list, store.ParseSortKey(sortKey))
				}
				return writeOut(cmd, app, format.Envelope{
					Data: toDocList(list),
					Meta: map[string]any{"count": len(list), "query": args[0]},
				})
			})
		},
	}
	cmd.Flags().StringVar(&sortKey, "sort", "", "Sort by name|created|lastModified|size")
	return cmd
}

func newDocsStatsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show document totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDocs(cmd, app, func(ctx context.Context, u *model.User, docs *store.Documents) error {
				st, err := docs.Stats(ctx, u.ID)
				if err != nil {
					return err
				}
				return writeOut(cmd, app, format.Envelope{Data: statsView{st}})
			})
		},
	}
}

func newDocsShowCmd(app *App) *cobra.Command {
	var html bool
	var raw bool
	cmd := &cobra.Command{
		Use:   "show <document-id>",
		Short: "Print a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDocs(cmd, app, func(ctx context.Context, u *model.User, docs *store.Documents) error {
				d, err := ownedDocument(ctx, docs, u, args[0])
				if err != nil {
					return err
				}
				out := docContent{docView: newDocView(d), Content: d.Content}
				if html {
					out.HTML = render.HTML(d.Content)
				}
				if raw {
					_, err := fmt.Fprintln(cmd.OutOrStdout(), out.Text())
					return err
				}
				return writeOut(cmd, app, format.Envelope{Data: out})
			})
		},
	}
	cmd.Flags().BoolVar(&html, "html", false, "Include the rendered, sanitized HTML")
	cmd.Flags().BoolVar(&raw, "raw", false, "Print the markdown (or HTML with --html) without the envelope")
	return cmd
}

func newDocsDuplicateCmd(app *App) *cobra.Command {
	var title string
	cmd := &cobra.Command{
		Use:   "duplicate <document-id>",
		Short: "Copy a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDocs(cmd, app, func(ctx context.Context, u *model.User, docs *store.Documents) error {
				if strings.TrimSpace(title) != "" {
					title = model.TitleFromFileName(title)
				}
				d, err := docs.Duplicate(ctx, strings.TrimSpace(args[0]), u.ID, title)
				if errors.Is(err, store.ErrNotFound) || errors.Is(err, perm.ErrNotOwner) {
					return errNotFound("document", args[0])
				}
				if err != nil {
					return err
				}
				return writeOut(cmd, app, format.Envelope{Data: newDocView(d)})
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "Title of the copy (default \"<title> (Copy)\")")
	return cmd
}

func newDocsDeleteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <document-id>",
		Short: "Delete a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDocs(cmd, app, func(ctx context.Context, u *model.User, docs *store.Documents) error {
				id := strings.TrimSpace(args[0])
				err := docs.DeleteOwned(ctx, id, u.ID)
				if errors.Is(err, store.ErrNotFound) || errors.Is(err, perm.ErrNotOwner) {
					return errNotFound("document", id)
				}
				if err != nil {
					return err
				}
				return writeOut(cmd, app, format.Envelope{Data: map[string]any{"id": id, "deleted": true}})
			})
		},
	}
}

func newDocsExportCmd(app *App) *cobra.Command {
	var to string
	var overwrite bool
	var html bool
	cmd := &cobra.Command{
		Use:   "export [document-id...]",
		Short: "Write documents as .md files (all documents when no id is given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDocs(cmd, app, func(ctx context.Context, u *model.User, docs *store.Documents) error {
				var list []model.Document
				if len(args) == 0 {
					all, err := docs.ListByOwner(ctx, u.ID)
					if err != nil {
						return err
					}
					list = all
				}
				for _, id := range args {
					d, err := ownedDocument(ctx, docs, u, id)
					if err != nil {
						return err
					}
					list = append(list, d)
				}
				res, err := publish.WriteDocuments(list, to, publish.WriteOptions{Overwrite: overwrite, HTML: html})
				if err != nil {
					return err
				}
				return writeOut(cmd, app, format.Envelope{Data: res, Meta: map[string]any{"documents": len(list)}})
			})
		},
	}
	cmd.Flags().StringVar(&to, "to", ".", "Target directory")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace existing files")
	cmd.Flags().BoolVar(&html, "html", false, "Also write a standalone HTML page per document")
	return cmd
}

func newDocsImportCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file.md>...",
		Short: "Store markdown files as new documents (title from the file name)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDocs(cmd, app, func(ctx context.Context, u *model.User, docs *store.Documents) error {
				created := make(docList, 0, len(args))
				for _, p := range args {
					b, err := os.ReadFile(p)
					if err != nil {
						return err
					}
					d, err := docs.Create(ctx, u.ID, model.TitleFromFileName(filepath.Base(p)), string(b))
					if err != nil {
						return err
					}
					created = append(created, newDocView(d))
				}
				return writeOut(cmd, app, format.Envelope{Data: created, Meta: map[string]any{"count": len(created)}})
			})
		},
	}
	return cmd
}
