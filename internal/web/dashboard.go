package web

import (
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"mdpreview/internal/model"
	"mdpreview/internal/perm"
	"mdpreview/internal/store"
)

type dashboardDoc struct {
	model.Document
	Words   int
	Excerpt string
}

type sortOption struct {
	Key      string
	Label    string
	Selected bool
}

type dashboardVM struct {
	baseVM
	Query   string
	Sort    string
	Sorts   []sortOption
	Docs    []dashboardDoc
	Stats   model.DocumentStats
	Flashed string
}

var sortLabels = []struct {
	key   store.SortKey
	label string
}{
	{store.SortByLastModified, "Last modified"},
	{store.SortByCreated, "Created"},
	{store.SortByName, "Name"},
	{store.SortBySize, "Size"},
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	u := userFromContext(r.Context())
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	sortKey := store.ParseSortKey(r.URL.Query().Get("sort"))

	docsStore := s.cfg.DB.Documents()
	var (
		docs []model.Document
		err  error
	)
	if q != "" {
		docs, err = docsStore.Search(r.Context(), u.ID, q)
	} else {
		docs, err = docsStore.ListByOwner(r.Context(), u.ID)
	}
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	store.SortDocuments(docs, sortKey)

	stats, err := docsStore.Stats(r.Context(), u.ID)
	if err != nil {
		s.serverError(w, r, err)
		return
	}

	vm := dashboardVM{
		baseVM: s.baseVMForRequest(r, "Documents"),
		Query:  q,
		Sort:   string(sortKey),
		Stats:  stats,
	}
	for _, opt := range sortLabels {
		vm.Sorts = append(vm.Sorts, sortOption{Key: string(opt.key), Label: opt.label, Selected: opt.key == sortKey})
	}
	for _, d := range docs {
		vm.Docs = append(vm.Docs, dashboardDoc{Document: d, Words: len(strings.Fields(d.Content)), Excerpt: excerpt(d.Content, 140)})
	}
	switch r.URL.Query().Get("flash") {
	case "deleted":
		vm.Notice = "Document deleted."
	case "missing":
		vm.Error = "Document not found or you do not have access to it."
	}
	s.writeHTMLTemplate(w, "dashboard.html", vm)
}

func (s *Server) handleDocumentDuplicate(w http.ResponseWriter, r *http.Request) {
	u := userFromContext(r.Context())
	_ = r.ParseForm()
	doc, err := s.cfg.DB.Documents().Duplicate(r.Context(), r.PathValue("docId"), u.ID, r.Form.Get("title"))
	if err != nil {
		if isMissing(err) {
			http.Redirect(w, r, "/dashboard?flash=missing", http.StatusSeeOther)
			return
		}
		s.serverError(w, r, err)
		return
	}
	s.logger.Info("document duplicated", slog.String("document_id", doc.ID), slog.String("user_id", u.ID))
	http.Redirect(w, r, "/editor/"+doc.ID, http.StatusSeeOther)
}

func (s *Server) handleDocumentDelete(w http.ResponseWriter, r *http.Request) {
	u := userFromContext(r.Context())
	id := r.PathValue("docId")
	if err := s.cfg.DB.Documents().DeleteOwned(r.Context(), id, u.ID); err != nil {
		if isMissing(err) {
			http.Redirect(w, r, "/dashboard?flash=missing", http.StatusSeeOther)
			return
		}
		s.serverError(w, r, err)
		return
	}
	s.logger.Info("document deleted", slog.String("document_id", id), slog.String("user_id", u.ID))
	http.Redirect(w, r, "/dashboard?flash=deleted", http.StatusSeeOther)
}

// handleDocumentRaw downloads the stored markdown as "<title>.md".
func (s *Server) handleDocumentRaw(w http.ResponseWriter, r *http.Request) {
	u := userFromContext(r.Context())
	doc, err := s.cfg.DB.Documents().Get(r.Context(), r.PathValue("docId"))
	if err == nil {
		err = perm.RequireOwner(u.ID, &doc)
	}
	if err != nil {
		if isMissing(err) {
			http.NotFound(w, r)
			return
		}
		s.serverError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": doc.FileName()}))
	w.Header().Set("Last-Modified", doc.UpdatedAt.UTC().Format(http.TimeFormat))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(doc.Content))
}

// isMissing folds "not yours" into "not found" so ids of other users' documents don't leak.
func isMissing(err error) bool {
	return errors.Is(err, store.ErrNotFound) || errors.Is(err, perm.ErrNotOwner)
}

func excerpt(content string, max int) string {
	var b strings.Builder
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "#>-*` "))
		if line == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(line)
		if b.Len() >= max {
			break
		}
	}
	out := []rune(b.String())
	if len(out) > max {
		return string(out[:max]) + "…"
	}
	return string(out)
}

func humanizeAgo(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 30*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return t.Local().Format("Jan 2, 2006")
	}
}

func humanizeSize(n int) string {
	if n < 1024 {
		return fmt.Sprintf("%d B", n)
	}
	return fmt.Sprintf("%.1f KB", float64(n)/1024)
}
