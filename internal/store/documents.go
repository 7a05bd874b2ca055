package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"mdpreview/internal/model"
	"mdpreview/internal/perm"
)

const documentColumns = `id, owner_id, title, content, created_at_unixms, updated_at_unixms`

// Documents is the SQLite document store.
type Documents struct {
	db *DB
}

func scanDocument(row interface{ Scan(...any) error }) (model.Document, error) {
	var d model.Document
	var created, updated int64
	if err := row.Scan(&d.ID, &d.OwnerID, &d.Title, &d.Content, &created, &updated); err != nil {
		return model.Document{}, err
	}
	d.CreatedAt = fromUnixMS(created)
	d.UpdatedAt = fromUnixMS(updated)
	return d, nil
}

func (s *Documents) Create(ctx context.Context, ownerID, title, content string) (model.Document, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return model.Document{}, errors.New("create document: missing owner")
	}
	now := s.db.now()
	d := model.Document{
		ID:        newRandomID("doc"),
		Title:     model.TitleFromFileName(title),
		Content:   content,
		OwnerID:   ownerID,
		CreatedAt: fromUnixMS(unixMS(now)),
		UpdatedAt: fromUnixMS(unixMS(now)),
	}
	_, err := s.db.sql.ExecContext(ctx, `INSERT INTO documents(`+documentColumns+`) VALUES(?, ?, ?, ?, ?, ?)`,
		d.ID, d.OwnerID, d.Title, d.Content, unixMS(d.CreatedAt), unixMS(d.UpdatedAt))
	if err != nil {
		return model.Document{}, fmt.Errorf("create document: %w", err)
	}
	s.db.logger.Debug("document created", slog.String("document_id", d.ID), slog.String("owner_id", ownerID))
	return d, nil
}

func (s *Documents) Get(ctx context.Context, id string) (model.Document, error) {
	row := s.db.sql.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, strings.TrimSpace(id))
	d, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Document{}, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Document{}, fmt.Errorf("get document: %w", err)
	}
	return d, nil
}

// Update applies patch and refreshes updatedAt. OwnerID is never touched.
func (s *Documents) Update(ctx context.Context, id string, patch model.DocumentPatch) (model.Document, error) {
	tx, err := s.db.sql.BeginTx(ctx, nil)
	if err != nil {
		return model.Document{}, err
	}
	defer func() { _ = tx.Rollback() }()

	d, err := scanDocument(tx.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, strings.TrimSpace(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Document{}, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Document{}, fmt.Errorf("update document: %w", err)
	}
	if patch.Title != nil {
		d.Title = model.TitleFromFileName(*patch.Title)
	}
	if patch.Content != nil {
		d.Content = *patch.Content
	}
	d.UpdatedAt = fromUnixMS(unixMS(s.db.now()))
	if _, err := tx.ExecContext(ctx, `UPDATE documents SET title = ?, content = ?, updated_at_unixms = ? WHERE id = ?`,
		d.Title, d.Content, unixMS(d.UpdatedAt), d.ID); err != nil {
		return model.Document{}, fmt.Errorf("update document: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return model.Document{}, err
	}
	return d, nil
}

func (s *Documents) Delete(ctx context.Context, id string) error {
	res, err := s.db.sql.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, strings.TrimSpace(id))
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteOwned deletes id only when ownerID owns it.
func (s *Documents) DeleteOwned(ctx context.Context, id, ownerID string) error {
	d, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := perm.RequireOwner(ownerID, &d); err != nil {
		return err
	}
	return s.Delete(ctx, id)
}

// ListByOwner returns ownerID's documents, most recently updated first.
func (s *Documents) ListByOwner(ctx context.Context, ownerID string) ([]model.Document, error) {
	return s.query(ctx, `SELECT `+documentColumns+` FROM documents WHERE owner_id = ? ORDER BY updated_at_unixms DESC, id ASC`, ownerID)
}

// Search matches query case-insensitively against title or content.
func (s *Documents) Search(ctx context.Context, ownerID, query string) ([]model.Document, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return s.ListByOwner(ctx, ownerID)
	}
	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"
	return s.query(ctx, `SELECT `+documentColumns+` FROM documents
		WHERE owner_id = ? AND (lower(title) LIKE ? ESCAPE '\' OR lower(content) LIKE ? ESCAPE '\')
		ORDER BY updated_at_unixms DESC, id ASC`, ownerID, pattern, pattern)
}

// Duplicate copies id into a new document owned by ownerID.
// An empty newTitle becomes "<title> (Copy)".
func (s *Documents) Duplicate(ctx context.Context, id, ownerID, newTitle string) (model.Document, error) {
	orig, err := s.Get(ctx, id)
	if err != nil {
		return model.Document{}, err
	}
	if err := perm.RequireOwner(ownerID, &orig); err != nil {
		return model.Document{}, err
	}
	title := strings.TrimSpace(newTitle)
	if title == "" {
		title = orig.Title + " (Copy)"
	}
	return s.Create(ctx, ownerID, title, orig.Content)
}

func (s *Documents) Stats(ctx context.Context, ownerID string) (model.DocumentStats, error) {
	docs, err := s.ListByOwner(ctx, ownerID)
	if err != nil {
		return model.DocumentStats{}, err
	}
	var st model.DocumentStats
	st.TotalDocuments = len(docs)
	for _, d := range docs {
		st.TotalCharacters += len([]rune(d.Content))
	}
	if len(docs) > 0 {
		// ListByOwner is updated-desc, so the first row is the latest.
		last := docs[0].UpdatedAt
		st.LastModified = &last
		st.AverageLength = int(math.Round(float64(st.TotalCharacters) / float64(len(docs))))
	}
	return st, nil
}

func (s *Documents) query(ctx context.Context, q string, args ...any) ([]model.Document, error) {
	rows, err := s.db.sql.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Document{}
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

type SortKey string

const (
	SortByName         SortKey = "name"
	SortByCreated      SortKey = "created"
	SortByLastModified SortKey = "lastModified"
	SortBySize         SortKey = "size"
)

// ParseSortKey falls back to lastModified for unknown keys.
func ParseSortKey(s string) SortKey {
	switch SortKey(strings.TrimSpace(s)) {
	case SortByName:
		return SortByName
	case SortByCreated:
		return SortByCreated
	case SortBySize:
		return SortBySize
	default:
		return SortByLastModified
	}
}

// SortDocuments orders docs in place. Name sorts ascending, the rest newest/largest first.
func SortDocuments(docs []model.Document, key SortKey) {
	sort.SliceStable(docs, func(i, j int) bool {
		a, b := docs[i], docs[j]
		switch key {
		case SortByName:
			return strings.ToLower(a.Title) < strings.ToLower(b.Title)
		case SortByCreated:
			return a.CreatedAt.After(b.CreatedAt)
		case SortBySize:
			return a.Size() > b.Size()
		default:
			return a.UpdatedAt.After(b.UpdatedAt)
		}
	})
}
