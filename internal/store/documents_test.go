package store

import (
	"context"
	"errors"
	"testing"

	"mdpreview/internal/model"
	"mdpreview/internal/perm"
)

func strPtr(s string) *string { return &s }

func TestDocuments_CreateGetUpdate(t *testing.T) {
	ctx := context.Background()
	docs := openTestDB(t).Documents()

	d, err := docs.Create(ctx, "user-1", "notes.md", "# Hi")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if d.Title != "notes" {
		t.Fatalf("expected title stored without extension, got %q", d.Title)
	}
	if d.OwnerID != "user-1" || d.CreatedAt.IsZero() || !d.CreatedAt.Equal(d.UpdatedAt) {
		t.Fatalf("unexpected created doc: %#v", d)
	}

	got, err := docs.Get(ctx, d.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Content != "# Hi" {
		t.Fatalf("expected content round trip, got %q", got.Content)
	}

	up, err := docs.Update(ctx, d.ID, model.DocumentPatch{Content: strPtr("# Hi again")})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if up.Title != "notes" || up.Content != "# Hi again" || up.OwnerID != "user-1" {
		t.Fatalf("unexpected updated doc: %#v", up)
	}
	if !up.UpdatedAt.After(d.UpdatedAt) {
		t.Fatalf("expected updatedAt to move forward: %v -> %v", d.UpdatedAt, up.UpdatedAt)
	}
	if !up.CreatedAt.Equal(d.CreatedAt) {
		t.Fatalf("createdAt must not change")
	}
}

func TestDocuments_UpdateSameValuesOnlyTouchesUpdatedAt(t *testing.T) {
	ctx := context.Background()
	docs := openTestDB(t).Documents()
	d, err := docs.Create(ctx, "user-1", "a", "body")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	first, err := docs.Update(ctx, d.ID, model.DocumentPatch{Title: strPtr("a"), Content: strPtr("body")})
	if err != nil {
		t.Fatalf("Update #1: %v", err)
	}
	second, err := docs.Update(ctx, d.ID, model.DocumentPatch{Title: strPtr("a"), Content: strPtr("body")})
	if err != nil {
		t.Fatalf("Update #2: %v", err)
	}
	if first.ID != second.ID || first.Title != second.Title || first.Content != second.Content {
		t.Fatalf("expected identical docs apart from updatedAt: %#v vs %#v", first, second)
	}
	if !second.UpdatedAt.After(first.UpdatedAt) {
		t.Fatalf("expected updatedAt to change")
	}
}

func TestDocuments_NotFound(t *testing.T) {
	ctx := context.Background()
	docs := openTestDB(t).Documents()
	if _, err := docs.Get(ctx, "doc-missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get: expected ErrNotFound, got %v", err)
	}
	if _, err := docs.Update(ctx, "doc-missing", model.DocumentPatch{Content: strPtr("x")}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Update: expected ErrNotFound, got %v", err)
	}
	if err := docs.Delete(ctx, "doc-missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Delete: expected ErrNotFound, got %v", err)
	}
}

func TestDocuments_ListByOwnerNewestFirst(t *testing.T) {
	ctx := context.Background()
	docs := openTestDB(t).Documents()
	a, _ := docs.Create(ctx, "user-1", "a", "")
	b, _ := docs.Create(ctx, "user-1", "b", "")
	_, _ = docs.Create(ctx, "user-2", "other", "")
	if _, err := docs.Update(ctx, a.ID, model.DocumentPatch{Content: strPtr("touched")}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	list, err := docs.ListByOwner(ctx, "user-1")
	if err != nil {
		t.Fatalf("ListByOwner: %v", err)
	}
	if len(list) != 2 || list[0].ID != a.ID || list[1].ID != b.ID {
		t.Fatalf("expected [a b] newest first, got %#v", list)
	}
}

func TestDocuments_DuplicateChecksOwnership(t *testing.T) {
	ctx := context.Background()
	docs := openTestDB(t).Documents()
	orig, _ := docs.Create(ctx, "user-1", "plan", "content")

	cp, err := docs.Duplicate(ctx, orig.ID, "user-1", "")
	if err != nil {
		t.Fatalf("Duplicate: %v", err)
	}
	if cp.ID == orig.ID || cp.Title != "plan (Copy)" || cp.Content != "content" || cp.OwnerID != "user-1" {
		t.Fatalf("unexpected copy: %#v", cp)
	}

	named, err := docs.Duplicate(ctx, orig.ID, "user-1", "other.md")
	if err != nil {
		t.Fatalf("Duplicate (named): %v", err)
	}
	if named.Title != "other" {
		t.Fatalf("expected normalized title, got %q", named.Title)
	}

	if _, err := docs.Duplicate(ctx, orig.ID, "user-2", ""); !errors.Is(err, perm.ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if err := docs.DeleteOwned(ctx, orig.ID, "user-2"); !errors.Is(err, perm.ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner on delete, got %v", err)
	}
	if err := docs.DeleteOwned(ctx, orig.ID, "user-1"); err != nil {
		t.Fatalf("DeleteOwned: %v", err)
	}
}

func TestDocuments_SearchAndStats(t *testing.T) {
	ctx := context.Background()
	docs := openTestDB(t).Documents()
	_, _ = docs.Create(ctx, "user-1", "Groceries", "milk, eggs")
	_, _ = docs.Create(ctx, "user-1", "Ideas", "Buy MILK frother")
	_, _ = docs.Create(ctx, "user-1", "100%", "literal percent")
	_, _ = docs.Create(ctx, "user-2", "milk", "not mine")

	got, err := docs.Search(ctx, "user-1", "Milk")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 matches, got %d (%#v)", len(got), got)
	}
	pct, err := docs.Search(ctx, "user-1", "%")
	if err != nil {
		t.Fatalf("Search %%: %v", err)
	}
	if len(pct) != 1 || pct[0].Title != "100%" {
		t.Fatalf("expected literal %% match, got %#v", pct)
	}

	st, err := docs.Stats(ctx, "user-1")
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.TotalDocuments != 3 || st.TotalCharacters != 10+16+15 || st.AverageLength != 14 || st.LastModified == nil {
		t.Fatalf("unexpected stats: %#v", st)
	}

	empty, err := docs.Stats(ctx, "user-3")
	if err != nil {
		t.Fatalf("Stats (empty): %v", err)
	}
	if empty.TotalDocuments != 0 || empty.AverageLength != 0 || empty.LastModified != nil {
		t.Fatalf("unexpected empty stats: %#v", empty)
	}
}

func TestSortDocuments(t *testing.T) {
	ctx := context.Background()
	docs := openTestDB(t).Documents()
	b, _ := docs.Create(ctx, "u", "beta", "xx")
	a, _ := docs.Create(ctx, "u", "Alpha", "xxxxx")
	list := []model.Document{b, a}

	SortDocuments(list, SortByName)
	if list[0].ID != a.ID {
		t.Fatalf("expected Alpha first by name")
	}
	SortDocuments(list, SortBySize)
	if list[0].ID != a.ID {
		t.Fatalf("expected largest first by size")
	}
	SortDocuments(list, SortByCreated)
	if list[0].ID != a.ID {
		t.Fatalf("expected newest first by created")
	}
	if ParseSortKey("bogus") != SortByLastModified {
		t.Fatalf("expected unknown sort key to fall back to lastModified")
	}
}
