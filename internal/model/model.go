package model

import (
	"strings"
	"time"
)

// NewDocumentID is the sentinel id of a document that has not been persisted yet.
const NewDocumentID = "new"

// DefaultTitle is used for fresh documents and whenever a title normalizes to empty.
const DefaultTitle = "Untitled"

const markdownExt = ".md"

type Document struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	OwnerID   string    `json:"ownerId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// FileName is the display form of the title ("<title>.md").
func (d Document) FileName() string { return FileName(d.Title) }

// Size is the content length in bytes; used for dashboard sorting.
func (d Document) Size() int { return len(d.Content) }

// DocumentPatch is a partial update. Nil fields are left untouched.
type DocumentPatch struct {
	Title   *string `json:"title,omitempty"`
	Content *string `json:"content,omitempty"`
}

type DocumentStats struct {
	TotalDocuments  int        `json:"totalDocuments"`
	TotalCharacters int        `json:"totalCharacters"`
	AverageLength   int        `json:"averageLength"`
	LastModified    *time.Time `json:"lastModified,omitempty"`
}

type AuthProvider string

const (
	ProviderPassword AuthProvider = "password"
	ProviderGoogle   AuthProvider = "google"
)

type User struct {
	ID            string       `json:"id"`
	Name          string       `json:"name"`
	Email         string       `json:"email"`
	EmailVerified bool         `json:"emailVerified"`
	Provider      AuthProvider `json:"provider"`
	PasswordHash  string       `json:"-"`
	// TokenGeneration is bumped by "log out everywhere"; sessions minted for an
	// older generation are rejected.
	TokenGeneration int       `json:"-"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// IsNewDocumentID reports whether id is the sentinel (or absent).
func IsNewDocumentID(id string) bool {
	id = strings.TrimSpace(id)
	return id == "" || id == NewDocumentID
}

// TitleFromFileName strips a trailing ".md" (any case) and surrounding space.
func TitleFromFileName(name string) string {
	name = strings.TrimSpace(name)
	if len(name) >= len(markdownExt) && strings.EqualFold(name[len(name)-len(markdownExt):], markdownExt) {
		name = strings.TrimSpace(name[:len(name)-len(markdownExt)])
	}
	if name == "" {
		return DefaultTitle
	}
	return name
}

// FileName returns the canonical "<title>.md" form.
func FileName(title string) string {
	return TitleFromFileName(title) + markdownExt
}

// NormalizeEmail lowercases and trims an address for storage and lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
