package perm

import (
	"errors"
	"strings"

	"mdpreview/internal/model"
)

// ErrNotOwner is returned when a user touches a document they do not own.
var ErrNotOwner = errors.New("permission denied: not the document owner")

// CanReadDocument enforces ownership for reads.
//
// Rules:
// - The user id must be known (anonymous users can read nothing).
// - Only the owner can read; there is no sharing.
func CanReadDocument(userID string, d *model.Document) bool {
	if d == nil {
		return false
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return false
	}
	return d.OwnerID == userID
}

// CanEditDocument enforces ownership for writes. Same rule as reads today.
func CanEditDocument(userID string, d *model.Document) bool {
	return CanReadDocument(userID, d)
}

// RequireOwner is CanEditDocument as an error.
func RequireOwner(userID string, d *model.Document) error {
	if !CanEditDocument(userID, d) {
		return ErrNotOwner
	}
	return nil
}
