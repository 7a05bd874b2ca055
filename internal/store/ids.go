package store

import (
	"strings"

	"github.com/google/uuid"
)

// newRandomID returns prefix-<suffix> where suffix is a dash-less random UUID.
func newRandomID(prefix string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")
	return prefix + "-" + suffix
}
