package utilities

import (
	"strings"

	"github.com/gosimple/slug"
)

// Slug turns a display name into a handle, e.g. "Midnight Collective" ->
// "midnight-collective". Returns "" for input with nothing sluggable.
func Slug(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	return slug.Make(s)
}
