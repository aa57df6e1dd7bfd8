package publish

import (
	"regexp"
	"strings"
)

var nonAlphanumRE = regexp.MustCompile(`[^a-z0-9]+`)

// Slug converts a title to its filesystem-safe identifier.
// Example: "Home IP Camera Architecture!!" -> "home-ip-camera-architecture"
func Slug(title string) string {
	// Convert to lowercase
	slug := strings.ToLower(title)

	// Replace every run of non-alphanumeric characters with one hyphen
	slug = nonAlphanumRE.ReplaceAllString(slug, "-")

	// Trim hyphens from start and end
	return strings.Trim(slug, "-")
}
