package textutil

import "strings"

var segmentReplacer = strings.NewReplacer(
	"/", "-",
	"\\", "-",
	":", "-",
	"*", "-",
	"?", "",
	"\"", "",
	"<", "",
	">", "",
	"|", "",
)

// SanitizePathSegment makes a tag value safe as a single directory or file
// name. Slashes, backslashes, colons and asterisks become dashes, other
// unsafe characters are dropped, and leading dots are stripped so a tag can
// never name a hidden or parent directory. Empty results become fallback.
func SanitizePathSegment(name, fallback string) string {
	cleaned := strings.TrimSpace(segmentReplacer.Replace(strings.TrimSpace(name)))
	cleaned = strings.TrimLeft(cleaned, ".")
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return fallback
	}
	return cleaned
}
