package chat

import (
	"regexp"
	"strings"
)

// Message text arrives from anonymous strangers and is rendered in the other
// party's browser, so markup is stripped outright rather than escaped:
// script blocks (including their contents) first, then any remaining tags.
var (
	scriptRe = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script\s*>`)
	tagRe    = regexp.MustCompile(`<[^>]*>`)
)

// SanitizeText strips markup and script constructs from untrusted input and
// trims surrounding whitespace. The result may be empty.
func SanitizeText(raw string) string {
	clean := scriptRe.ReplaceAllString(raw, "")
	clean = tagRe.ReplaceAllString(clean, "")
	return strings.TrimSpace(clean)
}
