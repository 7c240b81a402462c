package docset

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var titleCaser = cases.Title(language.Und)

// NormalizeName canonicalizes a package name: lowercase, with runs of
// `-`, `_` and `.` collapsed to a single `-`. Two names that normalize to the
// same value refer to the same package.
func NormalizeName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	pendingSep := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch r {
		case '-', '_', '.':
			pendingSep = true
		default:
			if pendingSep && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingSep = false
			b.WriteRune(r)
		}
	}
	return b.String()
}

// DisplayTitle renders a normalized package name for human-facing surfaces
// ("requests-oauthlib" -> "Requests Oauthlib").
func DisplayTitle(name string) string {
	return titleCaser.String(strings.ReplaceAll(NormalizeName(name), "-", " "))
}
