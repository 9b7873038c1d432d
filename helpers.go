package postgate

import (
	"net/url"
	"path"
	"strings"
	"unicode"
)

// Slugify converts a title to a filename-safe slug. Letters and digits in
// any script are kept, spaces and hyphens collapse to single hyphens, and
// other punctuation is dropped.
func Slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	pending := false
	for _, r := range s {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '_':
			if pending && b.Len() > 0 {
				b.WriteByte('-')
			}
			pending = false
			b.WriteRune(r)
		case r == '-', unicode.IsSpace(r):
			pending = true
		}
	}
	return b.String()
}

// BuildURL joins a base URL with escaped path segments.
func BuildURL(base string, pathSegments ...string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	escaped := make([]string, len(pathSegments))
	for i, s := range pathSegments {
		escaped[i] = url.PathEscape(s)
	}
	u.RawPath = path.Join(append([]string{u.EscapedPath()}, escaped...)...)
	u.Path, err = url.PathUnescape(u.RawPath)
	if err != nil {
		return base
	}
	return u.String()
}
