// Package frontmatter converts between markdown documents carrying a
// "---" delimited metadata block and a structured metadata/body pair.
//
// The metadata block is a flat list of "key: value" lines. Values are not
// escaped, so a value or body containing the delimiter line does not
// round-trip.
package frontmatter

import (
	"regexp"
	"strings"
)

const delimiter = "---"

var reDocument = regexp.MustCompile(`(?s)\A---\n(.+?)\n---\n(.*)\z`)

var reDatePrefix = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})`)

// Document is a decoded markdown file.
type Document struct {
	Metadata map[string]string
	Body     string
}

// Fields are the metadata keys written by Encode, in order.
type Fields struct {
	Title    string
	Date     string
	Category string
	Content  string
}

// Decode splits raw into metadata and body. A document without a metadata
// block is valid: it yields empty metadata and raw unchanged as the body.
func Decode(raw string) Document {
	m := reDocument.FindStringSubmatch(raw)
	if m == nil {
		return Document{Metadata: map[string]string{}, Body: raw}
	}
	meta := make(map[string]string)
	for _, line := range strings.Split(m[1], "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		meta[key] = strings.TrimSpace(value)
	}
	return Document{Metadata: meta, Body: strings.TrimSpace(m[2])}
}

// Encode renders f as a markdown document with title, date and category
// in the metadata block followed by a blank line and the content.
func Encode(f Fields) string {
	var b strings.Builder
	b.WriteString(delimiter + "\n")
	b.WriteString("title: " + f.Title + "\n")
	b.WriteString("date: " + f.Date + "\n")
	b.WriteString("category: " + f.Category + "\n")
	b.WriteString(delimiter + "\n\n")
	b.WriteString(f.Content)
	return b.String()
}

// Fallback derives the date and title used when a document's metadata
// omits them. The date is the filename's leading YYYY-MM-DD prefix (empty
// when absent) and the title is the filename without its .md extension.
func Fallback(filename string) (date, title string) {
	if m := reDatePrefix.FindStringSubmatch(filename); m != nil {
		date = m[1]
	}
	return date, strings.Replace(filename, ".md", "", 1)
}
