package postgate

import (
	"encoding/json"
	"strings"

	"github.com/eringen/postgate/frontmatter"
)

// Post is a markdown file shaped for the browser. Identity is
// (Category, Filename); ID is the file's blob SHA and changes on every write.
type Post struct {
	ID       string
	Filename string
	Category string
	Date     string
	Title    string
	Content  string

	// Extra holds front-matter keys other than title and date.
	Extra map[string]string
}

// reservedKeys are never taken from front matter: identity comes from the
// repository path and the body from the document itself.
var reservedKeys = map[string]bool{
	"id":       true,
	"filename": true,
	"category": true,
	"content":  true,
}

// newPost decodes raw and merges its metadata over the dates and titles
// derived from filename.
func newPost(category, filename, sha string, raw []byte) Post {
	doc := frontmatter.Decode(string(raw))
	date, title := frontmatter.Fallback(filename)
	p := Post{
		ID:       sha,
		Filename: filename,
		Category: category,
		Date:     date,
		Title:    title,
		Content:  strings.TrimSpace(doc.Body),
		Extra:    make(map[string]string),
	}
	for k, v := range doc.Metadata {
		switch {
		case k == "date":
			if v != "" {
				p.Date = v
			}
		case k == "title":
			if v != "" {
				p.Title = v
			}
		case reservedKeys[k]:
		default:
			p.Extra[k] = v
		}
	}
	return p
}

// MarshalJSON flattens Extra into the object next to the fixed fields.
func (p Post) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(p.Extra)+6)
	for k, v := range p.Extra {
		m[k] = v
	}
	m["id"] = p.ID
	m["filename"] = p.Filename
	m["category"] = p.Category
	m["date"] = p.Date
	m["title"] = p.Title
	m["content"] = p.Content
	return json.Marshal(m)
}

type postRequest struct {
	Category string `json:"category"`
	Filename string `json:"filename"`
	Content  string `json:"content"`

	// Title switches the request to the structured form: Content is then
	// the body and the gateway writes the front matter.
	Title string `json:"title"`
	Date  string `json:"date"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type imageResponse struct {
	Success     bool   `json:"success"`
	URL         string `json:"url"`
	DownloadURL string `json:"downloadUrl"`
	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`
}
