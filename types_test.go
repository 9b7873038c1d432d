package postgate

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPostMergesMetadata(t *testing.T) {
	raw := "---\ntitle: Real Title\ndate: 2024-09-09\ntags: go, web\nid: spoofed\ncategory: spoofed\n---\n\n  Body  \n"
	p := newPost("tech", "2024-01-02-slug.md", "abc123", []byte(raw))

	assert.Equal(t, "abc123", p.ID)
	assert.Equal(t, "tech", p.Category)
	assert.Equal(t, "2024-01-02-slug.md", p.Filename)
	assert.Equal(t, "Real Title", p.Title)
	assert.Equal(t, "2024-09-09", p.Date)
	assert.Equal(t, "Body", p.Content)
	assert.Equal(t, map[string]string{"tags": "go, web"}, p.Extra)
}

func TestNewPostEmptyMetadataKeepsFallback(t *testing.T) {
	p := newPost("life", "2024-01-02-walk.md", "", []byte("---\ntitle:\ndate:\n---\nText"))

	assert.Equal(t, "2024-01-02-walk", p.Title)
	assert.Equal(t, "2024-01-02", p.Date)
	assert.Equal(t, "Text", p.Content)
}

func TestPostMarshalJSON(t *testing.T) {
	p := Post{
		ID:       "sha",
		Filename: "a.md",
		Category: "tech",
		Date:     "2024-01-02",
		Title:    "A",
		Content:  "body",
		Extra:    map[string]string{"author": "me"},
	}
	b, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"sha","filename":"a.md","category":"tech","date":"2024-01-02","title":"A","content":"body","author":"me"}`, string(b))
}
