package postgate

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListPostsAggregatesCategories(t *testing.T) {
	a, srv := newTestApp(t)
	srv.Put("posts/tech/2024-01-02-go.md", "---\ntitle: Go\ndate: 2024-01-02\n---\n\nBody")
	srv.Put("posts/tech/notes.txt", "ignored")
	srv.Put("posts/life/2024-02-03-walk.md", "No front matter")
	srv.Put("posts/diary/2024-03-04-day.md", "---\ntitle: Day\n---\nEntry")

	rec := serve(a, request{method: http.MethodGet, target: "/posts"})
	assertStatus(t, http.StatusOK, rec)
	resp := decode[struct {
		Posts []postJSON `json:"posts"`
	}](t, rec)

	byFile := make(map[string]postJSON)
	for _, p := range resp.Posts {
		byFile[p.Filename] = p
	}
	require.Len(t, byFile, 3)
	assert.Equal(t, "Go", byFile["2024-01-02-go.md"].Title)
	assert.Equal(t, "tech", byFile["2024-01-02-go.md"].Category)
	assert.Equal(t, srv.SHA("posts/tech/2024-01-02-go.md"), byFile["2024-01-02-go.md"].ID)
	assert.Equal(t, "2024-02-03-walk", byFile["2024-02-03-walk.md"].Title)
	assert.Equal(t, "2024-02-03", byFile["2024-02-03-walk.md"].Date)
	assert.Equal(t, "2024-03-04", byFile["2024-03-04-day.md"].Date)
	assert.Equal(t, "Entry", byFile["2024-03-04-day.md"].Content)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestListPostsSkipsFailedCategory(t *testing.T) {
	a, srv := newTestApp(t)
	srv.Put("posts/tech/2024-01-02-go.md", "Go")
	srv.Put("posts/diary/2024-01-03-day.md", "Day")
	srv.Fail(http.MethodGet, "posts/diary", http.StatusInternalServerError)

	rec := serve(a, request{method: http.MethodGet, target: "/posts"})
	assertStatus(t, http.StatusOK, rec)
	resp := decode[struct {
		Posts []postJSON `json:"posts"`
	}](t, rec)
	require.Len(t, resp.Posts, 1)
	assert.Equal(t, "tech", resp.Posts[0].Category)
}

func TestListPostsDropsFailedDownload(t *testing.T) {
	a, srv := newTestApp(t)
	srv.Put("posts/tech/2024-01-02-a.md", "A")
	srv.Put("posts/tech/2024-01-03-b.md", "B")
	srv.Fail(http.MethodGet, "raw:posts/tech/2024-01-03-b.md", http.StatusInternalServerError)

	rec := serve(a, request{method: http.MethodGet, target: "/posts"})
	assertStatus(t, http.StatusOK, rec)
	resp := decode[struct {
		Posts []postJSON `json:"posts"`
	}](t, rec)
	require.Len(t, resp.Posts, 1)
	assert.Equal(t, "2024-01-02-a.md", resp.Posts[0].Filename)

	metrics := serve(a, request{method: http.MethodGet, target: "/metrics"})
	assertStatus(t, http.StatusOK, metrics)
	assert.Contains(t, metrics.Body.String(), `postgate_aggregate_failures_total{stage="fetch"} 1`)
}

func TestListPostsEmpty(t *testing.T) {
	a, _ := newTestApp(t)

	rec := serve(a, request{method: http.MethodGet, target: "/posts"})
	assertStatus(t, http.StatusOK, rec)
	assert.JSONEq(t, `{"posts":[]}`, rec.Body.String())
}

func TestListPostsUnboundedConcurrency(t *testing.T) {
	a, srv := newTestApp(t, func(c *Config) { c.FetchConcurrency = -1 })
	for _, name := range []string{"a", "b", "c", "d"} {
		srv.Put("posts/life/2024-01-01-"+name+".md", name)
	}

	rec := serve(a, request{method: http.MethodGet, target: "/posts"})
	assertStatus(t, http.StatusOK, rec)
	resp := decode[struct {
		Posts []postJSON `json:"posts"`
	}](t, rec)
	assert.Len(t, resp.Posts, 4)
}

func TestGetPost(t *testing.T) {
	a, srv := newTestApp(t)
	sha := srv.Put("posts/tech/2024-01-02-go.md", "---\ntitle: Go\nauthor: me\n---\n\nBody")

	rec := serve(a, request{method: http.MethodGet, target: "/posts/tech/2024-01-02-go.md"})
	assertStatus(t, http.StatusOK, rec)
	resp := decode[struct {
		Post map[string]string `json:"post"`
	}](t, rec)
	assert.Equal(t, sha, resp.Post["id"])
	assert.Equal(t, "Go", resp.Post["title"])
	assert.Equal(t, "2024-01-02", resp.Post["date"])
	assert.Equal(t, "me", resp.Post["author"])
	assert.Equal(t, "Body", resp.Post["content"])
}

func TestGetPostNotFound(t *testing.T) {
	a, _ := newTestApp(t)

	rec := serve(a, request{method: http.MethodGet, target: "/posts/tech/missing.md"})
	assertStatus(t, http.StatusNotFound, rec)
	assert.NotEmpty(t, errorMessage(t, rec))
}

func TestGetPostUnknownCategory(t *testing.T) {
	a, srv := newTestApp(t)

	rec := serve(a, request{method: http.MethodGet, target: "/posts/secret/x.md"})
	assertStatus(t, http.StatusBadRequest, rec)
	assert.Zero(t, srv.CallCount())
}

func TestInvalidPostPath(t *testing.T) {
	a, srv := newTestApp(t)
	auth := bearer(t, a)

	for _, tc := range []struct{ method, target string }{
		{http.MethodGet, "/posts/tech"},
		{http.MethodGet, "/posts/tech/a/b.md"},
		{http.MethodPut, "/posts/tech"},
		{http.MethodDelete, "/posts/a/b/c"},
	} {
		t.Run(tc.method+" "+tc.target, func(t *testing.T) {
			rec := serve(a, request{method: tc.method, target: tc.target, body: `{}`, auth: auth})
			assertStatus(t, http.StatusBadRequest, rec)
			assert.Equal(t, "Invalid path", errorMessage(t, rec))
		})
	}
	assert.Zero(t, srv.CallCount())
}

func TestInvalidPostPathWithoutToken(t *testing.T) {
	a, srv := newTestApp(t)

	for _, tc := range []struct{ method, target string }{
		{http.MethodPut, "/posts/tech/a/b.md"},
		{http.MethodDelete, "/posts/tech/a/b.md"},
		{http.MethodPut, "/posts/a/b/c"},
		{http.MethodGet, "/posts/secret/a/b.md"},
		{http.MethodPut, "/posts/tech/a%2Fb.md"},
	} {
		t.Run(tc.method+" "+tc.target, func(t *testing.T) {
			rec := serve(a, request{method: tc.method, target: tc.target, body: `{"content":"x"}`})
			assertStatus(t, http.StatusBadRequest, rec)
			assert.Equal(t, "Invalid path", errorMessage(t, rec))
		})
	}
	assert.Zero(t, srv.CallCount())
}

func TestGetPostPercentInFilename(t *testing.T) {
	a, srv := newTestApp(t)
	srv.Put("posts/tech/100%-done.md", "literal percent")
	srv.Put("posts/tech/a%2B.md", "escaped plus")
	srv.Put("posts/tech/a+.md", "plus")

	rec := serve(a, request{method: http.MethodGet, target: "/posts/tech/100%25-done.md"})
	assertStatus(t, http.StatusOK, rec)
	assert.Contains(t, rec.Body.String(), "literal percent")

	rec = serve(a, request{method: http.MethodGet, target: "/posts/tech/a%252B.md"})
	assertStatus(t, http.StatusOK, rec)
	assert.Contains(t, rec.Body.String(), "escaped plus")
}

func TestCreatePostRaw(t *testing.T) {
	a, srv := newTestApp(t)
	raw := "---\ntitle: Hi\ndate: 2024-05-06\n---\n\nHello"

	rec := serve(a, request{
		method: http.MethodPost,
		target: "/posts",
		auth:   bearer(t, a),
		body:   `{"category":"tech","filename":"2024-05-06-hi.md","content":` + jsonString(raw) + `}`,
	})
	assertStatus(t, http.StatusOK, rec)
	stored, ok := srv.File("posts/tech/2024-05-06-hi.md")
	require.True(t, ok)
	assert.Equal(t, raw, stored)

	resp := decode[struct {
		Success bool     `json:"success"`
		Post    postJSON `json:"post"`
	}](t, rec)
	assert.True(t, resp.Success)
	assert.Equal(t, "Hi", resp.Post.Title)
	assert.Equal(t, srv.SHA("posts/tech/2024-05-06-hi.md"), resp.Post.ID)

	calls := srv.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, http.MethodPut, calls[0].Method)
	assert.Equal(t, "Create post: 2024-05-06-hi.md", calls[0].Body["message"])
	assert.Empty(t, calls[0].Body["sha"])
}

func TestCreatePostStructured(t *testing.T) {
	a, srv := newTestApp(t)

	rec := serve(a, request{
		method: http.MethodPost,
		target: "/posts",
		auth:   bearer(t, a),
		body:   `{"category":"life","title":"Hello, World!","content":"Body text"}`,
	})
	assertStatus(t, http.StatusOK, rec)
	stored, ok := srv.File("posts/life/2024-03-15-hello-world.md")
	require.True(t, ok)
	assert.Equal(t, "---\ntitle: Hello, World!\ndate: 2024-03-15\ncategory: life\n---\n\nBody text", stored)
}

func TestCreatePostExistingConflicts(t *testing.T) {
	a, srv := newTestApp(t)
	srv.Put("posts/tech/x.md", "old")

	rec := serve(a, request{
		method: http.MethodPost,
		target: "/posts",
		auth:   bearer(t, a),
		body:   `{"category":"tech","filename":"x.md","content":"new"}`,
	})
	assertStatus(t, http.StatusConflict, rec)
	stored, _ := srv.File("posts/tech/x.md")
	assert.Equal(t, "old", stored)
}

func TestCreatePostValidation(t *testing.T) {
	a, srv := newTestApp(t)
	auth := bearer(t, a)

	for name, body := range map[string]string{
		"unknown category": `{"category":"secret","filename":"x.md","content":"c"}`,
		"missing filename": `{"category":"tech","content":"c"}`,
		"not markdown":     `{"category":"tech","filename":"x.txt","content":"c"}`,
		"traversal":        `{"category":"tech","filename":"../x.md","content":"c"}`,
		"hidden":           `{"category":"tech","filename":".x.md","content":"c"}`,
		"bad date":         `{"category":"tech","title":"T","date":"15/03/2024","content":"c"}`,
		"bad json":         `{"category":`,
	} {
		t.Run(name, func(t *testing.T) {
			rec := serve(a, request{method: http.MethodPost, target: "/posts", auth: auth, body: body})
			assertStatus(t, http.StatusBadRequest, rec)
		})
	}
	assert.Zero(t, srv.CallCount())
}

func TestUpdatePostReadsThenWrites(t *testing.T) {
	a, srv := newTestApp(t)
	v1 := srv.Put("posts/tech/x.md", "v1")

	rec := serve(a, request{
		method: http.MethodPut,
		target: "/posts/tech/x.md",
		auth:   bearer(t, a),
		body:   `{"content":"v2"}`,
	})
	assertStatus(t, http.StatusOK, rec)
	stored, _ := srv.File("posts/tech/x.md")
	assert.Equal(t, "v2", stored)

	calls := srv.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, http.MethodGet, calls[0].Method)
	assert.Equal(t, http.MethodPut, calls[1].Method)
	assert.Equal(t, v1, calls[1].Body["sha"])
	assert.Equal(t, "Update post: x.md", calls[1].Body["message"])
}

func TestUpdatePostStructuredKeepsFilenameDate(t *testing.T) {
	a, srv := newTestApp(t)
	srv.Put("posts/diary/2023-12-31-eve.md", "old")

	rec := serve(a, request{
		method: http.MethodPut,
		target: "/posts/diary/2023-12-31-eve.md",
		auth:   bearer(t, a),
		body:   `{"title":"Eve","content":"Fireworks"}`,
	})
	assertStatus(t, http.StatusOK, rec)
	stored, _ := srv.File("posts/diary/2023-12-31-eve.md")
	assert.Equal(t, "---\ntitle: Eve\ndate: 2023-12-31\ncategory: diary\n---\n\nFireworks", stored)
}

func TestUpdatePostStaleVersionConflicts(t *testing.T) {
	a, srv := newTestApp(t)
	srv.Put("posts/tech/x.md", "v1")
	srv.Fail(http.MethodPut, "posts/tech/x.md", http.StatusConflict)

	rec := serve(a, request{
		method: http.MethodPut,
		target: "/posts/tech/x.md",
		auth:   bearer(t, a),
		body:   `{"content":"v2"}`,
	})
	assertStatus(t, http.StatusConflict, rec)
	assert.NotEmpty(t, errorMessage(t, rec))
}

func TestUpdatePostMissing(t *testing.T) {
	a, srv := newTestApp(t)

	rec := serve(a, request{
		method: http.MethodPut,
		target: "/posts/tech/missing.md",
		auth:   bearer(t, a),
		body:   `{"content":"v2"}`,
	})
	assertStatus(t, http.StatusNotFound, rec)
	assert.Equal(t, 1, srv.CallCount())
}

func TestUpdatePostUpstreamFailure(t *testing.T) {
	a, srv := newTestApp(t)
	srv.Put("posts/tech/x.md", "v1")
	srv.Fail(http.MethodGet, "posts/tech/x.md", http.StatusServiceUnavailable)

	rec := serve(a, request{
		method: http.MethodPut,
		target: "/posts/tech/x.md",
		auth:   bearer(t, a),
		body:   `{"content":"v2"}`,
	})
	assertStatus(t, http.StatusBadGateway, rec)
}

func TestDeletePost(t *testing.T) {
	a, srv := newTestApp(t)
	sha := srv.Put("posts/tech/x.md", "bye")

	rec := serve(a, request{method: http.MethodDelete, target: "/posts/tech/x.md", auth: bearer(t, a)})
	assertStatus(t, http.StatusOK, rec)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())
	_, ok := srv.File("posts/tech/x.md")
	assert.False(t, ok)

	calls := srv.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, sha, calls[1].Body["sha"])
	assert.Equal(t, "Delete post: x.md", calls[1].Body["message"])
}

func TestDeletePostMissing(t *testing.T) {
	a, _ := newTestApp(t)

	rec := serve(a, request{method: http.MethodDelete, target: "/posts/tech/x.md", auth: bearer(t, a)})
	assertStatus(t, http.StatusNotFound, rec)
}

func TestHealth(t *testing.T) {
	a, srv := newTestApp(t)

	rec := serve(a, request{method: http.MethodGet, target: "/healthz"})
	assertStatus(t, http.StatusOK, rec)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.Zero(t, srv.CallCount())
}

func TestPostFilename(t *testing.T) {
	assert.Equal(t, "2024-03-15-hello-world.md", postFilename("2024-03-15", "Hello World"))
	assert.Equal(t, "2024-03-15.md", postFilename("2024-03-15", "!!!"))
}
