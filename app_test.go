package postgate

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/eringen/postgate/github/githubtest"
)

const testEmail = "me@example.com"

var testNow = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

func testConfig(srv *githubtest.Server) Config {
	return Config{
		GitHubToken:     githubtest.Token,
		GitHubRepo:      githubtest.Repo,
		GitHubAPIURL:    srv.URL,
		AuthSecret:      "test-secret-0123456789",
		AllowedEmails:   List{testEmail},
		UpstreamRetries: 0,
		SiteName:        "Test Blog",
		SiteURL:         "https://blog.example.com",
	}
}

// newTestApp returns an App talking to a fresh fake GitHub server. mutate,
// when given, adjusts the config before the App is built.
func newTestApp(t *testing.T, mutate ...func(*Config)) (*App, *githubtest.Server) {
	t.Helper()
	srv := githubtest.NewServer(t)
	cfg := testConfig(srv)
	for _, m := range mutate {
		m(&cfg)
	}
	a, err := New(cfg,
		WithHTTPClient(srv.Client()),
		WithClock(func() time.Time { return testNow }),
		WithLogger(zerolog.Nop()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a, srv
}

func bearer(t *testing.T, a *App) string {
	t.Helper()
	tok, err := a.Tokens.Issue(testEmail)
	require.NoError(t, err)
	return "Bearer " + tok
}

type request struct {
	method string
	target string
	body   string
	auth   string
	header map[string]string
}

func serve(a *App, r request) *httptest.ResponseRecorder {
	var body io.Reader
	if r.body != "" {
		body = strings.NewReader(r.body)
	}
	req := httptest.NewRequest(r.method, r.target, body)
	if r.body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.auth != "" {
		req.Header.Set("Authorization", r.auth)
	}
	for k, v := range r.header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	a.Echo.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), "body: %s", rec.Body.String())
	return v
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[errorBody](t, rec).Error
}

type postJSON struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Category string `json:"category"`
	Date     string `json:"date"`
	Title    string `json:"title"`
	Content  string `json:"content"`
}

func assertStatus(t *testing.T, want int, rec *httptest.ResponseRecorder) {
	t.Helper()
	require.Equal(t, want, rec.Code, "body: %s", rec.Body.String())
}

func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
