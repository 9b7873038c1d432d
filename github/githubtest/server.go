// Package githubtest provides an in-memory fake of the GitHub contents API
// for tests.
package githubtest

import (
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path"
	"sort"
	"strings"
	"sync"
	"testing"
)

// Token is the credential the fake server accepts.
const Token = "test-token"

// Repo is the repository the fake server serves.
const Repo = "owner/blog"

// Call records one request received by the server.
type Call struct {
	Method    string
	Path      string // repository path, or "raw:" + path for downloads
	UserAgent string
	Body      map[string]string
}

type failure struct {
	status    int
	remaining int // < 0 means forever
}

// Server is a fake contents API backed by a map of path to bytes.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	files    map[string][]byte
	calls    []Call
	failures map[string]*failure
}

// NewServer starts a server and registers its shutdown with t.
func NewServer(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		files:    make(map[string][]byte),
		failures: make(map[string]*failure),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// Put stores a file and returns its blob SHA.
func (s *Server) Put(p, content string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[p] = []byte(content)
	return blobSHA(s.files[p])
}

// File returns the stored content of p.
func (s *Server) File(p string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.files[p]
	return string(data), ok
}

// SHA returns the blob SHA of p, or "" if absent.
func (s *Server) SHA(p string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.files[p]
	if !ok {
		return ""
	}
	return blobSHA(data)
}

// Fail makes every request with method to p answer status. Use "raw:" + p
// to target downloads.
func (s *Server) Fail(method, p string, status int) {
	s.FailTimes(method, p, status, -1)
}

// FailTimes makes the next n matching requests answer status.
func (s *Server) FailTimes(method, p string, status, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method+" "+p] = &failure{status: status, remaining: n}
}

// Calls returns a copy of the requests received so far.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// CallCount returns the number of requests received so far.
func (s *Server) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	contentsPrefix := "/repos/" + Repo + "/contents/"

	var p string
	switch {
	case strings.HasPrefix(r.URL.Path, contentsPrefix):
		p = strings.TrimPrefix(r.URL.Path, contentsPrefix)
	case strings.HasPrefix(r.URL.Path, "/raw/"):
		p = "raw:" + strings.TrimPrefix(r.URL.Path, "/raw/")
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		return
	}

	var body map[string]string
	if r.Body != nil && (r.Method == http.MethodPut || r.Method == http.MethodDelete) {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Method: r.Method, Path: p, UserAgent: r.UserAgent(), Body: body})

	if r.Header.Get("Authorization") != "token "+Token {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Bad credentials"})
		return
	}
	if f, ok := s.failures[r.Method+" "+p]; ok && f.remaining != 0 {
		if f.remaining > 0 {
			f.remaining--
		}
		writeJSON(w, f.status, map[string]string{"message": fmt.Sprintf("injected failure %d", f.status)})
		return
	}

	if raw, ok := strings.CutPrefix(p, "raw:"); ok {
		data, exists := s.files[raw]
		if !exists || r.Method != http.MethodGet {
			http.Error(w, "404: Not Found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write(data)
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.handleGet(w, p)
	case http.MethodPut:
		s.handlePut(w, p, body)
	case http.MethodDelete:
		s.handleDelete(w, p, body)
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"message": "Method Not Allowed"})
	}
}

func (s *Server) handleGet(w http.ResponseWriter, p string) {
	if data, ok := s.files[p]; ok {
		resp := s.entry(p, data)
		resp["content"] = wrap(base64.StdEncoding.EncodeToString(data))
		resp["encoding"] = "base64"
		writeJSON(w, http.StatusOK, resp)
		return
	}

	seen := make(map[string]bool)
	var entries []map[string]any
	for fp, data := range s.files {
		rest, ok := strings.CutPrefix(fp, p+"/")
		if !ok {
			continue
		}
		if dir, _, nested := strings.Cut(rest, "/"); nested {
			if !seen[dir] {
				seen[dir] = true
				entries = append(entries, map[string]any{
					"name": dir, "path": p + "/" + dir, "sha": "", "type": "dir", "download_url": nil,
				})
			}
			continue
		}
		entries = append(entries, s.entry(fp, data))
	}
	if len(entries) == 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		return
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i]["name"].(string) < entries[j]["name"].(string)
	})
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handlePut(w http.ResponseWriter, p string, body map[string]string) {
	data, err := base64.StdEncoding.DecodeString(body["content"])
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "content is not valid Base64"})
		return
	}
	current, exists := s.files[p]
	status := http.StatusCreated
	switch {
	case exists && body["sha"] == "":
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": "Invalid request.\n\n\"sha\" wasn't supplied."})
		return
	case exists && body["sha"] != blobSHA(current):
		writeJSON(w, http.StatusConflict, map[string]string{"message": p + " does not match " + body["sha"]})
		return
	case !exists && body["sha"] != "":
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		return
	case exists:
		status = http.StatusOK
	}
	s.files[p] = data
	writeJSON(w, status, map[string]any{
		"content": s.entry(p, data),
		"commit":  map[string]string{"sha": blobSHA([]byte(p + body["message"])), "message": body["message"]},
	})
}

func (s *Server) handleDelete(w http.ResponseWriter, p string, body map[string]string) {
	current, exists := s.files[p]
	switch {
	case !exists:
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		return
	case body["sha"] == "":
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": "Invalid request.\n\n\"sha\" wasn't supplied."})
		return
	case body["sha"] != blobSHA(current):
		writeJSON(w, http.StatusConflict, map[string]string{"message": p + " does not match " + body["sha"]})
		return
	}
	delete(s.files, p)
	writeJSON(w, http.StatusOK, map[string]any{
		"content": nil,
		"commit":  map[string]string{"sha": blobSHA([]byte(p + body["message"])), "message": body["message"]},
	})
}

func (s *Server) entry(p string, data []byte) map[string]any {
	return map[string]any{
		"name":         path.Base(p),
		"path":         p,
		"sha":          blobSHA(data),
		"size":         len(data),
		"type":         "file",
		"download_url": s.URL + "/raw/" + p,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// blobSHA is git's object id for a blob.
func blobSHA(data []byte) string {
	h := sha1.New()
	fmt.Fprintf(h, "blob %d\x00", len(data))
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// wrap breaks s into 60 character lines like the real API.
func wrap(s string) string {
	var b strings.Builder
	for len(s) > 60 {
		b.WriteString(s[:60])
		b.WriteByte('\n')
		s = s[60:]
	}
	b.WriteString(s)
	b.WriteByte('\n')
	return b.String()
}
