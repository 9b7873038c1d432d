// Package github is a small client for the GitHub repository contents API.
//
// Files are addressed by repository and path. Updates and deletes need the
// file's current blob SHA (its version token); UpdateFile and RemoveFile
// fetch it first, so the pair is a read-then-write and is not atomic.
// Concurrent editors race, and the loser gets ErrConflict.
package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// apiVersion pins the REST API version header.
const apiVersion = "2022-11-28"

const (
	// DefaultBaseURL is the public GitHub API.
	DefaultBaseURL = "https://api.github.com"

	// DefaultUserAgent identifies the gateway to GitHub.
	DefaultUserAgent = "postgate"
)

// Config holds configuration for creating a Client.
type Config struct {
	// BaseURL is the root URL for API requests. Defaults to DefaultBaseURL.
	BaseURL string

	// Token is a personal access token or fine-grained token.
	Token string

	// Repo is the repository in "owner/name" form.
	Repo string

	// Branch, when set, is used for reads and commits instead of the
	// repository's default branch.
	Branch string

	// UserAgent defaults to DefaultUserAgent.
	UserAgent string

	// RetryCount is the number of extra attempts after a transport error,
	// 429 or 5xx response. Zero disables retries.
	RetryCount int

	// RetryWait is the initial backoff between attempts (default 300ms).
	RetryWait time.Duration

	// Timeout bounds each API call, retries included (default 15s). It is
	// applied as a context deadline; HTTPClient is not modified.
	Timeout time.Duration

	// HTTPClient is the underlying transport. Defaults to a fresh client.
	HTTPClient *http.Client

	// Logger receives one debug line per upstream response.
	Logger zerolog.Logger
}

// Client issues authenticated calls against one repository.
type Client struct {
	rest    *resty.Client
	repo    string
	branch  string
	timeout time.Duration
	log     zerolog.Logger
}

// NewClient creates a Client. Returns an error if the token is missing or
// the repository is not in owner/name form.
func NewClient(config Config) (*Client, error) {
	if config.Token == "" {
		return nil, errors.New("github: token is required")
	}
	owner, name, ok := strings.Cut(config.Repo, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return nil, fmt.Errorf("github: repository must be owner/name (got %q)", config.Repo)
	}

	baseURL := strings.TrimRight(config.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	userAgent := config.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	wait := config.RetryWait
	if wait <= 0 {
		wait = 300 * time.Millisecond
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	var rest *resty.Client
	if config.HTTPClient != nil {
		rest = resty.NewWithClient(config.HTTPClient)
	} else {
		rest = resty.New()
	}

	c := &Client{
		repo:    config.Repo,
		branch:  config.Branch,
		timeout: timeout,
		log:     config.Logger.With().Str("component", "github").Logger(),
	}

	rest.SetBaseURL(baseURL).
		SetAuthScheme("token").
		SetAuthToken(config.Token).
		SetHeader("Accept", "application/vnd.github+json").
		SetHeader("X-GitHub-Api-Version", apiVersion).
		SetHeader("User-Agent", userAgent).
		SetRetryCount(config.RetryCount).
		SetRetryWaitTime(wait).
		SetRetryMaxWaitTime(10 * wait).
		AddRetryCondition(retryable).
		OnAfterResponse(func(_ *resty.Client, r *resty.Response) error {
			c.log.Debug().
				Str("method", r.Request.Method).
				Str("url", r.Request.URL).
				Int("status", r.StatusCode()).
				Int("attempt", r.Request.Attempt).
				Dur("took", r.Time()).
				Msg("github response")
			return nil
		})
	c.rest = rest

	return c, nil
}

// Repo returns the repository the client is bound to.
func (c *Client) Repo() string {
	return c.repo
}

// retryable allows retries for reads only. A write that GitHub committed
// but answered with a 5xx would otherwise be replayed and fail with a
// conflict or not-found against its own result.
func retryable(r *resty.Response, err error) bool {
	if r == nil || r.Request == nil || r.Request.Method != http.MethodGet {
		return false
	}
	if err != nil {
		return !errors.Is(err, context.Canceled)
	}
	code := r.StatusCode()
	return code == http.StatusTooManyRequests || code >= 500
}

// List returns the entries of directory dir.
func (c *Client) List(ctx context.Context, dir string) ([]Entry, error) {
	var entries []Entry
	if err := c.get(ctx, c.contentsURL(dir), &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// ReadFile returns the decoded bytes and SHA of the file at path.
func (c *Client) ReadFile(ctx context.Context, path string) (File, error) {
	var resp fileResponse
	if err := c.get(ctx, c.contentsURL(path), &resp); err != nil {
		return File{}, err
	}
	if resp.Type != "" && !resp.IsFile() {
		return File{}, fmt.Errorf("%w: %s is a %s, not a file", ErrUpstream, path, resp.Type)
	}

	switch resp.Encoding {
	case "base64":
		data, err := decodeContent(resp.Content)
		if err != nil {
			return File{}, fmt.Errorf("%w: decoding %s: %w", ErrUpstream, path, err)
		}
		return File{Entry: resp.Entry, Content: data}, nil
	case "", "none":
		// Files over 1 MB come back without inline content.
		data, err := c.Download(ctx, resp.DownloadURL)
		if err != nil {
			return File{}, err
		}
		return File{Entry: resp.Entry, Content: data}, nil
	default:
		return File{}, fmt.Errorf("%w: %s has unsupported encoding %q", ErrUpstream, path, resp.Encoding)
	}
}

// Download fetches a raw download URL as returned in Entry.DownloadURL.
func (c *Client) Download(ctx context.Context, downloadURL string) ([]byte, error) {
	if downloadURL == "" {
		return nil, fmt.Errorf("%w: empty download url", ErrUpstream)
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	resp, err := c.rest.R().SetContext(ctx).Get(downloadURL)
	if err != nil {
		return nil, fmt.Errorf("%w: GET %s: %w", ErrUpstream, downloadURL, err)
	}
	if resp.IsError() {
		return nil, parseAPIError(resp.StatusCode(), resp.Body(), false)
	}
	return resp.Body(), nil
}

// WriteFile creates or replaces the file at path. An empty sha creates a
// new file and fails with ErrConflict if the path exists; a non-empty sha
// must match the current blob or the write fails with ErrConflict.
func (c *Client) WriteFile(ctx context.Context, path string, data []byte, message, sha string) (WriteResult, error) {
	body := writeRequest{
		Message: message,
		Content: base64.StdEncoding.EncodeToString(data),
		SHA:     sha,
		Branch:  c.branch,
	}
	var result WriteResult
	if err := c.send(ctx, http.MethodPut, c.contentsURL(path), body, &result); err != nil {
		return WriteResult{}, err
	}
	return result, nil
}

// UpdateFile replaces an existing file, resolving its current SHA first.
func (c *Client) UpdateFile(ctx context.Context, path string, data []byte, message string) (WriteResult, error) {
	current, err := c.ReadFile(ctx, path)
	if err != nil {
		return WriteResult{}, err
	}
	return c.WriteFile(ctx, path, data, message, current.SHA)
}

// DeleteFile removes the file at path if its blob still matches sha.
func (c *Client) DeleteFile(ctx context.Context, path, message, sha string) error {
	body := writeRequest{Message: message, SHA: sha, Branch: c.branch}
	return c.send(ctx, http.MethodDelete, c.contentsURL(path), body, nil)
}

// RemoveFile deletes an existing file, resolving its current SHA first.
func (c *Client) RemoveFile(ctx context.Context, path, message string) error {
	current, err := c.ReadFile(ctx, path)
	if err != nil {
		return err
	}
	return c.DeleteFile(ctx, path, message, current.SHA)
}

func (c *Client) get(ctx context.Context, u string, result any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req := c.rest.R().SetContext(ctx)
	if c.branch != "" {
		req.SetQueryParam("ref", c.branch)
	}
	resp, err := req.Get(u)
	if err != nil {
		return fmt.Errorf("%w: GET %s: %w", ErrUpstream, u, err)
	}
	if resp.IsError() {
		return parseAPIError(resp.StatusCode(), resp.Body(), false)
	}
	if err := json.Unmarshal(resp.Body(), result); err != nil {
		return fmt.Errorf("%w: decoding GET %s: %w", ErrUpstream, u, err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, u string, body, result any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	resp, err := c.rest.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Execute(method, u)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrUpstream, method, u, err)
	}
	if resp.IsError() {
		return parseAPIError(resp.StatusCode(), resp.Body(), true)
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), result); err != nil {
		return fmt.Errorf("%w: decoding %s %s: %w", ErrUpstream, method, u, err)
	}
	return nil
}

// contentsURL returns the API path for p with each segment escaped.
func (c *Client) contentsURL(p string) string {
	segments := strings.Split(strings.Trim(p, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return "/repos/" + c.repo + "/contents/" + strings.Join(segments, "/")
}

// decodeContent decodes GitHub's base64 payload, which is wrapped with
// newlines every 60 characters.
func decodeContent(s string) ([]byte, error) {
	s = strings.NewReplacer("\n", "", "\r", "").Replace(s)
	return base64.StdEncoding.DecodeString(s)
}
