package postgate

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"

	"github.com/eringen/postgate/github"
	"github.com/eringen/postgate/token"
)

// DefaultCategories are the post directories aggregated by GET /posts.
var DefaultCategories = List{"diary", "tech", "life"}

// Config holds all configuration for the gateway. It is loaded once at
// start and never mutated afterwards.
type Config struct {
	Addr string `envconfig:"ADDR" default:":8787"` // Listen address

	GitHubToken  string `envconfig:"GITHUB_TOKEN" required:"true"` // Service credential, never sent to browsers
	GitHubRepo   string `envconfig:"GITHUB_REPO" required:"true"`  // owner/name
	GitHubBranch string `envconfig:"GITHUB_BRANCH"`                // Empty means the default branch
	GitHubAPIURL string `envconfig:"GITHUB_API_URL" default:"https://api.github.com"`

	AuthSecret    string        `envconfig:"AUTH_SECRET" required:"true"`    // HMAC key for session tokens
	AllowedEmails List          `envconfig:"ALLOWED_EMAILS" required:"true"` // Comma-separated
	TokenTTL      time.Duration `envconfig:"TOKEN_TTL" default:"168h"`

	Categories       List          `envconfig:"CATEGORIES" default:"diary,tech,life"`
	FetchConcurrency int           `envconfig:"FETCH_CONCURRENCY" default:"8"` // -1 for unbounded
	UpstreamRetries  int           `envconfig:"UPSTREAM_RETRIES" default:"2"`
	UpstreamTimeout  time.Duration `envconfig:"UPSTREAM_TIMEOUT" default:"15s"`

	LoginMaxAttempts int           `envconfig:"LOGIN_MAX_ATTEMPTS" default:"5"`
	LoginWindow      time.Duration `envconfig:"LOGIN_WINDOW" default:"1m"`

	SiteName        string `envconfig:"SITE_NAME" default:"Blog"`
	SiteURL         string `envconfig:"SITE_URL" default:"http://localhost:8787"`
	SiteDescription string `envconfig:"SITE_DESCRIPTION"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// LoadConfig reads the configuration from environment variables.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("postgate: load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// setDefaults fills zero values, for configs built in code rather than
// loaded from the environment.
func (c *Config) setDefaults() {
	if c.Addr == "" {
		c.Addr = ":8787"
	}
	if c.GitHubAPIURL == "" {
		c.GitHubAPIURL = github.DefaultBaseURL
	}
	if c.TokenTTL == 0 {
		c.TokenTTL = token.DefaultTTL
	}
	if len(c.Categories) == 0 {
		c.Categories = DefaultCategories
	}
	if c.FetchConcurrency == 0 {
		c.FetchConcurrency = 8
	}
	if c.UpstreamTimeout == 0 {
		c.UpstreamTimeout = 15 * time.Second
	}
	if c.LoginMaxAttempts == 0 {
		c.LoginMaxAttempts = 5
	}
	if c.LoginWindow == 0 {
		c.LoginWindow = time.Minute
	}
	if c.SiteName == "" {
		c.SiteName = "Blog"
	}
	if c.SiteURL == "" {
		c.SiteURL = "http://localhost" + c.Addr
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate reports the first problem with c.
func (c Config) Validate() error {
	switch {
	case c.GitHubToken == "":
		return errors.New("postgate: GITHUB_TOKEN is required")
	case c.AuthSecret == "":
		return errors.New("postgate: AUTH_SECRET is required")
	case len(c.AuthSecret) < 16:
		return errors.New("postgate: AUTH_SECRET must be at least 16 characters")
	case len(c.AllowedEmails) == 0:
		return errors.New("postgate: ALLOWED_EMAILS must list at least one email")
	case c.FetchConcurrency == 0 || c.FetchConcurrency < -1:
		return fmt.Errorf("postgate: FETCH_CONCURRENCY must be positive or -1 (got %d)", c.FetchConcurrency)
	case c.UpstreamRetries < 0:
		return fmt.Errorf("postgate: UPSTREAM_RETRIES must not be negative (got %d)", c.UpstreamRetries)
	}
	owner, name, ok := strings.Cut(c.GitHubRepo, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return fmt.Errorf("postgate: GITHUB_REPO must be owner/name (got %q)", c.GitHubRepo)
	}
	for _, cat := range c.Categories {
		if strings.ContainsAny(cat, "/\\") || cat == "." || cat == ".." {
			return fmt.Errorf("postgate: invalid category %q", cat)
		}
	}
	if c.LogLevel != "" {
		if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
			return fmt.Errorf("postgate: LOG_LEVEL: %w", err)
		}
	}
	return nil
}

// List is a comma-separated configuration value. Entries are trimmed and
// empty entries dropped.
type List []string

// Decode implements envconfig.Decoder.
func (l *List) Decode(value string) error {
	*l = nil
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			*l = append(*l, v)
		}
	}
	return nil
}

// Contains reports whether v is an entry of l.
func (l List) Contains(v string) bool {
	for _, e := range l {
		if e == v {
			return true
		}
	}
	return false
}

// Option configures additional App behavior.
type Option func(*App)

// WithHTTPClient sets the transport used for GitHub calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(a *App) {
		a.httpClient = hc
	}
}

// WithClock replaces time.Now for token expiry, image names and default dates.
func WithClock(now func() time.Time) Option {
	return func(a *App) {
		a.now = now
	}
}

// WithLogger sets the application logger.
func WithLogger(l zerolog.Logger) Option {
	return func(a *App) {
		a.Log = l
		a.hasLogger = true
	}
}
