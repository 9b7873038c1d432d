// Package postgate is a stateless HTTP gateway that lets one allow-listed
// user publish markdown posts stored as files in a GitHub repository.
//
// The browser never sees the GitHub credential. It logs in for a signed
// session token and calls the gateway, which proxies and aggregates the
// GitHub contents API and shapes files into posts.
package postgate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/eringen/postgate/github"
	"github.com/eringen/postgate/token"
)

// App is the gateway. It wires together the configuration, token service,
// GitHub client, middleware and handlers.
type App struct {
	Config  Config
	Echo    *echo.Echo
	Content *github.Client
	Tokens  *token.Service
	Log     zerolog.Logger

	loginLimiter      *LoginLimiter
	registry          *prometheus.Registry
	aggregateFailures *prometheus.CounterVec
	markdown          goldmark.Markdown
	httpClient        *http.Client
	now               func() time.Time
	hasLogger         bool
}

// New validates cfg and builds an App ready to serve.
func New(cfg Config, opts ...Option) (*App, error) {
	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &App{
		Config: cfg,
		Echo:   echo.New(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	if !a.hasLogger {
		a.Log = NewLogger(os.Stdout, cfg.LogLevel)
	}

	content, err := github.NewClient(github.Config{
		BaseURL:    cfg.GitHubAPIURL,
		Token:      cfg.GitHubToken,
		Repo:       cfg.GitHubRepo,
		Branch:     cfg.GitHubBranch,
		RetryCount: cfg.UpstreamRetries,
		Timeout:    cfg.UpstreamTimeout,
		HTTPClient: a.httpClient,
		Logger:     a.Log,
	})
	if err != nil {
		return nil, fmt.Errorf("postgate: init github client: %w", err)
	}
	a.Content = content

	tokens, err := token.NewService(cfg.AuthSecret, cfg.TokenTTL, token.WithClock(a.now))
	if err != nil {
		return nil, fmt.Errorf("postgate: init token service: %w", err)
	}
	a.Tokens = tokens

	a.loginLimiter = NewLoginLimiter(cfg.LoginMaxAttempts, cfg.LoginWindow, a.now)

	a.registry = prometheus.NewRegistry()
	a.aggregateFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "postgate",
		Name:      "aggregate_failures_total",
		Help:      "Category listings and post downloads dropped from GET /posts.",
	}, []string{"stage"})
	a.registry.MustRegister(a.aggregateFailures)

	a.markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

	a.Echo.HideBanner = true
	a.Echo.HidePort = true
	a.setupMiddleware()
	a.setupRoutes()
	return a, nil
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (a *App) Start(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		a.Log.Info().
			Str("addr", a.Config.Addr).
			Str("repo", a.Config.GitHubRepo).
			Strs("categories", a.Config.Categories).
			Int("allowed_emails", len(a.Config.AllowedEmails)).
			Msg("gateway listening")
		errc <- a.Echo.Start(a.Config.Addr)
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	a.Log.Info().Msg("shutting down")
	if err := a.Echo.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

// Close releases background resources.
func (a *App) Close() error {
	a.loginLimiter.Stop()
	return a.Echo.Close()
}

func (a *App) setupRoutes() {
	e := a.Echo

	e.POST("/auth/login", a.handleLogin)

	e.GET("/posts", a.handleListPosts)
	e.POST("/posts", a.handleCreatePost, a.requireAuth)
	e.GET("/posts/:category/:filename", a.handleGetPost, requirePostPath)
	e.PUT("/posts/:category/:filename", a.handleUpdatePost, requirePostPath, a.requireAuth)
	e.DELETE("/posts/:category/:filename", a.handleDeletePost, requirePostPath, a.requireAuth)
	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
		e.Add(method, "/posts/*", handleInvalidPostPath)
	}

	e.POST("/images", a.handleImageUpload, a.requireAuth)

	e.GET("/feed.xml", a.handleFeed)
	e.GET("/healthz", handleHealth)
	e.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{
		Gatherer: a.registry,
	}))
}
