package postgate

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

const emailContextKey = "postgate.email"

func (a *App) handleLogin(c echo.Context) error {
	ip := c.RealIP()
	if !a.loginLimiter.Check(ip) {
		return echo.NewHTTPError(http.StatusTooManyRequests, "too many login attempts, try again later")
	}
	var req loginRequest
	if err := decodeJSON(c, &req); err != nil {
		return err
	}
	// The password field is accepted for client compatibility; identity
	// is the allow-list alone.
	email := strings.TrimSpace(req.Email)
	if email == "" || !a.Config.AllowedEmails.Contains(email) {
		a.loginLimiter.Record(ip)
		a.Log.Warn().Str("ip", ip).Str("email", email).Msg("login rejected")
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized email")
	}
	tok, err := a.Tokens.Issue(email)
	if err != nil {
		return err
	}
	a.Log.Info().Str("email", email).Msg("token issued")
	return c.JSON(http.StatusOK, map[string]string{
		"token": tok,
		"email": email,
	})
}

// requireAuth rejects requests without a valid bearer token before the
// handler runs, so no upstream call is made for them.
func (a *App) requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := c.Request().Header.Get(echo.HeaderAuthorization)
		if header == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
		}
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			return echo.NewHTTPError(http.StatusUnauthorized, "authorization must use the Bearer scheme")
		}
		payload, err := a.Tokens.Verify(strings.TrimSpace(raw))
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
		}
		// Removing an address from the allow-list locks out its tokens on
		// the next restart.
		if !a.Config.AllowedEmails.Contains(payload.Email) {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
		}
		c.Set(emailContextKey, payload.Email)
		return next(c)
	}
}

// AuthEmail returns the email of the authenticated caller, or "" outside
// routes guarded by requireAuth.
func AuthEmail(c echo.Context) string {
	email, _ := c.Get(emailContextKey).(string)
	return email
}
