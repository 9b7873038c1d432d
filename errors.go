package postgate

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/eringen/postgate/github"
)

// errorBody is the envelope of every non-2xx JSON response.
type errorBody struct {
	Error string `json:"error"`
}

// httpErrorHandler is the one place errors become responses. Handlers
// return explicit *echo.HTTPError values for request problems and let
// GitHub failures propagate unchanged.
func (a *App) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code, msg := classify(err)
	if code >= 500 {
		a.Log.Error().
			Err(err).
			Int("status", code).
			Str("method", c.Request().Method).
			Str("uri", c.Request().RequestURI).
			Msg("request failed")
	}

	var werr error
	if c.Request().Method == http.MethodHead {
		werr = c.NoContent(code)
	} else {
		werr = c.JSON(code, errorBody{Error: msg})
	}
	if werr != nil {
		a.Log.Warn().Err(werr).Msg("writing error response")
	}
}

// classify maps err to a status code and the message shown to the client.
func classify(err error) (int, string) {
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		return he.Code, fmt.Sprint(he.Message)
	case errors.Is(err, github.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, github.ErrConflict):
		return http.StatusConflict, err.Error()
	case errors.Is(err, github.ErrUpstream):
		return http.StatusBadGateway, err.Error()
	default:
		return http.StatusInternalServerError, err.Error()
	}
}
