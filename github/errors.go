package github

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Sentinel errors matched with errors.Is. Every error returned by Client
// satisfies exactly one of them.
var (
	// ErrNotFound means the addressed path does not exist.
	ErrNotFound = errors.New("github: not found")

	// ErrConflict means a write or delete was rejected because the supplied
	// version token (blob SHA) is stale, or because a create targeted a path
	// that already exists.
	ErrConflict = errors.New("github: version conflict")

	// ErrUpstream covers every other failure talking to GitHub: non-2xx
	// statuses, transport errors and undecodable bodies.
	ErrUpstream = errors.New("github: upstream error")
)

// APIError represents a non-2xx response from the GitHub REST API.
type APIError struct {
	// StatusCode is the HTTP response status code.
	StatusCode int

	// Message is the top-level error description from GitHub, or the raw
	// body when it is not the usual JSON envelope.
	Message string

	// DocumentationURL points to the relevant API documentation.
	DocumentationURL string

	// write marks errors from mutating calls, where 422 means the path
	// already exists and no SHA was supplied.
	write bool
}

func (err *APIError) Error() string {
	return fmt.Sprintf("github: HTTP %d: %s", err.StatusCode, err.Message)
}

// Is maps the status code onto the package's sentinel errors.
func (err *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return err.StatusCode == 404
	case ErrConflict:
		return err.conflict()
	case ErrUpstream:
		return err.StatusCode != 404 && !err.conflict()
	}
	return false
}

func (err *APIError) conflict() bool {
	return err.StatusCode == 409 || (err.write && err.StatusCode == 422)
}

// parseAPIError builds an APIError from a status code and response body.
func parseAPIError(statusCode int, body []byte, write bool) *APIError {
	apiError := &APIError{StatusCode: statusCode, write: write}

	var wireError struct {
		Message          string `json:"message"`
		DocumentationURL string `json:"documentation_url"`
	}
	if json.Unmarshal(body, &wireError) == nil && wireError.Message != "" {
		apiError.Message = wireError.Message
		apiError.DocumentationURL = wireError.DocumentationURL
	} else {
		apiError.Message = string(body)
	}
	return apiError
}
