package notion

import (
	"errors"
	"fmt"
	"net/http"
)

// Failure classes of a Notion call. APIError unwraps to one of these.
var (
	ErrUnauthorized = errors.New("notion: unauthorized")
	ErrForbidden    = errors.New("notion: forbidden")
	ErrNotFound     = errors.New("notion: not found")
	ErrRateLimited  = errors.New("notion: rate limited")
	ErrValidation   = errors.New("notion: invalid request")
	ErrNetwork      = errors.New("notion: network failure")
)

// APIError is a non-2xx response from the Notion API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("notion: HTTP %d", e.Status)
	}
	return fmt.Sprintf("notion: HTTP %d %s: %s", e.Status, e.Code, e.Message)
}

// Unwrap maps the status code onto the failure class.
func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusTooManyRequests:
		return ErrRateLimited
	case http.StatusBadRequest, http.StatusConflict:
		return ErrValidation
	}
	return nil
}

// Describe turns an error from this package into a sentence suitable for
// showing to the user.
func Describe(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthorized):
		return "Notion rejected the integration token. Check the token in settings."
	case errors.Is(err, ErrForbidden):
		return "The integration does not have access to this database. Share the database with the integration."
	case errors.Is(err, ErrNotFound):
		return "Database or page not found. Check the database ID and that it is shared with the integration."
	case errors.Is(err, ErrRateLimited):
		return "Notion is rate limiting requests. Wait a moment and try again."
	case errors.Is(err, ErrNetwork):
		return "Could not reach Notion. Check your network connection."
	case errors.Is(err, ErrValidation):
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Message != "" {
			return "Notion rejected the request: " + apiErr.Message
		}
		return "Notion rejected the request."
	}
	return err.Error()
}
