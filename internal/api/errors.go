package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/kalambet/clipd/internal/autofill"
	"github.com/kalambet/clipd/internal/config"
	"github.com/kalambet/clipd/internal/form"
	"github.com/kalambet/clipd/internal/notion"
	"github.com/kalambet/clipd/internal/proxy"
	"github.com/kalambet/clipd/internal/session"
)

const maxRequestBodySize = 1 << 20 // 1MB

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

// writeError maps a domain error onto a status code and error type.
func writeError(w http.ResponseWriter, err error) {
	var (
		notionErr *notion.APIError
		aiErr     *proxy.StatusError
	)
	switch {
	case errors.Is(err, config.ErrMissingCredential), errors.Is(err, config.ErrInvalidCredential):
		httpError(w, http.StatusPreconditionFailed, "configuration_error", "%v", err)
	case errors.Is(err, session.ErrNoAI):
		httpError(w, http.StatusPreconditionFailed, "configuration_error", "%v", err)
	case errors.Is(err, session.ErrNotFound), errors.Is(err, session.ErrClosed):
		httpError(w, http.StatusNotFound, "not_found", "%v", err)
	case errors.Is(err, session.ErrBusy):
		httpError(w, http.StatusConflict, "conflict", "%v", err)
	case errors.Is(err, session.ErrInvalidValue),
		errors.Is(err, session.ErrNoContent),
		errors.Is(err, form.ErrUnknownField),
		errors.Is(err, form.ErrHiddenField):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
	case errors.As(err, &notionErr), errors.Is(err, notion.ErrNetwork):
		httpError(w, http.StatusBadGateway, "store_error", "%s", notion.Describe(err))
	case errors.As(err, &aiErr), errors.Is(err, proxy.ErrNetwork):
		httpError(w, http.StatusBadGateway, "ai_error", "%s", proxy.Describe(err))
	case errors.Is(err, autofill.ErrMalformedResponse), errors.Is(err, autofill.ErrEmptyResponse):
		httpError(w, http.StatusBadGateway, "ai_error", "%s", proxy.Describe(err))
	case errors.Is(err, context.DeadlineExceeded):
		httpError(w, http.StatusGatewayTimeout, "timeout", "upstream request timed out")
	default:
		httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
