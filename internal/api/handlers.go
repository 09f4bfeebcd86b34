package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/clipd/internal/extract"
	"github.com/kalambet/clipd/internal/form"
	"github.com/kalambet/clipd/internal/match"
	"github.com/kalambet/clipd/internal/proxy"
	"github.com/kalambet/clipd/internal/session"
	"github.com/kalambet/clipd/internal/storage"
)

// PrefsStore reads and replaces the user's layout preferences.
type PrefsStore interface {
	Get() (form.Preferences, error)
	Set(p form.Preferences) error
}

// CaptureLister lists recorded saves, newest first.
type CaptureLister interface {
	RecentCaptures(limit int) ([]storage.Capture, error)
}

// ModelLister lists the models the AI provider offers.
type ModelLister interface {
	ListModels(ctx context.Context) ([]proxy.Model, error)
}

type AppDeps struct {
	Sessions *session.Manager
	Prefs    PrefsStore
	History  CaptureLister
	Models   ModelLister // optional; /models answers 412 when nil
	Token    string
}

// NewAppHandler returns the shell-facing API. Everything except /health
// requires the bearer token.
func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()
	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Get("/schema", handleSchema(deps))
		r.Get("/models", handleModels(deps))

		r.Post("/sessions", handleStartSession(deps))
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", handleGetSession(deps))
			r.Delete("/", handleDeleteSession(deps))
			r.Get("/payload", handlePayload(deps))
			r.Patch("/fields", handleSetFields(deps))
			r.Post("/autofill", handleAutoFill(deps))
			r.Post("/submit", handleSubmit(deps))
			r.Post("/refresh", handleRefresh(deps))
		})

		r.Get("/preferences", handleGetPreferences(deps))
		r.Put("/preferences", handlePutPreferences(deps))
		r.Post("/match", handleMatch)
		r.Get("/captures", handleListCaptures(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleSchema(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		schema, err := deps.Sessions.Schema(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, schema)
	}
}

func handleModels(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Models == nil {
			httpError(w, http.StatusPreconditionFailed, "configuration_error", "ai api key is not configured")
			return
		}
		models, err := deps.Models.ListModels(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, proxy.ModelList{Data: models})
	}
}

func handleStartSession(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var tab extract.Tab
		if err := json.NewDecoder(r.Body).Decode(&tab); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if tab.URL == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "url is required")
			return
		}

		s, err := deps.Sessions.Start(r.Context(), tab)
		if err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(s.View())
	}
}

// withSession resolves the {id} URL parameter to a live session.
func withSession(deps AppDeps, fn func(w http.ResponseWriter, r *http.Request, s *session.Session)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := deps.Sessions.Get(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		fn(w, r, s)
	}
}

func handleGetSession(deps AppDeps) http.HandlerFunc {
	return withSession(deps, func(w http.ResponseWriter, r *http.Request, s *session.Session) {
		writeJSON(w, s.View())
	})
}

// handlePayload returns the properties a submit would send right now.
func handlePayload(deps AppDeps) http.HandlerFunc {
	return withSession(deps, func(w http.ResponseWriter, r *http.Request, s *session.Session) {
		writeJSON(w, s.Payload())
	})
}

func handleDeleteSession(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Sessions.Close(chi.URLParam(r, "id")); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, map[string]string{"status": "closed"})
	}
}

func handleSetFields(deps AppDeps) http.HandlerFunc {
	return withSession(deps, func(w http.ResponseWriter, r *http.Request, s *session.Session) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var values map[string]any
		if err := json.NewDecoder(r.Body).Decode(&values); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if len(values) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "at least one field is required")
			return
		}
		if err := s.SetValues(values); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, s.View())
	})
}

type autoFillRequest struct {
	Text string `json:"text"`
}

type autoFillResponse struct {
	Changed int          `json:"changed"`
	View    session.View `json:"view"`
}

func handleAutoFill(deps AppDeps) http.HandlerFunc {
	return withSession(deps, func(w http.ResponseWriter, r *http.Request, s *session.Session) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req autoFillRequest
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
				return
			}
		}

		changed, err := s.AutoFill(r.Context(), req.Text)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, autoFillResponse{Changed: changed, View: s.View()})
	})
}

type submitResponse struct {
	RowID  string       `json:"rowId"`
	Action string       `json:"action"`
	View   session.View `json:"view"`
}

func handleSubmit(deps AppDeps) http.HandlerFunc {
	return withSession(deps, func(w http.ResponseWriter, r *http.Request, s *session.Session) {
		res, err := s.Submit(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, submitResponse{RowID: res.RowID, Action: res.Action, View: s.View()})
	})
}

type refreshResponse struct {
	Changed bool         `json:"changed"`
	View    session.View `json:"view"`
}

func handleRefresh(deps AppDeps) http.HandlerFunc {
	return withSession(deps, func(w http.ResponseWriter, r *http.Request, s *session.Session) {
		changed, err := s.Refresh(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, refreshResponse{Changed: changed, View: s.View()})
	})
}

func handleGetPreferences(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := deps.Prefs.Get()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load preferences: %v", err)
			return
		}
		if p.Hidden == nil {
			p.Hidden = []string{}
		}
		if p.Order == nil {
			p.Order = []string{}
		}
		writeJSON(w, p)
	}
}

func handlePutPreferences(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var p form.Preferences
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if err := deps.Prefs.Set(p); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save preferences: %v", err)
			return
		}
		writeJSON(w, map[string]string{"status": "updated"})
	}
}

type matchRequest struct {
	Text    string   `json:"text"`
	Options []string `json:"options"`
}

type matchResponse struct {
	Match *string `json:"match"`
}

func handleMatch(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()

	var req matchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return
	}

	var resp matchResponse
	if m, ok := match.Match(req.Text, req.Options); ok {
		resp.Match = &m
	}
	writeJSON(w, resp)
}

type captureResponse struct {
	ID         string `json:"id"`
	URL        string `json:"url"`
	RowID      string `json:"rowId"`
	Mode       string `json:"mode"`
	Title      string `json:"title"`
	DatabaseID string `json:"databaseId"`
	CreatedAt  string `json:"createdAt"`
}

func handleListCaptures(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)

		captures, err := deps.History.RecentCaptures(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list captures: %v", err)
			return
		}

		out := make([]captureResponse, len(captures))
		for i, c := range captures {
			out[i] = toCaptureResponse(c)
		}
		writeJSON(w, out)
	}
}

func toCaptureResponse(c storage.Capture) captureResponse {
	return captureResponse{
		ID:         c.ID,
		URL:        c.URL,
		RowID:      c.RowID,
		Mode:       c.Mode,
		Title:      c.Title,
		DatabaseID: c.DatabaseID,
		CreatedAt:  c.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v <= 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
