package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/kalambet/clipd/internal/config"
	"github.com/kalambet/clipd/internal/notion"
	"github.com/kalambet/clipd/internal/prefs"
	"github.com/kalambet/clipd/internal/property"
	"github.com/kalambet/clipd/internal/schemacache"
	"github.com/kalambet/clipd/internal/session"
	"github.com/kalambet/clipd/internal/storage"
)

const testToken = "test-token-12345"

// --- mocks ---

type fakeStore struct {
	mu      sync.Mutex
	schema  property.Schema
	row     *notion.Page
	saveErr error
	created int
	updated int
}

func (f *fakeStore) Schema(ctx context.Context) (property.Schema, error) {
	return f.schema, nil
}

func (f *fakeStore) FindByURL(ctx context.Context, column, url string) (*notion.Page, error) {
	return f.row, nil
}

func (f *fakeStore) Create(ctx context.Context, props map[string]notion.PropertyValue) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return "", f.saveErr
	}
	f.created++
	return fmt.Sprintf("row-%d", f.created), nil
}

func (f *fakeStore) Update(ctx context.Context, rowID string, props map[string]notion.PropertyValue) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return "", f.saveErr
	}
	f.updated++
	return rowID, nil
}

func jobsSchema() property.Schema {
	return property.Schema{
		Title: "Jobs",
		Columns: []property.Column{
			{Name: "Location", Type: property.TypeSelect, Options: []property.Option{{Name: "Remote"}, {Name: "San Francisco"}}},
			{Name: "Name", Type: property.TypeTitle},
			{Name: "Status", Type: property.TypeSelect, Options: []property.Option{{Name: "To Review"}, {Name: "Applied"}}},
			{Name: "URL", Type: property.TypeURL},
		},
	}
}

const jobTabJSON = `{"url":"https://jobs.acme.test/123","title":"Backend Engineer | Acme | LinkedIn",` +
	`"html":"<html><head><meta name=\"location\" content=\"San Francisco, CA\"></head><body><article>Acme is hiring.</article></body></html>"}`

type testEnv struct {
	handler http.Handler
	store   *fakeStore
	db      *storage.Store
}

func sessionDeps(t *testing.T, store *fakeStore, db *storage.Store, pm *prefs.Manager, credsErr error) session.Deps {
	t.Helper()
	return session.Deps{
		Credentials: func(ctx context.Context) (session.Credentials, error) {
			if credsErr != nil {
				return session.Credentials{}, credsErr
			}
			return session.Credentials{NotionToken: "secret_x", DatabaseID: "db1"}, nil
		},
		NewStore: func(session.Credentials) session.Store { return store },
		Cache:    schemacache.New(db, schemacache.DefaultTTL),
		Prefs:    pm,
		History:  db,
	}
}

func setupAppHandler(t *testing.T, credsErr error) *testEnv {
	t.Helper()
	db, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store := &fakeStore{schema: jobsSchema()}
	pm := prefs.NewManager(db)
	sessions := session.NewManager(sessionDeps(t, store, db, pm, credsErr))
	t.Cleanup(sessions.CloseAll)

	handler := NewAppHandler(AppDeps{
		Sessions: sessions,
		Prefs:    pm,
		History:  db,
		Token:    testToken,
	})
	return &testEnv{handler: handler, store: store, db: db}
}

func authReq(method, url, body, token string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, url, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func (e *testEnv) do(t *testing.T, method, url, body string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, authReq(method, url, body, testToken))
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decoding %q: %v", rr.Body.String(), err)
	}
	return v
}

type errorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

type viewBody struct {
	ID            string `json:"id"`
	Phase         string `json:"phase"`
	Mode          string `json:"mode"`
	SubmitLabel   string `json:"submitLabel"`
	ExistingRowID string `json:"existingRowId"`
	AIAvailable   bool   `json:"aiAvailable"`
	Fields        []struct {
		Name  string `json:"name"`
		Value any    `json:"value"`
	} `json:"fields"`
}

func (v viewBody) value(name string) any {
	for _, f := range v.Fields {
		if f.Name == name {
			return f.Value
		}
	}
	return nil
}

// --- tests ---

func TestHealth_NoAuth(t *testing.T) {
	env := setupAppHandler(t, nil)
	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
}

func TestAuth_Required(t *testing.T) {
	env := setupAppHandler(t, nil)
	for _, tok := range []string{"", "wrong"} {
		rr := httptest.NewRecorder()
		env.handler.ServeHTTP(rr, authReq(http.MethodGet, "/schema", "", tok))
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("token %q: status = %d, want 401", tok, rr.Code)
		}
	}
}

func TestBearerAuth(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })

	tests := []struct {
		name       string
		configured string
		header     string
		want       int
	}{
		{"match", "tok", "Bearer tok", http.StatusNoContent},
		{"trailing space", "tok", "Bearer tok ", http.StatusNoContent},
		{"wrong scheme", "tok", "Basic tok", http.StatusUnauthorized},
		{"empty configured token", "", "Bearer ", http.StatusUnauthorized},
		{"no header", "tok", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			BearerAuth(tt.configured)(ok).ServeHTTP(rr, req)
			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d", rr.Code, tt.want)
			}
			if rr.Code == http.StatusUnauthorized && rr.Header().Get("WWW-Authenticate") == "" {
				t.Error("401 without WWW-Authenticate")
			}
		})
	}
}

func TestSchema(t *testing.T) {
	env := setupAppHandler(t, nil)
	rr := env.do(t, http.MethodGet, "/schema", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	got := decode[property.Schema](t, rr)
	if !got.Equal(jobsSchema()) {
		t.Errorf("schema mismatch (-want +got):\n%s", cmp.Diff(jobsSchema(), got))
	}
}

func TestSchema_ConfigurationError(t *testing.T) {
	env := setupAppHandler(t, fmt.Errorf("%w: notion token is not set", config.ErrMissingCredential))
	rr := env.do(t, http.MethodGet, "/schema", "")
	if rr.Code != http.StatusPreconditionFailed {
		t.Fatalf("status = %d, want 412", rr.Code)
	}
	if got := decode[errorBody](t, rr).Error.Type; got != "configuration_error" {
		t.Errorf("error type = %q", got)
	}
}

func TestSessionLifecycle(t *testing.T) {
	env := setupAppHandler(t, nil)

	rr := env.do(t, http.MethodPost, "/sessions", jobTabJSON)
	if rr.Code != http.StatusCreated {
		t.Fatalf("start status = %d; body = %s", rr.Code, rr.Body.String())
	}
	v := decode[viewBody](t, rr)
	if v.Phase != "rendered" || v.Mode != "new" || v.SubmitLabel != "Save to Notion" {
		t.Errorf("start view = %+v", v)
	}
	if v.AIAvailable {
		t.Error("AI should be unavailable without a filler")
	}
	if got := v.value("Location"); got != "San Francisco" {
		t.Errorf("Location = %v", got)
	}
	if got := v.value("Name"); got != "Backend Engineer" {
		t.Errorf("Name = %v", got)
	}

	base := "/sessions/" + v.ID
	rr = env.do(t, http.MethodPatch, base+"/fields", `{"Status":"Applied"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("patch status = %d; body = %s", rr.Code, rr.Body.String())
	}
	v = decode[viewBody](t, rr)
	if v.Phase != "editing" || v.value("Status") != "Applied" {
		t.Errorf("after patch: phase=%s status=%v", v.Phase, v.value("Status"))
	}

	rr = env.do(t, http.MethodGet, base+"/payload", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("payload status = %d", rr.Code)
	}
	props := decode[map[string]json.RawMessage](t, rr)
	if _, ok := props["Status"]; !ok {
		t.Errorf("payload missing Status: %s", rr.Body.String())
	}

	rr = env.do(t, http.MethodPost, base+"/submit", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("submit status = %d; body = %s", rr.Code, rr.Body.String())
	}
	sub := decode[struct {
		RowID  string   `json:"rowId"`
		Action string   `json:"action"`
		View   viewBody `json:"view"`
	}](t, rr)
	if sub.RowID != "row-1" || sub.Action != "created" {
		t.Errorf("submit = %s/%s", sub.RowID, sub.Action)
	}
	if sub.View.Mode != "existing" || sub.View.SubmitLabel != "Update entry" || sub.View.ExistingRowID != "row-1" {
		t.Errorf("submit view = %+v", sub.View)
	}

	// A second save updates the row just created.
	rr = env.do(t, http.MethodPost, base+"/submit", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("second submit status = %d", rr.Code)
	}
	if env.store.created != 1 || env.store.updated != 1 {
		t.Errorf("created=%d updated=%d, want 1/1", env.store.created, env.store.updated)
	}

	rr = env.do(t, http.MethodGet, "/captures?limit=5", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("captures status = %d", rr.Code)
	}
	caps := decode[[]captureResponse](t, rr)
	if len(caps) != 2 {
		t.Fatalf("captures = %d, want 2", len(caps))
	}
	if caps[0].URL != "https://jobs.acme.test/123" || caps[0].Title != "Backend Engineer" {
		t.Errorf("capture = %+v", caps[0])
	}

	rr = env.do(t, http.MethodDelete, base, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rr.Code)
	}
	rr = env.do(t, http.MethodGet, base, "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", rr.Code)
	}
}

func TestStartSession_Validation(t *testing.T) {
	env := setupAppHandler(t, nil)
	for _, body := range []string{`not json`, `{"title":"no url"}`} {
		rr := env.do(t, http.MethodPost, "/sessions", body)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, rr.Code)
		}
	}
}

func TestSetFields_Errors(t *testing.T) {
	env := setupAppHandler(t, nil)
	v := decode[viewBody](t, env.do(t, http.MethodPost, "/sessions", jobTabJSON))
	base := "/sessions/" + v.ID

	tests := []struct {
		name string
		body string
	}{
		{"unknown field", `{"Salary":"100"}`},
		{"not an object", `["Status"]`},
		{"empty", `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, http.MethodPatch, base+"/fields", tt.body)
			if rr.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400; body = %s", rr.Code, rr.Body.String())
			}
		})
	}
}

func TestAutoFill_NotConfigured(t *testing.T) {
	env := setupAppHandler(t, nil)
	v := decode[viewBody](t, env.do(t, http.MethodPost, "/sessions", jobTabJSON))

	rr := env.do(t, http.MethodPost, "/sessions/"+v.ID+"/autofill", "")
	if rr.Code != http.StatusPreconditionFailed {
		t.Errorf("status = %d, want 412", rr.Code)
	}
}

func TestSubmit_StoreError(t *testing.T) {
	env := setupAppHandler(t, nil)
	env.store.saveErr = &notion.APIError{Status: http.StatusUnauthorized, Code: "unauthorized"}
	v := decode[viewBody](t, env.do(t, http.MethodPost, "/sessions", jobTabJSON))

	rr := env.do(t, http.MethodPost, "/sessions/"+v.ID+"/submit", "")
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rr.Code)
	}
	e := decode[errorBody](t, rr)
	if e.Error.Type != "store_error" || !strings.Contains(e.Error.Message, "integration token") {
		t.Errorf("error = %+v", e.Error)
	}

	// The session survives and reports the failure.
	v = decode[viewBody](t, env.do(t, http.MethodGet, "/sessions/"+v.ID, ""))
	if v.Phase != "error" {
		t.Errorf("phase = %s, want error", v.Phase)
	}
}

func TestUnknownSession(t *testing.T) {
	env := setupAppHandler(t, nil)
	for _, path := range []string{"/sessions/nope", "/sessions/nope/submit"} {
		method := http.MethodGet
		if strings.HasSuffix(path, "submit") {
			method = http.MethodPost
		}
		rr := env.do(t, method, path, "")
		if rr.Code != http.StatusNotFound {
			t.Errorf("%s %s: status = %d, want 404", method, path, rr.Code)
		}
	}
}

func TestRefresh_Unchanged(t *testing.T) {
	env := setupAppHandler(t, nil)
	v := decode[viewBody](t, env.do(t, http.MethodPost, "/sessions", jobTabJSON))

	rr := env.do(t, http.MethodPost, "/sessions/"+v.ID+"/refresh", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	if decode[refreshResponse](t, rr).Changed {
		t.Error("refresh of an identical schema should report no change")
	}
}

func TestPreferences(t *testing.T) {
	env := setupAppHandler(t, nil)

	rr := env.do(t, http.MethodGet, "/preferences", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("get status = %d", rr.Code)
	}
	if got := strings.TrimSpace(rr.Body.String()); got != `{"hidden":[],"order":[]}` {
		t.Errorf("empty prefs = %s", got)
	}

	rr = env.do(t, http.MethodPut, "/preferences", `{"hidden":["Status"],"order":["URL","Name"]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("put status = %d; body = %s", rr.Code, rr.Body.String())
	}

	// New sessions honour the saved layout.
	v := decode[viewBody](t, env.do(t, http.MethodPost, "/sessions", jobTabJSON))
	var names []string
	for _, f := range v.Fields {
		names = append(names, f.Name)
	}
	if diff := cmp.Diff([]string{"URL", "Name", "Location"}, names); diff != "" {
		t.Errorf("field order (-want +got):\n%s", diff)
	}
}

func TestMatch(t *testing.T) {
	env := setupAppHandler(t, nil)
	tests := []struct {
		body string
		want string
	}{
		{`{"text":"SF Bay Area","options":["Remote","San Francisco"]}`, `{"match":"San Francisco"}`},
		{`{"text":"Berlin","options":["Remote","San Francisco"]}`, `{"match":null}`},
	}
	for _, tt := range tests {
		rr := env.do(t, http.MethodPost, "/match", tt.body)
		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d", rr.Code)
		}
		if got := strings.TrimSpace(rr.Body.String()); got != tt.want {
			t.Errorf("match %s = %s, want %s", tt.body, got, tt.want)
		}
	}
}

func TestModels_NotConfigured(t *testing.T) {
	env := setupAppHandler(t, nil)
	rr := env.do(t, http.MethodGet, "/models", "")
	if rr.Code != http.StatusPreconditionFailed {
		t.Errorf("status = %d, want 412", rr.Code)
	}
}

func TestParseIntParam(t *testing.T) {
	tests := []struct {
		query string
		want  int
	}{
		{"", 20},
		{"limit=5", 5},
		{"limit=0", 20},
		{"limit=-3", 20},
		{"limit=abc", 20},
		{"limit=500", 100},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/captures?"+tt.query, nil)
		if got := parseIntParam(r, "limit", 20, 100); got != tt.want {
			t.Errorf("parseIntParam(%q) = %d, want %d", tt.query, got, tt.want)
		}
	}
}
