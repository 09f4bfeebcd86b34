package api

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kalambet/clipd/internal/prefs"
	"github.com/kalambet/clipd/internal/session"
	"github.com/kalambet/clipd/internal/storage"
)

// --- helpers ---

func newTestMCPDeps(t *testing.T) (MCPDeps, *fakeStore, *storage.Store) {
	t.Helper()
	db, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store := &fakeStore{schema: jobsSchema()}
	sessions := session.NewManager(sessionDeps(t, store, db, prefs.NewManager(db), nil))
	t.Cleanup(sessions.CloseAll)

	return MCPDeps{Sessions: sessions, History: db}, store, db
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func makeReadResourceRequest(uri string) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

// toolView is the part of a session view the tools' callers read.
type toolView struct {
	ID          string `json:"id"`
	SubmitLabel string `json:"submitLabel"`
	Error       string `json:"error"`
}

const jobHTML = `<html><head><meta name="location" content="San Francisco, CA"></head><body><article>Acme is hiring.</article></body></html>`

// --- tests ---

func TestMCPTool_DescribeSchema(t *testing.T) {
	deps, _, _ := newTestMCPDeps(t)
	result, err := mcpDescribeSchema(deps)(context.Background(), makeCallToolRequest("describe_schema", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}
	text := toolText(t, result)
	if !strings.Contains(text, `"title":"Jobs"`) || !strings.Contains(text, `"name":"Location"`) {
		t.Errorf("schema text = %s", text)
	}
}

func TestMCPTool_MatchOption(t *testing.T) {
	tests := []struct {
		name    string
		args    map[string]interface{}
		want    string
		wantErr bool
	}{
		{
			name: "family",
			args: map[string]interface{}{"text": "SF Bay Area", "options": []string{"Remote", "San Francisco"}},
			want: "San Francisco",
		},
		{
			name: "no match",
			args: map[string]interface{}{"text": "Berlin", "options": []interface{}{"Remote"}},
			want: "no matching option",
		},
		{
			name:    "missing options",
			args:    map[string]interface{}{"text": "Remote"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := mcpMatchOption(context.Background(), makeCallToolRequest("match_option", tt.args))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result.IsError != tt.wantErr {
				t.Fatalf("IsError = %v: %s", result.IsError, toolText(t, result))
			}
			if !tt.wantErr && toolText(t, result) != tt.want {
				t.Errorf("got %q, want %q", toolText(t, result), tt.want)
			}
		})
	}
}

func TestMCPTool_CaptureAndSave(t *testing.T) {
	deps, store, db := newTestMCPDeps(t)

	result, err := mcpCapturePage(deps)(context.Background(), makeCallToolRequest("capture_page", map[string]interface{}{
		"url":   "https://jobs.acme.test/123",
		"title": "Backend Engineer | Acme | LinkedIn",
		"html":  jobHTML,
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("capture failed: %s", toolText(t, result))
	}
	var v toolView
	if err := json.Unmarshal([]byte(toolText(t, result)), &v); err != nil {
		t.Fatalf("decoding view: %v", err)
	}
	if v.ID == "" || v.SubmitLabel != "Save to Notion" {
		t.Fatalf("view = %+v", v)
	}

	result, err = mcpSaveCapture(deps)(context.Background(), makeCallToolRequest("save_capture", map[string]interface{}{
		"session_id": v.ID,
		"values":     `{"Status":"Applied"}`,
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("save failed: %s", toolText(t, result))
	}
	if got := toolText(t, result); got != "Row row-1 created" {
		t.Errorf("save result = %q", got)
	}
	if store.created != 1 {
		t.Errorf("created = %d, want 1", store.created)
	}
	if deps.Sessions.Len() != 0 {
		t.Errorf("session should be closed after save, %d live", deps.Sessions.Len())
	}

	caps, err := db.RecentCaptures(10)
	if err != nil {
		t.Fatalf("RecentCaptures: %v", err)
	}
	if len(caps) != 1 || caps[0].Mode != session.ActionCreated {
		t.Errorf("captures = %+v", caps)
	}
}

func TestMCPTool_CaptureAutofillWithoutAI(t *testing.T) {
	deps, _, _ := newTestMCPDeps(t)
	result, err := mcpCapturePage(deps)(context.Background(), makeCallToolRequest("capture_page", map[string]interface{}{
		"url":      "https://jobs.acme.test/123",
		"html":     jobHTML,
		"autofill": true,
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("capture should succeed without AI: %s", toolText(t, result))
	}
	var v toolView
	if err := json.Unmarshal([]byte(toolText(t, result)), &v); err != nil {
		t.Fatalf("decoding view: %v", err)
	}
	if v.Error != session.ErrNoAI.Error() {
		t.Errorf("view error = %q", v.Error)
	}
}

func TestMCPTool_SaveErrors(t *testing.T) {
	deps, _, _ := newTestMCPDeps(t)
	handler := mcpSaveCapture(deps)

	result, _ := handler(context.Background(), makeCallToolRequest("save_capture", map[string]interface{}{}))
	if !result.IsError {
		t.Error("missing session_id should fail")
	}

	result, _ = handler(context.Background(), makeCallToolRequest("save_capture", map[string]interface{}{"session_id": "nope"}))
	if !result.IsError || !strings.Contains(toolText(t, result), "unknown capture") {
		t.Errorf("unknown session result = %s", toolText(t, result))
	}
}

func TestMCPResource_Recent(t *testing.T) {
	deps, _, db := newTestMCPDeps(t)
	if err := db.SaveCapture(storage.Capture{ID: "c1", URL: "https://a.test", RowID: "r1", Mode: "created", Title: "A"}); err != nil {
		t.Fatalf("SaveCapture: %v", err)
	}

	contents, err := mcpResourceRecent(deps)(context.Background(), makeReadResourceRequest("clipd://captures/recent"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("contents = %d", len(contents))
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}
	var caps []captureResponse
	if err := json.Unmarshal([]byte(tc.Text), &caps); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if len(caps) != 1 || caps[0].RowID != "r1" {
		t.Errorf("captures = %+v", caps)
	}
}

func TestNewMCPServer(t *testing.T) {
	deps, _, _ := newTestMCPDeps(t)
	if NewMCPServer(deps) == nil {
		t.Fatal("NewMCPServer returned nil")
	}
}
