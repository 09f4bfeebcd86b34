package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/clipd/internal/extract"
	"github.com/kalambet/clipd/internal/match"
	"github.com/kalambet/clipd/internal/notion"
	"github.com/kalambet/clipd/internal/proxy"
	"github.com/kalambet/clipd/internal/session"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Sessions *session.Manager
	History  CaptureLister
}

// NewMCPServer creates an MCP server exposing capture as tools, so an
// assistant can file the page it is looking at into the database.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"clipd",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("clipd saves web pages as rows of a Notion database. Start with capture_page, adjust the values, then save_capture."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("describe_schema",
			mcp.WithDescription("List the columns of the configured database with their types and options."),
		),
		mcpDescribeSchema(deps),
	)

	s.AddTool(
		mcp.NewTool("match_option",
			mcp.WithDescription("Pick the option that best matches a free-text location."),
			mcp.WithString("text", mcp.Description("Free text, e.g. a location string"), mcp.Required()),
			mcp.WithArray("options", mcp.Description("Candidate option names"), mcp.Required()),
		),
		mcpMatchOption,
	)

	s.AddTool(
		mcp.NewTool("capture_page",
			mcp.WithDescription("Open a capture for a page and return the prefilled form. The page is fetched when html is omitted."),
			mcp.WithString("url", mcp.Description("Page URL"), mcp.Required()),
			mcp.WithString("title", mcp.Description("Page title")),
			mcp.WithString("html", mcp.Description("Page HTML, if already available")),
			mcp.WithString("selection", mcp.Description("Text the user selected on the page")),
			mcp.WithBoolean("autofill", mcp.Description("Ask the AI provider to fill the fields from the page text")),
		),
		mcpCapturePage(deps),
	)

	s.AddTool(
		mcp.NewTool("save_capture",
			mcp.WithDescription("Apply field values to an open capture and save it to the database."),
			mcp.WithString("session_id", mcp.Description("Id returned by capture_page"), mcp.Required()),
			mcp.WithString("values", mcp.Description("JSON object of column name to value")),
		),
		mcpSaveCapture(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"clipd://captures/recent",
			"Recent Captures",
			mcp.WithResourceDescription("Last 10 pages saved to the database"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecent(deps),
	)

	return s
}

func mcpDescribeSchema(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		schema, err := deps.Sessions.Schema(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("loading schema failed: %s", describeErr(err))), nil
		}
		b, err := json.Marshal(schema)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal schema: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpMatchOption(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return mcpError("text is required"), nil
	}
	options := req.GetStringSlice("options", nil)
	if len(options) == 0 {
		return mcpError("options is required"), nil
	}
	if m, ok := match.Match(text, options); ok {
		return mcpText(m), nil
	}
	return mcpText("no matching option"), nil
}

func mcpCapturePage(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := req.RequireString("url")
		if err != nil {
			return mcpError("url is required"), nil
		}
		tab := extract.Tab{
			URL:       url,
			Title:     req.GetString("title", ""),
			HTML:      req.GetString("html", ""),
			Selection: req.GetString("selection", ""),
		}

		s, err := deps.Sessions.Start(ctx, tab)
		if err != nil {
			return mcpError(fmt.Sprintf("capture failed: %s", describeErr(err))), nil
		}

		if req.GetBool("autofill", false) {
			if _, err := s.AutoFill(ctx, ""); err != nil {
				// Return the prefilled form alongside the auto-fill error.
				v := s.View()
				v.Error = describeErr(err)
				return mcpJSON(v)
			}
		}
		return mcpJSON(s.View())
	}
}

func mcpSaveCapture(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("session_id")
		if err != nil {
			return mcpError("session_id is required"), nil
		}
		s, err := deps.Sessions.Get(id)
		if err != nil {
			return mcpError(fmt.Sprintf("unknown capture %q", id)), nil
		}

		if raw := req.GetString("values", ""); raw != "" {
			var values map[string]any
			if err := json.Unmarshal([]byte(raw), &values); err != nil {
				return mcpError(fmt.Sprintf("invalid values JSON: %v", err)), nil
			}
			if err := s.SetValues(values); err != nil {
				return mcpError(err.Error()), nil
			}
		}

		res, err := s.Submit(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("save failed: %s", describeErr(err))), nil
		}
		if err := deps.Sessions.Close(id); err != nil && !errors.Is(err, session.ErrNotFound) {
			return mcpError(err.Error()), nil
		}
		return mcpText(fmt.Sprintf("Row %s %s", res.RowID, res.Action)), nil
	}
}

func mcpResourceRecent(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		captures, err := deps.History.RecentCaptures(10)
		if err != nil {
			return nil, fmt.Errorf("failed to get recent captures: %w", err)
		}

		out := make([]captureResponse, len(captures))
		for i, c := range captures {
			out[i] = toCaptureResponse(c)
		}
		b, err := json.Marshal(out)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal captures: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

// describeErr prefers the user-facing sentence for upstream failures.
func describeErr(err error) string {
	var (
		notionErr *notion.APIError
		aiErr     *proxy.StatusError
	)
	switch {
	case errors.As(err, &notionErr), errors.Is(err, notion.ErrNetwork):
		return notion.Describe(err)
	case errors.As(err, &aiErr), errors.Is(err, proxy.ErrNetwork):
		return proxy.Describe(err)
	}
	return err.Error()
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: text,
			},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: msg,
			},
		},
		IsError: true,
	}
}
