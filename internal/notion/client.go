// Package notion is a small Notion API client covering what a capture
// session needs: read a database schema, find a row by URL, create and
// update rows.
package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "https://api.notion.com/v1"
	// APIVersion is the pinned Notion API version.
	APIVersion = "2022-06-28"
	// MinInterval keeps the client under Notion's 3 requests per second.
	MinInterval = 334 * time.Millisecond

	defaultTimeout  = 30 * time.Second
	maxResponseSize = 10 << 20
)

// Client is a rate-limited Notion API client.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a client authenticated with the integration token.
func NewClient(token string) *Client {
	return &Client{
		token:   token,
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Every(MinInterval), 1),
	}
}

// NewClientWithBaseURL creates a client pointing at a custom base URL (for testing).
func NewClientWithBaseURL(token, baseURL string) *Client {
	c := NewClient(token)
	c.baseURL = strings.TrimRight(baseURL, "/")
	c.limiter = rate.NewLimiter(rate.Inf, 1)
	return c
}

func (c *Client) do(ctx context.Context, method, path string, body any) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Notion-Version", APIVersion)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrNetwork, err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		var body Error
		if err := json.Unmarshal(respBody, &body); err == nil {
			apiErr.Code = body.Code
			apiErr.Message = body.Message
		}
		return nil, apiErr
	}
	return respBody, nil
}

// GetDatabase retrieves a database and its column schema.
func (c *Client) GetDatabase(ctx context.Context, id string) (*Database, error) {
	data, err := c.do(ctx, http.MethodGet, "/databases/"+id, nil)
	if err != nil {
		return nil, err
	}
	var db Database
	if err := json.Unmarshal(data, &db); err != nil {
		return nil, fmt.Errorf("parsing database response: %w", err)
	}
	return &db, nil
}

type urlFilter struct {
	Property string         `json:"property"`
	URL      map[string]any `json:"url"`
}

type queryRequest struct {
	Filter   any `json:"filter,omitempty"`
	PageSize int `json:"page_size,omitempty"`
}

// QueryByURL returns the rows whose url-typed column equals pageURL
// exactly. At most limit rows are requested.
func (c *Client) QueryByURL(ctx context.Context, databaseID, property, pageURL string, limit int) ([]Page, error) {
	if limit <= 0 {
		limit = 1
	}
	req := queryRequest{
		Filter:   urlFilter{Property: property, URL: map[string]any{"equals": pageURL}},
		PageSize: limit,
	}
	data, err := c.do(ctx, http.MethodPost, "/databases/"+databaseID+"/query", req)
	if err != nil {
		return nil, err
	}
	var resp QueryResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("parsing query response: %w", err)
	}
	return resp.Results, nil
}

type parent struct {
	DatabaseID string `json:"database_id"`
}

type createPageRequest struct {
	Parent     parent                   `json:"parent"`
	Properties map[string]PropertyValue `json:"properties"`
}

type updatePageRequest struct {
	Properties map[string]PropertyValue `json:"properties"`
}

// CreatePage adds a row to the database.
func (c *Client) CreatePage(ctx context.Context, databaseID string, props map[string]PropertyValue) (*Page, error) {
	req := createPageRequest{Parent: parent{DatabaseID: databaseID}, Properties: props}
	data, err := c.do(ctx, http.MethodPost, "/pages", req)
	if err != nil {
		return nil, err
	}
	var page Page
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, fmt.Errorf("parsing page response: %w", err)
	}
	return &page, nil
}

// UpdatePage overwrites the given columns of an existing row. Columns not
// present in props are left untouched.
func (c *Client) UpdatePage(ctx context.Context, pageID string, props map[string]PropertyValue) (*Page, error) {
	data, err := c.do(ctx, http.MethodPatch, "/pages/"+pageID, updatePageRequest{Properties: props})
	if err != nil {
		return nil, err
	}
	var page Page
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, fmt.Errorf("parsing page response: %w", err)
	}
	return &page, nil
}
