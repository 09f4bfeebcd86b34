package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
)

const (
	// MaxFetchBytes caps the body the daemon reads when it loads a page itself.
	MaxFetchBytes = 5 << 20

	defaultFetchTimeout = 10 * time.Second
	userAgent           = "Mozilla/5.0 (compatible; clipd/1.0)"
)

// Fetcher loads a page by URL when the shell could not supply its HTML.
type Fetcher struct {
	httpClient *http.Client
}

// NewFetcher creates a Fetcher with the default timeout.
func NewFetcher() *Fetcher {
	return &Fetcher{httpClient: &http.Client{Timeout: defaultFetchTimeout}}
}

// NewFetcherWithClient creates a Fetcher with a custom HTTP client (for testing).
func NewFetcherWithClient(c *http.Client) *Fetcher {
	return &Fetcher{httpClient: c}
}

// Fill fetches tab.URL and fills HTML or Text. Tabs that already carry
// content are returned unchanged.
func (f *Fetcher) Fill(ctx context.Context, tab Tab) (Tab, error) {
	if tab.HTML != "" || tab.Text != "" || tab.URL == "" {
		return tab, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, tab.URL, nil)
	if err != nil {
		return tab, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/pdf;q=0.9,*/*;q=0.8")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return tab, fmt.Errorf("fetching %s: %w", tab.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return tab, fmt.Errorf("fetching %s: HTTP %d", tab.URL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxFetchBytes))
	if err != nil {
		return tab, fmt.Errorf("reading %s: %w", tab.URL, err)
	}

	ct := resp.Header.Get("Content-Type")
	if mt, _, err := mime.ParseMediaType(ct); err == nil {
		ct = mt
	}
	tab.ContentType = ct

	if ct == "application/pdf" || bytes.HasPrefix(body, []byte("%PDF-")) {
		text, err := PDFText(body)
		if err != nil {
			return tab, err
		}
		tab.ContentType = "application/pdf"
		tab.Text = text
		return tab, nil
	}
	if strings.HasPrefix(ct, "text/plain") {
		tab.Text = string(body)
		return tab, nil
	}
	tab.HTML = string(body)
	return tab, nil
}

// PDFText returns the plain text of a PDF document.
func PDFText(data []byte) (text string, err error) {
	// The pdf reader panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("reading pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("reading pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", fmt.Errorf("reading pdf text: %w", err)
	}
	return cleanText(buf.String()), nil
}
