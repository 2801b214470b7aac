// Package http implements the web_fetch tool from spec §4.5: an HTTP GET
// with a 30s timeout (§5), returning readable text truncated at ~50k
// characters.
package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"

	conduit "github.com/nevindra/conduit"
)

// fetchTimeout is the fixed web_fetch timeout per §5 ("HTTP fetch: 30s").
const fetchTimeout = 30 * time.Second

// maxResultChars truncates output per §4.5 ("~50k characters").
const maxResultChars = 50_000

// maxBodyBytes bounds how much of the response body is read before
// extraction, independent of the post-extraction truncation above.
const maxBodyBytes = 5 << 20

// Tool fetches URLs and extracts readable content.
type Tool struct {
	client *http.Client
}

// New creates a Tool with the fixed fetch timeout.
func New() *Tool {
	return &Tool{client: &http.Client{Timeout: fetchTimeout}}
}

func (t *Tool) Definitions() []conduit.ToolDefinition {
	return []conduit.ToolDefinition{{
		Name:        "web_fetch",
		Description: "Fetch a URL and extract its readable text content. Use for reading web pages, articles, documentation.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"url":{"type":"string","description":"URL to fetch"}},"required":["url"]}`),
	}}
}

func (t *Tool) Execute(ctx context.Context, _ string, args json.RawMessage) (conduit.ToolResult, error) {
	var params struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return conduit.ToolResult{Text: "Error: invalid args: " + err.Error(), IsError: true}, nil
	}

	content, err := t.Fetch(ctx, params.URL)
	if err != nil {
		return conduit.ToolResult{Text: "Error: " + err.Error(), IsError: true}, nil
	}
	if len(content) > maxResultChars {
		content = content[:maxResultChars] + "\n... (truncated)"
	}
	return conduit.ToolResult{Text: content}, nil
}

// Fetch downloads a URL and extracts readable text.
func (t *Tool) Fetch(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; ConduitBot/1.0)")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("HTTP %d from %s", resp.StatusCode, rawURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("read error: %w", err)
	}

	html := string(body)

	parsedURL, _ := url.Parse(rawURL)
	article, err := readability.FromReader(strings.NewReader(html), parsedURL)
	if err == nil && article.TextContent != "" {
		return strings.TrimSpace(article.TextContent), nil
	}

	return stripHTML(html), nil
}

var (
	htmlTagPattern    = regexp.MustCompile(`(?is)<script.*?</script>|<style.*?</style>|<[^>]+>`)
	htmlSpacePattern  = regexp.MustCompile(`[ \t]+`)
	htmlNewlinePattern = regexp.MustCompile(`\n{3,}`)
)

// stripHTML is the last-resort fallback used when readability extraction
// fails to find an article body: strip tags and collapse whitespace.
func stripHTML(html string) string {
	text := htmlTagPattern.ReplaceAllString(html, "\n")
	text = htmlSpacePattern.ReplaceAllString(text, " ")
	text = htmlNewlinePattern.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
