package tool

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// maxFetchBytes caps how much of a response body is returned to the model.
const maxFetchBytes = 256 * 1024

// WebFetchTool retrieves the contents of a URL.
type WebFetchTool struct {
	Client *http.Client
}

// NewWebFetchTool builds the tool with a sensible default client.
func NewWebFetchTool() *WebFetchTool {
	return &WebFetchTool{
		Client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (t *WebFetchTool) Name() string { return "web_fetch" }

func (t *WebFetchTool) Description() string {
	return "Fetch the contents of a URL over HTTP GET."
}

func (t *WebFetchTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "URL to fetch (http or https)",
			},
		},
		"required": []string{"url"},
	}
}

func (t *WebFetchTool) Execute(ctx context.Context, args map[string]any) Result {
	url, ok := stringArg(args, "url")
	if !ok || url == "" {
		return Fail("web_fetch: url is required")
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return Fail("web_fetch: url must be http or https")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Fail(fmt.Sprintf("web_fetch: %v", err))
	}

	resp, err := t.Client.Do(req)
	if err != nil {
		return Fail(fmt.Sprintf("web_fetch: %v", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return Fail(fmt.Sprintf("web_fetch: read body: %v", err))
	}
	if resp.StatusCode >= 400 {
		return Fail(fmt.Sprintf("web_fetch: status %d", resp.StatusCode))
	}

	res := Ok(string(body))
	res.Metadata = map[string]any{
		"status":       resp.StatusCode,
		"content_type": resp.Header.Get("Content-Type"),
		"bytes":        len(body),
	}
	return res
}
