package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// skipTextTags are elements whose text content is never part of the
// extracted article body.
var skipTextTags = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
}

// ExtractTextFromHTML strips tags and collapses the remaining text nodes
// into a newline-joined document, skipping script/style/noscript content.
func ExtractTextFromHTML(r io.Reader) (string, error) {
	tokenizer := html.NewTokenizer(r)
	var pieces []string
	var skipDepth int

	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			if err := tokenizer.Err(); err != io.EOF {
				return "", fmt.Errorf("tokenize html: %w", err)
			}
			return strings.Join(pieces, "\n"), nil

		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			if skipTextTags[string(name)] {
				skipDepth++
			}

		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			if skipTextTags[string(name)] && skipDepth > 0 {
				skipDepth--
			}

		case html.TextToken:
			if skipDepth > 0 {
				continue
			}
			text := strings.TrimSpace(string(tokenizer.Text()))
			if text != "" {
				pieces = append(pieces, text)
			}
		}
	}
}

// FetchURLClient fetches and extracts the readable text content of a URL,
// for use as the fetchText callback passed to Dispatcher.IngestURL.
type FetchURLClient struct {
	HTTPClient *http.Client
}

// NewFetchURLClient returns a FetchURLClient with a 30s timeout.
func NewFetchURLClient() *FetchURLClient {
	return &FetchURLClient{HTTPClient: &http.Client{Timeout: 30 * time.Second}}
}

// Fetch retrieves targetURL and extracts its text content.
func (c *FetchURLClient) Fetch(ctx context.Context, targetURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", targetURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("fetch %s: status %d", targetURL, resp.StatusCode)
	}

	return ExtractTextFromHTML(resp.Body)
}

// DerivePathFromURL returns the URL's path component with leading and
// trailing slashes trimmed, or "index" if empty.
func DerivePathFromURL(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	path := strings.Trim(parsed.Path, "/")
	if path == "" {
		return "index", nil
	}
	return path, nil
}
