// Package videometa reads display metadata from a video's web page.
package videometa

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"video-docs-go/internal/retry"
)

const maxPageBytes = 2 << 20

type Fetcher struct {
	httpClient *http.Client
	policy     retry.Policy
}

func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Fetcher{
		httpClient: &http.Client{Timeout: timeout},
		policy:     retry.Policy{MaxAttempts: 2, InitialDelay: 500 * time.Millisecond},
	}
}

// Title returns the page's og:title, falling back to <title>.
func (f *Fetcher) Title(ctx context.Context, pageURL string) (string, error) {
	html, err := retry.WithPolicy(ctx, f.policy, func(ctx context.Context) (string, error) {
		return f.fetch(ctx, pageURL)
	}, nil)
	if err != nil {
		return "", err
	}
	return ParseTitle(html)
}

func (f *Fetcher) fetch(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", retry.Permanent(err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; video-docs/1.0)")
	req.Header.Set("Accept-Language", "en")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return "", fmt.Errorf("fetch %s: status %d", pageURL, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return "", retry.Permanent(fmt.Errorf("fetch %s: status %d", pageURL, resp.StatusCode))
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// ParseTitle extracts the title from an HTML page.
func ParseTitle(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	for _, sel := range []string{`meta[property="og:title"]`, `meta[name="twitter:title"]`, `meta[name="title"]`} {
		if content, ok := doc.Find(sel).First().Attr("content"); ok {
			if title := strings.TrimSpace(content); title != "" {
				return title, nil
			}
		}
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	title = strings.TrimSuffix(title, " - YouTube")
	if title == "" {
		return "", fmt.Errorf("no title found")
	}
	return title, nil
}
