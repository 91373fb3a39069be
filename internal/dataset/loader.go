// Package dataset reads batches of video references from spreadsheets and feeds.
package dataset

import (
	"context"
	"fmt"
	"strings"

	"github.com/mmcdole/gofeed"
	"github.com/xuri/excelize/v2"
)

// Source is one video to process.
type Source struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

// Load reads sources from an RSS/Atom feed when ref is an http(s) URL and from
// an xlsx file otherwise.
func Load(ctx context.Context, ref string) ([]Source, error) {
	if isHTTP(ref) {
		return LoadFeed(ctx, ref)
	}
	return LoadSheet(ref)
}

// LoadSheet auto-detects the URL and title columns of the first sheet by header
// heuristics. Rows without an http(s) URL are skipped.
func LoadSheet(path string) ([]Source, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	if len(rows) <= 1 {
		return nil, fmt.Errorf("no data rows")
	}

	header := rows[0]
	urlIdx, titleIdx, videoIdx := -1, -1, -1
	for i, h := range header {
		l := strings.ToLower(strings.TrimSpace(h))
		switch {
		case strings.Contains(l, "url") || strings.Contains(l, "link"):
			if urlIdx == -1 {
				urlIdx = i
			}
		case strings.Contains(l, "title") || strings.Contains(l, "name"):
			if titleIdx == -1 {
				titleIdx = i
			}
		case strings.Contains(l, "video"):
			if videoIdx == -1 {
				videoIdx = i
			}
		}
	}
	// a bare "Video" header is the URL column only when nothing says url or link
	if urlIdx == -1 {
		urlIdx = videoIdx
	}
	// fallback: first column that holds a URL in the first data row
	if urlIdx == -1 {
		for i, cell := range rows[1] {
			if isHTTP(cell) {
				urlIdx = i
				break
			}
		}
	}
	if urlIdx == -1 {
		return nil, fmt.Errorf("no url column found")
	}

	var out []Source
	for _, r := range rows[1:] {
		var s Source
		if urlIdx < len(r) {
			s.URL = strings.TrimSpace(r[urlIdx])
		}
		if titleIdx >= 0 && titleIdx < len(r) {
			s.Title = strings.TrimSpace(r[titleIdx])
		}
		if !isHTTP(s.URL) {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

// LoadFeed reads item links from an RSS/Atom feed, e.g. a channel or playlist feed.
func LoadFeed(ctx context.Context, feedURL string) ([]Source, error) {
	feed, err := gofeed.NewParser().ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}
	if feed == nil || len(feed.Items) == 0 {
		return nil, fmt.Errorf("feed contains no items")
	}

	out := make([]Source, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item.Link == "" {
			continue
		}
		out = append(out, Source{URL: item.Link, Title: item.Title})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no valid URLs found in feed items")
	}
	return out, nil
}

func isHTTP(s string) bool {
	l := strings.ToLower(strings.TrimSpace(s))
	return strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://")
}
