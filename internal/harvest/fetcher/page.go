// Package fetcher pulls channel history page by page and reconciles the pages
// into one ordered, deduplicated message set.
package fetcher

import (
	"context"
	"errors"

	"alert-harvest/internal/harvest/model"
)

// PageSize is the fixed number of messages requested per history call.
const PageSize = 100

var (
	// ErrTransientFetch marks faults that are retried on the same cursor.
	ErrTransientFetch = errors.New("transient fetch fault")
	// ErrPermanentFetch marks faults that abort the crawl.
	ErrPermanentFetch = errors.New("permanent fetch fault")
	// ErrMissingLatest is returned when a crawl is asked for a window with no upper edge.
	ErrMissingLatest  = errors.New("latest timestamp is required")
)

// PageRequest identifies one history page. Oldest "" leaves the lower edge open.
type PageRequest struct {
	ChannelID string
	Cursor    string
	Latest    string
	Oldest    string
}

// PageResult holds one page, newest message first. NextCursor is "" on the last page.
type PageResult struct {
	Messages   []model.RawMessage
	NextCursor string
}

// PageFetcher issues a single paginated history request.
type PageFetcher interface {
	FetchPage(ctx context.Context, req PageRequest) (PageResult, error)
}
