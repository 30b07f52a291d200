package fetcher

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"alert-harvest/internal/harvest/metrics"
	"alert-harvest/internal/harvest/model"
)

// Crawler walks a channel's history backwards from latest to oldest.
type Crawler struct {
	Log     *zap.Logger
	Fetcher PageFetcher
	Metrics *metrics.Metrics

	// PagePause is slept after a successful page when more pages follow.
	PagePause time.Duration
	// RetryInterval paces retries of transient faults; it is a fixed rate, not a backoff.
	RetryInterval time.Duration
}

func NewCrawler(log *zap.Logger, fetcher PageFetcher, m *metrics.Metrics, pagePause, retryInterval time.Duration) *Crawler {
	return &Crawler{
		Log:           log,
		Fetcher:       fetcher,
		Metrics:       m,
		PagePause:     pagePause,
		RetryInterval: retryInterval,
	}
}

// Crawl returns every message with oldest < ts < latest, sorted ascending by
// ts with duplicate tokens collapsed to the last occurrence. oldest "" crawls
// to the beginning of history. Any non-transient fault discards all pages
// fetched so far and is returned to the caller.
func (c *Crawler) Crawl(ctx context.Context, channelID, latest, oldest string) ([]model.RawMessage, error) {
	if latest == "" {
		return nil, ErrMissingLatest
	}
	window := model.CrawlWindow{ChannelID: channelID, Latest: latest, Oldest: oldest}
	if window.Empty() {
		c.Log.Debug("Empty crawl window, nothing to fetch",
			zap.String("channel", channelID),
			zap.String("latest", latest),
			zap.String("oldest", oldest),
		)
		return []model.RawMessage{}, nil
	}

	retry := rate.NewLimiter(c.retryLimit(), 1)
	req := PageRequest{ChannelID: channelID, Latest: latest, Oldest: oldest}

	var acc []model.RawMessage
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page, err := c.fetchWithRetry(ctx, req, retry)
		if err != nil {
			return nil, err
		}
		c.Metrics.PageFetched(channelID)

		if len(page.Messages) == 0 {
			break
		}
		newest := page.Messages[0].ID
		if model.CompareTS(newest, latest) >= 0 {
			break
		}
		if oldest != "" && model.CompareTS(newest, oldest) <= 0 {
			break
		}

		for _, m := range page.Messages {
			if inWindow(m.ID, latest, oldest) {
				acc = append(acc, m)
			}
		}
		c.logProgress(channelID, len(acc), newest)

		if page.NextCursor == "" {
			break
		}
		req.Cursor = page.NextCursor
		if err := sleep(ctx, c.PagePause); err != nil {
			return nil, err
		}
	}

	out, dropped := reconcile(acc)
	if dropped > 0 {
		c.Log.Info("Handled duplicate messages",
			zap.String("channel", channelID),
			zap.Int("duplicates", dropped),
		)
	}
	c.Metrics.Harvested(channelID, len(out), dropped)
	return out, nil
}

func (c *Crawler) fetchWithRetry(ctx context.Context, req PageRequest, retry *rate.Limiter) (PageResult, error) {
	for attempt := 1; ; attempt++ {
		page, err := c.Fetcher.FetchPage(ctx, req)
		if err == nil {
			return page, nil
		}
		if !errors.Is(err, ErrTransientFetch) {
			c.Log.Error("Failed to fetch conversation history",
				zap.String("channel", req.ChannelID),
				zap.String("cursor", req.Cursor),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			return PageResult{}, err
		}

		c.Log.Warn("Transient fault fetching history, retrying same cursor",
			zap.String("channel", req.ChannelID),
			zap.String("cursor", req.Cursor),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		c.Metrics.TransientRetry(req.ChannelID)
		if err := retry.Wait(ctx); err != nil {
			return PageResult{}, err
		}
	}
}

func (c *Crawler) retryLimit() rate.Limit {
	if c.RetryInterval <= 0 {
		return rate.Inf
	}
	return rate.Every(c.RetryInterval)
}

func (c *Crawler) logProgress(channelID string, total int, newest string) {
	fields := []zap.Field{
		zap.String("channel", channelID),
		zap.Int("messages", total),
	}
	if t, err := model.ParseTS(newest); err == nil {
		fields = append(fields, zap.Time("extractedTill", t))
	}
	c.Log.Info("Fetched history page", fields...)
}

func inWindow(ts, latest, oldest string) bool {
	if model.CompareTS(ts, latest) >= 0 {
		return false
	}
	return oldest == "" || model.CompareTS(ts, oldest) > 0
}

// reconcile sorts ascending by ts and keeps the last of each run of equal
// tokens. Sorting is stable, so "last" is the copy fetched latest.
func reconcile(acc []model.RawMessage) ([]model.RawMessage, int) {
	sorted := make([]model.RawMessage, len(acc))
	copy(sorted, acc)
	sort.SliceStable(sorted, func(i, j int) bool {
		return model.CompareTS(sorted[i].ID, sorted[j].ID) < 0
	})

	out := make([]model.RawMessage, 0, len(sorted))
	for i, m := range sorted {
		if i+1 < len(sorted) && model.CompareTS(sorted[i+1].ID, m.ID) == 0 {
			continue
		}
		out = append(out, m)
	}
	return out, len(sorted) - len(out)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	select {
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
