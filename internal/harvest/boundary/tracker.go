// Package boundary tracks, per channel, how far history has been extracted.
package boundary

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"alert-harvest/internal/harvest/model"
)

var (
	ErrInvalidWindow = errors.New("invalid extraction window")
	// ErrClockBehind is returned by NextWindow when the last recorded window
	// ends at or after now, which happens when worker clocks disagree.
	ErrClockBehind   = errors.New("last recorded window ends after now")
)

// ScheduleStore is the append-only extraction schedule log.
type ScheduleStore interface {
	// LatestSchedule returns the newest row for channelID by triggered_at, or
	// nil when the channel has never been extracted.
	LatestSchedule(ctx context.Context, channelID string) (*model.ExtractionSchedule, error)
	AppendSchedule(ctx context.Context, s *model.ExtractionSchedule) error
}

// Tracker derives crawl windows from the schedule log. It holds no state of
// its own; callers must serialize runs for the same channel.
type Tracker struct {
	Log   *zap.Logger
	Store ScheduleStore
}

func NewTracker(log *zap.Logger, store ScheduleStore) *Tracker {
	return &Tracker{Log: log, Store: store}
}

// NextWindow returns the window that starts where the last recorded one ended
// and ends at now. A channel with no history gets an open oldest edge. If the
// last window does not end before now, no window is returned and the error
// wraps ErrClockBehind.
func (t *Tracker) NextWindow(ctx context.Context, channelID string, now time.Time) (model.CrawlWindow, error) {
	window := model.CrawlWindow{ChannelID: channelID, Latest: model.FormatTS(now)}

	prev, err := t.Store.LatestSchedule(ctx, channelID)
	if err != nil {
		return model.CrawlWindow{}, fmt.Errorf("read latest schedule for %s: %w", channelID, err)
	}
	if prev == nil {
		t.Log.Info("No previous extraction, crawling full history",
			zap.String("channel", channelID),
		)
		return window, nil
	}

	window.Oldest = prev.ToTS
	if window.Oldest == "" {
		window.Oldest = model.FormatTS(prev.DataExtractionTo)
	}
	if model.CompareTS(window.Oldest, window.Latest) >= 0 {
		t.Log.Warn("Previous extraction ends in the future, skipping",
			zap.String("channel", channelID),
			zap.String("oldest", window.Oldest),
			zap.String("now", window.Latest),
		)
		return model.CrawlWindow{}, fmt.Errorf("%w: channel %s recorded up to %s, now is %s",
			ErrClockBehind, channelID, window.Oldest, window.Latest)
	}
	t.Log.Debug("Resuming from previous extraction",
		zap.String("channel", channelID),
		zap.String("oldest", window.Oldest),
		zap.Time("previousTriggeredAt", prev.TriggeredAt),
	)
	return window, nil
}

// RecordWindow appends the schedule row for a completed crawl of window. If
// the write fails nothing is recorded and the next window is unchanged.
func (t *Tracker) RecordWindow(ctx context.Context, window model.CrawlWindow, triggeredAt time.Time, runID string) (*model.ExtractionSchedule, error) {
	to, err := model.ParseTS(window.Latest)
	if err != nil {
		return nil, fmt.Errorf("%w: latest: %v", ErrInvalidWindow, err)
	}

	s := &model.ExtractionSchedule{
		RunID:            runID,
		ChannelID:        window.ChannelID,
		DataExtractionTo: to,
		ToTS:             window.Latest,
		TriggeredAt:      triggeredAt.UTC(),
	}
	if window.Oldest != "" {
		if model.CompareTS(window.Oldest, window.Latest) >= 0 {
			return nil, fmt.Errorf("%w: oldest %s not before latest %s", ErrInvalidWindow, window.Oldest, window.Latest)
		}
		from, err := model.ParseTS(window.Oldest)
		if err != nil {
			return nil, fmt.Errorf("%w: oldest: %v", ErrInvalidWindow, err)
		}
		s.DataExtractionFrom = &from
		s.FromTS = window.Oldest
	}

	if err := t.Store.AppendSchedule(ctx, s); err != nil {
		t.Log.Error("Failed to record extraction schedule",
			zap.String("channel", window.ChannelID),
			zap.String("runId", runID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("append schedule for %s: %w", window.ChannelID, err)
	}

	t.Log.Info("Recorded extraction window",
		zap.String("channel", window.ChannelID),
		zap.String("runId", runID),
		zap.String("from", s.FromTS),
		zap.String("to", s.ToTS),
	)
	return s, nil
}
