// Package pipeline runs one channel through crawl, classification,
// aggregation and persistence.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"alert-harvest/internal/harvest/aggregate"
	"alert-harvest/internal/harvest/boundary"
	"alert-harvest/internal/harvest/lock"
	"alert-harvest/internal/harvest/metrics"
	"alert-harvest/internal/harvest/model"
)

const (
	OutcomeOK      = "ok"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

type Crawler interface {
	Crawl(ctx context.Context, channelID, latest, oldest string) ([]model.RawMessage, error)
}

// Sink receives the extracted records and the alerts behind the daily counts.
// Both writes must be idempotent: a window whose schedule write failed is
// crawled and saved again by the next run.
type Sink interface {
	SaveRecords(ctx context.Context, channelID string, msgs []model.RawMessage, at time.Time) (int64, error)
	SaveCounts(ctx context.Context, channelID string, alerts []model.ClassifiedMessage) error
}

// Result is the outcome of one run. On a schedule write failure Err is set
// but Messages and Report still hold the crawl so the write can be retried.
type Result struct {
	OK       bool
	RunID    string
	Window   model.CrawlWindow
	Messages []model.RawMessage
	Report   aggregate.Report
	Schedule *model.ExtractionSchedule
	Err      error
}

type Runner struct {
	Log     *zap.Logger
	Lock    lock.ChannelLock
	Tracker *boundary.Tracker
	Crawler Crawler
	Sink    Sink
	Metrics *metrics.Metrics
	Report  aggregate.Options
	// Renew is how often the channel lease is extended while a run is in
	// flight. Zero never extends it. A failed extension aborts the run.
	Renew time.Duration
}

func NewRunner(log *zap.Logger, l lock.ChannelLock, tracker *boundary.Tracker, crawler Crawler, sink Sink, m *metrics.Metrics, report aggregate.Options) *Runner {
	return &Runner{
		Log:     log,
		Lock:    l,
		Tracker: tracker,
		Crawler: crawler,
		Sink:    sink,
		Metrics: m,
		Report:  report,
	}
}

// Run harvests everything posted to channelID since its last recorded window
// up to now, then records the new window.
func (r *Runner) Run(ctx context.Context, channelID string, now time.Time) Result {
	res := Result{RunID: uuid.NewString(), Window: model.CrawlWindow{ChannelID: channelID}}
	log := r.Log.With(zap.String("channel", channelID), zap.String("runId", res.RunID))

	lease, err := r.Lock.TryLock(ctx, channelID)
	if err != nil {
		return r.finish(log, res, err)
	}
	defer r.release(log, lease)
	ctx, stop := r.hold(ctx, log, lease)
	defer stop()

	res.Window, err = r.Tracker.NextWindow(ctx, channelID, now)
	if err != nil {
		return r.finish(log, res, err)
	}
	if err := r.harvest(ctx, &res); err != nil {
		return r.finish(log, res, cause(ctx, err))
	}
	if err := r.Sink.SaveCounts(ctx, channelID, res.Report.Alerts); err != nil {
		return r.finish(log, res, cause(ctx, err))
	}
	if err := context.Cause(ctx); err != nil {
		return r.finish(log, res, err)
	}

	res.Schedule, err = r.Tracker.RecordWindow(ctx, res.Window, now, res.RunID)
	return r.finish(log, res, cause(ctx, err))
}

// RunWindow harvests an explicit window. The schedule log and daily counts
// are left untouched, so the run does not disturb tracked windows.
func (r *Runner) RunWindow(ctx context.Context, window model.CrawlWindow) Result {
	res := Result{RunID: uuid.NewString(), Window: window}
	log := r.Log.With(zap.String("channel", window.ChannelID), zap.String("runId", res.RunID))

	lease, err := r.Lock.TryLock(ctx, window.ChannelID)
	if err != nil {
		return r.finish(log, res, err)
	}
	defer r.release(log, lease)
	ctx, stop := r.hold(ctx, log, lease)
	defer stop()

	return r.finish(log, res, cause(ctx, r.harvest(ctx, &res)))
}

// hold extends lease every r.Renew until stop is called. If an extension
// fails the returned context is cancelled with the extension error as cause.
func (r *Runner) hold(ctx context.Context, log *zap.Logger, lease lock.Lease) (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(ctx)
	if r.Renew <= 0 {
		return ctx, func() { cancel(nil) }
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(r.Renew)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := lease.Extend(ctx); err != nil {
					if ctx.Err() != nil {
						return
					}
					log.Error("Lost channel lock, aborting run", zap.Error(err))
					cancel(fmt.Errorf("extend channel lock: %w", err))
					return
				}
			}
		}
	}()
	return ctx, func() {
		cancel(nil)
		<-done
	}
}

// cause replaces a cancellation error with the reason the run was cancelled.
func cause(ctx context.Context, err error) error {
	if err != nil && ctx.Err() != nil {
		if c := context.Cause(ctx); c != nil && !errors.Is(c, context.Canceled) {
			return c
		}
	}
	return err
}

func (r *Runner) harvest(ctx context.Context, res *Result) error {
	w := res.Window
	msgs, err := r.Crawler.Crawl(ctx, w.ChannelID, w.Latest, w.Oldest)
	if err != nil {
		return err
	}
	res.Messages = msgs

	res.Report = aggregate.Analyze(w.ChannelID, msgs, r.Report)
	for _, m := range res.Report.Messages {
		r.Metrics.Classified(string(m.AlertType))
	}

	if _, err := r.Sink.SaveRecords(ctx, w.ChannelID, msgs, time.Now()); err != nil {
		return err
	}
	return nil
}

func (r *Runner) finish(log *zap.Logger, res Result, err error) Result {
	switch {
	case err == nil:
		res.OK = true
		r.Metrics.RunFinished(OutcomeOK)
		log.Info("Harvest run completed",
			zap.String("oldest", res.Window.Oldest),
			zap.String("latest", res.Window.Latest),
			zap.Int("messages", len(res.Messages)),
			zap.Int("countRows", len(res.Report.Counts)),
		)
	case errors.Is(err, lock.ErrHeld):
		res.Err = err
		r.Metrics.RunFinished(OutcomeSkipped)
		log.Warn("Channel already being harvested, skipping run")
	case errors.Is(err, boundary.ErrClockBehind):
		res.Err = err
		r.Metrics.RunFinished(OutcomeSkipped)
		log.Warn("Clock is behind the last recorded window, skipping run", zap.Error(err))
	default:
		res.Err = err
		r.Metrics.RunFinished(OutcomeFailed)
		log.Error("Harvest run failed",
			zap.String("oldest", res.Window.Oldest),
			zap.String("latest", res.Window.Latest),
			zap.Error(err),
		)
	}
	return res
}

func (r *Runner) release(log *zap.Logger, lease lock.Lease) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := lease.Release(ctx); err != nil {
		log.Warn("Failed to release channel lock", zap.Error(err))
	}
}
