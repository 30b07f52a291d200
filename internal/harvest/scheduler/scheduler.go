package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"alert-harvest/internal/harvest/model"
	"alert-harvest/internal/harvest/pipeline"
)

type ChannelSource interface {
	EnabledChannels(ctx context.Context) ([]model.Channel, error)
}

type ChannelRunner interface {
	Run(ctx context.Context, channelID string, now time.Time) pipeline.Result
}

// Summary counts the outcomes of one pass over the enabled channels.
type Summary struct {
	Channels  int
	Succeeded int
	Failed    int
}

// Worker harvests every enabled channel on a cron schedule. Channels run in
// parallel, at most Concurrency at a time.
type Worker struct {
	Log         *zap.Logger
	Channels    ChannelSource
	Runner      ChannelRunner
	Spec        string
	Concurrency int
	RunOnStart  bool
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Run blocks until ctx is cancelled, then waits for the pass in flight.
func (w *Worker) Run(ctx context.Context) error {
	if _, err := parser.Parse(w.Spec); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", w.Spec, err)
	}

	clog := cronLogger{w.Log.Sugar()}
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)))
	if _, err := c.AddFunc(w.Spec, func() { w.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("schedule harvest: %w", err)
	}

	if w.RunOnStart {
		w.RunOnce(ctx)
	}

	c.Start()
	w.Log.Info("Harvest worker started", zap.String("schedule", w.Spec), zap.Int("concurrency", w.Concurrency))

	<-ctx.Done()
	w.Log.Info("Waiting for running harvest to complete...")
	<-c.Stop().Done()
	return nil
}

// RunOnce harvests every enabled channel once.
func (w *Worker) RunOnce(ctx context.Context) Summary {
	now := time.Now()
	channels, err := w.Channels.EnabledChannels(ctx)
	if err != nil {
		w.Log.Error("Failed to list enabled channels", zap.Error(err))
		return Summary{}
	}

	limit := w.Concurrency
	if limit < 1 {
		limit = 1
	}
	sem := make(chan struct{}, limit)

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sum = Summary{Channels: len(channels)}
	)
	for _, ch := range channels {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return sum
		}
		wg.Add(1)
		go func(ch model.Channel) {
			defer wg.Done()
			defer func() { <-sem }()

			res := w.Runner.Run(ctx, ch.ChannelID, now)
			mu.Lock()
			if res.OK {
				sum.Succeeded++
			} else {
				sum.Failed++
			}
			mu.Unlock()
		}(ch)
	}
	wg.Wait()

	w.Log.Info("Harvest pass completed",
		zap.Int("channels", sum.Channels),
		zap.Int("succeeded", sum.Succeeded),
		zap.Int("failed", sum.Failed),
		zap.Duration("elapsed", time.Since(now)),
	)
	return sum
}

type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
