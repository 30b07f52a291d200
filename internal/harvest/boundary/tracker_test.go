package boundary

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"alert-harvest/internal/harvest/model"
)

type memStore struct {
	rows     []model.ExtractionSchedule
	readErr  error
	writeErr error
}

func (m *memStore) LatestSchedule(_ context.Context, channelID string) (*model.ExtractionSchedule, error) {
	if m.readErr != nil {
		return nil, m.readErr
	}
	var latest *model.ExtractionSchedule
	for i := range m.rows {
		r := &m.rows[i]
		if r.ChannelID == channelID && (latest == nil || r.TriggeredAt.After(latest.TriggeredAt)) {
			latest = r
		}
	}
	return latest, nil
}

func (m *memStore) AppendSchedule(_ context.Context, s *model.ExtractionSchedule) error {
	if m.writeErr != nil {
		return m.writeErr
	}
	m.rows = append(m.rows, *s)
	return nil
}

func TestNextWindow_FirstRunIsOpen(t *testing.T) {
	tr := NewTracker(zap.NewNop(), &memStore{})
	now := time.Unix(1700000000, 250000000)

	w, err := tr.NextWindow(context.Background(), "C1", now)
	require.NoError(t, err)
	assert.Equal(t, model.CrawlWindow{ChannelID: "C1", Latest: "1700000000.250000"}, w)
}

func TestWindowsAreContiguous(t *testing.T) {
	store := &memStore{}
	tr := NewTracker(zap.NewNop(), store)
	ctx := context.Background()

	t1 := time.Unix(1700000000, 123456000)
	w1, err := tr.NextWindow(ctx, "C1", t1)
	require.NoError(t, err)
	_, err = tr.RecordWindow(ctx, w1, t1, "run-1")
	require.NoError(t, err)

	t2 := t1.Add(24 * time.Hour)
	w2, err := tr.NextWindow(ctx, "C1", t2)
	require.NoError(t, err)
	assert.Equal(t, w1.Latest, w2.Oldest)
	assert.Equal(t, model.FormatTS(t2), w2.Latest)

	s, err := tr.RecordWindow(ctx, w2, t2, "run-2")
	require.NoError(t, err)
	require.NotNil(t, s.DataExtractionFrom)
	assert.Equal(t, w1.Latest, s.FromTS)
	assert.True(t, s.DataExtractionFrom.Before(s.DataExtractionTo))
	assert.Len(t, store.rows, 2)

	other, err := tr.NextWindow(ctx, "C2", t2)
	require.NoError(t, err)
	assert.Empty(t, other.Oldest)
}

func TestNextWindow_FallsBackToStoredTime(t *testing.T) {
	to := time.Unix(1700000000, 5000000).UTC()
	store := &memStore{rows: []model.ExtractionSchedule{{ChannelID: "C1", DataExtractionTo: to, TriggeredAt: to}}}

	w, err := NewTracker(zap.NewNop(), store).NextWindow(context.Background(), "C1", to.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "1700000000.005000", w.Oldest)
}

func TestNextWindow_ReadError(t *testing.T) {
	boom := errors.New("boom")
	_, err := NewTracker(zap.NewNop(), &memStore{readErr: boom}).NextWindow(context.Background(), "C1", time.Now())
	assert.ErrorIs(t, err, boom)
}

func TestRecordWindow_RejectsInvertedWindow(t *testing.T) {
	store := &memStore{}
	tr := NewTracker(zap.NewNop(), store)

	_, err := tr.RecordWindow(context.Background(), model.CrawlWindow{ChannelID: "C1", Latest: "10.0", Oldest: "10.000000"}, time.Now(), "r")
	assert.ErrorIs(t, err, ErrInvalidWindow)

	_, err = tr.RecordWindow(context.Background(), model.CrawlWindow{ChannelID: "C1", Latest: "nope"}, time.Now(), "r")
	assert.ErrorIs(t, err, ErrInvalidWindow)
	assert.Empty(t, store.rows)
}

func TestRecordWindow_WriteFailureDoesNotAdvance(t *testing.T) {
	store := &memStore{}
	tr := NewTracker(zap.NewNop(), store)
	ctx := context.Background()

	first := model.CrawlWindow{ChannelID: "C1", Latest: "100.0"}
	_, err := tr.RecordWindow(ctx, first, time.Unix(100, 0), "run-1")
	require.NoError(t, err)

	store.writeErr = errors.New("mongo unavailable")
	_, err = tr.RecordWindow(ctx, model.CrawlWindow{ChannelID: "C1", Oldest: "100.0", Latest: "200.0"}, time.Unix(200, 0), "run-2")
	assert.ErrorIs(t, err, store.writeErr)

	next, err := tr.NextWindow(ctx, "C1", time.Unix(300, 0))
	require.NoError(t, err)
	assert.Equal(t, "100.0", next.Oldest)
}

func TestNextWindow_ClockBehindLastWindow(t *testing.T) {
	store := &memStore{rows: []model.ExtractionSchedule{
		{ChannelID: "C1", ToTS: "1700000600.000000", TriggeredAt: time.Unix(1700000600, 0)},
	}}
	tr := NewTracker(zap.NewNop(), store)
	ctx := context.Background()

	_, err := tr.NextWindow(ctx, "C1", time.Unix(1700000000, 0))
	assert.ErrorIs(t, err, ErrClockBehind)

	_, err = tr.NextWindow(ctx, "C1", time.Unix(1700000600, 0))
	assert.ErrorIs(t, err, ErrClockBehind, "a window with equal edges is empty")

	w, err := tr.NextWindow(ctx, "C1", time.Unix(1700000601, 0))
	require.NoError(t, err)
	assert.Equal(t, "1700000600.000000", w.Oldest)
	assert.Equal(t, "1700000601.000000", w.Latest)
}
