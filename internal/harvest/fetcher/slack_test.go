package fetcher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newSlackServer(t *testing.T, handler http.HandlerFunc) *SlackPageFetcher {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewSlackPageFetcher(zap.NewNop(), srv.Client(), srv.URL+"/", "xoxb-test")
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestSlackPageFetcher_FetchPage(t *testing.T) {
	var got *http.Request
	f := newSlackServer(t, func(w http.ResponseWriter, r *http.Request) {
		got = r
		writeJSON(t, w, map[string]any{
			"ok": true,
			"messages": []map[string]any{
				{"ts": "1700000002.000200", "text": "newer", "bot_profile": map[string]any{"name": "Sentry"}},
				{"text": "no ts"},
				{"ts": "1700000001.000100", "text": "older"},
			},
			"response_metadata": map[string]any{"next_cursor": "bmV4dA=="},
		})
	})

	res, err := f.FetchPage(context.Background(), PageRequest{
		ChannelID: "C1",
		Cursor:    "abc",
		Latest:    "1700000100.000000",
		Oldest:    "1700000000.000000",
	})
	require.NoError(t, err)

	require.NotNil(t, got)
	assert.Equal(t, "/conversations.history", got.URL.Path)
	assert.Equal(t, "Bearer xoxb-test", got.Header.Get("Authorization"))
	q := got.URL.Query()
	assert.Equal(t, "C1", q.Get("channel"))
	assert.Equal(t, "abc", q.Get("cursor"))
	assert.Equal(t, "1700000100.000000", q.Get("latest"))
	assert.Equal(t, "1700000000.000000", q.Get("oldest"))
	assert.Equal(t, "100", q.Get("limit"))

	require.Len(t, res.Messages, 2)
	assert.Equal(t, "1700000002.000200", res.Messages[0].ID)
	assert.Equal(t, "newer", res.Messages[0].Payload["text"])
	assert.Equal(t, "bmV4dA==", res.NextCursor)
}

func TestSlackPageFetcher_OmitsOpenOldestAndEmptyCursor(t *testing.T) {
	var got *http.Request
	f := newSlackServer(t, func(w http.ResponseWriter, r *http.Request) {
		got = r
		writeJSON(t, w, map[string]any{"ok": true, "messages": []any{}})
	})

	res, err := f.FetchPage(context.Background(), PageRequest{ChannelID: "C1", Latest: "5.0"})
	require.NoError(t, err)
	assert.Empty(t, res.Messages)
	assert.Empty(t, res.NextCursor)

	_, hasOldest := got.URL.Query()["oldest"]
	_, hasCursor := got.URL.Query()["cursor"]
	assert.False(t, hasOldest)
	assert.False(t, hasCursor)
}

func TestSlackPageFetcher_ErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   any
		want   error
	}{
		{"rate limited status", http.StatusTooManyRequests, map[string]any{"ok": false}, ErrTransientFetch},
		{"server error", http.StatusBadGateway, map[string]any{"ok": false}, ErrTransientFetch},
		{"slack ratelimited", http.StatusOK, map[string]any{"ok": false, "error": "ratelimited"}, ErrTransientFetch},
		{"invalid auth", http.StatusOK, map[string]any{"ok": false, "error": "invalid_auth"}, ErrPermanentFetch},
		{"channel not found", http.StatusOK, map[string]any{"ok": false, "error": "channel_not_found"}, ErrPermanentFetch},
		{"forbidden", http.StatusForbidden, map[string]any{"ok": false}, ErrPermanentFetch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newSlackServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_ = json.NewEncoder(w).Encode(tt.body)
			})
			_, err := f.FetchPage(context.Background(), PageRequest{ChannelID: "C1", Latest: "5.0"})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestSlackPageFetcher_InvalidJSONIsPermanent(t *testing.T) {
	f := newSlackServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>oops</html>"))
	})
	_, err := f.FetchPage(context.Background(), PageRequest{ChannelID: "C1", Latest: "5.0"})
	assert.ErrorIs(t, err, ErrPermanentFetch)
}

func TestSlackPageFetcher_TimeoutIsTransient(t *testing.T) {
	release := make(chan struct{})
	f := newSlackServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)
	f.HTTPClient.Timeout = 50 * time.Millisecond

	_, err := f.FetchPage(context.Background(), PageRequest{ChannelID: "C1", Latest: "5.0"})
	assert.ErrorIs(t, err, ErrTransientFetch)
}

func TestSlackPageFetcher_MissingLatest(t *testing.T) {
	f := NewSlackPageFetcher(zap.NewNop(), http.DefaultClient, "http://unused", "t")
	_, err := f.FetchPage(context.Background(), PageRequest{ChannelID: "C1"})
	assert.ErrorIs(t, err, ErrPermanentFetch)
	assert.ErrorIs(t, err, ErrMissingLatest)
}
