package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"alert-harvest/internal/harvest/model"
)

// Slack error codes that are worth retrying on the same cursor.
var transientSlackErrors = map[string]bool{
	"ratelimited":         true,
	"fatal_error":         true,
	"internal_error":      true,
	"service_unavailable": true,
	"request_timeout":     true,
}

type historyResponse struct {
	OK               bool             `json:"ok"`
	Error            string           `json:"error"`
	Messages         []map[string]any `json:"messages"`
	ResponseMetadata struct {
		NextCursor string `json:"next_cursor"`
	} `json:"response_metadata"`
}

// SlackPageFetcher reads conversations.history over the Slack Web API.
type SlackPageFetcher struct {
	Log        *zap.Logger
	HTTPClient *http.Client
	BaseURL    string
	Token      string
}

func NewSlackPageFetcher(log *zap.Logger, httpClient *http.Client, baseURL, token string) *SlackPageFetcher {
	return &SlackPageFetcher{
		Log:        log,
		HTTPClient: httpClient,
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Token:      token,
	}
}

// FetchPage requests one page of history. Errors wrap ErrTransientFetch or
// ErrPermanentFetch; a cancelled context is returned as is.
func (f *SlackPageFetcher) FetchPage(ctx context.Context, req PageRequest) (PageResult, error) {
	httpReq, err := f.buildRequest(ctx, req)
	if err != nil {
		return PageResult{}, fmt.Errorf("%w: build request: %w", ErrPermanentFetch, err)
	}

	resp, err := f.HTTPClient.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return PageResult{}, ctxErr
		}
		return PageResult{}, fmt.Errorf("%w: %w", ErrTransientFetch, err)
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			f.Log.Warn("Failed to close response body", zap.Error(err))
		}
	}(resp.Body)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		// Interrupted or partial reads are retried on the same cursor.
		return PageResult{}, fmt.Errorf("%w: read body: %w", ErrTransientFetch, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		return PageResult{}, fmt.Errorf("%w: http status %d", ErrTransientFetch, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return PageResult{}, fmt.Errorf("%w: http status %d", ErrPermanentFetch, resp.StatusCode)
	}

	return f.parseResponse(body, req)
}

func (f *SlackPageFetcher) buildRequest(ctx context.Context, req PageRequest) (*http.Request, error) {
	if req.Latest == "" {
		return nil, ErrMissingLatest
	}
	u, err := url.Parse(f.BaseURL + "/conversations.history")
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("channel", req.ChannelID)
	q.Set("latest", req.Latest)
	q.Set("limit", strconv.Itoa(PageSize))
	if req.Oldest != "" {
		q.Set("oldest", req.Oldest)
	}
	if req.Cursor != "" {
		q.Set("cursor", req.Cursor)
	}
	u.RawQuery = q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+f.Token)
	return httpReq, nil
}

func (f *SlackPageFetcher) parseResponse(body []byte, req PageRequest) (PageResult, error) {
	var parsed historyResponse
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&parsed); err != nil {
		return PageResult{}, fmt.Errorf("%w: invalid JSON response: %w", ErrPermanentFetch, err)
	}

	if !parsed.OK {
		if transientSlackErrors[parsed.Error] {
			return PageResult{}, fmt.Errorf("%w: slack error %q", ErrTransientFetch, parsed.Error)
		}
		return PageResult{}, fmt.Errorf("%w: slack error %q", ErrPermanentFetch, parsed.Error)
	}

	result := PageResult{
		Messages:   make([]model.RawMessage, 0, len(parsed.Messages)),
		NextCursor: parsed.ResponseMetadata.NextCursor,
	}
	for _, m := range parsed.Messages {
		ts, _ := m["ts"].(string)
		if ts == "" {
			f.Log.Warn("Skipping message without ts", zap.String("channel", req.ChannelID))
			continue
		}
		result.Messages = append(result.Messages, model.RawMessage{ID: ts, Payload: m})
	}
	return result, nil
}
