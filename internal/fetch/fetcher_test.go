package fetch

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/opendatawatch/opendatawatch/internal/ratelimit"
)

// mockHTTPClient replays a scripted sequence of responses.
type mockHTTPClient struct {
	mu        sync.Mutex
	responses []*http.Response
	errs      []error
	calls     int
}

func (m *mockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.calls
	m.calls++
	if i >= len(m.responses) {
		i = len(m.responses) - 1
	}
	if m.errs[i] != nil {
		return nil, m.errs[i]
	}
	return m.responses[i], nil
}

func (m *mockHTTPClient) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func response(status int, body string, header http.Header) *http.Response {
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{
		StatusCode: status,
		Header:     header,
		Body:       io.NopCloser(bytes.NewReader([]byte(body))),
	}
}

func newTestFetcher(t *testing.T, client HTTPClient) *Fetcher {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	limiter, err := ratelimit.New(&ratelimit.Config{Logger: log})
	require.NoError(t, err)

	f, err := NewFetcher(&FetcherConfig{
		Logger:     log,
		Limiter:    limiter,
		HTTPClient: client,
	})
	require.NoError(t, err)
	return f
}

func TestFetcher_Success(t *testing.T) {
	t.Parallel()

	h := http.Header{}
	h.Set("Content-Type", "text/csv")
	h.Set("Last-Modified", "Sat, 29 Aug 2026 10:00:00 GMT")
	client := &mockHTTPClient{
		responses: []*http.Response{response(200, "a,b\n1,2\n", h)},
		errs:      []error{nil},
	}
	f := newTestFetcher(t, client)

	res, err := f.Fetch(context.Background(), "https://data.example.gov/file.csv", 10*time.Second)
	require.NoError(t, err)
	require.Equal(t, 200, res.StatusCode)
	require.Equal(t, []byte("a,b\n1,2\n"), res.Body)
	require.Equal(t, "text/csv", res.ContentType)
	require.Equal(t, "Sat, 29 Aug 2026 10:00:00 GMT", res.LastModified)
	require.Equal(t, 1, client.callCount())
}

func TestFetcher_RetriesServerErrors(t *testing.T) {
	t.Parallel()

	client := &mockHTTPClient{
		responses: []*http.Response{
			response(503, "", nil),
			response(503, "", nil),
			response(200, "ok", nil),
		},
		errs: []error{nil, nil, nil},
	}
	f := newTestFetcher(t, client)

	res, err := f.Fetch(context.Background(), "https://data.example.gov/file.csv", 10*time.Second)
	require.NoError(t, err)
	require.Equal(t, 200, res.StatusCode)
	require.Equal(t, 3, client.callCount())
}

func TestFetcher_ExhaustedRetriesReturnStatusError(t *testing.T) {
	t.Parallel()

	client := &mockHTTPClient{
		responses: []*http.Response{response(502, "", nil)},
		errs:      []error{nil},
	}
	f := newTestFetcher(t, client)

	_, err := f.Fetch(context.Background(), "https://data.example.gov/file.csv", 10*time.Second)
	require.Error(t, err)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, 502, statusErr.Code)
	require.Equal(t, defaultMaxRetries, client.callCount())
}

func TestFetcher_429IsNotRetriedLocally(t *testing.T) {
	t.Parallel()

	client := &mockHTTPClient{
		responses: []*http.Response{response(429, "", nil)},
		errs:      []error{nil},
	}
	f := newTestFetcher(t, client)

	_, err := f.Fetch(context.Background(), "https://data.example.gov/file.csv", 10*time.Second)
	require.ErrorIs(t, err, ErrRateLimited)
	require.Equal(t, 1, client.callCount(), "429 must defer to the limiter, not burn local retries")
}

func TestFetcher_FetchProceedsOnceBackoffElapses(t *testing.T) {
	t.Parallel()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	limiter, err := ratelimit.New(&ratelimit.Config{
		Logger:     log,
		BaseDelay:  time.Millisecond,
		MaxBackoff: 5 * time.Millisecond,
	})
	require.NoError(t, err)

	url := "https://data.example.gov/file.csv"
	limiter.HandleResponse(url, http.StatusTooManyRequests, http.Header{})

	client := &mockHTTPClient{
		responses: []*http.Response{response(200, "ok", nil)},
		errs:      []error{nil},
	}
	f, err := NewFetcher(&FetcherConfig{
		Logger:     log,
		Limiter:    limiter,
		HTTPClient: client,
	})
	require.NoError(t, err)

	// The next fetch against the rate-limited domain waits out the backoff
	// window, then issues the request.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res, err := f.Fetch(ctx, url, 10*time.Second)
	require.NoError(t, err)
	require.Equal(t, 200, res.StatusCode)
	require.Equal(t, 1, client.callCount())
}

func TestFetcher_ClientErrorStatusIsReturnedNotRetried(t *testing.T) {
	t.Parallel()

	client := &mockHTTPClient{
		responses: []*http.Response{response(404, "not found", nil)},
		errs:      []error{nil},
	}
	f := newTestFetcher(t, client)

	// 4xx (except 429) is a definitive answer about the resource; the result
	// carries the status for the snapshot.
	res, err := f.Fetch(context.Background(), "https://data.example.gov/file.csv", 10*time.Second)
	require.NoError(t, err)
	require.Equal(t, 404, res.StatusCode)
	require.Equal(t, 1, client.callCount())
}

func TestFetcher_TransportErrorsRetry(t *testing.T) {
	t.Parallel()

	client := &mockHTTPClient{
		responses: []*http.Response{nil, response(200, "ok", nil)},
		errs:      []error{errors.New("connection reset"), nil},
	}
	f := newTestFetcher(t, client)

	res, err := f.Fetch(context.Background(), "https://data.example.gov/file.csv", 10*time.Second)
	require.NoError(t, err)
	require.Equal(t, 200, res.StatusCode)
	require.Equal(t, 2, client.callCount())
}

func TestFetcher_BodyCappedAtMaxBytes(t *testing.T) {
	t.Parallel()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	limiter, err := ratelimit.New(&ratelimit.Config{Logger: log})
	require.NoError(t, err)

	client := &mockHTTPClient{
		responses: []*http.Response{response(200, "0123456789", nil)},
		errs:      []error{nil},
	}
	f, err := NewFetcher(&FetcherConfig{
		Logger:       log,
		Limiter:      limiter,
		HTTPClient:   client,
		MaxBodyBytes: 4,
	})
	require.NoError(t, err)

	res, err := f.Fetch(context.Background(), "https://data.example.gov/file.csv", 10*time.Second)
	require.NoError(t, err)
	require.Equal(t, []byte("0123"), res.Body)
}

func TestFetcher_CancelledContext(t *testing.T) {
	t.Parallel()

	client := &mockHTTPClient{
		responses: []*http.Response{nil},
		errs:      []error{errors.New("dial timeout")},
	}
	f := newTestFetcher(t, client)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.Fetch(ctx, "https://data.example.gov/file.csv", 10*time.Second)
	require.Error(t, err)
}
