package hub

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const kokoroJSON = `{
	"id": "hexgrad/Kokoro-82M",
	"author": "hexgrad",
	"downloads": 1234,
	"likes": 56,
	"tags": ["text-to-speech", "en"],
	"pipeline_tag": "text-to-speech",
	"lastModified": "2025-01-02T03:04:05.000Z",
	"config": {"model_type": "style_tts2"}
}`

func newTestClient(t *testing.T, srv *httptest.Server, token string) *Client {
	t.Helper()
	c, err := New(Config{
		APIBaseURL:  srv.URL + "/api",
		RawBaseURL:  srv.URL,
		Token:       token,
		UserAgent:   "catalog-test",
		Timeout:     2 * time.Second,
		MaxAttempts: 3,
	}, nil)
	require.NoError(t, err)
	c.retry.baseDelay = time.Millisecond
	c.retry.maxDelay = 2 * time.Millisecond
	return c
}

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	_, err := New(Config{RawBaseURL: "https://huggingface.co"}, nil)
	require.Error(t, err)
	_, err = New(Config{APIBaseURL: "https://huggingface.co/api"}, nil)
	require.Error(t, err)
}

func TestFetchModelDecodesMetadataAndReadme(t *testing.T) {
	t.Parallel()

	var authHeader, userAgent atomic.Value
	mux := http.NewServeMux()
	mux.HandleFunc("/api/models/hexgrad/Kokoro-82M", func(w http.ResponseWriter, r *http.Request) {
		authHeader.Store(r.Header.Get("Authorization"))
		userAgent.Store(r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(kokoroJSON))
	})
	mux.HandleFunc("/hexgrad/Kokoro-82M/raw/main/README.md", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("# Kokoro\nA small TTS model."))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv, "hf_token")
	info, err := c.FetchModel(context.Background(), "hexgrad/Kokoro-82M")
	require.NoError(t, err)

	assert.Equal(t, "Bearer hf_token", authHeader.Load())
	assert.Equal(t, "catalog-test", userAgent.Load())
	assert.Equal(t, "hexgrad/Kokoro-82M", info.ModelID)
	require.NotNil(t, info.Author)
	assert.Equal(t, "hexgrad", *info.Author)
	require.NotNil(t, info.Downloads)
	assert.Equal(t, int64(1234), *info.Downloads)
	assert.Equal(t, int64(56), *info.Likes)
	assert.Equal(t, []string{"text-to-speech", "en"}, info.Tags)
	assert.Nil(t, info.Description)
	require.NotNil(t, info.ModelType)
	assert.Equal(t, "style_tts2", *info.ModelType)
	assert.Equal(t, "2025-01-02T03:04:05.000Z", *info.LastModified)
	assert.Equal(t, "# Kokoro\nA small TTS model.", info.Readme)
}

func TestFetchModelWithoutTokenSendsNoAuthorization(t *testing.T) {
	t.Parallel()

	var authHeader atomic.Value
	authHeader.Store("unset")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/models/a/b" {
			authHeader.Store(r.Header.Get("Authorization"))
			_, _ = w.Write([]byte(`{"author":"a"}`))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	info, err := newTestClient(t, srv, "").FetchModel(context.Background(), "a/b")
	require.NoError(t, err)
	assert.Equal(t, "", authHeader.Load())
	assert.Equal(t, NoReadme, info.Readme)
	assert.Nil(t, info.Downloads)
	assert.Nil(t, info.ModelType)
}

func TestFetchModelNotFoundIsNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"Repository not found"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv, "").FetchModel(context.Background(), "nobody/nothing")
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	assert.Contains(t, err.Error(), "Repository not found")
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchModelRetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/models/a/b" {
			http.NotFound(w, r)
			return
		}
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"author":"a","likes":1}`))
	}))
	defer srv.Close()

	info, err := newTestClient(t, srv, "").FetchModel(context.Background(), "a/b")
	require.NoError(t, err)
	assert.Equal(t, int64(1), *info.Likes)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchModelGivesUpAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv, "").FetchModel(context.Background(), "a/b")
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchModelRejectsInvalidJSON(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html>not json</html>"))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv, "").FetchModel(context.Background(), "a/b")
	require.ErrorContains(t, err, "decode model info")
}

func TestFetchModelRequiresID(t *testing.T) {
	t.Parallel()

	c, err := New(Config{APIBaseURL: "http://127.0.0.1:1/api", RawBaseURL: "http://127.0.0.1:1"}, nil)
	require.NoError(t, err)
	_, err = c.FetchModel(context.Background(), "  ")
	require.Error(t, err)
}

func TestFetchModelHonorsCanceledContext(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := newTestClient(t, srv, "").FetchModel(ctx, "a/b")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFetchModelAbortsInFlightRequest(t *testing.T) {
	t.Parallel()

	aborted := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
			close(aborted)
		case <-time.After(5 * time.Second):
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := newTestClient(t, srv, "").FetchModel(ctx, "a/b")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	select {
	case <-aborted:
	case <-time.After(2 * time.Second):
		t.Fatal("hub request was not canceled with the caller's context")
	}
}

func TestRetryPolicy(t *testing.T) {
	t.Parallel()

	p := newRetryPolicy(3)
	assert.False(t, p.shouldRetry(nil, 1))
	assert.True(t, p.shouldRetry(errors.New("connection reset"), 1))
	assert.False(t, p.shouldRetry(errors.New("connection reset"), 3))
	assert.False(t, p.shouldRetry(context.Canceled, 1))
	assert.True(t, p.shouldRetry(&StatusError{StatusCode: http.StatusBadGateway}, 1))
	assert.True(t, p.shouldRetry(&StatusError{StatusCode: http.StatusTooManyRequests}, 2))
	assert.False(t, p.shouldRetry(&StatusError{StatusCode: http.StatusUnauthorized}, 1))

	for attempt := 1; attempt <= 6; attempt++ {
		d := p.backoff(attempt)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, p.maxDelay)
	}
}

func TestOutcome(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "not_found", outcome(&StatusError{StatusCode: http.StatusNotFound}))
	assert.Equal(t, "http_error", outcome(&StatusError{StatusCode: http.StatusForbidden}))
	assert.Equal(t, "canceled", outcome(context.Canceled))
	assert.Equal(t, "transport_error", outcome(errors.New("dial tcp")))
}

func TestFetchModelHonorsRetryAfter(t *testing.T) {
	t.Parallel()

	var (
		calls atomic.Int32
		first atomic.Int64
		gap   atomic.Int64
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/models/a/b" {
			http.NotFound(w, r)
			return
		}
		now := time.Now().UnixNano()
		if calls.Add(1) == 1 {
			first.Store(now)
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		gap.Store(now - first.Load())
		_, _ = w.Write([]byte(`{"author":"a"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv, "").FetchModel(context.Background(), "a/b")
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.GreaterOrEqual(t, time.Duration(gap.Load()), 900*time.Millisecond)
}

func TestParseRetryAfter(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Duration(0), parseRetryAfter("", now))
	assert.Equal(t, 5*time.Second, parseRetryAfter(" 5 ", now))
	assert.Equal(t, time.Duration(0), parseRetryAfter("-3", now))
	assert.Equal(t, time.Duration(0), parseRetryAfter("soon", now))
	assert.Equal(t, maxRetryAfter, parseRetryAfter("3600", now))
	assert.Equal(t, 30*time.Second, parseRetryAfter(now.Add(30*time.Second).Format(http.TimeFormat), now))
	assert.Equal(t, time.Duration(0), parseRetryAfter(now.Add(-time.Minute).Format(http.TimeFormat), now))
}
