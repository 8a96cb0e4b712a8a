package audio

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeAudio(t *testing.T, size int) (string, []byte) {
	t.Helper()
	data := bytes.Repeat([]byte("ID3\x04mp3-frame-"), size/14+1)[:size]
	path := filepath.Join(t.TempDir(), "track.mp3")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path, data
}

func newTestServer(t *testing.T, cfg Config) *httptest.Server {
	t.Helper()
	s, err := NewServer(cfg, nil)
	require.NoError(t, err)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func get(t *testing.T, url string, header http.Header) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func TestNewServerRequiresPath(t *testing.T) {
	t.Parallel()

	_, err := NewServer(Config{}, nil)
	require.Error(t, err)
}

func TestServeWholeFile(t *testing.T) {
	t.Parallel()

	path, data := writeAudio(t, 100_000)
	ts := newTestServer(t, Config{Path: path})

	resp, body := get(t, ts.URL+"/audio", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "audio/mpeg", resp.Header.Get("Content-Type"))
	assert.Equal(t, "bytes", resp.Header.Get("Accept-Ranges"))
	assert.Equal(t, int64(len(data)), resp.ContentLength)
	assert.Equal(t, data, body)
}

func TestServeRange(t *testing.T) {
	t.Parallel()

	path, data := writeAudio(t, 4096)
	ts := newTestServer(t, Config{Path: path})

	resp, body := get(t, ts.URL+"/audio", http.Header{"Range": {"bytes=100-199"}})
	assert.Equal(t, http.StatusPartialContent, resp.StatusCode)
	assert.Equal(t, "bytes 100-199/4096", resp.Header.Get("Content-Range"))
	assert.Equal(t, data[100:200], body)
}

func TestStreamInChunks(t *testing.T) {
	t.Parallel()

	path, data := writeAudio(t, 10_000)
	ts := newTestServer(t, Config{Path: path, ChunkSize: 1024})

	resp, body := get(t, ts.URL+"/stream_audio", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "audio/mpeg", resp.Header.Get("Content-Type"))
	assert.Equal(t, int64(-1), resp.ContentLength)
	assert.Equal(t, []string{"chunked"}, resp.TransferEncoding)
	assert.Equal(t, data, body)
}

func TestStreamEmptyFile(t *testing.T) {
	t.Parallel()

	path, _ := writeAudio(t, 0)
	ts := newTestServer(t, Config{Path: path})

	resp, body := get(t, ts.URL+"/stream_audio", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body)
}

func TestMissingFile(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, Config{Path: filepath.Join(t.TempDir(), "missing.mp3")})
	for _, route := range []string{"/audio", "/stream_audio"} {
		resp, body := get(t, ts.URL+route, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, route)
		assert.Equal(t, "Audio file not found", string(body), route)
	}
}

func TestDirectoryIsNotFound(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, Config{Path: t.TempDir()})
	resp, body := get(t, ts.URL+"/audio", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Audio file not found", string(body))
}

func TestFileCheckedPerRequest(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "late.mp3")
	ts := newTestServer(t, Config{Path: path})

	resp, _ := get(t, ts.URL+"/audio", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	require.NoError(t, os.WriteFile(path, []byte("late audio"), 0o600))
	resp, body := get(t, ts.URL+"/audio", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "late audio", string(body))
}

func TestHealthzAndMetrics(t *testing.T) {
	t.Parallel()

	path, _ := writeAudio(t, 10)
	ts := newTestServer(t, Config{Path: path})

	resp, body := get(t, ts.URL+"/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))

	_, _ = get(t, ts.URL+"/audio", nil)
	resp, body = get(t, ts.URL+"/metrics", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "catalog_audio_bytes_total")
}
