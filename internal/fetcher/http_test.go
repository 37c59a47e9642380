package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFetcher() *HTTPFetcher {
	return NewHTTPFetcher(HTTPOptions{
		UserAgent:  "test-agent",
		Timeout:    5 * time.Second,
		MaxRetries: 3,
	})
}

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		w.Write([]byte("raster bytes"))
	}))
	defer srv.Close()

	f := newTestFetcher()
	body, err := f.Download(context.Background(), srv.URL+"/data")
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "raster bytes", string(data))
}

func TestDownloadToFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("file content here"))
	}))
	defer srv.Close()

	f := newTestFetcher()
	dir := t.TempDir()
	path := filepath.Join(dir, "ghi.zip")

	n, err := f.DownloadToFile(context.Background(), srv.URL+"/ghi.zip", path)
	require.NoError(t, err)
	assert.Equal(t, int64(17), n)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "file content here", string(data))
}

func TestDownloadToFileNoPartialOnFailure(t *testing.T) {
	f := NewHTTPFetcher(HTTPOptions{Timeout: 2 * time.Second, MaxRetries: 1})
	dir := t.TempDir()
	path := filepath.Join(dir, "ghi.zip")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := f.DownloadToFile(context.Background(), srv.URL+"/missing", path)
	require.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "no partial or destination file may remain")
}

func TestRetryOnServerError(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := newTestFetcher()
	body, err := f.Download(context.Background(), srv.URL+"/flaky")
	require.NoError(t, err)
	defer body.Close()

	data, _ := io.ReadAll(body)
	assert.Equal(t, "ok", string(data))
	assert.Equal(t, int32(3), attempts.Load())
}

func TestDownloadNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	f := newTestFetcher()
	_, err := f.Download(context.Background(), srv.URL+"/denied")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestEnsureCacheHit(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Write([]byte("payload"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	dest := filepath.Join(dir, "data.zip")

	fetched, err := Ensure(context.Background(), srv.URL+"/data.zip", dest, false)
	require.NoError(t, err)
	assert.True(t, fetched)
	assert.Equal(t, int32(1), requests.Load())

	// Second run with a populated cache performs no network request.
	fetched, err = Ensure(context.Background(), srv.URL+"/data.zip", dest, false)
	require.NoError(t, err)
	assert.False(t, fetched)
	assert.Equal(t, int32(1), requests.Load())

	// Refresh forces a re-download.
	fetched, err = Ensure(context.Background(), srv.URL+"/data.zip", dest, true)
	require.NoError(t, err)
	assert.True(t, fetched)
	assert.Equal(t, int32(2), requests.Load())
}

func TestParseFTPURL(t *testing.T) {
	host, path, err := parseFTPURL("ftp://mirror.example.com/pub/atlas.zip")
	require.NoError(t, err)
	assert.Equal(t, "mirror.example.com:21", host)
	assert.Equal(t, "/pub/atlas.zip", path)

	host, _, err = parseFTPURL("ftp://mirror.example.com:2121/pub/atlas.zip")
	require.NoError(t, err)
	assert.Equal(t, "mirror.example.com:2121", host)

	_, _, err = parseFTPURL("https://example.com/a.zip")
	require.Error(t, err)

	_, _, err = parseFTPURL("ftp://example.com")
	require.Error(t, err)
}

func TestWriteAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.bin")

	n, err := writeAtomic(strings.NewReader("abcdef"), path)
	require.NoError(t, err)
	assert.Equal(t, int64(6), n)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "abcdef", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
