package assetcache

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandler_ServesCachedAndNetwork(t *testing.T) {
	network := newFakeNetwork(map[string]string{"/": "<html>cached</html>", "/api/ping": "pong"})
	w, err := NewWorker(Config{CacheName: "c-v1", Assets: []string{"/"}}, NewMemoryStorage(), network, nil)
	require.NoError(t, err)
	installAndActivate(t, w)
	h := NewHandler(w, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<html>cached</html>", rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/ping", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pong", rec.Body.String())
	assert.Equal(t, "network", rec.Header().Get("X-Source"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope.js", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_NetworkFailureIsBadGateway(t *testing.T) {
	network := newFakeNetwork(map[string]string{"/": "x"})
	network.fail["/down"] = errors.New("dial tcp: connection refused")
	w, err := NewWorker(Config{CacheName: "c-v1", Assets: []string{"/"}}, NewMemoryStorage(), network, nil)
	require.NoError(t, err)
	installAndActivate(t, w)

	rec := httptest.NewRecorder()
	NewHandler(w, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/down", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

func TestHandler_DropsHopByHopHeaders(t *testing.T) {
	network := FetcherFunc(func(_ context.Context, req *http.Request) (*http.Response, error) {
		h := http.Header{}
		h.Set("Content-Type", "text/css")
		h.Set("X-Source", "network")
		h.Set("Connection", "keep-alive, X-Trace-Hop")
		h.Set("Keep-Alive", "timeout=5")
		h.Set("Upgrade", "websocket")
		h.Set("Transfer-Encoding", "chunked")
		h.Set("X-Trace-Hop", "edge-1")
		return &http.Response{
			StatusCode: http.StatusOK,
			Header:     h,
			Body:       io.NopCloser(strings.NewReader("body{}")),
			Request:    req,
		}, nil
	})
	w, err := NewWorker(Config{CacheName: "c-v1", Assets: []string{"/site.css"}}, NewMemoryStorage(), network, nil)
	require.NoError(t, err)

	h := NewHandler(w, nil)
	for _, activated := range []bool{false, true} {
		if activated {
			installAndActivate(t, w)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/site.css", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "body{}", rec.Body.String())
		assert.Equal(t, "text/css", rec.Header().Get("Content-Type"))
		assert.Equal(t, "network", rec.Header().Get("X-Source"))
		for _, name := range []string{"Connection", "Keep-Alive", "Upgrade", "Transfer-Encoding", "X-Trace-Hop"} {
			assert.Empty(t, rec.Header().Values(name), "activated=%v header %s", activated, name)
		}
	}
}
