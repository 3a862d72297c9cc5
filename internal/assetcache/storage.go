// Package assetcache implements a versioned, cache-first static asset cache.
//
// A Worker owns exactly one named cache. Install pre-caches a fixed asset
// manifest, Activate evicts every cache whose name differs from the current
// one, and Fetch answers requests from the cache before falling back to the
// network. Bumping the version embedded in the cache name is the only way to
// replace cached assets.
package assetcache

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
)

var (
	// ErrInvalidTransition is returned when a lifecycle event is not legal in the current state.
	ErrInvalidTransition = errors.New("assetcache: invalid lifecycle transition")
	// ErrAssetFetch wraps any failure to fetch a manifest asset during install.
	ErrAssetFetch = errors.New("assetcache: asset fetch failed")
	// ErrCacheNotFound is returned by storages when a named cache does not exist.
	ErrCacheNotFound = errors.New("assetcache: cache not found")
)

// Response is a stored, replayable HTTP response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Entry pairs a request key with the response stored for it.
type Entry struct {
	Key      string
	Response *Response
}

// Storage is the origin-wide set of named caches.
type Storage interface {
	// Open returns the named cache, creating it if absent.
	Open(ctx context.Context, name string) (Cache, error)
	// Keys lists cache names in creation order.
	Keys(ctx context.Context) ([]string, error)
	// Delete removes a cache and everything in it. It reports whether the cache existed.
	Delete(ctx context.Context, name string) (bool, error)
}

// Cache is a single named request/response store.
type Cache interface {
	Name() string
	// PutAll stores every entry or none of them.
	PutAll(ctx context.Context, entries []Entry) error
	Match(ctx context.Context, key string) (*Response, bool, error)
	Keys(ctx context.Context) ([]string, error)
}

// Fetcher is the network primitive.
type Fetcher interface {
	Fetch(ctx context.Context, req *http.Request) (*http.Response, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, req *http.Request) (*http.Response, error)

func (f FetcherFunc) Fetch(ctx context.Context, req *http.Request) (*http.Response, error) {
	return f(ctx, req)
}

// RequestKey returns the key a request is cached and matched under.
func RequestKey(r *http.Request) string {
	return r.URL.RequestURI()
}

// Cacheable reports whether the request method can be served from the cache.
func Cacheable(r *http.Request) bool {
	return r.Method == "" || r.Method == http.MethodGet
}

// ReadResponse drains and closes resp, returning a storable copy.
func ReadResponse(resp *http.Response) (*Response, error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return &Response{
		Status: resp.StatusCode,
		Header: resp.Header.Clone(),
		Body:   body,
	}, nil
}

// HTTPResponse materialises the stored response for req.
func (r *Response) HTTPResponse(req *http.Request) *http.Response {
	header := r.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	return &http.Response{
		Status:        strconv.Itoa(r.Status) + " " + http.StatusText(r.Status),
		StatusCode:    r.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(r.Body)),
		ContentLength: int64(len(r.Body)),
		Request:       req,
	}
}
