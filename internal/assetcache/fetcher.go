package assetcache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// OriginFetcher forwards requests to an origin server.
type OriginFetcher struct {
	base   *url.URL
	client *http.Client
	cb     *gobreaker.CircuitBreaker
}

// BreakerConfig tunes the circuit breaker guarding origin requests.
type BreakerConfig struct {
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold float64
	MinRequests      uint32
}

// DefaultBreakerConfig returns the breaker settings used when none are given.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:      5,
		Interval:         30 * time.Second,
		Timeout:          60 * time.Second,
		FailureThreshold: 0.8,
		MinRequests:      5,
	}
}

// NewOriginFetcher returns a fetcher resolving request URIs against baseURL.
// Only transport errors count against the breaker; any status code the
// origin returns is passed through unchanged.
func NewOriginFetcher(baseURL string, client *http.Client, bc BreakerConfig, logger *zap.Logger) (*OriginFetcher, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid origin url %q: %w", baseURL, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("origin url %q must be absolute", baseURL)
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "origin:" + base.Host,
		MaxRequests: bc.MaxRequests,
		Interval:    bc.Interval,
		Timeout:     bc.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < bc.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= bc.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("origin circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return &OriginFetcher{base: base, client: client, cb: cb}, nil
}

func (f *OriginFetcher) Fetch(ctx context.Context, req *http.Request) (*http.Response, error) {
	target := *f.base
	target.Path = strings.TrimSuffix(f.base.Path, "/") + req.URL.Path
	target.RawPath = ""
	target.RawQuery = req.URL.RawQuery
	out, err := http.NewRequestWithContext(ctx, methodOrGet(req.Method), target.String(), req.Body)
	if err != nil {
		return nil, err
	}
	out.Header = req.Header.Clone()
	if out.Header == nil {
		out.Header = make(http.Header)
	}
	out.Header.Del("Connection")
	out.ContentLength = req.ContentLength

	res, err := f.cb.Execute(func() (interface{}, error) {
		return f.client.Do(out)
	})
	if err != nil {
		return nil, err
	}
	return res.(*http.Response), nil
}

func methodOrGet(m string) string {
	if m == "" {
		return http.MethodGet
	}
	return m
}

// FSFetcher serves requests from a static build directory. Missing files
// produce 404 responses rather than errors.
type FSFetcher struct {
	fsys  fs.FS
	index string
}

// NewFSFetcher returns a fetcher over fsys; "/" and directory paths map to index.
func NewFSFetcher(fsys fs.FS, index string) *FSFetcher {
	if index == "" {
		index = "index.html"
	}
	return &FSFetcher{fsys: fsys, index: index}
}

func (f *FSFetcher) Fetch(ctx context.Context, req *http.Request) (*http.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m := methodOrGet(req.Method); m != http.MethodGet && m != http.MethodHead {
		return f.respond(req, http.StatusMethodNotAllowed, "", nil), nil
	}
	name := strings.TrimPrefix(path.Clean("/"+req.URL.Path), "/")
	if name == "" || strings.HasSuffix(req.URL.Path, "/") {
		name = path.Join(name, f.index)
	} else if fi, err := fs.Stat(f.fsys, name); err == nil && fi.IsDir() {
		name = path.Join(name, f.index)
	}
	data, err := fs.ReadFile(f.fsys, name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return f.respond(req, http.StatusNotFound, "text/plain; charset=utf-8", []byte("404 page not found\n")), nil
		}
		return nil, err
	}
	ctype := mime.TypeByExtension(path.Ext(name))
	if ctype == "" {
		ctype = http.DetectContentType(data)
	}
	if methodOrGet(req.Method) == http.MethodHead {
		data = nil
	}
	return f.respond(req, http.StatusOK, ctype, data), nil
}

func (f *FSFetcher) respond(req *http.Request, status int, ctype string, body []byte) *http.Response {
	header := make(http.Header)
	if ctype != "" {
		header.Set("Content-Type", ctype)
	}
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", status, http.StatusText(status)),
		StatusCode:    status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}
