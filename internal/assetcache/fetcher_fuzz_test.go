package assetcache

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"testing/fstest"
)

// FuzzFSFetcher_Path checks that arbitrary paths never escape the file
// system or produce an error for a readable tree.
func FuzzFSFetcher_Path(f *testing.F) {
	for _, seed := range []string{"/", "/index.html", "/../../etc/passwd", "/src//index.ts", "/src/", "/src", "/%2e%2e/x", ""} {
		f.Add(seed)
	}
	fsys := fstest.MapFS{
		"index.html":   {Data: []byte("<html>")},
		"src/index.ts": {Data: []byte("export {}")},
	}
	fetcher := NewFSFetcher(fsys, "index.html")

	f.Fuzz(func(t *testing.T, p string) {
		req := &http.Request{Method: http.MethodGet, URL: &url.URL{Path: p}}
		resp, err := fetcher.Fetch(context.Background(), req)
		if err != nil {
			t.Fatalf("fetch %q: %v", p, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotFound {
			t.Fatalf("fetch %q: unexpected status %d", p, resp.StatusCode)
		}
	})
}
