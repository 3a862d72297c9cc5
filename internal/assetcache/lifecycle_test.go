package assetcache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeNetwork serves fixed bodies by path and counts calls.
type fakeNetwork struct {
	mu     sync.Mutex
	bodies map[string]string
	fail   map[string]error
	calls  atomic.Int32
	seen   []string
}

func newFakeNetwork(bodies map[string]string) *fakeNetwork {
	return &fakeNetwork{bodies: bodies, fail: map[string]error{}}
}

func (n *fakeNetwork) Fetch(ctx context.Context, req *http.Request) (*http.Response, error) {
	n.calls.Add(1)
	key := RequestKey(req)
	n.mu.Lock()
	n.seen = append(n.seen, key)
	err := n.fail[key]
	body, ok := n.bodies[key]
	n.mu.Unlock()
	if err != nil {
		return nil, err
	}
	status := http.StatusOK
	if !ok {
		status = http.StatusNotFound
		body = "not found"
	}
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"X-Source": []string{"network"}},
		Body:       io.NopCloser(strings.NewReader(body)),
		Request:    req,
	}, nil
}

func newRequest(t *testing.T, method, target string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(method, target, nil)
	require.NoError(t, err)
	return req
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func installAndActivate(t *testing.T, w *Worker) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, w.Install(ctx))
	require.NoError(t, w.Activate(ctx))
}

func TestInstall_CachesEveryAsset(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	network := newFakeNetwork(map[string]string{"/": "<html>", "/a.js": "console.log(1)"})
	w, err := NewWorker(Config{CacheName: "people-network-cache-v1", Assets: []string{"/", "/a.js"}}, storage, network, nil)
	require.NoError(t, err)

	require.NoError(t, w.Install(ctx))
	assert.Equal(t, StateInstalled, w.State())

	cache, err := storage.Open(ctx, "people-network-cache-v1")
	require.NoError(t, err)
	for path, body := range map[string]string{"/": "<html>", "/a.js": "console.log(1)"} {
		resp, ok, err := cache.Match(ctx, path)
		require.NoError(t, err)
		require.True(t, ok, path)
		assert.Equal(t, body, string(resp.Body))
	}
}

func TestInstall_AssetFailureCommitsNothing(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	network := newFakeNetwork(map[string]string{"/": "<html>"})
	w, err := NewWorker(Config{CacheName: "c-v1", Assets: []string{"/", "/missing.js"}}, storage, network, nil)
	require.NoError(t, err)

	err = w.Install(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAssetFetch)
	assert.Equal(t, StateUnregistered, w.State())

	cache, err := storage.Open(ctx, "c-v1")
	require.NoError(t, err)
	keys, err := cache.Keys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)

	// A later attempt succeeds once the asset is deployed.
	network.mu.Lock()
	network.bodies["/missing.js"] = "ok"
	network.mu.Unlock()
	require.NoError(t, w.Install(ctx))
	assert.Equal(t, StateInstalled, w.State())
}

func TestInstall_TransportErrorFails(t *testing.T) {
	network := newFakeNetwork(map[string]string{"/": "x"})
	network.fail["/"] = errors.New("connection refused")
	w, err := NewWorker(Config{CacheName: "c-v1", Assets: []string{"/"}}, NewMemoryStorage(), network, nil)
	require.NoError(t, err)
	err = w.Install(context.Background())
	assert.ErrorIs(t, err, ErrAssetFetch)
	assert.ErrorContains(t, err, "connection refused")
}

func TestActivate_EvictsStaleCaches(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	_, err := storage.Open(ctx, "people-network-cache-v1")
	require.NoError(t, err)
	_, err = storage.Open(ctx, "unrelated")
	require.NoError(t, err)

	network := newFakeNetwork(map[string]string{"/": "v2"})
	w, err := NewWorker(Config{CacheName: "people-network-cache-v2", Assets: []string{"/"}}, storage, network, nil)
	require.NoError(t, err)
	installAndActivate(t, w)

	keys, err := storage.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"people-network-cache-v2"}, keys)
	assert.Equal(t, StateActivated, w.State())
}

// countingStorage records deletions and can fail selected ones.
type countingStorage struct {
	*MemoryStorage
	deletes  atomic.Int32
	failures map[string]bool
}

func (s *countingStorage) Delete(ctx context.Context, name string) (bool, error) {
	s.deletes.Add(1)
	if s.failures[name] {
		return false, errors.New("disk busy")
	}
	return s.MemoryStorage.Delete(ctx, name)
}

func TestActivate_DeletionFailureDoesNotAbort(t *testing.T) {
	ctx := context.Background()
	storage := &countingStorage{MemoryStorage: NewMemoryStorage(), failures: map[string]bool{"old-a": true}}
	for _, n := range []string{"old-a", "old-b", "old-c"} {
		_, err := storage.Open(ctx, n)
		require.NoError(t, err)
	}
	w, err := NewWorker(Config{CacheName: "current", Assets: []string{"/"}}, storage, newFakeNetwork(map[string]string{"/": "x"}), nil)
	require.NoError(t, err)
	installAndActivate(t, w)

	keys, err := storage.Keys(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"old-a", "current"}, keys)
	assert.Equal(t, int32(3), storage.deletes.Load())
}

func TestActivate_IdempotentWithOnlyCurrentCache(t *testing.T) {
	ctx := context.Background()
	storage := &countingStorage{MemoryStorage: NewMemoryStorage()}
	w, err := NewWorker(Config{CacheName: "current", Assets: []string{"/"}}, storage, newFakeNetwork(map[string]string{"/": "x"}), nil)
	require.NoError(t, err)
	installAndActivate(t, w)
	assert.Equal(t, int32(0), storage.deletes.Load())

	// A second worker for the same version finds nothing to evict either.
	w2, err := NewWorker(Config{CacheName: "current", Assets: []string{"/"}}, storage, newFakeNetwork(map[string]string{"/": "x"}), nil)
	require.NoError(t, err)
	installAndActivate(t, w2)
	assert.Equal(t, int32(0), storage.deletes.Load())

	keys, err := storage.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"current"}, keys)
}

func TestLifecycle_InvalidTransitions(t *testing.T) {
	ctx := context.Background()
	w, err := NewWorker(Config{CacheName: "c", Assets: []string{"/"}}, NewMemoryStorage(), newFakeNetwork(map[string]string{"/": "x"}), nil)
	require.NoError(t, err)

	assert.ErrorIs(t, w.Activate(ctx), ErrInvalidTransition)
	require.NoError(t, w.Install(ctx))
	assert.ErrorIs(t, w.Install(ctx), ErrInvalidTransition)
	require.NoError(t, w.Activate(ctx))
	assert.ErrorIs(t, w.Activate(ctx), ErrInvalidTransition)
}

func TestFetch_CacheFirst(t *testing.T) {
	network := newFakeNetwork(map[string]string{"/": "<html>", "/a.js": "cached-js"})
	w, err := NewWorker(Config{CacheName: "c-v1", Assets: []string{"/", "/a.js"}}, NewMemoryStorage(), network, nil)
	require.NoError(t, err)
	installAndActivate(t, w)
	before := network.calls.Load()

	// Origin content changes; the cached copy keeps being served.
	network.mu.Lock()
	network.bodies["/a.js"] = "fresh-js"
	network.mu.Unlock()

	resp, err := w.Fetch(context.Background(), newRequest(t, http.MethodGet, "/a.js"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "cached-js", readBody(t, resp))
	assert.Equal(t, before, network.calls.Load())
}

func TestFetch_MissFallsBackToNetworkOnce(t *testing.T) {
	network := newFakeNetwork(map[string]string{"/": "<html>", "/missing.js": "from-network"})
	w, err := NewWorker(Config{CacheName: "c-v1", Assets: []string{"/"}}, NewMemoryStorage(), network, nil)
	require.NoError(t, err)
	installAndActivate(t, w)
	before := network.calls.Load()

	resp, err := w.Fetch(context.Background(), newRequest(t, http.MethodGet, "/missing.js"))
	require.NoError(t, err)
	assert.Equal(t, "from-network", readBody(t, resp))
	assert.Equal(t, "network", resp.Header.Get("X-Source"))
	assert.Equal(t, before+1, network.calls.Load())
}

func TestFetch_MissAndNetworkFailureSurfacesError(t *testing.T) {
	network := newFakeNetwork(map[string]string{"/": "<html>"})
	w, err := NewWorker(Config{CacheName: "c-v1", Assets: []string{"/"}}, NewMemoryStorage(), network, nil)
	require.NoError(t, err)
	installAndActivate(t, w)
	network.fail["/offline.js"] = errors.New("network down")

	_, err = w.Fetch(context.Background(), newRequest(t, http.MethodGet, "/offline.js"))
	assert.ErrorContains(t, err, "network down")
}

func TestFetch_OverlappingRequestsAreIndependent(t *testing.T) {
	bodies := map[string]string{"/": "<html>", "/a.js": "a", "/b.css": "b"}
	for i := 0; i < 8; i++ {
		bodies[fmt.Sprintf("/miss-%d.js", i)] = fmt.Sprintf("miss-%d", i)
	}
	network := newFakeNetwork(bodies)
	w, err := NewWorker(Config{CacheName: "c-v1", Assets: []string{"/", "/a.js", "/b.css"}}, NewMemoryStorage(), network, nil)
	require.NoError(t, err)
	installAndActivate(t, w)

	network.mu.Lock()
	network.seen = nil
	network.mu.Unlock()
	before := network.calls.Load()

	hits := []string{"/", "/a.js", "/b.css"}
	var wg sync.WaitGroup
	for round := 0; round < 4; round++ {
		for _, p := range hits {
			wg.Add(1)
			go func(p string) {
				defer wg.Done()
				resp, err := w.Fetch(context.Background(), newRequest(t, http.MethodGet, p))
				if !assert.NoError(t, err) {
					return
				}
				defer resp.Body.Close()
				body, err := io.ReadAll(resp.Body)
				assert.NoError(t, err)
				assert.Equal(t, bodies[p], string(body))
			}(p)
		}
	}
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(p string) {
			defer wg.Done()
			resp, err := w.Fetch(context.Background(), newRequest(t, http.MethodGet, p))
			if !assert.NoError(t, err) {
				return
			}
			defer resp.Body.Close()
			body, err := io.ReadAll(resp.Body)
			assert.NoError(t, err)
			assert.Equal(t, bodies[p], string(body))
		}(fmt.Sprintf("/miss-%d.js", i))
	}
	wg.Wait()

	assert.Equal(t, before+8, network.calls.Load())
	network.mu.Lock()
	defer network.mu.Unlock()
	seen := make(map[string]int)
	for _, k := range network.seen {
		seen[k]++
	}
	for i := 0; i < 8; i++ {
		assert.Equal(t, 1, seen[fmt.Sprintf("/miss-%d.js", i)])
	}
	for _, p := range hits {
		assert.Zero(t, seen[p])
	}
}

func TestResume_AdoptsCompleteStoredCache(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	cfg := Config{CacheName: "c-v1", Assets: []string{"/", "/a.js"}}
	first, err := NewWorker(cfg, storage, newFakeNetwork(map[string]string{"/": "<html>", "/a.js": "a"}), nil)
	require.NoError(t, err)
	installAndActivate(t, first)

	network := newFakeNetwork(nil)
	network.fail["/"] = errors.New("origin unreachable")
	network.fail["/a.js"] = errors.New("origin unreachable")
	second, err := NewWorker(cfg, storage, network, nil)
	require.NoError(t, err)
	require.ErrorIs(t, second.Install(ctx), ErrAssetFetch)

	resumed, err := second.Resume(ctx)
	require.NoError(t, err)
	require.True(t, resumed)
	assert.Equal(t, StateActivated, second.State())

	before := network.calls.Load()
	resp, err := second.Fetch(ctx, newRequest(t, http.MethodGet, "/a.js"))
	require.NoError(t, err)
	assert.Equal(t, "a", readBody(t, resp))
	assert.Equal(t, before, network.calls.Load())

	_, err = second.Resume(ctx)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestResume_RequiresCompleteCache(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	network := newFakeNetwork(map[string]string{"/": "<html>"})

	w, err := NewWorker(Config{CacheName: "c-v1", Assets: []string{"/"}}, storage, network, nil)
	require.NoError(t, err)
	resumed, err := w.Resume(ctx)
	require.NoError(t, err)
	assert.False(t, resumed, "no stored cache")

	// a failed install leaves an empty cache behind
	w2, err := NewWorker(Config{CacheName: "c-v2", Assets: []string{"/", "/gone.js"}}, storage, network, nil)
	require.NoError(t, err)
	require.Error(t, w2.Install(ctx))
	resumed, err = w2.Resume(ctx)
	require.NoError(t, err)
	assert.False(t, resumed)
	assert.Equal(t, StateUnregistered, w2.State())
}

func TestFetch_BeforeActivationAndNonGETUseNetwork(t *testing.T) {
	network := newFakeNetwork(map[string]string{"/": "<html>"})
	w, err := NewWorker(Config{CacheName: "c-v1", Assets: []string{"/"}}, NewMemoryStorage(), network, nil)
	require.NoError(t, err)
	require.NoError(t, w.Install(context.Background()))

	_, err = w.Fetch(context.Background(), newRequest(t, http.MethodGet, "/"))
	require.NoError(t, err)
	require.NoError(t, w.Activate(context.Background()))
	calls := network.calls.Load()

	_, err = w.Fetch(context.Background(), newRequest(t, http.MethodPost, "/"))
	require.NoError(t, err)
	assert.Equal(t, calls+1, network.calls.Load())
}

func TestVersionBump_ReplacesCache(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	network := newFakeNetwork(map[string]string{"/": "root", "/a.js": "a", "/b.js": "b"})

	v1, err := NewWorker(Config{CacheName: "people-network-cache-v1", Assets: []string{"/", "/a.js"}}, storage, network, nil)
	require.NoError(t, err)
	installAndActivate(t, v1)

	v2, err := NewWorker(Config{CacheName: "people-network-cache-v2", Assets: []string{"/", "/b.js"}}, storage, network, nil)
	require.NoError(t, err)
	installAndActivate(t, v2)

	names, err := storage.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"people-network-cache-v2"}, names)

	st, err := v2.Status(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"/", "/b.js"}, st.Cached)
	assert.Equal(t, StateActivated, st.State)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.Error(t, Config{Assets: []string{"/"}}.Validate())
	assert.Error(t, Config{CacheName: "c"}.Validate())
	assert.Error(t, Config{CacheName: "c", Assets: []string{"a.js"}}.Validate())
}
