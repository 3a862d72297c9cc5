package assetcache

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ZanzyTHEbar/people-network-go/internal/metrics"
)

// DefaultCacheName is the cache identifier of the currently deployed asset set.
const DefaultCacheName = "people-network-cache-v1"

// DefaultAssets is the manifest pre-cached on install.
var DefaultAssets = []string{
	"/",
	"/src/index.html",
	"/manifest.json",
	"/src/components/App.vue",
	"/src/components/ExportImportManager.vue",
	"/src/index.ts",
	"/src/style.css",
}

// Config identifies the cache version and the assets it holds.
type Config struct {
	CacheName string
	Assets    []string
}

// DefaultConfig returns the built-in cache name and manifest.
func DefaultConfig() Config {
	return Config{
		CacheName: DefaultCacheName,
		Assets:    append([]string(nil), DefaultAssets...),
	}
}

// Validate checks the cache name and manifest.
func (c Config) Validate() error {
	if strings.TrimSpace(c.CacheName) == "" {
		return errors.New("cache name cannot be empty")
	}
	if len(c.Assets) == 0 {
		return errors.New("asset manifest cannot be empty")
	}
	for _, a := range c.Assets {
		if !strings.HasPrefix(a, "/") {
			return fmt.Errorf("asset path %q must be origin-relative", a)
		}
	}
	return nil
}

// State is a worker lifecycle state.
type State int

const (
	StateUnregistered State = iota
	StateInstalling
	StateInstalled
	StateActivating
	StateActivated
)

func (s State) String() string {
	switch s {
	case StateUnregistered:
		return "unregistered"
	case StateInstalling:
		return "installing"
	case StateInstalled:
		return "installed"
	case StateActivating:
		return "activating"
	case StateActivated:
		return "activated"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Status is a point-in-time view of a worker.
type Status struct {
	CacheName string
	State     State
	Assets    []string
	Cached    []string
}

// Worker drives one cache version through install, activation and fetch handling.
type Worker struct {
	cfg     Config
	storage Storage
	fetcher Fetcher
	log     *zap.Logger

	mu    sync.RWMutex
	state State
	cache Cache
}

// NewWorker validates cfg and returns an unregistered worker.
func NewWorker(cfg Config, storage Storage, fetcher Fetcher, logger *zap.Logger) (*Worker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if storage == nil || fetcher == nil {
		return nil, errors.New("assetcache: storage and fetcher are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.Assets = append([]string(nil), cfg.Assets...)
	return &Worker{
		cfg:     cfg,
		storage: storage,
		fetcher: fetcher,
		log:     logger.With(zap.String("cache", cfg.CacheName)),
	}, nil
}

// CacheName returns the versioned cache identifier.
func (w *Worker) CacheName() string { return w.cfg.CacheName }

// State returns the current lifecycle state.
func (w *Worker) State() State {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

func (w *Worker) transition(from, to State) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != from {
		return fmt.Errorf("%w: %s -> %s from %s", ErrInvalidTransition, from, to, w.state)
	}
	w.state = to
	return nil
}

func (w *Worker) setState(s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

// Install opens the cache and stores every manifest asset in it. The
// responses are committed together; if any asset cannot be fetched nothing
// is committed and the worker returns to unregistered.
func (w *Worker) Install(ctx context.Context) (err error) {
	if err := w.transition(StateUnregistered, StateInstalling); err != nil {
		return err
	}
	defer func() {
		metrics.Default().IncLifecycleEvent("install", err == nil)
		if err != nil {
			w.setState(StateUnregistered)
			return
		}
		w.setState(StateInstalled)
	}()

	cache, err := w.storage.Open(ctx, w.cfg.CacheName)
	if err != nil {
		return fmt.Errorf("failed to open cache %s: %w", w.cfg.CacheName, err)
	}

	entries := make([]Entry, len(w.cfg.Assets))
	g, gctx := errgroup.WithContext(ctx)
	for i, asset := range w.cfg.Assets {
		g.Go(func() error {
			entry, err := w.fetchAsset(gctx, asset)
			if err != nil {
				return err
			}
			entries[i] = entry
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if err := cache.PutAll(ctx, entries); err != nil {
		return fmt.Errorf("failed to commit assets to %s: %w", w.cfg.CacheName, err)
	}
	w.mu.Lock()
	w.cache = cache
	w.mu.Unlock()
	w.log.Info("asset cache installed", zap.Int("assets", len(entries)))
	return nil
}

func (w *Worker) fetchAsset(ctx context.Context, asset string) (Entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, asset, nil)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: %s: %v", ErrAssetFetch, asset, err)
	}
	resp, err := w.fetcher.Fetch(ctx, req)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: %s: %v", ErrAssetFetch, asset, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return Entry{}, fmt.Errorf("%w: %s: status %d", ErrAssetFetch, asset, resp.StatusCode)
	}
	stored, err := ReadResponse(resp)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: %s: %v", ErrAssetFetch, asset, err)
	}
	return Entry{Key: RequestKey(req), Response: stored}, nil
}

// Activate deletes every cache except the current one. Deletions are
// independent; a failed deletion is logged and does not stop the rest.
func (w *Worker) Activate(ctx context.Context) (err error) {
	if err := w.transition(StateInstalled, StateActivating); err != nil {
		return err
	}
	defer func() {
		metrics.Default().IncLifecycleEvent("activate", err == nil)
		if err != nil {
			w.setState(StateInstalled)
			return
		}
		w.setState(StateActivated)
	}()

	names, err := w.storage.Keys(ctx)
	if err != nil {
		return fmt.Errorf("failed to list caches: %w", err)
	}

	for _, name := range names {
		if name == w.cfg.CacheName {
			continue
		}
		if _, err := w.storage.Delete(ctx, name); err != nil {
			w.log.Warn("failed to delete stale cache", zap.String("stale", name), zap.Error(err))
			continue
		}
		w.log.Info("deleted stale cache", zap.String("stale", name))
	}
	return nil
}

// Resume takes control with a cache committed by an earlier process. It
// succeeds only from unregistered, and only when the storage already holds
// a cache named CacheName whose keys cover every manifest asset. It reports
// whether the worker is now activated.
func (w *Worker) Resume(ctx context.Context) (resumed bool, err error) {
	if w.State() != StateUnregistered {
		return false, fmt.Errorf("%w: resume from %s", ErrInvalidTransition, w.State())
	}
	defer func() { metrics.Default().IncLifecycleEvent("resume", err == nil && resumed) }()

	names, err := w.storage.Keys(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to list caches: %w", err)
	}
	if !slices.Contains(names, w.cfg.CacheName) {
		return false, nil
	}
	cache, err := w.storage.Open(ctx, w.cfg.CacheName)
	if err != nil {
		return false, fmt.Errorf("failed to open cache %s: %w", w.cfg.CacheName, err)
	}
	keys, err := cache.Keys(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to list cached keys: %w", err)
	}
	for _, asset := range w.cfg.Assets {
		key, err := assetKey(asset)
		if err != nil {
			return false, err
		}
		if !slices.Contains(keys, key) {
			w.log.Info("stored cache is incomplete, not resuming", zap.String("missing", key))
			return false, nil
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != StateUnregistered {
		return false, fmt.Errorf("%w: resume from %s", ErrInvalidTransition, w.state)
	}
	w.cache = cache
	w.state = StateActivated
	w.log.Info("resumed stored asset cache", zap.Int("assets", len(keys)))
	return true, nil
}

func assetKey(asset string) (string, error) {
	req, err := http.NewRequest(http.MethodGet, asset, nil)
	if err != nil {
		return "", fmt.Errorf("invalid asset %q: %w", asset, err)
	}
	return RequestKey(req), nil
}

// Fetch answers req from the active cache when possible and otherwise calls
// the network exactly once, returning its response unmodified. Before
// activation every request goes to the network.
func (w *Worker) Fetch(ctx context.Context, req *http.Request) (*http.Response, error) {
	if w.State() == StateActivated && Cacheable(req) {
		if resp, ok := w.match(ctx, req); ok {
			metrics.Default().IncCacheLookup(true)
			return resp, nil
		}
		metrics.Default().IncCacheLookup(false)
	}
	return w.fetcher.Fetch(ctx, req)
}

func (w *Worker) activeCache() Cache {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.cache
}

func (w *Worker) match(ctx context.Context, req *http.Request) (*http.Response, bool) {
	cache := w.activeCache()
	if cache == nil {
		return nil, false
	}
	stored, ok, err := cache.Match(ctx, RequestKey(req))
	if err != nil {
		w.log.Warn("cache lookup failed, using network", zap.String("key", RequestKey(req)), zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	return stored.HTTPResponse(req), true
}

// Status reports the worker state and the keys held by its cache.
func (w *Worker) Status(ctx context.Context) (Status, error) {
	st := Status{
		CacheName: w.cfg.CacheName,
		State:     w.State(),
		Assets:    append([]string(nil), w.cfg.Assets...),
		Cached:    []string{},
	}
	cache := w.activeCache()
	if cache == nil {
		return st, nil
	}
	keys, err := cache.Keys(ctx)
	if err != nil {
		return st, fmt.Errorf("failed to list cached keys: %w", err)
	}
	st.Cached = keys
	return st, nil
}
