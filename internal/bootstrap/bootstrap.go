// Package bootstrap wires the HTTP root of the application and starts the
// asset cache worker in the background.
package bootstrap

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/ZanzyTHEbar/people-network-go/internal/assetcache"
	"github.com/ZanzyTHEbar/people-network-go/internal/logging"
	"github.com/ZanzyTHEbar/people-network-go/internal/server"
)

// ErrOfflineCacheDisabled is reported by a registration that was skipped.
var ErrOfflineCacheDisabled = errors.New("offline cache is disabled")

// App holds what the HTTP root needs. Worker is required; MCP is optional.
type App struct {
	Worker        *assetcache.Worker
	MCP           *server.MCPServer
	OfflineCache  bool
	SSEEndpoint   string
	CORSOrigins   []string
	RetryInterval time.Duration // first delay between failed installs; zero disables retries
	Logger        *zap.Logger
}

const maxRetryInterval = 5 * time.Minute

// Mount builds the root router. It never waits on registration.
func (a *App) Mount() http.Handler {
	log := logging.OrNop(a.Logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: a.origins(),
		AllowedMethods: []string{"GET", "HEAD", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/_cache/status", a.handleCacheStatus)

	if a.MCP != nil {
		endpoint := a.SSEEndpoint
		if endpoint == "" {
			endpoint = "/sse"
		}
		r.Handle(endpoint, a.MCP.Handler())
	}

	// everything unrouted goes through the asset cache
	assets := assetcache.NewHandler(a.Worker, log)
	r.NotFound(assets.ServeHTTP)
	r.MethodNotAllowed(assets.ServeHTTP)
	return r
}

func (a *App) origins() []string {
	if len(a.CORSOrigins) == 0 {
		return []string{"*"}
	}
	return a.CORSOrigins
}

func (a *App) handleCacheStatus(w http.ResponseWriter, r *http.Request) {
	res, err := server.CacheStatus(r.Context(), a.Worker)
	if err != nil {
		logging.OrNop(a.Logger).Warn("cache status failed", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(res)
}

// Registration tracks a background install and activate run.
type Registration struct {
	done chan struct{}
	once sync.Once
	err  error
}

// Done is closed when registration finishes.
func (r *Registration) Done() <-chan struct{} { return r.done }

// Err returns the registration outcome once Done is closed.
func (r *Registration) Err() error {
	<-r.done
	return r.err
}

func (r *Registration) finish(err error) {
	r.once.Do(func() {
		r.err = err
		close(r.done)
	})
}

// Register installs and activates the worker on a detached goroutine.
// Callers are not expected to wait on the result. When install fails the
// worker resumes a complete cache left by an earlier run, if one exists;
// otherwise, with RetryInterval set, install is retried with backoff until
// ctx is done.
func (a *App) Register(ctx context.Context) *Registration {
	log := logging.OrNop(a.Logger)
	reg := &Registration{done: make(chan struct{})}

	if !a.OfflineCache || a.Worker == nil {
		log.Info("offline cache disabled, skipping worker registration")
		reg.finish(ErrOfflineCacheDisabled)
		return reg
	}

	go func() {
		log := log.With(zap.String("cache", a.Worker.CacheName()))
		delay := a.RetryInterval
		for {
			err := a.register(ctx, log)
			if err == nil || delay <= 0 || a.Worker.State() != assetcache.StateUnregistered {
				reg.finish(err)
				return
			}
			log.Info("retrying asset cache install", zap.Duration("in", delay))
			select {
			case <-ctx.Done():
				reg.finish(err)
				return
			case <-time.After(delay):
			}
			delay = min(delay*2, maxRetryInterval)
		}
	}()
	return reg
}

func (a *App) register(ctx context.Context, log *zap.Logger) error {
	err := a.Worker.Install(ctx)
	if err == nil {
		err = a.Worker.Activate(ctx)
	}
	if err == nil {
		log.Info("asset cache registered")
		return nil
	}
	if a.Worker.State() == assetcache.StateUnregistered {
		resumed, rerr := a.Worker.Resume(ctx)
		if rerr != nil {
			log.Warn("resuming stored asset cache failed", zap.Error(rerr))
		}
		if resumed {
			log.Warn("asset cache install failed, serving stored cache", zap.Error(err))
			return nil
		}
	}
	log.Error("asset cache registration failed", zap.Error(err))
	return err
}
