//go:build !noprom

package metrics

import (
	"testing"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromRecorder_CacheAndLifecycle(t *testing.T) {
	registry := prom.NewRegistry()
	p := newPromRecorder(registry)
	prev := Default()
	SetRecorder(p)
	defer SetRecorder(prev)

	Default().IncCacheLookup(true)
	Default().IncCacheLookup(true)
	Default().IncCacheLookup(false)
	Default().IncLifecycleEvent("install", true)
	Default().ObservePoolStats(2, 3)

	assert.Equal(t, 2.0, testutil.ToFloat64(p.cacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.cacheLookups.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.lifecycle.WithLabelValues("install", "true")))
	assert.Equal(t, 3.0, testutil.ToFloat64(p.pool.WithLabelValues("idle")))

	done := TimeOp("db_test_op")
	done(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(p.dbTotal.WithLabelValues("db_test_op", "true")))

	families, err := registry.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
