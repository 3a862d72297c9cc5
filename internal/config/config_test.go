package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/people-network-go/internal/assetcache"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"APP_ENV", "ADDR", "TRANSPORT", "CACHE_STORE", "ASSET_MANIFEST", "CACHE_VERSION", "OFFLINE_CACHE_ENABLED", "CORS_ALLOWED_ORIGINS"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "sse", cfg.Transport)
	assert.Equal(t, StoreLibSQL, cfg.CacheStore)
	assert.True(t, cfg.OfflineCache)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Equal(t, assetcache.DefaultCacheName, cfg.Cache.CacheName)
	require.NoError(t, cfg.Validate())
}

func TestLoad_EnvFileAndOverrides(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("CACHE_STORE=memory\nCACHE_VERSION=v2\n"), 0o600))
	t.Setenv("OFFLINE_CACHE_ENABLED", "false")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://localhost:5173, https://people.example ,")
	t.Setenv("ASSET_MANIFEST", "")
	// godotenv never overrides variables already present
	t.Setenv("CACHE_STORE", "")
	os.Unsetenv("CACHE_STORE")
	t.Setenv("CACHE_VERSION", "")
	os.Unsetenv("CACHE_VERSION")

	cfg, err := Load(envFile)
	require.NoError(t, err)
	assert.Equal(t, StoreMemory, cfg.CacheStore)
	assert.Equal(t, "people-network-cache-v2", cfg.Cache.CacheName)
	assert.False(t, cfg.OfflineCache)
	assert.Equal(t, []string{"http://localhost:5173", "https://people.example"}, cfg.CORSOrigins)
}

func TestParseManifest(t *testing.T) {
	cfg, err := ParseManifest([]byte(`
cachePrefix: people-network-cache
version: v3
assets:
  - /
  - /src/index.ts
`))
	require.NoError(t, err)
	assert.Equal(t, "people-network-cache-v3", cfg.CacheName)
	assert.Equal(t, []string{"/", "/src/index.ts"}, cfg.Assets)

	cfg, err = ParseManifest([]byte("version: v9\n"))
	require.NoError(t, err)
	assert.Equal(t, "people-network-cache-v9", cfg.CacheName)
	assert.Equal(t, assetcache.DefaultAssets, cfg.Assets)

	_, err = ParseManifest([]byte("assets: [relative.js]\n"))
	assert.Error(t, err)

	_, err = ParseManifest([]byte("assets: {"))
	assert.Error(t, err)
}

func TestLoadManifest_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "assets.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: v4\nassets: [/]\n"), 0o600))
	t.Setenv("ASSET_MANIFEST", path)

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, "people-network-cache-v4", cfg.Cache.CacheName)
	assert.Equal(t, []string{"/"}, cfg.Cache.Assets)

	_, err = LoadManifest(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := &Config{
		Env: "development", Addr: ":0", Transport: "carrier-pigeon", SSEEndpoint: "/sse",
		IndexFile: "index.html", CacheStore: StoreMemory, Cache: assetcache.DefaultConfig(),
	}
	assert.Error(t, cfg.Validate())

	cfg.Transport = "stdio"
	cfg.OfflineCache = true
	assert.Error(t, cfg.Validate(), "offline cache without an asset source")

	cfg.StaticDir = "./public"
	assert.NoError(t, cfg.Validate())

	cfg.OriginURL = "not a url"
	assert.Error(t, cfg.Validate())
}
