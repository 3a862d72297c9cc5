// Package config assembles application settings from a .env file, the
// process environment and an optional YAML asset manifest.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ZanzyTHEbar/people-network-go/internal/assetcache"
	"github.com/ZanzyTHEbar/people-network-go/internal/database"
)

const (
	StoreLibSQL = "libsql"
	StoreMemory = "memory"

	defaultCachePrefix = "people-network-cache"
	defaultVersion     = "v1"
)

// Config is the full application configuration.
type Config struct {
	Env          string `validate:"required"`
	Addr         string `validate:"required"`
	Transport    string `validate:"oneof=stdio sse"`
	SSEEndpoint  string `validate:"startswith=/"`
	OriginURL    string `validate:"omitempty,url"`
	StaticDir    string
	IndexFile    string `validate:"required"`
	OfflineCache bool
	CacheStore   string `validate:"oneof=libsql memory"`
	ManifestPath string
	CORSOrigins  []string

	Cache assetcache.Config `validate:"-"`
	DB    *database.Config  `validate:"-"`
}

// Manifest is the on-disk description of a cache version.
type Manifest struct {
	CachePrefix string   `yaml:"cachePrefix"`
	Version     string   `yaml:"version"`
	Assets      []string `yaml:"assets"`
}

// CacheName joins prefix and version, e.g. people-network-cache-v1.
func (m Manifest) CacheName() string {
	prefix := m.CachePrefix
	if prefix == "" {
		prefix = defaultCachePrefix
	}
	version := m.Version
	if version == "" {
		version = defaultVersion
	}
	return prefix + "-" + version
}

// Load reads .env (if present) and the environment. A missing .env file is
// not an error.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}

	cfg := &Config{
		Env:          envString("APP_ENV", "development"),
		Addr:         envString("ADDR", ":8080"),
		Transport:    envString("TRANSPORT", "sse"),
		SSEEndpoint:  envString("SSE_ENDPOINT", "/sse"),
		OriginURL:    os.Getenv("ASSET_ORIGIN_URL"),
		StaticDir:    envString("STATIC_DIR", "./public"),
		IndexFile:    envString("INDEX_FILE", "index.html"),
		OfflineCache: envBool("OFFLINE_CACHE_ENABLED", true),
		CacheStore:   envString("CACHE_STORE", StoreLibSQL),
		ManifestPath: os.Getenv("ASSET_MANIFEST"),
		CORSOrigins:  envList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		Cache:        assetcache.DefaultConfig(),
		DB:           database.NewConfig(),
	}
	if v := os.Getenv("CACHE_VERSION"); v != "" {
		cfg.Cache.CacheName = Manifest{Version: v}.CacheName()
	}
	if cfg.ManifestPath != "" {
		cache, err := LoadManifest(cfg.ManifestPath)
		if err != nil {
			return nil, err
		}
		cfg.Cache = cache
	}
	return cfg, nil
}

// Validate checks field constraints and the cache configuration.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("invalid cache configuration: %w", err)
	}
	if c.OfflineCache && c.OriginURL == "" && c.StaticDir == "" {
		return errors.New("offline cache needs ASSET_ORIGIN_URL or STATIC_DIR")
	}
	return nil
}

// LoadManifest parses a YAML manifest into a cache configuration.
func LoadManifest(path string) (assetcache.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return assetcache.Config{}, fmt.Errorf("failed to read manifest: %w", err)
	}
	return ParseManifest(data)
}

// ParseManifest decodes manifest YAML. An empty asset list falls back to
// the built-in manifest.
func ParseManifest(data []byte) (assetcache.Config, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return assetcache.Config{}, fmt.Errorf("failed to parse manifest: %w", err)
	}
	cfg := assetcache.Config{CacheName: m.CacheName(), Assets: m.Assets}
	if len(cfg.Assets) == 0 {
		cfg.Assets = append([]string(nil), assetcache.DefaultAssets...)
	}
	if err := cfg.Validate(); err != nil {
		return assetcache.Config{}, err
	}
	return cfg, nil
}

func envString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envList(key string, def []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
