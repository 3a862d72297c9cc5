package network

import (
	"github.com/ZanzyTHEbar/people-network-go/internal/database"
)

// Config exposes a stable wrapper for database configuration in package mode.
// Fields map directly to internal/database.Config.
type Config struct {
	URL            string
	AuthToken      string
	MaxOpenConns   int
	MaxIdleConns   int
	ConnMaxIdleSec int
	ConnMaxLifeSec int
}

func (c *Config) toInternal() *database.Config {
	if c == nil {
		return database.NewConfig()
	}
	return &database.Config{
		URL:            c.URL,
		AuthToken:      c.AuthToken,
		MaxOpenConns:   c.MaxOpenConns,
		MaxIdleConns:   c.MaxIdleConns,
		ConnMaxIdleSec: c.ConnMaxIdleSec,
		ConnMaxLifeSec: c.ConnMaxLifeSec,
	}
}
