package config

import (
	"time"

	"github.com/urfave/cli/v3"
)

// Cache holds aggregation cache configuration
type Cache struct {
	TTL          time.Duration
	FetchTimeout time.Duration
}

// Flags returns CLI flags for cache configuration
func (c *Cache) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.DurationFlag{
			Name:        "cache-ttl",
			Usage:       "How long an aggregated page stays fresh",
			Value:       3 * time.Minute,
			Destination: &c.TTL,
			Sources:     cli.EnvVars("CHANGEBOARD_CACHE_TTL"),
		},
		&cli.DurationFlag{
			Name:        "fetch-timeout",
			Usage:       "Upper bound for one aggregation run",
			Value:       45 * time.Second,
			Destination: &c.FetchTimeout,
			Sources:     cli.EnvVars("CHANGEBOARD_FETCH_TIMEOUT"),
		},
	}
}
