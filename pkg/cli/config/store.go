package config

import "github.com/urfave/cli/v3"

// Store holds database configuration
type Store struct {
	DBPath string
}

// Flags returns CLI flags for database configuration
func (c *Store) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "db",
			Usage:       "Path to the sqlite database",
			Value:       "changeboard.db",
			Destination: &c.DBPath,
			Sources:     cli.EnvVars("CHANGEBOARD_DB"),
		},
	}
}
