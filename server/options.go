// File: server/options.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import "log/slog"

type config struct {
	log         *slog.Logger
	statsPrefix string
}

func defaultConfig() config {
	return config{
		log:         slog.Default(),
		statsPrefix: "server",
	}
}

type Option func(*config)

// WithLogger sets the structured logger used by the accept server.
func WithLogger(log *slog.Logger) Option {
	return func(c *config) {
		if log != nil {
			c.log = log
		}
	}
}

// WithStatsPrefix sets the varz name prefix, letting several servers
// in one process report under distinct names.
func WithStatsPrefix(prefix string) Option {
	return func(c *config) { c.statsPrefix = prefix }
}
