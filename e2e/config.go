// Package e2e drives the whole messaging stack in one process: Badger
// store, supervised fanout, projections, search sink and sessions.
package e2e

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// E2E_BADGER_DIR overrides the store location; empty uses a
	// test-scoped temporary directory.
	BadgerDir string `envconfig:"E2E_BADGER_DIR"`
	// E2E_BLUGE_DIR overrides the search index location; empty keeps the
	// index in memory.
	BlugeDir string `envconfig:"E2E_BLUGE_DIR"`
	// E2E_EVENT_BUFFER sizes the realtime channel.
	EventBuffer int `envconfig:"E2E_EVENT_BUFFER" default:"64"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
