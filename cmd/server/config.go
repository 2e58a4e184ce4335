package main

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// envOverrides are deployment knobs read from the environment. Set values
// win over flags.
type envOverrides struct {
	Addr         string `env:"SKIRMISH_ADDR"`
	DataDir      string `env:"SKIRMISH_DATA_DIR"`
	TickRateHz   int    `env:"SKIRMISH_TICK_RATE_HZ"`
	DisableDB    *bool  `env:"SKIRMISH_DISABLE_DB"`
	IndexBackend string `env:"SKIRMISH_INDEX_BACKEND" envDefault:"sqlite"`
}

func parseEnv() (envOverrides, error) {
	var e envOverrides
	if err := env.Parse(&e); err != nil {
		return e, fmt.Errorf("parse env: %w", err)
	}
	return e, nil
}

type serverConfig struct {
	Addr          string
	ArenaID       string
	Seed          int64
	ConfigDir     string
	DataDir       string
	TuningPath    string
	PacksDir      string
	DisableDB     bool
	IndexBackend  string
	SnapshotPath  string
	LoadLatest    bool
	SnapshotEvery float64
	MaxPlayers    int
	TickRateHz    int
}

func (c *serverConfig) apply(e envOverrides) {
	if e.Addr != "" {
		c.Addr = e.Addr
	}
	if e.DataDir != "" {
		c.DataDir = e.DataDir
	}
	if e.TickRateHz > 0 {
		c.TickRateHz = e.TickRateHz
	}
	if e.DisableDB != nil {
		c.DisableDB = *e.DisableDB
	}
	if e.IndexBackend != "" {
		c.IndexBackend = e.IndexBackend
	}
}
