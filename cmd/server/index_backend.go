package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"skirmish.gg/internal/persistence/indexdb"
	"skirmish.gg/internal/persistence/snapshot"
	"skirmish.gg/internal/sim/world"
)

type runtimeIndex interface {
	world.TickLogger
	world.DeliveryLogger
	Close() error
	RecordSnapshot(path string, snap snapshot.ArenaSnapshot)
	Leaderboard(ctx context.Context, limit int) ([]indexdb.LeaderboardRow, error)
	Stats() indexdb.Stats
}

func openRuntimeIndex(arenaDir, backend string, disableDB bool) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}
	backend = strings.ToLower(strings.TrimSpace(backend))
	if backend == "" {
		backend = "sqlite"
	}
	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		idx, err := indexdb.OpenSQLite(filepath.Join(arenaDir, "index", "arena.sqlite"))
		if err != nil {
			return nil, err
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("unsupported index backend: %s", backend)
	}
}
