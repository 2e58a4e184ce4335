package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"skirmish.gg/internal/persistence/itempack"
	persistlog "skirmish.gg/internal/persistence/log"
	"skirmish.gg/internal/persistence/snapshot"
	"skirmish.gg/internal/sim/tuning"
	"skirmish.gg/internal/sim/world"
)

func main() {
	var cfg serverConfig
	flag.StringVar(&cfg.Addr, "addr", ":8080", "http listen address")
	flag.StringVar(&cfg.ArenaID, "arena", "arena_1", "arena id")
	flag.Int64Var(&cfg.Seed, "seed", 1337, "arena seed (used only when starting a fresh arena)")
	flag.StringVar(&cfg.ConfigDir, "configs", "./configs", "config directory")
	flag.StringVar(&cfg.DataDir, "data", "./data", "runtime data directory")
	flag.StringVar(&cfg.TuningPath, "tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
	flag.StringVar(&cfg.PacksDir, "packs", "", "item pack directory (default: <configs>/packs)")
	flag.BoolVar(&cfg.DisableDB, "disable_db", false, "disable the sqlite index (leaderboard falls back to the live scoreboard)")
	flag.StringVar(&cfg.SnapshotPath, "snapshot", "", "path to snapshot to load (optional)")
	flag.BoolVar(&cfg.LoadLatest, "load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")
	flag.Float64Var(&cfg.SnapshotEvery, "snapshot_every_sec", 30, "seconds between snapshots (0 disables)")
	flag.IntVar(&cfg.MaxPlayers, "max_players", 0, "character cap (0: default)")
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	envCfg, err := parseEnv()
	if err != nil {
		logger.Fatalf("%v", err)
	}
	cfg.apply(envCfg)

	if err := run(cfg, logger); err != nil {
		logger.Fatalf("%v", err)
	}
}

func run(cfg serverConfig, logger *log.Logger) error {
	arenaDir := filepath.Join(cfg.DataDir, "arenas", cfg.ArenaID)
	if err := os.MkdirAll(arenaDir, 0o755); err != nil {
		return err
	}

	w, err := buildWorld(cfg, arenaDir, logger)
	if err != nil {
		return err
	}

	// Optional read-model index (does not affect sim determinism).
	idx, err := openRuntimeIndex(arenaDir, cfg.IndexBackend, cfg.DisableDB)
	if err != nil {
		return err
	}
	if idx != nil {
		defer idx.Close()
	}

	ticks := persistlog.NewTickJournal(arenaDir)
	deliveries := persistlog.NewDeliveryJournal(arenaDir)
	defer ticks.Close()
	defer deliveries.Close()
	if idx != nil {
		ticks.Next = idx
		deliveries.Next = idx
	}
	w.SetTickLogger(ticks)
	w.SetDeliveryLogger(deliveries)

	snapDir := filepath.Join(arenaDir, "snapshots")
	snapCh := make(chan snapshot.ArenaSnapshot, 2)
	if every := uint64(cfg.SnapshotEvery * float64(w.TickRateHz())); every > 0 {
		w.SetSnapshotSink(snapCh, every)
	}
	writeSnap := func(snap snapshot.ArenaSnapshot) {
		path := filepath.Join(snapDir, snapshot.FileName(snap.Header.Tick))
		if err := snapshot.WriteSnapshot(path, snap); err != nil {
			logger.Printf("snapshot write: %v", err)
			return
		}
		if idx != nil {
			idx.RecordSnapshot(path, snap)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newMux(w, idx, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := w.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case snap := <-snapCh:
				writeSnap(snap)
			}
		}
	})
	g.Go(func() error {
		logger.Printf("arena=%s listening on %s", cfg.ArenaID, cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()

	// The loop has stopped, so the final state can be read directly.
	if t := w.CurrentTick(); t > 0 {
		writeSnap(w.ExportSnapshot(t - 1))
	}
	logger.Printf("stopped at tick %d", w.CurrentTick())
	return err
}

func buildWorld(cfg serverConfig, arenaDir string, logger *log.Logger) (*world.World, error) {
	tp := strings.TrimSpace(cfg.TuningPath)
	if tp == "" {
		tp = filepath.Join(cfg.ConfigDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}
	if cfg.TickRateHz > 0 {
		tune.TickRateHz = cfg.TickRateHz
	}

	wcfg, err := world.ConfigFromTuning(cfg.ArenaID, tune)
	if err != nil {
		return nil, err
	}
	wcfg.Seed = cfg.Seed
	wcfg.MaxPlayers = cfg.MaxPlayers

	packsDir := strings.TrimSpace(cfg.PacksDir)
	if packsDir == "" {
		packsDir = filepath.Join(cfg.ConfigDir, "packs")
	}
	packs, err := itempack.LoadDir(packsDir)
	if err != nil {
		return nil, err
	}
	wcfg.Pickups = itempack.Volumes(packs)
	logger.Printf("loaded %d item packs (%d pickups) digest=%s", len(packs), len(wcfg.Pickups), itempack.Digest(packs))

	snapPath := strings.TrimSpace(cfg.SnapshotPath)
	if snapPath == "" && cfg.LoadLatest {
		snapPath, err = snapshot.Latest(filepath.Join(arenaDir, "snapshots"))
		if err != nil {
			return nil, err
		}
	}
	var snap *snapshot.ArenaSnapshot
	if snapPath != "" {
		s, err := snapshot.ReadSnapshot(snapPath)
		if err != nil {
			return nil, err
		}
		if s.Header.WorldID != "" && s.Header.WorldID != cfg.ArenaID {
			return nil, errors.New("snapshot arena id mismatch: " + s.Header.WorldID)
		}
		// The snapshot's seed and tick rate win so the restored arena
		// continues deterministically.
		wcfg.Seed = s.Seed
		if s.TickRate > 0 {
			wcfg.TickRateHz = s.TickRate
		}
		snap = &s
	}

	w, err := world.New(wcfg)
	if err != nil {
		return nil, err
	}
	if snap != nil {
		if err := w.ImportSnapshot(*snap); err != nil {
			return nil, err
		}
		logger.Printf("resumed from snapshot=%s tick=%d", filepath.Base(snapPath), w.CurrentTick())
	}
	return w, nil
}
