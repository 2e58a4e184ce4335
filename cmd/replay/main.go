package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"skirmish.gg/internal/persistence/itempack"
	persistlog "skirmish.gg/internal/persistence/log"
	"skirmish.gg/internal/persistence/snapshot"
	"skirmish.gg/internal/sim/tuning"
	"skirmish.gg/internal/sim/world"
)

func main() {
	var (
		arenaDir  = flag.String("arena_dir", "", "arena data dir containing deliveries/ and events/")
		snapPath  = flag.String("snapshot", "", "path to .snap.zst to verify the tick log from (optional)")
		configDir = flag.String("configs", "./configs", "config directory (tuning.yaml, packs/)")
		fromTick  = flag.Uint64("from_tick", 0, "start verifying from tick (inclusive, optional)")
		toTick    = flag.Uint64("to_tick", 0, "stop at tick (inclusive, optional)")
		feedLimit = flag.Int("feed", 50, "kill feed lines to print (0: all)")
	)
	flag.Parse()

	if *arenaDir == "" {
		fmt.Fprintln(os.Stderr, "missing -arena_dir")
		os.Exit(2)
	}

	sum, err := summarize(*arenaDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read journal:", err)
		os.Exit(1)
	}
	sum.print(os.Stdout, *feedLimit)

	if *snapPath == "" {
		return
	}
	checked, err := verify(*snapPath, *arenaDir, *configDir, *fromTick, *toTick)
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
	fmt.Printf("replay ok: checked=%d ticks\n", checked)
}

type senderTotals struct {
	Sender    string
	Reports   int
	Delivered int
	Blocked   int
	Damage    float64
	Healed    float64
	Kills     int
}

type summary struct {
	Records int
	Feed    []world.DeliveryRecord
	Senders map[string]*senderTotals
}

// summarize folds the delivery journal into a kill feed and per-sender totals.
func summarize(arenaDir string) (*summary, error) {
	s := &summary{Senders: map[string]*senderTotals{}}
	err := persistlog.ReadDeliveries(arenaDir, func(rec world.DeliveryRecord) error {
		s.Records++
		key := rec.Sender
		if key == "" {
			key = "-"
		}
		st := s.Senders[key]
		if st == nil {
			st = &senderTotals{Sender: key}
			s.Senders[key] = st
		}
		st.Reports++
		if rec.Blocked {
			st.Blocked++
		}
		if !rec.Delivered {
			return nil
		}
		st.Delivered++
		if rec.Kind == "HEAL" {
			st.Healed += -rec.Value
			return nil
		}
		st.Damage += rec.Value
		if rec.Lethal {
			s.Feed = append(s.Feed, rec)
			if rec.Sender != "" && rec.Sender != rec.Target {
				st.Kills++
			}
		}
		return nil
	})
	if errors.Is(err, persistlog.ErrNoJournal) {
		err = nil
	}
	return s, err
}

func (s *summary) print(w io.Writer, feedLimit int) {
	fmt.Fprintf(w, "deliveries=%d kills=%d\n", s.Records, len(s.Feed))
	feed := s.Feed
	if feedLimit > 0 && len(feed) > feedLimit {
		feed = feed[len(feed)-feedLimit:]
	}
	for _, k := range feed {
		killer := k.Sender
		if killer == "" || killer == k.Target {
			killer = "(self)"
		}
		fmt.Fprintf(w, "  tick=%-8d %s -> %s (%s %.1f)\n", k.Tick, killer, k.Target, k.Kind, k.Value)
	}

	rows := make([]*senderTotals, 0, len(s.Senders))
	for _, st := range s.Senders {
		rows = append(rows, st)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Damage != rows[j].Damage {
			return rows[i].Damage > rows[j].Damage
		}
		return rows[i].Sender < rows[j].Sender
	})
	fmt.Fprintf(w, "%-8s %8s %9s %7s %9s %8s %5s\n", "sender", "reports", "delivered", "blocked", "damage", "healed", "kills")
	for _, st := range rows {
		fmt.Fprintf(w, "%-8s %8d %9d %7d %9.1f %8.1f %5d\n", st.Sender, st.Reports, st.Delivered, st.Blocked, st.Damage, st.Healed, st.Kills)
	}
}

// verify restores the snapshot and re-steps the tick log, comparing digests.
func verify(snapPath, arenaDir, configDir string, fromTick, toTick uint64) (uint64, error) {
	snap, err := snapshot.ReadSnapshot(snapPath)
	if err != nil {
		return 0, fmt.Errorf("read snapshot: %w", err)
	}
	w, err := restore(snap, configDir)
	if err != nil {
		return 0, err
	}

	startTick := w.CurrentTick()
	if fromTick == 0 {
		fromTick = startTick
	}
	var checked uint64
	errStop := errors.New("stop")
	err = persistlog.ReadTicks(arenaDir, func(entry world.TickLogEntry) error {
		if entry.Tick < startTick {
			return nil
		}
		if toTick != 0 && entry.Tick > toTick {
			return errStop
		}
		if entry.Tick != w.CurrentTick() {
			return fmt.Errorf("tick mismatch: want=%d got=%d", w.CurrentTick(), entry.Tick)
		}
		tick, digest := w.StepOnce(replayJoins(w, entry), entry.Leaves, replayInputs(entry))
		if tick >= fromTick {
			checked++
			if digest != entry.Digest {
				return fmt.Errorf("digest mismatch at tick %d: got=%s want=%s", tick, digest, entry.Digest)
			}
		}
		return nil
	})
	switch {
	case errors.Is(err, persistlog.ErrNoJournal):
		return 0, fmt.Errorf("no %s files found under %s", persistlog.TickStream, arenaDir)
	case err != nil && !errors.Is(err, errStop):
		return checked, err
	}
	return checked, nil
}

func restore(snap snapshot.ArenaSnapshot, configDir string) (*world.World, error) {
	tune, err := tuning.Load(filepath.Join(configDir, "tuning.yaml"))
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err != nil {
		tune = tuning.Defaults()
	}
	cfg, err := world.ConfigFromTuning(snap.Header.WorldID, tune)
	if err != nil {
		return nil, err
	}
	cfg.Seed = snap.Seed
	if snap.TickRate > 0 {
		cfg.TickRateHz = snap.TickRate
	}
	packs, err := itempack.LoadDir(filepath.Join(configDir, "packs"))
	if err != nil {
		return nil, err
	}
	cfg.Pickups = itempack.Volumes(packs)

	w, err := world.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("world: %w", err)
	}
	if err := w.ImportSnapshot(snap); err != nil {
		return nil, fmt.Errorf("import snapshot: %w", err)
	}
	return w, nil
}

func replayJoins(w *world.World, entry world.TickLogEntry) []world.JoinRequest {
	joins := make([]world.JoinRequest, 0, len(entry.Joins))
	for _, j := range entry.Joins {
		req := world.JoinRequest{Name: j.Name, Observer: j.Observer}
		if j.Resumed {
			req.ResumeToken = w.DebugResumeToken(j.EntityID)
		}
		joins = append(joins, req)
	}
	return joins
}

func replayInputs(entry world.TickLogEntry) []world.InputEnvelope {
	inputs := make([]world.InputEnvelope, 0, len(entry.Inputs))
	for _, in := range entry.Inputs {
		inputs = append(inputs, world.InputEnvelope{EntityID: in.EntityID, Input: in.Input})
	}
	return inputs
}

func init() {
	flag.Usage = func() {
		fmt.Fprintln(flag.CommandLine.Output(), strings.TrimSpace(`
usage: replay -arena_dir data/arenas/<id> [-snapshot file.snap.zst]

Prints the kill feed and per-sender totals from the delivery journal. With
-snapshot, restores the arena and re-steps the tick log, checking digests.`))
		flag.PrintDefaults()
	}
}
