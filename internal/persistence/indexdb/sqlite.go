package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"skirmish.gg/internal/persistence/snapshot"
	"skirmish.gg/internal/sim/world"
)

// SQLiteIndex is a queryable secondary index over the tick log and the
// delivery journal. Writes are queued and applied by a single goroutine; the
// JSONL journals stay the source of truth.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropTick     atomic.Uint64
	dropDelivery atomic.Uint64
	dropSnapshot atomic.Uint64
}

type reqKind int

const (
	reqTick reqKind = iota + 1
	reqDelivery
	reqSnapshot
	reqSync
)

type req struct {
	kind reqKind

	tick     world.TickLogEntry
	delivery world.DeliveryRecord
	snapshot snapshotRow
	done     chan struct{}
}

type snapshotRow struct {
	Tick       uint64
	Path       string
	Seed       int64
	Characters int
	Pickups    int
}

// Stats reports the writer queue state.
type Stats struct {
	QueueDepth    int    `json:"queue_depth"`
	QueueCapacity int    `json:"queue_capacity"`
	DropTick      uint64 `json:"drop_tick_total"`
	DropDelivery  uint64 `json:"drop_delivery_total"`
	DropSnapshot  uint64 `json:"drop_snapshot_total"`
}

// LeaderboardRow aggregates one character's history.
type LeaderboardRow struct {
	EntityID string  `json:"entity_id"`
	Name     string  `json:"name"`
	Kills    int     `json:"kills"`
	Deaths   int     `json:"deaths"`
	Dealt    float64 `json:"dealt"`
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One writer connection plus one for readers; WAL lets them overlap.
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			tick INTEGER PRIMARY KEY,
			digest TEXT NOT NULL,
			joins INTEGER NOT NULL,
			leaves INTEGER NOT NULL,
			inputs INTEGER NOT NULL,
			kills INTEGER NOT NULL,
			reports INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS joins (
			tick INTEGER NOT NULL,
			entity_id TEXT NOT NULL,
			name TEXT NOT NULL,
			observer INTEGER NOT NULL,
			PRIMARY KEY (tick, entity_id)
		);`,
		`CREATE TABLE IF NOT EXISTS kills (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			killer TEXT NOT NULL,
			victim TEXT NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_kills_killer ON kills(killer);`,
		`CREATE INDEX IF NOT EXISTS idx_kills_victim ON kills(victim);`,
		`CREATE TABLE IF NOT EXISTS deliveries (
			id TEXT PRIMARY KEY,
			tick INTEGER NOT NULL,
			target TEXT NOT NULL,
			sender TEXT NOT NULL,
			value REAL NOT NULL,
			kind TEXT NOT NULL,
			stunlock REAL NOT NULL,
			delivered INTEGER NOT NULL,
			lethal INTEGER NOT NULL,
			blocked INTEGER NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_deliveries_sender_tick ON deliveries(sender, tick);`,
		`CREATE INDEX IF NOT EXISTS idx_deliveries_target_tick ON deliveries(target, tick);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			tick INTEGER PRIMARY KEY,
			path TEXT NOT NULL,
			seed INTEGER NOT NULL,
			characters INTEGER NOT NULL,
			pickups INTEGER NOT NULL
		);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:    len(s.ch),
		QueueCapacity: cap(s.ch),
		DropTick:      s.dropTick.Load(),
		DropDelivery:  s.dropDelivery.Load(),
		DropSnapshot:  s.dropSnapshot.Load(),
	}
}

func (s *SQLiteIndex) WriteTick(entry world.TickLogEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqTick, tick: entry}:
	default:
		s.dropTick.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) WriteDelivery(rec world.DeliveryRecord) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqDelivery, delivery: rec}:
	default:
		s.dropDelivery.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.ArenaSnapshot) {
	if s == nil || s.closed.Load() {
		return
	}
	r := snapshotRow{
		Tick:       snap.Header.Tick,
		Path:       path,
		Seed:       snap.Seed,
		Characters: len(snap.Characters),
		Pickups:    len(snap.Pickups),
	}
	select {
	case s.ch <- req{kind: reqSnapshot, snapshot: r}:
	default:
		s.dropSnapshot.Add(1)
	}
}

// Sync blocks until every write queued before it is committed.
func (s *SQLiteIndex) Sync(ctx context.Context) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	done := make(chan struct{})
	select {
	case s.ch <- req{kind: reqSync, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

const leaderboardQuery = `
WITH k AS (
	SELECT killer AS id, COUNT(*) AS kills FROM kills WHERE killer != '' GROUP BY killer
), d AS (
	SELECT victim AS id, COUNT(*) AS deaths FROM kills GROUP BY victim
), dmg AS (
	SELECT sender AS id, SUM(value) AS dealt FROM deliveries
	WHERE delivered = 1 AND kind != 'HEAL' AND sender != '' AND sender != target
	GROUP BY sender
), ids AS (
	SELECT id FROM k UNION SELECT id FROM d UNION SELECT id FROM dmg
), n AS (
	SELECT j.entity_id AS id, j.name AS name FROM joins j
	WHERE j.tick = (SELECT MAX(tick) FROM joins WHERE entity_id = j.entity_id)
)
SELECT ids.id, COALESCE(n.name, ids.id), COALESCE(k.kills, 0), COALESCE(d.deaths, 0), COALESCE(dmg.dealt, 0)
FROM ids
LEFT JOIN k ON k.id = ids.id
LEFT JOIN d ON d.id = ids.id
LEFT JOIN dmg ON dmg.id = ids.id
LEFT JOIN n ON n.id = ids.id
ORDER BY 3 DESC, 5 DESC, 4 ASC, ids.id ASC
LIMIT ?`

// Leaderboard ranks characters by kills, then damage dealt.
func (s *SQLiteIndex) Leaderboard(ctx context.Context, limit int) ([]LeaderboardRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, leaderboardQuery, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []LeaderboardRow
	for rows.Next() {
		var r LeaderboardRow
		if err := rows.Scan(&r.EntityID, &r.Name, &r.Kills, &r.Deaths, &r.Dealt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertTick, _ := s.db.Prepare(`INSERT OR REPLACE INTO ticks(tick,digest,joins,leaves,inputs,kills,reports) VALUES(?,?,?,?,?,?,?)`)
	insertJoin, _ := s.db.Prepare(`INSERT OR REPLACE INTO joins(tick,entity_id,name,observer) VALUES(?,?,?,?)`)
	insertKill, _ := s.db.Prepare(`INSERT OR REPLACE INTO kills(tick,seq,killer,victim) VALUES(?,?,?,?)`)
	insertDelivery, _ := s.db.Prepare(`INSERT OR REPLACE INTO deliveries(id,tick,target,sender,value,kind,stunlock,delivered,lethal,blocked,raw_json) VALUES(?,?,?,?,?,?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(tick,path,seed,characters,pickups) VALUES(?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertTick, insertJoin, insertKill, insertDelivery, insertSnapshot} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) bool {
		if st == nil || tx == nil {
			return false
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return false
		}
		opCount++
		return true
	}

	for r := range s.ch {
		if r.kind == reqSync {
			commit()
			close(r.done)
			continue
		}
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqTick:
			e := r.tick
			if !exec(insertTick, int64(e.Tick), e.Digest, len(e.Joins), len(e.Leaves), len(e.Inputs), len(e.Kills), e.Reports) {
				continue
			}
			for _, j := range e.Joins {
				if !exec(insertJoin, int64(e.Tick), j.EntityID, j.Name, boolInt(j.Observer)) {
					break
				}
			}
			for i, k := range e.Kills {
				if !exec(insertKill, int64(k.Tick), i, k.Killer, k.Victim) {
					break
				}
			}

		case reqDelivery:
			d := r.delivery
			if d.ID == "" {
				continue
			}
			raw, _ := json.Marshal(d)
			exec(insertDelivery,
				d.ID,
				int64(d.Tick),
				d.Target,
				d.Sender,
				d.Value,
				d.Kind,
				d.Stunlock,
				boolInt(d.Delivered),
				boolInt(d.Lethal),
				boolInt(d.Blocked),
				string(raw),
			)

		case reqSnapshot:
			sn := r.snapshot
			exec(insertSnapshot, int64(sn.Tick), sn.Path, sn.Seed, sn.Characters, sn.Pickups)
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	commit()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
