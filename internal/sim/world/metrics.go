package world

import (
	"sort"
	"time"
)

// WorldMetrics is a thread-safe read-only view of key world runtime signals.
// It is updated from the world loop goroutine and read from HTTP handlers/tests.
type WorldMetrics struct {
	Tick uint64 `json:"tick"`

	Characters int `json:"characters"`
	Alive      int `json:"alive"`
	Clients    int `json:"clients"`
	Observers  int `json:"observers"`

	QueueDepths QueueDepths `json:"queue_depths"`

	StepMS float64 `json:"step_ms"`

	StatsWindowTicks uint64      `json:"stats_window_ticks"`
	StatsWindow      StatsBucket `json:"stats_window"`

	Pipeline    PipelineMetrics `json:"pipeline"`
	RecentKills []KillRecord    `json:"recent_kills,omitempty"`
	Scoreboard  []ScoreEntry    `json:"scoreboard,omitempty"`
}

type QueueDepths struct {
	Inbox  int `json:"inbox"`
	Join   int `json:"join"`
	Leave  int `json:"leave"`
	Damage int `json:"damage"`
}

type PipelineMetrics struct {
	Delivered uint64 `json:"delivered"`
	Rejected  uint64 `json:"rejected"`
	Blocked   uint64 `json:"blocked"`
	Lethal    uint64 `json:"lethal"`
	Invalid   uint64 `json:"invalid"`
	Observers int    `json:"observers"`
}

type ScoreEntry struct {
	EntityID string  `json:"entity_id"`
	Name     string  `json:"name"`
	Kills    int     `json:"kills"`
	Deaths   int     `json:"deaths"`
	Dealt    float64 `json:"dealt"`
	Taken    float64 `json:"taken"`
}

func (w *World) Metrics() WorldMetrics {
	if w == nil {
		return WorldMetrics{}
	}
	v := w.metrics.Load()
	if v == nil {
		return WorldMetrics{}
	}
	m, ok := v.(WorldMetrics)
	if !ok {
		return WorldMetrics{}
	}
	return m
}

func (w *World) publishMetrics(nowTick uint64, took time.Duration) {
	m := WorldMetrics{
		Tick:       nowTick,
		Characters: len(w.chars),
		QueueDepths: QueueDepths{
			Inbox:  len(w.inbox),
			Join:   len(w.join),
			Leave:  len(w.leave),
			Damage: w.pipeline.Pending(),
		},
		StepMS:           float64(took.Microseconds()) / 1000,
		StatsWindowTicks: w.stats.WindowTicks(),
		StatsWindow:      w.stats.Summarize(nowTick),
		RecentKills:      append([]KillRecord(nil), w.recentKills...),
	}
	for _, cl := range w.clients {
		if cl.observer {
			m.Observers++
		} else {
			m.Clients++
		}
	}
	for _, c := range w.chars {
		if c.alive {
			m.Alive++
		}
		m.Scoreboard = append(m.Scoreboard, ScoreEntry{
			EntityID: c.id, Name: c.name, Kills: c.kills, Deaths: c.deaths, Dealt: c.dealt, Taken: c.taken,
		})
	}
	sort.Slice(m.Scoreboard, func(i, j int) bool {
		a, b := m.Scoreboard[i], m.Scoreboard[j]
		if a.Kills != b.Kills {
			return a.Kills > b.Kills
		}
		if a.Deaths != b.Deaths {
			return a.Deaths < b.Deaths
		}
		return a.EntityID < b.EntityID
	})
	ps := w.pipeline.Stats()
	m.Pipeline = PipelineMetrics{
		Delivered: ps.Delivered,
		Rejected:  ps.Rejected,
		Blocked:   ps.Blocked,
		Lethal:    ps.Lethal,
		Invalid:   ps.Invalid,
		Observers: w.pipeline.Observers(),
	}
	w.metrics.Store(m)
}
