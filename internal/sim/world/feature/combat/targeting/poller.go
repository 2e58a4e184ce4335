package targeting

import (
	"math"

	"skirmish.gg/internal/sim/world/logic/mathx"
	"skirmish.gg/internal/sim/world/logic/spatial"
)

const DefaultInterval = 0.1

// Source is the proximity primitive the poller samples.
type Source interface {
	FindCandidates(origin mathx.Vec2, radius float64) []spatial.Candidate
}

// Poller caches the candidates around its owner and refreshes them at a fixed
// interval instead of every tick.
type Poller struct {
	SelfID   string
	Radius   float64
	Interval float64

	src     Source
	acc     float64
	primed  bool
	cached  []spatial.Candidate
	refresh uint64
}

func NewPoller(src Source, selfID string, radius, interval float64) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{SelfID: selfID, Radius: radius, Interval: interval, src: src}
}

// Tick accumulates dt and re-queries once the interval elapsed. The first call
// always queries. It reports whether the cache was refreshed.
func (p *Poller) Tick(dt float64, origin mathx.Vec2) bool {
	p.acc += dt
	if p.primed && p.acc+1e-9 < p.Interval {
		return false
	}
	p.primed = true
	p.acc = 0
	p.cached = p.cached[:0]
	if p.src != nil {
		for _, c := range p.src.FindCandidates(origin, p.Radius) {
			if c.ID != p.SelfID {
				p.cached = append(p.cached, c)
			}
		}
	}
	p.refresh++
	return true
}

// Invalidate forces a query on the next Tick.
func (p *Poller) Invalidate() { p.primed = false }

func (p *Poller) Refreshes() uint64 { return p.refresh }

func (p *Poller) Candidates() []spatial.Candidate {
	out := make([]spatial.Candidate, len(p.cached))
	copy(out, p.cached)
	return out
}

// Nearest returns the closest cached candidate to origin.
func (p *Poller) Nearest(origin mathx.Vec2) (spatial.Candidate, bool) {
	best := -1
	bestD := math.Inf(1)
	for i, c := range p.cached {
		d := c.Pos.Dist(origin)
		if best < 0 || d < bestD || (d == bestD && c.ID < p.cached[best].ID) {
			best, bestD = i, d
		}
	}
	if best < 0 {
		return spatial.Candidate{}, false
	}
	return p.cached[best], true
}

// InArc filters candidates to those within reach of origin and inside the
// cone of halfAngle radians around facing. A zero facing accepts every
// direction.
func InArc(cands []spatial.Candidate, origin, facing mathx.Vec2, reach, halfAngle float64) []spatial.Candidate {
	dir := facing.Normalize()
	cosLimit := math.Cos(halfAngle)
	var out []spatial.Candidate
	for _, c := range cands {
		to := c.Pos.Sub(origin)
		dist := to.Len()
		if dist > reach+c.Radius {
			continue
		}
		if !dir.IsZero() && dist > 1e-9 && to.Scale(1/dist).Dot(dir) < cosLimit {
			continue
		}
		out = append(out, c)
	}
	return out
}
