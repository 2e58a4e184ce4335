package world

import "skirmish.gg/internal/sim/world/feature/combat/damage"

// StatsBucket counts combat outcomes over a span of ticks.
type StatsBucket struct {
	Delivered int `json:"delivered"`
	Rejected  int `json:"rejected"`
	Blocked   int `json:"blocked"`
	Lethal    int `json:"lethal"`
	Heals     int `json:"heals"`
}

func (b *StatsBucket) add(o StatsBucket) {
	b.Delivered += o.Delivered
	b.Rejected += o.Rejected
	b.Blocked += o.Blocked
	b.Lethal += o.Lethal
	b.Heals += o.Heals
}

// Stats is a rolling window of buckets. The zero value is unusable; the world
// builds it through newStats.
type Stats struct {
	bucketTicks uint64
	windowTicks uint64

	buckets []StatsBucket
	curIdx  int
	curBase uint64 // start tick (inclusive) of current bucket
	nowTick uint64
}

func newStats(bucketTicks, windowTicks uint64) Stats {
	if bucketTicks == 0 {
		bucketTicks = 100
	}
	if windowTicks < bucketTicks {
		windowTicks = bucketTicks
	}
	n := windowTicks / bucketTicks
	return Stats{
		bucketTicks: bucketTicks,
		windowTicks: n * bucketTicks,
		buckets:     make([]StatsBucket, n),
	}
}

func (s *Stats) rotate(nowTick uint64) {
	if len(s.buckets) == 0 {
		return
	}
	s.nowTick = nowTick
	// Move forward until nowTick is in [curBase, curBase+bucketTicks).
	for nowTick >= s.curBase+s.bucketTicks {
		s.curIdx = (s.curIdx + 1) % len(s.buckets)
		s.buckets[s.curIdx] = StatsBucket{}
		s.curBase += s.bucketTicks
	}
}

func (s *Stats) observe(r damage.Report) {
	if len(s.buckets) == 0 {
		return
	}
	s.rotate(r.Tick)
	b := &s.buckets[s.curIdx]
	switch {
	case r.Blocked:
		b.Blocked++
	case !r.IsDelivered:
		b.Rejected++
	case r.Damage.IsHeal():
		b.Heals++
	default:
		b.Delivered++
		if r.IsLethal {
			b.Lethal++
		}
	}
}

func (s *Stats) WindowTicks() uint64 { return s.windowTicks }

func (s *Stats) Summarize(nowTick uint64) StatsBucket {
	s.rotate(nowTick)
	var out StatsBucket
	for _, b := range s.buckets {
		out.add(b)
	}
	return out
}
