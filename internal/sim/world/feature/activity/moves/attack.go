package moves

import (
	"math"

	"skirmish.gg/internal/sim/world/feature/activity"
	"skirmish.gg/internal/sim/world/feature/combat/damage"
	"skirmish.gg/internal/sim/world/feature/combat/effects"
	"skirmish.gg/internal/sim/world/feature/combat/targeting"
	"skirmish.gg/internal/sim/world/logic/mathx"
)

// Striker is the attacking character.
type Striker interface {
	damage.Entity
	Position() mathx.Vec2
	Facing() mathx.Vec2
	SetFacing(f mathx.Vec2)
	Effects() *effects.Engine
}

// Queue receives the deliveries of a strike. *damage.Pipeline implements it.
type Queue interface {
	Enqueue(target damage.Entity, env damage.Envelope)
}

type positioned interface {
	Position() mathx.Vec2
}

type AttackConfig struct {
	Windup    float64
	Active    float64
	Recovery  float64
	Damage    float64
	Reach     float64
	ArcDeg    float64
	Stunlock  float64
	PushForce float64
	// AimAssist turns the striker toward the nearest candidate in reach when
	// the swing starts.
	AimAssist bool
}

// Attack is a melee swing: windup, one strike, recovery.
type Attack struct {
	cfg    AttackConfig
	self   Striker
	poller *targeting.Poller
	out    Queue

	swings uint64
	hits   int
}

func NewAttack(cfg AttackConfig, self Striker, poller *targeting.Poller, out Queue) *Attack {
	return &Attack{cfg: cfg, self: self, poller: poller, out: out}
}

func (a *Attack) Swings() uint64 { return a.swings }

// LastHits is the number of targets the latest strike queued.
func (a *Attack) LastHits() int { return a.hits }

func (a *Attack) Ready() bool { return a.out != nil }

func (a *Attack) Begin() {
	a.swings++
	a.hits = 0
}

func (a *Attack) Routine() []activity.Phase {
	return []activity.Phase{
		{Name: "windup", Duration: phaseLen(a.cfg.Windup), Enter: a.aim},
		{Name: "strike", Duration: phaseLen(a.cfg.Active), Enter: a.strike},
		{Name: "recovery", Duration: phaseLen(a.cfg.Recovery)},
	}
}

func (a *Attack) Finish(bool) {}

func (a *Attack) Update(float64) {}

func (a *Attack) aim() {
	if !a.cfg.AimAssist || a.poller == nil {
		return
	}
	pos := a.self.Position()
	if c, ok := a.poller.Nearest(pos); ok && c.Pos.Dist(pos) <= a.cfg.Reach+c.Radius {
		if dir := c.Pos.Sub(pos).Normalize(); !dir.IsZero() {
			a.self.SetFacing(dir)
		}
	}
}

func (a *Attack) strike() {
	if a.poller == nil {
		return
	}
	pos := a.self.Position()
	cands := a.poller.Candidates()
	for i := range cands {
		if p, ok := cands[i].Ref.(positioned); ok {
			cands[i].Pos = p.Position()
		}
	}
	mult := 1.0
	if eng := a.self.Effects(); eng != nil {
		mult = eng.Multiplier(effects.KindDamage)
	}
	half := a.cfg.ArcDeg * math.Pi / 360
	for _, c := range targeting.InArc(cands, pos, a.self.Facing(), a.cfg.Reach, half) {
		target, ok := c.Ref.(damage.Entity)
		if !ok {
			continue
		}
		a.out.Enqueue(target, damage.Envelope{
			Value:         a.cfg.Damage * mult,
			Sender:        a.self,
			Stunlock:      a.cfg.Stunlock,
			PushDirection: c.Pos.Sub(pos).Normalize(),
			PushForce:     a.cfg.PushForce,
		})
		a.hits++
	}
}
