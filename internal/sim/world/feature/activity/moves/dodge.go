package moves

import (
	"skirmish.gg/internal/sim/world/feature/activity"
	"skirmish.gg/internal/sim/world/logic/mathx"
)

// minPhase keeps configured zero durations from turning into hold phases.
const minPhase = 1e-6

func phaseLen(d float64) float64 {
	if d < minPhase {
		return minPhase
	}
	return d
}

// Body is the movement surface of a character.
type Body interface {
	// Heading is the direction the character wants to go, falling back to
	// its facing when there is no move intent.
	Heading() mathx.Vec2
	Velocity() mathx.Vec2
	SetVelocity(v mathx.Vec2)
}

type DodgeConfig struct {
	MaxCharges int
	// Timeout is the time to regenerate one charge.
	Timeout  float64
	Duration float64
	Speed    float64
	// Momentum is the share of dash speed kept after a dodge that completed.
	Momentum float64
}

// Dodge is a short dash paid for with charges.
type Dodge struct {
	cfg  DodgeConfig
	body Body

	charges int
	regen   float64
	dir     mathx.Vec2
}

func NewDodge(cfg DodgeConfig, body Body) *Dodge {
	if cfg.MaxCharges < 1 {
		cfg.MaxCharges = 1
	}
	return &Dodge{cfg: cfg, body: body, charges: cfg.MaxCharges}
}

func (d *Dodge) Counter() int { return d.charges }

// RegenRemaining is the time left until the next charge, 0 when full.
func (d *Dodge) RegenRemaining() float64 { return d.regen }

// Refill restores every charge, as on respawn.
func (d *Dodge) Refill() {
	d.charges = d.cfg.MaxCharges
	d.regen = 0
}

func (d *Dodge) Ready() bool { return d.charges > 0 }

func (d *Dodge) Begin() {
	d.charges--
	d.dir = d.body.Heading().Normalize()
	if d.dir.IsZero() {
		d.dir = mathx.V(1, 0)
	}
}

func (d *Dodge) Routine() []activity.Phase {
	return []activity.Phase{{
		Name:     "dash",
		Duration: phaseLen(d.cfg.Duration),
		Step: func(float64) {
			d.body.SetVelocity(d.dir.Scale(d.cfg.Speed))
		},
	}}
}

func (d *Dodge) Finish(forced bool) {
	if forced {
		d.body.SetVelocity(mathx.Vec2{})
	} else {
		d.body.SetVelocity(d.dir.Scale(d.cfg.Speed * d.cfg.Momentum))
	}
	if d.regen <= 0 && d.charges < d.cfg.MaxCharges {
		d.regen = d.cfg.Timeout
	}
}

func (d *Dodge) Update(dt float64) {
	if d.regen <= 0 {
		return
	}
	d.regen -= dt
	if d.regen > 1e-9 {
		return
	}
	d.charges++
	if d.charges >= d.cfg.MaxCharges {
		d.charges = d.cfg.MaxCharges
		d.regen = 0
		return
	}
	d.regen += d.cfg.Timeout
}
