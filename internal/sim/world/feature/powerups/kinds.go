package powerups

import (
	"skirmish.gg/internal/sim/world/feature/combat/damage"
	"skirmish.gg/internal/sim/world/feature/combat/effects"
)

// Medkit heals the user on pickup.
type Medkit struct {
	Amount float64
}

func (Medkit) Key() string     { return "medkit" }
func (Medkit) IsOneshot() bool { return true }

func (m Medkit) Activate(ctx Context) {
	if ctx.User == nil || ctx.Deliver == nil || m.Amount <= 0 {
		return
	}
	ctx.Deliver(ctx.User, damage.Envelope{Value: -m.Amount, Sender: ctx.User})
}

func (Medkit) Presentation() Presentation { return Presentation{Cue: "heal"} }

// Haste grants a timed movement speed bonus.
type Haste struct {
	Magnitude float64
	Duration  float64
}

func (Haste) Key() string     { return "haste" }
func (Haste) IsOneshot() bool { return false }

func (h Haste) Activate(ctx Context) {
	buff(ctx, effects.Effect{Kind: effects.KindSpeed, Magnitude: h.Magnitude, Duration: h.Duration})
}

func (Haste) Presentation() Presentation { return Presentation{Cue: "speed_trail"} }

// Fury grants a timed outgoing damage bonus.
type Fury struct {
	Magnitude float64
	Duration  float64
}

func (Fury) Key() string     { return "fury" }
func (Fury) IsOneshot() bool { return false }

func (f Fury) Activate(ctx Context) {
	buff(ctx, effects.Effect{Kind: effects.KindDamage, Magnitude: f.Magnitude, Duration: f.Duration})
}

func (Fury) Presentation() Presentation { return Presentation{Cue: "red_glow"} }

// buff sends a zero-value effect envelope to the user so the effect lands
// through the pipeline like any other delivery.
func buff(ctx Context, eff effects.Effect) {
	if ctx.User == nil || ctx.Deliver == nil {
		return
	}
	ctx.Deliver(ctx.User, damage.Envelope{
		Sender:  ctx.User,
		Kind:    damage.KindEffect,
		Effects: []effects.Effect{eff},
	})
}

// Shockwave damages and pushes everyone around the user.
type Shockwave struct {
	Damage    float64
	Radius    float64
	PushForce float64
	Stunlock  float64
}

func (Shockwave) Key() string     { return "shockwave" }
func (Shockwave) IsOneshot() bool { return false }

func (s Shockwave) Activate(ctx Context) {
	if ctx.User == nil || ctx.Deliver == nil || ctx.Nearby == nil {
		return
	}
	origin := ctx.User.Position()
	self := ctx.User.EntityID()
	for _, c := range ctx.Nearby(origin, s.Radius) {
		if c.ID == self {
			continue
		}
		target, ok := c.Ref.(damage.Entity)
		if !ok {
			continue
		}
		ctx.Deliver(target, damage.Envelope{
			Value:         s.Damage,
			Sender:        ctx.User,
			Stunlock:      s.Stunlock,
			PushDirection: c.Pos.Sub(origin).Normalize(),
			PushForce:     s.PushForce,
		})
	}
}

func (s Shockwave) Presentation() Presentation { return Presentation{Cue: "ring", Radius: s.Radius} }
