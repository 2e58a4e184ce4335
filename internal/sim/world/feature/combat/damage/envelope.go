package damage

import (
	"skirmish.gg/internal/sim/world/feature/combat/effects"
	"skirmish.gg/internal/sim/world/logic/mathx"
)

// Kind classifies an envelope for blocking purposes.
type Kind uint8

const (
	KindDefault Kind = iota
	KindUnblockable
	KindEffect
)

func (k Kind) String() string {
	switch k {
	case KindUnblockable:
		return "UNBLOCKABLE"
	case KindEffect:
		return "EFFECT"
	default:
		return "DEFAULT"
	}
}

// Envelope describes one damage or heal interaction. A negative Value heals.
// Envelopes are passed by value and are not mutated after dispatch.
type Envelope struct {
	Value         float64
	Sender        Entity
	Stunlock      float64
	PushDirection mathx.Vec2
	PushForce     float64
	Kind          Kind
	Effects       []effects.Effect
}

// IsHeal reports whether the envelope restores health.
func (e Envelope) IsHeal() bool { return e.Value < 0 }

// IsPureEffect reports whether the envelope only carries effects.
func (e Envelope) IsPureEffect() bool { return e.Kind == KindEffect && e.Value == 0 }

// Clone returns a copy that shares no slice memory with e.
func (e Envelope) Clone() Envelope {
	out := e
	if len(e.Effects) > 0 {
		out.Effects = make([]effects.Effect, len(e.Effects))
		copy(out.Effects, e.Effects)
	} else {
		out.Effects = nil
	}
	if out.Stunlock < 0 {
		out.Stunlock = 0
	}
	return out
}

// Push is the impulse carried by the envelope.
func (e Envelope) Push() mathx.Vec2 {
	if e.PushForce == 0 {
		return mathx.Vec2{}
	}
	return e.PushDirection.Normalize().Scale(e.PushForce)
}
