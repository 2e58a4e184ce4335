package damage

//go:generate go tool mockgen -destination=./mocks/damageable_mock.go -package=mocks . Damageable

import "skirmish.gg/internal/sim/world/feature/combat/effects"

// Entity is anything a report can name.
type Entity interface {
	EntityID() string
}

// Outcome is what a target's Hit/Heal contract returns.
type Outcome struct {
	Accepted bool
	Lethal   bool
}

// Damageable is the hit/heal contract. Implementations clamp health at zero
// and reject hits once dead, so Lethal is reported at most once per life.
type Damageable interface {
	Entity
	Hit(env Envelope) Outcome
	Heal(env Envelope) Outcome
	Health() float64
}

// Blocker is implemented by targets that can block.
type Blocker interface {
	IsBlocking() bool
}

// Stunnable receives the stun a blocked hit reflects.
type Stunnable interface {
	Stun(seconds float64)
}

// EffectHost owns an effect engine that attached effects are registered on.
type EffectHost interface {
	Effects() *effects.Engine
}

// Destroyable lets the pipeline skip targets that left the world.
type Destroyable interface {
	Destroyed() bool
}

// EntityID returns the id of e, or "" for a nil entity.
func EntityID(e Entity) string {
	if isNil(e) {
		return ""
	}
	return e.EntityID()
}
