package effects

import "fmt"

// Kind identifies the stat an effect modifies.
type Kind uint8

const (
	KindSpeed Kind = iota + 1
	KindDamage
)

func (k Kind) String() string {
	switch k {
	case KindSpeed:
		return "SPEED"
	case KindDamage:
		return "DAMAGE"
	default:
		return fmt.Sprintf("KIND_%d", uint8(k))
	}
}

// Effect is a timed stat modifier. Magnitude is a fraction: 0.5 means +50%.
type Effect struct {
	Kind      Kind    `json:"kind"`
	Magnitude float64 `json:"magnitude"`
	Duration  float64 `json:"duration"`
}

// Engine holds the active effects of one character. Same-kind effects stack
// additively with independent durations; there is no cap.
type Engine struct {
	active []Effect
}

func (e *Engine) Add(eff Effect) {
	if eff.Duration <= 0 {
		return
	}
	e.active = append(e.active, eff)
}

// Tick decrements every duration by dt and drops effects that reached zero.
// The expired effects are returned in insertion order.
func (e *Engine) Tick(dt float64) []Effect {
	if len(e.active) == 0 || dt <= 0 {
		return nil
	}
	var expired []Effect
	kept := e.active[:0]
	for _, eff := range e.active {
		eff.Duration -= dt
		if eff.Duration <= 0 {
			expired = append(expired, eff)
			continue
		}
		kept = append(kept, eff)
	}
	for i := len(kept); i < len(e.active); i++ {
		e.active[i] = Effect{}
	}
	e.active = kept
	return expired
}

func (e *Engine) NetModifier(k Kind) float64 {
	sum := 0.0
	for _, eff := range e.active {
		if eff.Kind == k {
			sum += eff.Magnitude
		}
	}
	return sum
}

// Multiplier is 1 + NetModifier, floored at zero so stacked debuffs cannot
// invert a stat.
func (e *Engine) Multiplier(k Kind) float64 {
	m := 1 + e.NetModifier(k)
	if m < 0 {
		return 0
	}
	return m
}

func (e *Engine) Len() int { return len(e.active) }

func (e *Engine) Active() []Effect {
	out := make([]Effect, len(e.active))
	copy(out, e.active)
	return out
}

// Clear drops every effect (respawn).
func (e *Engine) Clear() {
	e.active = e.active[:0]
}
