package world

import (
	"skirmish.gg/internal/sim/world/feature/powerups"
	"skirmish.gg/internal/sim/world/logic/mathx"
)

// ---- Debug/Test Helpers ----
//
// These helpers exist to allow black-box tests in sibling packages (e.g. internal/sim/worldtest)
// to set up deterministic preconditions without reaching into world internals.
//
// They are NOT safe to call concurrently with Run(). Prefer using them only in tests that drive
// the world via StepOnce(), from a single goroutine.

func (w *World) DebugSetPosition(id string, pos, facing mathx.Vec2) bool {
	c := w.chars[id]
	if c == nil {
		return false
	}
	c.pos = pos
	c.vel = mathx.Vec2{}
	c.SetFacing(facing)
	c.poller.Invalidate()
	return true
}

func (w *World) DebugSetHealth(id string, hp float64) bool {
	c := w.chars[id]
	if c == nil || !c.alive || hp <= 0 {
		return false
	}
	c.health = hp
	return true
}

// DebugGive stores a power-up in the character's slot.
func (w *World) DebugGive(id, key string) bool {
	c := w.chars[id]
	if c == nil {
		return false
	}
	pid, ok := w.registry.ID(key)
	if !ok {
		return false
	}
	return c.inv.TryStore(pid)
}

// DebugPickups lists the pickup volumes with their remaining cooldown.
func (w *World) DebugPickups() []*powerups.Volume {
	return w.field.Volumes()
}

// DebugResumeToken exposes a character's resume token so replays can re-issue
// a recorded resume.
func (w *World) DebugResumeToken(id string) string {
	c := w.chars[id]
	if c == nil {
		return ""
	}
	return c.resumeToken
}
