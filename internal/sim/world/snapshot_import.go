package world

import (
	"fmt"

	"skirmish.gg/internal/persistence/snapshot"
	"skirmish.gg/internal/sim/world/feature/combat/effects"
	"skirmish.gg/internal/sim/world/feature/powerups"
	"skirmish.gg/internal/sim/world/logic/mathx"
)

// ImportSnapshot replaces the arena state with s and sets the tick to the one
// after the snapshot. Characters come back detached, so their owners can
// resume them with their tokens within the reconnect grace.
//
// This must be called only when the world is stopped or from the world loop goroutine.
func (w *World) ImportSnapshot(s snapshot.ArenaSnapshot) error {
	if s.Header.Version != snapshot.Version {
		return fmt.Errorf("unsupported snapshot version: %d", s.Header.Version)
	}
	if w.cfg.Seed != s.Seed {
		return fmt.Errorf("snapshot seed mismatch: cfg=%d snap=%d", w.cfg.Seed, s.Seed)
	}
	if s.PowerUpDigest != w.registry.PaletteDigest {
		return fmt.Errorf("snapshot power-up palette mismatch")
	}

	for _, c := range w.chars {
		w.pipeline.Release(c.id)
	}
	w.chars = map[string]*Character{}
	w.tokens = map[string]string{}
	w.clients = map[string]*client{}
	w.lastStates = nil
	next := s.Header.Tick + 1

	for _, cs := range s.Characters {
		c := newCharacter(cs.ID, cs.Name, &w.cfg)
		if err := c.equip(w); err != nil {
			return fmt.Errorf("character %s: %w", cs.ID, err)
		}
		c.resumeToken = cs.ResumeToken
		c.pos = mathx.FromArray(cs.Pos)
		c.vel = mathx.FromArray(cs.Vel)
		c.facing = mathx.FromArray(cs.Facing)
		c.health = cs.Health
		c.kills, c.deaths = cs.Kills, cs.Deaths
		c.dealt, c.taken = cs.Dealt, cs.Taken
		if cs.HeldPowerUp != 0 && w.registry.Resolve(powerups.ID(cs.HeldPowerUp)) != nil {
			c.inv.TryStore(powerups.ID(cs.HeldPowerUp))
		}
		for _, e := range cs.Effects {
			c.effects.Add(effects.Effect{Kind: effects.Kind(e.Kind), Magnitude: e.Magnitude, Duration: e.Duration})
		}
		if !cs.Alive {
			c.alive = true
			c.die()
			c.deaths = cs.Deaths
			c.respawnIn = cs.RespawnIn
		}
		c.detached = true
		c.detachedSince = next
		w.chars[c.id] = c
		if c.resumeToken != "" {
			w.tokens[c.resumeToken] = c.id
		}
		w.track(c)
	}

	cooldowns := map[string]float64{}
	for _, p := range s.Pickups {
		cooldowns[p.Name] = p.Cooldown
	}
	for _, v := range w.field.Volumes() {
		v.Restore(cooldowns[v.Name])
	}

	w.nextCharNum.Store(s.NextCharacter)
	w.tick.Store(next)
	return nil
}
