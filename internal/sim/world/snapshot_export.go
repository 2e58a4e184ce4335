package world

import (
	"sort"

	"skirmish.gg/internal/persistence/snapshot"
	"skirmish.gg/internal/sim/world/logic/ids"
)

// ExportSnapshot captures the arena at the boundary after nowTick.
// World loop only.
func (w *World) ExportSnapshot(nowTick uint64) snapshot.ArenaSnapshot {
	s := snapshot.ArenaSnapshot{
		Header:        snapshot.Header{Version: snapshot.Version, WorldID: w.cfg.ID, Tick: nowTick},
		Seed:          w.cfg.Seed,
		TickRate:      w.cfg.TickRateHz,
		PowerUpDigest: w.registry.PaletteDigest,
		NextCharacter: w.nextCharNum.Load(),
	}
	order := make([]string, 0, len(w.chars))
	for id := range w.chars {
		order = append(order, id)
	}
	sort.Slice(order, func(i, j int) bool { return ids.Less(order[i], order[j]) })
	for _, id := range order {
		c := w.chars[id]
		cs := snapshot.CharacterV1{
			ID:          c.id,
			Name:        c.name,
			ResumeToken: c.resumeToken,
			Pos:         c.pos.Array(),
			Vel:         c.vel.Array(),
			Facing:      c.facing.Array(),
			Health:      c.health,
			Alive:       c.alive,
			RespawnIn:   c.respawnIn,
			HeldPowerUp: uint16(c.inv.Held()),
			Kills:       c.kills,
			Deaths:      c.deaths,
			Dealt:       c.dealt,
			Taken:       c.taken,
		}
		for _, e := range c.effects.Active() {
			cs.Effects = append(cs.Effects, snapshot.EffectV1{Kind: uint8(e.Kind), Magnitude: e.Magnitude, Duration: e.Duration})
		}
		s.Characters = append(s.Characters, cs)
	}
	for _, v := range w.field.Volumes() {
		s.Pickups = append(s.Pickups, snapshot.PickupV1{Name: v.Name, Cooldown: v.Cooldown()})
	}
	return s
}
