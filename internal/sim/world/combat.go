package world

import (
	"skirmish.gg/internal/protocol"
	"skirmish.gg/internal/sim/world/feature/activity"
	"skirmish.gg/internal/sim/world/feature/combat/damage"
	"skirmish.gg/internal/sim/world/feature/powerups"
	"skirmish.gg/internal/sim/world/logic/mathx"
	"skirmish.gg/internal/sim/world/logic/spatial"
)

// recordReport turns every report into a REPORT event and a journal record.
// Deliveries to invalid targets never reach observers.
func (w *World) recordReport(r damage.Report) {
	value := r.Damage.Value
	w.events = append(w.events, protocol.Event{
		Type:      protocol.EventReport,
		Target:    r.TargetID(),
		Sender:    r.SenderID(),
		Value:     mathx.Round3(value),
		Delivered: r.IsDelivered,
		Lethal:    r.IsLethal,
		Blocked:   r.Blocked,
	})
	kind := r.Damage.Kind.String()
	if r.Damage.IsHeal() {
		kind = "HEAL"
	}
	w.deliveries = append(w.deliveries, DeliveryRecord{
		Tick:      r.Tick,
		Target:    r.TargetID(),
		Sender:    r.SenderID(),
		Value:     value,
		Kind:      kind,
		Stunlock:  r.Damage.Stunlock,
		Delivered: r.IsDelivered,
		Lethal:    r.IsLethal,
		Blocked:   r.Blocked,
	})
	w.stats.observe(r)
}

func (w *World) onKill(r damage.Report) {
	if !r.IsLethal {
		return
	}
	killer := r.SenderID()
	if killer == r.TargetID() {
		killer = ""
	}
	if c := w.chars[killer]; c != nil {
		c.kills++
	}
	k := KillRecord{Tick: r.Tick, Killer: killer, Victim: r.TargetID()}
	w.kills = append(w.kills, k)
	w.recentKills = append(w.recentKills, k)
	if n := len(w.recentKills); n > recentKillsMax {
		w.recentKills = append(w.recentKills[:0:0], w.recentKills[n-recentKillsMax:]...)
	}
	w.events = append(w.events, protocol.Event{Type: protocol.EventKill, Target: k.Victim, Sender: killer})
}

// onActivity turns play starts and stops into ACTIVITY events. A starting
// attack drops the cached targets so the swing aims at current positions.
func (w *World) onActivity(c *Character, ev activity.Event) {
	if ev.Registration || ev.Slot == nil {
		return
	}
	var state string
	switch ev.Kind {
	case activity.EventAdd:
		state = protocol.ActivityStart
		if ev.Slot.Name() == SlotAttack {
			c.poller.Invalidate()
		}
	case activity.EventRemove:
		state = protocol.ActivityStop
		if ev.Forced {
			state = protocol.ActivityInterrupt
		}
	default:
		return
	}
	w.events = append(w.events, protocol.Event{
		Type:     protocol.EventActivity,
		Target:   c.id,
		Activity: ev.Slot.Name(),
		State:    state,
	})
}

// track subscribes the character's combat tracker. It is released with the
// character.
func (w *World) track(c *Character) {
	c.tracker = w.pipeline.Subscribe(c.id, func(r damage.Report) {
		if !r.IsDelivered || r.Damage.IsHeal() || r.SenderID() != c.id || r.TargetID() == c.id {
			return
		}
		c.dealt += r.Damage.Value
	})
}

func (w *World) activatePowerUp(c *Character, p powerups.PowerUp) {
	if p == nil {
		return
	}
	p.Activate(powerups.Context{
		Tick:    w.tick.Load(),
		User:    c,
		Deliver: w.pipeline.Enqueue,
		Nearby:  w.nearby,
	})
	pres := powerups.Present(p)
	pos := c.pos.Array()
	w.events = append(w.events, protocol.Event{
		Type:    protocol.EventPowerUp,
		Sender:  c.id,
		PowerUp: p.Key(),
		Cue:     pres.Cue,
		Radius:  pres.Radius,
		Pos:     &pos,
	})
}

// nearby reads live positions rather than the index built at the start of
// the tick, so area effects see where characters stand now.
func (w *World) nearby(origin mathx.Vec2, radius float64) []spatial.Candidate {
	cands := w.spatial.FindCandidates(origin, radius+w.cfg.Character.BodyRadius)
	out := cands[:0]
	for _, cand := range cands {
		c, ok := cand.Ref.(*Character)
		if !ok || !c.alive || c.destroyed {
			continue
		}
		cand.Pos = c.pos
		if cand.Pos.Dist(origin) > radius+cand.Radius {
			continue
		}
		out = append(out, cand)
	}
	return out
}
