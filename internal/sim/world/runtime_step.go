package world

import (
	"encoding/json"
	"sort"
	"time"

	"skirmish.gg/internal/protocol"
	"skirmish.gg/internal/sim/world/feature/combat/effects"
	"skirmish.gg/internal/sim/world/feature/powerups"
	"skirmish.gg/internal/sim/world/feature/replication"
	"skirmish.gg/internal/sim/world/logic/ids"
	"skirmish.gg/internal/sim/world/logic/mathx"
	"skirmish.gg/internal/sim/world/logic/perms"
	"skirmish.gg/internal/sim/world/logic/spatial"
)

// stepInternal runs one tick. Ordering: leaves, joins, inputs, timers,
// proximity, activities, deliveries, movement, pickups, replication, logs.
func (w *World) stepInternal(joins []JoinRequest, leaves []string, inputs []InputEnvelope) TickLogEntry {
	stepStart := time.Now()
	nowTick := w.tick.Load()
	dt := w.dt()

	w.events = w.events[:0]
	w.kills = nil
	w.deliveries = nil
	w.pipeline.SetTick(nowTick)

	recordedLeaves := make([]string, 0, len(leaves))
	for _, id := range leaves {
		if w.handleLeave(nowTick, id) {
			recordedLeaves = append(recordedLeaves, id)
		}
	}
	recordedJoins := make([]RecordedJoin, 0, len(joins))
	fresh := map[string]bool{}
	for _, req := range joins {
		rj, ok := w.handleJoin(nowTick, req)
		if !ok {
			continue
		}
		recordedJoins = append(recordedJoins, rj)
		fresh[rj.EntityID] = true
	}
	w.expireDetached(nowTick)

	recordedInputs := w.applyInputs(nowTick, inputs)

	order := w.sortedCharacterIDs()
	for _, id := range order {
		c := w.chars[id]
		c.effects.Tick(dt)
		if c.tickTimers(dt) {
			c.respawn(w.spawnPoint(nowTick, c))
			pos := c.pos.Array()
			w.events = append(w.events, protocol.Event{Type: protocol.EventRespawn, Target: c.id, Pos: &pos})
		}
	}

	w.rebuildSpatial(order)
	for _, id := range order {
		if c := w.chars[id]; c.alive {
			c.poller.Tick(dt, c.pos)
		}
	}

	for _, id := range order {
		c := w.chars[id]
		c.coord.Resolve()
		c.coord.Advance(dt)
	}
	w.pipeline.Flush()

	for _, id := range order {
		w.integrate(w.chars[id], dt)
	}

	w.field.Tick(dt)
	for _, id := range order {
		w.collectPickup(w.chars[id])
	}

	states := w.entityStates()
	patch := replication.Diff(nowTick, w.lastStates, states)
	w.lastStates = states
	w.broadcast(nowTick, patch, states, fresh)

	digest := w.stateDigest(nowTick)
	entry := TickLogEntry{
		Tick:    nowTick,
		Joins:   recordedJoins,
		Leaves:  recordedLeaves,
		Inputs:  recordedInputs,
		Kills:   w.kills,
		Reports: len(w.deliveries),
		Digest:  digest,
	}
	if w.tickLogger != nil {
		_ = w.tickLogger.WriteTick(entry)
	}
	if w.deliveryLogger != nil {
		for _, rec := range w.deliveries {
			_ = w.deliveryLogger.WriteDelivery(rec)
		}
	}
	if w.snapshotSink != nil && w.snapshotEvery > 0 && nowTick != 0 && nowTick%w.snapshotEvery == 0 {
		select {
		case w.snapshotSink <- w.ExportSnapshot(nowTick):
		default:
		}
	}

	w.tick.Add(1)
	w.publishMetrics(nowTick, time.Since(stepStart))
	return entry
}

func (w *World) sortedCharacterIDs() []string {
	out := make([]string, 0, len(w.chars))
	for id := range w.chars {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return ids.Less(out[i], out[j]) })
	return out
}

func (w *World) rebuildSpatial(order []string) {
	w.spatial.Reset()
	for _, id := range order {
		c := w.chars[id]
		if !c.alive || c.destroyed {
			continue
		}
		w.spatial.Insert(spatial.Candidate{ID: c.id, Pos: c.pos, Radius: w.cfg.Character.BodyRadius, Ref: c})
	}
}

func (w *World) applyInputs(nowTick uint64, inputs []InputEnvelope) []RecordedInput {
	recorded := make([]RecordedInput, 0, len(inputs))
	for _, env := range inputs {
		c := w.chars[env.EntityID]
		if c == nil || c.detached {
			continue
		}
		if ok, cooldown := c.inputs.Allow(nowTick); !ok {
			if cl := w.clients[c.id]; cl != nil && cooldown > 0 {
				w.sendError(cl, protocol.NewError(protocol.ErrRateLimit, "too many inputs"))
			}
			continue
		}
		recorded = append(recorded, RecordedInput{EntityID: c.id, Input: env.Input})
		w.applyInput(c, env.Input)
	}
	return recorded
}

func (w *World) applyInput(c *Character, in protocol.InputMsg) {
	if !c.alive {
		c.move = mathx.Vec2{}
		return
	}
	c.move = mathx.FromArray(in.Move).ClampLen(1)
	if c.coord.Active() == nil {
		c.SetFacing(mathx.FromArray(in.Facing))
	}
	for _, a := range in.Actions {
		switch a {
		case protocol.ActionDodge:
			c.coord.Request(c.coord.Slot(SlotDodge))
		case protocol.ActionAttack:
			c.coord.Request(c.coord.Slot(SlotAttack))
		case protocol.ActionBlock:
			c.coord.Request(c.coord.Slot(SlotBlock))
		case protocol.ActionUsePowerUp:
			c.coord.Request(c.coord.Slot(SlotUsePowerUp))
		case protocol.ActionUnblock:
			if s := c.coord.Slot(SlotBlock); s != nil && s.Playing() {
				s.Stop(false)
			}
		}
	}
}

func (w *World) integrate(c *Character, dt float64) {
	if !c.alive || c.destroyed {
		return
	}
	c.pos = c.pos.Add(c.walkVelocity().Add(c.vel).Scale(dt))
	decay := 1 - w.cfg.Friction*dt
	if decay < 0 {
		decay = 0
	}
	c.vel = c.vel.Scale(decay)
	if c.vel.Len() < 1e-6 {
		c.vel = mathx.Vec2{}
	}

	limit := w.cfg.ArenaRadius - w.cfg.Character.BodyRadius
	if c.pos.Len() > limit {
		n := c.pos.Normalize()
		c.pos = n.Scale(limit)
		if out := c.vel.Dot(n); out > 0 {
			c.vel = c.vel.Sub(n.Scale(out))
		}
	}
}

func (w *World) collectPickup(c *Character) {
	if !c.alive || c.destroyed || !c.coord.Allows(perms.CanPickUp) {
		return
	}
	v := w.field.Touching(c.pos, w.cfg.Character.BodyRadius)
	if v == nil {
		return
	}
	claimed := powerups.Claim(v, w.registry, &c.inv, func(p powerups.PowerUp) {
		w.activatePowerUp(c, p)
	})
	if !claimed {
		return
	}
	pos := v.Pos.Array()
	w.events = append(w.events, protocol.Event{Type: protocol.EventPickup, Sender: c.id, PowerUp: v.Key, Pos: &pos})
}

func (w *World) entityStates() map[string]replication.EntityState {
	out := make(map[string]replication.EntityState, len(w.chars))
	for id, c := range w.chars {
		if c.destroyed {
			continue
		}
		out[id] = replication.EntityState{
			ID:          c.id,
			Name:        c.name,
			Pos:         [2]float64{mathx.Round3(c.pos.X), mathx.Round3(c.pos.Y)},
			Facing:      [2]float64{mathx.Round3(c.facing.X), mathx.Round3(c.facing.Y)},
			Health:      mathx.Round3(c.health),
			MaxHealth:   w.cfg.Character.MaxHealth,
			Alive:       c.alive,
			Stunned:     c.stun > 0,
			Blocking:    c.IsBlocking(),
			Activity:    c.activityName(),
			Charges:     c.dodge.Counter(),
			HeldPowerUp: uint16(c.inv.Held()),
			SpeedMult:   mathx.Round3(c.effects.Multiplier(effects.KindSpeed)),
			DamageMult:  mathx.Round3(c.effects.Multiplier(effects.KindDamage)),
			Kills:       c.kills,
			Deaths:      c.deaths,
		}
	}
	return out
}

// broadcast sends the tick's patch and events. Fresh and resyncing clients
// get a full patch instead of the diff.
func (w *World) broadcast(nowTick uint64, patch replication.Patch, states map[string]replication.EntityState, fresh map[string]bool) {
	if len(w.clients) == 0 {
		return
	}
	var diffFrame, fullFrame *Frame
	encode := func(p replication.Patch) *Frame {
		b, err := replication.Encode(p)
		if err != nil {
			return nil
		}
		return &Frame{Binary: true, Data: b}
	}
	var eventFrame *Frame
	if len(w.events) > 0 {
		b, err := json.Marshal(protocol.EventMsg{
			Type:            protocol.TypeEvent,
			ProtocolVersion: protocol.Version,
			Tick:            nowTick,
			Events:          w.events,
		})
		if err == nil {
			eventFrame = &Frame{Data: b}
		}
	}

	clientIDs := make([]string, 0, len(w.clients))
	for id := range w.clients {
		clientIDs = append(clientIDs, id)
	}
	sort.Strings(clientIDs)
	for _, id := range clientIDs {
		cl := w.clients[id]
		var f *Frame
		if fresh[id] || cl.resync {
			if fullFrame == nil {
				fullFrame = encode(replication.Full(nowTick, states))
			}
			f = fullFrame
			cl.resync = false
		} else if !patch.Empty() {
			if diffFrame == nil {
				diffFrame = encode(patch)
			}
			f = diffFrame
		}
		if f != nil && sendLatest(cl.out, *f) {
			cl.resync = true
		}
		if eventFrame != nil && sendLatest(cl.out, *eventFrame) {
			cl.resync = true
		}
	}
}

func (w *World) sendError(cl *client, msg protocol.ErrorMsg) {
	b, err := json.Marshal(msg)
	if err != nil {
		return
	}
	if sendLatest(cl.out, Frame{Data: b}) {
		cl.resync = true
	}
}
