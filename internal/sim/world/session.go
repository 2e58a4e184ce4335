package world

import (
	"math"

	"github.com/google/uuid"

	"skirmish.gg/internal/protocol"
	"skirmish.gg/internal/sim/world/logic/ids"
	"skirmish.gg/internal/sim/world/logic/mathx"
)

func (w *World) handleJoin(nowTick uint64, req JoinRequest) (RecordedJoin, bool) {
	if req.Observer {
		id := ids.Observer(w.nextObserverNum.Add(1))
		cl := &client{id: id, sessionID: uuid.NewString(), observer: true, out: req.Out}
		w.clients[id] = cl
		respond(req, JoinResponse{Welcome: w.welcome(cl, "", ""), ClientID: id})
		return RecordedJoin{EntityID: id, Name: req.Name, Observer: true}, true
	}

	if id, ok := w.tokens[req.ResumeToken]; ok && req.ResumeToken != "" {
		if c := w.chars[id]; c != nil && c.detached {
			c.detached = false
			cl := &client{id: id, sessionID: uuid.NewString(), out: req.Out}
			w.clients[id] = cl
			respond(req, JoinResponse{Welcome: w.welcome(cl, id, c.resumeToken), ClientID: id})
			return RecordedJoin{EntityID: id, Name: c.name, Resumed: true}, true
		}
	}

	if w.liveCharacters() >= w.cfg.MaxPlayers {
		e := protocol.NewError(protocol.ErrArenaFull, "arena is full")
		respond(req, JoinResponse{Err: &e})
		return RecordedJoin{}, false
	}

	num := w.nextCharNum.Add(1)
	id := ids.Character(num)
	name := req.Name
	if name == "" {
		name = id
	}
	c := newCharacter(id, name, &w.cfg)
	if err := c.equip(w); err != nil {
		e := protocol.NewError(protocol.ErrInternal, err.Error())
		respond(req, JoinResponse{Err: &e})
		return RecordedJoin{}, false
	}
	c.pos = w.spawnPoint(nowTick, c)
	if n := c.pos.Normalize(); !n.IsZero() {
		c.facing = n.Scale(-1)
	}
	c.resumeToken = uuid.NewString()
	w.chars[id] = c
	w.tokens[c.resumeToken] = id
	w.track(c)

	cl := &client{id: id, sessionID: uuid.NewString(), out: req.Out}
	w.clients[id] = cl
	respond(req, JoinResponse{Welcome: w.welcome(cl, id, c.resumeToken), ClientID: id})
	w.events = append(w.events, protocol.Event{Type: protocol.EventJoin, Target: id})
	return RecordedJoin{EntityID: id, Name: name}, true
}

func respond(req JoinRequest, resp JoinResponse) {
	if req.Resp == nil {
		return
	}
	select {
	case req.Resp <- resp:
	default:
	}
}

func (w *World) welcome(cl *client, entityID, token string) protocol.WelcomeMsg {
	return protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		EntityID:        entityID,
		SessionID:       cl.sessionID,
		ResumeToken:     token,
		TickRateHz:      w.cfg.TickRateHz,
		ArenaRadius:     w.cfg.ArenaRadius,
		PowerUps:        w.powerUpDigest(),
	}
}

// handleLeave detaches a client. Characters stay in the arena until the
// reconnect grace runs out.
func (w *World) handleLeave(nowTick uint64, id string) bool {
	cl := w.clients[id]
	if cl == nil {
		return false
	}
	delete(w.clients, id)
	if c := w.chars[id]; c != nil {
		c.detached = true
		c.detachedSince = nowTick
		c.move = mathx.Vec2{}
		c.coord.StopAll(true)
	}
	return true
}

func (w *World) expireDetached(nowTick uint64) {
	grace := uint64(w.cfg.ReconnectGraceTicks)
	for _, id := range w.sortedCharacterIDs() {
		c := w.chars[id]
		if !c.detached || nowTick-c.detachedSince < grace {
			continue
		}
		w.removeCharacter(c)
	}
}

func (w *World) removeCharacter(c *Character) {
	c.coord.StopAll(true)
	c.destroyed = true
	w.pipeline.Release(c.id)
	c.tracker = nil
	delete(w.chars, c.id)
	delete(w.tokens, c.resumeToken)
	w.events = append(w.events, protocol.Event{Type: protocol.EventLeave, Target: c.id})
}

func (w *World) liveCharacters() int {
	n := 0
	for _, c := range w.chars {
		if !c.destroyed {
			n++
		}
	}
	return n
}

// spawnPoint picks a point on the spawn ring from the world seed, the tick
// and the character number, so replays spawn identically.
func (w *World) spawnPoint(nowTick uint64, c *Character) mathx.Vec2 {
	num, _ := ids.ParseUintAfterPrefix(ids.CharacterPrefix, c.id)
	h := mathx.Hash2(w.cfg.Seed, int(nowTick), int(num)+c.deaths)
	angle := 2 * math.Pi * mathx.Unit(h)
	r := w.cfg.SpawnRingRadius
	return mathx.V(mathx.Round3(r*math.Cos(angle)), mathx.Round3(r*math.Sin(angle)))
}
