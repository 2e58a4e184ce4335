package main

import (
	"encoding/json"
	"flag"
	"log"
	"math"
	"math/rand/v2"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"skirmish.gg/internal/protocol"
	"skirmish.gg/internal/sim/world/feature/replication"
)

func main() {
	var (
		url      = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name     = flag.String("name", "bot", "character name")
		observer = flag.Bool("observe", false, "join as an observer and only log events")
		seed     = flag.Uint64("seed", uint64(time.Now().UnixNano()), "decision rng seed")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		Name:            *name,
		Observer:        *observer,
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}
	_, msg, err := conn.ReadMessage()
	if err != nil {
		logger.Fatalf("read WELCOME: %v", err)
	}
	var welcome protocol.WelcomeMsg
	if err := json.Unmarshal(msg, &welcome); err != nil || welcome.Type != protocol.TypeWelcome {
		logger.Fatalf("expected WELCOME, got %s", msg)
	}
	logger.Printf("WELCOME entity=%s session=%s tick_rate=%d powerups=%v", welcome.EntityID, welcome.SessionID, welcome.TickRateHz, welcome.PowerUps.Palette)

	b := newBot(welcome.EntityID, rand.New(rand.NewPCG(*seed, *seed>>1)))

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	done := make(chan struct{})
	go func() {
		defer close(done)
		b.readLoop(conn, logger)
	}()

	if *observer || welcome.EntityID == "" {
		select {
		case <-stop:
		case <-done:
		}
		return
	}

	ticker := time.NewTicker(time.Second / time.Duration(max(welcome.TickRateHz, 1)))
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-done:
			return
		case <-ticker.C:
			in, ok := b.decide()
			if !ok {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(in); err != nil {
				logger.Printf("send INPUT: %v", err)
				return
			}
		}
	}
}

// bot keeps a mirror of the arena and picks inputs from it. It is a plain
// participant: the server decides what actually happens.
type bot struct {
	self string
	rng  *rand.Rand

	mu     sync.Mutex
	mirror *replication.Mirror
}

func newBot(self string, rng *rand.Rand) *bot {
	return &bot{self: self, rng: rng, mirror: replication.NewMirror()}
}

func (b *bot) readLoop(conn *websocket.Conn, logger *log.Logger) {
	for {
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			logger.Printf("read: %v", err)
			return
		}
		if mt == websocket.BinaryMessage {
			p, err := replication.Decode(msg)
			if err != nil {
				logger.Printf("bad patch: %v", err)
				continue
			}
			b.mu.Lock()
			b.mirror.Apply(p)
			b.mu.Unlock()
			continue
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeEvent:
			var ev protocol.EventMsg
			if err := json.Unmarshal(msg, &ev); err != nil {
				continue
			}
			for _, e := range ev.Events {
				switch e.Type {
				case protocol.EventKill:
					logger.Printf("tick=%d KILL %s -> %s", ev.Tick, orSelf(e.Sender), e.Target)
				case protocol.EventPowerUp:
					logger.Printf("tick=%d POWERUP %s by %s", ev.Tick, e.PowerUp, e.Sender)
				}
			}
		case protocol.TypeError:
			var e protocol.ErrorMsg
			if err := json.Unmarshal(msg, &e); err == nil {
				logger.Printf("ERROR %s %s", e.Code, e.Message)
			}
		}
	}
}

// decide walks toward the nearest living opponent and swings when close.
func (b *bot) decide() (protocol.InputMsg, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	me, ok := b.mirror.Get(b.self)
	if !ok || !me.Alive {
		return protocol.InputMsg{}, false
	}
	in := protocol.InputMsg{
		Type:            protocol.TypeInput,
		ProtocolVersion: protocol.Version,
		Tick:            b.mirror.LastTick(),
		Facing:          me.Facing,
	}

	target, dist := b.nearest(me)
	if target == nil {
		// Wander.
		a := b.rng.Float64() * 2 * math.Pi
		in.Move = [2]float64{math.Cos(a), math.Sin(a)}
		return in, true
	}
	dx, dy := target.Pos[0]-me.Pos[0], target.Pos[1]-me.Pos[1]
	if dist > 0 {
		dx, dy = dx/dist, dy/dist
		in.Facing = [2]float64{dx, dy}
	}
	if dist > 1.2 {
		in.Move = [2]float64{dx, dy}
	}

	switch {
	case target.Activity == "attack" && dist < 2 && me.Charges > 0 && b.rng.IntN(3) == 0:
		in.Actions = append(in.Actions, protocol.ActionDodge)
	case target.Activity == "attack" && dist < 2:
		in.Actions = append(in.Actions, protocol.ActionBlock)
	case me.Blocking:
		in.Actions = append(in.Actions, protocol.ActionUnblock)
	case dist < 1.8:
		in.Actions = append(in.Actions, protocol.ActionAttack)
	}
	if me.HeldPowerUp != 0 && b.rng.IntN(20) == 0 {
		in.Actions = append(in.Actions, protocol.ActionUsePowerUp)
	}
	return in, true
}

func (b *bot) nearest(me replication.EntityState) (*replication.EntityState, float64) {
	var best *replication.EntityState
	bestDist := math.Inf(1)
	for _, id := range b.mirror.IDs() {
		if id == b.self {
			continue
		}
		st, _ := b.mirror.Get(id)
		if !st.Alive {
			continue
		}
		d := math.Hypot(st.Pos[0]-me.Pos[0], st.Pos[1]-me.Pos[1])
		if d < bestDist {
			s := st
			best, bestDist = &s, d
		}
	}
	return best, bestDist
}

func orSelf(id string) string {
	if id == "" {
		return "(self)"
	}
	return id
}
