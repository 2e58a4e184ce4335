package worldtest

import (
	"encoding/json"
	"testing"

	"skirmish.gg/internal/protocol"
	"skirmish.gg/internal/sim/tuning"
	world "skirmish.gg/internal/sim/world"
	"skirmish.gg/internal/sim/world/feature/replication"
	"skirmish.gg/internal/sim/world/logic/mathx"
)

// Harness is a small black-box test helper for driving a world via exported APIs:
// - Join()/Observe() issue JoinRequests via StepOnce()
// - Step() feeds inputs via StepOnce()
// - every session keeps a replication mirror fed from its binary frames and
//   collects the EVENT and ERROR messages it received
//
// It intentionally avoids touching world internals so tests can live outside the world package.
type Harness struct {
	T *testing.T
	W *world.World

	sessions map[string]*Session
	order    []string
}

type Session struct {
	ID          string
	ResumeToken string
	Out         chan world.Frame
	Mirror      *replication.Mirror
	Events      []protocol.Event
	Errors      []protocol.ErrorMsg
}

// DefaultConfig is the default tuning with a fixed seed and no pickups.
func DefaultConfig(t *testing.T) world.WorldConfig {
	t.Helper()
	cfg, err := world.ConfigFromTuning("test", tuning.Defaults())
	if err != nil {
		t.Fatalf("ConfigFromTuning: %v", err)
	}
	cfg.Seed = 42
	return cfg
}

func NewHarness(t *testing.T, cfg world.WorldConfig) *Harness {
	t.Helper()
	w, err := world.New(cfg)
	if err != nil {
		t.Fatalf("world.New: %v", err)
	}
	return &Harness{T: t, W: w, sessions: map[string]*Session{}}
}

func (h *Harness) Join(name string) string {
	h.T.Helper()
	return h.join(world.JoinRequest{Name: name})
}

func (h *Harness) Observe() string {
	h.T.Helper()
	return h.join(world.JoinRequest{Name: "observer", Observer: true})
}

func (h *Harness) Resume(token string) string {
	h.T.Helper()
	return h.join(world.JoinRequest{ResumeToken: token})
}

// JoinRaw steps one tick with req and returns the response without
// registering a session.
func (h *Harness) JoinRaw(req world.JoinRequest) world.JoinResponse {
	h.T.Helper()
	resp := make(chan world.JoinResponse, 1)
	req.Resp = resp
	if req.Out == nil {
		req.Out = make(chan world.Frame, 64)
	}
	_, _ = h.W.StepOnce([]world.JoinRequest{req}, nil, nil)
	h.drainAll()
	return <-resp
}

func (h *Harness) join(req world.JoinRequest) string {
	h.T.Helper()
	out := make(chan world.Frame, 64)
	resp := make(chan world.JoinResponse, 1)
	req.Out = out
	req.Resp = resp
	_, _ = h.W.StepOnce([]world.JoinRequest{req}, nil, nil)
	jr := <-resp
	if jr.Err != nil {
		h.T.Fatalf("join: %s %s", jr.Err.Code, jr.Err.Message)
	}
	id := jr.ClientID
	if id == "" {
		h.T.Fatalf("join returned empty entity id")
	}
	s := &Session{ID: id, ResumeToken: jr.Welcome.ResumeToken, Out: out, Mirror: replication.NewMirror()}
	h.sessions[id] = s
	h.order = append(h.order, id)
	h.drainAll()
	return id
}

func (h *Harness) Session(id string) *Session {
	h.T.Helper()
	s := h.sessions[id]
	if s == nil {
		h.T.Fatalf("unknown session %q", id)
	}
	return s
}

// Leave drops the session's client. The key is the id Join/Observe returned.
func (h *Harness) Leave(id string) {
	h.T.Helper()
	_, _ = h.W.StepOnce(nil, []string{id}, nil)
	delete(h.sessions, id)
	h.drainAll()
}

func (h *Harness) Step(inputs ...world.InputEnvelope) (uint64, string) {
	h.T.Helper()
	tick, digest := h.W.StepOnce(nil, nil, inputs)
	h.drainAll()
	return tick, digest
}

// StepFor advances n ticks with no input.
func (h *Harness) StepFor(n int) {
	h.T.Helper()
	for i := 0; i < n; i++ {
		h.Step()
	}
}

// StepSeconds advances enough ticks to cover s seconds.
func (h *Harness) StepSeconds(s float64) {
	h.T.Helper()
	n := int(s*float64(h.W.TickRateHz()) + 0.999)
	h.StepFor(n)
}

// Input builds an INPUT for id.
func (h *Harness) Input(id string, move, facing mathx.Vec2, actions ...string) world.InputEnvelope {
	return world.InputEnvelope{
		EntityID: id,
		Input: protocol.InputMsg{
			Type:            protocol.TypeInput,
			ProtocolVersion: protocol.Version,
			Tick:            h.W.CurrentTick(),
			Move:            move.Array(),
			Facing:          facing.Array(),
			Actions:         actions,
		},
	}
}

// State reads what viewer's mirror knows about id.
func (h *Harness) State(viewer, id string) replication.EntityState {
	h.T.Helper()
	st, ok := h.Session(viewer).Mirror.Get(id)
	if !ok {
		h.T.Fatalf("%s has no state for %s", viewer, id)
	}
	return st
}

// TakeEvents returns and clears the events viewer received.
func (h *Harness) TakeEvents(viewer string) []protocol.Event {
	s := h.Session(viewer)
	out := s.Events
	s.Events = nil
	return out
}

func (h *Harness) drainAll() {
	h.T.Helper()
	for _, id := range h.order {
		if s := h.sessions[id]; s != nil {
			h.drainOne(s)
		}
	}
}

func (h *Harness) drainOne(s *Session) {
	h.T.Helper()
	for {
		select {
		case f := <-s.Out:
			h.handleFrame(s, f)
			continue
		default:
		}
		break
	}
}

func (h *Harness) handleFrame(s *Session, f world.Frame) {
	h.T.Helper()
	if f.Binary {
		p, err := replication.Decode(f.Data)
		if err != nil {
			h.T.Fatalf("decode patch: %v", err)
		}
		s.Mirror.Apply(p)
		return
	}
	base, err := protocol.DecodeBase(f.Data)
	if err != nil {
		h.T.Fatalf("decode frame: %v", err)
	}
	switch base.Type {
	case protocol.TypeEvent:
		var msg protocol.EventMsg
		if err := json.Unmarshal(f.Data, &msg); err != nil {
			h.T.Fatalf("unmarshal EVENT: %v", err)
		}
		s.Events = append(s.Events, msg.Events...)
	case protocol.TypeError:
		var msg protocol.ErrorMsg
		if err := json.Unmarshal(f.Data, &msg); err != nil {
			h.T.Fatalf("unmarshal ERROR: %v", err)
		}
		s.Errors = append(s.Errors, msg)
	}
}

// FindEvents filters events by type.
func FindEvents(evs []protocol.Event, typ string) []protocol.Event {
	var out []protocol.Event
	for _, e := range evs {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}
