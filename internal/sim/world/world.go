package world

import (
	"fmt"
	"sync/atomic"

	"skirmish.gg/internal/persistence/snapshot"
	"skirmish.gg/internal/protocol"
	"skirmish.gg/internal/sim/world/feature/combat/damage"
	"skirmish.gg/internal/sim/world/feature/powerups"
	"skirmish.gg/internal/sim/world/feature/replication"
	"skirmish.gg/internal/sim/world/logic/spatial"
)

// Frame is one outgoing message. Binary frames carry msgpack patches, text
// frames carry JSON.
type Frame struct {
	Binary bool
	Data   []byte
}

type JoinRequest struct {
	Name        string
	Observer    bool
	ResumeToken string
	Out         chan Frame
	Resp        chan JoinResponse
}

// JoinResponse carries the welcome, or Err when the join was refused.
// ClientID is what the transport sends on Leave; for observers it differs
// from the (empty) entity id.
type JoinResponse struct {
	Welcome  protocol.WelcomeMsg
	ClientID string
	Err      *protocol.ErrorMsg
}

type InputEnvelope struct {
	EntityID string
	Input    protocol.InputMsg
}

type RecordedJoin struct {
	EntityID string `json:"entity_id"`
	Name     string `json:"name"`
	Observer bool   `json:"observer,omitempty"`
	Resumed  bool   `json:"resumed,omitempty"`
}

type RecordedInput struct {
	EntityID string            `json:"entity_id"`
	Input    protocol.InputMsg `json:"input"`
}

type KillRecord struct {
	Tick   uint64 `json:"tick"`
	Killer string `json:"killer,omitempty"`
	Victim string `json:"victim"`
}

// DeliveryRecord is the journal form of one damage report. ID is assigned by
// the journal, not the world.
type DeliveryRecord struct {
	ID        string  `json:"id,omitempty"`
	Tick      uint64  `json:"tick"`
	Target    string  `json:"target,omitempty"`
	Sender    string  `json:"sender,omitempty"`
	Value     float64 `json:"value"`
	Kind      string  `json:"kind"`
	Stunlock  float64 `json:"stunlock,omitempty"`
	Delivered bool    `json:"delivered"`
	Lethal    bool    `json:"lethal,omitempty"`
	Blocked   bool    `json:"blocked,omitempty"`
}

type TickLogEntry struct {
	Tick    uint64          `json:"tick"`
	Joins   []RecordedJoin  `json:"joins,omitempty"`
	Leaves  []string        `json:"leaves,omitempty"`
	Inputs  []RecordedInput `json:"inputs,omitempty"`
	Kills   []KillRecord    `json:"kills,omitempty"`
	Reports int             `json:"reports,omitempty"`
	Digest  string          `json:"digest"`
}

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

type DeliveryLogger interface {
	WriteDelivery(rec DeliveryRecord) error
}

type client struct {
	id        string
	sessionID string
	observer  bool
	out       chan Frame
	resync    bool
}

// World is a single-threaded authoritative arena.
// All state must be accessed only from the world loop goroutine.
type World struct {
	cfg WorldConfig

	tick atomic.Uint64

	registry *powerups.Registry
	pipeline *damage.Pipeline
	spatial  *spatial.Index
	field    *powerups.Field

	chars   map[string]*Character
	clients map[string]*client
	tokens  map[string]string

	nextCharNum     atomic.Uint64
	nextObserverNum atomic.Uint64

	// Per-tick scratch, reset by stepInternal.
	events      []protocol.Event
	kills       []KillRecord
	deliveries  []DeliveryRecord
	lastStates  map[string]replication.EntityState
	recentKills []KillRecord

	inbox chan InputEnvelope
	join  chan JoinRequest
	leave chan string
	stop  chan struct{}

	tickLogger     TickLogger
	deliveryLogger DeliveryLogger
	snapshotSink   chan<- snapshot.ArenaSnapshot
	snapshotEvery  uint64

	metrics atomic.Value
	stats   Stats
}

const recentKillsMax = 32

func New(cfg WorldConfig) (*World, error) {
	cfg.applyDefaults()
	reg, err := powerups.NewRegistry(cfg.PowerUps...)
	if err != nil {
		return nil, fmt.Errorf("powerups: %w", err)
	}
	field, dropped := powerups.NewField(reg, cfg.Pickups)
	if len(dropped) > 0 {
		return nil, fmt.Errorf("pickups reference unknown power-ups: %v", dropped)
	}
	p := damage.NewPipeline()
	p.MaxFlush = cfg.MaxFlush

	w := &World{
		cfg:        cfg,
		registry:   reg,
		pipeline:   p,
		spatial:    spatial.NewIndex(4),
		field:      field,
		chars:      map[string]*Character{},
		clients:    map[string]*client{},
		tokens:     map[string]string{},
		lastStates: map[string]replication.EntityState{},
		inbox:      make(chan InputEnvelope, 1024),
		join:       make(chan JoinRequest, 64),
		leave:      make(chan string, 64),
		stop:       make(chan struct{}),
		stats:      newStats(uint64(cfg.TickRateHz)*5, uint64(cfg.TickRateHz)*60),
	}
	p.Subscribe("world:journal", w.recordReport)
	p.Subscribe("world:killfeed", w.onKill)
	return w, nil
}

func (w *World) SetTickLogger(l TickLogger)         { w.tickLogger = l }
func (w *World) SetDeliveryLogger(l DeliveryLogger) { w.deliveryLogger = l }

// SetSnapshotSink makes the loop hand an arena snapshot to ch every n ticks.
// Writing it is the receiver's job.
func (w *World) SetSnapshotSink(ch chan<- snapshot.ArenaSnapshot, every uint64) {
	w.snapshotSink = ch
	w.snapshotEvery = every
}

func (w *World) Inbox() chan<- InputEnvelope { return w.inbox }
func (w *World) Join() chan<- JoinRequest    { return w.join }
func (w *World) Leave() chan<- string        { return w.leave }

func (w *World) CurrentTick() uint64 { return w.tick.Load() }

func (w *World) ID() string {
	if w == nil {
		return ""
	}
	return w.cfg.ID
}

func (w *World) TickRateHz() int {
	if w == nil {
		return 0
	}
	return w.cfg.TickRateHz
}

func (w *World) Registry() *powerups.Registry { return w.registry }

// Pipeline exposes the damage pipeline. Only the world loop may deliver on it.
func (w *World) Pipeline() *damage.Pipeline { return w.pipeline }

// Character returns the live character with id. World loop only.
func (w *World) Character(id string) *Character { return w.chars[id] }

func (w *World) powerUpDigest() protocol.PowerUpDigest {
	return protocol.PowerUpDigest{
		Palette: append([]string(nil), w.registry.Palette...),
		Digest:  w.registry.PaletteDigest,
	}
}
