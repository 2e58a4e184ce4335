package powerups

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"skirmish.gg/internal/sim/world/feature/combat/damage"
	"skirmish.gg/internal/sim/world/feature/combat/effects"
	"skirmish.gg/internal/sim/world/logic/mathx"
	"skirmish.gg/internal/sim/world/logic/spatial"
)

// ID is a registry-assigned power-up id. 0 means none.
type ID uint16

const None ID = 0

var (
	ErrEmptyKey     = errors.New("powerups: empty key")
	ErrDuplicateKey = errors.New("powerups: duplicate key")
	ErrTooMany      = errors.New("powerups: too many kinds")
)

// User is the character activating a power-up.
type User interface {
	damage.Entity
	Position() mathx.Vec2
	Facing() mathx.Vec2
	Effects() *effects.Engine
}

// Context is handed to Activate. Deliver queues a delivery on the
// authoritative pipeline; Nearby is the proximity query.
type Context struct {
	Tick    uint64
	User    User
	Deliver func(target damage.Entity, env damage.Envelope)
	Nearby  func(origin mathx.Vec2, radius float64) []spatial.Candidate
}

type PowerUp interface {
	Key() string
	// IsOneshot kinds activate on pickup and are never stored.
	IsOneshot() bool
	// Activate applies the gameplay effect. It only runs on the server.
	Activate(ctx Context)
}

// Presentation is what every observer receives in a POWERUP event.
type Presentation struct {
	Cue    string  `json:"cue"`
	Radius float64 `json:"radius,omitempty"`
}

// Presenter is implemented by kinds with a visible cue.
type Presenter interface {
	Presentation() Presentation
}

// Registry maps kinds to ids by their sorted keys. Every participant builds
// it from the same list, so ids agree without being sent per entity.
type Registry struct {
	Palette       []string
	Index         map[string]ID
	PaletteDigest string

	byID []PowerUp
}

func NewRegistry(kinds ...PowerUp) (*Registry, error) {
	if len(kinds) >= 1<<16-1 {
		return nil, ErrTooMany
	}
	sorted := make([]PowerUp, 0, len(kinds))
	seen := map[string]bool{}
	for _, k := range kinds {
		if k == nil || strings.TrimSpace(k.Key()) == "" {
			return nil, ErrEmptyKey
		}
		if seen[k.Key()] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateKey, k.Key())
		}
		seen[k.Key()] = true
		sorted = append(sorted, k)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Key() < sorted[j].Key() })

	r := &Registry{
		Palette: make([]string, len(sorted)),
		Index:   make(map[string]ID, len(sorted)),
		byID:    make([]PowerUp, len(sorted)+1),
	}
	for i, k := range sorted {
		id := ID(i + 1)
		r.Palette[i] = k.Key()
		r.Index[k.Key()] = id
		r.byID[id] = k
	}
	raw, _ := json.Marshal(r.Palette)
	sum := sha256.Sum256(raw)
	r.PaletteDigest = hex.EncodeToString(sum[:])
	return r, nil
}

// Resolve returns the kind for id, or nil for None and unknown ids.
func (r *Registry) Resolve(id ID) PowerUp {
	if r == nil || id == None || int(id) >= len(r.byID) {
		return nil
	}
	return r.byID[id]
}

func (r *Registry) ID(key string) (ID, bool) {
	if r == nil {
		return None, false
	}
	id, ok := r.Index[key]
	return id, ok
}

func (r *Registry) Len() int { return len(r.Palette) }

// Present returns the kind's cue, falling back to its key.
func Present(p PowerUp) Presentation {
	if pr, ok := p.(Presenter); ok {
		return pr.Presentation()
	}
	return Presentation{Cue: p.Key()}
}
