package replication

import (
	"fmt"
	"sort"

	"github.com/vmihailenco/msgpack/v5"
)

// EntityState is the replicated view of one character. Only the server
// produces it; observers rebuild it from patches.
type EntityState struct {
	ID          string     `json:"id" msgpack:"id"`
	Name        string     `json:"name" msgpack:"name"`
	Pos         [2]float64 `json:"pos" msgpack:"pos"`
	Facing      [2]float64 `json:"facing" msgpack:"facing"`
	Health      float64    `json:"health" msgpack:"health"`
	MaxHealth   float64    `json:"max_health" msgpack:"max_health"`
	Alive       bool       `json:"alive" msgpack:"alive"`
	Stunned     bool       `json:"stunned" msgpack:"stunned"`
	Blocking    bool       `json:"blocking" msgpack:"blocking"`
	Activity    string     `json:"activity" msgpack:"activity"`
	Charges     int        `json:"charges" msgpack:"charges"`
	HeldPowerUp uint16     `json:"held_powerup" msgpack:"held_powerup"`
	SpeedMult   float64    `json:"speed_mult" msgpack:"speed_mult"`
	DamageMult  float64    `json:"damage_mult" msgpack:"damage_mult"`
	Kills       int        `json:"kills" msgpack:"kills"`
	Deaths      int        `json:"deaths" msgpack:"deaths"`
}

type Field uint8

const (
	FieldName Field = iota + 1
	FieldPos
	FieldFacing
	FieldHealth
	FieldMaxHealth
	FieldAlive
	FieldStunned
	FieldBlocking
	FieldActivity
	FieldCharges
	FieldHeldPowerUp
	FieldSpeedMult
	FieldDamageMult
	FieldKills
	FieldDeaths

	fieldEnd
)

var fieldNames = [...]string{
	FieldName:        "name",
	FieldPos:         "pos",
	FieldFacing:      "facing",
	FieldHealth:      "health",
	FieldMaxHealth:   "max_health",
	FieldAlive:       "alive",
	FieldStunned:     "stunned",
	FieldBlocking:    "blocking",
	FieldActivity:    "activity",
	FieldCharges:     "charges",
	FieldHeldPowerUp: "held_powerup",
	FieldSpeedMult:   "speed_mult",
	FieldDamageMult:  "damage_mult",
	FieldKills:       "kills",
	FieldDeaths:      "deaths",
}

func (f Field) String() string {
	if f > 0 && f < fieldEnd {
		return fieldNames[f]
	}
	return fmt.Sprintf("field(%d)", uint8(f))
}

// Change is one field assignment. Exactly one of Num, Str, Vec or Flag is
// meaningful, depending on Field.
type Change struct {
	Entity string     `msgpack:"e"`
	Field  Field      `msgpack:"f"`
	Num    float64    `msgpack:"n,omitempty"`
	Str    string     `msgpack:"s,omitempty"`
	Vec    [2]float64 `msgpack:"v,omitempty"`
	Flag   bool       `msgpack:"b,omitempty"`
}

// Patch is the set of changes produced by one tick.
type Patch struct {
	Tick    uint64   `msgpack:"t"`
	Changes []Change `msgpack:"c"`
	Removed []string `msgpack:"r,omitempty"`
}

func (p Patch) Empty() bool { return len(p.Changes) == 0 && len(p.Removed) == 0 }

// Diff returns the changes turning prev into next. Entities are visited in id
// order and fields in declaration order, so equal inputs give equal patches.
func Diff(tick uint64, prev, next map[string]EntityState) Patch {
	p := Patch{Tick: tick}
	for _, id := range sortedIDs(next) {
		cur := next[id]
		old, existed := prev[id]
		for f := FieldName; f < fieldEnd; f++ {
			c := read(cur, f)
			if existed && sameValue(c, read(old, f)) {
				continue
			}
			c.Entity = id
			p.Changes = append(p.Changes, c)
		}
	}
	for _, id := range sortedIDs(prev) {
		if _, ok := next[id]; !ok {
			p.Removed = append(p.Removed, id)
		}
	}
	return p
}

// Full is the patch that builds states from nothing, sent to new observers.
func Full(tick uint64, states map[string]EntityState) Patch {
	return Diff(tick, nil, states)
}

func Encode(p Patch) ([]byte, error) {
	b, err := msgpack.Marshal(&p)
	if err != nil {
		return nil, fmt.Errorf("replication: encode patch: %w", err)
	}
	return b, nil
}

func Decode(b []byte) (Patch, error) {
	var p Patch
	if err := msgpack.Unmarshal(b, &p); err != nil {
		return Patch{}, fmt.Errorf("replication: decode patch: %w", err)
	}
	return p, nil
}

func sortedIDs(m map[string]EntityState) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func read(s EntityState, f Field) Change {
	c := Change{Field: f}
	switch f {
	case FieldName:
		c.Str = s.Name
	case FieldPos:
		c.Vec = s.Pos
	case FieldFacing:
		c.Vec = s.Facing
	case FieldHealth:
		c.Num = s.Health
	case FieldMaxHealth:
		c.Num = s.MaxHealth
	case FieldAlive:
		c.Flag = s.Alive
	case FieldStunned:
		c.Flag = s.Stunned
	case FieldBlocking:
		c.Flag = s.Blocking
	case FieldActivity:
		c.Str = s.Activity
	case FieldCharges:
		c.Num = float64(s.Charges)
	case FieldHeldPowerUp:
		c.Num = float64(s.HeldPowerUp)
	case FieldSpeedMult:
		c.Num = s.SpeedMult
	case FieldDamageMult:
		c.Num = s.DamageMult
	case FieldKills:
		c.Num = float64(s.Kills)
	case FieldDeaths:
		c.Num = float64(s.Deaths)
	}
	return c
}

func write(s *EntityState, c Change) {
	switch c.Field {
	case FieldName:
		s.Name = c.Str
	case FieldPos:
		s.Pos = c.Vec
	case FieldFacing:
		s.Facing = c.Vec
	case FieldHealth:
		s.Health = c.Num
	case FieldMaxHealth:
		s.MaxHealth = c.Num
	case FieldAlive:
		s.Alive = c.Flag
	case FieldStunned:
		s.Stunned = c.Flag
	case FieldBlocking:
		s.Blocking = c.Flag
	case FieldActivity:
		s.Activity = c.Str
	case FieldCharges:
		s.Charges = int(c.Num)
	case FieldHeldPowerUp:
		s.HeldPowerUp = uint16(c.Num)
	case FieldSpeedMult:
		s.SpeedMult = c.Num
	case FieldDamageMult:
		s.DamageMult = c.Num
	case FieldKills:
		s.Kills = int(c.Num)
	case FieldDeaths:
		s.Deaths = int(c.Num)
	}
}

func sameValue(a, b Change) bool {
	return a.Num == b.Num && a.Str == b.Str && a.Vec == b.Vec && a.Flag == b.Flag
}
