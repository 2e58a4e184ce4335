package perms

import (
	"fmt"
	"sort"
	"strings"
)

// Set is a bitmask of character capabilities.
type Set uint32

const (
	CanMove Set = 1 << iota
	CanAttack
	CanBlock
	CanDodge
	CanUsePowerUp
	CanBeHit
	CanPickUp
)

const (
	None Set = 0
	All      = CanMove | CanAttack | CanBlock | CanDodge | CanUsePowerUp | CanBeHit | CanPickUp
)

var names = map[string]Set{
	"move":      CanMove,
	"attack":    CanAttack,
	"block":     CanBlock,
	"dodge":     CanDodge,
	"use_power": CanUsePowerUp,
	"be_hit":    CanBeHit,
	"pick_up":   CanPickUp,
}

// Default is the permission set of a character with no active override.
func Default() Set { return All }

func (s Set) Allows(c Set) bool { return c != None && s&c == c }

func (s Set) Union(o Set) Set     { return s | o }
func (s Set) Intersect(o Set) Set { return s & o }
func (s Set) Without(o Set) Set   { return s &^ o }

func (s Set) String() string {
	if s == None {
		return "none"
	}
	parts := make([]string, 0, len(names))
	for name, bit := range names {
		if s&bit != 0 {
			parts = append(parts, name)
		}
	}
	sort.Strings(parts)
	return strings.Join(parts, "|")
}

// Parse builds a set from capability names as written in tuning.yaml.
// "all" and "none" are accepted as shorthands.
func Parse(list []string) (Set, error) {
	var s Set
	for _, raw := range list {
		name := strings.ToLower(strings.TrimSpace(raw))
		switch name {
		case "all":
			s |= All
			continue
		case "none", "":
			continue
		}
		bit, ok := names[name]
		if !ok {
			return None, fmt.Errorf("perms: unknown capability %q", raw)
		}
		s |= bit
	}
	return s, nil
}
