package powerups

import "skirmish.gg/internal/sim/world/logic/mathx"

// Volume is a pickup spot that offers one power-up kind and comes back after
// Respawn seconds once taken.
type Volume struct {
	Name    string
	Key     string
	PowerUp ID
	Pos     mathx.Vec2
	Radius  float64
	Respawn float64

	cooldown float64
}

func (v *Volume) Available() bool { return v.cooldown <= 0 }

func (v *Volume) Cooldown() float64 { return v.cooldown }

// Restore sets the remaining cooldown, used when loading a snapshot.
func (v *Volume) Restore(cooldown float64) {
	if cooldown < 0 {
		cooldown = 0
	}
	v.cooldown = cooldown
}

// Field owns every pickup volume of the arena.
type Field struct {
	volumes []*Volume
}

// NewField resolves every volume's key against reg. Volumes with unknown keys
// are dropped and returned by name so the caller can log them.
func NewField(reg *Registry, vols []Volume) (*Field, []string) {
	f := &Field{}
	var dropped []string
	for _, v := range vols {
		id, ok := reg.ID(v.Key)
		if !ok {
			dropped = append(dropped, v.Name)
			continue
		}
		v.PowerUp = id
		v.cooldown = 0
		f.volumes = append(f.volumes, &v)
	}
	return f, dropped
}

func (f *Field) Volumes() []*Volume { return f.volumes }

func (f *Field) Tick(dt float64) {
	for _, v := range f.volumes {
		if v.cooldown > 0 {
			v.cooldown -= dt
			if v.cooldown < 0 {
				v.cooldown = 0
			}
		}
	}
}

// Touching returns the first available volume overlapping a body at pos.
func (f *Field) Touching(pos mathx.Vec2, bodyRadius float64) *Volume {
	for _, v := range f.volumes {
		if v.Available() && v.Pos.Dist(pos) <= v.Radius+bodyRadius {
			return v
		}
	}
	return nil
}

// Claim hands v's power-up to a holder. Oneshot kinds run activate right away;
// others go into inv and are refused when inv is occupied, leaving v in place.
// It reports whether the volume was consumed.
func Claim(v *Volume, reg *Registry, inv *Inventory, activate func(PowerUp)) bool {
	if v == nil || !v.Available() {
		return false
	}
	kind := reg.Resolve(v.PowerUp)
	if kind == nil {
		return false
	}
	if kind.IsOneshot() {
		if activate != nil {
			activate(kind)
		}
	} else if inv == nil || !inv.TryStore(v.PowerUp) {
		return false
	}
	v.cooldown = v.Respawn
	// a zero respawn still keeps the volume gone until the next Tick
	if v.cooldown <= 0 {
		v.cooldown = 1e-9
	}
	return true
}
