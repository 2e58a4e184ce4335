package moves

import (
	"skirmish.gg/internal/sim/world/feature/activity"
	"skirmish.gg/internal/sim/world/feature/powerups"
)

type UsePowerUpConfig struct {
	Channel float64
	Release float64
}

// UsePowerUp channels the stored power-up and activates it on release. An
// interrupted channel puts the power-up back.
type UsePowerUp struct {
	cfg      UsePowerUpConfig
	reg      *powerups.Registry
	inv      *powerups.Inventory
	activate func(powerups.PowerUp)

	taken    powerups.ID
	released bool
	refunds  int
}

func NewUsePowerUp(cfg UsePowerUpConfig, reg *powerups.Registry, inv *powerups.Inventory, activate func(powerups.PowerUp)) *UsePowerUp {
	return &UsePowerUp{cfg: cfg, reg: reg, inv: inv, activate: activate}
}

// Counter replicates the held power-up id.
func (u *UsePowerUp) Counter() int { return int(u.inv.Held()) }

func (u *UsePowerUp) Refunds() int { return u.refunds }

func (u *UsePowerUp) Ready() bool {
	k := u.reg.Resolve(u.inv.Held())
	return k != nil && !k.IsOneshot()
}

func (u *UsePowerUp) Begin() {
	u.taken = u.inv.Take()
	u.released = false
}

func (u *UsePowerUp) Routine() []activity.Phase {
	return []activity.Phase{
		{Name: "channel", Duration: phaseLen(u.cfg.Channel)},
		{Name: "release", Duration: phaseLen(u.cfg.Release), Enter: u.release},
	}
}

func (u *UsePowerUp) release() {
	k := u.reg.Resolve(u.taken)
	u.released = true
	if k != nil && u.activate != nil {
		u.activate(k)
	}
}

func (u *UsePowerUp) Finish(bool) {
	if !u.released && u.taken != powerups.None {
		if u.inv.TryStore(u.taken) {
			u.refunds++
		}
	}
	u.taken = powerups.None
	u.released = false
}

func (u *UsePowerUp) Update(float64) {}
