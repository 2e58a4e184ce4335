package world

import (
	"fmt"

	"skirmish.gg/internal/sim/tuning"
	"skirmish.gg/internal/sim/world/feature/activity/moves"
	"skirmish.gg/internal/sim/world/feature/powerups"
	"skirmish.gg/internal/sim/world/logic/perms"
)

// Slot names double as keys of the override and priority tables.
const (
	SlotDodge      = "dodge"
	SlotBlock      = "block"
	SlotAttack     = "attack"
	SlotUsePowerUp = "use_powerup"

	overrideStun = "stun"
	overrideDead = "dead"
)

type WorldConfig struct {
	ID         string
	TickRateHz int
	Seed       int64
	MaxPlayers int

	ArenaRadius     float64
	SpawnRingRadius float64
	Friction        float64
	RespawnSeconds  float64
	// ReconnectGraceTicks keeps a disconnected character around so a client
	// can resume it with its token.
	ReconnectGraceTicks int
	MaxFlush            int

	Character  CharacterConfig
	Dodge      moves.DodgeConfig
	Block      moves.BlockConfig
	Attack     moves.AttackConfig
	UsePowerUp moves.UsePowerUpConfig

	TargetingRadius   float64
	TargetingInterval float64

	Overrides  map[string]perms.Set
	Priorities map[string]int

	// PowerUps is the explicit registration list; every participant must
	// build the registry from the same list.
	PowerUps []powerups.PowerUp
	Pickups  []powerups.Volume

	RateLimits RateLimitConfig
}

type CharacterConfig struct {
	MaxHealth  float64
	MoveSpeed  float64
	BodyRadius float64
}

type RateLimitConfig struct {
	InputsWindowTicks int
	InputsMax         int
}

// ConfigFromTuning maps a loaded tuning file onto a world config.
func ConfigFromTuning(id string, t tuning.Tuning) (WorldConfig, error) {
	overrides, err := t.Permissions()
	if err != nil {
		return WorldConfig{}, fmt.Errorf("tuning: %w", err)
	}
	cfg := WorldConfig{
		ID:              id,
		TickRateHz:      t.TickRateHz,
		ArenaRadius:     t.ArenaRadius,
		SpawnRingRadius: t.SpawnRingRadius,
		Friction:        t.Friction,
		RespawnSeconds:  t.RespawnSeconds,
		MaxFlush:        t.MaxFlush,
		Character: CharacterConfig{
			MaxHealth:  t.Character.MaxHealth,
			MoveSpeed:  t.Character.MoveSpeed,
			BodyRadius: t.Character.BodyRadius,
		},
		Dodge: moves.DodgeConfig{
			MaxCharges: t.Dodge.MaxCharges,
			Timeout:    t.Dodge.TimeoutSeconds,
			Duration:   t.Dodge.DurationSeconds,
			Speed:      t.Dodge.Speed,
			Momentum:   t.Dodge.Momentum,
		},
		Block: moves.BlockConfig{MoveScale: t.Block.MoveScale},
		Attack: moves.AttackConfig{
			Windup:    t.Attack.WindupSeconds,
			Active:    t.Attack.ActiveSeconds,
			Recovery:  t.Attack.RecoverySeconds,
			Damage:    t.Attack.Damage,
			Reach:     t.Attack.Reach,
			ArcDeg:    t.Attack.ArcDeg,
			Stunlock:  t.Attack.StunlockSeconds,
			PushForce: t.Attack.PushForce,
			AimAssist: t.Attack.AimAssist,
		},
		UsePowerUp: moves.UsePowerUpConfig{
			Channel: t.UsePowerUp.ChannelSeconds,
			Release: t.UsePowerUp.ReleaseSeconds,
		},
		TargetingRadius:   t.Targeting.Radius,
		TargetingInterval: t.PollIntervalSeconds(),
		Overrides:         overrides,
		Priorities: map[string]int{
			SlotDodge:      t.Priority(SlotDodge),
			SlotBlock:      t.Priority(SlotBlock),
			SlotAttack:     t.Priority(SlotAttack),
			SlotUsePowerUp: t.Priority(SlotUsePowerUp),
		},
		PowerUps: BuiltinPowerUps(t),
		RateLimits: RateLimitConfig{
			InputsWindowTicks: t.RateLimits.InputsWindowTicks,
			InputsMax:         t.RateLimits.InputsMax,
		},
	}
	return cfg, nil
}

// BuiltinPowerUps is the registration list for the built-in kinds.
func BuiltinPowerUps(t tuning.Tuning) []powerups.PowerUp {
	p := t.PowerUps
	return []powerups.PowerUp{
		powerups.Medkit{Amount: p.Medkit.Amount},
		powerups.Haste{Magnitude: p.Haste.Magnitude, Duration: p.Haste.DurationSeconds},
		powerups.Fury{Magnitude: p.Fury.Magnitude, Duration: p.Fury.DurationSeconds},
		powerups.Shockwave{
			Damage:    p.Shockwave.Damage,
			Radius:    p.Shockwave.Radius,
			PushForce: p.Shockwave.PushForce,
			Stunlock:  p.Shockwave.StunlockSeconds,
		},
	}
}

func (c *WorldConfig) applyDefaults() {
	d := tuning.Defaults()
	if c.TickRateHz <= 0 {
		c.TickRateHz = d.TickRateHz
	}
	if c.MaxPlayers <= 0 {
		c.MaxPlayers = 64
	}
	if c.ArenaRadius <= 0 {
		c.ArenaRadius = d.ArenaRadius
	}
	if c.SpawnRingRadius <= 0 || c.SpawnRingRadius > c.ArenaRadius {
		c.SpawnRingRadius = c.ArenaRadius * 2 / 3
	}
	if c.Friction < 0 {
		c.Friction = 0
	}
	if c.RespawnSeconds <= 0 {
		c.RespawnSeconds = d.RespawnSeconds
	}
	if c.ReconnectGraceTicks <= 0 {
		c.ReconnectGraceTicks = 10 * c.TickRateHz
	}
	if c.MaxFlush <= 0 {
		c.MaxFlush = d.MaxFlush
	}
	if c.Character.MaxHealth <= 0 {
		c.Character.MaxHealth = d.Character.MaxHealth
	}
	if c.Character.MoveSpeed <= 0 {
		c.Character.MoveSpeed = d.Character.MoveSpeed
	}
	if c.Character.BodyRadius <= 0 {
		c.Character.BodyRadius = d.Character.BodyRadius
	}
	if c.Dodge.MaxCharges <= 0 {
		c.Dodge.MaxCharges = d.Dodge.MaxCharges
	}
	if c.TargetingRadius <= 0 {
		c.TargetingRadius = c.Attack.Reach + 2
	}
	if c.TargetingInterval <= 0 {
		c.TargetingInterval = d.PollIntervalSeconds()
	}
	if c.Overrides == nil {
		c.Overrides, _ = d.Permissions()
	}
	if c.Priorities == nil {
		c.Priorities = d.Priorities
	}
	if c.PowerUps == nil {
		c.PowerUps = BuiltinPowerUps(d)
	}
	if c.RateLimits.InputsWindowTicks <= 0 {
		c.RateLimits.InputsWindowTicks = c.TickRateHz
	}
	if c.RateLimits.InputsMax <= 0 {
		c.RateLimits.InputsMax = 2 * c.TickRateHz
	}
}

func (c *WorldConfig) override(name string) perms.Set {
	if s, ok := c.Overrides[name]; ok {
		return s
	}
	d, _ := tuning.Defaults().Permissions()
	return d[name]
}
