package tuning

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"skirmish.gg/internal/sim/world/logic/perms"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	TickRateHz      int     `yaml:"tick_rate_hz"`
	ArenaRadius     float64 `yaml:"arena_radius"`
	SpawnRingRadius float64 `yaml:"spawn_ring_radius"`
	Friction        float64 `yaml:"friction"`
	RespawnSeconds  float64 `yaml:"respawn_seconds"`
	MaxFlush        int     `yaml:"max_flush"`

	Character  Character  `yaml:"character"`
	Dodge      Dodge      `yaml:"dodge"`
	Block      Block      `yaml:"block"`
	Attack     Attack     `yaml:"attack"`
	UsePowerUp UsePowerUp `yaml:"use_powerup"`
	PowerUps   PowerUps   `yaml:"powerups"`
	Targeting  Targeting  `yaml:"targeting"`
	RateLimits RateLimits `yaml:"rate_limits"`

	// Overrides names the permission set applied while an activity or state
	// is in effect, keyed by dodge, block, attack, use_powerup, stun and dead.
	Overrides  map[string][]string `yaml:"overrides"`
	Priorities map[string]int      `yaml:"priorities"`
}

type Character struct {
	MaxHealth  float64 `yaml:"max_health"`
	MoveSpeed  float64 `yaml:"move_speed"`
	BodyRadius float64 `yaml:"body_radius"`
}

type Dodge struct {
	MaxCharges      int     `yaml:"max_charges"`
	TimeoutSeconds  float64 `yaml:"timeout_seconds"`
	DurationSeconds float64 `yaml:"duration_seconds"`
	Speed           float64 `yaml:"speed"`
	Momentum        float64 `yaml:"momentum"`
}

type Block struct {
	MoveScale float64 `yaml:"move_scale"`
}

type Attack struct {
	WindupSeconds   float64 `yaml:"windup_seconds"`
	ActiveSeconds   float64 `yaml:"active_seconds"`
	RecoverySeconds float64 `yaml:"recovery_seconds"`
	Damage          float64 `yaml:"damage"`
	Reach           float64 `yaml:"reach"`
	ArcDeg          float64 `yaml:"arc_deg"`
	StunlockSeconds float64 `yaml:"stunlock_seconds"`
	PushForce       float64 `yaml:"push_force"`
	AimAssist       bool    `yaml:"aim_assist"`
}

type UsePowerUp struct {
	ChannelSeconds float64 `yaml:"channel_seconds"`
	ReleaseSeconds float64 `yaml:"release_seconds"`
}

type PowerUps struct {
	Medkit struct {
		Amount float64 `yaml:"amount"`
	} `yaml:"medkit"`
	Haste     TimedBoost `yaml:"haste"`
	Fury      TimedBoost `yaml:"fury"`
	Shockwave struct {
		Damage          float64 `yaml:"damage"`
		Radius          float64 `yaml:"radius"`
		PushForce       float64 `yaml:"push_force"`
		StunlockSeconds float64 `yaml:"stunlock_seconds"`
	} `yaml:"shockwave"`
}

type TimedBoost struct {
	Magnitude       float64 `yaml:"magnitude"`
	DurationSeconds float64 `yaml:"duration_seconds"`
}

type Targeting struct {
	PollIntervalMs int     `yaml:"poll_interval_ms"`
	Radius         float64 `yaml:"radius"`
}

type RateLimits struct {
	InputsWindowTicks int `yaml:"inputs_window_ticks"`
	InputsMax         int `yaml:"inputs_max"`
}

// Defaults is the tuning used when no file is given; Load fills the gaps of a
// partial file from it.
func Defaults() Tuning {
	t := Tuning{
		ProtocolVersion: "1.0",
		TickRateHz:      20,
		ArenaRadius:     30,
		SpawnRingRadius: 20,
		Friction:        8,
		RespawnSeconds:  3,
		MaxFlush:        256,
		Character:       Character{MaxHealth: 100, MoveSpeed: 6, BodyRadius: 0.5},
		Dodge:           Dodge{MaxCharges: 3, TimeoutSeconds: 1.5, DurationSeconds: 0.25, Speed: 14, Momentum: 0.3},
		Block:           Block{MoveScale: 0.4},
		Attack: Attack{
			WindupSeconds: 0.15, ActiveSeconds: 0.05, RecoverySeconds: 0.25,
			Damage: 12, Reach: 1.6, ArcDeg: 100, StunlockSeconds: 0.8, PushForce: 4, AimAssist: true,
		},
		UsePowerUp: UsePowerUp{ChannelSeconds: 0.3, ReleaseSeconds: 0.1},
		Targeting:  Targeting{PollIntervalMs: 100, Radius: 4},
		RateLimits: RateLimits{InputsWindowTicks: 20, InputsMax: 40},
		Overrides: map[string][]string{
			"dodge":       {"pick_up"},
			"block":       {"move", "be_hit", "dodge"},
			"attack":      {"be_hit", "dodge"},
			"use_powerup": {"be_hit", "move"},
			"stun":        {"be_hit"},
			"dead":        {"none"},
		},
		Priorities: map[string]int{"dodge": 30, "block": 20, "attack": 10, "use_powerup": 5},
	}
	t.PowerUps.Medkit.Amount = 35
	t.PowerUps.Haste = TimedBoost{Magnitude: 0.5, DurationSeconds: 5}
	t.PowerUps.Fury = TimedBoost{Magnitude: 0.5, DurationSeconds: 6}
	t.PowerUps.Shockwave.Damage = 18
	t.PowerUps.Shockwave.Radius = 3.5
	t.PowerUps.Shockwave.PushForce = 8
	t.PowerUps.Shockwave.StunlockSeconds = 0.5
	return t
}

func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	var errs []error
	if t.TickRateHz <= 0 {
		errs = append(errs, errors.New("tick_rate_hz must be > 0"))
	}
	if t.ArenaRadius <= 0 {
		errs = append(errs, errors.New("arena_radius must be > 0"))
	}
	if t.Character.MaxHealth <= 0 {
		errs = append(errs, errors.New("character.max_health must be > 0"))
	}
	if t.Dodge.MaxCharges < 1 {
		errs = append(errs, errors.New("dodge.max_charges must be >= 1"))
	}
	if _, err := t.Permissions(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Permissions parses the override table. Missing entries fall back to the
// default tuning.
func (t Tuning) Permissions() (map[string]perms.Set, error) {
	out := map[string]perms.Set{}
	for name, list := range Defaults().Overrides {
		if got, ok := t.Overrides[name]; ok {
			list = got
		}
		set, err := perms.Parse(list)
		if err != nil {
			return nil, fmt.Errorf("overrides.%s: %w", name, err)
		}
		out[name] = set
	}
	return out, nil
}

func (t Tuning) Priority(name string) int {
	if p, ok := t.Priorities[name]; ok {
		return p
	}
	return Defaults().Priorities[name]
}

func (t Tuning) TickSeconds() float64 { return 1 / float64(t.TickRateHz) }

func (t Tuning) PollIntervalSeconds() float64 {
	return float64(t.Targeting.PollIntervalMs) / 1000
}
