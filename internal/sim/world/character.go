package world

import (
	"skirmish.gg/internal/sim/world/feature/activity"
	"skirmish.gg/internal/sim/world/feature/activity/moves"
	"skirmish.gg/internal/sim/world/feature/combat/damage"
	"skirmish.gg/internal/sim/world/feature/combat/effects"
	"skirmish.gg/internal/sim/world/feature/combat/targeting"
	"skirmish.gg/internal/sim/world/feature/powerups"
	"skirmish.gg/internal/sim/world/logic/mathx"
	"skirmish.gg/internal/sim/world/logic/perms"
	"skirmish.gg/internal/sim/world/logic/rates"
)

// Character is one fighter in the arena. It is owned by the world loop.
type Character struct {
	id   string
	name string
	cfg  *WorldConfig

	pos    mathx.Vec2
	vel    mathx.Vec2
	facing mathx.Vec2
	move   mathx.Vec2

	health    float64
	alive     bool
	stun      float64
	respawnIn float64
	destroyed bool

	kills  int
	deaths int
	dealt  float64
	taken  float64

	effects effects.Engine
	inv     powerups.Inventory

	coord   *activity.Coordinator
	dodge   *moves.Dodge
	block   *moves.Block
	attack  *moves.Attack
	use     *moves.UsePowerUp
	poller  *targeting.Poller
	tracker *damage.Subscription

	inputs rates.Window

	// Set while no client is attached; the character is removed once the
	// grace period runs out.
	detached      bool
	detachedSince uint64
	resumeToken   string
}

func newCharacter(id, name string, cfg *WorldConfig) *Character {
	return &Character{
		id:     id,
		name:   name,
		cfg:    cfg,
		facing: mathx.V(1, 0),
		health: cfg.Character.MaxHealth,
		alive:  true,
		coord:  activity.NewCoordinator(),
		inputs: rates.Window{Ticks: uint64(cfg.RateLimits.InputsWindowTicks), Max: cfg.RateLimits.InputsMax},
	}
}

// equip builds the character's activity slots.
func (c *Character) equip(w *World) error {
	cfg := c.cfg
	c.poller = targeting.NewPoller(w.spatial, c.id, cfg.TargetingRadius, cfg.TargetingInterval)
	c.dodge = moves.NewDodge(cfg.Dodge, c)
	c.block = moves.NewBlock(cfg.Block)
	c.attack = moves.NewAttack(cfg.Attack, c, c.poller, w.pipeline)
	c.use = moves.NewUsePowerUp(cfg.UsePowerUp, w.registry, &c.inv, func(p powerups.PowerUp) {
		w.activatePowerUp(c, p)
	})

	slots := []*activity.Slot{
		activity.NewSlot(SlotDodge, cfg.Priorities[SlotDodge], perms.CanDodge, cfg.override(SlotDodge), c.dodge),
		activity.NewSlot(SlotBlock, cfg.Priorities[SlotBlock], perms.CanBlock, cfg.override(SlotBlock), c.block),
		activity.NewSlot(SlotAttack, cfg.Priorities[SlotAttack], perms.CanAttack, cfg.override(SlotAttack), c.attack),
		activity.NewSlot(SlotUsePowerUp, cfg.Priorities[SlotUsePowerUp], perms.CanUsePowerUp, cfg.override(SlotUsePowerUp), c.use),
	}
	for _, s := range slots {
		if err := c.coord.Register(s); err != nil {
			return err
		}
	}
	c.coord.OnEvent(func(ev activity.Event) { w.onActivity(c, ev) })
	return nil
}

func (c *Character) EntityID() string         { return c.id }
func (c *Character) Name() string             { return c.name }
func (c *Character) Position() mathx.Vec2     { return c.pos }
func (c *Character) Facing() mathx.Vec2       { return c.facing }
func (c *Character) Velocity() mathx.Vec2     { return c.vel }
func (c *Character) SetVelocity(v mathx.Vec2) { c.vel = v }
func (c *Character) Effects() *effects.Engine { return &c.effects }
func (c *Character) Health() float64          { return c.health }
func (c *Character) Alive() bool              { return c.alive }
func (c *Character) Destroyed() bool          { return c.destroyed }
func (c *Character) Kills() int               { return c.kills }
func (c *Character) Deaths() int              { return c.deaths }
func (c *Character) Coordinator() *activity.Coordinator {
	return c.coord
}

func (c *Character) SetFacing(f mathx.Vec2) {
	if f = f.Normalize(); !f.IsZero() {
		c.facing = f
	}
}

// Heading is the move intent, or the facing when standing still.
func (c *Character) Heading() mathx.Vec2 {
	if !c.move.IsZero() {
		return c.move.Normalize()
	}
	return c.facing
}

func (c *Character) IsBlocking() bool {
	a := c.coord.Active()
	return c.alive && a != nil && a.Name() == SlotBlock
}

func (c *Character) Stunned() bool { return c.stun > 0 }

// Hit applies damage. Dead characters and characters whose current override
// forbids being hit reject it. Pure effect envelopes only need a live target.
func (c *Character) Hit(env damage.Envelope) damage.Outcome {
	if !c.alive || c.destroyed {
		return damage.Outcome{}
	}
	if env.IsPureEffect() {
		return damage.Outcome{Accepted: true}
	}
	if !c.coord.Allows(perms.CanBeHit) {
		return damage.Outcome{}
	}
	c.health -= env.Value
	c.taken += env.Value
	c.vel = c.vel.Add(env.Push())
	if c.health <= 0 {
		c.health = 0
		c.die()
		return damage.Outcome{Accepted: true, Lethal: true}
	}
	if env.Stunlock > 0 {
		c.Stun(env.Stunlock)
	}
	return damage.Outcome{Accepted: true}
}

// Heal restores health up to the maximum. env.Value is the positive amount.
func (c *Character) Heal(env damage.Envelope) damage.Outcome {
	if !c.alive || c.destroyed {
		return damage.Outcome{}
	}
	c.health += env.Value
	if c.health > c.cfg.Character.MaxHealth {
		c.health = c.cfg.Character.MaxHealth
	}
	return damage.Outcome{Accepted: true}
}

// Stun interrupts whatever is playing. Overlapping stuns keep the longest.
func (c *Character) Stun(seconds float64) {
	if !c.alive || c.destroyed || seconds <= 0 {
		return
	}
	if seconds <= c.stun {
		return
	}
	if c.stun <= 0 {
		c.coord.StopAll(true)
		c.coord.PushOverride(overrideStun, c.cfg.override(overrideStun))
	}
	c.stun = seconds
}

func (c *Character) die() {
	c.alive = false
	c.deaths++
	c.coord.StopAll(true)
	if c.stun > 0 {
		c.stun = 0
		c.coord.PopOverride(overrideStun)
	}
	c.coord.PushOverride(overrideDead, c.cfg.override(overrideDead))
	c.respawnIn = c.cfg.RespawnSeconds
	c.vel = mathx.Vec2{}
	c.move = mathx.Vec2{}
}

func (c *Character) respawn(at mathx.Vec2) {
	c.coord.PopOverride(overrideDead)
	c.alive = true
	c.health = c.cfg.Character.MaxHealth
	c.pos = at
	c.vel = mathx.Vec2{}
	c.respawnIn = 0
	c.effects.Clear()
	c.dodge.Refill()
	c.poller.Invalidate()
	if n := at.Normalize(); !n.IsZero() {
		c.facing = n.Scale(-1)
	}
}

// tickTimers counts down stun and respawn. It reports whether the character
// came back this tick.
func (c *Character) tickTimers(dt float64) (respawned bool) {
	if c.stun > 0 {
		c.stun -= dt
		if c.stun <= 1e-9 {
			c.stun = 0
			c.coord.PopOverride(overrideStun)
		}
	}
	if !c.alive && !c.destroyed {
		c.respawnIn -= dt
		if c.respawnIn <= 1e-9 {
			return true
		}
	}
	return false
}

// walkVelocity is the velocity contributed by move intent this tick.
func (c *Character) walkVelocity() mathx.Vec2 {
	if !c.alive || !c.coord.Allows(perms.CanMove) {
		return mathx.Vec2{}
	}
	speed := c.cfg.Character.MoveSpeed * c.effects.Multiplier(effects.KindSpeed)
	if c.IsBlocking() {
		speed *= c.block.MoveScale()
	}
	return c.move.ClampLen(1).Scale(speed)
}

func (c *Character) activityName() string {
	if !c.alive {
		return overrideDead
	}
	if a := c.coord.Active(); a != nil {
		return a.Name()
	}
	if c.stun > 0 {
		return overrideStun
	}
	return ""
}
