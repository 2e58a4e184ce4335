package moves

import (
	"testing"

	"skirmish.gg/internal/sim/world/feature/activity"
	"skirmish.gg/internal/sim/world/feature/combat/damage"
	"skirmish.gg/internal/sim/world/feature/combat/effects"
	"skirmish.gg/internal/sim/world/feature/combat/targeting"
	"skirmish.gg/internal/sim/world/feature/powerups"
	"skirmish.gg/internal/sim/world/logic/mathx"
	"skirmish.gg/internal/sim/world/logic/perms"
	"skirmish.gg/internal/sim/world/logic/spatial"
)

const dt = 0.05

type dummy struct {
	id     string
	pos    mathx.Vec2
	facing mathx.Vec2
	vel    mathx.Vec2
	fx     effects.Engine
}

func (d *dummy) EntityID() string         { return d.id }
func (d *dummy) Position() mathx.Vec2     { return d.pos }
func (d *dummy) Facing() mathx.Vec2       { return d.facing }
func (d *dummy) SetFacing(f mathx.Vec2)   { d.facing = f }
func (d *dummy) Effects() *effects.Engine { return &d.fx }
func (d *dummy) Heading() mathx.Vec2      { return d.facing }
func (d *dummy) Velocity() mathx.Vec2     { return d.vel }
func (d *dummy) SetVelocity(v mathx.Vec2) { d.vel = v }

type recorder struct {
	targets []string
	envs    []damage.Envelope
}

func (r *recorder) Enqueue(target damage.Entity, env damage.Envelope) {
	r.targets = append(r.targets, target.EntityID())
	r.envs = append(r.envs, env)
}

func advance(c *activity.Coordinator, seconds float64) {
	n := int(seconds/dt + 0.5)
	for i := 0; i < n; i++ {
		c.Advance(dt)
	}
}

func TestDodge_ChargeEconomy(t *testing.T) {
	body := &dummy{id: "A", facing: mathx.V(0, 1)}
	d := NewDodge(DodgeConfig{MaxCharges: 3, Timeout: 1, Duration: 0.2, Speed: 10, Momentum: 0.5}, body)
	c := activity.NewCoordinator()
	slot := activity.NewSlot("dodge", 30, perms.CanDodge, perms.CanPickUp, d)
	if err := c.Register(slot); err != nil {
		t.Fatalf("register: %v", err)
	}

	for i := 0; i < 3; i++ {
		if !slot.Play() {
			t.Fatalf("dodge %d should play", i+1)
		}
		advance(c, 0.2)
		if slot.Playing() {
			t.Fatalf("dodge %d should have finished", i+1)
		}
	}
	if slot.Counter() != 0 {
		t.Fatalf("charges=%d want 0", slot.Counter())
	}
	if slot.Play() {
		t.Fatalf("fourth dodge must be a no-op")
	}
	if !body.vel.Near(mathx.V(0, 5), 1e-9) {
		t.Fatalf("momentum=%+v want (0,5)", body.vel)
	}

	// the timer started when the first dodge finished, 0.4s ago
	advance(c, 0.6)
	if slot.Counter() != 1 {
		t.Fatalf("charges=%d want 1 after one timeout", slot.Counter())
	}
	advance(c, 1)
	if slot.Counter() != 2 {
		t.Fatalf("charges=%d want 2", slot.Counter())
	}
	advance(c, 5)
	if slot.Counter() != 3 || d.RegenRemaining() != 0 {
		t.Fatalf("charges=%d regen=%v want full", slot.Counter(), d.RegenRemaining())
	}
}

func TestDodge_ForcedStopDropsMomentumButRegens(t *testing.T) {
	body := &dummy{id: "A", facing: mathx.V(1, 0)}
	d := NewDodge(DodgeConfig{MaxCharges: 2, Timeout: 0.5, Duration: 0.3, Speed: 10, Momentum: 0.5}, body)
	c := activity.NewCoordinator()
	slot := activity.NewSlot("dodge", 30, perms.CanDodge, perms.CanPickUp, d)
	_ = c.Register(slot)

	slot.Play()
	c.Advance(dt)
	if !body.vel.Near(mathx.V(10, 0), 1e-9) {
		t.Fatalf("dash velocity=%+v", body.vel)
	}
	slot.Stop(true)
	if !body.vel.IsZero() {
		t.Fatalf("forced stop must drop momentum, vel=%+v", body.vel)
	}
	if d.RegenRemaining() != 0.5 {
		t.Fatalf("regen=%v want 0.5", d.RegenRemaining())
	}
}

func TestAttack_StrikesTargetsInArcWithMultiplier(t *testing.T) {
	self := &dummy{id: "A", facing: mathx.V(1, 0)}
	front := &dummy{id: "B", pos: mathx.V(1.5, 0)}
	behind := &dummy{id: "C", pos: mathx.V(-1, 0)}
	ix := spatial.NewIndex(4)
	for _, d := range []*dummy{self, front, behind} {
		ix.Insert(spatial.Candidate{ID: d.id, Pos: d.pos, Radius: 0.4, Ref: d})
	}
	poller := targeting.NewPoller(ix, "A", 4, 0.1)
	poller.Tick(0, self.pos)

	self.fx.Add(effects.Effect{Kind: effects.KindDamage, Magnitude: 0.5, Duration: 10})
	q := &recorder{}
	atk := NewAttack(AttackConfig{Windup: 0.1, Active: 0.05, Recovery: 0.1, Damage: 10, Reach: 1.6, ArcDeg: 90, Stunlock: 0.5, PushForce: 3}, self, poller, q)
	c := activity.NewCoordinator()
	slot := activity.NewSlot("attack", 10, perms.CanAttack, perms.CanBeHit|perms.CanDodge, atk)
	_ = c.Register(slot)

	slot.Play()
	if len(q.targets) != 0 {
		t.Fatalf("no hit during windup")
	}
	advance(c, 0.1)
	if len(q.targets) != 1 || q.targets[0] != "B" {
		t.Fatalf("targets=%v want [B]", q.targets)
	}
	if q.envs[0].Value != 15 || q.envs[0].Sender != damage.Entity(self) {
		t.Fatalf("env=%+v", q.envs[0])
	}
	advance(c, 0.15)
	if slot.Playing() {
		t.Fatalf("attack should have recovered")
	}
	if atk.Swings() != 1 || atk.LastHits() != 1 {
		t.Fatalf("swings=%d hits=%d", atk.Swings(), atk.LastHits())
	}
}

func TestAttack_AimAssistTurnsTowardNearest(t *testing.T) {
	self := &dummy{id: "A", facing: mathx.V(1, 0)}
	foe := &dummy{id: "B", pos: mathx.V(0, -1)}
	ix := spatial.NewIndex(4)
	ix.Insert(spatial.Candidate{ID: "B", Pos: foe.pos, Ref: foe})
	poller := targeting.NewPoller(ix, "A", 4, 0.1)
	poller.Tick(0, self.pos)

	q := &recorder{}
	atk := NewAttack(AttackConfig{Windup: 0.05, Active: 0.05, Recovery: 0.05, Damage: 5, Reach: 1.5, ArcDeg: 60, AimAssist: true}, self, poller, q)
	c := activity.NewCoordinator()
	slot := activity.NewSlot("attack", 10, perms.CanAttack, perms.CanBeHit, atk)
	_ = c.Register(slot)

	slot.Play()
	if !self.facing.Near(mathx.V(0, -1), 1e-9) {
		t.Fatalf("facing=%+v want toward foe", self.facing)
	}
	c.Advance(dt)
	if len(q.targets) != 1 {
		t.Fatalf("aim-assisted swing should connect, got %v", q.targets)
	}
}

func TestUsePowerUp_ReleaseAndRefund(t *testing.T) {
	reg, err := powerups.NewRegistry(powerups.Haste{Magnitude: 0.5, Duration: 2}, powerups.Medkit{Amount: 10})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	hasteID, _ := reg.ID("haste")
	medkitID, _ := reg.ID("medkit")

	var inv powerups.Inventory
	var used []string
	u := NewUsePowerUp(UsePowerUpConfig{Channel: 0.2, Release: 0.05}, reg, &inv, func(p powerups.PowerUp) { used = append(used, p.Key()) })
	c := activity.NewCoordinator()
	slot := activity.NewSlot("use_powerup", 5, perms.CanUsePowerUp, perms.CanBeHit|perms.CanMove, u)
	_ = c.Register(slot)

	if slot.Play() {
		t.Fatalf("nothing held, Play must fail")
	}
	inv.TryStore(medkitID)
	if slot.Play() {
		t.Fatalf("oneshot kinds never occupy the slot")
	}
	inv.Take()

	inv.TryStore(hasteID)
	if !slot.Play() || inv.Held() != powerups.None {
		t.Fatalf("play should take the power-up")
	}
	advance(c, 0.1)
	slot.Stop(true)
	if inv.Held() != hasteID || u.Refunds() != 1 || len(used) != 0 {
		t.Fatalf("interrupted channel must refund: held=%d refunds=%d used=%v", inv.Held(), u.Refunds(), used)
	}

	slot.Play()
	advance(c, 0.2)
	if len(used) != 1 || used[0] != "haste" {
		t.Fatalf("used=%v want [haste]", used)
	}
	advance(c, 0.05)
	if slot.Playing() || inv.Held() != powerups.None {
		t.Fatalf("released power-up must be spent")
	}
}

func TestBlock_HoldsUntilStopped(t *testing.T) {
	b := NewBlock(BlockConfig{MoveScale: 0.4})
	c := activity.NewCoordinator()
	slot := activity.NewSlot("block", 20, perms.CanBlock, perms.CanMove|perms.CanBeHit|perms.CanDodge, b)
	_ = c.Register(slot)

	slot.Play()
	advance(c, 3)
	if !slot.Playing() || b.Held() < 2.99 {
		t.Fatalf("playing=%v held=%v", slot.Playing(), b.Held())
	}
	slot.Stop(false)
	if slot.Playing() || b.Held() != 0 || b.Raised() != 1 {
		t.Fatalf("block did not lower")
	}
}
