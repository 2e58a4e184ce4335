package world

import (
	"testing"

	"skirmish.gg/internal/sim/tuning"
	"skirmish.gg/internal/sim/world/feature/combat/damage"
	"skirmish.gg/internal/sim/world/logic/mathx"
	"skirmish.gg/internal/sim/world/logic/perms"
)

func newTestWorld(t *testing.T) *World {
	t.Helper()
	cfg, err := ConfigFromTuning("unit", tuning.Defaults())
	if err != nil {
		t.Fatalf("ConfigFromTuning: %v", err)
	}
	w, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return w
}

func spawn(t *testing.T, w *World, name string) *Character {
	t.Helper()
	resp := make(chan JoinResponse, 1)
	w.StepOnce([]JoinRequest{{Name: name, Resp: resp}}, nil, nil)
	jr := <-resp
	if jr.Err != nil {
		t.Fatalf("join: %+v", jr.Err)
	}
	c := w.Character(jr.Welcome.EntityID)
	if c == nil {
		t.Fatalf("character %s missing", jr.Welcome.EntityID)
	}
	return c
}

func TestCharacter_DodgeGrantsInvulnerability(t *testing.T) {
	w := newTestWorld(t)
	a := spawn(t, w, "a")
	b := spawn(t, w, "b")

	a.coord.Request(a.coord.Slot(SlotDodge))
	if a.coord.Resolve() == nil {
		t.Fatalf("dodge did not start")
	}
	if a.coord.Allows(perms.CanBeHit) {
		t.Fatalf("dodging character should not be hittable")
	}
	r := w.pipeline.Deliver(a, damage.Envelope{Value: 10, Sender: b})
	if r.IsDelivered || a.health != 100 {
		t.Fatalf("report=%+v health=%v", r, a.health)
	}
	if st := w.pipeline.Stats(); st.Rejected != 1 {
		t.Fatalf("stats=%+v want one rejected", st)
	}
}

func TestCharacter_StunKeepsLongestAndInterrupts(t *testing.T) {
	w := newTestWorld(t)
	a := spawn(t, w, "a")

	a.coord.Request(a.coord.Slot(SlotBlock))
	a.coord.Resolve()
	if !a.IsBlocking() {
		t.Fatalf("block did not start")
	}
	a.Stun(0.5)
	a.Stun(0.2)
	if a.IsBlocking() || a.stun != 0.5 {
		t.Fatalf("blocking=%v stun=%v", a.IsBlocking(), a.stun)
	}
	if a.coord.OverrideDepth() != 1 || a.coord.Allows(perms.CanAttack) || !a.coord.Allows(perms.CanBeHit) {
		t.Fatalf("stun override wrong: depth=%d eff=%v", a.coord.OverrideDepth(), a.coord.Effective())
	}
	a.Stun(0.8)
	if a.stun != 0.8 || a.coord.OverrideDepth() != 1 {
		t.Fatalf("longer stun should extend without stacking: stun=%v depth=%d", a.stun, a.coord.OverrideDepth())
	}
	for i := 0; i < 16; i++ {
		a.tickTimers(0.05)
	}
	if a.Stunned() || a.coord.OverrideDepth() != 0 {
		t.Fatalf("stun should have expired: stun=%v depth=%d", a.stun, a.coord.OverrideDepth())
	}
}

func TestCharacter_DeathClearsStunAndBlocksEverything(t *testing.T) {
	w := newTestWorld(t)
	a := spawn(t, w, "a")
	b := spawn(t, w, "b")

	a.Stun(1)
	r := w.pipeline.Deliver(a, damage.Envelope{Value: 500, Sender: b})
	if !r.IsLethal || a.alive || a.health != 0 {
		t.Fatalf("report=%+v alive=%v health=%v", r, a.alive, a.health)
	}
	if a.coord.OverrideDepth() != 1 || a.coord.Effective() != perms.None {
		t.Fatalf("dead override wrong: depth=%d eff=%v", a.coord.OverrideDepth(), a.coord.Effective())
	}
	if again := w.pipeline.Deliver(a, damage.Envelope{Value: 5, Sender: b}); again.IsDelivered || again.IsLethal {
		t.Fatalf("hit on a dead character: %+v", again)
	}
	if heal := w.pipeline.Deliver(a, damage.Envelope{Value: -5, Sender: b}); heal.IsDelivered {
		t.Fatalf("heal on a dead character: %+v", heal)
	}
	if b.kills != 1 || a.deaths != 1 {
		t.Fatalf("kills=%d deaths=%d", b.kills, a.deaths)
	}

	a.respawn(mathx.V(0, 20))
	if !a.alive || a.health != 100 || a.coord.OverrideDepth() != 0 || a.facing != mathx.V(0, -1) {
		t.Fatalf("respawn state: alive=%v health=%v depth=%d facing=%v", a.alive, a.health, a.coord.OverrideDepth(), a.facing)
	}
}

func TestCharacter_HealClampsAndTracksDamage(t *testing.T) {
	w := newTestWorld(t)
	a := spawn(t, w, "a")
	b := spawn(t, w, "b")

	w.pipeline.Deliver(a, damage.Envelope{Value: 30, Sender: b})
	w.pipeline.Deliver(a, damage.Envelope{Value: -50, Sender: a})
	if a.health != 100 {
		t.Fatalf("health=%v want clamped to 100", a.health)
	}
	if b.dealt != 30 || a.taken != 30 || a.dealt != 0 {
		t.Fatalf("dealt=%v taken=%v self-dealt=%v", b.dealt, a.taken, a.dealt)
	}
}

func TestWorld_RemovedCharacterReleasesTracker(t *testing.T) {
	w := newTestWorld(t)
	before := w.pipeline.Observers()
	a := spawn(t, w, "a")
	if w.pipeline.Observers() != before+1 {
		t.Fatalf("observers=%d want %d", w.pipeline.Observers(), before+1)
	}
	w.removeCharacter(a)
	if w.pipeline.Observers() != before {
		t.Fatalf("tracker not released: observers=%d", w.pipeline.Observers())
	}
	if r := w.pipeline.Deliver(a, damage.Envelope{Value: 5}); r.IsDelivered {
		t.Fatalf("removed character accepted a hit")
	}
	if st := w.pipeline.Stats(); st.Invalid != 1 {
		t.Fatalf("stats=%+v want one invalid", st)
	}
}

func TestWorld_SnapshotRoundTrip(t *testing.T) {
	w := newTestWorld(t)
	a := spawn(t, w, "a")
	b := spawn(t, w, "b")
	w.pipeline.Deliver(b, damage.Envelope{Value: 500, Sender: a})
	w.DebugGive(a.id, "fury")
	w.StepOnce(nil, nil, nil)

	snap := w.ExportSnapshot(w.CurrentTick() - 1)
	w2 := newTestWorld(t)
	if err := w2.ImportSnapshot(snap); err != nil {
		t.Fatalf("ImportSnapshot: %v", err)
	}
	if w2.CurrentTick() != w.CurrentTick() {
		t.Fatalf("tick=%d want %d", w2.CurrentTick(), w.CurrentTick())
	}
	a2, b2 := w2.Character(a.id), w2.Character(b.id)
	if a2 == nil || b2 == nil {
		t.Fatalf("characters missing after import")
	}
	if a2.kills != 1 || b2.alive || b2.deaths != 1 || !a2.detached || a2.inv.Held() != a.inv.Held() {
		t.Fatalf("imported a=%+v b=%+v", a2, b2)
	}
	if w2.StateDigest() == "" {
		t.Fatalf("empty digest")
	}
	c := spawn(t, w2, "c")
	if c.id != "P3" {
		t.Fatalf("new character id=%s want P3", c.id)
	}
}
