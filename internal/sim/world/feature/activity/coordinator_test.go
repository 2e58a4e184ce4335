package activity

import (
	"errors"
	"testing"

	"pgregory.net/rapid"

	"skirmish.gg/internal/sim/world/logic/perms"
)

type stubBehavior struct {
	phases   []Phase
	charges  int
	limited  bool
	begins   int
	finishes []bool
	updates  int
}

func (b *stubBehavior) Routine() []Phase { return b.phases }
func (b *stubBehavior) Ready() bool      { return !b.limited || b.charges > 0 }
func (b *stubBehavior) Counter() int     { return b.charges }
func (b *stubBehavior) Update(float64)   { b.updates++ }

func (b *stubBehavior) Begin() {
	b.begins++
	if b.limited {
		b.charges--
	}
}

func (b *stubBehavior) Finish(forced bool) { b.finishes = append(b.finishes, forced) }

func timed(d float64) *stubBehavior {
	return &stubBehavior{phases: []Phase{{Name: "run", Duration: d}}}
}

func mustRegister(t *testing.T, c *Coordinator, slots ...*Slot) {
	t.Helper()
	for _, s := range slots {
		if err := c.Register(s); err != nil {
			t.Fatalf("register %s: %v", s.Name(), err)
		}
	}
}

func TestPlay_RespectsCategoryAndOverride(t *testing.T) {
	c := NewCoordinator()
	dodge := NewSlot("dodge", 30, perms.CanDodge, perms.CanPickUp, timed(0.2))
	block := NewSlot("block", 20, perms.CanBlock, perms.CanMove|perms.CanBeHit|perms.CanDodge, &stubBehavior{phases: []Phase{{Name: "hold"}}})
	mustRegister(t, c, dodge, block)

	if !dodge.Play() {
		t.Fatalf("dodge should start from idle")
	}
	if got := c.Effective(); got != perms.CanPickUp {
		t.Fatalf("effective=%s want pick_up", got)
	}
	if block.Play() {
		t.Fatalf("block must not start while dodge grants only pick_up")
	}
	if dodge.Play() {
		t.Fatalf("playing slot must reject Play")
	}
	for i := 0; i < 4; i++ {
		c.Advance(0.05)
	}
	if dodge.Playing() {
		t.Fatalf("dodge should complete after 0.2s")
	}
	if got := c.Effective(); got != perms.Default() {
		t.Fatalf("effective=%s want default after completion", got)
	}
}

func TestPlay_InterruptsWhenOverrideGrants(t *testing.T) {
	c := NewCoordinator()
	attackB := timed(1)
	attack := NewSlot("attack", 10, perms.CanAttack, perms.CanBeHit|perms.CanDodge, attackB)
	dodgeB := timed(0.1)
	dodge := NewSlot("dodge", 30, perms.CanDodge, perms.CanPickUp, dodgeB)
	mustRegister(t, c, attack, dodge)

	var events []Event
	c.OnEvent(func(ev Event) { events = append(events, ev) })

	if !attack.Play() {
		t.Fatalf("attack should start")
	}
	if !dodge.Play() {
		t.Fatalf("dodge should interrupt an attack that grants dodge")
	}
	if attack.Playing() || !dodge.Playing() || c.Active() != dodge {
		t.Fatalf("interrupt did not swap slots")
	}
	if len(attackB.finishes) != 1 || !attackB.finishes[0] {
		t.Fatalf("attack finish=%v want one forced", attackB.finishes)
	}
	if c.OverrideDepth() != 1 {
		t.Fatalf("override depth=%d want 1", c.OverrideDepth())
	}
	if len(events) != 3 || events[0].Kind != EventAdd || events[1].Kind != EventRemove || !events[1].Forced || events[2].Kind != EventAdd || events[2].Slot != dodge {
		t.Fatalf("unexpected events: %+v", events)
	}

	c.Advance(0.05)
	c.Advance(0.05)
	if dodge.Playing() {
		t.Fatalf("dodge should have completed")
	}
	if len(dodgeB.finishes) != 1 || dodgeB.finishes[0] {
		t.Fatalf("dodge finish=%v want one natural", dodgeB.finishes)
	}
	if c.Effective() != perms.Default() || c.OverrideDepth() != 0 {
		t.Fatalf("permissions not restored: %s depth=%d", c.Effective(), c.OverrideDepth())
	}
}

func TestStop_ForcedRestoresUnderlyingOverride(t *testing.T) {
	c := NewCoordinator()
	block := NewSlot("block", 20, perms.CanBlock, perms.CanMove|perms.CanBeHit|perms.CanDodge, &stubBehavior{phases: []Phase{{Name: "hold"}}})
	mustRegister(t, c, block)

	c.PushOverride("root", perms.All.Without(perms.CanAttack))
	if !block.Play() {
		t.Fatalf("block should start")
	}
	c.PushOverride("stun", perms.CanBeHit)
	block.Stop(true)
	if got := c.Effective(); got != perms.CanBeHit {
		t.Fatalf("effective=%s want be_hit while stunned", got)
	}
	c.PopOverride("stun")
	if got := c.Effective(); got != perms.All.Without(perms.CanAttack) {
		t.Fatalf("effective=%s want root override", got)
	}
	if c.PopOverride("stun") {
		t.Fatalf("second pop should find nothing")
	}
}

func TestRoutine_PhasesAndHold(t *testing.T) {
	c := NewCoordinator()
	var log []string
	b := &stubBehavior{phases: []Phase{
		{Name: "windup", Duration: 0.1, Enter: func() { log = append(log, "windup") }},
		{Name: "strike", Duration: 0.05, Enter: func() { log = append(log, "strike") }},
		{Name: "recover", Duration: 0.1, Step: func(float64) { log = append(log, "step") }},
	}}
	s := NewSlot("attack", 10, perms.CanAttack, perms.CanBeHit, b)
	mustRegister(t, c, s)

	s.Play()
	if s.Cursor().Phase != 0 || len(log) != 1 {
		t.Fatalf("cursor=%+v log=%v", s.Cursor(), log)
	}
	c.Advance(0.05)
	c.Advance(0.05)
	if s.Cursor().Phase != 1 || log[len(log)-1] != "strike" {
		t.Fatalf("cursor=%+v log=%v", s.Cursor(), log)
	}
	c.Advance(0.05)
	c.Advance(0.05)
	c.Advance(0.05)
	if s.Playing() {
		t.Fatalf("routine should have completed, cursor=%+v", s.Cursor())
	}
	if got := len(log); got != 4 {
		t.Fatalf("log=%v", log)
	}

	hold := NewSlot("block", 5, perms.CanBlock, perms.CanBeHit, &stubBehavior{phases: []Phase{{Name: "hold"}}})
	mustRegister(t, c, hold)
	hold.Play()
	for i := 0; i < 100; i++ {
		c.Advance(0.05)
	}
	if !hold.Playing() {
		t.Fatalf("zero-duration phase should hold until stopped")
	}
	hold.Stop(false)
	if hold.Playing() {
		t.Fatalf("hold should stop")
	}
}

func TestResolve_HighestPriorityThenRegistrationOrder(t *testing.T) {
	c := NewCoordinator()
	a := NewSlot("a", 10, perms.CanAttack, perms.CanBeHit, timed(1))
	b := NewSlot("b", 20, perms.CanBlock, perms.CanBeHit, timed(1))
	d := NewSlot("d", 20, perms.CanDodge, perms.CanBeHit, timed(1))
	mustRegister(t, c, a, b, d)

	c.Request(d)
	c.Request(a)
	c.Request(b)
	if got := c.Resolve(); got != b {
		t.Fatalf("resolved=%v want b", got)
	}
	if d.Playing() || a.Playing() {
		t.Fatalf("losing requests must be dropped")
	}
	if c.Resolve() != nil {
		t.Fatalf("requests should be cleared after Resolve")
	}
}

func TestResolve_RejectedTopDoesNotFallThrough(t *testing.T) {
	c := NewCoordinator()
	empty := &stubBehavior{phases: []Phase{{Name: "dash", Duration: 0.1}}, limited: true}
	dodge := NewSlot("dodge", 30, perms.CanDodge, perms.CanPickUp, empty)
	attack := NewSlot("attack", 10, perms.CanAttack, perms.CanBeHit, timed(1))
	mustRegister(t, c, dodge, attack)

	c.Request(attack)
	c.Request(dodge)
	if got := c.Resolve(); got != nil {
		t.Fatalf("resolved=%v want nil", got.Name())
	}
	if attack.Playing() {
		t.Fatalf("lower-priority request should not start")
	}
}

func TestRegister_ReplaceRemove(t *testing.T) {
	c := NewCoordinator()
	type seen struct {
		kind EventKind
		reg  bool
	}
	var events []seen
	c.OnEvent(func(ev Event) { events = append(events, seen{ev.Kind, ev.Registration}) })

	a := NewSlot("attack", 10, perms.CanAttack, perms.CanBeHit, timed(1))
	mustRegister(t, c, a)
	if err := c.Register(NewSlot("attack", 1, perms.CanAttack, perms.None, timed(1))); !errors.Is(err, ErrDuplicateSlot) {
		t.Fatalf("err=%v want ErrDuplicateSlot", err)
	}
	if err := c.Register(a); !errors.Is(err, ErrAttached) {
		t.Fatalf("err=%v want ErrAttached", err)
	}

	a.Play()
	heavyB := timed(2)
	heavy := NewSlot("attack", 10, perms.CanAttack, perms.CanBeHit, heavyB)
	if err := c.Replace("attack", heavy); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if a.Playing() || c.Slot("attack") != heavy || c.Effective() != perms.Default() {
		t.Fatalf("replace did not swap cleanly")
	}
	if a.Play() {
		t.Fatalf("detached slot must not play")
	}
	if err := c.Replace("missing", NewSlot("x", 0, perms.CanMove, perms.None, timed(1))); !errors.Is(err, ErrUnknownSlot) {
		t.Fatalf("err=%v want ErrUnknownSlot", err)
	}

	heavy.Play()
	if !c.Remove("attack") || heavy.Playing() || len(c.Slots()) != 0 {
		t.Fatalf("remove should stop and drop the slot")
	}
	want := []seen{
		{EventAdd, true},
		{EventAdd, false}, {EventRemove, false}, {EventReplace, true},
		{EventAdd, false}, {EventRemove, false}, {EventRemove, true},
	}
	if len(events) != len(want) {
		t.Fatalf("events=%v want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("events=%v want %v", events, want)
		}
	}

	// An idle slot still announces its registration and removal.
	events = nil
	idle := NewSlot("block", 5, perms.CanBlock, perms.None, timed(0))
	mustRegister(t, c, idle)
	if !c.Remove("block") {
		t.Fatalf("remove idle slot")
	}
	if len(events) != 2 || events[0] != (seen{EventAdd, true}) || events[1] != (seen{EventRemove, true}) {
		t.Fatalf("idle register/remove events=%v", events)
	}
}

func TestSnapshot_ReportsCounter(t *testing.T) {
	c := NewCoordinator()
	b := &stubBehavior{phases: []Phase{{Name: "dash", Duration: 0.1}}, limited: true, charges: 2}
	s := NewSlot("dodge", 30, perms.CanDodge, perms.CanPickUp, b)
	mustRegister(t, c, s)
	s.Play()
	snap := c.Snapshot()
	if len(snap) != 1 || !snap[0].Playing || snap[0].Counter != 1 {
		t.Fatalf("snapshot=%+v", snap)
	}
	c.Advance(0.1)
	if b.updates != 1 {
		t.Fatalf("updates=%d want 1", b.updates)
	}
}

func TestCoordinator_AtMostOnePlayingProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		c := NewCoordinator()
		overrides := []perms.Set{
			perms.CanPickUp,
			perms.CanMove | perms.CanBeHit | perms.CanDodge,
			perms.CanBeHit | perms.CanDodge,
			perms.CanBeHit | perms.CanMove,
		}
		cats := []perms.Set{perms.CanDodge, perms.CanBlock, perms.CanAttack, perms.CanUsePowerUp}
		var slots []*Slot
		for i := range cats {
			d := rapid.IntRange(0, 4).Draw(t, "duration")
			b := &stubBehavior{phases: []Phase{{Name: "p", Duration: float64(d) * 0.05}}, limited: i == 0, charges: 3}
			s := NewSlot(string(rune('a'+i)), rapid.IntRange(0, 3).Draw(t, "priority"), cats[i], overrides[i], b)
			if err := c.Register(s); err != nil {
				t.Fatalf("register: %v", err)
			}
			slots = append(slots, s)
		}
		external := 0

		steps := rapid.IntRange(1, 60).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			s := slots[rapid.IntRange(0, len(slots)-1).Draw(t, "slot")]
			switch rapid.IntRange(0, 6).Draw(t, "op") {
			case 0:
				s.Play()
			case 1:
				s.Stop(rapid.Bool().Draw(t, "forced"))
			case 2:
				c.Request(s)
			case 3:
				c.Resolve()
			case 4:
				c.Advance(0.05)
			case 5:
				c.PushOverride("ext", perms.CanBeHit)
				external++
			case 6:
				if c.PopOverride("ext") {
					external--
				}
			}

			playing := 0
			for _, sl := range slots {
				if sl.Playing() {
					playing++
				}
			}
			if playing > 1 {
				t.Fatalf("%d slots playing", playing)
			}
			want := external
			if playing == 1 {
				want++
			}
			if c.OverrideDepth() != want {
				t.Fatalf("override depth=%d want %d", c.OverrideDepth(), want)
			}
		}

		c.StopAll(true)
		for external > 0 {
			c.PopOverride("ext")
			external--
		}
		if c.Effective() != perms.Default() {
			t.Fatalf("effective=%s want default", c.Effective())
		}
	})
}
