package damage_test

import (
	"sync"
	"testing"

	"go.uber.org/mock/gomock"

	"skirmish.gg/internal/sim/world/feature/combat/damage"
	"skirmish.gg/internal/sim/world/feature/combat/damage/mocks"
	"skirmish.gg/internal/sim/world/feature/combat/effects"
)

// fighter is a minimal target with health, blocking, stun and effects.
type fighter struct {
	id       string
	hp       float64
	maxHP    float64
	blocking bool
	stun     float64
	gone     bool
	fx       effects.Engine
	hits     int
}

func newFighter(id string, hp float64) *fighter {
	return &fighter{id: id, hp: hp, maxHP: hp}
}

func (f *fighter) EntityID() string         { return f.id }
func (f *fighter) Health() float64          { return f.hp }
func (f *fighter) IsBlocking() bool         { return f.blocking }
func (f *fighter) Stun(s float64)           { f.stun = s }
func (f *fighter) Effects() *effects.Engine { return &f.fx }
func (f *fighter) Destroyed() bool          { return f.gone }

func (f *fighter) Hit(env damage.Envelope) damage.Outcome {
	if f.hp <= 0 {
		return damage.Outcome{}
	}
	f.hits++
	f.hp -= env.Value
	if f.hp <= 0 {
		f.hp = 0
		return damage.Outcome{Accepted: true, Lethal: true}
	}
	return damage.Outcome{Accepted: true}
}

func (f *fighter) Heal(env damage.Envelope) damage.Outcome {
	if f.hp <= 0 {
		return damage.Outcome{}
	}
	f.hp += env.Value
	if f.hp > f.maxHP {
		f.hp = f.maxHP
	}
	return damage.Outcome{Accepted: true}
}

func TestDeliver_BroadcastsExactlyOncePerSubscriber(t *testing.T) {
	p := damage.NewPipeline()
	var a, b int
	p.Subscribe("ui", func(damage.Report) { a++ })
	p.Subscribe("feed", func(damage.Report) { b++ })

	target := newFighter("T", 100)
	r := p.Deliver(target, damage.Envelope{Value: 10})
	if !r.IsDelivered || r.IsLethal {
		t.Fatalf("unexpected report: %+v", r)
	}
	if a != 1 || b != 1 {
		t.Fatalf("broadcasts a=%d b=%d want 1/1", a, b)
	}
	if target.hp != 90 {
		t.Fatalf("hp=%v want 90", target.hp)
	}
}

func TestDeliver_BlockRedirectsStunNotDamage(t *testing.T) {
	p := damage.NewPipeline()
	var got []damage.Report
	p.Subscribe("stagger", func(r damage.Report) { got = append(got, r) })

	attacker := newFighter("A", 100)
	target := newFighter("T", 100)
	target.blocking = true

	r := p.Deliver(target, damage.Envelope{Value: 30, Sender: attacker, Stunlock: 5})
	if target.hp != 100 {
		t.Fatalf("target hp=%v want unchanged 100", target.hp)
	}
	if attacker.stun != 5 {
		t.Fatalf("attacker stun=%v want 5", attacker.stun)
	}
	if r.IsDelivered || !r.Blocked {
		t.Fatalf("report=%+v want blocked and not delivered", r)
	}
	if len(got) != 1 || got[0].SenderID() != "A" {
		t.Fatalf("blocked report should still be broadcast once: %+v", got)
	}
}

func TestDeliver_UnblockableIgnoresBlock(t *testing.T) {
	p := damage.NewPipeline()
	attacker := newFighter("A", 100)
	target := newFighter("T", 100)
	target.blocking = true

	r := p.Deliver(target, damage.Envelope{Value: 30, Sender: attacker, Stunlock: 5, Kind: damage.KindUnblockable})
	if !r.IsDelivered || r.Blocked {
		t.Fatalf("report=%+v want delivered", r)
	}
	if target.hp != 70 || attacker.stun != 0 {
		t.Fatalf("hp=%v stun=%v", target.hp, attacker.stun)
	}
}

func TestDeliver_EffectEnvelopeIgnoresBlock(t *testing.T) {
	p := damage.NewPipeline()
	self := newFighter("S", 100)
	self.blocking = true
	reports := 0
	p.Subscribe("ui", func(damage.Report) { reports++ })

	r := p.Deliver(self, damage.Envelope{
		Sender:  self,
		Kind:    damage.KindEffect,
		Effects: []effects.Effect{{Kind: effects.KindSpeed, Magnitude: 0.5, Duration: 2}},
	})
	if !r.IsDelivered || r.Blocked || reports != 1 {
		t.Fatalf("report=%+v broadcasts=%d", r, reports)
	}
	if self.hp != 100 || self.stun != 0 {
		t.Fatalf("hp=%v stun=%v", self.hp, self.stun)
	}
	if got := self.fx.NetModifier(effects.KindSpeed); got != 0.5 {
		t.Fatalf("speed net=%v want 0.5", got)
	}
}

func TestDeliver_LethalReportedOnce(t *testing.T) {
	p := damage.NewPipeline()
	lethal := 0
	p.Subscribe("trigger", func(r damage.Report) {
		if r.IsLethal {
			lethal++
		}
	})
	target := newFighter("T", 50)

	r := p.Deliver(target, damage.Envelope{Value: 50})
	if !r.IsLethal || target.hp != 0 {
		t.Fatalf("report=%+v hp=%v", r, target.hp)
	}
	r = p.Deliver(target, damage.Envelope{Value: 20})
	if r.IsLethal || r.IsDelivered {
		t.Fatalf("dead target must reject: %+v", r)
	}
	if target.hp != 0 {
		t.Fatalf("hp went below zero: %v", target.hp)
	}
	if lethal != 1 {
		t.Fatalf("lethal broadcasts=%d want 1", lethal)
	}
}

func TestDeliver_HealInvertsSignWithoutAliasing(t *testing.T) {
	p := damage.NewPipeline()
	target := newFighter("T", 100)
	target.hp = 40

	env := damage.Envelope{Value: -25, Effects: []effects.Effect{{Kind: effects.KindSpeed, Magnitude: 0.5, Duration: 1}}}
	r := p.Deliver(target, env)
	if target.hp != 65 {
		t.Fatalf("hp=%v want 65", target.hp)
	}
	if env.Value != -25 || r.Damage.Value != -25 {
		t.Fatalf("caller envelope or report mutated: env=%v report=%v", env.Value, r.Damage.Value)
	}
	env.Effects[0].Magnitude = 9
	if r.Damage.Effects[0].Magnitude != 0.5 {
		t.Fatalf("report aliases caller effects")
	}
	if got := target.fx.NetModifier(effects.KindSpeed); got != 0.5 {
		t.Fatalf("effect not registered, net=%v", got)
	}
}

func TestDeliver_EffectsOnlyOnAcceptedHits(t *testing.T) {
	p := damage.NewPipeline()
	target := newFighter("T", 10)
	target.hp = 0
	p.Deliver(target, damage.Envelope{Value: 1, Effects: []effects.Effect{{Kind: effects.KindDamage, Magnitude: 1, Duration: 3}}})
	if target.fx.Len() != 0 {
		t.Fatalf("rejected hit must not register effects")
	}
}

func TestDeliver_InvalidTargets(t *testing.T) {
	p := damage.NewPipeline()
	calls := 0
	p.Subscribe("ui", func(damage.Report) { calls++ })

	var missing *fighter
	if r := p.Deliver(missing, damage.Envelope{Value: 5}); r.IsDelivered {
		t.Fatalf("nil target delivered")
	}
	if r := p.Deliver(nil, damage.Envelope{Value: 5}); r.IsDelivered {
		t.Fatalf("nil interface delivered")
	}
	gone := newFighter("G", 10)
	gone.gone = true
	if r := p.Deliver(gone, damage.Envelope{Value: 5}); r.IsDelivered || gone.hits != 0 {
		t.Fatalf("destroyed target delivered")
	}
	if calls != 0 {
		t.Fatalf("invalid targets must not broadcast, got %d", calls)
	}
	if st := p.Stats(); st.Invalid != 3 {
		t.Fatalf("invalid=%d want 3", st.Invalid)
	}
}

func TestDeliver_NilSenderIsEnvironmental(t *testing.T) {
	p := damage.NewPipeline()
	target := newFighter("T", 10)
	target.blocking = true
	r := p.Deliver(target, damage.Envelope{Value: 5, Stunlock: 2})
	if !r.Blocked || r.SenderID() != "" {
		t.Fatalf("report=%+v", r)
	}
}

func TestDeliver_MockTargetContract(t *testing.T) {
	ctrl := gomock.NewController(t)
	target := mocks.NewMockDamageable(ctrl)

	target.EXPECT().Hit(gomock.Any()).DoAndReturn(func(env damage.Envelope) damage.Outcome {
		if env.Value != 12 {
			t.Fatalf("hit value=%v want 12", env.Value)
		}
		return damage.Outcome{Accepted: false}
	}).Times(1)
	target.EXPECT().Heal(gomock.Any()).DoAndReturn(func(env damage.Envelope) damage.Outcome {
		if env.Value != 4 {
			t.Fatalf("heal value=%v want 4", env.Value)
		}
		return damage.Outcome{Accepted: true}
	}).Times(1)

	p := damage.NewPipeline()
	if r := p.Deliver(target, damage.Envelope{Value: 12}); r.IsDelivered {
		t.Fatalf("rejected hit reported as delivered")
	}
	if r := p.Deliver(target, damage.Envelope{Value: -4}); !r.IsDelivered {
		t.Fatalf("accepted heal reported as not delivered")
	}
}

func TestDeliver_ReentrantDeliveryIsSerialized(t *testing.T) {
	p := damage.NewPipeline()
	a := newFighter("A", 100)
	b := newFighter("B", 100)

	var order []string
	p.Subscribe("chain", func(r damage.Report) {
		order = append(order, r.TargetID())
		if r.TargetID() == "A" && r.IsLethal {
			q := p.Deliver(b, damage.Envelope{Value: 10, Sender: a})
			if !q.Queued {
				t.Fatalf("re-entrant delivery should be queued")
			}
			if b.hp != 100 {
				t.Fatalf("queued delivery ran inside the broadcast")
			}
		}
	})

	p.Deliver(a, damage.Envelope{Value: 200})
	if b.hp != 90 {
		t.Fatalf("deferred delivery did not run: hp=%v", b.hp)
	}
	if len(order) != 2 || order[0] != "A" || order[1] != "B" {
		t.Fatalf("order=%v", order)
	}
}

func TestDeliver_ConcurrentDeliveriesAllRun(t *testing.T) {
	p := damage.NewPipeline()
	target := newFighter("T", 1000)

	const n = 200
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Deliver(target, damage.Envelope{Value: 1})
		}()
	}
	wg.Wait()
	if target.hits != n || target.hp != 1000-n {
		t.Fatalf("hits=%d hp=%v want %d deliveries applied", target.hits, target.hp, n)
	}
	if st := p.Stats(); st.Delivered != n {
		t.Fatalf("stats=%+v", st)
	}
}

func TestEnqueueFlush_FIFOAndLimit(t *testing.T) {
	p := damage.NewPipeline()
	p.MaxFlush = 2
	t1 := newFighter("1", 10)
	t2 := newFighter("2", 10)
	t3 := newFighter("3", 10)
	p.SetTick(7)
	p.Enqueue(t1, damage.Envelope{Value: 1})
	p.Enqueue(t2, damage.Envelope{Value: 1})
	p.Enqueue(t3, damage.Envelope{Value: 1})

	reports := p.Flush()
	if len(reports) != 2 || reports[0].TargetID() != "1" || reports[1].TargetID() != "2" {
		t.Fatalf("first flush=%+v", reports)
	}
	if reports[0].Tick != 7 {
		t.Fatalf("tick=%d want 7", reports[0].Tick)
	}
	if p.Pending() != 1 {
		t.Fatalf("pending=%d want 1", p.Pending())
	}
	reports = p.Flush()
	if len(reports) != 1 || reports[0].TargetID() != "3" {
		t.Fatalf("second flush=%+v", reports)
	}
}

func TestSubscription_CancelAndRelease(t *testing.T) {
	p := damage.NewPipeline()
	n := 0
	sub := p.Subscribe("hud:A", func(damage.Report) { n++ })
	p.Subscribe("hud:A", func(damage.Report) { n++ })
	p.Subscribe("feed", func(damage.Report) { n += 10 })

	sub.Cancel()
	sub.Cancel()
	p.Deliver(newFighter("T", 10), damage.Envelope{Value: 1})
	if n != 11 {
		t.Fatalf("n=%d want 11", n)
	}
	if dropped := p.Release("hud:A"); dropped != 1 {
		t.Fatalf("released=%d want 1", dropped)
	}
	if p.Observers() != 1 {
		t.Fatalf("observers=%d want 1", p.Observers())
	}
}
