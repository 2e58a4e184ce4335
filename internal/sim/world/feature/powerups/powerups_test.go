package powerups

import (
	"errors"
	"testing"

	"skirmish.gg/internal/sim/world/feature/combat/damage"
	"skirmish.gg/internal/sim/world/feature/combat/effects"
	"skirmish.gg/internal/sim/world/logic/mathx"
	"skirmish.gg/internal/sim/world/logic/spatial"
)

func builtins() []PowerUp {
	return []PowerUp{
		Shockwave{Damage: 20, Radius: 3, PushForce: 6, Stunlock: 0.5},
		Medkit{Amount: 40},
		Fury{Magnitude: 0.5, Duration: 5},
		Haste{Magnitude: 0.4, Duration: 4},
	}
}

func TestRegistry_IDsFollowSortedKeys(t *testing.T) {
	a, err := NewRegistry(builtins()...)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	list := builtins()
	for i, j := 0, len(list)-1; i < j; i, j = i+1, j-1 {
		list[i], list[j] = list[j], list[i]
	}
	b, err := NewRegistry(list...)
	if err != nil {
		t.Fatalf("NewRegistry reversed: %v", err)
	}

	want := map[string]ID{"fury": 1, "haste": 2, "medkit": 3, "shockwave": 4}
	for key, id := range want {
		if got, ok := a.ID(key); !ok || got != id {
			t.Fatalf("%s: got=%d want=%d", key, got, id)
		}
		if got, _ := b.ID(key); got != id {
			t.Fatalf("%s (reversed): got=%d want=%d", key, got, id)
		}
	}
	if a.PaletteDigest != b.PaletteDigest || a.PaletteDigest == "" {
		t.Fatalf("digests differ: %s vs %s", a.PaletteDigest, b.PaletteDigest)
	}
	if a.Resolve(3).Key() != "medkit" {
		t.Fatalf("resolve(3)=%s", a.Resolve(3).Key())
	}
}

func TestRegistry_FailsClosed(t *testing.T) {
	r, err := NewRegistry(builtins()...)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	if r.Resolve(None) != nil || r.Resolve(99) != nil {
		t.Fatalf("unknown ids must resolve to nil")
	}
	if _, ok := r.ID("rocket"); ok {
		t.Fatalf("unknown key resolved")
	}
	var nilReg *Registry
	if nilReg.Resolve(1) != nil {
		t.Fatalf("nil registry must resolve to nil")
	}
}

func TestRegistry_RejectsBadLists(t *testing.T) {
	if _, err := NewRegistry(Medkit{}, Medkit{}); !errors.Is(err, ErrDuplicateKey) {
		t.Fatalf("err=%v want ErrDuplicateKey", err)
	}
	if _, err := NewRegistry(Medkit{}, nil); !errors.Is(err, ErrEmptyKey) {
		t.Fatalf("err=%v want ErrEmptyKey", err)
	}
}

func TestInventory_HolderKeepsFirst(t *testing.T) {
	var inv Inventory
	if !inv.TryStore(2) {
		t.Fatalf("empty inventory should accept")
	}
	if inv.TryStore(4) {
		t.Fatalf("occupied inventory must reject")
	}
	if inv.Held() != 2 {
		t.Fatalf("held=%d want 2", inv.Held())
	}
	if inv.Take() != 2 || inv.Held() != None {
		t.Fatalf("take should empty the slot")
	}
	if inv.TryStore(None) {
		t.Fatalf("None must not be stored")
	}
}

func TestClaim_StoreOneshotAndRespawn(t *testing.T) {
	reg, _ := NewRegistry(builtins()...)
	field, dropped := NewField(reg, []Volume{
		{Name: "north", Key: "haste", Pos: mathx.V(0, 5), Radius: 1, Respawn: 2},
		{Name: "center", Key: "medkit", Pos: mathx.V(0, 0), Radius: 1, Respawn: 1},
		{Name: "bogus", Key: "rocket", Pos: mathx.V(9, 9), Radius: 1},
	})
	if len(dropped) != 1 || dropped[0] != "bogus" {
		t.Fatalf("dropped=%v", dropped)
	}

	var inv Inventory
	north := field.Touching(mathx.V(0, 4.5), 0.5)
	if north == nil || north.Name != "north" {
		t.Fatalf("touching=%+v", north)
	}
	if !Claim(north, reg, &inv, nil) {
		t.Fatalf("first claim should store")
	}
	if id, _ := reg.ID("haste"); inv.Held() != id {
		t.Fatalf("held=%d", inv.Held())
	}
	if field.Touching(mathx.V(0, 4.5), 0.5) != nil {
		t.Fatalf("taken volume must be unavailable")
	}

	var activated []string
	center := field.Touching(mathx.V(0, 0), 0.5)
	if !Claim(center, reg, &inv, func(p PowerUp) { activated = append(activated, p.Key()) }) {
		t.Fatalf("oneshot should be consumed even with a full inventory")
	}
	if len(activated) != 1 || activated[0] != "medkit" {
		t.Fatalf("activated=%v", activated)
	}

	field.Tick(2)
	again := field.Touching(mathx.V(0, 4.5), 0.5)
	if again == nil {
		t.Fatalf("volume should respawn")
	}
	if Claim(again, reg, &inv, nil) {
		t.Fatalf("full inventory must refuse a second stored power-up")
	}
	if !again.Available() {
		t.Fatalf("refused volume must stay available")
	}
}

type user struct {
	id  string
	pos mathx.Vec2
	fx  effects.Engine
}

func (u *user) EntityID() string         { return u.id }
func (u *user) Position() mathx.Vec2     { return u.pos }
func (u *user) Facing() mathx.Vec2       { return mathx.V(1, 0) }
func (u *user) Effects() *effects.Engine { return &u.fx }

func TestKinds_Activate(t *testing.T) {
	self := &user{id: "self"}
	foe := &user{id: "foe", pos: mathx.V(2, 0)}
	ix := spatial.NewIndex(4)
	ix.Insert(spatial.Candidate{ID: "self", Pos: self.pos, Ref: self})
	ix.Insert(spatial.Candidate{ID: "foe", Pos: foe.pos, Ref: foe})

	type sent struct {
		to  string
		env damage.Envelope
	}
	var out []sent
	ctx := Context{
		User:    self,
		Deliver: func(target damage.Entity, env damage.Envelope) { out = append(out, sent{target.EntityID(), env}) },
		Nearby:  ix.FindCandidates,
	}

	Shockwave{Damage: 20, Radius: 3, PushForce: 6}.Activate(ctx)
	if len(out) != 1 || out[0].to != "foe" || out[0].env.Value != 20 {
		t.Fatalf("shockwave deliveries=%+v", out)
	}
	if push := out[0].env.Push(); !push.Near(mathx.V(6, 0), 1e-9) {
		t.Fatalf("push=%+v", push)
	}

	out = nil
	Medkit{Amount: 40}.Activate(ctx)
	if len(out) != 1 || out[0].to != "self" || !out[0].env.IsHeal() {
		t.Fatalf("medkit deliveries=%+v", out)
	}

	out = nil
	Haste{Magnitude: 0.4, Duration: 4}.Activate(ctx)
	Fury{Magnitude: 0.5, Duration: 5}.Activate(ctx)
	if len(out) != 2 || self.fx.Len() != 0 {
		t.Fatalf("buffs must go through Deliver: deliveries=%d engine=%d", len(out), self.fx.Len())
	}
	for i, want := range []effects.Kind{effects.KindSpeed, effects.KindDamage} {
		env := out[i].env
		if out[i].to != "self" || env.Kind != damage.KindEffect || env.Value != 0 || len(env.Effects) != 1 || env.Effects[0].Kind != want {
			t.Fatalf("buff envelope %d=%+v", i, out[i])
		}
	}
	if got := Present(Shockwave{Radius: 3}); got.Cue != "ring" || got.Radius != 3 {
		t.Fatalf("presentation=%+v", got)
	}
}
