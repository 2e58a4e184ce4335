package replication

import (
	"testing"
)

func states(list ...EntityState) map[string]EntityState {
	m := map[string]EntityState{}
	for _, s := range list {
		m[s.ID] = s
	}
	return m
}

func TestDiff_OnlyChangedFields(t *testing.T) {
	a := EntityState{ID: "A", Name: "ann", Health: 100, MaxHealth: 100, Alive: true, Charges: 3}
	b := EntityState{ID: "B", Name: "bob", Health: 100, MaxHealth: 100, Alive: true}
	prev := states(a, b)

	a2 := a
	a2.Health = 70
	a2.Pos = [2]float64{1, 2}
	p := Diff(5, prev, states(a2))

	if p.Tick != 5 {
		t.Fatalf("tick=%d want 5", p.Tick)
	}
	if len(p.Changes) != 2 || p.Changes[0].Field != FieldPos || p.Changes[1].Field != FieldHealth {
		t.Fatalf("changes=%+v", p.Changes)
	}
	if len(p.Removed) != 1 || p.Removed[0] != "B" {
		t.Fatalf("removed=%v want [B]", p.Removed)
	}
	if full := Full(5, states(a)); len(full.Changes) != int(fieldEnd)-1 {
		t.Fatalf("full patch has %d changes", len(full.Changes))
	}
}

func TestCodec_RoundTrip(t *testing.T) {
	p := Diff(9, nil, states(EntityState{ID: "A", Name: "ann", Pos: [2]float64{1.5, -2}, Alive: true, Activity: "dodge", HeldPowerUp: 2}))
	p.Removed = []string{"Z"}
	raw, err := Encode(p)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	m := NewMirror()
	m.Apply(got)
	s, ok := m.Get("A")
	if !ok || s.Name != "ann" || s.Pos != [2]float64{1.5, -2} || !s.Alive || s.Activity != "dodge" || s.HeldPowerUp != 2 {
		t.Fatalf("mirrored=%+v", s)
	}
	if _, err := Decode([]byte{0xc1}); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestMirror_LastWriteWinsAndIdempotent(t *testing.T) {
	base := EntityState{ID: "A", Health: 100, MaxHealth: 100, Alive: true}
	p1 := Full(1, states(base))
	h2 := base
	h2.Health = 80
	p2 := Diff(2, states(base), states(h2))
	h3 := h2
	h3.Health = 50
	p3 := Diff(3, states(h2), states(h3))

	inOrder := NewMirror()
	for _, p := range []Patch{p1, p2, p3} {
		inOrder.Apply(p)
	}
	shuffled := NewMirror()
	for _, p := range []Patch{p3, p1, p2, p3, p2} {
		shuffled.Apply(p)
	}
	a, _ := inOrder.Get("A")
	b, _ := shuffled.Get("A")
	if a != b || a.Health != 50 {
		t.Fatalf("in order=%+v shuffled=%+v", a, b)
	}
	if n := inOrder.Apply(p3); n != 0 {
		t.Fatalf("duplicate patch changed %d fields", n)
	}
}

func TestMirror_CallbacksRunAfterApply(t *testing.T) {
	m := NewMirror()
	var seen []Update
	m.OnChange(func(u Update) {
		// the whole patch is visible by the time callbacks run
		s, _ := m.Get(u.Entity)
		if s.Health != 40 || !s.Stunned {
			t.Fatalf("callback saw partial state %+v", s)
		}
		seen = append(seen, u)
	})
	m.Apply(Patch{Tick: 4, Changes: []Change{
		{Entity: "A", Field: FieldHealth, Num: 40},
		{Entity: "A", Field: FieldStunned, Flag: true},
	}})
	if len(seen) != 2 || seen[0].Field != FieldHealth || seen[1].Field != FieldStunned {
		t.Fatalf("updates=%+v", seen)
	}
}

func TestMirror_RemovalIsTickOrdered(t *testing.T) {
	m := NewMirror()
	m.Apply(Patch{Tick: 2, Changes: []Change{{Entity: "A", Field: FieldName, Str: "ann"}}})
	m.Apply(Patch{Tick: 5, Removed: []string{"A"}})
	if m.Len() != 0 {
		t.Fatalf("entity should be removed")
	}
	m.Apply(Patch{Tick: 4, Changes: []Change{{Entity: "A", Field: FieldHealth, Num: 10}}})
	if m.Len() != 0 {
		t.Fatalf("stale change must not resurrect a removed entity")
	}
	m.Apply(Patch{Tick: 6, Changes: []Change{{Entity: "A", Field: FieldName, Str: "ann"}}})
	if _, ok := m.Get("A"); !ok || m.LastTick() != 6 {
		t.Fatalf("newer change should re-create the entity")
	}
	m.Apply(Patch{Tick: 3, Removed: []string{"A"}})
	if m.Len() != 1 {
		t.Fatalf("stale removal must be ignored")
	}
}
