package replication

import "sort"

// Update describes one field an Apply changed.
type Update struct {
	Tick   uint64
	Entity string
	Field  Field
	State  EntityState
}

type mirrored struct {
	state  EntityState
	stamps [fieldEnd]uint64
}

// Mirror is an observer's copy of the replicated world. Each field keeps the
// tick of its last write and only newer or equal ticks overwrite it, so
// reordered and repeated patches converge to the same state.
type Mirror struct {
	entities map[string]*mirrored
	removed  map[string]uint64
	onChange []func(Update)
	lastTick uint64
}

func NewMirror() *Mirror {
	return &Mirror{entities: map[string]*mirrored{}, removed: map[string]uint64{}}
}

// OnChange registers fn to run after a patch was applied, once per changed
// field.
func (m *Mirror) OnChange(fn func(Update)) {
	if fn != nil {
		m.onChange = append(m.onChange, fn)
	}
}

// Apply merges p and then runs the change callbacks. It returns the number of
// fields that changed value.
func (m *Mirror) Apply(p Patch) int {
	type touched struct {
		id string
		f  Field
	}
	var changed []touched

	for _, id := range p.Removed {
		if at, ok := m.removed[id]; ok && at >= p.Tick {
			continue
		}
		e, ok := m.entities[id]
		if ok && maxStamp(e) > p.Tick {
			continue
		}
		delete(m.entities, id)
		m.removed[id] = p.Tick
	}

	for _, c := range p.Changes {
		if c.Field == 0 || c.Field >= fieldEnd {
			continue
		}
		if at, ok := m.removed[c.Entity]; ok {
			if p.Tick <= at {
				continue
			}
			delete(m.removed, c.Entity)
		}
		e := m.entities[c.Entity]
		if e == nil {
			e = &mirrored{state: EntityState{ID: c.Entity}}
			m.entities[c.Entity] = e
		}
		if p.Tick < e.stamps[c.Field] {
			continue
		}
		e.stamps[c.Field] = p.Tick
		if sameValue(read(e.state, c.Field), c) {
			continue
		}
		write(&e.state, c)
		changed = append(changed, touched{id: c.Entity, f: c.Field})
	}
	if p.Tick > m.lastTick {
		m.lastTick = p.Tick
	}

	for _, t := range changed {
		e := m.entities[t.id]
		if e == nil {
			continue
		}
		u := Update{Tick: p.Tick, Entity: t.id, Field: t.f, State: e.state}
		for _, fn := range m.onChange {
			fn(u)
		}
	}
	return len(changed)
}

func (m *Mirror) Get(id string) (EntityState, bool) {
	e, ok := m.entities[id]
	if !ok {
		return EntityState{}, false
	}
	return e.state, true
}

func (m *Mirror) IDs() []string {
	ids := make([]string, 0, len(m.entities))
	for id := range m.entities {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (m *Mirror) Len() int { return len(m.entities) }

// LastTick is the newest tick seen in any patch.
func (m *Mirror) LastTick() uint64 { return m.lastTick }

// States returns a copy of every mirrored entity keyed by id.
func (m *Mirror) States() map[string]EntityState {
	out := make(map[string]EntityState, len(m.entities))
	for id, e := range m.entities {
		out[id] = e.state
	}
	return out
}

func maxStamp(e *mirrored) uint64 {
	var m uint64
	for _, s := range e.stamps {
		if s > m {
			m = s
		}
	}
	return m
}
