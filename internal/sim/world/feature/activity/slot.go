package activity

import "skirmish.gg/internal/sim/world/logic/perms"

type State uint8

const (
	Idle State = iota
	Playing
)

func (s State) String() string {
	if s == Playing {
		return "PLAYING"
	}
	return "IDLE"
}

// phaseEpsilon absorbs float drift when fixed steps sum to a phase duration.
const phaseEpsilon = 1e-9

// Phase is one step of a routine. Enter runs once when the cursor reaches the
// phase; Step runs every tick while it is current. A zero Duration holds the
// phase until the slot is stopped.
type Phase struct {
	Name     string
	Duration float64
	Enter    func()
	Step     func(dt float64)
}

// Cursor is the position of a playing routine.
type Cursor struct {
	Phase   int
	Elapsed float64
}

// Behavior is the concrete activity a slot plays.
type Behavior interface {
	// Routine is read once per Play.
	Routine() []Phase
	// Ready is the resource gate checked before Begin.
	Ready() bool
	Begin()
	// Finish runs after the slot went idle. forced is true when the routine
	// was interrupted instead of completing.
	Finish(forced bool)
	// Update runs every tick whether or not the slot plays; timers that
	// outlive the routine (charge regeneration) live here.
	Update(dt float64)
}

// Counted is implemented by behaviors that own a replicated resource counter.
type Counted interface {
	Counter() int
}

// Slot binds a behavior to a permission category and the override it applies
// while playing. Slots are driven by the Coordinator they are registered on.
type Slot struct {
	name     string
	priority int
	category perms.Set
	override perms.Set
	behavior Behavior

	coord   *Coordinator
	order   int
	state   State
	cursor  Cursor
	routine []Phase
}

func NewSlot(name string, priority int, category, override perms.Set, b Behavior) *Slot {
	return &Slot{
		name:     name,
		priority: priority,
		category: category,
		override: override,
		behavior: b,
	}
}

func (s *Slot) Name() string        { return s.name }
func (s *Slot) Priority() int       { return s.priority }
func (s *Slot) Category() perms.Set { return s.category }
func (s *Slot) Override() perms.Set { return s.override }
func (s *Slot) Behavior() Behavior  { return s.behavior }
func (s *Slot) State() State        { return s.state }
func (s *Slot) Playing() bool       { return s.state == Playing }
func (s *Slot) Cursor() Cursor      { return s.cursor }

// Counter returns the behavior's resource counter, or 0 when it has none.
func (s *Slot) Counter() int {
	if c, ok := s.behavior.(Counted); ok {
		return c.Counter()
	}
	return 0
}

// Play asks the coordinator to start the slot. Rejections return false and
// change nothing.
func (s *Slot) Play() bool {
	if s.coord == nil {
		return false
	}
	return s.coord.play(s)
}

// Stop ends a playing routine. It is a no-op when the slot is idle.
func (s *Slot) Stop(forced bool) {
	if s.coord == nil || s.state != Playing {
		return
	}
	s.coord.stop(s, forced)
}

func (s *Slot) overrideOwner() string { return "slot:" + s.name }

// start resets the cursor and enters the first phase.
func (s *Slot) start() {
	s.state = Playing
	s.cursor = Cursor{}
	s.routine = s.behavior.Routine()
	s.enter()
}

func (s *Slot) enter() {
	if s.cursor.Phase < len(s.routine) {
		if fn := s.routine[s.cursor.Phase].Enter; fn != nil {
			fn()
		}
	}
}

// step advances the routine by dt and reports whether it completed.
func (s *Slot) step(dt float64) bool {
	if s.cursor.Phase >= len(s.routine) {
		return true
	}
	ph := s.routine[s.cursor.Phase]
	if ph.Step != nil {
		ph.Step(dt)
	}
	if s.state != Playing {
		return false
	}
	s.cursor.Elapsed += dt
	if ph.Duration <= 0 || s.cursor.Elapsed+phaseEpsilon < ph.Duration {
		return false
	}
	s.cursor.Phase++
	s.cursor.Elapsed = 0
	if s.cursor.Phase >= len(s.routine) {
		return true
	}
	s.enter()
	return false
}

func (s *Slot) reset() {
	s.state = Idle
	s.cursor = Cursor{}
	s.routine = nil
}
