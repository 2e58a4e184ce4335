package activity

import (
	"errors"
	"fmt"
	"sort"

	"skirmish.gg/internal/sim/world/logic/perms"
)

var (
	ErrNilSlot       = errors.New("activity: nil slot")
	ErrDuplicateSlot = errors.New("activity: duplicate slot name")
	ErrAttached      = errors.New("activity: slot already registered")
	ErrUnknownSlot   = errors.New("activity: unknown slot")
)

type EventKind uint8

const (
	EventAdd EventKind = iota + 1
	EventRemove
	EventReplace
)

func (k EventKind) String() string {
	switch k {
	case EventAdd:
		return "ADD"
	case EventRemove:
		return "REMOVE"
	case EventReplace:
		return "REPLACE"
	default:
		return "UNKNOWN"
	}
}

// Event reports a change of the playing slot or of a registration.
// Registration tells slot list changes apart from play start and stop; it is
// always set for EventReplace. Previous is only set for EventReplace, Forced
// only for a play EventRemove.
type Event struct {
	Kind         EventKind
	Slot         *Slot
	Previous     *Slot
	Forced       bool
	Registration bool
}

type Listener func(Event)

type overrideEntry struct {
	owner string
	set   perms.Set
}

// SlotState is the replicated view of one slot.
type SlotState struct {
	Name    string `json:"name"`
	Playing bool   `json:"playing"`
	Counter int    `json:"counter"`
}

// Coordinator owns a character's slots and permission override stack. At
// most one slot plays at a time. It is not safe for concurrent use; the world
// goroutine owns it.
type Coordinator struct {
	slots     []*Slot
	nextOrder int
	active    *Slot
	overrides []overrideEntry
	requests  []*Slot
	listeners []Listener
}

func NewCoordinator() *Coordinator {
	return &Coordinator{}
}

func (c *Coordinator) OnEvent(fn Listener) {
	if fn != nil {
		c.listeners = append(c.listeners, fn)
	}
}

func (c *Coordinator) emit(ev Event) {
	for _, fn := range c.listeners {
		fn(ev)
	}
}

// Register appends s to the slot list. Registration order breaks priority
// ties in Resolve.
func (c *Coordinator) Register(s *Slot) error {
	if s == nil || s.behavior == nil {
		return ErrNilSlot
	}
	if s.coord != nil {
		return fmt.Errorf("%w: %s", ErrAttached, s.name)
	}
	if c.Slot(s.name) != nil {
		return fmt.Errorf("%w: %s", ErrDuplicateSlot, s.name)
	}
	c.nextOrder++
	s.coord = c
	s.order = c.nextOrder
	s.reset()
	c.slots = append(c.slots, s)
	c.emit(Event{Kind: EventAdd, Slot: s, Registration: true})
	return nil
}

// Remove unregisters the named slot, force-stopping it first if it plays.
func (c *Coordinator) Remove(name string) bool {
	for i, s := range c.slots {
		if s.name != name {
			continue
		}
		if s.state == Playing {
			c.stop(s, true)
		}
		c.dropRequests(s)
		c.slots = append(c.slots[:i:i], c.slots[i+1:]...)
		s.coord = nil
		c.emit(Event{Kind: EventRemove, Slot: s, Registration: true})
		return true
	}
	return false
}

// Replace swaps the registration of the named slot for next, keeping its
// position in the list. A playing slot is force-stopped first.
func (c *Coordinator) Replace(name string, next *Slot) error {
	if next == nil || next.behavior == nil {
		return ErrNilSlot
	}
	if next.coord != nil {
		return fmt.Errorf("%w: %s", ErrAttached, next.name)
	}
	for i, s := range c.slots {
		if s.name != name {
			continue
		}
		if next.name != name && c.Slot(next.name) != nil {
			return fmt.Errorf("%w: %s", ErrDuplicateSlot, next.name)
		}
		if s.state == Playing {
			c.stop(s, true)
		}
		c.dropRequests(s)
		next.coord = c
		next.order = s.order
		next.reset()
		c.slots[i] = next
		s.coord = nil
		c.emit(Event{Kind: EventReplace, Slot: next, Previous: s, Registration: true})
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnknownSlot, name)
}

func (c *Coordinator) Slot(name string) *Slot {
	for _, s := range c.slots {
		if s.name == name {
			return s
		}
	}
	return nil
}

func (c *Coordinator) Slots() []*Slot {
	out := make([]*Slot, len(c.slots))
	copy(out, c.slots)
	return out
}

// Active returns the playing slot, or nil.
func (c *Coordinator) Active() *Slot { return c.active }

// Effective is the top of the override stack, or the default set.
func (c *Coordinator) Effective() perms.Set {
	if n := len(c.overrides); n > 0 {
		return c.overrides[n-1].set
	}
	return perms.Default()
}

func (c *Coordinator) Allows(want perms.Set) bool { return c.Effective().Allows(want) }

// PushOverride puts set on top of the stack under owner.
func (c *Coordinator) PushOverride(owner string, set perms.Set) {
	c.overrides = append(c.overrides, overrideEntry{owner: owner, set: set})
}

// PopOverride removes the topmost entry pushed by owner, wherever it sits in
// the stack, and reports whether one was found.
func (c *Coordinator) PopOverride(owner string) bool {
	for i := len(c.overrides) - 1; i >= 0; i-- {
		if c.overrides[i].owner == owner {
			c.overrides = append(c.overrides[:i:i], c.overrides[i+1:]...)
			return true
		}
	}
	return false
}

func (c *Coordinator) OverrideDepth() int { return len(c.overrides) }

// Request queues a play intent for the next Resolve.
func (c *Coordinator) Request(s *Slot) {
	if s == nil || s.coord != c {
		return
	}
	c.requests = append(c.requests, s)
}

// Resolve tries the highest-priority request of the tick, ties going to the
// slot registered first, and drops the rest. It returns the started slot.
func (c *Coordinator) Resolve() *Slot {
	if len(c.requests) == 0 {
		return nil
	}
	reqs := c.requests
	c.requests = nil
	sort.SliceStable(reqs, func(i, j int) bool {
		if reqs[i].priority != reqs[j].priority {
			return reqs[i].priority > reqs[j].priority
		}
		return reqs[i].order < reqs[j].order
	})
	if top := reqs[0]; top.coord == c && c.play(top) {
		return top
	}
	return nil
}

// StopAll stops the playing slot, if any, and drops pending requests.
func (c *Coordinator) StopAll(forced bool) {
	c.requests = nil
	if c.active != nil {
		c.stop(c.active, forced)
	}
}

// Advance ticks every behavior and moves the playing routine forward.
func (c *Coordinator) Advance(dt float64) {
	for _, s := range c.slots {
		s.behavior.Update(dt)
	}
	if a := c.active; a != nil {
		if a.step(dt) && a.state == Playing {
			c.stop(a, false)
		}
	}
}

func (c *Coordinator) Snapshot() []SlotState {
	out := make([]SlotState, 0, len(c.slots))
	for _, s := range c.slots {
		out = append(out, SlotState{Name: s.name, Playing: s.state == Playing, Counter: s.Counter()})
	}
	return out
}

func (c *Coordinator) play(s *Slot) bool {
	if s.coord != c || s.state == Playing {
		return false
	}
	if !c.Effective().Allows(s.category) {
		return false
	}
	if prev := c.active; prev != nil && !prev.override.Allows(s.category) {
		return false
	}
	if !s.behavior.Ready() {
		return false
	}
	if prev := c.active; prev != nil {
		c.stop(prev, true)
	}
	s.behavior.Begin()
	c.active = s
	c.PushOverride(s.overrideOwner(), s.override)
	s.start()
	c.emit(Event{Kind: EventAdd, Slot: s})
	return true
}

func (c *Coordinator) stop(s *Slot, forced bool) {
	if s.state != Playing {
		return
	}
	s.reset()
	if c.active == s {
		c.active = nil
	}
	c.PopOverride(s.overrideOwner())
	s.behavior.Finish(forced)
	c.emit(Event{Kind: EventRemove, Slot: s, Forced: forced})
}

func (c *Coordinator) dropRequests(s *Slot) {
	kept := c.requests[:0]
	for _, r := range c.requests {
		if r != s {
			kept = append(kept, r)
		}
	}
	c.requests = kept
}
