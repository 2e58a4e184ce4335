package damage

import (
	"reflect"
	"sync"
)

const defaultMaxFlush = 256

// Report is the outcome of one delivery. It is broadcast once and then dropped.
type Report struct {
	Tick        uint64
	Damage      Envelope
	Target      Entity
	Sender      Entity
	IsDelivered bool
	IsLethal    bool
	// Blocked is set when the target blocked and the stun went to the sender.
	Blocked bool
	// Queued is set on the placeholder returned for a delivery requested while
	// another one was in flight; the real report is broadcast later.
	Queued bool
}

func (r Report) TargetID() string { return EntityID(r.Target) }
func (r Report) SenderID() string { return EntityID(r.Sender) }

// Observer receives every report the pipeline broadcasts.
type Observer func(Report)

type observerEntry struct {
	id    uint64
	owner string
	fn    Observer
}

type request struct {
	target Entity
	env    Envelope
}

type Stats struct {
	Delivered uint64
	Rejected  uint64
	Blocked   uint64
	Lethal    uint64
	Invalid   uint64
}

// Pipeline is the single entry point for damage and heals on the
// authoritative side. Deliveries never interleave: a delivery requested while
// another is in flight (an observer reacting to a report, or another
// goroutine) is queued and runs right after the current one.
type Pipeline struct {
	mu         sync.Mutex
	observers  []observerEntry
	nextID     uint64
	delivering bool
	deferred   []request
	queued     []request
	tick       uint64
	stats      Stats

	// MaxFlush bounds the queued deliveries processed by one Flush.
	MaxFlush int
}

func NewPipeline() *Pipeline {
	return &Pipeline{MaxFlush: defaultMaxFlush}
}

// Subscription ties an observer to the pipeline until Cancel.
type Subscription struct {
	p  *Pipeline
	id uint64
}

func (s *Subscription) Cancel() {
	if s == nil || s.p == nil {
		return
	}
	s.p.mu.Lock()
	defer s.p.mu.Unlock()
	for i, o := range s.p.observers {
		if o.id == s.id {
			s.p.observers = append(s.p.observers[:i:i], s.p.observers[i+1:]...)
			break
		}
	}
	s.p = nil
}

// Subscribe registers fn for every report. owner scopes the subscription so
// Release can drop it when the owning entity leaves.
func (p *Pipeline) Subscribe(owner string, fn Observer) *Subscription {
	if fn == nil {
		return &Subscription{}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	p.observers = append(p.observers, observerEntry{id: p.nextID, owner: owner, fn: fn})
	return &Subscription{p: p, id: p.nextID}
}

// Release cancels every subscription held by owner and returns how many
// were dropped.
func (p *Pipeline) Release(owner string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	kept := p.observers[:0]
	n := 0
	for _, o := range p.observers {
		if o.owner == owner {
			n++
			continue
		}
		kept = append(kept, o)
	}
	for i := len(kept); i < len(p.observers); i++ {
		p.observers[i] = observerEntry{}
	}
	p.observers = kept
	return n
}

func (p *Pipeline) Observers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.observers)
}

// SetTick stamps subsequent reports.
func (p *Pipeline) SetTick(t uint64) {
	p.mu.Lock()
	p.tick = t
	p.mu.Unlock()
}

func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// Deliver resolves one interaction against target and broadcasts the report.
func (p *Pipeline) Deliver(target Entity, env Envelope) Report {
	p.mu.Lock()
	if p.delivering {
		p.deferred = append(p.deferred, request{target: target, env: env.Clone()})
		tick := p.tick
		p.mu.Unlock()
		return Report{Tick: tick, Damage: env, Target: target, Sender: env.Sender, Queued: true}
	}
	p.delivering = true
	p.mu.Unlock()

	r := p.deliverOne(target, env)
	p.drainDeferred(true)
	return r
}

// Enqueue defers a delivery to the next Flush. Activity routines use it so
// all hits of a tick resolve after every routine has advanced.
func (p *Pipeline) Enqueue(target Entity, env Envelope) {
	p.mu.Lock()
	p.queued = append(p.queued, request{target: target, env: env.Clone()})
	p.mu.Unlock()
}

func (p *Pipeline) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queued)
}

// Flush delivers queued requests in FIFO order, at most MaxFlush of them.
// Leftovers stay queued for the next call.
func (p *Pipeline) Flush() []Report {
	p.mu.Lock()
	if p.delivering || len(p.queued) == 0 {
		p.mu.Unlock()
		return nil
	}
	limit := p.MaxFlush
	if limit <= 0 {
		limit = defaultMaxFlush
	}
	p.delivering = true
	p.mu.Unlock()

	var out []Report
	for i := 0; i < limit; i++ {
		p.mu.Lock()
		if len(p.queued) == 0 {
			p.mu.Unlock()
			break
		}
		next := p.queued[0]
		p.queued[0] = request{}
		p.queued = p.queued[1:]
		p.mu.Unlock()

		out = append(out, p.deliverOne(next.target, next.env))
		out = append(out, p.drainDeferred(false)...)
	}
	return append(out, p.drainDeferred(true)...)
}

// drainDeferred runs deferred deliveries until none are left. With release
// set, the in-flight flag is cleared under the same lock that observed the
// empty queue, so a concurrent Deliver either runs here or runs itself.
func (p *Pipeline) drainDeferred(release bool) []Report {
	var out []Report
	for {
		p.mu.Lock()
		if len(p.deferred) == 0 {
			if release {
				p.delivering = false
			}
			p.mu.Unlock()
			return out
		}
		next := p.deferred[0]
		p.deferred[0] = request{}
		p.deferred = p.deferred[1:]
		p.mu.Unlock()
		out = append(out, p.deliverOne(next.target, next.env))
	}
}

func (p *Pipeline) deliverOne(target Entity, env Envelope) Report {
	env = env.Clone()
	p.mu.Lock()
	tick := p.tick
	p.mu.Unlock()

	r := Report{Tick: tick, Damage: env, Target: target, Sender: env.Sender}
	if isNil(target) {
		p.count(func(s *Stats) { s.Invalid++ })
		return r
	}
	d, ok := target.(Damageable)
	if !ok {
		p.count(func(s *Stats) { s.Invalid++ })
		return r
	}
	if x, ok := target.(Destroyable); ok && x.Destroyed() {
		p.count(func(s *Stats) { s.Invalid++ })
		return r
	}

	if !env.IsHeal() && env.Kind != KindUnblockable && !env.IsPureEffect() {
		if b, ok := target.(Blocker); ok && b.IsBlocking() {
			if !isNil(env.Sender) && env.Stunlock > 0 {
				if s, ok := env.Sender.(Stunnable); ok {
					s.Stun(env.Stunlock)
				}
			}
			r.Blocked = true
			p.count(func(s *Stats) { s.Blocked++ })
			p.broadcast(r)
			return r
		}
	}

	var out Outcome
	if env.IsHeal() {
		heal := env.Clone()
		heal.Value = -env.Value
		out = d.Heal(heal)
	} else {
		out = d.Hit(env)
	}

	if out.Accepted && len(env.Effects) > 0 {
		if h, ok := target.(EffectHost); ok {
			if eng := h.Effects(); eng != nil {
				for _, eff := range env.Effects {
					eng.Add(eff)
				}
			}
		}
	}

	r.IsDelivered = out.Accepted
	r.IsLethal = out.Accepted && out.Lethal
	p.count(func(s *Stats) {
		switch {
		case r.IsLethal:
			s.Delivered++
			s.Lethal++
		case r.IsDelivered:
			s.Delivered++
		default:
			s.Rejected++
		}
	})
	p.broadcast(r)
	return r
}

func (p *Pipeline) count(fn func(*Stats)) {
	p.mu.Lock()
	fn(&p.stats)
	p.mu.Unlock()
}

func (p *Pipeline) broadcast(r Report) {
	p.mu.Lock()
	obs := make([]Observer, len(p.observers))
	for i, o := range p.observers {
		obs[i] = o.fn
	}
	p.mu.Unlock()
	for _, fn := range obs {
		fn(r)
	}
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Interface, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
