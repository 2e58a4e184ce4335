package rates

// Window is a fixed tick window limiter. The zero value allows everything.
type Window struct {
	Ticks uint64
	Max   int

	start uint64
	count int
}

// Allow counts one event at nowTick. When the window is full it returns false
// and the number of ticks until the window resets.
func (w *Window) Allow(nowTick uint64) (ok bool, cooldownTicks uint64) {
	if w.Ticks == 0 || w.Max <= 0 {
		return true, 0
	}
	if w.count == 0 || nowTick-w.start >= w.Ticks {
		w.start = nowTick
		w.count = 0
	}
	w.count++
	if w.count <= w.Max {
		return true, 0
	}
	return false, (w.start + w.Ticks) - nowTick
}
