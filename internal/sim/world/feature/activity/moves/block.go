package moves

import "skirmish.gg/internal/sim/world/feature/activity"

type BlockConfig struct {
	// MoveScale slows walking while the guard is up.
	MoveScale float64
}

// Block holds a guard until stopped. The character blocks while its slot plays.
type Block struct {
	cfg   BlockConfig
	held  float64
	raise uint64
}

func NewBlock(cfg BlockConfig) *Block { return &Block{cfg: cfg} }

func (b *Block) MoveScale() float64 { return b.cfg.MoveScale }

// Held is how long the current guard has been up.
func (b *Block) Held() float64 { return b.held }

func (b *Block) Raised() uint64 { return b.raise }

func (b *Block) Ready() bool { return true }

func (b *Block) Begin() {
	b.raise++
	b.held = 0
}

func (b *Block) Routine() []activity.Phase {
	return []activity.Phase{{
		Name: "guard",
		Step: func(dt float64) { b.held += dt },
	}}
}

func (b *Block) Finish(bool) { b.held = 0 }

func (b *Block) Update(float64) {}
