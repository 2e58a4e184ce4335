package spatial

import (
	"math"
	"sort"

	"skirmish.gg/internal/sim/world/logic/mathx"
)

// Candidate is one entry returned by a proximity query. Ref is the caller's
// handle for the entity and is never inspected by the index.
type Candidate struct {
	ID     string
	Pos    mathx.Vec2
	Radius float64
	Ref    any
}

type cellKey struct{ X, Y int }

// Index is a uniform grid rebuilt from scratch every tick. Queries return
// candidates whose body overlaps the query disc, ordered by distance and then
// id so callers see a deterministic order.
type Index struct {
	cell  float64
	items []Candidate
	cells map[cellKey][]int
}

func NewIndex(cellSize float64) *Index {
	if cellSize <= 0 {
		cellSize = 4
	}
	return &Index{cell: cellSize, cells: map[cellKey][]int{}}
}

func (ix *Index) Reset() {
	ix.items = ix.items[:0]
	clear(ix.cells)
}

func (ix *Index) Len() int { return len(ix.items) }

func (ix *Index) Insert(c Candidate) {
	i := len(ix.items)
	ix.items = append(ix.items, c)
	k := ix.key(c.Pos)
	ix.cells[k] = append(ix.cells[k], i)
}

func (ix *Index) key(p mathx.Vec2) cellKey {
	return cellKey{X: int(math.Floor(p.X / ix.cell)), Y: int(math.Floor(p.Y / ix.cell))}
}

// FindCandidates returns every entry whose body disc intersects the disc of
// radius around origin.
func (ix *Index) FindCandidates(origin mathx.Vec2, radius float64) []Candidate {
	if radius < 0 || len(ix.items) == 0 {
		return nil
	}
	reach := radius + ix.maxRadius()
	lo := ix.key(mathx.Vec2{X: origin.X - reach, Y: origin.Y - reach})
	hi := ix.key(mathx.Vec2{X: origin.X + reach, Y: origin.Y + reach})

	var out []Candidate
	for x := lo.X; x <= hi.X; x++ {
		for y := lo.Y; y <= hi.Y; y++ {
			for _, i := range ix.cells[cellKey{X: x, Y: y}] {
				c := ix.items[i]
				if c.Pos.Dist(origin) <= radius+c.Radius {
					out = append(out, c)
				}
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		di, dj := out[i].Pos.Dist(origin), out[j].Pos.Dist(origin)
		if di != dj {
			return di < dj
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (ix *Index) maxRadius() float64 {
	m := 0.0
	for _, c := range ix.items {
		if c.Radius > m {
			m = c.Radius
		}
	}
	return m
}
