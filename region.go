package waveblender

import (
	"fmt"
	"math"
	"math/rand"
)

// Region is an axis-aligned box of cells sharing one beta coefficient.
// Later regions override earlier ones where they overlap.
type Region struct {
	Min, Max Vec3
	Beta     float64
}

// cellBox is a Region resolved to inclusive cell bounds.
type cellBox struct {
	lo, hi Cell
	beta   float32
}

func (r Region) validate() error {
	if math.IsNaN(r.Beta) || r.Beta < 0 || r.Beta > 1 {
		return errOutOfUnitRange
	}
	for _, v := range []float64{r.Min.X, r.Min.Y, r.Min.Z, r.Max.X, r.Max.Y, r.Max.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errNotFinite
		}
	}
	return nil
}

// Cells returns the inclusive cell bounds of r on g. Min and Max may be given
// in either order on each axis.
func (r Region) Cells(g Grid) (lo, hi Cell) {
	lo, hi = g.CellOf(r.Min), g.CellOf(r.Max)
	if lo.X > hi.X {
		lo.X, hi.X = hi.X, lo.X
	}
	if lo.Y > hi.Y {
		lo.Y, hi.Y = hi.Y, lo.Y
	}
	if lo.Z > hi.Z {
		lo.Z, hi.Z = hi.Z, lo.Z
	}
	return lo, hi
}

func resolveRegions(g Grid, regions []Region) ([]cellBox, error) {
	boxes := make([]cellBox, 0, len(regions))
	for i, r := range regions {
		if err := r.validate(); err != nil {
			return nil, &ConfigError{Field: fmt.Sprintf("region %d", i), Err: err}
		}
		lo, hi := r.Cells(g)
		boxes = append(boxes, cellBox{lo: lo, hi: hi, beta: float32(r.Beta)})
	}
	return boxes, nil
}

func (b cellBox) contains(x, y, z int) bool {
	return x >= b.lo.X && x <= b.hi.X &&
		y >= b.lo.Y && y <= b.hi.Y &&
		z >= b.lo.Z && z <= b.hi.Z
}

// Obstacle generation tunables.
const (
	obstacleMinCells      = 2
	obstacleMaxCells      = 6
	obstacleExclusionCell = 2
	obstacleBeta          = 0.0
)

// GenerateObstacles procedurally scatters n absorbing boxes inside the grid,
// keeping clear of the cells around keepClear. The same rng seed always
// yields the same layout.
func GenerateObstacles(rng *rand.Rand, g Grid, n int, keepClear Vec3) []Region {
	if n <= 0 || g.NX < 4 || g.NY < 4 || g.NZ < 4 {
		return nil
	}
	clearCell := g.CellOf(keepClear)
	regions := make([]Region, 0, n)
	for attempts := 0; len(regions) < n && attempts < n*8; attempts++ {
		size := [3]int{}
		for a := range size {
			size[a] = obstacleMinCells + rng.Intn(obstacleMaxCells-obstacleMinCells+1)
		}
		lo := Cell{
			X: 1 + rng.Intn(max(1, g.NX-2-size[0])),
			Y: 1 + rng.Intn(max(1, g.NY-2-size[1])),
			Z: 1 + rng.Intn(max(1, g.NZ-2-size[2])),
		}
		hi := Cell{
			X: min(g.NX-2, lo.X+size[0]-1),
			Y: min(g.NY-2, lo.Y+size[1]-1),
			Z: min(g.NZ-2, lo.Z+size[2]-1),
		}
		box := cellBox{lo: Cell{lo.X - obstacleExclusionCell, lo.Y - obstacleExclusionCell, lo.Z - obstacleExclusionCell},
			hi: Cell{hi.X + obstacleExclusionCell, hi.Y + obstacleExclusionCell, hi.Z + obstacleExclusionCell}}
		if box.contains(clearCell.X, clearCell.Y, clearCell.Z) {
			continue
		}
		half := g.Spacing / 2
		minW, maxW := g.WorldOf(lo), g.WorldOf(hi)
		regions = append(regions, Region{
			Min:  Vec3{minW.X + half, minW.Y + half, minW.Z + half},
			Max:  Vec3{maxW.X + half, maxW.Y + half, maxW.Z + half},
			Beta: obstacleBeta,
		})
	}
	return regions
}
