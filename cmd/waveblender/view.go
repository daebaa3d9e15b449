package main

import (
	"math"
	"math/rand"
	"time"

	"github.com/InboraStudio/waveblender"
)

// peakDecay is how fast the slice view's auto-gain forgets a loud frame.
const peakDecay = 0.97

// cellRect is a region's extent in cells, used for tinting.
type cellRect struct {
	lo, hi waveblender.Cell
}

// fieldView turns the pressure field into RGBA pixels for one z plane.
type fieldView struct {
	grid    waveblender.Grid
	regions []cellRect
	pixels  []byte
	peak    float32
}

func newFieldView(g waveblender.Grid, regions []waveblender.Region) *fieldView {
	v := &fieldView{
		grid:   g,
		pixels: make([]byte, 4*g.NX*g.NY),
	}
	for _, r := range regions {
		lo, hi := r.Cells(g)
		v.regions = append(v.regions, cellRect{lo: lo, hi: hi})
	}
	return v
}

func (v *fieldView) inRegion(x, y, z int) bool {
	for _, r := range v.regions {
		if x >= r.lo.X && x <= r.hi.X && y >= r.lo.Y && y <= r.hi.Y && z >= r.lo.Z && z <= r.hi.Z {
			return true
		}
	}
	return false
}

// slice fills the pixel buffer with plane z of field. Positive pressure is
// drawn warm and negative cool, scaled by a decaying peak.
func (v *fieldView) slice(field []float32, z int) []byte {
	g := v.grid
	var peak float32
	for y := 0; y < g.NY; y++ {
		for x := 0; x < g.NX; x++ {
			if a := float32(math.Abs(float64(field[g.Index(x, y, z)]))); a > peak {
				peak = a
			}
		}
	}
	v.peak = max(peak, v.peak*peakDecay)

	scale := float32(0)
	if v.peak > 0 {
		scale = 255 / v.peak
	}
	for y := 0; y < g.NY; y++ {
		for x := 0; x < g.NX; x++ {
			p := field[g.Index(x, y, z)] * scale
			px := v.pixels[4*(y*g.NX+x):]
			var r, b byte
			if p > 0 {
				r = byte(min(p, 255))
			} else {
				b = byte(min(-p, 255))
			}
			if v.inRegion(x, y, z) {
				px[0], px[1], px[2] = max(r, 30), 40, max(b, 80)
			} else {
				px[0], px[1], px[2] = r, r/3, b
			}
			px[3] = 255
		}
	}
	return v.pixels
}

// clampListener keeps p inside the grid volume.
func clampListener(g waveblender.Grid, p waveblender.Vec3) waveblender.Vec3 {
	limit := func(v float64, n int) float64 {
		return math.Max(0, math.Min(float64(n-1)*g.Spacing, v))
	}
	return waveblender.Vec3{X: limit(p.X, g.NX), Y: limit(p.Y, g.NY), Z: limit(p.Z, g.NZ)}
}

// autoWalker steers the listener along random straight runs for a while.
type autoWalker struct {
	rng      *rand.Rand
	deadline time.Time
	dirX     float64
	dirY     float64
	frames   int
}

func newAutoWalker(seed int64, d time.Duration, now time.Time) *autoWalker {
	return &autoWalker{rng: rand.New(rand.NewSource(seed)), deadline: now.Add(d)}
}

// active reports whether the walk is still running at now.
func (w *autoWalker) active(now time.Time) bool {
	return w != nil && now.Before(w.deadline)
}

// step returns the next move of length speed from p, turning whenever the
// current heading would leave the grid.
func (w *autoWalker) step(g waveblender.Grid, p waveblender.Vec3, speed float64) (dx, dy float64) {
	for attempts := 0; attempts < 5; attempts++ {
		if w.frames <= 0 {
			angle := w.rng.Float64() * 2 * math.Pi
			w.dirX, w.dirY = math.Cos(angle), math.Sin(angle)
			w.frames = 20 + w.rng.Intn(50)
		}
		nx := p.X + w.dirX*speed
		ny := p.Y + w.dirY*speed
		if nx > g.Spacing && nx < float64(g.NX-2)*g.Spacing &&
			ny > g.Spacing && ny < float64(g.NY-2)*g.Spacing {
			w.frames--
			return w.dirX * speed, w.dirY * speed
		}
		w.frames = 0
	}
	return 0, 0
}
