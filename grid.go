package waveblender

import (
	"fmt"
	"math"
)

// Vec3 is a point or direction in world coordinates (meters).
type Vec3 struct {
	X, Y, Z float64
}

// Cell is an integer coordinate on the simulation grid.
type Cell struct {
	X, Y, Z int
}

// Grid describes the discretized volume. It is immutable once an engine has
// been initialized with it.
type Grid struct {
	NX, NY, NZ   int
	Spacing      float64 // Δx in meters
	TimeStep     float64 // Δt in seconds
	SpeedOfSound float64 // c in m/s
	Density      float64 // ρ in kg/m³
}

// CourantNumber returns c·Δt/Δx.
func (g Grid) CourantNumber() float64 {
	return g.SpeedOfSound * g.TimeStep / g.Spacing
}

// MaxStableTimeStep returns the largest Δt satisfying the 3D Courant bound
// for the grid's spacing and wave speed.
func (g Grid) MaxStableTimeStep() float64 {
	return g.Spacing / (g.SpeedOfSound * math.Sqrt(3))
}

// Validate checks the grid dimensions, physical constants, and the stability
// bound. Errors are *ConfigError values.
func (g Grid) Validate() error {
	dims := []struct {
		name string
		v    int
	}{{"grid nx", g.NX}, {"grid ny", g.NY}, {"grid nz", g.NZ}}
	for _, d := range dims {
		if d.v <= 0 {
			return &ConfigError{Field: d.name, Err: errNotPositive}
		}
	}
	params := []struct {
		name string
		v    float64
	}{
		{"spacing", g.Spacing},
		{"time step", g.TimeStep},
		{"speed of sound", g.SpeedOfSound},
		{"density", g.Density},
	}
	for _, p := range params {
		if math.IsNaN(p.v) || math.IsInf(p.v, 0) {
			return &ConfigError{Field: p.name, Err: errNotFinite}
		}
		if p.v <= 0 {
			return &ConfigError{Field: p.name, Err: errNotPositive}
		}
	}
	if g.CourantNumber() > (1/math.Sqrt(3))*(1+courantTolerance) {
		return &ConfigError{
			Field: "time step",
			Err:   fmt.Errorf("courant number %.6f: %w", g.CourantNumber(), ErrUnstable),
		}
	}
	return nil
}

// Cells returns the number of cells in the grid.
func (g Grid) Cells() int {
	return g.NX * g.NY * g.NZ
}

// Index returns the flat array index of a cell.
func (g Grid) Index(x, y, z int) int {
	return x + g.NX*(y+g.NY*z)
}

// Center returns the cell in the middle of the grid.
func (g Grid) Center() Cell {
	return Cell{X: g.NX / 2, Y: g.NY / 2, Z: g.NZ / 2}
}

// CellOf maps a world position onto the grid by dividing by the spacing and
// clamping each axis to the grid extent.
func (g Grid) CellOf(p Vec3) Cell {
	return Cell{
		X: clampCoord(worldToCoord(p.X, g.Spacing), 0, g.NX-1),
		Y: clampCoord(worldToCoord(p.Y, g.Spacing), 0, g.NY-1),
		Z: clampCoord(worldToCoord(p.Z, g.Spacing), 0, g.NZ-1),
	}
}

// WorldOf returns the world position of a cell's lower corner.
func (g Grid) WorldOf(c Cell) Vec3 {
	return Vec3{
		X: float64(c.X) * g.Spacing,
		Y: float64(c.Y) * g.Spacing,
		Z: float64(c.Z) * g.Spacing,
	}
}

// Contains reports whether c lies inside the grid.
func (g Grid) Contains(c Cell) bool {
	return c.X >= 0 && c.X < g.NX && c.Y >= 0 && c.Y < g.NY && c.Z >= 0 && c.Z < g.NZ
}

// String renders the grid dimensions for logs.
func (g Grid) String() string {
	return fmt.Sprintf("%dx%dx%d@%gm", g.NX, g.NY, g.NZ, g.Spacing)
}

func worldToCoord(v, spacing float64) int {
	c := math.Floor(v/spacing + cellEpsilon)
	switch {
	case math.IsNaN(c):
		return 0
	case c > math.MaxInt32:
		return math.MaxInt32
	case c < math.MinInt32:
		return math.MinInt32
	}
	return int(c)
}

// clampCoord constrains v to lie within the inclusive [min, max] range.
func clampCoord(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
