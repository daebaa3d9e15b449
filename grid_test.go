package waveblender

import (
	"errors"
	"math"
	"testing"
)

// testGrid is an 8³ volume at 2 cm spacing running at half the stable step.
func testGrid() Grid {
	g := Grid{NX: 8, NY: 8, NZ: 8, Spacing: 0.02, SpeedOfSound: 343, Density: 1.2}
	g.TimeStep = g.MaxStableTimeStep() / 2
	return g
}

func TestGridValidate(t *testing.T) {
	t.Parallel()
	good := testGrid()
	tests := []struct {
		name     string
		mutate   func(*Grid)
		field    string
		unstable bool
	}{
		{name: "valid"},
		{name: "zero nx", mutate: func(g *Grid) { g.NX = 0 }, field: "grid nx"},
		{name: "negative nz", mutate: func(g *Grid) { g.NZ = -3 }, field: "grid nz"},
		{name: "zero spacing", mutate: func(g *Grid) { g.Spacing = 0 }, field: "spacing"},
		{name: "nan density", mutate: func(g *Grid) { g.Density = math.NaN() }, field: "density"},
		{name: "inf speed", mutate: func(g *Grid) { g.SpeedOfSound = math.Inf(1) }, field: "speed of sound"},
		{name: "unstable step", mutate: func(g *Grid) { g.TimeStep = g.MaxStableTimeStep() * 1.01 }, field: "time step", unstable: true},
		{name: "exactly on bound", mutate: func(g *Grid) { g.TimeStep = g.MaxStableTimeStep() }},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			g := good
			if tc.mutate != nil {
				tc.mutate(&g)
			}
			err := g.Validate()
			if tc.field == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("Validate() = %v, want *ConfigError", err)
			}
			if cfgErr.Field != tc.field {
				t.Fatalf("field = %q, want %q", cfgErr.Field, tc.field)
			}
			if got := errors.Is(err, ErrUnstable); got != tc.unstable {
				t.Fatalf("errors.Is(err, ErrUnstable) = %v, want %v", got, tc.unstable)
			}
		})
	}
}

func TestCellOfClampsAndFloors(t *testing.T) {
	t.Parallel()
	g := testGrid()
	tests := []struct {
		in   Vec3
		want Cell
	}{
		{Vec3{0, 0, 0}, Cell{0, 0, 0}},
		{Vec3{0.039, 0.041, 0.06}, Cell{1, 2, 3}},
		{Vec3{-1, -0.001, 0.02}, Cell{0, 0, 1}},
		{Vec3{10, 0.16, 0.1599}, Cell{7, 7, 7}},
		{Vec3{math.NaN(), math.Inf(1), math.Inf(-1)}, Cell{0, 7, 0}},
	}
	for _, tc := range tests {
		if got := g.CellOf(tc.in); got != tc.want {
			t.Errorf("CellOf(%+v) = %+v, want %+v", tc.in, got, tc.want)
		}
	}
}

func TestGridIndexRoundTrip(t *testing.T) {
	t.Parallel()
	g := Grid{NX: 3, NY: 4, NZ: 5}
	seen := make(map[int]bool, g.Cells())
	for z := 0; z < g.NZ; z++ {
		for y := 0; y < g.NY; y++ {
			for x := 0; x < g.NX; x++ {
				i := g.Index(x, y, z)
				if i < 0 || i >= g.Cells() || seen[i] {
					t.Fatalf("Index(%d,%d,%d) = %d is out of range or repeated", x, y, z, i)
				}
				seen[i] = true
			}
		}
	}
	if got := g.Index(1, 0, 0) - g.Index(0, 0, 0); got != 1 {
		t.Fatalf("x stride = %d, want 1", got)
	}
}
