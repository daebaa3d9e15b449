package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/InboraStudio/waveblender"
)

func TestLoadScene(t *testing.T) {
	t.Parallel()
	sc, err := loadScene(filepath.Join("testdata", "scene.toml"))
	if err != nil {
		t.Fatalf("loadScene: %v", err)
	}
	g := sc.Config.Grid
	if g.NX != 32 || g.NY != 32 || g.NZ != 24 {
		t.Fatalf("grid = %s", g)
	}
	if err := g.Validate(); err != nil {
		t.Fatalf("grid does not validate: %v", err)
	}
	if want := 0.5 * g.MaxStableTimeStep(); g.TimeStep != want {
		t.Fatalf("time step = %v, want half the stable step %v", g.TimeStep, want)
	}
	if g.SpeedOfSound != defaultSpeedOfSound || g.Density != defaultDensity {
		t.Fatalf("physical defaults not applied: %+v", g)
	}
	if sc.TickRate != 120 || sc.SampleRate != 44100 {
		t.Fatalf("tick rate %v sample rate %d", sc.TickRate, sc.SampleRate)
	}
	if sc.Listener != (waveblender.Vec3{X: 0.30, Y: 0.30, Z: 0.20}) {
		t.Fatalf("listener = %+v", sc.Listener)
	}

	if len(sc.Config.Sources) != 3 {
		t.Fatalf("got %d sources, want 3", len(sc.Config.Sources))
	}
	steel, drip, chime := sc.Config.Sources[0], sc.Config.Sources[1], sc.Config.Sources[2]
	if steel.Material != waveblender.Steel || steel.Trigger.Mode != waveblender.TriggerContinuous {
		t.Errorf("source 1 = %+v", steel)
	}
	if drip.Material != waveblender.Water || drip.Trigger.Mode != waveblender.TriggerPeriodic || drip.Trigger.Interval != 0.25 {
		t.Errorf("source 2 = %+v", drip)
	}
	if chime.Material != waveblender.Wood || chime.Trigger.Mode != waveblender.TriggerManualHeld {
		t.Errorf("source 3 = %+v", chime)
	}

	// One explicit region plus the generated obstacles.
	if n := len(sc.Config.Regions); n < 1 || n > 3 {
		t.Fatalf("got %d regions, want the explicit one plus up to 2 obstacles", n)
	}
	if r := sc.Config.Regions[0]; r.Beta != 0.3 {
		t.Fatalf("region 1 beta = %v", r.Beta)
	}
}

func TestSceneObstaclesAreSeeded(t *testing.T) {
	t.Parallel()
	a, err := loadScene(filepath.Join("testdata", "scene.toml"))
	if err != nil {
		t.Fatalf("loadScene: %v", err)
	}
	b, err := loadScene(filepath.Join("testdata", "scene.toml"))
	if err != nil {
		t.Fatalf("loadScene: %v", err)
	}
	if len(a.Config.Regions) != len(b.Config.Regions) {
		t.Fatalf("region counts differ: %d vs %d", len(a.Config.Regions), len(b.Config.Regions))
	}
	for i := range a.Config.Regions {
		if a.Config.Regions[i] != b.Config.Regions[i] {
			t.Fatalf("region %d differs between loads", i)
		}
	}
}

func TestSceneInitializesEngine(t *testing.T) {
	t.Parallel()
	sc, err := loadScene(filepath.Join("testdata", "scene.toml"))
	if err != nil {
		t.Fatalf("loadScene: %v", err)
	}
	e, err := waveblender.Initialize(sc.Config, append(sc.Options, waveblender.WithLogger(log))...)
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer e.Shutdown()
	if e.SampleRate() != 44100 || e.FrameSize() != 256 {
		t.Fatalf("sample rate %d frame size %d", e.SampleRate(), e.FrameSize())
	}
	got := e.ProcessorSettings()
	if !got.Reverb || got.ReverbAmount != 0.2 || got.Gain != 2 || got.Cutoff != 0.4 {
		t.Fatalf("processor settings = %+v", got)
	}
}

func TestLoadSceneErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		body string
		want string
	}{
		{"unknown key", "[grid]\nnx = 4\ncolour = 3\n", "unknown keys"},
		{"short position", "[grid]\nnx = 4\n[[source]]\nposition = [1.0, 2.0]\n", "position"},
		{"bad material", "[[source]]\nposition = [0.0, 0.0, 0.0]\nmaterial = \"glass\"\n", "glass"},
		{"bad trigger", "[[source]]\nposition = [0.0, 0.0, 0.0]\ntrigger = \"sometimes\"\n", "sometimes"},
		{"periodic without interval", "[[source]]\nposition = [0.0, 0.0, 0.0]\ntrigger = \"periodic\"\n", "interval"},
		{"negative tick rate", "tick_rate = -1.0\n", "tick_rate"},
		{"malformed", "[grid\n", "reading scene"},
	}
	dir := t.TempDir()
	for i, tc := range tests {
		path := filepath.Join(dir, strings.ReplaceAll(tc.name, " ", "_")+".toml")
		if err := os.WriteFile(path, []byte(tc.body), 0o644); err != nil {
			t.Fatalf("case %d: %v", i, err)
		}
		_, err := loadScene(path)
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Errorf("%s: loadScene error = %v, want it to mention %q", tc.name, err, tc.want)
		}
	}
}

func TestParseTrigger(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in       interface{}
		interval float64
		mode     waveblender.TriggerMode
		period   float64
	}{
		{nil, 0, waveblender.TriggerContinuous, 0},
		{"Continuous", 0, waveblender.TriggerContinuous, 0},
		{"manual", 0, waveblender.TriggerManualHeld, 0},
		{"periodic", 0.5, waveblender.TriggerPeriodic, 0.5},
		{int64(2), 0, waveblender.TriggerPeriodic, 2},
		{0.125, 0, waveblender.TriggerPeriodic, 0.125},
	}
	for _, tc := range tests {
		got, err := parseTrigger(tc.in, tc.interval)
		if err != nil {
			t.Errorf("parseTrigger(%v) = %v", tc.in, err)
			continue
		}
		if got.Mode != tc.mode || got.Interval != tc.period {
			t.Errorf("parseTrigger(%v) = %+v, want mode %v interval %v", tc.in, got, tc.mode, tc.period)
		}
	}
}
