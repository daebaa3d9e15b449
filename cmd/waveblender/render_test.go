package main

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/InboraStudio/waveblender"
)

func TestRenderSceneLength(t *testing.T) {
	t.Parallel()
	sc, e := newSceneEngine(t)
	samples, err := renderScene(context.Background(), e, sc, nil, 0.05)
	if err != nil {
		t.Fatalf("renderScene: %v", err)
	}
	// 6 ticks at 120 Hz, 367.5 samples each at 44.1 kHz.
	if len(samples) != 2205 {
		t.Fatalf("rendered %d samples, want 2205", len(samples))
	}
	if e.Steps() != 6*256 {
		t.Fatalf("ran %d steps, want every tick capped at 256", e.Steps())
	}
	stats := waveblender.Summarize(samples)
	if stats.NonZero == 0 {
		t.Fatal("render is silent")
	}
	for i, s := range samples {
		if math.IsNaN(float64(s)) || s > 1 || s < -1 {
			t.Fatalf("sample %d = %v out of range", i, s)
		}
	}
}

func TestRenderSceneRunsScript(t *testing.T) {
	t.Parallel()
	sc, e := newSceneEngine(t)
	s, err := loadScript(filepath.Join("testdata", "script.lua"), e)
	if err != nil {
		t.Fatalf("loadScript: %v", err)
	}
	defer s.Close()
	if _, err := renderScene(context.Background(), e, sc, s, 0.05); err != nil {
		t.Fatalf("renderScene: %v", err)
	}
	// Simulated time stays below 50 ms, so only the opening hit lands.
	src, _ := e.Source(2)
	if src.Amplitude != 0.2 {
		t.Fatalf("chime amplitude = %v, want 0.2", src.Amplitude)
	}
	if n, _ := e.Resets(2); n != 1 {
		t.Fatalf("chime reset %d times, want 1", n)
	}
}

func TestRenderSceneStopsOnScriptError(t *testing.T) {
	t.Parallel()
	sc, e := newSceneEngine(t)
	s, err := loadScript(writeScript(t, "function on_tick(t) error('boom') end\n"), e)
	if err != nil {
		t.Fatalf("loadScript: %v", err)
	}
	defer s.Close()
	if _, err := renderScene(context.Background(), e, sc, s, 0.05); err == nil {
		t.Fatal("script error was swallowed")
	}
	if e.Steps() != 0 {
		t.Fatalf("engine stepped %d times after the script failed", e.Steps())
	}
}

func TestWriteWAVRoundTrip(t *testing.T) {
	t.Parallel()
	const rate = 44100
	in := make([]float32, 1000)
	for i := range in {
		in[i] = float32(0.5 * math.Sin(2*math.Pi*440*float64(i)/rate))
	}
	in[10] = 3 // clipped on write

	path := filepath.Join(t.TempDir(), "out.wav")
	if err := writeWAV(path, rate, in); err != nil {
		t.Fatalf("writeWAV: %v", err)
	}
	got, err := loadWAVSamples(rate, path)
	if err != nil {
		t.Fatalf("loadWAVSamples: %v", err)
	}
	if len(got) != len(in) {
		t.Fatalf("decoded %d samples, want %d", len(got), len(in))
	}
	for i := range in {
		want := float64(clampUnit(in[i]))
		if math.Abs(got[i]-want) > 1.0/16384 {
			t.Fatalf("sample %d = %v, want %v", i, got[i], want)
		}
	}
}
