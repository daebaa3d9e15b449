package main

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/InboraStudio/waveblender"
)

func newSceneEngine(t *testing.T) (*scene, *waveblender.Engine) {
	t.Helper()
	sc, err := loadScene(filepath.Join("testdata", "scene.toml"))
	if err != nil {
		t.Fatalf("loadScene: %v", err)
	}
	quiet := logrus.New()
	quiet.SetOutput(io.Discard)
	e, err := waveblender.Initialize(sc.Config, append(sc.Options, waveblender.WithLogger(quiet))...)
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	t.Cleanup(e.Shutdown)
	return sc, e
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "script.lua")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestScriptTriggersSource(t *testing.T) {
	t.Parallel()
	_, e := newSceneEngine(t)
	s, err := loadScript(filepath.Join("testdata", "script.lua"), e)
	if err != nil {
		t.Fatalf("loadScript: %v", err)
	}
	defer s.Close()

	amplitude := func() float64 {
		src, err := e.Source(2)
		if err != nil {
			t.Fatal(err)
		}
		return src.Amplitude
	}
	if err := s.tick(0); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if got := amplitude(); got != 0.2 {
		t.Fatalf("after first hit amplitude = %v, want 0.2", got)
	}
	if err := s.tick(0.01); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if got := amplitude(); got != 0.2 {
		t.Fatalf("between hits amplitude = %v, want 0.2", got)
	}
	if err := s.tick(0.05); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if got := amplitude(); got != 0.4 {
		t.Fatalf("after second hit amplitude = %v, want 0.4", got)
	}
	src, _ := e.Source(2)
	if src.Trigger.Mode != waveblender.TriggerManualHeld {
		t.Fatalf("trigger mode = %v", src.Trigger.Mode)
	}
}

func TestScriptSeesSourceCount(t *testing.T) {
	t.Parallel()
	_, e := newSceneEngine(t)
	path := writeScript(t, "function on_tick(t) trigger(sources) end\n")
	s, err := loadScript(path, e)
	if err != nil {
		t.Fatalf("loadScript: %v", err)
	}
	defer s.Close()
	if err := s.tick(0); err != nil {
		t.Fatalf("tick: %v", err)
	}
	src, _ := e.Source(e.SourceSlots() - 1)
	if src.Trigger.Mode != waveblender.TriggerManualHeld {
		t.Fatalf("last source mode = %v, want manual", src.Trigger.Mode)
	}
}

func TestScriptErrors(t *testing.T) {
	t.Parallel()
	_, e := newSceneEngine(t)

	if _, err := loadScript(writeScript(t, "function on_tick(t\n"), e); err == nil {
		t.Fatal("syntax error was accepted")
	}

	s, err := loadScript(writeScript(t, "function on_tick(t) trigger(99) end\n"), e)
	if err != nil {
		t.Fatalf("loadScript: %v", err)
	}
	defer s.Close()
	err = s.tick(0)
	if err == nil || !strings.Contains(err.Error(), "trigger(99)") {
		t.Fatalf("tick error = %v, want the bad index reported", err)
	}

	idle, err := loadScript(writeScript(t, "x = 1\n"), e)
	if err != nil {
		t.Fatalf("loadScript: %v", err)
	}
	defer idle.Close()
	if err := idle.tick(1); err != nil {
		t.Fatalf("script without on_tick: %v", err)
	}
}
