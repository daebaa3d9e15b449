package main

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cast"

	"github.com/InboraStudio/waveblender"
)

// Scene defaults applied when a file leaves a value out.
const (
	defaultTickRate        = 60.0
	defaultSampleRate      = 48000
	defaultSpeedOfSound    = 343.0
	defaultDensity         = 1.2
	defaultCourantFraction = 0.5
)

// sceneFile mirrors the TOML layout of a scene.
type sceneFile struct {
	Seed         int64     `toml:"seed"`
	Obstacles    int       `toml:"obstacles"`
	TickRate     float64   `toml:"tick_rate"`
	SampleRate   int       `toml:"sample_rate"`
	ExtractEvery int       `toml:"extract_every"`
	MaxSteps     int       `toml:"max_steps_per_tick"`
	Listener     []float64 `toml:"listener"`

	Grid    gridSection     `toml:"grid"`
	Audio   audioSection    `toml:"audio"`
	Sources []sourceSection `toml:"source"`
	Regions []regionSection `toml:"region"`
}

type gridSection struct {
	NX              int      `toml:"nx"`
	NY              int      `toml:"ny"`
	NZ              int      `toml:"nz"`
	Spacing         float64  `toml:"spacing"`
	TimeStep        float64  `toml:"time_step"`
	CourantFraction float64  `toml:"courant_fraction"`
	SpeedOfSound    float64  `toml:"speed_of_sound"`
	Density         float64  `toml:"density"`
	WallBeta        *float64 `toml:"wall_beta"`
	SourceRadius    int      `toml:"source_radius"`
}

type audioSection struct {
	FrameSize    int      `toml:"frame_size"`
	HistorySize  int      `toml:"history_size"`
	Smoothing    *bool    `toml:"smoothing"`
	Cutoff       *float64 `toml:"cutoff"`
	Reverb       bool     `toml:"reverb"`
	ReverbAmount *float64 `toml:"reverb_amount"`
	Gain         *float64 `toml:"gain"`
	DCBlock      bool     `toml:"dc_block"`
}

type sourceSection struct {
	Position  []float64 `toml:"position"`
	Amplitude float64   `toml:"amplitude"`
	Frequency float64   `toml:"frequency"`
	Damping   float64   `toml:"damping"`
	Material  string    `toml:"material"`
	// Trigger is "continuous", "manual", "periodic", or a bare number of
	// seconds meaning periodic at that interval.
	Trigger  interface{} `toml:"trigger"`
	Interval float64     `toml:"interval"`
}

type regionSection struct {
	Min  []float64 `toml:"min"`
	Max  []float64 `toml:"max"`
	Beta float64   `toml:"beta"`
}

// scene is a loaded, engine-ready scene.
type scene struct {
	Config     waveblender.Config
	Options    []waveblender.Option
	TickRate   float64
	SampleRate int
	Listener   waveblender.Vec3
}

func loadScene(path string) (*scene, error) {
	var f sceneFile
	md, err := toml.DecodeFile(path, &f)
	if err != nil {
		return nil, fmt.Errorf("reading scene %s: %w", path, err)
	}
	if extra := md.Undecoded(); len(extra) > 0 {
		keys := make([]string, len(extra))
		for i, k := range extra {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("scene %s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	sc, err := f.build()
	if err != nil {
		return nil, fmt.Errorf("scene %s: %w", path, err)
	}
	return sc, nil
}

func (f *sceneFile) build() (*scene, error) {
	g := waveblender.Grid{
		NX:           f.Grid.NX,
		NY:           f.Grid.NY,
		NZ:           f.Grid.NZ,
		Spacing:      f.Grid.Spacing,
		TimeStep:     f.Grid.TimeStep,
		SpeedOfSound: orDefault(f.Grid.SpeedOfSound, defaultSpeedOfSound),
		Density:      orDefault(f.Grid.Density, defaultDensity),
	}
	if g.TimeStep == 0 && g.Spacing > 0 {
		g.TimeStep = orDefault(f.Grid.CourantFraction, defaultCourantFraction) * g.MaxStableTimeStep()
	}

	sc := &scene{
		TickRate:   orDefault(f.TickRate, defaultTickRate),
		SampleRate: f.SampleRate,
		Listener:   waveblender.Vec3{X: float64(g.NX) * g.Spacing / 2, Y: float64(g.NY) * g.Spacing / 2, Z: float64(g.NZ) * g.Spacing / 2},
	}
	if sc.TickRate <= 0 {
		return nil, fmt.Errorf("tick_rate %v must be positive", f.TickRate)
	}
	if sc.SampleRate == 0 {
		sc.SampleRate = defaultSampleRate
	}
	if f.Listener != nil {
		v, err := toVec3(f.Listener)
		if err != nil {
			return nil, fmt.Errorf("listener: %w", err)
		}
		sc.Listener = v
	}

	sources := make([]waveblender.Source, 0, len(f.Sources))
	for i, s := range f.Sources {
		src, err := s.build()
		if err != nil {
			return nil, fmt.Errorf("source %d: %w", i+1, err)
		}
		sources = append(sources, src)
	}
	regions := make([]waveblender.Region, 0, len(f.Regions)+f.Obstacles)
	for i, r := range f.Regions {
		lo, err := toVec3(r.Min)
		if err != nil {
			return nil, fmt.Errorf("region %d min: %w", i+1, err)
		}
		hi, err := toVec3(r.Max)
		if err != nil {
			return nil, fmt.Errorf("region %d max: %w", i+1, err)
		}
		regions = append(regions, waveblender.Region{Min: lo, Max: hi, Beta: r.Beta})
	}
	if f.Obstacles > 0 {
		rng := rand.New(rand.NewSource(f.Seed))
		regions = append(regions, waveblender.GenerateObstacles(rng, g, f.Obstacles, sc.Listener)...)
	}
	sc.Config = waveblender.Config{Grid: g, Sources: sources, Regions: regions}

	sc.Options = []waveblender.Option{
		waveblender.WithSampleRate(sc.SampleRate),
		waveblender.WithSourceRadius(f.Grid.SourceRadius),
		waveblender.WithProcessorSettings(f.Audio.settings()),
	}
	if f.Grid.WallBeta != nil {
		sc.Options = append(sc.Options, waveblender.WithWallBeta(*f.Grid.WallBeta))
	}
	if f.ExtractEvery != 0 {
		sc.Options = append(sc.Options, waveblender.WithExtractEvery(f.ExtractEvery))
	}
	if f.MaxSteps != 0 {
		sc.Options = append(sc.Options, waveblender.WithMaxStepsPerTick(f.MaxSteps))
	}
	if f.Audio.FrameSize != 0 {
		sc.Options = append(sc.Options, waveblender.WithFrameSize(f.Audio.FrameSize))
	}
	if f.Audio.HistorySize != 0 {
		sc.Options = append(sc.Options, waveblender.WithHistorySize(f.Audio.HistorySize))
	}
	return sc, nil
}

func (a audioSection) settings() waveblender.ProcessorSettings {
	s := waveblender.DefaultProcessorSettings()
	if a.Smoothing != nil {
		s.Smoothing = *a.Smoothing
	}
	if a.Cutoff != nil {
		s.Cutoff = *a.Cutoff
	}
	if a.ReverbAmount != nil {
		s.ReverbAmount = *a.ReverbAmount
	}
	if a.Gain != nil {
		s.Gain = *a.Gain
	}
	s.Reverb = a.Reverb
	s.DCBlock = a.DCBlock
	return s
}

func (s sourceSection) build() (waveblender.Source, error) {
	pos, err := toVec3(s.Position)
	if err != nil {
		return waveblender.Source{}, fmt.Errorf("position: %w", err)
	}
	material, err := waveblender.ParseMaterial(s.Material)
	if err != nil {
		return waveblender.Source{}, err
	}
	trigger, err := parseTrigger(s.Trigger, s.Interval)
	if err != nil {
		return waveblender.Source{}, err
	}
	return waveblender.Source{
		Position:  pos,
		Amplitude: s.Amplitude,
		Frequency: s.Frequency,
		Damping:   s.Damping,
		Material:  material,
		Trigger:   trigger,
	}, nil
}

// parseTrigger accepts a trigger mode name or a number of seconds, which
// selects a periodic trigger at that interval.
func parseTrigger(v interface{}, interval float64) (waveblender.TriggerPolicy, error) {
	switch v.(type) {
	case nil:
		return waveblender.ContinuousTrigger(), nil
	case int64, float64:
		seconds, err := cast.ToFloat64E(v)
		if err != nil {
			return waveblender.TriggerPolicy{}, err
		}
		return waveblender.PeriodicTrigger(seconds), nil
	}
	name, err := cast.ToStringE(v)
	if err != nil {
		return waveblender.TriggerPolicy{}, fmt.Errorf("trigger: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "continuous":
		return waveblender.ContinuousTrigger(), nil
	case "manual":
		return waveblender.ManualTrigger(), nil
	case "periodic":
		if interval <= 0 {
			return waveblender.TriggerPolicy{}, fmt.Errorf("periodic trigger needs a positive interval, got %v", interval)
		}
		return waveblender.PeriodicTrigger(interval), nil
	default:
		return waveblender.TriggerPolicy{}, fmt.Errorf("unknown trigger %q", name)
	}
}

func toVec3(v []float64) (waveblender.Vec3, error) {
	if len(v) != 3 {
		return waveblender.Vec3{}, fmt.Errorf("want 3 coordinates, got %d", len(v))
	}
	return waveblender.Vec3{X: v[0], Y: v[1], Z: v[2]}, nil
}

func orDefault(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}
