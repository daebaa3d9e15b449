package waveblender

import (
	"errors"
	"math"
	"testing"
)

func testConfig() Config {
	g := testGrid()
	return Config{
		Grid: g,
		Sources: []Source{
			NewToneSource(Vec3{0.05, 0.05, 0.05}, 1, 1500),
		},
	}
}

func newTestEngine(t *testing.T, cfg Config, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{WithLogger(quietLogger()), WithWorkers(2)}, opts...)
	e, err := Initialize(cfg, opts...)
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	t.Cleanup(e.Shutdown)
	return e
}

func runField(t *testing.T, cfg Config, steps int) []float32 {
	t.Helper()
	e := newTestEngine(t, cfg)
	listener := Vec3{0.11, 0.11, 0.11}
	if err := e.Step(steps, listener); err != nil {
		t.Fatalf("Step: %v", err)
	}
	field, err := e.PressureField()
	if err != nil {
		t.Fatalf("PressureField: %v", err)
	}
	e.Shutdown()
	return field
}

func TestEngineEndToEnd(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	e := newTestEngine(t, cfg, WithFrameSize(64))
	listener := Vec3{0.11, 0.11, 0.11}
	if err := e.Step(100, listener); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if got := e.Steps(); got != 100 {
		t.Fatalf("Steps() = %d, want 100", got)
	}
	if got, want := e.SimTime(), 100*cfg.Grid.TimeStep; math.Abs(got-want) > 1e-15 {
		t.Fatalf("SimTime() = %v, want %v", got, want)
	}
	st, err := e.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.NonZero == 0 || st.Peak == 0 {
		t.Fatalf("field is silent after 100 steps: %+v", st)
	}
	if math.IsNaN(st.RMS) || math.IsInf(st.Peak, 0) {
		t.Fatalf("field is not finite: %+v", st)
	}
	p, err := e.Pressure(cfg.Grid.CellOf(listener))
	if err != nil {
		t.Fatalf("Pressure: %v", err)
	}
	if p == 0 || math.IsNaN(float64(p)) || math.IsInf(float64(p), 0) {
		t.Fatalf("pressure at the listener cell = %v, want nonzero and finite", p)
	}

	if err := e.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	xs := e.ExtractStats()
	if xs.Issued == 0 || xs.Completed == 0 || xs.Failed != 0 {
		t.Fatalf("ExtractStats = %+v, want completed extractions", xs)
	}
	buf := make([]float32, 256)
	e.FillAudioBuffer(buf)
	var heard bool
	for _, v := range buf {
		if v < -1 || v > 1 || math.IsNaN(float64(v)) {
			t.Fatalf("output sample %v outside [-1, 1]", v)
		}
		heard = heard || v != 0
	}
	if !heard {
		t.Fatal("audio callback produced silence after 100 steps")
	}
}

func TestEngineDeterministicAcrossRestarts(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Regions = []Region{{Min: Vec3{0.08, 0.02, 0.02}, Max: Vec3{0.1, 0.06, 0.06}, Beta: 0.5}}
	a := runField(t, cfg, 100)
	b := runField(t, cfg, 100)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("cell %d differs between runs: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestEngineTickAccumulates(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	e := newTestEngine(t, cfg, WithMaxStepsPerTick(10))
	dt := cfg.Grid.TimeStep
	if err := e.Tick(2.5*dt, Vec3{}); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if got := e.Steps(); got != 2 {
		t.Fatalf("Steps after 2.5Δt = %d, want 2", got)
	}
	if err := e.Tick(0.5*dt, Vec3{}); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if got := e.Steps(); got != 3 {
		t.Fatalf("Steps after carrying remainder = %d, want 3", got)
	}
	if err := e.Tick(100*dt, Vec3{}); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if got := e.Steps(); got != 13 {
		t.Fatalf("Steps after capped tick = %d, want 13", got)
	}
	if err := e.Tick(math.NaN(), Vec3{}); err == nil {
		t.Fatal("Tick(NaN) succeeded")
	}
}

func TestEngineTickSurvivesHugeDelta(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	e := newTestEngine(t, cfg, WithMaxStepsPerTick(8))
	dt := cfg.Grid.TimeStep
	if err := e.Tick(1e15, Vec3{}); err != nil {
		t.Fatalf("Tick(1e15): %v", err)
	}
	if got := e.Steps(); got != 8 {
		t.Fatalf("Steps after huge tick = %d, want the cap of 8", got)
	}
	for i := 0; i < 3; i++ {
		if err := e.Tick(4*dt, Vec3{}); err != nil {
			t.Fatalf("Tick: %v", err)
		}
	}
	if got := e.Steps(); got != 8+12 {
		t.Fatalf("Steps after normal ticks = %d, want 20", got)
	}
}

func TestEngineTriggerAndUpsert(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, testConfig(), WithSourceCapacity(4))
	if got := e.SourceSlots(); got != 4 {
		t.Fatalf("SourceSlots = %d, want 4", got)
	}
	if err := e.TriggerWithAmplitude(0, 0.3); err != nil {
		t.Fatalf("TriggerWithAmplitude: %v", err)
	}
	if err := e.Step(1, Vec3{}); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if n, _ := e.Resets(0); n != 1 {
		t.Fatalf("Resets(0) = %d, want 1", n)
	}
	if src, _ := e.Source(0); src.Amplitude != 0.3 || src.Trigger.Mode != TriggerManualHeld {
		t.Fatalf("source 0 = %+v, want manual at amplitude 0.3", src)
	}

	var idxErr *IndexError
	if err := e.Trigger(4); !errors.As(err, &idxErr) {
		t.Fatalf("Trigger(4) = %v, want *IndexError", err)
	}
	if err := e.Upsert(-1, NewToneSource(Vec3{}, 1, 1)); !errors.As(err, &idxErr) {
		t.Fatalf("Upsert(-1) = %v, want *IndexError", err)
	}
	if err := e.Upsert(3, NewToneSource(Vec3{0.1, 0.1, 0.1}, 0.5, 700)); err != nil {
		t.Fatalf("Upsert(3): %v", err)
	}
	if src, _ := e.Source(3); src.Frequency != 700 {
		t.Fatalf("Source(3).Frequency = %v, want 700", src.Frequency)
	}
}

func TestEngineShutdown(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, testConfig())
	if err := e.Step(10, Vec3{}); err != nil {
		t.Fatalf("Step: %v", err)
	}
	e.Shutdown()
	e.Shutdown()

	if err := e.Tick(1, Vec3{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("Tick after Shutdown = %v, want ErrClosed", err)
	}
	if err := e.Step(1, Vec3{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("Step after Shutdown = %v, want ErrClosed", err)
	}
	if err := e.Trigger(0); !errors.Is(err, ErrClosed) {
		t.Fatalf("Trigger after Shutdown = %v, want ErrClosed", err)
	}
	if _, err := e.PressureField(); !errors.Is(err, ErrClosed) {
		t.Fatalf("PressureField after Shutdown = %v, want ErrClosed", err)
	}
	buf := []float32{1, 1, 1}
	e.FillAudioBuffer(buf)
	for _, v := range buf {
		if v != 0 {
			t.Fatalf("FillAudioBuffer after Shutdown wrote %v, want silence", buf)
		}
	}
}

func TestInitializeRejectsInvalidConfig(t *testing.T) {
	t.Parallel()
	unstable := testConfig()
	unstable.Grid.TimeStep *= 4
	badRegion := testConfig()
	badRegion.Regions = []Region{{Beta: 2}}
	badSource := testConfig()
	badSource.Sources[0].Frequency = -1

	tests := []struct {
		name string
		cfg  Config
		opts []Option
	}{
		{name: "unstable grid", cfg: unstable},
		{name: "region beta", cfg: badRegion},
		{name: "source frequency", cfg: badSource},
		{name: "frame size", cfg: testConfig(), opts: []Option{WithFrameSize(0)}},
		{name: "wall beta", cfg: testConfig(), opts: []Option{WithWallBeta(1.5)}},
		{name: "unknown backend", cfg: testConfig(), opts: []Option{WithBackend("quantum")}},
		{name: "processor gain", cfg: testConfig(), opts: []Option{WithProcessorSettings(ProcessorSettings{Gain: -1})}},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			e, err := Initialize(tc.cfg, append(tc.opts, WithLogger(quietLogger()))...)
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("Initialize = %v, want *ConfigError", err)
			}
			if e != nil {
				t.Fatal("Initialize returned an engine alongside an error")
			}
		})
	}
}

// failingDevice wraps the CPU device and fails every audio readback.
type failingDevice struct {
	*cpuDevice
}

func (d failingDevice) ReadAudio(dst []float32, done func(error)) error {
	done(errors.New("bus error"))
	return nil
}

func TestEngineSurvivesReadbackFailures(t *testing.T) {
	t.Parallel()
	o := defaultOptions()
	o.logger = quietLogger()
	open := func(g Grid, boxes []cellBox, _ int, o *options) (computeDevice, error) {
		d, err := newCPUDevice(g, boxes, o.workers, o.frameSize)
		if err != nil {
			return nil, err
		}
		return failingDevice{d}, nil
	}
	e, err := initialize(testConfig(), o, open)
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	defer e.Shutdown()
	if err := e.Step(50, Vec3{}); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if err := e.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	st := e.ExtractStats()
	if st.Completed != 0 || st.Failed == 0 {
		t.Fatalf("ExtractStats = %+v, want only failures", st)
	}
	buf := make([]float32, 32)
	e.FillAudioBuffer(buf)
	for _, v := range buf {
		if v != 0 {
			t.Fatalf("output %v, want silence when no frame was ever extracted", buf)
		}
	}
}

func TestOpenCLBackendUnavailableWithoutTag(t *testing.T) {
	t.Parallel()
	_, err := Initialize(testConfig(), WithBackend(BackendOpenCL), WithLogger(quietLogger()))
	if err == nil {
		t.Skip("OpenCL device available")
	}
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Field != "backend" {
		t.Fatalf("Initialize(opencl) = %v, want a backend *ConfigError", err)
	}
	if !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("Initialize(opencl) = %v, want it to wrap ErrBackendUnavailable", err)
	}
}
