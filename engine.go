package waveblender

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Config is the in-memory description of a scene.
type Config struct {
	Grid    Grid
	Sources []Source
	Regions []Region
}

// deviceFactory opens the compute device for a validated configuration.
type deviceFactory func(g Grid, boxes []cellBox, sourceSlots int, o *options) (computeDevice, error)

// openDevice selects the compute backend named in the options.
func openDevice(g Grid, boxes []cellBox, sourceSlots int, o *options) (computeDevice, error) {
	switch o.backend {
	case BackendOpenCL:
		return newOpenCLDevice(g, boxes, sourceSlots, o.frameSize)
	default:
		return newCPUDevice(g, boxes, o.workers, o.frameSize)
	}
}

// Engine is the handle returned by Initialize. Tick, Step, Shutdown and the
// field observers belong to the simulation loop; Trigger and Upsert may be
// called from any goroutine; FillAudioBuffer belongs to the audio callback.
type Engine struct {
	mu     sync.Mutex
	grid   Grid
	opts   options
	logger logrus.FieldLogger

	device   computeDevice
	sources  *sourceTable
	extract  *extractor
	exchange *frameExchange
	proc     *Processor
	params   stepParams

	steps       uint64
	accumulator float64
	scratch     []float32

	closed   atomic.Bool
	shutdown sync.Once
}

// Initialize validates the configuration, allocates the field on the selected
// compute device, and returns a ready engine. Invalid configurations yield a
// *ConfigError and device failures an *AllocationError; nothing stays
// allocated when an error is returned.
func Initialize(cfg Config, opts ...Option) (*Engine, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return initialize(cfg, o, openDevice)
}

func initialize(cfg Config, o options, open deviceFactory) (e *Engine, err error) {
	if err := o.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Grid.Validate(); err != nil {
		return nil, err
	}
	boxes, err := resolveRegions(cfg.Grid, cfg.Regions)
	if err != nil {
		return nil, err
	}
	sources, err := newSourceTable(o.sourceCapacity, cfg.Sources)
	if err != nil {
		return nil, err
	}

	dev, err := open(cfg.Grid, boxes, sources.len(), &o)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			dev.Close()
		}
	}()

	exchange := newFrameExchange(o.frameSize)
	e = &Engine{
		grid:     cfg.Grid,
		opts:     o,
		logger:   o.logger,
		device:   dev,
		sources:  sources,
		exchange: exchange,
		extract:  newExtractor(dev, exchange, o.extractEvery, o.logger),
		proc:     newProcessor(exchange, o.frameSize, o.historySize, o.processor),
		params:   newStepParams(cfg.Grid, &o, sources.len()),
	}
	e.logger.WithFields(logrus.Fields{
		"device":  dev.Name(),
		"grid":    cfg.Grid.String(),
		"courant": fmt.Sprintf("%.4f", cfg.Grid.CourantNumber()),
		"sources": len(cfg.Sources),
		"slots":   sources.len(),
		"regions": len(boxes),
	}).Info("Acoustic engine initialized")
	return e, nil
}

// Tick advances simulation time by dt seconds, running as many whole steps as
// fit (at most the configured per-tick cap) with the listener at the given
// world position. Leftover time carries into the next tick; time beyond the
// cap is dropped.
func (e *Engine) Tick(dt float64, listener Vec3) error {
	if math.IsNaN(dt) || math.IsInf(dt, 0) {
		return fmt.Errorf("tick delta %v: %w", dt, errNotFinite)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed.Load() {
		return ErrClosed
	}
	if dt > 0 {
		e.accumulator += dt
	}
	// Compare in float64 so huge deltas cannot overflow the conversion.
	var steps int
	if wanted := math.Floor(e.accumulator/e.grid.TimeStep + cellEpsilon); wanted > float64(e.opts.maxStepsPerTick) {
		e.logger.WithFields(logrus.Fields{
			"wanted": wanted,
			"ran":    e.opts.maxStepsPerTick,
		}).Debug("Dropping simulation time beyond the per-tick step cap")
		steps = e.opts.maxStepsPerTick
		e.accumulator = 0
	} else {
		steps = int(wanted)
		e.accumulator = math.Max(0, e.accumulator-float64(steps)*e.grid.TimeStep)
	}
	return e.runSteps(steps, e.grid.CellOf(listener))
}

// Step runs exactly n simulation steps with the listener at the given world
// position, bypassing the tick accumulator.
func (e *Engine) Step(n int, listener Vec3) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed.Load() {
		return ErrClosed
	}
	return e.runSteps(n, e.grid.CellOf(listener))
}

func (e *Engine) runSteps(n int, listener Cell) error {
	p := e.params
	p.listener = listener
	for i := 0; i < n; i++ {
		now := float64(e.steps) * e.grid.TimeStep
		positions, props, _ := e.sources.rebuild(e.grid, now)
		if err := e.device.UploadSources(positions, props); err != nil {
			return fmt.Errorf("uploading sources: %w", err)
		}
		if err := e.device.Step(p); err != nil {
			return fmt.Errorf("stepping field: %w", err)
		}
		e.steps++
		e.extract.afterStep()
	}
	return nil
}

// Trigger restarts source i from phase zero on the next step and disables its
// automatic retriggering.
func (e *Engine) Trigger(i int) error {
	if e.closed.Load() {
		return ErrClosed
	}
	return e.sources.trigger(i, nil)
}

// TriggerWithAmplitude behaves like Trigger and also sets the source's
// amplitude to amplitude.
func (e *Engine) TriggerWithAmplitude(i int, amplitude float64) error {
	if e.closed.Load() {
		return ErrClosed
	}
	return e.sources.trigger(i, &amplitude)
}

// Upsert replaces the source in slot i.
func (e *Engine) Upsert(i int, s Source) error {
	if e.closed.Load() {
		return ErrClosed
	}
	return e.sources.upsert(i, s)
}

// Source returns a snapshot of the source in slot i.
func (e *Engine) Source(i int) (Source, error) {
	return e.sources.source(i)
}

// Resets returns how many times source i has restarted its phase,
// automatically or through Trigger.
func (e *Engine) Resets(i int) (int, error) {
	return e.sources.resets(i)
}

// SourceSlots returns the fixed capacity of the source table.
func (e *Engine) SourceSlots() int {
	return e.sources.len()
}

// FillAudioBuffer is the real-time audio callback entry point. It never
// blocks; before the first extraction and after Shutdown it writes silence.
func (e *Engine) FillAudioBuffer(buf []float32) {
	if e.closed.Load() {
		clear(buf)
		return
	}
	e.proc.Process(buf)
}

// SetProcessorSettings swaps the post-processing settings used by the next
// FillAudioBuffer call.
func (e *Engine) SetProcessorSettings(s ProcessorSettings) error {
	return e.proc.SetSettings(s)
}

// ProcessorSettings returns the active post-processing settings.
func (e *Engine) ProcessorSettings() ProcessorSettings {
	return e.proc.Settings()
}

// Pressure reads back the pressure at cell c after all queued steps finish.
func (e *Engine) Pressure(c Cell) (float32, error) {
	if !e.grid.Contains(c) {
		return 0, fmt.Errorf("cell %+v outside grid %s", c, e.grid)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.readField(); err != nil {
		return 0, err
	}
	return e.scratch[e.grid.Index(c.X, c.Y, c.Z)], nil
}

// PressureField returns a copy of the whole pressure field, indexed with
// Grid.Index.
func (e *Engine) PressureField() ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.readField(); err != nil {
		return nil, err
	}
	return append([]float32(nil), e.scratch...), nil
}

// Stats summarizes the current pressure field.
func (e *Engine) Stats() (FieldStats, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.readField(); err != nil {
		return FieldStats{}, err
	}
	return Summarize(e.scratch), nil
}

func (e *Engine) readField() error {
	if e.closed.Load() {
		return ErrClosed
	}
	if e.scratch == nil {
		e.scratch = make([]float32, e.grid.Cells())
	}
	if err := e.device.ReadPressure(e.scratch); err != nil {
		return fmt.Errorf("reading pressure field: %w", err)
	}
	return nil
}

// Sync blocks until every queued step and extraction has executed.
func (e *Engine) Sync() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed.Load() {
		return ErrClosed
	}
	return e.device.Finish()
}

// Grid returns the grid the engine was initialized with.
func (e *Engine) Grid() Grid { return e.grid }

// SampleRate returns the configured output sample rate.
func (e *Engine) SampleRate() int { return e.opts.sampleRate }

// FrameSize returns the number of samples per extracted frame.
func (e *Engine) FrameSize() int { return e.opts.frameSize }

// Steps returns the number of steps run so far.
func (e *Engine) Steps() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.steps
}

// SimTime returns the elapsed simulation time in seconds.
func (e *Engine) SimTime() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return float64(e.steps) * e.grid.TimeStep
}

// ExtractStats returns the extraction counters.
func (e *Engine) ExtractStats() ExtractStats {
	return e.extract.stats()
}

// DeviceName identifies the compute device.
func (e *Engine) DeviceName() string {
	if e.closed.Load() {
		return ""
	}
	return e.device.Name()
}

// Shutdown drains the device queue and releases every allocation. It is
// idempotent; later calls do nothing.
func (e *Engine) Shutdown() {
	e.shutdown.Do(func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.closed.Store(true)
		e.device.Close()
		e.scratch = nil
		e.logger.WithFields(logrus.Fields{
			"steps":     e.steps,
			"extracted": e.extract.completed.Load(),
			"failed":    e.extract.failed.Load(),
		}).Info("Acoustic engine shut down")
	})
}
