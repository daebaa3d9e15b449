package waveblender

import (
	"github.com/sirupsen/logrus"
)

// Default engine, extraction, and audio settings. These mirror the values the
// renderer was tuned with and can be overridden per engine through Options.
const (
	defaultSampleRate      = 48000
	defaultFrameSize       = 512
	defaultHistorySize     = 4096
	defaultExtractEvery    = 2
	defaultMaxStepsPerTick = 256
	defaultSourceCapacity  = 16
	defaultWallBeta        = 0.90
	defaultSmoothingCutoff = 0.35
	defaultReverbAmount    = 0.25
	defaultGain            = 1.0
	commandQueueDepth      = 64

	// CounterWrap bounds the post-processor sample counter used for
	// history indexing.
	CounterWrap = 1000000

	// reverbTapScale is the fixed attenuation applied to the history tap.
	reverbTapScale = 0.3

	// dcBlockAlpha is the AC coupling rate of the optional DC blocker.
	dcBlockAlpha = 0.001

	// courantTolerance admits grids sitting exactly on the stability bound.
	courantTolerance = 1e-12

	// phaseTolerance absorbs float error when a periodic source's elapsed
	// time lands on a whole number of intervals.
	phaseTolerance = 1e-12

	// cellEpsilon absorbs float error when mapping world positions to cells.
	cellEpsilon = 1e-9
)

// Backend selects the compute device executing the FDTD passes.
type Backend string

const (
	// BackendCPU runs the passes on a pool of worker goroutines.
	BackendCPU Backend = "cpu"
	// BackendOpenCL runs the passes as OpenCL kernels. It requires building
	// with -tags opencl.
	BackendOpenCL Backend = "opencl"
)

// options holds the tunables applied by Option functions.
type options struct {
	logger          logrus.FieldLogger
	backend         Backend
	workers         int
	sampleRate      int
	frameSize       int
	historySize     int
	extractEvery    int
	maxStepsPerTick int
	sourceCapacity  int
	sourceRadius    int
	wallBeta        float64
	processor       ProcessorSettings
}

// Option configures an Engine at Initialize time.
type Option func(*options)

func defaultOptions() options {
	return options{
		logger:          logrus.StandardLogger(),
		backend:         BackendCPU,
		sampleRate:      defaultSampleRate,
		frameSize:       defaultFrameSize,
		historySize:     defaultHistorySize,
		extractEvery:    defaultExtractEvery,
		maxStepsPerTick: defaultMaxStepsPerTick,
		sourceCapacity:  defaultSourceCapacity,
		wallBeta:        defaultWallBeta,
		processor:       DefaultProcessorSettings(),
	}
}

// WithLogger sets the logger used for lifecycle and diagnostic messages.
func WithLogger(l logrus.FieldLogger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithBackend selects the compute device.
func WithBackend(b Backend) Option {
	return func(o *options) { o.backend = b }
}

// WithWorkers sets the number of CPU worker goroutines. Zero uses GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithSampleRate sets the output sample rate reported to audio hosts.
func WithSampleRate(hz int) Option {
	return func(o *options) { o.sampleRate = hz }
}

// WithFrameSize sets the number of samples in each extracted AudioFrame.
func WithFrameSize(n int) Option {
	return func(o *options) { o.frameSize = n }
}

// WithHistorySize sets the length of the reverb history ring.
func WithHistorySize(n int) Option {
	return func(o *options) { o.historySize = n }
}

// WithExtractEvery sets how many simulation steps pass between extractions.
func WithExtractEvery(steps int) Option {
	return func(o *options) { o.extractEvery = steps }
}

// WithMaxStepsPerTick caps the number of steps a single Tick may run.
func WithMaxStepsPerTick(n int) Option {
	return func(o *options) { o.maxStepsPerTick = n }
}

// WithSourceCapacity sets the minimum number of source slots.
func WithSourceCapacity(n int) Option {
	return func(o *options) { o.sourceCapacity = n }
}

// WithSourceRadius spreads each source over cells within radius cells of its
// mapped cell. Zero injects into the mapped cell only.
func WithSourceRadius(cells int) Option {
	return func(o *options) { o.sourceRadius = cells }
}

// WithWallBeta sets the beta coefficient of the grid edge cells.
// 1 keeps the walls fully reflective, 0 absorbs everything reaching them.
func WithWallBeta(beta float64) Option {
	return func(o *options) { o.wallBeta = beta }
}

// WithProcessorSettings sets the initial post-processing settings.
func WithProcessorSettings(s ProcessorSettings) Option {
	return func(o *options) { o.processor = s }
}

func (o *options) validate() error {
	switch o.backend {
	case BackendCPU, BackendOpenCL:
	default:
		return &ConfigError{Field: "backend", Err: ErrBackendUnavailable}
	}
	if o.workers < 0 {
		return &ConfigError{Field: "workers", Err: errNotPositive}
	}
	if o.sampleRate <= 0 {
		return &ConfigError{Field: "sample rate", Err: errNotPositive}
	}
	if o.frameSize <= 0 {
		return &ConfigError{Field: "frame size", Err: errNotPositive}
	}
	if o.historySize <= 0 {
		return &ConfigError{Field: "history size", Err: errNotPositive}
	}
	if o.extractEvery <= 0 {
		return &ConfigError{Field: "extract every", Err: errNotPositive}
	}
	if o.maxStepsPerTick <= 0 {
		return &ConfigError{Field: "max steps per tick", Err: errNotPositive}
	}
	if o.sourceCapacity < 0 {
		return &ConfigError{Field: "source capacity", Err: errNotPositive}
	}
	if o.sourceRadius < 0 {
		return &ConfigError{Field: "source radius", Err: errNotPositive}
	}
	if o.wallBeta < 0 || o.wallBeta > 1 {
		return &ConfigError{Field: "wall beta", Err: errOutOfUnitRange}
	}
	return o.processor.validate()
}
