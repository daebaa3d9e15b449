package waveblender

import (
	"fmt"
	"math"
	"sync/atomic"
)

// ProcessorSettings controls the real-time post-processing chain.
type ProcessorSettings struct {
	// Smoothing enables the one-pole low-pass lerp(prev, raw, Cutoff).
	Smoothing bool
	Cutoff    float64
	// Reverb mixes in the history ring tap scaled by ReverbAmount.
	Reverb       bool
	ReverbAmount float64
	// Gain scales the final sample before clipping.
	Gain float64
	// DCBlock removes a slowly varying offset before smoothing.
	DCBlock bool
}

// DefaultProcessorSettings returns smoothing on, reverb off, unity gain.
func DefaultProcessorSettings() ProcessorSettings {
	return ProcessorSettings{
		Smoothing:    true,
		Cutoff:       defaultSmoothingCutoff,
		ReverbAmount: defaultReverbAmount,
		Gain:         defaultGain,
	}
}

func (s ProcessorSettings) validate() error {
	if math.IsNaN(s.Cutoff) || s.Cutoff < 0 || s.Cutoff > 1 {
		return &ConfigError{Field: "smoothing cutoff", Err: errOutOfUnitRange}
	}
	if math.IsNaN(s.ReverbAmount) || s.ReverbAmount < 0 || s.ReverbAmount > 1 {
		return &ConfigError{Field: "reverb amount", Err: errOutOfUnitRange}
	}
	if math.IsNaN(s.Gain) || math.IsInf(s.Gain, 0) || s.Gain < 0 {
		return &ConfigError{Field: "gain", Err: fmt.Errorf("%v: %w", s.Gain, errNotFinite)}
	}
	return nil
}

// Processor turns the latest extracted frame into output samples. It owns the
// reader side of the frame hand-off and the reverb history ring, and must only
// be driven from the audio callback. Process takes no locks and does not
// allocate.
type Processor struct {
	settings atomic.Pointer[ProcessorSettings]
	frames   *frameExchange

	raw     []float32
	history []float32
	counter int
	prev    float32
	dc      float32
}

func newProcessor(frames *frameExchange, frameSize, historySize int, s ProcessorSettings) *Processor {
	p := &Processor{
		frames:  frames,
		raw:     make([]float32, frameSize),
		history: make([]float32, historySize),
	}
	p.settings.Store(&s)
	return p
}

// Settings returns the active settings.
func (p *Processor) Settings() ProcessorSettings {
	return *p.settings.Load()
}

// SetSettings swaps the settings used from the next Process call on.
func (p *Processor) SetSettings(s ProcessorSettings) error {
	if err := s.validate(); err != nil {
		return err
	}
	p.settings.Store(&s)
	return nil
}

// Process fills out with post-processed samples. Sample i starts from sample
// i (modulo the frame size) of the most recent complete frame, or silence
// when no frame has been published yet.
func (p *Processor) Process(out []float32) {
	if len(out) == 0 {
		return
	}
	s := p.settings.Load()
	frame := p.frames.latest()
	copy(p.raw, frame.Samples)

	cutoff := float32(s.Cutoff)
	reverb := float32(s.ReverbAmount * reverbTapScale)
	gain := float32(s.Gain)
	n := len(p.raw)
	h := len(p.history)
	for i := range out {
		x := p.raw[i%n]
		if x != x {
			x = 0
		}
		if s.DCBlock {
			p.dc += dcBlockAlpha * (x - p.dc)
			x -= p.dc
		}
		if s.Smoothing {
			x = p.prev + (x-p.prev)*cutoff
		}
		p.prev = x
		if s.Reverb {
			idx := (p.counter + i) % h
			x += p.history[idx] * reverb
			p.history[idx] = x
		}
		x *= gain
		if x > 1 {
			x = 1
		} else if x < -1 {
			x = -1
		}
		out[i] = x
	}
	p.counter = (p.counter + len(out)) % CounterWrap
}
