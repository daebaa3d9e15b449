package waveblender

import (
	"errors"
	"fmt"
	"math"
	"sync"
)

// TriggerMode is the state of a source's trigger state machine.
type TriggerMode uint8

const (
	// TriggerContinuous plays from simulation start; phase is the elapsed time.
	TriggerContinuous TriggerMode = iota
	// TriggerPeriodic restarts the phase every Interval seconds.
	TriggerPeriodic
	// TriggerManualHeld plays only after an explicit Trigger call and never
	// restarts on its own.
	TriggerManualHeld
)

func (m TriggerMode) String() string {
	switch m {
	case TriggerContinuous:
		return "continuous"
	case TriggerPeriodic:
		return "periodic"
	case TriggerManualHeld:
		return "manual"
	default:
		return fmt.Sprintf("trigger(%d)", uint8(m))
	}
}

// TriggerPolicy decides how a source's local phase evolves. Configuration sets
// the initial state; Trigger moves any state to TriggerManualHeld.
type TriggerPolicy struct {
	Mode     TriggerMode
	Interval float64 // seconds, TriggerPeriodic only

	last    float64 // simulation time of the last reset
	fired   bool    // manual sources stay silent until first triggered
	pending bool    // a manual trigger waits for the next rebuild
}

// ContinuousTrigger returns a policy whose phase is the elapsed simulation time.
func ContinuousTrigger() TriggerPolicy {
	return TriggerPolicy{Mode: TriggerContinuous}
}

// PeriodicTrigger returns a policy that resets the phase every interval seconds.
func PeriodicTrigger(interval float64) TriggerPolicy {
	return TriggerPolicy{Mode: TriggerPeriodic, Interval: interval}
}

// ManualTrigger returns a policy that stays silent until Trigger is called.
func ManualTrigger() TriggerPolicy {
	return TriggerPolicy{Mode: TriggerManualHeld}
}

// LastTrigger returns the simulation time of the most recent phase reset.
func (p TriggerPolicy) LastTrigger() float64 { return p.last }

// phaseAt advances the state machine to simulation time t and returns the
// local phase. ok is false while a manual source has never fired.
func (p *TriggerPolicy) phaseAt(t float64) (phase float64, reset, ok bool) {
	if p.pending {
		p.pending = false
		p.fired = true
		p.last = t
		return 0, true, true
	}
	switch p.Mode {
	case TriggerPeriodic:
		if elapsed := t - p.last; elapsed >= p.Interval*(1-phaseTolerance) {
			n := math.Floor(elapsed/p.Interval + phaseTolerance)
			if n < 1 {
				n = 1
			}
			p.last += n * p.Interval
			reset = true
		}
		return math.Max(0, t-p.last), reset, true
	case TriggerManualHeld:
		if !p.fired {
			return 0, false, false
		}
		return t - p.last, false, true
	default:
		return t, false, true
	}
}

// Source is a sound emitter injected into the pressure field.
type Source struct {
	Position  Vec3
	Amplitude float64
	Frequency float64 // Hz
	Damping   float64 // 1/s decay of the envelope
	Material  Material
	Trigger   TriggerPolicy
}

// NewToneSource returns the basic source variant: a continuous air tone.
func NewToneSource(pos Vec3, amplitude, frequency float64) Source {
	return Source{
		Position:  pos,
		Amplitude: amplitude,
		Frequency: frequency,
		Material:  Air,
		Trigger:   ContinuousTrigger(),
	}
}

func (s Source) validate() error {
	for _, v := range []float64{s.Position.X, s.Position.Y, s.Position.Z, s.Amplitude, s.Frequency, s.Damping} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errNotFinite
		}
	}
	if s.Frequency < 0 {
		return errors.New("frequency must not be negative")
	}
	if s.Damping < 0 {
		return errors.New("damping must not be negative")
	}
	if s.Material >= materialCount {
		return fmt.Errorf("unknown material %v", s.Material)
	}
	switch s.Trigger.Mode {
	case TriggerContinuous, TriggerManualHeld:
	case TriggerPeriodic:
		if !(s.Trigger.Interval > 0) || math.IsInf(s.Trigger.Interval, 0) {
			return fmt.Errorf("trigger interval: %w", errNotPositive)
		}
	default:
		return fmt.Errorf("unknown trigger mode %v", s.Trigger.Mode)
	}
	return nil
}

// sourceStride is the number of float32 properties packed per source slot:
// instantaneous value, amplitude, frequency, and local phase.
const sourceStride = 4

type sourceSlot struct {
	src    Source
	resets int
}

// sourceTable is the fixed-capacity set of emitters. Trigger and Upsert may be
// called from any goroutine; rebuild runs on the simulation loop.
type sourceTable struct {
	mu        sync.Mutex
	slots     []sourceSlot
	positions []int32
	props     []float32
}

func newSourceTable(capacity int, sources []Source) (*sourceTable, error) {
	if capacity < len(sources) {
		capacity = len(sources)
	}
	t := &sourceTable{
		slots:     make([]sourceSlot, capacity),
		positions: make([]int32, 3*capacity),
		props:     make([]float32, sourceStride*capacity),
	}
	for i, s := range sources {
		if err := s.validate(); err != nil {
			return nil, &ConfigError{Field: fmt.Sprintf("source %d", i), Err: err}
		}
		s.Trigger.last, s.Trigger.fired, s.Trigger.pending = 0, false, false
		t.slots[i].src = s
	}
	return t, nil
}

func (t *sourceTable) len() int {
	return len(t.slots)
}

func (t *sourceTable) checkIndex(i int) error {
	if i < 0 || i >= len(t.slots) {
		return &IndexError{Index: i, Len: len(t.slots)}
	}
	return nil
}

// upsert replaces the descriptor in slot i. The slot's trigger state starts
// fresh from the supplied policy.
func (t *sourceTable) upsert(i int, s Source) error {
	if err := t.checkIndex(i); err != nil {
		return err
	}
	if err := s.validate(); err != nil {
		return &ConfigError{Field: fmt.Sprintf("source %d", i), Err: err}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	s.Trigger.fired, s.Trigger.pending = false, false
	t.slots[i] = sourceSlot{src: s}
	return nil
}

// trigger flips slot i to manual mode and schedules a phase reset for the next
// rebuild. A non-nil amplitude replaces the slot's amplitude.
func (t *sourceTable) trigger(i int, amplitude *float64) error {
	if err := t.checkIndex(i); err != nil {
		return err
	}
	if amplitude != nil && (math.IsNaN(*amplitude) || math.IsInf(*amplitude, 0)) {
		return &ConfigError{Field: "amplitude override", Err: errNotFinite}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	slot := &t.slots[i]
	slot.src.Trigger.Mode = TriggerManualHeld
	slot.src.Trigger.pending = true
	if amplitude != nil {
		slot.src.Amplitude = *amplitude
	}
	return nil
}

func (t *sourceTable) source(i int) (Source, error) {
	if err := t.checkIndex(i); err != nil {
		return Source{}, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.slots[i].src, nil
}

func (t *sourceTable) resets(i int) (int, error) {
	if err := t.checkIndex(i); err != nil {
		return 0, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.slots[i].resets, nil
}

// rebuild recomputes every slot's phase at simulation time now and packs the
// device-facing position and property arrays. The returned slices are owned
// by the table and stay valid until the next rebuild.
func (t *sourceTable) rebuild(g Grid, now float64) (positions []int32, props []float32, active int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.slots {
		slot := &t.slots[i]
		s := &slot.src
		c := g.CellOf(s.Position)
		t.positions[3*i] = int32(c.X)
		t.positions[3*i+1] = int32(c.Y)
		t.positions[3*i+2] = int32(c.Z)

		phase, reset, ok := s.Trigger.phaseAt(now)
		if reset {
			slot.resets++
		}
		value := 0.0
		if ok && s.Amplitude != 0 {
			value = sourceValue(s.Material, s.Amplitude, s.Frequency, s.Damping, phase)
			active++
		}
		p := t.props[sourceStride*i : sourceStride*(i+1)]
		p[0] = float32(value)
		p[1] = float32(s.Amplitude)
		p[2] = float32(s.Frequency)
		p[3] = float32(phase)
	}
	return t.positions, t.props, active
}
