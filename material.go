package waveblender

import (
	"fmt"
	"math"
	"strings"
)

// Material selects the envelope and harmonic shaping of a source.
type Material uint8

const (
	Air Material = iota
	Steel
	Aluminum
	Wood
	Water
	materialCount
)

var materialNames = [materialCount]string{
	Air:      "air",
	Steel:    "steel",
	Aluminum: "aluminum",
	Wood:     "wood",
	Water:    "water",
}

func (m Material) String() string {
	if m < materialCount {
		return materialNames[m]
	}
	return fmt.Sprintf("material(%d)", uint8(m))
}

// ParseMaterial resolves a material by name, case-insensitively.
func ParseMaterial(s string) (Material, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "" {
		return Air, nil
	}
	for i, n := range materialNames {
		if n == name {
			return Material(i), nil
		}
	}
	return Air, fmt.Errorf("unknown material %q", s)
}

// partial is one sine component of a material's oscillator, at ratio times the
// source frequency.
type partial struct {
	ratio  float64
	weight float64
}

// materialProfile is the data-only shaping recipe of a material.
//
//	envelope(t) = onset(t) · exp(-(damping·decayScale + decayFloor)·t) · am(t)
//	onset(t)    = 1 when attack is 0, else 1 - exp(-attack·t)
//	am(t)       = 1 - amDepth·(0.5 - 0.5·cos(2π·amRate·t))
//	osc(t)      = Σ wₖ·sin(2π·f·rₖ·t) / Σ wₖ
type materialProfile struct {
	attack     float64 // 1/s
	decayScale float64
	decayFloor float64 // 1/s
	partials   []partial
	amRate     float64 // Hz
	amDepth    float64
}

// Steel and aluminum use free-free bar mode ratios for their ringing partials.
var materialProfiles = [materialCount]materialProfile{
	Air: {
		decayScale: 1,
		partials:   []partial{{1, 1}},
	},
	Steel: {
		decayScale: 0.35,
		partials:   []partial{{1, 1}, {2.756, 0.5}, {5.404, 0.25}, {8.933, 0.12}},
	},
	Aluminum: {
		decayScale: 0.5,
		decayFloor: 2,
		partials:   []partial{{1, 1}, {2.32, 0.45}, {4.25, 0.2}, {6.63, 0.1}},
	},
	Wood: {
		decayScale: 3,
		decayFloor: 20,
		partials:   []partial{{1, 1}, {2, 0.15}},
	},
	Water: {
		attack:     400,
		decayScale: 1.5,
		decayFloor: 4,
		partials:   []partial{{1, 1}, {1.5, 0.3}, {2.3, 0.2}},
		amRate:     37,
		amDepth:    0.6,
	},
}

// profile returns the shaping recipe of m, falling back to air.
func (m Material) profile() *materialProfile {
	if m < materialCount {
		return &materialProfiles[m]
	}
	return &materialProfiles[Air]
}

// envelope returns the amplitude shaping at local phase t.
func (p *materialProfile) envelope(damping, t float64) float64 {
	env := math.Exp(-(damping*p.decayScale + p.decayFloor) * t)
	if p.attack > 0 {
		env *= 1 - math.Exp(-p.attack*t)
	}
	if p.amDepth > 0 {
		env *= 1 - p.amDepth*(0.5-0.5*math.Cos(2*math.Pi*p.amRate*t))
	}
	return env
}

// oscillator returns the normalized partial sum at local phase t.
func (p *materialProfile) oscillator(frequency, t float64) float64 {
	var sum, weights float64
	for _, pt := range p.partials {
		sum += pt.weight * math.Sin(2*math.Pi*frequency*pt.ratio*t)
		weights += pt.weight
	}
	if weights == 0 {
		return 0
	}
	return sum / weights
}

// sourceValue is the instantaneous injection of a source at local phase t.
func sourceValue(m Material, amplitude, frequency, damping, t float64) float64 {
	if amplitude == 0 {
		return 0
	}
	p := m.profile()
	return amplitude * p.envelope(damping, t) * p.oscillator(frequency, t)
}
