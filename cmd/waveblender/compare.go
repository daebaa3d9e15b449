package main

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/hajimehoshi/ebiten/v2/audio/wav"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

var (
	compareRate      int
	compareTolerance float64
)

var compareCmd = &cobra.Command{
	Use:   "compare <a.wav> <b.wav>",
	Short: "Compare two rendered WAV files",
	Long: `compare decodes two WAV files at a common sample rate, folds them to mono,
and reports how far apart they are over their common length. With
--tolerance it fails when the RMS difference exceeds the given value, which
makes it usable as a regression check between renders.`,
	Args:              cobra.ExactArgs(2),
	DisableAutoGenTag: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadWAVSamples(compareRate, args[0])
		if err != nil {
			return err
		}
		b, err := loadWAVSamples(compareRate, args[1])
		if err != nil {
			return err
		}
		d := compareSamples(a, b)
		cmd.Printf("samples      %d / %d (compared %d)\n", len(a), len(b), d.Compared)
		cmd.Printf("rms          %.6f / %.6f\n", d.RMSA, d.RMSB)
		cmd.Printf("rms diff     %.6f\n", d.RMSDiff)
		cmd.Printf("peak diff    %.6f\n", d.PeakDiff)
		cmd.Printf("correlation  %.4f\n", d.Correlation)
		if compareTolerance > 0 && d.RMSDiff > compareTolerance {
			return fmt.Errorf("rms difference %.6f exceeds tolerance %.6f", d.RMSDiff, compareTolerance)
		}
		return nil
	},
}

func init() {
	f := compareCmd.Flags()
	f.IntVar(&compareRate, "sample-rate", defaultSampleRate, "rate both files are resampled to")
	f.Float64Var(&compareTolerance, "tolerance", 0, "fail when the RMS difference exceeds this; 0 disables")
}

// loadWAVSamples decodes the WAV at path and returns mono samples at
// sampleRate.
func loadWAVSamples(sampleRate int, path string) ([]float64, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	stream, err := wav.DecodeWithSampleRate(sampleRate, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decoding %q: %w", path, err)
	}
	decoded, err := io.ReadAll(stream)
	if err != nil {
		return nil, fmt.Errorf("reading decoded %q: %w", path, err)
	}
	samples := decodeStereoI16(decoded)
	if len(samples) == 0 {
		return nil, fmt.Errorf("wav %q has no audio data", path)
	}
	return samples, nil
}

// decodeStereoI16 averages interleaved little-endian 16-bit stereo frames to
// mono in [-1, 1). A trailing partial frame is ignored.
func decodeStereoI16(pcm []byte) []float64 {
	frames := len(pcm) / 4
	if frames == 0 {
		return nil
	}
	samples := make([]float64, frames)
	for i := range samples {
		off := i * 4
		left := int16(binary.LittleEndian.Uint16(pcm[off : off+2]))
		right := int16(binary.LittleEndian.Uint16(pcm[off+2 : off+4]))
		samples[i] = (float64(left) + float64(right)) * (0.5 / 32768.0)
	}
	return samples
}

type sampleDiff struct {
	Compared    int
	RMSA, RMSB  float64
	RMSDiff     float64
	PeakDiff    float64
	Correlation float64 // NaN when either side is constant
}

// compareSamples measures a against b over their common prefix.
func compareSamples(a, b []float64) sampleDiff {
	n := min(len(a), len(b))
	d := sampleDiff{Compared: n}
	if n == 0 {
		d.Correlation = math.NaN()
		return d
	}
	a, b = a[:n], b[:n]
	root := math.Sqrt(float64(n))
	d.RMSA = floats.Norm(a, 2) / root
	d.RMSB = floats.Norm(b, 2) / root
	d.RMSDiff = floats.Distance(a, b, 2) / root
	d.PeakDiff = floats.Distance(a, b, math.Inf(1))
	d.Correlation = stat.Correlation(a, b, nil)
	return d
}
