package main

import (
	"context"
	"fmt"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/InboraStudio/waveblender"
)

var (
	renderOut     string
	renderSeconds float64
	renderScript  string
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render a scene to a WAV file",
	Long: `render runs a scene offline for a fixed simulated duration and writes the
listener's processed audio to a mono 16-bit WAV file. The simulation advances
one tick at a time at the scene's tick rate and the audio callback is driven
with exactly the number of samples that tick covers, so the output length is
fixed by --seconds and the scene's sample rate.`,
	DisableAutoGenTag: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if renderOut == "" {
			return fmt.Errorf("--out is required")
		}
		if renderSeconds <= 0 {
			return fmt.Errorf("--seconds must be positive, got %v", renderSeconds)
		}
		sc, e, err := openScene()
		if err != nil {
			return err
		}
		defer e.Shutdown()

		var script *triggerScript
		if renderScript != "" {
			if script, err = loadScript(renderScript, e); err != nil {
				return err
			}
			defer script.Close()
		}

		samples, err := renderScene(cmd.Context(), e, sc, script, renderSeconds)
		if err != nil {
			return err
		}
		if err := writeWAV(renderOut, sc.SampleRate, samples); err != nil {
			return err
		}
		stats := waveblender.Summarize(samples)
		log.WithFields(logrus.Fields{
			"path":    renderOut,
			"samples": len(samples),
			"steps":   e.Steps(),
			"rms":     stats.RMS,
			"peak":    stats.Peak,
		}).Info("Render complete")
		ex := e.ExtractStats()
		log.WithFields(logrus.Fields{
			"issued":    ex.Issued,
			"completed": ex.Completed,
			"skipped":   ex.Skipped,
			"failed":    ex.Failed,
		}).Debug("Extraction summary")
		return nil
	},
}

func init() {
	f := renderCmd.Flags()
	f.StringVarP(&renderOut, "out", "o", "", "output WAV path (required)")
	f.Float64Var(&renderSeconds, "seconds", 2, "simulated seconds to render")
	f.StringVar(&renderScript, "script", "", "Lua trigger script with an on_tick(t) function")
}

// renderScene ticks e for the given simulated duration and collects the audio
// each tick produces. The simulation and audio loops run on separate
// goroutines and hand off once per tick.
func renderScene(ctx context.Context, e *waveblender.Engine, sc *scene, script *triggerScript, seconds float64) ([]float32, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ticks := int(math.Round(seconds * sc.TickRate))
	perTick := float64(sc.SampleRate) / sc.TickRate
	samples := make([]float32, 0, int(math.Round(float64(ticks)*perTick)))

	ready := make(chan int)
	consumed := make(chan struct{})
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(ready)
		dt := 1 / sc.TickRate
		for k := 0; k < ticks; k++ {
			if err := script.tick(e.SimTime()); err != nil {
				return fmt.Errorf("script at tick %d: %w", k, err)
			}
			if err := e.Tick(dt, sc.Listener); err != nil {
				return err
			}
			if err := e.Sync(); err != nil {
				return err
			}
			n := int(math.Round(float64(k+1)*perTick)) - int(math.Round(float64(k)*perTick))
			select {
			case ready <- n:
			case <-ctx.Done():
				return ctx.Err()
			}
			// Wait for the audio loop before stepping further.
			select {
			case <-consumed:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})
	g.Go(func() error {
		buf := make([]float32, int(math.Ceil(perTick)))
		for n := range ready {
			e.FillAudioBuffer(buf[:n])
			samples = append(samples, buf[:n]...)
			select {
			case consumed <- struct{}{}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return samples, nil
}

// writeWAV encodes samples in [-1, 1] as mono 16-bit PCM.
func writeWAV(path string, sampleRate int, samples []float32) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(math.Round(float64(clampUnit(s)) * 32767))
	}
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		f.Close()
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return fmt.Errorf("finishing %s: %w", path, err)
	}
	return f.Close()
}

func clampUnit(v float32) float32 {
	switch {
	case v > 1:
		return 1
	case v < -1:
		return -1
	}
	return v
}
