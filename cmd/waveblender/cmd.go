package main

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/InboraStudio/waveblender"
)

// Global flag values shared by every subcommand.
var (
	logLevel   string
	backend    string
	workers    int
	cpuProfile string
	scenePath  string
)

// stopProfile ends a CPU profile started by --cpuprofile.
var stopProfile = func() {}

var log = logrus.New()

var rootCmd = &cobra.Command{
	Use:   "waveblender",
	Short: "Simulate sound propagating through a 3D volume.",
	Long: `waveblender runs a finite-difference acoustic simulation over a voxel
grid described by a TOML scene file and turns the pressure at a listener
position into audio. Use the subcommands below to play a scene interactively,
render it to a WAV file, or check its configuration.`,
	SilenceUsage:      true,
	DisableAutoGenTag: true,
	PersistentPreRunE: func(*cobra.Command, []string) error {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			return err
		}
		log.SetLevel(level)
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		if cpuProfile != "" {
			stop, err := startCPUProfile(cpuProfile)
			if err != nil {
				return fmt.Errorf("starting CPU profile: %w", err)
			}
			stopProfile = stop
		}
		return nil
	},
	PersistentPostRun: func(*cobra.Command, []string) {
		stopProfile()
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
	pf.StringVar(&backend, "backend", string(waveblender.BackendCPU), "compute backend: cpu or opencl")
	pf.IntVar(&workers, "workers", 0, "CPU worker goroutines; 0 uses GOMAXPROCS")
	pf.StringVar(&cpuProfile, "cpuprofile", "", "write a CPU profile to this file")

	for _, c := range []*cobra.Command{playCmd, renderCmd, checkCmd} {
		addSceneFlag(c.Flags())
	}
	rootCmd.AddCommand(playCmd, renderCmd, checkCmd, compareCmd)
}

func addSceneFlag(fs *pflag.FlagSet) {
	fs.StringVarP(&scenePath, "scene", "s", "", "scene TOML file (required)")
}

// engineOptions combines the scene's options with the global flags.
func engineOptions(sc *scene) []waveblender.Option {
	opts := append([]waveblender.Option{}, sc.Options...)
	return append(opts,
		waveblender.WithLogger(log),
		waveblender.WithBackend(waveblender.Backend(backend)),
		waveblender.WithWorkers(workers),
	)
}

// openScene loads the scene named by --scene and starts an engine for it.
func openScene() (*scene, *waveblender.Engine, error) {
	if scenePath == "" {
		return nil, nil, fmt.Errorf("--scene is required")
	}
	sc, err := loadScene(scenePath)
	if err != nil {
		return nil, nil, err
	}
	e, err := waveblender.Initialize(sc.Config, engineOptions(sc)...)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing %s: %w", scenePath, err)
	}
	return sc, e, nil
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate a scene file",
	Long: `check loads a scene, validates it the same way the engine does at start
up, and prints the grid's stability figures.`,
	DisableAutoGenTag: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		sc, e, err := openScene()
		if err != nil {
			return err
		}
		defer e.Shutdown()
		g := sc.Config.Grid
		cmd.Printf("grid        %s (%d cells)\n", g, g.Cells())
		cmd.Printf("courant     %.4f (limit %.4f)\n", g.CourantNumber(), 1/math.Sqrt(3))
		cmd.Printf("time step   %.3gs (max stable %.3gs)\n", g.TimeStep, g.MaxStableTimeStep())
		cmd.Printf("sources     %d in %d slots\n", len(sc.Config.Sources), e.SourceSlots())
		cmd.Printf("regions     %d\n", len(sc.Config.Regions))
		cmd.Printf("device      %s\n", e.DeviceName())
		return nil
	},
}
