//go:build !headless

package main

import (
	"fmt"
	"image/color"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/audio"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/spf13/cobra"

	"github.com/InboraStudio/waveblender"
)

const audioPlayerBufferLatency = 60 * time.Millisecond

var (
	playScale    int
	playAutoWalk time.Duration
	playDebug    bool
)

var triggerKeys = []ebiten.Key{
	ebiten.Key1, ebiten.Key2, ebiten.Key3, ebiten.Key4, ebiten.Key5,
	ebiten.Key6, ebiten.Key7, ebiten.Key8, ebiten.Key9,
}

var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Open a scene in an interactive window",
	Long: `play runs a scene in real time and plays the listener's audio. WASD moves
the listener across the floor plane, Q and E move it down and up, and the
number keys 1 to 9 trigger the matching source. The window shows the pressure
slice through the listener's plane with absorbing regions tinted.`,
	DisableAutoGenTag: true,
	RunE: func(*cobra.Command, []string) error {
		sc, e, err := openScene()
		if err != nil {
			return err
		}
		defer e.Shutdown()

		v, err := newViewer(sc, e)
		if err != nil {
			return err
		}
		g := e.Grid()
		ebiten.SetWindowTitle("waveblender")
		ebiten.SetWindowSize(g.NX*playScale, g.NY*playScale)
		ebiten.SetTPS(int(sc.TickRate))
		return ebiten.RunGame(v)
	},
}

func init() {
	f := playCmd.Flags()
	f.IntVar(&playScale, "scale", 8, "window pixels per cell")
	f.DurationVar(&playAutoWalk, "autowalk", 0, "walk the listener automatically for this long")
	f.BoolVar(&playDebug, "debug", true, "show the debug overlay")
}

// viewer is the ebiten game wrapping a running engine.
type viewer struct {
	engine   *waveblender.Engine
	view     *fieldView
	listener waveblender.Vec3
	speed    float64
	walker   *autoWalker

	lastTick  time.Duration
	lastStats waveblender.FieldStats

	player *audio.Player
}

func newViewer(sc *scene, e *waveblender.Engine) (*viewer, error) {
	g := e.Grid()
	v := &viewer{
		engine:   e,
		view:     newFieldView(g, sc.Config.Regions),
		listener: clampListener(g, sc.Listener),
		speed:    g.Spacing / 2,
	}
	if playAutoWalk > 0 {
		v.walker = newAutoWalker(time.Now().UnixNano(), playAutoWalk, time.Now())
	}

	ctx := audio.NewContext(e.SampleRate())
	player, err := ctx.NewPlayer(waveblender.NewPCMStream(e))
	if err != nil {
		return nil, fmt.Errorf("creating audio player: %w", err)
	}
	player.SetBufferSize(audioPlayerBufferLatency)
	player.Play()
	v.player = player
	return v, nil
}

func (v *viewer) Update() error {
	dx, dy, dz := v.movement()
	v.listener = clampListener(v.engine.Grid(), waveblender.Vec3{
		X: v.listener.X + dx,
		Y: v.listener.Y + dy,
		Z: v.listener.Z + dz,
	})

	for i, k := range triggerKeys {
		if i >= v.engine.SourceSlots() || !inpututil.IsKeyJustPressed(k) {
			continue
		}
		if err := v.engine.Trigger(i); err != nil {
			log.WithError(err).WithField("source", i+1).Warn("Trigger failed")
		}
	}

	start := time.Now()
	if err := v.engine.Tick(1/float64(ebiten.TPS()), v.listener); err != nil {
		return err
	}
	v.lastTick = time.Since(start)
	return nil
}

func (v *viewer) movement() (dx, dy, dz float64) {
	if v.walker.active(time.Now()) {
		dx, dy = v.walker.step(v.engine.Grid(), v.listener, v.speed)
		return dx, dy, 0
	}
	if ebiten.IsKeyPressed(ebiten.KeyW) {
		dy -= v.speed
	}
	if ebiten.IsKeyPressed(ebiten.KeyS) {
		dy += v.speed
	}
	if ebiten.IsKeyPressed(ebiten.KeyA) {
		dx -= v.speed
	}
	if ebiten.IsKeyPressed(ebiten.KeyD) {
		dx += v.speed
	}
	if ebiten.IsKeyPressed(ebiten.KeyQ) {
		dz -= v.speed
	}
	if ebiten.IsKeyPressed(ebiten.KeyE) {
		dz += v.speed
	}
	if dx != 0 && dy != 0 {
		dx *= 0.7071
		dy *= 0.7071
	}
	return dx, dy, dz
}

func (v *viewer) Draw(screen *ebiten.Image) {
	g := v.engine.Grid()
	field, err := v.engine.PressureField()
	if err != nil {
		return
	}
	c := g.CellOf(v.listener)
	screen.WritePixels(v.view.slice(field, c.Z))
	screen.Set(c.X, c.Y, color.RGBA{0, 255, 200, 255})

	if !playDebug {
		return
	}
	if stats, err := v.engine.Stats(); err == nil {
		v.lastStats = stats
	}
	ex := v.engine.ExtractStats()
	msg := fmt.Sprintf("FPS: %.1f  TPS: %.1f\nSim: %.3fs (%d steps, %.2f ms/tick)\nListener: (%.2f, %.2f, %.2f) z=%d\nField: rms %.3g peak %.3g\nFrames: %d done, %d skipped",
		ebiten.ActualFPS(), ebiten.ActualTPS(),
		v.engine.SimTime(), v.engine.Steps(), v.lastTick.Seconds()*1000,
		v.listener.X, v.listener.Y, v.listener.Z, c.Z,
		v.lastStats.RMS, v.lastStats.Peak,
		ex.Completed, ex.Skipped)
	ebitenutil.DebugPrint(screen, msg)
}

func (v *viewer) Layout(_, _ int) (int, int) {
	g := v.engine.Grid()
	return g.NX, g.NY
}
