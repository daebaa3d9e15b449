package waveblender

import (
	"errors"
	"fmt"
	"math"
	"sync"
)

// computeDevice is the parallel execution facility the engine drives. Work is
// queued in submission order; only ReadPressure and Finish wait for it.
type computeDevice interface {
	// Name identifies the device for logs.
	Name() string
	// UploadSources copies the packed source table for the following steps.
	UploadSources(positions []int32, props []float32) error
	// Step queues the beta, pressure and velocity passes followed by the
	// listener tap.
	Step(p stepParams) error
	// ReadAudio queues a gather of the tap ring into dst, oldest tap first,
	// and calls done once dst is filled or the transfer failed. dst must not
	// be touched until done runs.
	ReadAudio(dst []float32, done func(error)) error
	// ReadPressure copies the pressure field into dst, waiting for all
	// queued work.
	ReadPressure(dst []float32) error
	// Finish blocks until every queued command has executed.
	Finish() error
	// Close releases the device. It is safe to call more than once.
	Close()
}

// maxGridCells bounds the allocation a single engine may request.
const maxGridCells = 1 << 28

func checkAllocation(g Grid) error {
	cells := float64(g.NX) * float64(g.NY) * float64(g.NZ)
	if cells > maxGridCells || cells > math.MaxInt32 {
		return &AllocationError{
			Resource: fmt.Sprintf("field arrays for %s", g),
			Err:      fmt.Errorf("%.0f cells exceeds the %d cell limit", cells, maxGridCells),
		}
	}
	return nil
}

// deviceCommand is one unit of queued work.
type deviceCommand func()

// cpuDevice executes the FDTD passes on a worker pool. A queue goroutine plays
// the role of the device command queue so the simulation loop never waits on
// a step unless it reads results back.
type cpuDevice struct {
	grid    Grid
	field   *waveField
	boxes   []cellBox
	workers *workerPool

	queue  chan deviceCommand
	exited chan struct{}

	positions []int32
	props     []float32
	staging   []sourceStaging
	stageNext int

	taps    []float32
	tapPos  int
	closeMu sync.Mutex
	closed  bool
}

// sourceStaging holds one uploaded copy of the source table. The ring
// outnumbers the queue depth so a slot is never rewritten while its command
// is still pending.
type sourceStaging struct {
	positions []int32
	props     []float32
}

func newCPUDevice(g Grid, boxes []cellBox, workers, frameSize int) (*cpuDevice, error) {
	if err := checkAllocation(g); err != nil {
		return nil, err
	}
	d := &cpuDevice{
		grid:    g,
		field:   newWaveField(g),
		boxes:   boxes,
		queue:   make(chan deviceCommand, commandQueueDepth),
		exited:  make(chan struct{}),
		staging: make([]sourceStaging, commandQueueDepth+2),
		taps:    make([]float32, frameSize),
	}
	d.workers = newWorkerPool(workers, g.NZ)
	go d.loop()
	return d, nil
}

func (d *cpuDevice) loop() {
	defer close(d.exited)
	for cmd := range d.queue {
		cmd()
	}
}

func (d *cpuDevice) Name() string {
	return fmt.Sprintf("cpu (%d workers)", d.workers.size())
}

func (d *cpuDevice) enqueue(cmd deviceCommand) error {
	d.closeMu.Lock()
	defer d.closeMu.Unlock()
	if d.closed {
		return ErrClosed
	}
	d.queue <- cmd
	return nil
}

func (d *cpuDevice) UploadSources(positions []int32, props []float32) error {
	slot := &d.staging[d.stageNext]
	d.stageNext = (d.stageNext + 1) % len(d.staging)
	slot.positions = append(slot.positions[:0], positions...)
	slot.props = append(slot.props[:0], props...)
	return d.enqueue(func() {
		d.positions = slot.positions
		d.props = slot.props
	})
}

func (d *cpuDevice) Step(p stepParams) error {
	return d.enqueue(func() {
		f := d.field
		d.workers.run(func(z0, z1 int) { betaPass(f, d.boxes, p.wallBeta, z0, z1) })
		d.workers.run(func(z0, z1 int) { pressurePass(f, p, d.positions, d.props, z0, z1) })
		d.workers.run(func(z0, z1 int) { velocityPass(f, p, z0, z1) })
		d.taps[d.tapPos] = listenerTap(f, p.listener)
		d.tapPos = (d.tapPos + 1) % len(d.taps)
	})
}

func (d *cpuDevice) ReadAudio(dst []float32, done func(error)) error {
	if len(dst) != len(d.taps) {
		return &ReadbackError{Err: fmt.Errorf("destination holds %d samples, tap ring holds %d", len(dst), len(d.taps))}
	}
	return d.enqueue(func() {
		n := copy(dst, d.taps[d.tapPos:])
		copy(dst[n:], d.taps[:d.tapPos])
		done(nil)
	})
}

func (d *cpuDevice) ReadPressure(dst []float32) error {
	if len(dst) != len(d.field.pressure) {
		return errors.New("pressure destination has the wrong length")
	}
	wait := make(chan struct{})
	if err := d.enqueue(func() {
		copy(dst, d.field.pressure)
		close(wait)
	}); err != nil {
		return err
	}
	<-wait
	return nil
}

func (d *cpuDevice) Finish() error {
	wait := make(chan struct{})
	if err := d.enqueue(func() { close(wait) }); err != nil {
		return err
	}
	<-wait
	return nil
}

func (d *cpuDevice) Close() {
	d.closeMu.Lock()
	if d.closed {
		d.closeMu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.closeMu.Unlock()

	<-d.exited
	d.workers.close()
	d.field.release()
	d.taps = nil
	d.staging = nil
}
