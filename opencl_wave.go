//go:build opencl

package waveblender

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"unsafe"

	"github.com/jgillich/go-opencl/cl"
)

const fdtdKernelSource = `__kernel void update_beta(
    const int nx,
    const int ny,
    const int nz,
    const float wall_beta,
    const int box_count,
    __global const int* box_bounds,
    __global const float* box_beta,
    __global float* beta)
{
    int idx = get_global_id(0);
    if (idx >= nx * ny * nz) {
        return;
    }
    int x = idx % nx;
    int y = (idx / nx) % ny;
    int z = idx / (nx * ny);
    if (x == 0 || y == 0 || z == 0 || x == nx - 1 || y == ny - 1 || z == nz - 1) {
        beta[idx] = wall_beta;
        return;
    }
    float b = 1.0f;
    for (int i = 0; i < box_count; i++) {
        __global const int* bb = box_bounds + 6 * i;
        if (x >= bb[0] && x <= bb[3] && y >= bb[1] && y <= bb[4] && z >= bb[2] && z <= bb[5]) {
            b = box_beta[i];
        }
    }
    beta[idx] = b;
}

__kernel void update_pressure(
    const int nx,
    const int ny,
    const int nz,
    const float coef,
    const int source_count,
    const int radius,
    __global const int* positions,
    __global const float* props,
    __global const float* vx,
    __global const float* vy,
    __global const float* vz,
    __global const float* beta,
    __global float* pressure)
{
    int idx = get_global_id(0);
    if (idx >= nx * ny * nz) {
        return;
    }
    int x = idx % nx;
    int y = (idx / nx) % ny;
    int z = idx / (nx * ny);
    float div = vx[idx] + vy[idx] + vz[idx];
    if (x > 0) div -= vx[idx - 1];
    if (y > 0) div -= vy[idx - nx];
    if (z > 0) div -= vz[idx - nx * ny];
    float next = beta[idx] * (pressure[idx] - coef * div);
    int r2 = radius * radius;
    for (int s = 0; s < source_count; s++) {
        float value = props[4 * s];
        if (value == 0.0f) {
            continue;
        }
        int dx = x - positions[3 * s];
        int dy = y - positions[3 * s + 1];
        int dz = z - positions[3 * s + 2];
        int d2 = dx * dx + dy * dy + dz * dz;
        if (d2 > r2) {
            continue;
        }
        next += value / (1.0f + (float)d2);
    }
    pressure[idx] = next;
}

__kernel void update_velocity(
    const int nx,
    const int ny,
    const int nz,
    const float coef,
    __global const float* pressure,
    __global const float* beta,
    __global float* vx,
    __global float* vy,
    __global float* vz)
{
    int idx = get_global_id(0);
    if (idx >= nx * ny * nz) {
        return;
    }
    int x = idx % nx;
    int y = (idx / nx) % ny;
    int z = idx / (nx * ny);
    float pc = pressure[idx];
    float gx = x < nx - 1 ? pressure[idx + 1] - pc : 0.0f;
    float gy = y < ny - 1 ? pressure[idx + nx] - pc : 0.0f;
    float gz = z < nz - 1 ? pressure[idx + nx * ny] - pc : 0.0f;
    float b = beta[idx];
    vx[idx] = b * (vx[idx] - coef * gx);
    vy[idx] = b * (vy[idx] - coef * gy);
    vz[idx] = b * (vz[idx] - coef * gz);
}

__kernel void capture_tap(
    const int nx,
    const int ny,
    const int nz,
    const int lx,
    const int ly,
    const int lz,
    const int tap_pos,
    __global const float* pressure,
    __global float* taps)
{
    if (get_global_id(0) != 0) {
        return;
    }
    const int off[7][3] = {{0,0,0},{0,0,-1},{0,-1,0},{-1,0,0},{1,0,0},{0,1,0},{0,0,1}};
    float sum = 0.0f;
    int count = 0;
    for (int i = 0; i < 7; i++) {
        int x = lx + off[i][0];
        int y = ly + off[i][1];
        int z = lz + off[i][2];
        if (x < 0 || x >= nx || y < 0 || y >= ny || z < 0 || z >= nz) {
            continue;
        }
        sum += pressure[x + nx * (y + ny * z)];
        count++;
    }
    taps[tap_pos] = count > 0 ? sum / (float)count : 0.0f;
}

__kernel void gather_taps(
    const int n,
    const int tap_pos,
    __global const float* taps,
    __global float* frame)
{
    int i = get_global_id(0);
    if (i >= n) {
        return;
    }
    frame[i] = taps[(tap_pos + i) % n];
}`

// clStaging is one host-side copy of the source table. Its write event must
// complete before the slot is reused.
type clStaging struct {
	positions []int32
	props     []float32
	events    []*cl.Event
}

// openCLDevice runs the FDTD passes as OpenCL kernels on a single in-order
// command queue.
type openCLDevice struct {
	grid       Grid
	deviceName string
	frameSize  int
	slots      int

	context *cl.Context
	queue   *cl.CommandQueue
	program *cl.Program

	betaKernel     *cl.Kernel
	pressureKernel *cl.Kernel
	velocityKernel *cl.Kernel
	tapKernel      *cl.Kernel
	gatherKernel   *cl.Kernel

	pressureBuf  *cl.MemObject
	velocityBufs [3]*cl.MemObject
	betaBuf      *cl.MemObject
	boxBoundsBuf *cl.MemObject
	boxBetaBuf   *cl.MemObject
	positionsBuf *cl.MemObject
	propsBuf     *cl.MemObject
	tapsBuf      *cl.MemObject
	frameBuf     *cl.MemObject

	staging   []clStaging
	stageNext int
	tapPos    int

	readers sync.WaitGroup
	mu      sync.Mutex
	closed  bool
}

func pickOpenCLDevice() (*cl.Device, error) {
	platforms, err := cl.GetPlatforms()
	if err != nil {
		msg := "querying OpenCL platforms"
		if strings.Contains(err.Error(), "-1001") {
			msg += ": no ICD loader reported any platforms; install OpenCL drivers and verify with `clinfo`"
		}
		return nil, fmt.Errorf("%s: %w", msg, err)
	}
	if len(platforms) == 0 {
		return nil, errors.New("no OpenCL platforms available")
	}
	for _, kind := range []cl.DeviceType{cl.DeviceTypeGPU, cl.DeviceTypeCPU} {
		for _, p := range platforms {
			devices, derr := p.GetDevices(kind)
			if derr != nil && derr != cl.ErrDeviceNotFound {
				continue
			}
			if len(devices) > 0 {
				return devices[0], nil
			}
		}
	}
	return nil, errors.New("no suitable OpenCL devices found")
}

func newOpenCLDevice(g Grid, boxes []cellBox, sourceSlots, frameSize int) (computeDevice, error) {
	if err := checkAllocation(g); err != nil {
		return nil, err
	}
	device, err := pickOpenCLDevice()
	if err != nil {
		return nil, backendUnavailable(err)
	}
	d := &openCLDevice{
		grid:       g,
		deviceName: device.Name(),
		frameSize:  frameSize,
		slots:      sourceSlots,
		staging:    make([]clStaging, commandQueueDepth+2),
	}
	if err := d.build(device, boxes); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

func (d *openCLDevice) build(device *cl.Device, boxes []cellBox) error {
	var err error
	if d.context, err = cl.CreateContext([]*cl.Device{device}); err != nil {
		return &AllocationError{Resource: "OpenCL context", Err: err}
	}
	if d.queue, err = d.context.CreateCommandQueue(device, 0); err != nil {
		return &AllocationError{Resource: "OpenCL command queue", Err: err}
	}
	if d.program, err = d.context.CreateProgramWithSource([]string{fdtdKernelSource}); err != nil {
		return &AllocationError{Resource: "OpenCL program", Err: err}
	}
	if err := d.program.BuildProgram([]*cl.Device{device}, ""); err != nil {
		if buildErr, ok := err.(cl.BuildError); ok {
			err = errors.New(string(buildErr))
		}
		return &AllocationError{Resource: "OpenCL program build", Err: err}
	}
	kernels := []struct {
		name string
		dst  **cl.Kernel
	}{
		{"update_beta", &d.betaKernel},
		{"update_pressure", &d.pressureKernel},
		{"update_velocity", &d.velocityKernel},
		{"capture_tap", &d.tapKernel},
		{"gather_taps", &d.gatherKernel},
	}
	for _, k := range kernels {
		if *k.dst, err = d.program.CreateKernel(k.name); err != nil {
			return kernelUnresolved(k.name, err)
		}
	}

	cells := d.grid.Cells()
	f32 := int(unsafe.Sizeof(float32(0)))
	i32 := int(unsafe.Sizeof(int32(0)))
	buffers := []struct {
		name  string
		dst   **cl.MemObject
		bytes int
	}{
		{"pressure", &d.pressureBuf, cells * f32},
		{"velocity x", &d.velocityBufs[0], cells * f32},
		{"velocity y", &d.velocityBufs[1], cells * f32},
		{"velocity z", &d.velocityBufs[2], cells * f32},
		{"beta", &d.betaBuf, cells * f32},
		{"region bounds", &d.boxBoundsBuf, max(1, 6*len(boxes)) * i32},
		{"region beta", &d.boxBetaBuf, max(1, len(boxes)) * f32},
		{"source positions", &d.positionsBuf, max(1, 3*d.slots) * i32},
		{"source props", &d.propsBuf, max(1, sourceStride*d.slots) * f32},
		{"tap ring", &d.tapsBuf, d.frameSize * f32},
		{"audio frame", &d.frameBuf, d.frameSize * f32},
	}
	for _, b := range buffers {
		if *b.dst, err = d.context.CreateEmptyBuffer(cl.MemReadWrite, b.bytes); err != nil {
			return &AllocationError{Resource: b.name + " buffer", Err: err}
		}
	}
	if err := d.zeroBuffers(cells); err != nil {
		return &AllocationError{Resource: "field initialization", Err: err}
	}
	if err := d.uploadBoxes(boxes); err != nil {
		return &AllocationError{Resource: "region upload", Err: err}
	}
	if err := d.bindArgs(len(boxes)); err != nil {
		return &AllocationError{Resource: "kernel arguments", Err: err}
	}
	return nil
}

func (d *openCLDevice) zeroBuffers(cells int) error {
	zeros := make([]float32, max(cells, d.frameSize))
	for _, buf := range []*cl.MemObject{d.pressureBuf, d.velocityBufs[0], d.velocityBufs[1], d.velocityBufs[2]} {
		if _, err := d.queue.EnqueueWriteBufferFloat32(buf, true, 0, zeros[:cells], nil); err != nil {
			return err
		}
	}
	_, err := d.queue.EnqueueWriteBufferFloat32(d.tapsBuf, true, 0, zeros[:d.frameSize], nil)
	return err
}

func (d *openCLDevice) uploadBoxes(boxes []cellBox) error {
	if len(boxes) == 0 {
		return nil
	}
	bounds := make([]int32, 0, 6*len(boxes))
	betas := make([]float32, 0, len(boxes))
	for _, b := range boxes {
		bounds = append(bounds,
			int32(b.lo.X), int32(b.lo.Y), int32(b.lo.Z),
			int32(b.hi.X), int32(b.hi.Y), int32(b.hi.Z))
		betas = append(betas, b.beta)
	}
	byteLen := len(bounds) * int(unsafe.Sizeof(int32(0)))
	if _, err := d.queue.EnqueueWriteBuffer(d.boxBoundsBuf, true, 0, byteLen, unsafe.Pointer(&bounds[0]), nil); err != nil {
		return err
	}
	_, err := d.queue.EnqueueWriteBufferFloat32(d.boxBetaBuf, true, 0, betas, nil)
	return err
}

func (d *openCLDevice) bindArgs(boxCount int) error {
	nx, ny, nz := int32(d.grid.NX), int32(d.grid.NY), int32(d.grid.NZ)
	if err := d.betaKernel.SetArgs(nx, ny, nz, float32(defaultWallBeta), int32(boxCount),
		d.boxBoundsBuf, d.boxBetaBuf, d.betaBuf); err != nil {
		return fmt.Errorf("update_beta: %w", err)
	}
	if err := d.pressureKernel.SetArgs(nx, ny, nz, float32(0), int32(0), int32(0),
		d.positionsBuf, d.propsBuf, d.velocityBufs[0], d.velocityBufs[1], d.velocityBufs[2],
		d.betaBuf, d.pressureBuf); err != nil {
		return fmt.Errorf("update_pressure: %w", err)
	}
	if err := d.velocityKernel.SetArgs(nx, ny, nz, float32(0),
		d.pressureBuf, d.betaBuf, d.velocityBufs[0], d.velocityBufs[1], d.velocityBufs[2]); err != nil {
		return fmt.Errorf("update_velocity: %w", err)
	}
	if err := d.tapKernel.SetArgs(nx, ny, nz, int32(0), int32(0), int32(0), int32(0),
		d.pressureBuf, d.tapsBuf); err != nil {
		return fmt.Errorf("capture_tap: %w", err)
	}
	if err := d.gatherKernel.SetArgs(int32(d.frameSize), int32(0), d.tapsBuf, d.frameBuf); err != nil {
		return fmt.Errorf("gather_taps: %w", err)
	}
	return nil
}

func (d *openCLDevice) Name() string {
	return "opencl (" + d.deviceName + ")"
}

func (d *openCLDevice) UploadSources(positions []int32, props []float32) error {
	if len(positions) == 0 {
		return nil
	}
	slot := &d.staging[d.stageNext]
	d.stageNext = (d.stageNext + 1) % len(d.staging)
	if len(slot.events) > 0 {
		if err := cl.WaitForEvents(slot.events); err != nil {
			return fmt.Errorf("waiting for staged source upload: %w", err)
		}
		for _, ev := range slot.events {
			ev.Release()
		}
		slot.events = slot.events[:0]
	}
	slot.positions = append(slot.positions[:0], positions...)
	slot.props = append(slot.props[:0], props...)

	byteLen := len(slot.positions) * int(unsafe.Sizeof(int32(0)))
	ev, err := d.queue.EnqueueWriteBuffer(d.positionsBuf, false, 0, byteLen, unsafe.Pointer(&slot.positions[0]), nil)
	if err != nil {
		return fmt.Errorf("writing source positions: %w", err)
	}
	slot.events = append(slot.events, ev)
	ev, err = d.queue.EnqueueWriteBufferFloat32(d.propsBuf, false, 0, slot.props, nil)
	if err != nil {
		return fmt.Errorf("writing source props: %w", err)
	}
	slot.events = append(slot.events, ev)
	return nil
}

func (d *openCLDevice) Step(p stepParams) error {
	if err := d.betaKernel.SetArgFloat32(3, p.wallBeta); err != nil {
		return fmt.Errorf("setting wall beta: %w", err)
	}
	if err := d.pressureKernel.SetArgFloat32(3, p.pressureCoef); err != nil {
		return fmt.Errorf("setting pressure coefficient: %w", err)
	}
	if err := d.pressureKernel.SetArgInt32(4, int32(p.sourceCount)); err != nil {
		return fmt.Errorf("setting source count: %w", err)
	}
	if err := d.pressureKernel.SetArgInt32(5, int32(p.sourceRadius)); err != nil {
		return fmt.Errorf("setting source radius: %w", err)
	}
	if err := d.velocityKernel.SetArgFloat32(3, p.velocityCoef); err != nil {
		return fmt.Errorf("setting velocity coefficient: %w", err)
	}
	for i, v := range []int32{int32(p.listener.X), int32(p.listener.Y), int32(p.listener.Z), int32(d.tapPos)} {
		if err := d.tapKernel.SetArgInt32(3+i, v); err != nil {
			return fmt.Errorf("setting tap arguments: %w", err)
		}
	}
	global := []int{d.grid.Cells()}
	for _, k := range []*cl.Kernel{d.betaKernel, d.pressureKernel, d.velocityKernel} {
		if _, err := d.queue.EnqueueNDRangeKernel(k, nil, global, nil, nil); err != nil {
			return fmt.Errorf("enqueueing FDTD pass: %w", err)
		}
	}
	if _, err := d.queue.EnqueueNDRangeKernel(d.tapKernel, nil, []int{1}, nil, nil); err != nil {
		return fmt.Errorf("enqueueing listener tap: %w", err)
	}
	d.tapPos = (d.tapPos + 1) % d.frameSize
	return nil
}

// ReadAudio gathers the tap ring on the device and reads the frame back
// without blocking; a goroutine waits for the transfer and reports it.
func (d *openCLDevice) ReadAudio(dst []float32, done func(error)) error {
	if len(dst) != d.frameSize {
		return &ReadbackError{Err: fmt.Errorf("destination holds %d samples, tap ring holds %d", len(dst), d.frameSize)}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	if err := d.gatherKernel.SetArgInt32(1, int32(d.tapPos)); err != nil {
		return &ReadbackError{Err: err}
	}
	if _, err := d.queue.EnqueueNDRangeKernel(d.gatherKernel, nil, []int{d.frameSize}, nil, nil); err != nil {
		return &ReadbackError{Err: err}
	}
	ev, err := d.queue.EnqueueReadBufferFloat32(d.frameBuf, false, 0, dst, nil)
	if err != nil {
		return &ReadbackError{Err: err}
	}
	if err := d.queue.Flush(); err != nil {
		ev.Release()
		return &ReadbackError{Err: err}
	}
	d.readers.Add(1)
	go func() {
		defer d.readers.Done()
		err := cl.WaitForEvents([]*cl.Event{ev})
		ev.Release()
		if err != nil {
			err = &ReadbackError{Err: err}
		}
		done(err)
	}()
	return nil
}

func (d *openCLDevice) ReadPressure(dst []float32) error {
	if len(dst) != d.grid.Cells() {
		return errors.New("pressure destination has the wrong length")
	}
	if _, err := d.queue.EnqueueReadBufferFloat32(d.pressureBuf, true, 0, dst, nil); err != nil {
		return fmt.Errorf("reading pressure buffer: %w", err)
	}
	return nil
}

func (d *openCLDevice) Finish() error {
	if d.queue == nil {
		return ErrClosed
	}
	return d.queue.Finish()
}

func (d *openCLDevice) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	if d.queue != nil {
		_ = d.queue.Finish()
	}
	d.readers.Wait()
	for i := range d.staging {
		for _, ev := range d.staging[i].events {
			ev.Release()
		}
		d.staging[i] = clStaging{}
	}
	for _, buf := range []**cl.MemObject{
		&d.frameBuf, &d.tapsBuf, &d.propsBuf, &d.positionsBuf, &d.boxBetaBuf,
		&d.boxBoundsBuf, &d.betaBuf, &d.velocityBufs[2], &d.velocityBufs[1],
		&d.velocityBufs[0], &d.pressureBuf,
	} {
		if *buf != nil {
			(*buf).Release()
			*buf = nil
		}
	}
	for _, k := range []**cl.Kernel{&d.gatherKernel, &d.tapKernel, &d.velocityKernel, &d.pressureKernel, &d.betaKernel} {
		if *k != nil {
			(*k).Release()
			*k = nil
		}
	}
	if d.program != nil {
		d.program.Release()
		d.program = nil
	}
	if d.queue != nil {
		d.queue.Release()
		d.queue = nil
	}
	if d.context != nil {
		d.context.Release()
		d.context = nil
	}
}
