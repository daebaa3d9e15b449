package waveblender

import "sync/atomic"

// AudioFrame is one extraction cycle's worth of listener samples.
type AudioFrame struct {
	Samples []float32
	// Seq counts published frames, starting at 1.
	Seq uint64
}

// Triple-buffer state packing: the low bits hold the index of the shared
// middle buffer, freshBit marks it as published but not yet consumed.
const (
	frameIndexMask = 0x3
	freshBit       = 0x4
)

// frameExchange hands the most recent complete AudioFrame from a single
// writer to a single reader without locks. The writer fills its private back
// buffer and publishes it by swapping it with the middle one; the reader
// swaps its private front buffer with the middle one when a fresh frame is
// waiting. Neither side ever touches a buffer the other one owns, so the
// reader cannot observe a partially written frame.
type frameExchange struct {
	frames [3]AudioFrame
	state  atomic.Uint32

	// writer side
	back uint32
	seq  uint64

	// reader side
	front uint32
}

func newFrameExchange(size int) *frameExchange {
	x := &frameExchange{back: 2, front: 0}
	for i := range x.frames {
		x.frames[i].Samples = make([]float32, size)
	}
	x.state.Store(1)
	return x
}

// backBuffer returns the writer's buffer. Only the writer may call it, and
// the slice must not be retained after publish.
func (x *frameExchange) backBuffer() []float32 {
	return x.frames[x.back].Samples
}

// publish makes the back buffer the latest frame and takes over the previous
// middle buffer as the new back buffer.
func (x *frameExchange) publish() uint64 {
	x.seq++
	x.frames[x.back].Seq = x.seq
	prev := x.state.Swap(x.back | freshBit)
	x.back = prev & frameIndexMask
	return x.seq
}

// latest returns the newest published frame, or the reader's current frame
// when nothing new was published. Before the first publish the frame is
// silent and has Seq 0. Only the reader may call it; the frame stays valid
// until the reader's next call.
func (x *frameExchange) latest() *AudioFrame {
	if x.state.Load()&freshBit != 0 {
		prev := x.state.Swap(x.front)
		x.front = prev & frameIndexMask
	}
	return &x.frames[x.front]
}
