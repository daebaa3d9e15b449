// Package waveblender simulates sound propagating through a 3D voxel volume
// and streams what a listener hears to a real-time audio callback.
//
// The pressure field is advanced with a staggered-grid FDTD scheme on a
// compute device: a pool of CPU workers by default, or OpenCL kernels when
// built with -tags opencl. Every few steps the listener taps are read back
// asynchronously and handed to the audio side through a lock-free triple
// buffer, where a Processor shapes them for playback.
//
// A minimal host:
//
//	e, err := waveblender.Initialize(waveblender.Config{Grid: g, Sources: srcs})
//	if err != nil {
//		return err
//	}
//	defer e.Shutdown()
//	player, _ := audioCtx.NewPlayer(waveblender.NewPCMStream(e))
//	player.Play()
//	for running {
//		e.Tick(frameDelta, listener)
//	}
package waveblender
