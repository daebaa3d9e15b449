package waveblender

// pcmFrameBytes is one interleaved stereo 16-bit frame.
const pcmFrameBytes = 4

// PCMStream adapts an Engine to an io.ReadCloser producing interleaved
// stereo signed 16-bit little-endian PCM, the format audio players pull.
// Each Read fills whole frames from FillAudioBuffer; it is meant to be read
// from a single audio goroutine.
type PCMStream struct {
	engine  *Engine
	scratch []float32
}

// NewPCMStream returns a stream reading post-processed samples from e.
func NewPCMStream(e *Engine) *PCMStream {
	return &PCMStream{engine: e}
}

func (s *PCMStream) Read(p []byte) (int, error) {
	frameBytes := len(p) - len(p)%pcmFrameBytes
	if frameBytes == 0 {
		return 0, nil
	}
	frames := frameBytes / pcmFrameBytes
	if cap(s.scratch) < frames {
		s.scratch = make([]float32, frames)
	}
	samples := s.scratch[:frames]
	s.engine.FillAudioBuffer(samples)
	for i, sample := range samples {
		v := int16(sample * 32767)
		o := i * pcmFrameBytes
		p[o] = byte(v)
		p[o+1] = byte(v >> 8)
		p[o+2] = p[o]
		p[o+3] = p[o+1]
	}
	return frameBytes, nil
}

// Close implements io.Closer. The engine is shut down separately.
func (s *PCMStream) Close() error {
	return nil
}
