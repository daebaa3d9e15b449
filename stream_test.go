package waveblender

import (
	"encoding/binary"
	"testing"
)

func TestPCMStreamWritesWholeStereoFrames(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, testConfig(), WithFrameSize(4),
		WithProcessorSettings(ProcessorSettings{Cutoff: 1, Gain: 1}))
	publishFrame(e.exchange, 0.5, -0.5, 1, 0)

	s := NewPCMStream(e)
	p := make([]byte, 4*4+3)
	n, err := s.Read(p)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if n != 16 {
		t.Fatalf("Read returned %d bytes, want 16 whole frames", n)
	}
	want := []int16{16383, -16383, 32767, 0}
	for i, w := range want {
		left := int16(binary.LittleEndian.Uint16(p[4*i:]))
		right := int16(binary.LittleEndian.Uint16(p[4*i+2:]))
		if left != w || right != w {
			t.Fatalf("frame %d = (%d, %d), want (%d, %d)", i, left, right, w, w)
		}
	}
	if n, _ := s.Read(make([]byte, 3)); n != 0 {
		t.Fatalf("Read of a partial frame returned %d bytes", n)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
