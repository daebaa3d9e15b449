package waveblender

// planeSpan is a half-open range of z planes [z0, z1).
type planeSpan struct{ z0, z1 int }

// workerMask collects the plane spans assigned to one worker goroutine.
type workerMask struct {
	spans []planeSpan
}

// buildPlaneSpans slices nz planes into chunks sized so every worker gets
// roughly chunksPerWorker pieces of work.
func buildPlaneSpans(nz, workerCount, chunksPerWorker int) []planeSpan {
	if workerCount < 1 {
		workerCount = 1
	}
	if chunksPerWorker < 1 {
		chunksPerWorker = 1
	}
	chunks := workerCount * chunksPerWorker
	size := (nz + chunks - 1) / chunks
	if size < 1 {
		size = 1
	}
	spans := make([]planeSpan, 0, (nz+size-1)/size)
	for z := 0; z < nz; z += size {
		spans = append(spans, planeSpan{z0: z, z1: min(nz, z+size)})
	}
	return spans
}

// assignPlaneMasks distributes plane spans across worker goroutines in round
// robin fashion.
func assignPlaneMasks(workerCount int, spans []planeSpan) []workerMask {
	if workerCount < 1 {
		workerCount = 1
	}
	masks := make([]workerMask, workerCount)
	for idx, sp := range spans {
		workerIdx := idx % workerCount
		masks[workerIdx].spans = append(masks[workerIdx].spans, sp)
	}
	return masks
}
