package waveblender

import (
	"runtime"
	"sync"
)

// chunksPerWorker controls how finely the planes are split for load balance.
const chunksPerWorker = 2

// passFunc applies one FDTD pass to the planes [z0, z1).
type passFunc func(z0, z1 int)

// workerPool runs passes over the grid on persistent goroutines. Each run
// hands every worker its plane masks and blocks until all of them finish.
type workerPool struct {
	mu      sync.Mutex
	cond    *sync.Cond
	masks   []workerMask
	step    int
	pending int
	pass    passFunc
	closed  bool
	done    sync.WaitGroup
}

// newWorkerPool starts count workers (GOMAXPROCS when count is zero) sharing
// the nz planes of the grid.
func newWorkerPool(count, nz int) *workerPool {
	if count <= 0 {
		count = runtime.GOMAXPROCS(0)
	}
	if count > nz {
		count = nz
	}
	if count < 1 {
		count = 1
	}
	p := &workerPool{
		masks: assignPlaneMasks(count, buildPlaneSpans(nz, count, chunksPerWorker)),
	}
	p.cond = sync.NewCond(&p.mu)
	p.done.Add(count)
	for i := 0; i < count; i++ {
		go p.workerLoop(i)
	}
	return p
}

// size reports the number of worker goroutines.
func (p *workerPool) size() int {
	return len(p.masks)
}

// run executes pass across all workers and waits for completion.
func (p *workerPool) run(pass passFunc) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.pass = pass
	p.pending = len(p.masks)
	p.step++
	p.cond.Broadcast()
	for p.pending > 0 {
		p.cond.Wait()
	}
	p.pass = nil
	p.mu.Unlock()
}

// workerLoop executes passes for the planes assigned to the worker.
func (p *workerPool) workerLoop(index int) {
	defer p.done.Done()
	lastStep := 0
	p.mu.Lock()
	for {
		for p.step == lastStep && !p.closed {
			p.cond.Wait()
		}
		if p.closed {
			p.mu.Unlock()
			return
		}
		lastStep = p.step
		mask := p.masks[index]
		pass := p.pass
		p.mu.Unlock()

		for _, sp := range mask.spans {
			pass(sp.z0, sp.z1)
		}

		p.mu.Lock()
		p.pending--
		if p.pending == 0 {
			p.cond.Broadcast()
		}
	}
}

// close stops every worker and waits for them to exit. It is safe to call
// more than once.
func (p *workerPool) close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()
	p.done.Wait()
}
