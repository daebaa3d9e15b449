package waveblender

// waveField stores the co-indexed arrays advanced by the FDTD passes.
// velocity holds one component per axis, sampled on the cell's positive face.
type waveField struct {
	nx, ny, nz int
	pressure   []float32
	velocity   [3][]float32
	beta       []float32
}

// newWaveField allocates a waveField sized to the grid with every array zeroed.
func newWaveField(g Grid) *waveField {
	size := g.Cells()
	return &waveField{
		nx: g.NX, ny: g.NY, nz: g.NZ,
		pressure: make([]float32, size),
		velocity: [3][]float32{
			make([]float32, size),
			make([]float32, size),
			make([]float32, size),
		},
		beta: make([]float32, size),
	}
}

// dims returns the grid extent along each axis.
func (f *waveField) dims() [3]int {
	return [3]int{f.nx, f.ny, f.nz}
}

func (f *waveField) index(x, y, z int) int {
	return x + f.nx*(y+f.ny*z)
}

// readPressure returns the pressure at the given cell.
func (f *waveField) readPressure(x, y, z int) float32 {
	return f.pressure[f.index(x, y, z)]
}

// release drops the arrays so the memory can be reclaimed.
func (f *waveField) release() {
	f.pressure = nil
	f.velocity = [3][]float32{}
	f.beta = nil
}
