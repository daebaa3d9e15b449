package waveblender

type gridOffset struct {
	dx, dy, dz int
}

// listenerFootprint is the listener cell plus its 6-neighbourhood.
var listenerFootprint = precomputeFootprint(1)

// precomputeFootprint lists the cell offsets within a sphere of the given
// radius, centre first.
func precomputeFootprint(radius int) []gridOffset {
	size := 2*radius + 1
	footprint := make([]gridOffset, 0, size*size*size)
	footprint = append(footprint, gridOffset{})
	r2 := radius * radius
	for z := -radius; z <= radius; z++ {
		for y := -radius; y <= radius; y++ {
			for x := -radius; x <= radius; x++ {
				d2 := x*x + y*y + z*z
				if d2 == 0 || d2 > r2 {
					continue
				}
				footprint = append(footprint, gridOffset{dx: x, dy: y, dz: z})
			}
		}
	}
	return footprint
}

// footprintWeight is the injection weight of a cell d2 squared cells away
// from a source's mapped cell.
func footprintWeight(d2 int) float32 {
	return 1 / (1 + float32(d2))
}
