package waveblender

// stepParams carries the per-step constants shared by every pass.
type stepParams struct {
	pressureCoef float32 // ρ·c²·Δt/Δx
	velocityCoef float32 // Δt/(ρ·Δx)
	wallBeta     float32
	sourceRadius int
	sourceCount  int
	listener     Cell
}

func newStepParams(g Grid, o *options, sourceCount int) stepParams {
	return stepParams{
		pressureCoef: float32(g.Density * g.SpeedOfSound * g.SpeedOfSound * g.TimeStep / g.Spacing),
		velocityCoef: float32(g.TimeStep / (g.Density * g.Spacing)),
		wallBeta:     float32(o.wallBeta),
		sourceRadius: o.sourceRadius,
		sourceCount:  sourceCount,
	}
}

// betaPass recomputes the absorption coefficient of every cell in planes
// [z0, z1): edge cells take the wall beta, cells inside a region take the
// region's beta, everything else is open air.
func betaPass(f *waveField, boxes []cellBox, wallBeta float32, z0, z1 int) {
	lastX, lastY, lastZ := f.nx-1, f.ny-1, f.nz-1
	for z := z0; z < z1; z++ {
		for y := 0; y < f.ny; y++ {
			base := f.index(0, y, z)
			row := f.beta[base : base+f.nx]
			edgeRow := z == 0 || z == lastZ || y == 0 || y == lastY
			for x := range row {
				if edgeRow || x == 0 || x == lastX {
					row[x] = wallBeta
					continue
				}
				b := float32(1)
				for _, box := range boxes {
					if box.contains(x, y, z) {
						b = box.beta
					}
				}
				row[x] = b
			}
		}
	}
}

// pressurePass integrates the velocity divergence into pressure for planes
// [z0, z1) and adds the packed source contributions. Face velocities outside
// the grid are treated as zero.
func pressurePass(f *waveField, p stepParams, positions []int32, props []float32, z0, z1 int) {
	vx, vy, vz := f.velocity[0], f.velocity[1], f.velocity[2]
	sy, sz := f.nx, f.nx*f.ny
	k := p.pressureCoef
	r2 := p.sourceRadius * p.sourceRadius
	for z := z0; z < z1; z++ {
		for y := 0; y < f.ny; y++ {
			base := f.index(0, y, z)
			for x := 0; x < f.nx; x++ {
				i := base + x
				div := vx[i] + vy[i] + vz[i]
				if x > 0 {
					div -= vx[i-1]
				}
				if y > 0 {
					div -= vy[i-sy]
				}
				if z > 0 {
					div -= vz[i-sz]
				}
				next := f.beta[i] * (f.pressure[i] - k*div)
				for s := 0; s < p.sourceCount; s++ {
					value := props[sourceStride*s]
					if value == 0 {
						continue
					}
					dx := x - int(positions[3*s])
					dy := y - int(positions[3*s+1])
					dz := z - int(positions[3*s+2])
					d2 := dx*dx + dy*dy + dz*dz
					if d2 > r2 {
						continue
					}
					next += value * footprintWeight(d2)
				}
				f.pressure[i] = next
			}
		}
	}
}

// velocityPass updates each face velocity from the pressure gradient along its
// axis for planes [z0, z1). The pressure beyond the last cell mirrors the
// edge cell, so the outermost faces stay rigid.
func velocityPass(f *waveField, p stepParams, z0, z1 int) {
	vx, vy, vz := f.velocity[0], f.velocity[1], f.velocity[2]
	pr := f.pressure
	sy, sz := f.nx, f.nx*f.ny
	lastX, lastY, lastZ := f.nx-1, f.ny-1, f.nz-1
	c := p.velocityCoef
	for z := z0; z < z1; z++ {
		for y := 0; y < f.ny; y++ {
			base := f.index(0, y, z)
			for x := 0; x < f.nx; x++ {
				i := base + x
				b := f.beta[i]
				pc := pr[i]
				var gx, gy, gz float32
				if x < lastX {
					gx = pr[i+1] - pc
				}
				if y < lastY {
					gy = pr[i+sy] - pc
				}
				if z < lastZ {
					gz = pr[i+sz] - pc
				}
				vx[i] = b * (vx[i] - c*gx)
				vy[i] = b * (vy[i] - c*gy)
				vz[i] = b * (vz[i] - c*gz)
			}
		}
	}
}

// listenerTap averages the pressure over the listener footprint, skipping
// offsets that fall outside the grid.
func listenerTap(f *waveField, c Cell) float32 {
	var sum float32
	count := 0
	for _, o := range listenerFootprint {
		x, y, z := c.X+o.dx, c.Y+o.dy, c.Z+o.dz
		if x < 0 || x >= f.nx || y < 0 || y >= f.ny || z < 0 || z >= f.nz {
			continue
		}
		sum += f.readPressure(x, y, z)
		count++
	}
	if count == 0 {
		return 0
	}
	return sum / float32(count)
}
