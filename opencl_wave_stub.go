//go:build !opencl

package waveblender

func newOpenCLDevice(Grid, []cellBox, int, int) (computeDevice, error) {
	return nil, backendUnavailable(nil)
}
