package waveblender

import (
	"errors"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// ExtractStats counts extraction cycles since Initialize.
type ExtractStats struct {
	Issued    uint64 // requests handed to the device
	Completed uint64 // frames published
	Failed    uint64 // readbacks abandoned after an error
	Skipped   uint64 // cycles dropped because a transfer was still in flight
}

// extractor issues audio readbacks on a fixed step cadence and publishes the
// completed frames. At most one readback is in flight at any time.
type extractor struct {
	device   computeDevice
	exchange *frameExchange
	every    int
	logger   logrus.FieldLogger

	sinceLast int
	pending   atomic.Bool

	issued    atomic.Uint64
	completed atomic.Uint64
	failed    atomic.Uint64
	skipped   atomic.Uint64
}

func newExtractor(dev computeDevice, exchange *frameExchange, every int, logger logrus.FieldLogger) *extractor {
	return &extractor{
		device:   dev,
		exchange: exchange,
		every:    every,
		logger:   logger,
	}
}

// afterStep advances the cadence counter and issues an extraction every
// e.every steps.
func (e *extractor) afterStep() {
	e.sinceLast++
	if e.sinceLast < e.every {
		return
	}
	e.sinceLast = 0
	e.issue()
}

// issue requests a frame from the device unless one is already in flight.
func (e *extractor) issue() {
	if !e.pending.CompareAndSwap(false, true) {
		e.skipped.Add(1)
		return
	}
	e.issued.Add(1)
	if err := e.device.ReadAudio(e.exchange.backBuffer(), e.complete); err != nil {
		e.fail(err)
		e.pending.Store(false)
	}
}

// complete runs on the device side once a readback finished. Clearing the
// pending flag last hands the back buffer back to the simulation loop.
func (e *extractor) complete(err error) {
	if err != nil {
		e.fail(err)
	} else {
		e.exchange.publish()
		e.completed.Add(1)
	}
	e.pending.Store(false)
}

func (e *extractor) fail(err error) {
	e.failed.Add(1)
	var rb *ReadbackError
	if !errors.As(err, &rb) {
		err = &ReadbackError{Err: err}
	}
	e.logger.WithError(err).Warn("Skipping audio extraction cycle")
}

func (e *extractor) inFlight() bool {
	return e.pending.Load()
}

func (e *extractor) stats() ExtractStats {
	return ExtractStats{
		Issued:    e.issued.Load(),
		Completed: e.completed.Load(),
		Failed:    e.failed.Load(),
		Skipped:   e.skipped.Load(),
	}
}
