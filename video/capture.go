package video

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// CapturePipeline paces an injected VideoCaptureSource at a fixed FPS,
// deriving a 90 kHz RTP clock from elapsed wall time and feeding each
// captured surface through an EncoderAdapter.
//
// Ticks that arrive while the previous Capture/Encode is still running
// are dropped by time.Ticker's own single-slot channel buffering, which
// is exactly the "drop rather than queue" policy this pipeline needs.
type CapturePipeline struct {
	newSource func() (VideoCaptureSource, error)
	encoder   *EncoderAdapter
	fps       int

	// OnAccessUnit is invoked with one encoded Annex-B access unit and
	// its 90 kHz RTP timestamp, on the pipeline's own goroutine.
	OnAccessUnit func(annexB []byte, timestamp90k uint32)
	// OnSessionEnd is invoked once, from the pipeline goroutine, if the
	// capture source reports its window was destroyed.
	OnSessionEnd func()

	source VideoCaptureSource

	running atomic.Bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
}

// NewCapturePipeline constructs a pipeline. newSource is called once at
// Start and again whenever the source reports ErrAccessLost.
func NewCapturePipeline(newSource func() (VideoCaptureSource, error), encoder *EncoderAdapter, fps int) *CapturePipeline {
	if fps <= 0 {
		fps = 30
	}
	return &CapturePipeline{newSource: newSource, encoder: encoder, fps: fps}
}

// Start opens the capture source and begins the pacing loop.
func (p *CapturePipeline) Start() error {
	if !p.running.CompareAndSwap(false, true) {
		return nil
	}
	source, err := p.newSource()
	if err != nil {
		p.running.Store(false)
		return err
	}
	p.source = source
	p.stopCh = make(chan struct{})

	p.wg.Add(1)
	go p.run()
	return nil
}

// Stop terminates the pacing loop and closes the capture source.
func (p *CapturePipeline) Stop() error {
	if !p.running.CompareAndSwap(true, false) {
		return nil
	}
	close(p.stopCh)
	p.wg.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.source != nil {
		return p.source.Close()
	}
	return nil
}

func (p *CapturePipeline) run() {
	defer p.wg.Done()

	interval := time.Second / time.Duration(p.fps)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	start := time.Now()
	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			if !p.tick(start) {
				return
			}
		}
	}
}

// tick runs one capture/encode cycle; it returns false if the pipeline
// should terminate (window destroyed).
func (p *CapturePipeline) tick(start time.Time) bool {
	p.mu.Lock()
	source := p.source
	p.mu.Unlock()
	if source == nil {
		return true
	}

	surface, err := source.Capture()
	if err != nil {
		return p.handleCaptureError(err)
	}

	elapsedUs := time.Since(start).Microseconds()
	timestamp := uint32(elapsedUs * 90 / 1000)

	annexB, err := p.encoder.Encode(surface)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "CapturePipeline.tick",
			"error":    err.Error(),
		}).Warn("H.264 encode failed, dropping frame")
		return true
	}
	if p.OnAccessUnit != nil {
		p.OnAccessUnit(annexB, timestamp)
	}
	return true
}

func (p *CapturePipeline) handleCaptureError(err error) bool {
	switch {
	case errors.Is(err, ErrWindowDestroyed):
		logrus.WithFields(logrus.Fields{
			"function": "CapturePipeline.handleCaptureError",
		}).Info("capture window destroyed, ending video session")
		if p.OnSessionEnd != nil {
			p.OnSessionEnd()
		}
		return false
	case errors.Is(err, ErrAccessLost):
		logrus.WithFields(logrus.Fields{
			"function": "CapturePipeline.handleCaptureError",
		}).Warn("capture access lost, recreating source")
		p.recreateSource()
		return true
	default:
		logrus.WithFields(logrus.Fields{
			"function": "CapturePipeline.handleCaptureError",
			"error":    err.Error(),
		}).Warn("capture failed, dropping frame")
		return true
	}
}

func (p *CapturePipeline) recreateSource() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.source != nil {
		_ = p.source.Close()
	}
	source, err := p.newSource()
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "CapturePipeline.recreateSource",
			"error":    err.Error(),
		}).Error("failed to recreate capture source")
		p.source = nil
		return
	}
	p.source = source
}
