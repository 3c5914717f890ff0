package audio

import "sync"

// CaptureGate sits between a microphone capture source and a live session.
// Each raw float block is measured for the UI volume meter, then converted to
// an s16le base64 frame and handed to the sink. While input is muted the
// block is dropped before conversion: not sent, not buffered.
type CaptureGate struct {
	mu    sync.Mutex
	muted bool
	sink  func(base64PCM string) error
}

// NewCaptureGate wires a gate to a transmission sink.
func NewCaptureGate(sink func(base64PCM string) error) *CaptureGate {
	return &CaptureGate{sink: sink}
}

// SetMuted toggles input muting.
func (g *CaptureGate) SetMuted(muted bool) {
	g.mu.Lock()
	g.muted = muted
	g.mu.Unlock()
}

// Muted reports the current mute state.
func (g *CaptureGate) Muted() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.muted
}

// Process handles one capture block. The level estimate is computed for
// every block so the meter stays live even while muted; sent reports whether
// the block was transmitted.
func (g *CaptureGate) Process(block []float32) (level float64, sent bool, err error) {
	level = Level(block)
	if g.Muted() {
		return level, false, nil
	}
	if err := g.sink(EncodeBase64PCM(block)); err != nil {
		return level, false, err
	}
	return level, true, nil
}
