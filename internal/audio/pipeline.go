package audio

import (
	"context"
	"sync"
	"time"
)

// Pipeline slices reconstructed samples into 20ms PCM frames and outputs
// them at real-time rate, scaled by the replay speed.
type Pipeline struct {
	sampleCh chan []float32
	frameCh  chan []int16
	interval time.Duration

	closeOnce sync.Once

	mu       sync.RWMutex
	position time.Duration
	frames   int
}

// NewPipeline creates a frame pipeline. speed scales the frame rate the
// same way the replay scales the data point rate; values <= 0 mean 1.
func NewPipeline(speed float64) *Pipeline {
	if speed <= 0 {
		speed = 1
	}
	return &Pipeline{
		sampleCh: make(chan []float32, 64),
		frameCh:  make(chan []int16, 100),
		interval: time.Duration(float64(FrameDuration) / speed),
	}
}

// Frames returns the channel of outgoing PCM frames (20ms each).
func (p *Pipeline) Frames() <-chan []int16 {
	return p.frameCh
}

// Write queues resampled samples for framing. It blocks when the queue is
// full.
func (p *Pipeline) Write(samples []float32) {
	if len(samples) == 0 {
		return
	}
	p.sampleCh <- samples
}

// WriteContext is Write that gives up when ctx is done.
func (p *Pipeline) WriteContext(ctx context.Context, samples []float32) error {
	if len(samples) == 0 {
		return nil
	}
	select {
	case p.sampleCh <- samples:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting samples. Run flushes the whole frames still queued
// and then closes the frame channel.
func (p *Pipeline) Close() {
	p.closeOnce.Do(func() { close(p.sampleCh) })
}

// QueueSize returns the number of sample blocks waiting to be framed.
func (p *Pipeline) QueueSize() int {
	return len(p.sampleCh)
}

// Status returns the media time emitted so far and the frame count.
func (p *Pipeline) Status() (position time.Duration, frames int) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.position, p.frames
}

// Run starts the pipeline. Blocks until ctx is cancelled or Close has been
// called and the queue drained.
func (p *Pipeline) Run(ctx context.Context) {
	defer close(p.frameCh)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	var pending []int16
	for {
		select {
		case <-ctx.Done():
			return
		case samples, ok := <-p.sampleCh:
			if !ok {
				for len(pending) >= FrameSamples {
					var frame []int16
					frame, pending = nextFrame(pending)
					if !p.sendFrame(ctx, ticker, frame) {
						return
					}
				}
				return
			}
			pending = append(pending, FloatToInt16(samples)...)
		case <-ticker.C:
			if len(pending) < FrameSamples {
				continue
			}
			var frame []int16
			frame, pending = nextFrame(pending)
			select {
			case p.frameCh <- frame:
				p.advance()
			case <-ctx.Done():
				return
			}
		}
	}
}

// nextFrame copies the first frame out of pending and compacts the rest.
func nextFrame(pending []int16) ([]int16, []int16) {
	frame := make([]int16, FrameSamples)
	copy(frame, pending)
	n := copy(pending, pending[FrameSamples:])
	return frame, pending[:n]
}

// sendFrame waits for the ticker then sends a frame. Returns false on cancel.
func (p *Pipeline) sendFrame(ctx context.Context, ticker *time.Ticker, frame []int16) bool {
	select {
	case <-ctx.Done():
		return false
	case <-ticker.C:
	}

	select {
	case p.frameCh <- frame:
		p.advance()
		return true
	case <-ctx.Done():
		return false
	}
}

func (p *Pipeline) advance() {
	p.mu.Lock()
	p.frames++
	p.position = time.Duration(p.frames) * FrameDuration
	p.mu.Unlock()
}
