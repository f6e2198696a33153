package stream

import (
	"context"
	"errors"
	"sync"

	"github.com/fieldlog/trackexport/internal/audio"
	"github.com/fieldlog/trackexport/internal/subtitle"
)

// ErrSinkClosed is returned when data arrives after Close.
var ErrSinkClosed = errors.New("live sink closed")

// LiveStatus is a snapshot of what the monitor has seen so far.
type LiveStatus struct {
	Cue          subtitle.Segment `json:"cue"`
	HasCue       bool             `json:"has_cue"`
	Segments     int              `json:"segments"`
	AudioSeconds float64          `json:"audio_seconds"`
	VideoFrames  int              `json:"video_frames"`
	AACFrames    int              `json:"aac_frames"`
	Closed       bool             `json:"closed"`
}

// LiveSink feeds reconstructed audio into a frame pipeline for listeners
// and remembers the latest subtitle cue.
type LiveSink struct {
	ctx        context.Context
	pipeline   *audio.Pipeline
	sampleRate int

	mu     sync.RWMutex
	status LiveStatus
}

// NewLiveSink creates a sink writing into pipeline. Audio blocks at
// sampleRate; writes give up once ctx is done.
func NewLiveSink(ctx context.Context, pipeline *audio.Pipeline, sampleRate int) *LiveSink {
	if sampleRate <= 0 {
		sampleRate = audio.SampleRate
	}
	return &LiveSink{ctx: ctx, pipeline: pipeline, sampleRate: sampleRate}
}

func (l *LiveSink) Audio(t float64, samples []float32) error {
	l.mu.RLock()
	closed := l.status.Closed
	l.mu.RUnlock()
	if closed {
		return ErrSinkClosed
	}
	if err := l.pipeline.WriteContext(l.ctx, samples); err != nil {
		return err
	}
	end := t + float64(len(samples))/float64(l.sampleRate)
	l.mu.Lock()
	if end > l.status.AudioSeconds {
		l.status.AudioSeconds = end
	}
	l.mu.Unlock()
	return nil
}

func (l *LiveSink) AAC(float64, []byte) error {
	l.mu.Lock()
	l.status.AACFrames++
	l.mu.Unlock()
	return nil
}

func (l *LiveSink) Video(float64, []byte) error {
	l.mu.Lock()
	l.status.VideoFrames++
	l.mu.Unlock()
	return nil
}

func (l *LiveSink) Segment(seg subtitle.Segment) error {
	l.mu.Lock()
	l.status.Cue, l.status.HasCue = seg, true
	l.status.Segments++
	l.mu.Unlock()
	return nil
}

// Status returns the current snapshot.
func (l *LiveSink) Status() LiveStatus {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.status
}

// Close ends the audio stream. Frames already queued still play out.
func (l *LiveSink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.status.Closed {
		l.status.Closed = true
		l.pipeline.Close()
	}
	return nil
}
