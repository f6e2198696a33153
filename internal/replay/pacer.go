// Package replay releases recorded data points at (a multiple of) their
// original pace.
package replay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fieldlog/trackexport/internal/measurement"
)

// ErrInvalidSpeed is returned for a non-positive replay speed.
var ErrInvalidSpeed = errors.New("replay speed must be positive")

// DefaultQueueSize bounds how far the reader may run ahead of playback.
const DefaultQueueSize = 1000

type item struct {
	p   measurement.DataPoint
	err error
}

// Pacer wraps a Source. A feeder goroutine reads ahead into a bounded queue
// and Next hands each point out once (t - basetime)/speed has elapsed since
// playback started. Pacer itself implements measurement.Source.
type Pacer struct {
	src   measurement.Source
	speed float64
	size  int
	log   *zap.SugaredLogger

	once     sync.Once
	queue    chan item
	cancel   context.CancelFunc
	feedDone chan struct{}
	basetime time.Time
	start    time.Time
	startErr error

	mu       sync.Mutex
	released int
	position time.Duration
}

// Option configures a Pacer.
type Option func(*Pacer)

// WithQueueSize sets the read-ahead queue length.
func WithQueueSize(n int) Option {
	return func(p *Pacer) {
		if n > 0 {
			p.size = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(p *Pacer) { p.log = log }
}

// NewPacer creates a Pacer replaying src at speed times real time.
func NewPacer(src measurement.Source, speed float64, opts ...Option) (*Pacer, error) {
	if !(speed > 0) {
		return nil, fmt.Errorf("speed %v: %w", speed, ErrInvalidSpeed)
	}
	p := &Pacer{
		src:   src,
		speed: speed,
		size:  DefaultQueueSize,
		log:   zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.queue = make(chan item, p.size)
	p.feedDone = make(chan struct{})
	return p, nil
}

// Basetime returns the basetime of the wrapped source.
func (p *Pacer) Basetime(ctx context.Context) (time.Time, error) {
	p.init(ctx)
	return p.basetime, p.startErr
}

func (p *Pacer) init(ctx context.Context) {
	p.once.Do(func() {
		p.basetime, p.startErr = p.src.Basetime(ctx)
		if p.startErr != nil {
			return
		}
		fctx, cancel := context.WithCancel(context.Background())
		p.cancel = cancel
		p.start = time.Now()
		go p.feed(fctx)
	})
}

func (p *Pacer) feed(ctx context.Context) {
	defer close(p.feedDone)
	n := 0
	for {
		dp, err := p.src.Next(ctx)
		select {
		case p.queue <- item{p: dp, err: err}:
		case <-ctx.Done():
			return
		}
		if err != nil {
			p.log.Debugw("replay feeder stopped", "points", n, "error", err)
			return
		}
		n++
	}
}

// Next waits until the next point is due and returns it. It returns io.EOF
// after the last point.
func (p *Pacer) Next(ctx context.Context) (measurement.DataPoint, error) {
	p.init(ctx)
	if p.startErr != nil {
		return measurement.DataPoint{}, p.startErr
	}

	var it item
	select {
	case it = <-p.queue:
	case <-ctx.Done():
		return measurement.DataPoint{}, ctx.Err()
	}
	if it.err != nil {
		// Keep returning the terminal error on later calls.
		select {
		case p.queue <- it:
		default:
		}
		return measurement.DataPoint{}, it.err
	}

	elapsed := time.Duration(it.p.Time - p.basetime.UnixNano())
	due := p.start.Add(time.Duration(float64(elapsed) / p.speed))
	if wait := time.Until(due); wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return measurement.DataPoint{}, ctx.Err()
		}
	}

	p.mu.Lock()
	p.released++
	if elapsed > p.position {
		p.position = elapsed
	}
	p.mu.Unlock()
	return it.p, nil
}

// Status returns how many points have been released and the media
// position of the latest one.
func (p *Pacer) Status() (released int, position time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.released, p.position
}

// QueueLen returns the number of points read ahead.
func (p *Pacer) QueueLen() int { return len(p.queue) }

// Speed returns the replay speed.
func (p *Pacer) Speed() float64 { return p.speed }

// Close stops the feeder and closes the wrapped source.
func (p *Pacer) Close() error {
	if p.cancel != nil {
		p.cancel()
		<-p.feedDone
	}
	return p.src.Close()
}
