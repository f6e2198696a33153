package writer

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/wav"
)

// ErrClosed is returned when writing to a closed writer.
var ErrClosed = errors.New("writer closed")

// WAVWriter writes mono 16-bit PCM. Samples are streamed into the beep WAV
// encoder as they arrive, so memory stays bounded for long exports.
type WAVWriter struct {
	f      *os.File
	path   string
	format beep.Format

	blocks chan []float32
	done   chan struct{}
	err    error // encoder result, valid after done is closed

	mu      sync.Mutex
	closed  bool
	samples int64
}

// CreateWAV creates a WAV file at path with the given sample rate.
func CreateWAV(path string, sampleRate int) (*WAVWriter, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("wav sample rate %d must be positive", sampleRate)
	}
	f, err := create(path)
	if err != nil {
		return nil, err
	}
	w := &WAVWriter{
		f:    f,
		path: path,
		format: beep.Format{
			SampleRate:  beep.SampleRate(sampleRate),
			NumChannels: 1,
			Precision:   2,
		},
		blocks: make(chan []float32, 32),
		done:   make(chan struct{}),
	}
	go w.encode()
	return w, nil
}

func (w *WAVWriter) encode() {
	defer close(w.done)
	w.err = wav.Encode(w.f, &blockStreamer{blocks: w.blocks}, w.format)
}

// Write queues normalized samples for encoding. Values outside [-1, 1] are
// clipped by the encoder.
func (w *WAVWriter) Write(samples []float32) error {
	if len(samples) == 0 {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	buf := make([]float32, len(samples))
	copy(buf, samples)
	select {
	case w.blocks <- buf:
		w.samples += int64(len(samples))
		return nil
	case <-w.done:
		if w.err != nil {
			return fmt.Errorf("encode wav: %w", w.err)
		}
		return ErrClosed
	}
}

// Samples returns the number of samples accepted so far.
func (w *WAVWriter) Samples() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.samples
}

// SampleRate returns the output rate in Hz.
func (w *WAVWriter) SampleRate() int { return int(w.format.SampleRate) }

// Path returns the output file path.
func (w *WAVWriter) Path() string { return w.path }

// Close finishes the stream, lets the encoder write the header sizes and
// closes the file.
func (w *WAVWriter) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.blocks)
	w.mu.Unlock()

	<-w.done
	cerr := w.f.Close()
	if w.err != nil {
		return fmt.Errorf("encode wav: %w", w.err)
	}
	return cerr
}

// blockStreamer adapts a channel of mono blocks to a beep.Streamer. It blocks
// until samples arrive and ends when the channel is closed.
type blockStreamer struct {
	blocks  <-chan []float32
	pending []float32
}

func (s *blockStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	for n < len(samples) {
		if len(s.pending) == 0 {
			if n > 0 {
				return n, true
			}
			b, more := <-s.blocks
			if !more {
				return 0, false
			}
			s.pending = b
			continue
		}
		v := float64(s.pending[0])
		samples[n] = [2]float64{v, v}
		s.pending = s.pending[1:]
		n++
	}
	return n, true
}

func (s *blockStreamer) Err() error { return nil }
