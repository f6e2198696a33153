package audio

import (
	"errors"
	"fmt"
	"math"
)

// gridEpsilon keeps float truncation from dropping a grid instant that is due.
const gridEpsilon = 1e-12

// ErrInvalidRate is returned when a sample rate is zero or negative.
var ErrInvalidRate = errors.New("sample rate must be positive")

// Resampler turns irregular, timestamped blocks of mono samples into a
// uniform grid at the output rate. Gaps between blocks are filled with
// silence and samples inside a block are linearly interpolated.
//
// Blocks must be pushed in non-decreasing t0 order. Out-of-order or
// overlapping blocks are not corrected and produce undefined output.
// A Resampler is not safe for concurrent use.
type Resampler struct {
	srOut float64 // output sample rate
	fsIn  float64 // nominal input sample rate

	dstNextTime float64 // next output instant not yet emitted (seconds)
	outStart    float64 // first instant emitted by the latest PushBlock

	lastT   float64 // time of the last consumed input sample
	lastX   float32 // value of the last consumed input sample
	hasLast bool

	invSrOut float64
	invFsIn  float64
}

// ResamplerOption configures a Resampler.
type ResamplerOption func(*Resampler)

// WithInputRate sets the nominal input rate. Defaults to the output rate.
func WithInputRate(fsIn float64) ResamplerOption {
	return func(r *Resampler) {
		r.fsIn = fsIn
	}
}

// NewResampler creates a Resampler emitting srOut samples per second.
func NewResampler(srOut float64, opts ...ResamplerOption) (*Resampler, error) {
	if !(srOut > 0) || math.IsInf(srOut, 0) {
		return nil, fmt.Errorf("output rate %v: %w", srOut, ErrInvalidRate)
	}
	r := &Resampler{srOut: srOut, fsIn: srOut}
	for _, opt := range opts {
		opt(r)
	}
	if !(r.fsIn > 0) || math.IsInf(r.fsIn, 0) {
		return nil, fmt.Errorf("input rate %v: %w", r.fsIn, ErrInvalidRate)
	}
	r.invSrOut = 1 / r.srOut
	r.invFsIn = 1 / r.fsIn
	return r, nil
}

// OutputRate returns the output sample rate in Hz.
func (r *Resampler) OutputRate() float64 { return r.srOut }

// InputRate returns the nominal input sample rate in Hz.
func (r *Resampler) InputRate() float64 { return r.fsIn }

// NextTime returns the next output instant that has not been emitted yet.
func (r *Resampler) NextTime() float64 { return r.dstNextTime }

// OutputStart returns the time of the first sample returned by the latest
// PushBlock. It is meaningless when that call returned nothing.
func (r *Resampler) OutputStart() float64 { return r.outStart }

// PushBlock consumes a block whose first sample sits at t0 seconds and
// returns the output samples that became due, in time order: silence for
// any gap since the previous block, then the interpolated block. The
// result may be empty.
func (r *Resampler) PushBlock(t0 float64, samples []float32) []float32 {
	n := len(samples)
	if n == 0 {
		return []float32{}
	}

	blkStart := t0
	blkEnd := blkStart + float64(n)*r.invFsIn

	var out []float32

	// The first block anchors the output grid.
	if !r.hasLast {
		r.dstNextTime = blkStart
	}
	r.outStart = r.dstNextTime

	// Silence for the gap between the previous output and this block.
	if r.hasLast && r.dstNextTime < blkStart {
		if gap := r.gridCount(r.dstNextTime, blkStart); gap > 0 {
			out = make([]float32, gap, gap+r.gridCount(blkStart, blkEnd)+1)
			last := r.dstNextTime + float64(gap-1)*r.invSrOut
			r.dstNextTime = last + r.invSrOut
		}
	}

	// Source axis at fsIn spacing, with the previous block's last sample
	// prepended as a continuity anchor.
	anchored := r.hasLast && r.lastT <= blkStart
	srcStart := blkStart
	if anchored {
		srcStart = r.lastT
	}

	first := math.Max(r.dstNextTime, srcStart)
	count := r.gridCount(first, blkEnd)
	if count > 0 {
		if out == nil {
			r.outStart = first
			out = make([]float32, 0, count)
		}
		for i := 0; i < count; i++ {
			t := first + float64(i)*r.invSrOut
			out = append(out, r.interpolate(t, blkStart, samples, anchored))
		}
		last := first + float64(count-1)*r.invSrOut
		r.dstNextTime = last + r.invSrOut
	}

	r.lastT = blkStart + float64(n-1)*r.invFsIn
	r.lastX = samples[n-1]
	r.hasLast = true

	if out == nil {
		return []float32{}
	}
	return out
}

// gridCount returns how many output instants spaced 1/srOut fit in
// [start, end).
func (r *Resampler) gridCount(start, end float64) int {
	if end <= start {
		return 0
	}
	n := int(math.Floor((end-start)*r.srOut + gridEpsilon))
	if n < 0 {
		return 0
	}
	return n
}

// interpolate evaluates the piecewise-linear signal through the source
// points at time t. Values before the first point or after the last point
// are held constant.
func (r *Resampler) interpolate(t, blkStart float64, samples []float32, anchored bool) float32 {
	n := len(samples)
	pos := (t - blkStart) * r.fsIn

	if pos < 0 {
		if !anchored {
			return samples[0]
		}
		if t <= r.lastT {
			return r.lastX
		}
		// Between the anchor and the first sample of the block.
		return lerp(r.lastX, samples[0], (t-r.lastT)/(blkStart-r.lastT))
	}

	idx := int(pos)
	if idx >= n-1 {
		return samples[n-1]
	}
	frac := pos - float64(idx)
	return lerp(samples[idx], samples[idx+1], frac)
}

func lerp(a, b float32, frac float64) float32 {
	return float32(float64(a) + (float64(b)-float64(a))*frac)
}
