// Package measurement reads recorded telemetry data points.
package measurement

import (
	"context"
	"io"
	"math"
	"time"
)

// Data names carried by a vehicle measurement.
const (
	NamePCM         = "1/pcm"
	NameAAC         = "1/aac"
	NameH264        = "1/h264"
	NameAltitude    = "1/gnss_altitude"
	NameSpeed       = "1/gnss_speed"
	NameCoordinates = "1/gnss_coordinates"
)

// DataPoint is one recorded sample.
type DataPoint struct {
	Time     int64 // absolute, ns since the Unix epoch
	DataType string
	DataName string
	Data     []byte
}

// Elapsed returns the point's offset from basetime in seconds.
func (p DataPoint) Elapsed(basetime time.Time) float64 {
	return float64(p.Time-basetime.UnixNano()) / 1e9
}

// Source yields data points in non-decreasing time order.
// Next returns io.EOF once the stream is exhausted.
type Source interface {
	Basetime(ctx context.Context) (time.Time, error)
	Next(ctx context.Context) (DataPoint, error)
	Close() error
}

// filtered drops points whose data name is not in the allowed set.
type filtered struct {
	Source
	names map[string]struct{}
}

// Filter wraps src so that Next only yields the given data names.
// With no names, src is returned unchanged.
func Filter(src Source, names ...string) Source {
	if len(names) == 0 {
		return src
	}
	f := &filtered{Source: src, names: make(map[string]struct{}, len(names))}
	for _, n := range names {
		f.names[n] = struct{}{}
	}
	return f
}

func (f *filtered) Next(ctx context.Context) (DataPoint, error) {
	for {
		p, err := f.Source.Next(ctx)
		if err != nil {
			return DataPoint{}, err
		}
		if _, ok := f.names[p.DataName]; ok {
			return p, nil
		}
	}
}

// window drops points outside [start, end).
type window struct {
	Source
	start, end int64
}

// Between wraps src so that Next only yields points with start <= t < end.
// A zero start or end leaves that side open. Reading stops at the first
// point at or past end.
func Between(src Source, start, end time.Time) Source {
	if start.IsZero() && end.IsZero() {
		return src
	}
	w := &window{Source: src, start: math.MinInt64, end: math.MaxInt64}
	if !start.IsZero() {
		w.start = start.UnixNano()
	}
	if !end.IsZero() {
		w.end = end.UnixNano()
	}
	return w
}

func (w *window) Next(ctx context.Context) (DataPoint, error) {
	for {
		p, err := w.Source.Next(ctx)
		if err != nil {
			return DataPoint{}, err
		}
		if p.Time >= w.end {
			return DataPoint{}, io.EOF
		}
		if p.Time >= w.start {
			return p, nil
		}
	}
}

// SliceSource serves data points from memory.
type SliceSource struct {
	basetime time.Time
	points   []DataPoint
	pos      int
}

// NewSliceSource returns a Source over points. A zero basetime falls back
// to the time of the first point.
func NewSliceSource(basetime time.Time, points []DataPoint) *SliceSource {
	if basetime.IsZero() && len(points) > 0 {
		basetime = time.Unix(0, points[0].Time)
	}
	return &SliceSource{basetime: basetime, points: points}
}

func (s *SliceSource) Basetime(ctx context.Context) (time.Time, error) {
	return s.basetime, nil
}

func (s *SliceSource) Next(ctx context.Context) (DataPoint, error) {
	if err := ctx.Err(); err != nil {
		return DataPoint{}, err
	}
	if s.pos >= len(s.points) {
		return DataPoint{}, io.EOF
	}
	p := s.points[s.pos]
	s.pos++
	return p, nil
}

func (s *SliceSource) Close() error { return nil }
