package measurement

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

// maxLineSize bounds a single JSON line. Video access units can be large.
const maxLineSize = 16 << 20

// line is the wire form of one data point in a JSON Lines dump.
type line struct {
	Time     int64  `json:"time"`
	DataType string `json:"data_type"`
	DataName string `json:"data_name"`
	Data     *struct {
		D *string `json:"d"`
	} `json:"data"`
}

// JSONLSource reads data points from a JSON Lines stream, one object per line:
//
//	{"time": 1700000000000000000, "data_type": "...", "data_name": "1/pcm", "data": {"d": "<base64>"}}
//
// Lines without data.d are skipped.
type JSONLSource struct {
	scanner  *bufio.Scanner
	closer   io.Closer
	basetime time.Time
	peeked   *DataPoint
	lineNo   int
}

// JSONLOption configures a JSONLSource.
type JSONLOption func(*JSONLSource)

// WithBasetime fixes the basetime instead of using the first point's time.
func WithBasetime(t time.Time) JSONLOption {
	return func(s *JSONLSource) {
		s.basetime = t
	}
}

// NewJSONLSource reads from r. If r is an io.Closer it is closed by Close.
func NewJSONLSource(r io.Reader, opts ...JSONLOption) *JSONLSource {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 256*1024), maxLineSize)
	s := &JSONLSource{scanner: sc}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OpenJSONL opens a dump file.
func OpenJSONL(path string, opts ...JSONLOption) (*JSONLSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open measurement: %w", err)
	}
	return NewJSONLSource(f, opts...), nil
}

// Basetime returns the configured basetime, or the time of the first data
// point in the stream.
func (s *JSONLSource) Basetime(ctx context.Context) (time.Time, error) {
	if !s.basetime.IsZero() {
		return s.basetime, nil
	}
	if s.peeked == nil {
		p, err := s.read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return time.Time{}, errors.New("measurement is empty")
			}
			return time.Time{}, err
		}
		s.peeked = &p
	}
	s.basetime = time.Unix(0, s.peeked.Time)
	return s.basetime, nil
}

// Next returns the next data point, or io.EOF.
func (s *JSONLSource) Next(ctx context.Context) (DataPoint, error) {
	if err := ctx.Err(); err != nil {
		return DataPoint{}, err
	}
	if s.peeked != nil {
		p := *s.peeked
		s.peeked = nil
		return p, nil
	}
	return s.read()
}

func (s *JSONLSource) read() (DataPoint, error) {
	for s.scanner.Scan() {
		s.lineNo++
		raw := s.scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var l line
		if err := json.Unmarshal(raw, &l); err != nil {
			return DataPoint{}, fmt.Errorf("line %d: %w", s.lineNo, err)
		}
		if l.Data == nil || l.Data.D == nil {
			continue
		}
		data, err := base64.StdEncoding.DecodeString(*l.Data.D)
		if err != nil {
			return DataPoint{}, fmt.Errorf("line %d: decode data: %w", s.lineNo, err)
		}
		return DataPoint{
			Time:     l.Time,
			DataType: l.DataType,
			DataName: l.DataName,
			Data:     data,
		}, nil
	}
	if err := s.scanner.Err(); err != nil {
		return DataPoint{}, fmt.Errorf("read measurement: %w", err)
	}
	return DataPoint{}, io.EOF
}

// Close closes the underlying reader when it is closable.
func (s *JSONLSource) Close() error {
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

// WriteJSONL writes points in the format JSONLSource reads.
func WriteJSONL(w io.Writer, points []DataPoint) error {
	enc := json.NewEncoder(w)
	for _, p := range points {
		d := base64.StdEncoding.EncodeToString(p.Data)
		l := line{Time: p.Time, DataType: p.DataType, DataName: p.DataName}
		l.Data = &struct {
			D *string `json:"d"`
		}{D: &d}
		if err := enc.Encode(l); err != nil {
			return fmt.Errorf("encode data point: %w", err)
		}
	}
	return nil
}
