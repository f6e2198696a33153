package measurement

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"
)

const dump = `{"time": 1700000000000000000, "data_type": "float", "data_name": "1/gnss_altitude", "data": {"d": "QFkAAAAAAAA="}}
{"time": 1700000000500000000, "data_type": "string", "data_name": "1/meta", "data": {}}

{"time": 1700000001000000000, "data_type": "pcm", "data_name": "1/pcm", "data": {"d": "AEAAwA=="}}
{"time": 1700000002000000000, "data_type": "float", "data_name": "1/gnss_speed", "data": {"d": "QEUAAAAAAAA="}}
`

func readAll(t *testing.T, src Source) []DataPoint {
	t.Helper()
	var out []DataPoint
	for {
		p, err := src.Next(context.Background())
		if errors.Is(err, io.EOF) {
			return out
		}
		if err != nil {
			t.Fatalf("Next error: %v", err)
		}
		out = append(out, p)
	}
}

func TestJSONLSourceReadsPoints(t *testing.T) {
	src := NewJSONLSource(strings.NewReader(dump))
	points := readAll(t, src)

	if len(points) != 3 {
		t.Fatalf("got %d points, want 3 (line without data.d skipped)", len(points))
	}
	if points[0].DataName != NameAltitude {
		t.Errorf("points[0].DataName = %q, want %q", points[0].DataName, NameAltitude)
	}
	if alt, ok := Float64BE(points[0].Data); !ok || alt != 100 {
		t.Errorf("altitude = %v, %v, want 100", alt, ok)
	}
	if !bytes.Equal(points[1].Data, []byte{0x00, 0x40, 0x00, 0xc0}) {
		t.Errorf("pcm data = %x, want 004000c0", points[1].Data)
	}
	if spd, _ := Float64BE(points[2].Data); spd != 42 {
		t.Errorf("speed = %v, want 42", spd)
	}
	if points[2].Time != 1700000002000000000 {
		t.Errorf("Time = %d, want 1700000002000000000", points[2].Time)
	}
}

func TestJSONLSourceBasetimeFromFirstPoint(t *testing.T) {
	src := NewJSONLSource(strings.NewReader(dump))
	bt, err := src.Basetime(context.Background())
	if err != nil {
		t.Fatalf("Basetime error: %v", err)
	}
	if bt.UnixNano() != 1700000000000000000 {
		t.Errorf("Basetime = %d, want first point time", bt.UnixNano())
	}
	// Peeking for the basetime must not consume the first point.
	if points := readAll(t, src); len(points) != 3 {
		t.Errorf("got %d points after Basetime, want 3", len(points))
	}
}

func TestJSONLSourceExplicitBasetime(t *testing.T) {
	want := time.Unix(1699999999, 0)
	src := NewJSONLSource(strings.NewReader(dump), WithBasetime(want))
	bt, err := src.Basetime(context.Background())
	if err != nil {
		t.Fatalf("Basetime error: %v", err)
	}
	if !bt.Equal(want) {
		t.Errorf("Basetime = %v, want %v", bt, want)
	}
	p, _ := src.Next(context.Background())
	if got := p.Elapsed(bt); got != 1 {
		t.Errorf("Elapsed = %v, want 1", got)
	}
}

func TestJSONLSourceEmpty(t *testing.T) {
	src := NewJSONLSource(strings.NewReader(""))
	if _, err := src.Basetime(context.Background()); err == nil {
		t.Error("Basetime on empty stream returned nil error")
	}
	if _, err := src.Next(context.Background()); !errors.Is(err, io.EOF) {
		t.Errorf("Next error = %v, want io.EOF", err)
	}
}

func TestJSONLSourceBadLine(t *testing.T) {
	src := NewJSONLSource(strings.NewReader("{not json}\n"))
	_, err := src.Next(context.Background())
	if err == nil || !strings.Contains(err.Error(), "line 1") {
		t.Errorf("Next error = %v, want error naming line 1", err)
	}
}

func TestJSONLSourceCancelled(t *testing.T) {
	src := NewJSONLSource(strings.NewReader(dump))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := src.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Next error = %v, want context.Canceled", err)
	}
}

func TestWriteJSONLRoundTrip(t *testing.T) {
	in := []DataPoint{
		{Time: 10, DataType: "h264_frame", DataName: NameH264, Data: []byte{0, 0, 0, 1, 0x65}},
		{Time: 20, DataType: "float", DataName: NameCoordinates, Data: PutLatLonBE(35.5, 139.25)},
	}
	var buf bytes.Buffer
	if err := WriteJSONL(&buf, in); err != nil {
		t.Fatalf("WriteJSONL error: %v", err)
	}
	out := readAll(t, NewJSONLSource(&buf))
	if len(out) != len(in) {
		t.Fatalf("got %d points, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i].Time != in[i].Time || out[i].DataName != in[i].DataName || !bytes.Equal(out[i].Data, in[i].Data) {
			t.Errorf("point %d = %+v, want %+v", i, out[i], in[i])
		}
	}
}

func TestFilter(t *testing.T) {
	src := Filter(NewJSONLSource(strings.NewReader(dump)), NamePCM, NameSpeed)
	points := readAll(t, src)
	if len(points) != 2 {
		t.Fatalf("got %d points, want 2", len(points))
	}
	if points[0].DataName != NamePCM || points[1].DataName != NameSpeed {
		t.Errorf("names = %q, %q", points[0].DataName, points[1].DataName)
	}

	plain := NewSliceSource(time.Time{}, nil)
	if Filter(plain) != Source(plain) {
		t.Error("Filter with no names should return the source unchanged")
	}
}

func TestDecodeShortPayloads(t *testing.T) {
	if _, ok := Float64BE([]byte{1, 2, 3}); ok {
		t.Error("Float64BE(3 bytes) ok = true, want false")
	}
	if _, _, ok := LatLonBE(make([]byte, 15)); ok {
		t.Error("LatLonBE(15 bytes) ok = true, want false")
	}
	lat, lon, ok := LatLonBE(PutLatLonBE(-33.5, 151.25))
	if !ok || lat != -33.5 || lon != 151.25 {
		t.Errorf("LatLonBE = %v, %v, %v, want -33.5, 151.25", lat, lon, ok)
	}
	// Trailing bytes are ignored.
	v, ok := Float64BE(append(PutFloat64BE(12.5), 0xff))
	if !ok || v != 12.5 {
		t.Errorf("Float64BE = %v, %v, want 12.5", v, ok)
	}
}

func TestSliceSource(t *testing.T) {
	src := NewSliceSource(time.Time{}, []DataPoint{{Time: 5e9}, {Time: 6e9}})
	bt, _ := src.Basetime(context.Background())
	if bt.UnixNano() != 5e9 {
		t.Errorf("Basetime = %d, want 5e9", bt.UnixNano())
	}
	if points := readAll(t, src); len(points) != 2 {
		t.Errorf("got %d points, want 2", len(points))
	}
}

func TestBetween(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	var pts []DataPoint
	for i := 0; i < 6; i++ {
		pts = append(pts, DataPoint{Time: base.Add(time.Duration(i) * time.Second).UnixNano(), DataName: NameSpeed})
	}

	tests := []struct {
		name       string
		start, end time.Time
		want       int
	}{
		{"open", time.Time{}, time.Time{}, 6},
		{"start only", base.Add(2 * time.Second), time.Time{}, 4},
		{"end only", time.Time{}, base.Add(2 * time.Second), 2},
		{"both", base.Add(time.Second), base.Add(4 * time.Second), 3},
		{"empty", base.Add(10 * time.Second), time.Time{}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := readAll(t, Between(NewSliceSource(base, pts), tt.start, tt.end))
			if len(got) != tt.want {
				t.Errorf("got %d points, want %d", len(got), tt.want)
			}
		})
	}
}
