package subtitle

import (
	"math"
	"testing"
)

const (
	altOnly100 = "Altitude: 100.0 m  Speed: 0.0 km/h"
	altOnly200 = "Altitude: 200.0 m  Speed: 0.0 km/h"
)

func TestAggregatorAltitudeSequence(t *testing.T) {
	a := NewAggregator(DefaultQuantMeters)

	a.UpdateAltitude(100)
	if _, ok := a.Tick(0); ok {
		t.Fatal("Tick(0) closed a segment, want segment opened only")
	}
	a.UpdateAltitude(100)
	if _, ok := a.Tick(1); ok {
		t.Fatal("Tick(1) closed a segment with unchanged text")
	}
	a.UpdateAltitude(200)
	seg, ok := a.Tick(2)
	if !ok {
		t.Fatal("Tick(2) did not close a segment")
	}
	want := Segment{Start: 0, End: 2, Line1: altOnly100}
	if seg != want {
		t.Errorf("Tick(2) = %+v, want %+v", seg, want)
	}

	seg, ok = a.Finalize(5)
	if !ok {
		t.Fatal("Finalize(5) returned no segment")
	}
	want = Segment{Start: 2, End: 5, Line1: altOnly200}
	if seg != want {
		t.Errorf("Finalize(5) = %+v, want %+v", seg, want)
	}

	if _, ok := a.Finalize(6); ok {
		t.Error("second Finalize returned a segment, want none")
	}
}

func TestAggregatorFinalizeWithoutTick(t *testing.T) {
	a := NewAggregator(DefaultQuantMeters)
	a.UpdateAltitude(50)
	if seg, ok := a.Finalize(10); ok {
		t.Errorf("Finalize = %+v, want none before any tick", seg)
	}
}

func TestAggregatorTickAfterFinalizeReopens(t *testing.T) {
	a := NewAggregator(DefaultQuantMeters)
	a.Tick(0)
	a.Finalize(1)
	if _, ok := a.Tick(3); ok {
		t.Fatal("Tick after Finalize closed a segment, want a new one opened")
	}
	seg, ok := a.Finalize(4)
	if !ok || seg.Start != 3 || seg.End != 4 {
		t.Errorf("Finalize = %+v, %v, want [3, 4]", seg, ok)
	}
}

func TestAggregatorSegmentsPartitionTime(t *testing.T) {
	a := NewAggregator(DefaultQuantMeters)
	var segs []Segment
	alts := []float64{10, 10, 11, 11, 11, 12, 10}
	for i, alt := range alts {
		a.UpdateAltitude(alt)
		if seg, ok := a.Tick(float64(i)); ok {
			segs = append(segs, seg)
		}
	}
	if seg, ok := a.Finalize(float64(len(alts))); ok {
		segs = append(segs, seg)
	}

	if len(segs) != 4 {
		t.Fatalf("got %d segments, want 4: %+v", len(segs), segs)
	}
	if segs[0].Start != 0 || segs[len(segs)-1].End != float64(len(alts)) {
		t.Errorf("segments cover [%v, %v], want [0, %d]", segs[0].Start, segs[len(segs)-1].End, len(alts))
	}
	for i := 1; i < len(segs); i++ {
		if segs[i].Start != segs[i-1].End {
			t.Errorf("segment %d starts at %v, want %v", i, segs[i].Start, segs[i-1].End)
		}
		if segs[i].Line1 == segs[i-1].Line1 {
			t.Errorf("segments %d and %d share text %q", i-1, i, segs[i].Line1)
		}
	}
}

func TestLines(t *testing.T) {
	a := NewAggregator(DefaultQuantMeters)

	l1, l2 := a.Lines()
	if l1 != "Altitude: 0.0 m  Speed: 0.0 km/h" {
		t.Errorf("line1 = %q, want zero defaults", l1)
	}
	if l2 != "" {
		t.Errorf("line2 = %q, want empty before any position", l2)
	}

	a.UpdateAltitude(123.456)
	a.UpdateSpeed(42.04)
	a.UpdateLatLon(35.0, 139.0)
	l1, l2 = a.Lines()
	if l1 != "Altitude: 123.5 m  Speed: 42.0 km/h" {
		t.Errorf("line1 = %q", l1)
	}
	if l2 != "Lat: 34.99982  Lon: 138.99964" {
		t.Errorf("line2 = %q, want quantized coordinate", l2)
	}

	a.UpdateAddress("Shibuya, Tokyo")
	if _, l2 = a.Lines(); l2 != "Shibuya, Tokyo" {
		t.Errorf("line2 = %q, want address", l2)
	}
}

func TestAddressChangeClosesSegment(t *testing.T) {
	a := NewAggregator(DefaultQuantMeters)
	a.UpdateAltitude(10)
	a.UpdateLatLon(35.0, 139.0)
	a.Tick(0)

	a.UpdateAddress("Somewhere")
	seg, ok := a.Tick(1)
	if !ok {
		t.Fatal("Tick did not close segment after address change")
	}
	if seg.Line2 != "Lat: 34.99982  Lon: 138.99964" {
		t.Errorf("closed Line2 = %q", seg.Line2)
	}
	seg, _ = a.Finalize(2)
	if seg.Line2 != "Somewhere" {
		t.Errorf("final Line2 = %q, want Somewhere", seg.Line2)
	}
}

func TestUpdateLatLonSameCellKeepsAddress(t *testing.T) {
	a := NewAggregator(100)

	changed, _, _ := a.UpdateLatLon(35.0, 139.0)
	if !changed {
		t.Fatal("first UpdateLatLon changed = false, want true")
	}
	a.UpdateAddress("Tokyo")

	// About 20 m west, same cell.
	changed, _, _ = a.UpdateLatLon(35.0, 138.99978067290894)
	if changed {
		t.Error("UpdateLatLon in same cell changed = true, want false")
	}
	if a.Address() != "Tokyo" {
		t.Errorf("Address = %q, want Tokyo kept", a.Address())
	}

	// About 200 m east, new cell.
	changed, _, _ = a.UpdateLatLon(35.0, 139.00219327091045)
	if !changed {
		t.Error("UpdateLatLon to new cell changed = false, want true")
	}
	if a.Address() != "" {
		t.Errorf("Address = %q, want cleared on cell change", a.Address())
	}
}

func TestQuantize(t *testing.T) {
	latQ, lonQ := Quantize(35.0, 139.0, 100)
	if math.Abs(latQ-34.999820033833636) > 1e-9 {
		t.Errorf("latQ = %v, want 34.999820033833636", latQ)
	}
	if math.Abs(lonQ-138.9996405857917) > 1e-9 {
		t.Errorf("lonQ = %v, want 138.9996405857917", lonQ)
	}

	tests := []struct {
		name     string
		lat, lon float64
		sameCell bool
	}{
		{"20m west", 35.0, 138.99978067290894, true},
		{"18m west", 35.0, 138.9998, true},
		{"200m east", 35.0, 139.00219327091045, false},
		{"33m north", 35.0003, 139.0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotLat, gotLon := Quantize(tt.lat, tt.lon, 100)
			same := math.Abs(gotLat-latQ) < 1e-12 && math.Abs(gotLon-lonQ) < 1e-12
			if same != tt.sameCell {
				t.Errorf("Quantize(%v, %v) = (%v, %v), same cell = %v, want %v",
					tt.lat, tt.lon, gotLat, gotLon, same, tt.sameCell)
			}
		})
	}
}

func TestQuantizeDisabled(t *testing.T) {
	for _, m := range []float64{0, -5} {
		lat, lon := Quantize(35.123456, 139.654321, m)
		if lat != 35.123456 || lon != 139.654321 {
			t.Errorf("Quantize(meters=%v) = (%v, %v), want passthrough", m, lat, lon)
		}
	}
}

func TestQuantizeAtPole(t *testing.T) {
	lat, lon := Quantize(90, 10, 100)
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lon, 0) {
		t.Errorf("Quantize at pole = (%v, %v), want finite", lat, lon)
	}
}

func TestSegmentDuration(t *testing.T) {
	s := Segment{Start: 1.5, End: 4}
	if s.Duration() != 2.5 {
		t.Errorf("Duration = %v, want 2.5", s.Duration())
	}
}
