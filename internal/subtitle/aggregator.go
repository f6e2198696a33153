// Package subtitle turns GNSS telemetry updates into timed subtitle cues.
package subtitle

import (
	"fmt"
	"math"
)

const (
	metersPerDegLat = 111132.0
	metersPerDegLon = 111320.0

	// DefaultQuantMeters is the coordinate cell size used when none is configured.
	DefaultQuantMeters = 100.0
)

// Segment is one closed interval during which the displayed text was constant.
// Line2 is empty when there is no second line.
type Segment struct {
	Start float64 `json:"start"` // seconds, basetime relative
	End   float64 `json:"end"`
	Line1 string  `json:"line1"`
	Line2 string  `json:"line2"`
}

// Duration returns End - Start in seconds.
func (s Segment) Duration() float64 { return s.End - s.Start }

type cell struct {
	lat, lon float64
}

// Aggregator keeps the latest altitude, speed, position and address and
// closes a Segment every time the composed two-line text changes.
// It is not safe for concurrent use.
type Aggregator struct {
	quantMeters float64

	alt    float64
	hasAlt bool
	spd    float64
	hasSpd bool

	latQ, lonQ float64
	hasLatLon  bool
	lastCell   cell
	hasCell    bool

	addr string

	open     bool
	segStart float64
	curLine1 string
	curLine2 string
}

// NewAggregator creates an Aggregator snapping coordinates to cells of
// quantMeters. A non-positive size disables quantization.
func NewAggregator(quantMeters float64) *Aggregator {
	return &Aggregator{quantMeters: quantMeters}
}

// QuantMeters returns the configured cell size.
func (a *Aggregator) QuantMeters() float64 { return a.quantMeters }

// UpdateAltitude records the latest altitude in meters.
func (a *Aggregator) UpdateAltitude(meters float64) {
	a.alt = meters
	a.hasAlt = true
}

// UpdateSpeed records the latest speed in km/h.
func (a *Aggregator) UpdateSpeed(kmh float64) {
	a.spd = kmh
	a.hasSpd = true
}

// UpdateLatLon records a position. It reports whether the quantized cell
// differs from the previous one, along with the cell coordinates. A cell
// change clears the cached address so the caller can look up a new one.
func (a *Aggregator) UpdateLatLon(lat, lon float64) (changed bool, latQ, lonQ float64) {
	latQ, lonQ = Quantize(lat, lon, a.quantMeters)
	a.latQ, a.lonQ = latQ, lonQ
	a.hasLatLon = true

	c := cell{latQ, lonQ}
	changed = !a.hasCell || c != a.lastCell
	if changed {
		a.lastCell = c
		a.hasCell = true
		a.addr = ""
	}
	return changed, latQ, lonQ
}

// UpdateAddress sets the address shown on the second line.
func (a *Aggregator) UpdateAddress(address string) {
	a.addr = address
}

// Address returns the cached address, empty when unknown.
func (a *Aggregator) Address() string { return a.addr }

// Tick evaluates the text at time t. The first tick opens a segment. A later
// tick with different text closes the open segment at t, returns it and
// opens the next one at t.
func (a *Aggregator) Tick(t float64) (Segment, bool) {
	l1, l2 := a.Lines()
	if !a.open {
		a.open = true
		a.segStart = t
		a.curLine1, a.curLine2 = l1, l2
		return Segment{}, false
	}
	if l1 == a.curLine1 && l2 == a.curLine2 {
		return Segment{}, false
	}
	seg := Segment{Start: a.segStart, End: t, Line1: a.curLine1, Line2: a.curLine2}
	a.segStart = t
	a.curLine1, a.curLine2 = l1, l2
	return seg, true
}

// Finalize closes the open segment at tEnd and returns it. It returns false
// when no segment is open.
func (a *Aggregator) Finalize(tEnd float64) (Segment, bool) {
	if !a.open {
		return Segment{}, false
	}
	seg := Segment{Start: a.segStart, End: tEnd, Line1: a.curLine1, Line2: a.curLine2}
	a.open = false
	a.segStart = 0
	a.curLine1, a.curLine2 = "", ""
	return seg, true
}

// Lines composes the current two-line text. The second line is the address
// if known, else the quantized coordinate, else empty.
func (a *Aggregator) Lines() (line1, line2 string) {
	var alt, spd float64
	if a.hasAlt {
		alt = a.alt
	}
	if a.hasSpd {
		spd = a.spd
	}
	line1 = fmt.Sprintf("Altitude: %.1f m  Speed: %.1f km/h", alt, spd)

	switch {
	case a.addr != "":
		line2 = a.addr
	case a.hasLatLon:
		line2 = fmt.Sprintf("Lat: %.5f  Lon: %.5f", a.latQ, a.lonQ)
	}
	return line1, line2
}

// Quantize snaps a coordinate to a grid of the given size in meters. The
// longitude spacing is widened by the cosine of the latitude. A non-positive
// size returns the input unchanged.
func Quantize(lat, lon, meters float64) (latQ, lonQ float64) {
	if meters <= 0 {
		return lat, lon
	}
	dLat := meters / metersPerDegLat
	dLon := meters / (metersPerDegLon * math.Max(1e-6, math.Cos(lat*math.Pi/180)))
	latQ = math.RoundToEven(lat/dLat) * dLat
	lonQ = math.RoundToEven(lon/dLon) * dLon
	return latQ, lonQ
}
