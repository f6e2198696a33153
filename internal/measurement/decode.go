package measurement

import (
	"encoding/binary"
	"math"
)

// Float64BE decodes the leading 8 bytes as a big-endian IEEE-754 double.
func Float64BE(data []byte) (float64, bool) {
	if len(data) < 8 {
		return 0, false
	}
	return math.Float64frombits(binary.BigEndian.Uint64(data[:8])), true
}

// LatLonBE decodes the leading 16 bytes as two big-endian doubles.
func LatLonBE(data []byte) (lat, lon float64, ok bool) {
	if len(data) < 16 {
		return 0, 0, false
	}
	lat = math.Float64frombits(binary.BigEndian.Uint64(data[:8]))
	lon = math.Float64frombits(binary.BigEndian.Uint64(data[8:16]))
	return lat, lon, true
}

// PutFloat64BE encodes v the way Float64BE reads it.
func PutFloat64BE(v float64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, math.Float64bits(v))
	return b
}

// PutLatLonBE encodes a coordinate the way LatLonBE reads it.
func PutLatLonBE(lat, lon float64) []byte {
	b := make([]byte, 16)
	binary.BigEndian.PutUint64(b[:8], math.Float64bits(lat))
	binary.BigEndian.PutUint64(b[8:], math.Float64bits(lon))
	return b
}
