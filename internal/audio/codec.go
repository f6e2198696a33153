package audio

import "encoding/binary"

// DecodePCM16LE converts 16-bit little-endian PCM to normalized floats in
// [-1, 1). A trailing odd byte is ignored.
func DecodePCM16LE(data []byte) []float32 {
	n := len(data) / 2
	out := make([]float32, n)
	for i := range out {
		s := int16(binary.LittleEndian.Uint16(data[i*2:]))
		out[i] = float32(s) / 32768.0
	}
	return out
}

// EncodePCM16LE quantizes normalized floats to 16-bit little-endian PCM.
// Values outside [-1, 1] are clipped.
func EncodePCM16LE(samples []float32) []byte {
	return SamplesToBytes(FloatToInt16(samples))
}

// FloatToInt16 quantizes normalized floats to int16, clipping to [-1, 1].
func FloatToInt16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, v := range samples {
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		out[i] = int16(v * 32767.0)
	}
	return out
}

// SamplesToBytes converts int16 samples to little-endian bytes.
func SamplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}
