package bufutil

import (
	"encoding/binary"
	"math"
)

// IntToBytes returns a []byte with the provided int64 encoded
// in binary.LittleEndian byte order. Used for integer store keys.
func IntToBytes(val int64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(val))
	return buf
}

// BytesToInt returns the int64 encoded by the provided buf,
// assuming buf was encoded in binary.LittleEndian byte order.
func BytesToInt(buf []byte) int64 {
	return int64(binary.LittleEndian.Uint64(buf))
}

// FloatsToBytes encodes a float64 vector in binary.LittleEndian byte order.
func FloatsToBytes(vals []float64) []byte {
	buf := make([]byte, 8*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint64(buf[8*i:], math.Float64bits(v))
	}
	return buf
}

// BytesToFloats decodes a float64 vector encoded by FloatsToBytes.
func BytesToFloats(buf []byte) []float64 {
	vals := make([]float64, len(buf)/8)
	for i := range vals {
		vals[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[8*i:]))
	}
	return vals
}
