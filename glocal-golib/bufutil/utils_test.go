package bufutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_IntRoundTrip(t *testing.T) {
	for _, val := range []int64{0, 1, -1, 1854, 1<<40 + 7} {
		require.Equal(t, val, BytesToInt(IntToBytes(val)))
	}
}

func Test_FloatsRoundTrip(t *testing.T) {
	vals := []float64{0, -1.5, 3.25, 1e-9, 12345.6789}
	require.Equal(t, vals, BytesToFloats(FloatsToBytes(vals)))
	require.Len(t, FloatsToBytes(vals), 8*len(vals))
}
