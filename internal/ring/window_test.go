package ring

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWindowMeanAndOverflow(t *testing.T) {
	cases := []struct {
		name     string
		capacity int
		pushes   []float64
		wantLen  int
		wantMean float64
	}{
		{"under capacity", 5, []float64{1, 2, 3}, 3, 2},
		{"exact capacity", 3, []float64{1, 2, 3}, 3, 2},
		{"overflow drops oldest", 3, []float64{1, 2, 3, 4}, 3, 3}, // {2,3,4}
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := New(tc.capacity)
			for _, v := range tc.pushes {
				w.Push(v)
			}
			require.Equal(t, tc.wantLen, w.Len())
			require.InDelta(t, tc.wantMean, w.Mean(), 1e-9)
			require.LessOrEqual(t, w.Len(), tc.capacity)
		})
	}
}

func TestWindowMinMaxNotCorrectedOnEviction(t *testing.T) {
	w := New(2)
	w.Push(10)
	w.Push(1)
	w.Push(2) // evicts the 10, but min/max are lifetime-since-reset
	require.Equal(t, float64(1), w.Min())
	require.Equal(t, float64(10), w.Max())
}

func TestWindowPercentile(t *testing.T) {
	w := New(10)
	for _, v := range []float64{10, 20, 30, 40, 50} {
		w.Push(v)
	}
	require.Equal(t, float64(10), w.Percentile(0))
	require.Equal(t, float64(50), w.Percentile(100))
	require.Equal(t, float64(30), w.Percentile(50))
}

func TestWindowReset(t *testing.T) {
	w := New(4)
	w.Push(5)
	w.Push(7)
	w.Reset()
	require.Equal(t, 0, w.Len())
	require.Equal(t, float64(0), w.Mean())
	require.Equal(t, float64(0), w.Min())
}

func TestEMA(t *testing.T) {
	e := NewEMA(0.5)
	require.Equal(t, float64(10), e.Update(10))
	require.InDelta(t, 15.0, e.Update(20), 1e-9)
}
