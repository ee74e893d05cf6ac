package metrics

import (
	"math"
	"sort"
)

// quantile returns the q-th quantile of values with linear interpolation
// between order statistics. The input is copied and sorted.
func quantile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	return quantileSorted(sorted, q)
}

func quantileSorted(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	pos := q * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// quintiles returns the 0.2/0.4/0.6/0.8 thresholds of values.
func quintiles(values []float64) [4]float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	var out [4]float64
	for i, q := range []float64{0.2, 0.4, 0.6, 0.8} {
		out[i] = quantileSorted(sorted, q)
	}
	return out
}

// scorePositive maps a value into 1..5, higher values scoring higher.
func scorePositive(v float64, q [4]float64) int {
	switch {
	case v <= q[0]:
		return 1
	case v <= q[1]:
		return 2
	case v <= q[2]:
		return 3
	case v <= q[3]:
		return 4
	default:
		return 5
	}
}

// scoreInverse maps a value into 1..5, lower values scoring higher.
// Used for recency, where fewer days means a better score.
func scoreInverse(v float64, q [4]float64) int {
	return 6 - scorePositive(v, q)
}
