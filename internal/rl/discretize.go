package rl

import (
	"math"
	"strconv"
)

// bucketLimit is 2^63; bucket indices outside [-bucketLimit, bucketLimit)
// do not fit an int64.
const bucketLimit = 0x1p63

// StateKey is the hashable form of a discretized state.
type StateKey string

// Discretizer buckets continuous state into a StateKey.
type Discretizer struct {
	// Step is the bucket width for every component. Step <= 0 keys on the
	// exact float bits, so only identical states share an entry. Components
	// whose bucket index overflows int64 are keyed on their bits too, with
	// an 'x' prefix.
	Step float64
}

// Key returns the bucketed-integer tuple of state, joined with '|'.
func (d Discretizer) Key(state []float64) StateKey {
	buf := make([]byte, 0, len(state)*6)
	for i, x := range state {
		if i > 0 {
			buf = append(buf, '|')
		}
		switch {
		case math.IsNaN(x):
			buf = append(buf, "nan"...)
		case math.IsInf(x, 1):
			buf = append(buf, "+inf"...)
		case math.IsInf(x, -1):
			buf = append(buf, "-inf"...)
		case d.Step > 0:
			if q := math.Floor(x / d.Step); q >= -bucketLimit && q < bucketLimit {
				buf = strconv.AppendInt(buf, int64(q), 10)
				break
			}
			buf = append(buf, 'x')
			buf = strconv.AppendUint(buf, math.Float64bits(x), 16)
		default:
			buf = strconv.AppendUint(buf, math.Float64bits(x), 16)
		}
	}
	return StateKey(buf)
}
