package spectral

import (
	"math"
	"sort"

	"github.com/unexpectedexception/findsimilar/bitvec"
)

// EncodeTopWavelets selects the topN most extreme wavelet coefficients of a
// transformed image by absolute magnitude and encodes them into a bit vector
// of length 2 x rows x cols. Coefficient at flat position p (row-major) sets
// bit 2p when positive and bit 2p+1 when negative, so at most 2*topN bits are
// set. Zero coefficients are never selected.
//
// Ties between equal-magnitude coefficients break by ascending flat position,
// so encoding the same image twice yields the same bit vector.
func EncodeTopWavelets(image [][]float64, topN int) *bitvec.Vector {
	rows := len(image)
	cols := 0
	if rows > 0 {
		cols = len(image[0])
	}

	flat := make([]float64, 0, rows*cols)
	for _, row := range image {
		flat = append(flat, row...)
	}

	order := make([]int, len(flat))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool {
		a, b := math.Abs(flat[order[i]]), math.Abs(flat[order[j]])
		if a != b {
			return a > b
		}
		return order[i] < order[j]
	})

	v := bitvec.New(2 * len(flat))
	taken := 0
	for _, p := range order {
		if taken == topN {
			break
		}
		c := flat[p]
		if c == 0 {
			break // order is sorted by magnitude; the rest are zero too
		}
		if c > 0 {
			v.Set(2 * p)
		} else {
			v.Set(2*p + 1)
		}
		taken++
	}
	return v
}
