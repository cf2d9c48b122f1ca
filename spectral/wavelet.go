package spectral

import "math"

var sqrt2 = math.Sqrt2

// HaarTransform applies the standard 2-D Haar wavelet decomposition to the
// image in place: every row is fully decomposed, then every column. The
// transform concentrates signal energy into few large-magnitude coefficients,
// which is what makes the top-wavelet encoding informative.
//
// The decomposition is deterministic; applying it twice to equal inputs
// yields equal outputs bit for bit.
func HaarTransform(image [][]float64) {
	if len(image) == 0 {
		return
	}

	cols := len(image[0])
	for _, row := range image {
		haar1D(row)
	}

	col := make([]float64, len(image))
	for c := 0; c < cols; c++ {
		for r := range image {
			col[r] = image[r][c]
		}
		haar1D(col)
		for r := range image {
			image[r][c] = col[r]
		}
	}
}

// haar1D decomposes one row in place using orthonormal averaging and
// differencing. Decomposition stops once the remaining approximation has odd
// length; with power-of-two dimensions this is a full decomposition.
func haar1D(data []float64) {
	tmp := make([]float64, len(data))
	for h := len(data); h > 1 && h%2 == 0; h /= 2 {
		half := h / 2
		for i := 0; i < half; i++ {
			tmp[i] = (data[2*i] + data[2*i+1]) / sqrt2
			tmp[half+i] = (data[2*i] - data[2*i+1]) / sqrt2
		}
		copy(data[:h], tmp[:h])
	}
}
