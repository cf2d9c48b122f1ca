package spectral

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sineWave(freq float64, sampleRate, n int) []float64 {
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = math.Sin(2 * math.Pi * freq * float64(i) / float64(sampleRate))
	}
	return samples
}

func TestSpectrogramFrameCount(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		name     string
		samples  int
		expected int
	}{
		{"TooShort", cfg.WindowSize - 1, 0},
		{"OneWindow", cfg.WindowSize, 1},
		{"OneHopMore", cfg.WindowSize + cfg.Overlap, 2},
		{"Many", cfg.WindowSize + 10*cfg.Overlap, 11},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := Spectrogram(sineWave(440, cfg.SampleRate, tt.samples), cfg)
			require.NoError(t, err)
			assert.Len(t, rows, tt.expected)
			for _, row := range rows {
				assert.Len(t, row, cfg.LogBins)
			}
		})
	}
}

func TestSpectrogramEnergyInBand(t *testing.T) {
	cfg := DefaultConfig()

	// A 440 Hz tone should concentrate energy in a low log bin,
	// a 1800 Hz tone in a high one.
	low, err := Spectrogram(sineWave(440, cfg.SampleRate, 4*cfg.WindowSize), cfg)
	require.NoError(t, err)
	high, err := Spectrogram(sineWave(1800, cfg.SampleRate, 4*cfg.WindowSize), cfg)
	require.NoError(t, err)

	assert.Greater(t, peakBin(high[0]), peakBin(low[0]))
}

func peakBin(row []float64) int {
	best := 0
	for i, v := range row {
		if v > row[best] {
			best = i
		}
	}
	return best
}

func TestSpectrogramConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"ZeroSampleRate", func(c *Config) { c.SampleRate = 0 }},
		{"NonPowerOfTwoWindow", func(c *Config) { c.WindowSize = 1000 }},
		{"ZeroOverlap", func(c *Config) { c.Overlap = 0 }},
		{"OverlapTooLarge", func(c *Config) { c.Overlap = c.WindowSize + 1 }},
		{"ZeroBins", func(c *Config) { c.LogBins = 0 }},
		{"InvertedBand", func(c *Config) { c.MinFreq, c.MaxFreq = 2000, 318 }},
		{"AboveNyquist", func(c *Config) { c.MaxFreq = 10000 }},
		{"BadLogBase", func(c *Config) { c.LogBase = 1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			_, err := Spectrogram(nil, cfg)
			require.Error(t, err)
		})
	}
}

func TestLogBinEdgesMonotonic(t *testing.T) {
	cfg := DefaultConfig()
	edges := logBinEdges(cfg)

	require.Len(t, edges, cfg.LogBins+1)
	for i := 1; i < len(edges); i++ {
		assert.Greater(t, edges[i], edges[i-1], "edge %d", i)
	}
	assert.LessOrEqual(t, edges[len(edges)-1], cfg.WindowSize/2)
}

func TestHaarTransform(t *testing.T) {
	t.Run("KnownValues", func(t *testing.T) {
		image := [][]float64{
			{4, 2},
			{2, 0},
		}
		HaarTransform(image)

		s2 := math.Sqrt2
		// Rows: {6/s2, 2/s2}, {2/s2, 2/s2}; then columns.
		assert.InDelta(t, (6/s2+2/s2)/s2, image[0][0], 1e-12)
		assert.InDelta(t, (2/s2+2/s2)/s2, image[0][1], 1e-12)
		assert.InDelta(t, (6/s2-2/s2)/s2, image[1][0], 1e-12)
		assert.InDelta(t, (2/s2-2/s2)/s2, image[1][1], 1e-12)
	})

	t.Run("Deterministic", func(t *testing.T) {
		a := [][]float64{{1, 2, 3, 4}, {5, 6, 7, 8}, {9, 10, 11, 12}, {13, 14, 15, 16}}
		b := [][]float64{{1, 2, 3, 4}, {5, 6, 7, 8}, {9, 10, 11, 12}, {13, 14, 15, 16}}
		HaarTransform(a)
		HaarTransform(b)
		assert.Equal(t, a, b)
	})

	t.Run("Empty", func(t *testing.T) {
		assert.NotPanics(t, func() { HaarTransform(nil) })
	})
}

func TestEncodeTopWavelets(t *testing.T) {
	t.Run("SignPartitioned", func(t *testing.T) {
		image := [][]float64{{5, -3}, {0, 1}}
		v := EncodeTopWavelets(image, 2)

		require.Equal(t, 8, v.Len())
		assert.True(t, v.Test(0))  // coefficient 0 is positive
		assert.True(t, v.Test(3))  // coefficient 1 is negative
		assert.False(t, v.Test(2)) // negative, so the positive slot stays unset
		assert.Equal(t, 2, v.OnesCount())
	})

	t.Run("ZeroNeverSelected", func(t *testing.T) {
		image := [][]float64{{2, 0}, {0, 0}}
		v := EncodeTopWavelets(image, 3)
		assert.Equal(t, 1, v.OnesCount())
	})

	t.Run("TieBreakByPosition", func(t *testing.T) {
		image := [][]float64{{1, -1}, {1, 1}}
		v := EncodeTopWavelets(image, 2)

		// Equal magnitudes: positions 0 and 1 win.
		assert.True(t, v.Test(0))
		assert.True(t, v.Test(3))
		assert.Equal(t, 2, v.OnesCount())
	})

	t.Run("Deterministic", func(t *testing.T) {
		image := [][]float64{{1, 1, -1, -1}, {1, -1, 1, -1}}
		a := EncodeTopWavelets(image, 3)
		b := EncodeTopWavelets(image, 3)
		assert.True(t, a.Equal(b))
	})
}
