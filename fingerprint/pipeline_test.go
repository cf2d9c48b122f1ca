package fingerprint

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unexpectedexception/findsimilar/spectral"
)

// smallOptions returns a pipeline config small enough for fast tests.
func smallOptions(o *Options) {
	o.Spectrogram = spectral.Config{
		SampleRate: 4000,
		MinFreq:    300,
		MaxFreq:    1800,
		LogBins:    8,
		LogBase:    math.E,
		WindowSize: 256,
		Overlap:    64,
		Normalize:  true,
	}
	o.FingerprintLength = 16
	o.TopWavelets = 20
	o.Stride = func() Stride {
		s, _ := NewFixedStride(8)
		return s
	}
}

func syntheticSpectrogram(frames, bins int) [][]float64 {
	spec := make([][]float64, frames)
	for i := range spec {
		row := make([]float64, bins)
		for j := range row {
			row[j] = math.Sin(float64(i*bins+j)) * float64(j+1)
		}
		spec[i] = row
	}
	return spec
}

func TestWindowingArithmetic(t *testing.T) {
	p, err := New(smallOptions)
	require.NoError(t, err)

	tests := []struct {
		name   string
		frames int
		step   int
	}{
		{"Exact", 16, 8},
		{"OneShort", 15, 8},
		{"Long", 100, 8},
		{"StrideOne", 40, 1},
		{"HugeStride", 100, 64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stride, err := NewFixedStride(tt.step)
			require.NoError(t, err)

			fps, err := p.FromSpectrogram(syntheticSpectrogram(tt.frames, 8), stride)
			require.NoError(t, err)

			// Truncating division rounds toward zero, so the short
			// case must be clamped before the +1, not after.
			expected := 0
			if tt.frames >= 16 {
				expected = (tt.frames-16)/tt.step + 1
			}
			assert.Len(t, fps, expected)
		})
	}
}

func TestFromSpectrogramOrderAndLength(t *testing.T) {
	p, err := New(smallOptions)
	require.NoError(t, err)

	stride, err := NewFixedStride(8)
	require.NoError(t, err)

	fps, err := p.FromSpectrogram(syntheticSpectrogram(48, 8), stride)
	require.NoError(t, err)
	require.NotEmpty(t, fps)

	for i, fp := range fps {
		assert.Equal(t, i, fp.SequenceNo)
		assert.Equal(t, p.BitLength(), fp.Bits.Len())
		assert.LessOrEqual(t, fp.Bits.OnesCount(), 2*20)
	}
}

func TestFromSpectrogramDeterministic(t *testing.T) {
	p, err := New(smallOptions)
	require.NoError(t, err)

	spec := syntheticSpectrogram(48, 8)

	s1, _ := NewFixedStride(8)
	s2, _ := NewFixedStride(8)
	a, err := p.FromSpectrogram(spec, s1)
	require.NoError(t, err)
	b, err := p.FromSpectrogram(spec, s2)
	require.NoError(t, err)

	require.Len(t, b, len(a))
	for i := range a {
		assert.True(t, a[i].Bits.Equal(b[i].Bits), "fingerprint %d", i)
	}
}

func TestFromSpectrogramBinMismatch(t *testing.T) {
	p, err := New(smallOptions)
	require.NoError(t, err)

	stride, _ := NewFixedStride(8)
	_, err = p.FromSpectrogram(syntheticSpectrogram(32, 5), stride)
	require.Error(t, err)
}

func TestFromSamplesShortInput(t *testing.T) {
	p, err := New(smallOptions)
	require.NoError(t, err)

	res, err := p.FromSamples(make([]float64, 100))
	require.NoError(t, err)
	assert.Empty(t, res.Fingerprints)
	assert.Empty(t, res.Spectrogram)
}

func TestFromSamplesCarriesSpectrogram(t *testing.T) {
	p, err := New(smallOptions)
	require.NoError(t, err)

	samples := make([]float64, 8000)
	for i := range samples {
		samples[i] = math.Sin(2 * math.Pi * 440 * float64(i) / 4000)
	}

	res, err := p.FromSamples(samples)
	require.NoError(t, err)
	assert.NotEmpty(t, res.Fingerprints)
	assert.NotEmpty(t, res.Spectrogram)
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Options)
	}{
		{"ZeroLength", func(o *Options) { o.FingerprintLength = 0 }},
		{"ZeroTopWavelets", func(o *Options) { o.TopWavelets = 0 }},
		{"NilStride", func(o *Options) { o.Stride = nil }},
		{"BadSpectrogram", func(o *Options) { o.Spectrogram.SampleRate = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(smallOptions, tt.mutate)
			require.Error(t, err)
		})
	}
}

func TestFixedStride(t *testing.T) {
	_, err := NewFixedStride(0)
	require.Error(t, err)

	s, err := NewFixedStride(5)
	require.NoError(t, err)
	assert.Equal(t, 5, s.Next())
	assert.Equal(t, 5, s.Next())
}

func TestRandomStride(t *testing.T) {
	_, err := NewRandomStride(0, 5, 1)
	require.Error(t, err)
	_, err = NewRandomStride(5, 4, 1)
	require.Error(t, err)

	s, err := NewRandomStride(2, 7, 42)
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		step := s.Next()
		assert.GreaterOrEqual(t, step, 2)
		assert.LessOrEqual(t, step, 7)
	}

	// Same seed, same sequence.
	a, _ := NewRandomStride(2, 7, 7)
	b, _ := NewRandomStride(2, 7, 7)
	for i := 0; i < 20; i++ {
		assert.Equal(t, a.Next(), b.Next())
	}
}
