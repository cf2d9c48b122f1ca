package spectral

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

// Config parameterizes the spectrogram transform.
type Config struct {
	// SampleRate is the expected sample rate of the input, in Hz.
	SampleRate int

	// MinFreq and MaxFreq bound the analyzed band, in Hz.
	MinFreq float64
	MaxFreq float64

	// LogBins is the number of logarithmically spaced frequency bins
	// between MinFreq and MaxFreq.
	LogBins int

	// LogBase is the base of the logarithm applied to bin magnitudes.
	// Ignored when DynamicLogBase is set.
	LogBase float64

	// WindowSize is the FFT window size in samples (WDFT size).
	WindowSize int

	// Overlap is the hop between consecutive frames, in samples.
	Overlap int

	// WindowFunction tapers each frame before the FFT.
	// Defaults to a Hann window.
	WindowFunction func(int) []float64

	// Normalize scales the input so its peak amplitude is 1 before analysis.
	Normalize bool

	// DynamicLogBase derives the log base from the spectrum size instead
	// of using LogBase.
	DynamicLogBase bool
}

// DefaultConfig returns the deployment defaults for the transform.
func DefaultConfig() Config {
	return Config{
		SampleRate:     5512,
		MinFreq:        318,
		MaxFreq:        2000,
		LogBins:        32,
		LogBase:        math.E,
		WindowSize:     2048,
		Overlap:        64,
		WindowFunction: window.Hann,
		Normalize:      true,
		DynamicLogBase: false,
	}
}

func (c *Config) validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("spectral: invalid sample rate: %d", c.SampleRate)
	}
	if c.WindowSize <= 0 || c.WindowSize&(c.WindowSize-1) != 0 {
		return fmt.Errorf("spectral: window size must be a positive power of two, got %d", c.WindowSize)
	}
	if c.Overlap <= 0 || c.Overlap > c.WindowSize {
		return fmt.Errorf("spectral: overlap must be in (0, %d], got %d", c.WindowSize, c.Overlap)
	}
	if c.LogBins <= 0 {
		return fmt.Errorf("spectral: log bins must be positive, got %d", c.LogBins)
	}
	if c.MinFreq <= 0 || c.MaxFreq <= c.MinFreq {
		return fmt.Errorf("spectral: invalid frequency band [%v, %v]", c.MinFreq, c.MaxFreq)
	}
	if nyquist := float64(c.SampleRate) / 2; c.MaxFreq > nyquist {
		return fmt.Errorf("spectral: max frequency %v exceeds Nyquist %v", c.MaxFreq, nyquist)
	}
	if !c.DynamicLogBase && c.LogBase <= 1 {
		return fmt.Errorf("spectral: log base must be > 1, got %v", c.LogBase)
	}
	return nil
}

// logBase resolves the effective logarithm base.
func (c *Config) logBase() float64 {
	if c.DynamicLogBase {
		return math.Pow(float64(c.WindowSize)/2, 1/float64(c.LogBins))
	}
	return c.LogBase
}

// Spectrogram computes a time-major log-frequency log-magnitude spectrogram:
// result[frame][bin]. An input shorter than one window yields an empty
// spectrogram, not an error.
func Spectrogram(samples []float64, cfg Config) ([][]float64, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if cfg.Normalize {
		samples = normalize(samples)
	}

	winFn := cfg.WindowFunction
	if winFn == nil {
		winFn = window.Hann
	}

	edges := logBinEdges(cfg)
	logBase := math.Log(cfg.logBase())

	var rows [][]float64
	frame := make([]float64, cfg.WindowSize)
	for start := 0; start+cfg.WindowSize <= len(samples); start += cfg.Overlap {
		copy(frame, samples[start:start+cfg.WindowSize])
		window.Apply(frame, winFn)

		spectrum := fft.FFTReal(frame)

		row := make([]float64, cfg.LogBins)
		for b := 0; b < cfg.LogBins; b++ {
			var sum float64
			for k := edges[b]; k < edges[b+1]; k++ {
				sum += cmplx.Abs(spectrum[k])
			}
			row[b] = math.Log(1+sum) / logBase
		}
		rows = append(rows, row)
	}

	return rows, nil
}

// logBinEdges maps the LogBins logarithmically spaced bands onto FFT bin
// index boundaries. edges has LogBins+1 entries and is strictly increasing
// where the FFT resolution allows, so every band covers at least one bin.
func logBinEdges(cfg Config) []int {
	hz := float64(cfg.SampleRate) / float64(cfg.WindowSize)
	ratio := cfg.MaxFreq / cfg.MinFreq
	maxBin := cfg.WindowSize / 2

	edges := make([]int, cfg.LogBins+1)
	for i := range edges {
		freq := cfg.MinFreq * math.Pow(ratio, float64(i)/float64(cfg.LogBins))
		bin := int(freq / hz)
		if i > 0 && bin <= edges[i-1] {
			bin = edges[i-1] + 1
		}
		if bin > maxBin {
			bin = maxBin
		}
		edges[i] = bin
	}
	return edges
}

func normalize(samples []float64) []float64 {
	var peak float64
	for _, s := range samples {
		if a := math.Abs(s); a > peak {
			peak = a
		}
	}
	if peak == 0 {
		return samples
	}
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = s / peak
	}
	return out
}
