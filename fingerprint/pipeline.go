// Package fingerprint converts audio into ordered sequences of fixed-length
// binary fingerprints: spectrogram windows are wavelet-transformed and their
// most extreme coefficients encoded into bit vectors.
package fingerprint

import (
	"fmt"

	"github.com/unexpectedexception/findsimilar/audio"
	"github.com/unexpectedexception/findsimilar/model"
	"github.com/unexpectedexception/findsimilar/spectral"
)

// Options configure the pipeline.
type Options struct {
	// Spectrogram parameterizes the spectral transform.
	Spectrogram spectral.Config

	// FingerprintLength is the width of one fingerprint window, in
	// spectrogram frames.
	FingerprintLength int

	// TopWavelets is the number of wavelet coefficients encoded per
	// fingerprint.
	TopWavelets int

	// Stride creates the stride policy for one partitioning run.
	// Strides are stateful, so every run gets a fresh one.
	Stride func() Stride
}

// DefaultOptions are the deployment defaults for the pipeline.
var DefaultOptions = Options{
	Spectrogram:       spectral.DefaultConfig(),
	FingerprintLength: 128,
	TopWavelets:       200,
	Stride: func() Stride {
		s, _ := NewFixedStride(80)
		return s
	},
}

// Pipeline converts audio samples into ordered fingerprint lists.
// A Pipeline is immutable after construction and safe for concurrent use.
type Pipeline struct {
	opts Options
}

// New creates a pipeline.
func New(optFns ...func(o *Options)) (*Pipeline, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.FingerprintLength <= 0 {
		return nil, fmt.Errorf("fingerprint: fingerprint length must be positive, got %d", opts.FingerprintLength)
	}
	if opts.TopWavelets <= 0 {
		return nil, fmt.Errorf("fingerprint: top wavelets must be positive, got %d", opts.TopWavelets)
	}
	if opts.Stride == nil {
		return nil, fmt.Errorf("fingerprint: stride factory is required")
	}
	// Surface spectrogram config errors at construction, not per call.
	if _, err := spectral.Spectrogram(nil, opts.Spectrogram); err != nil {
		return nil, err
	}

	return &Pipeline{opts: opts}, nil
}

// BitLength returns the fixed bit length of every fingerprint this pipeline
// produces: two sign slots per wavelet coefficient.
func (p *Pipeline) BitLength() int {
	return 2 * p.opts.FingerprintLength * p.opts.Spectrogram.LogBins
}

// SampleRate returns the sample rate the pipeline expects.
func (p *Pipeline) SampleRate() int {
	return p.opts.Spectrogram.SampleRate
}

// Result holds the fingerprints of one run together with the intermediate
// spectrogram they were cut from.
type Result struct {
	Fingerprints []model.Fingerprint
	Spectrogram  [][]float64
}

// FromFile decodes a WAV file and fingerprints it.
// The audio is resampled to the pipeline's sample rate.
func (p *Pipeline) FromFile(path string, optFns ...func(o *audio.Options)) (*Result, error) {
	fns := append([]func(o *audio.Options){func(o *audio.Options) {
		o.TargetSampleRate = p.opts.Spectrogram.SampleRate
	}}, optFns...)

	samples, _, err := audio.ReadFile(path, fns...)
	if err != nil {
		return nil, err
	}
	return p.FromSamples(samples)
}

// FromSamples builds the log-magnitude spectrogram and fingerprints it.
// Audio shorter than one fingerprint window yields an empty fingerprint
// list, not an error.
func (p *Pipeline) FromSamples(samples []float64) (*Result, error) {
	spec, err := spectral.Spectrogram(samples, p.opts.Spectrogram)
	if err != nil {
		return nil, err
	}

	fps, err := p.FromSpectrogram(spec, p.opts.Stride())
	if err != nil {
		return nil, err
	}

	return &Result{Fingerprints: fps, Spectrogram: spec}, nil
}

// FromSpectrogram partitions the spectrogram into fingerprint windows under
// the given stride policy and encodes each one. Windows never exceed
// spectrogram bounds; partitioning stops at the first window that would.
func (p *Pipeline) FromSpectrogram(spec [][]float64, stride Stride) ([]model.Fingerprint, error) {
	if stride == nil {
		return nil, fmt.Errorf("fingerprint: stride is required")
	}
	if len(spec) > 0 && len(spec[0]) != p.opts.Spectrogram.LogBins {
		return nil, fmt.Errorf("fingerprint: spectrogram has %d bins, pipeline expects %d", len(spec[0]), p.opts.Spectrogram.LogBins)
	}

	length := p.opts.FingerprintLength
	var fps []model.Fingerprint
	for offset := 0; offset+length <= len(spec); offset += stride.Next() {
		image := copyWindow(spec, offset, length)
		spectral.HaarTransform(image)

		fps = append(fps, model.Fingerprint{
			SequenceNo: len(fps),
			Bits:       spectral.EncodeTopWavelets(image, p.opts.TopWavelets),
		})
	}

	return fps, nil
}

// copyWindow snapshots length frames starting at offset so the in-place
// wavelet transform cannot touch the caller's spectrogram.
func copyWindow(spec [][]float64, offset, length int) [][]float64 {
	image := make([][]float64, length)
	for i := range image {
		row := make([]float64, len(spec[offset+i]))
		copy(row, spec[offset+i])
		image[i] = row
	}
	return image
}
