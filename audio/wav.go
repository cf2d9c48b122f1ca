// Package audio decodes WAV audio into the mono float64 sample stream the
// fingerprint pipeline consumes.
package audio

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-audio/wav"
)

// Options control decoding.
type Options struct {
	// TargetSampleRate resamples the decoded audio to this rate in Hz.
	// Zero keeps the source rate.
	TargetSampleRate int

	// Offset skips this much audio from the start before decoding.
	Offset time.Duration

	// Duration limits how much audio is kept after Offset.
	// Zero keeps everything to the end.
	Duration time.Duration
}

// ReadFile decodes a WAV file into mono samples in [-1, 1].
// It returns the samples and their sample rate.
func ReadFile(path string, optFns ...func(o *Options)) ([]float64, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("audio: open %s: %w", path, err)
	}
	defer f.Close()

	return Decode(f, optFns...)
}

// Decode decodes WAV audio from r into mono samples in [-1, 1].
func Decode(r io.ReadSeeker, optFns ...func(o *Options)) ([]float64, int, error) {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}

	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return nil, 0, fmt.Errorf("audio: not a valid WAV stream")
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("audio: decode PCM: %w", err)
	}
	if buf.Format == nil || buf.Format.NumChannels <= 0 || buf.Format.SampleRate <= 0 {
		return nil, 0, fmt.Errorf("audio: malformed WAV format chunk")
	}

	bitDepth := buf.SourceBitDepth
	if bitDepth == 0 {
		bitDepth = int(d.BitDepth)
	}
	if bitDepth == 0 {
		bitDepth = 16
	}
	scale := float64(int64(1) << (bitDepth - 1))

	// Downmix to mono.
	channels := buf.Format.NumChannels
	frames := len(buf.Data) / channels
	samples := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < channels; c++ {
			sum += float64(buf.Data[i*channels+c])
		}
		samples[i] = sum / float64(channels) / scale
	}

	rate := buf.Format.SampleRate
	samples = clip(samples, rate, opts.Offset, opts.Duration)

	if opts.TargetSampleRate > 0 && opts.TargetSampleRate != rate {
		samples = resample(samples, rate, opts.TargetSampleRate)
		rate = opts.TargetSampleRate
	}

	return samples, rate, nil
}

// clip applies offset and duration bounds in the source sample rate.
func clip(samples []float64, rate int, offset, duration time.Duration) []float64 {
	start := int(offset.Seconds() * float64(rate))
	if start < 0 {
		start = 0
	}
	if start >= len(samples) {
		return nil
	}
	end := len(samples)
	if duration > 0 {
		if n := start + int(duration.Seconds()*float64(rate)); n < end {
			end = n
		}
	}
	return samples[start:end]
}

// resample converts between sample rates with linear interpolation.
// Fingerprinting tolerates the aliasing a proper low-pass filter would remove.
func resample(samples []float64, from, to int) []float64 {
	if len(samples) == 0 {
		return nil
	}
	n := int(float64(len(samples)) * float64(to) / float64(from))
	out := make([]float64, n)
	ratio := float64(from) / float64(to)
	for i := range out {
		pos := float64(i) * ratio
		j := int(pos)
		if j >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := pos - float64(j)
		out[i] = samples[j]*(1-frac) + samples[j+1]*frac
	}
	return out
}
