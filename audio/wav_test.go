package audio

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTestWAV writes a 16-bit PCM sine tone and returns its path.
func writeTestWAV(t *testing.T, sampleRate, channels, frames int) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "tone.wav")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	data := make([]int, frames*channels)
	for i := 0; i < frames; i++ {
		v := int(0.5 * 32767 * math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate)))
		for c := 0; c < channels; c++ {
			data[i*channels+c] = v
		}
	}

	enc := wav.NewEncoder(f, sampleRate, 16, channels, 1)
	require.NoError(t, enc.Write(&gaudio.IntBuffer{
		Data:           data,
		Format:         &gaudio.Format{NumChannels: channels, SampleRate: sampleRate},
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())

	return path
}

func TestReadFile(t *testing.T) {
	path := writeTestWAV(t, 8000, 1, 8000)

	samples, rate, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 8000, rate)
	assert.Len(t, samples, 8000)

	for _, s := range samples {
		assert.LessOrEqual(t, math.Abs(s), 1.0)
	}
}

func TestReadFileDownmix(t *testing.T) {
	path := writeTestWAV(t, 8000, 2, 4000)

	samples, rate, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 8000, rate)
	assert.Len(t, samples, 4000)
}

func TestReadFileResample(t *testing.T) {
	path := writeTestWAV(t, 8000, 1, 8000)

	samples, rate, err := ReadFile(path, func(o *Options) {
		o.TargetSampleRate = 4000
	})
	require.NoError(t, err)
	assert.Equal(t, 4000, rate)
	assert.InDelta(t, 4000, len(samples), 2)
}

func TestReadFileClip(t *testing.T) {
	path := writeTestWAV(t, 8000, 1, 8000) // 1 second

	samples, _, err := ReadFile(path, func(o *Options) {
		o.Offset = 250 * time.Millisecond
		o.Duration = 500 * time.Millisecond
	})
	require.NoError(t, err)
	assert.Len(t, samples, 4000)

	// Offset past the end yields no samples, not an error.
	samples, _, err = ReadFile(path, func(o *Options) {
		o.Offset = 2 * time.Second
	})
	require.NoError(t, err)
	assert.Empty(t, samples)
}

func TestReadFileInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.wav")
	require.NoError(t, os.WriteFile(path, []byte("not a wav"), 0o644))

	_, _, err := ReadFile(path)
	require.Error(t, err)

	_, _, err = ReadFile(filepath.Join(t.TempDir(), "missing.wav"))
	require.Error(t, err)
}
