package bitvec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetTest(t *testing.T) {
	v := New(130)
	require.Equal(t, 130, v.Len())

	v.Set(0)
	v.Set(63)
	v.Set(64)
	v.Set(129)

	assert.True(t, v.Test(0))
	assert.True(t, v.Test(63))
	assert.True(t, v.Test(64))
	assert.True(t, v.Test(129))
	assert.False(t, v.Test(1))
	assert.False(t, v.Test(128))
	assert.Equal(t, 4, v.OnesCount())

	// Out of range is a no-op, not a panic.
	v.Set(-1)
	v.Set(130)
	assert.False(t, v.Test(-1))
	assert.False(t, v.Test(130))
	assert.Equal(t, 4, v.OnesCount())
}

func TestHamming(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []int
		n        int
		expected int
	}{
		{"Identical", []int{1, 5, 77}, []int{1, 5, 77}, 100, 0},
		{"Disjoint", []int{0, 1}, []int{2, 3}, 100, 4},
		{"Overlap", []int{0, 1, 2}, []int{2, 3}, 100, 3},
		{"Empty", nil, nil, 64, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := New(tt.n)
			b := New(tt.n)
			for _, i := range tt.a {
				a.Set(i)
			}
			for _, i := range tt.b {
				b.Set(i)
			}
			d, err := a.Hamming(b)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, d)
		})
	}

	t.Run("LengthMismatch", func(t *testing.T) {
		_, err := New(64).Hamming(New(65))
		require.Error(t, err)
	})
}

func TestMarshalRoundTrip(t *testing.T) {
	v := New(100)
	v.Set(3)
	v.Set(64)
	v.Set(99)

	data, err := v.MarshalBinary()
	require.NoError(t, err)

	var got Vector
	require.NoError(t, got.UnmarshalBinary(data))
	assert.True(t, v.Equal(&got))

	var bad Vector
	require.Error(t, bad.UnmarshalBinary(data[:3]))
	require.Error(t, bad.UnmarshalBinary(data[:len(data)-1]))
}

func TestClone(t *testing.T) {
	v := New(64)
	v.Set(5)

	c := v.Clone()
	c.Set(6)

	assert.True(t, v.Test(5))
	assert.False(t, v.Test(6))
	assert.True(t, c.Test(6))
}
