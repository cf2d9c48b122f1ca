package minhash

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unexpectedexception/findsimilar/bitvec"
)

func TestGenerateDeterministic(t *testing.T) {
	a, err := Generate(10, 64, 42)
	require.NoError(t, err)
	b, err := Generate(10, 64, 42)
	require.NoError(t, err)

	assert.Equal(t, a.Checksum(), b.Checksum())
	assert.Equal(t, 10, a.Count())
	assert.Equal(t, 64, a.BitLength())

	c, err := Generate(10, 64, 43)
	require.NoError(t, err)
	assert.NotEqual(t, a.Checksum(), c.Checksum())
}

func TestGenerateValidPermutations(t *testing.T) {
	ps, err := Generate(5, 32, 1)
	require.NoError(t, err)

	for _, p := range ps.perms {
		seen := make(map[int32]bool, len(p))
		for _, v := range p {
			require.GreaterOrEqual(t, v, int32(0))
			require.Less(t, v, int32(32))
			require.False(t, seen[v], "duplicate position %d", v)
			seen[v] = true
		}
	}
}

func TestGenerateValidation(t *testing.T) {
	_, err := Generate(0, 64, 1)
	require.Error(t, err)
	_, err = Generate(10, 0, 1)
	require.Error(t, err)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ps, err := Generate(8, 128, 99)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, ps.Save(&buf))

	got, err := Load(&buf)
	require.NoError(t, err)
	assert.Equal(t, ps.Checksum(), got.Checksum())
	assert.Equal(t, ps.Count(), got.Count())
	assert.Equal(t, ps.BitLength(), got.BitLength())
}

func TestLoadCorrupt(t *testing.T) {
	_, err := Load(bytes.NewReader(nil))
	require.Error(t, err)

	_, err = Load(bytes.NewReader([]byte{1, 0, 0, 0}))
	require.Error(t, err)

	// Valid header, truncated body.
	ps, _ := Generate(4, 32, 1)
	var buf bytes.Buffer
	require.NoError(t, ps.Save(&buf))
	_, err = Load(bytes.NewReader(buf.Bytes()[:buf.Len()-4]))
	require.Error(t, err)
}

func newMinHash(t *testing.T, bitLen, tables, keys int) *MinHash {
	t.Helper()
	ps, err := Generate(tables*keys, bitLen, 7)
	require.NoError(t, err)
	m, err := New(ps, tables, keys)
	require.NoError(t, err)
	return m
}

func TestNewValidation(t *testing.T) {
	ps, err := Generate(10, 64, 7)
	require.NoError(t, err)

	_, err = New(nil, 2, 2)
	require.Error(t, err)
	_, err = New(ps, 0, 2)
	require.Error(t, err)
	_, err = New(ps, 2, 0)
	require.Error(t, err)
	// 10 permutations cannot cover 4x3 bands.
	_, err = New(ps, 4, 3)
	require.Error(t, err)
	_, err = New(ps, 5, 2)
	require.NoError(t, err)
}

func TestSignatureDeterministic(t *testing.T) {
	m := newMinHash(t, 256, 5, 4)

	v := bitvec.New(256)
	for _, i := range []int{3, 50, 99, 200, 255} {
		v.Set(i)
	}

	a, err := m.Signature(v)
	require.NoError(t, err)
	b, err := m.Signature(v)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 20)

	for _, s := range a {
		assert.GreaterOrEqual(t, s, int32(0))
		assert.Less(t, s, m.EmptySentinel())
	}
}

func TestSignatureEmptyFingerprint(t *testing.T) {
	m := newMinHash(t, 64, 2, 2)

	sig, err := m.Signature(bitvec.New(64))
	require.NoError(t, err)
	for _, s := range sig {
		assert.Equal(t, m.EmptySentinel(), s)
	}
}

func TestSignatureLengthMismatch(t *testing.T) {
	m := newMinHash(t, 64, 2, 2)
	_, err := m.Signature(bitvec.New(65))
	require.Error(t, err)
}

func TestBucketizeAgreement(t *testing.T) {
	m := newMinHash(t, 256, 5, 4)

	v := bitvec.New(256)
	for _, i := range []int{1, 2, 77, 140} {
		v.Set(i)
	}
	w := v.Clone()

	sigV, err := m.Signature(v)
	require.NoError(t, err)
	sigW, err := m.Signature(w)
	require.NoError(t, err)

	keysV, err := m.Bucketize(sigV)
	require.NoError(t, err)
	keysW, err := m.Bucketize(sigW)
	require.NoError(t, err)

	// Identical fingerprints collide in every table.
	assert.Equal(t, keysV, keysW)
	assert.Len(t, keysV, 5)
}

func TestBucketizeBandIndependence(t *testing.T) {
	m := newMinHash(t, 64, 3, 2)

	sig := make([]int32, 6)
	for i := range sig {
		sig[i] = int32(i)
	}
	keys, err := m.Bucketize(sig)
	require.NoError(t, err)

	// Changing one band's values must not affect other bands' keys.
	sig[0] = 42
	keys2, err := m.Bucketize(sig)
	require.NoError(t, err)

	assert.NotEqual(t, keys[0], keys2[0])
	assert.Equal(t, keys[1], keys2[1])
	assert.Equal(t, keys[2], keys2[2])
}

func TestBucketizeTablesDiffer(t *testing.T) {
	m := newMinHash(t, 64, 2, 2)

	// Same band values in both tables still yield distinct keys because the
	// table index participates in the packing.
	keys, err := m.Bucketize([]int32{5, 9, 5, 9})
	require.NoError(t, err)
	assert.NotEqual(t, keys[0], keys[1])
}

func TestBucketizeShortSignature(t *testing.T) {
	m := newMinHash(t, 64, 2, 2)
	_, err := m.Bucketize([]int32{1, 2, 3})
	require.Error(t, err)
}
