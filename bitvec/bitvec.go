// Package bitvec implements fixed-length bit vectors with popcount-based
// Hamming distance, the binary representation used for acoustic fingerprints.
package bitvec

import (
	"encoding/binary"
	"fmt"
	"math/bits"
)

// Vector is a fixed-length bit vector backed by 64-bit words.
// The zero value is not usable; use New or FromWords.
type Vector struct {
	words []uint64
	n     int
}

// New creates a vector of n bits, all unset.
func New(n int) *Vector {
	if n < 0 {
		n = 0
	}
	return &Vector{
		words: make([]uint64, (n+63)/64),
		n:     n,
	}
}

// FromWords reconstructs a vector of n bits from its word representation.
// The slice is copied.
func FromWords(words []uint64, n int) (*Vector, error) {
	if need := (n + 63) / 64; len(words) != need {
		return nil, fmt.Errorf("bitvec: word count mismatch: expected %d for %d bits, got %d", need, n, len(words))
	}
	v := New(n)
	copy(v.words, words)
	return v, nil
}

// Len returns the number of bits in the vector.
func (v *Vector) Len() int { return v.n }

// Set sets bit i.
func (v *Vector) Set(i int) {
	if i < 0 || i >= v.n {
		return
	}
	v.words[i>>6] |= 1 << (uint(i) & 63)
}

// Test reports whether bit i is set.
func (v *Vector) Test(i int) bool {
	if i < 0 || i >= v.n {
		return false
	}
	return v.words[i>>6]&(1<<(uint(i)&63)) != 0
}

// OnesCount returns the number of set bits.
func (v *Vector) OnesCount() int {
	var c int
	for _, w := range v.words {
		c += bits.OnesCount64(w)
	}
	return c
}

// Hamming returns the Hamming distance to o.
// Both vectors must have the same length.
func (v *Vector) Hamming(o *Vector) (int, error) {
	if v.n != o.n {
		return 0, fmt.Errorf("bitvec: length mismatch: %d vs %d", v.n, o.n)
	}
	var d int
	for i, w := range v.words {
		d += bits.OnesCount64(w ^ o.words[i])
	}
	return d, nil
}

// Equal reports whether both vectors have the same length and bits.
func (v *Vector) Equal(o *Vector) bool {
	if o == nil || v.n != o.n {
		return false
	}
	for i, w := range v.words {
		if w != o.words[i] {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the vector.
func (v *Vector) Clone() *Vector {
	c := New(v.n)
	copy(c.words, v.words)
	return c
}

// Words returns a copy of the underlying word representation.
func (v *Vector) Words() []uint64 {
	out := make([]uint64, len(v.words))
	copy(out, v.words)
	return out
}

// MarshalBinary encodes the vector as [BitLen: 4 bytes LE] [Words...].
func (v *Vector) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 4+8*len(v.words))
	binary.LittleEndian.PutUint32(buf, uint32(v.n))
	for i, w := range v.words {
		binary.LittleEndian.PutUint64(buf[4+8*i:], w)
	}
	return buf, nil
}

// UnmarshalBinary decodes a vector previously encoded with MarshalBinary.
func (v *Vector) UnmarshalBinary(data []byte) error {
	if len(data) < 4 {
		return fmt.Errorf("bitvec: truncated header: %d bytes", len(data))
	}
	n := int(binary.LittleEndian.Uint32(data))
	need := (n + 63) / 64
	if len(data) != 4+8*need {
		return fmt.Errorf("bitvec: truncated payload: expected %d bytes for %d bits, got %d", 4+8*need, n, len(data))
	}
	v.n = n
	v.words = make([]uint64, need)
	for i := range v.words {
		v.words[i] = binary.LittleEndian.Uint64(data[4+8*i:])
	}
	return nil
}
