// Package minhash implements the Min-Hash/LSH indexing of binary
// fingerprints: signatures over a fixed permutation table and their
// partitioning into per-table 64-bit bucket keys.
package minhash

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math/rand"

	"github.com/OneOfOne/xxhash"
)

// Permutations is a deployment-stable table of bit-position permutations.
// It is read-only after construction and shared by reference across all
// goroutines. Insertion and query must use byte-identical tables; a
// divergence silently corrupts every similarity result, which is why the
// table carries a checksum for startup validation.
type Permutations struct {
	perms  [][]int32
	bitLen int
}

// Generate creates count permutations of [0, bitLength) from a seed.
// The same (count, bitLength, seed) triple always yields the same table.
func Generate(count, bitLength int, seed int64) (*Permutations, error) {
	if count <= 0 {
		return nil, fmt.Errorf("minhash: permutation count must be positive, got %d", count)
	}
	if bitLength <= 0 {
		return nil, fmt.Errorf("minhash: bit length must be positive, got %d", bitLength)
	}

	rng := rand.New(rand.NewSource(seed))
	perms := make([][]int32, count)
	for i := range perms {
		p := make([]int32, bitLength)
		for j := range p {
			p[j] = int32(j)
		}
		// Fisher-Yates driven by the shared seeded source.
		for j := bitLength - 1; j > 0; j-- {
			k := rng.Intn(j + 1)
			p[j], p[k] = p[k], p[j]
		}
		perms[i] = p
	}

	return &Permutations{perms: perms, bitLen: bitLength}, nil
}

// Count returns the number of permutations P.
func (ps *Permutations) Count() int { return len(ps.perms) }

// BitLength returns the fingerprint bit length the table permutes.
func (ps *Permutations) BitLength() int { return ps.bitLen }

// Checksum returns a digest of the full table. Comparing checksums between
// the insertion and query deployments guards against silent configuration
// divergence.
func (ps *Permutations) Checksum() uint64 {
	h := xxhash.New64()
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(ps.bitLen))
	_, _ = h.Write(buf[:])
	for _, p := range ps.perms {
		for _, v := range p {
			binary.LittleEndian.PutUint32(buf[:], uint32(v))
			_, _ = h.Write(buf[:])
		}
	}
	return h.Sum64()
}

// Save persists the table to w.
// Format: [Count: 4 bytes LE] [BitLength: 4 bytes LE] [Positions...].
func (ps *Permutations) Save(w io.Writer) error {
	bw := bufio.NewWriter(w)

	if err := binary.Write(bw, binary.LittleEndian, uint32(len(ps.perms))); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint32(ps.bitLen)); err != nil {
		return err
	}
	for _, p := range ps.perms {
		if err := binary.Write(bw, binary.LittleEndian, p); err != nil {
			return err
		}
	}

	return bw.Flush()
}

// Load reads a table previously written with Save.
func Load(r io.Reader) (*Permutations, error) {
	br := bufio.NewReader(r)

	var count, bitLen uint32
	if err := binary.Read(br, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("minhash: read header: %w", err)
	}
	if err := binary.Read(br, binary.LittleEndian, &bitLen); err != nil {
		return nil, fmt.Errorf("minhash: read header: %w", err)
	}
	if count == 0 || bitLen == 0 {
		return nil, fmt.Errorf("minhash: corrupt permutation table header: count=%d bitLen=%d", count, bitLen)
	}

	perms := make([][]int32, count)
	for i := range perms {
		p := make([]int32, bitLen)
		if err := binary.Read(br, binary.LittleEndian, p); err != nil {
			return nil, fmt.Errorf("minhash: read permutation %d: %w", i, err)
		}
		for _, v := range p {
			if v < 0 || v >= int32(bitLen) {
				return nil, fmt.Errorf("minhash: permutation %d has out-of-range position %d", i, v)
			}
		}
		perms[i] = p
	}

	return &Permutations{perms: perms, bitLen: int(bitLen)}, nil
}
