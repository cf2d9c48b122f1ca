package minhash

import (
	"encoding/binary"
	"fmt"

	"github.com/OneOfOne/xxhash"

	"github.com/unexpectedexception/findsimilar/bitvec"
)

// MinHash computes Min-Hash signatures and LSH bucket keys for binary
// fingerprints. Immutable after construction and safe for concurrent use.
type MinHash struct {
	perms      *Permutations
	hashTables int
	hashKeys   int
}

// New creates a MinHash over the given permutation table, partitioned into
// hashTables bands of hashKeys signature values each. The permutation count
// must be at least hashTables*hashKeys; trailing signature values beyond
// that product are unused.
func New(perms *Permutations, hashTables, hashKeys int) (*MinHash, error) {
	if perms == nil {
		return nil, fmt.Errorf("minhash: permutation table is required")
	}
	if hashTables <= 0 || hashKeys <= 0 {
		return nil, fmt.Errorf("minhash: hash tables and keys must be positive, got %d x %d", hashTables, hashKeys)
	}
	if need := hashTables * hashKeys; perms.Count() < need {
		return nil, fmt.Errorf("minhash: %d permutations cannot cover %d tables x %d keys", perms.Count(), hashTables, hashKeys)
	}

	return &MinHash{perms: perms, hashTables: hashTables, hashKeys: hashKeys}, nil
}

// BitLength returns the fingerprint bit length this MinHash accepts.
func (m *MinHash) BitLength() int { return m.perms.bitLen }

// Tables returns the number of LSH tables.
func (m *MinHash) Tables() int { return m.hashTables }

// Keys returns the band width in signature values.
func (m *MinHash) Keys() int { return m.hashKeys }

// Permutations returns the permutation table in use.
func (m *MinHash) Permutations() *Permutations { return m.perms }

// EmptySentinel is the signature value recorded for a fingerprint with no
// set bits, under which the naive min-hash rule is undefined. It equals the
// fingerprint bit length, one past any reachable position index, so the
// computation stays total and deterministic.
func (m *MinHash) EmptySentinel() int32 { return int32(m.perms.bitLen) }

// Signature computes the Min-Hash signature of v: for each permutation, the
// position of the first set bit of v in permuted order. Two fingerprints
// agreeing on many signature values have high Jaccard similarity between
// their sets of on-positions.
//
// Determinism of this function across insertion and query is the single most
// important correctness property of the system.
func (m *MinHash) Signature(v *bitvec.Vector) ([]int32, error) {
	if v.Len() != m.perms.bitLen {
		return nil, fmt.Errorf("minhash: fingerprint has %d bits, permutations cover %d", v.Len(), m.perms.bitLen)
	}

	sig := make([]int32, len(m.perms.perms))
	for i, perm := range m.perms.perms {
		sig[i] = m.EmptySentinel()
		for j, pos := range perm {
			if v.Test(int(pos)) {
				sig[i] = int32(j)
				break
			}
		}
	}
	return sig, nil
}

// Bucketize splits the signature into hashTables disjoint bands of hashKeys
// consecutive values and packs each band into one 64-bit bucket key. The
// result maps table index to key. Two fingerprints agreeing on every value
// of a band collide in that table's bucket.
func (m *MinHash) Bucketize(sig []int32) ([]uint64, error) {
	if len(sig) < m.hashTables*m.hashKeys {
		return nil, fmt.Errorf("minhash: signature has %d values, need %d", len(sig), m.hashTables*m.hashKeys)
	}

	keys := make([]uint64, m.hashTables)
	buf := make([]byte, 4*(m.hashKeys+1))
	for t := 0; t < m.hashTables; t++ {
		binary.LittleEndian.PutUint32(buf, uint32(t))
		band := sig[t*m.hashKeys : (t+1)*m.hashKeys]
		for i, v := range band {
			binary.LittleEndian.PutUint32(buf[4*(i+1):], uint32(v))
		}
		keys[t] = xxhash.Checksum64(buf)
	}
	return keys, nil
}
