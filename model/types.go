package model

import (
	"github.com/unexpectedexception/findsimilar/bitvec"
)

// TrackID uniquely identifies a catalog track. IDs are assigned by the store.
type TrackID uint32

// FingerprintID uniquely identifies a stored fingerprint. IDs are assigned by the store.
type FingerprintID uint32

// Track is a catalog entry. A track owns zero or more fingerprints.
type Track struct {
	ID         TrackID
	Artist     string
	Title      string
	Album      string
	DurationMs int
}

// Fingerprint is a fixed-length binary vector summarizing one spectrogram
// window, tagged with its position within the owning track.
// Immutable once created.
type Fingerprint struct {
	ID         FingerprintID
	TrackID    TrackID
	SequenceNo int
	Bits       *bitvec.Vector
}

// HashBin is one LSH table entry: a fingerprint's bucket key in one table.
// Produced at insertion time, consumed at query time.
type HashBin struct {
	Table         int
	Key           uint64
	TrackID       TrackID
	FingerprintID FingerprintID
}

// QueryStats accumulates similarity evidence for one candidate track.
type QueryStats struct {
	// Votes counts bucket matches across tables and query fingerprints.
	Votes int

	// SumHamming is the sum of Hamming distances over all matches.
	SumHamming int

	// MinHamming is the smallest Hamming distance seen for this track.
	MinHamming int

	// RankingKey orders candidates; lower means more similar.
	RankingKey float64

	// Similarity is a bounded score in [0,1], higher means more similar.
	Similarity float64
}

// Match joins a ranked candidate's stats with its track metadata.
type Match struct {
	Track Track
	Stats QueryStats
}
