package engine

import (
	"sync"

	"github.com/unexpectedexception/findsimilar/model"
)

// accumulatorShards is the stripe count of the per-query accumulator.
// Votes, sums and minima are associative and commutative, so partial results
// from concurrent lookups can merge into stripes without a global lock.
const accumulatorShards = 16

type trackStats struct {
	votes      int
	sumHamming int
	minHamming int
}

type accumulatorShard struct {
	mu sync.Mutex
	m  map[model.TrackID]*trackStats
}

// accumulator merges per-candidate similarity evidence, striped by track ID.
// It is the only concurrently mutated structure of a query.
type accumulator struct {
	shards [accumulatorShards]accumulatorShard
}

func newAccumulator() *accumulator {
	a := &accumulator{}
	for i := range a.shards {
		a.shards[i].m = make(map[model.TrackID]*trackStats)
	}
	return a
}

// add records one bucket match for a track with the given Hamming distance.
func (a *accumulator) add(id model.TrackID, hamming int) {
	shard := &a.shards[uint32(id)%accumulatorShards]
	shard.mu.Lock()
	defer shard.mu.Unlock()

	st, ok := shard.m[id]
	if !ok {
		shard.m[id] = &trackStats{votes: 1, sumHamming: hamming, minHamming: hamming}
		return
	}
	st.votes++
	st.sumHamming += hamming
	if hamming < st.minHamming {
		st.minHamming = hamming
	}
}

// collect returns a copy of all accumulated stats. Callers must ensure all
// add calls have completed; the query path enforces that barrier with its
// errgroup Wait.
func (a *accumulator) collect() map[model.TrackID]trackStats {
	out := make(map[model.TrackID]trackStats)
	for i := range a.shards {
		shard := &a.shards[i]
		shard.mu.Lock()
		for id, st := range shard.m {
			out[id] = *st
		}
		shard.mu.Unlock()
	}
	return out
}
