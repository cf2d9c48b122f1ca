// Package engine coordinates the insertion workflow and the query engine on
// top of a storage collaborator: fingerprints in, ranked track matches out.
package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/unexpectedexception/findsimilar/fingerprint"
	"github.com/unexpectedexception/findsimilar/minhash"
	"github.com/unexpectedexception/findsimilar/model"
	"github.com/unexpectedexception/findsimilar/store"
)

// minHammingWeight is the weight of the minimum Hamming distance in the
// ranking key: rankingKey = sumHamming/votes + 0.4*minHamming.
const minHammingWeight = 0.4

// ErrConfigMismatch is returned at construction when the pipeline's
// fingerprint bit length and the Min-Hash permutation table disagree.
// This class of divergence never raises an error on the hot path, it
// silently corrupts every similarity result, so it must be caught here.
var ErrConfigMismatch = errors.New("engine: fingerprint bit length and permutation table disagree")

// Options configure a Coordinator.
type Options struct {
	// ThresholdTables is the minimum vote count a candidate track needs to
	// survive ranking. Must be in [1, hashTables].
	ThresholdTables int

	// MaxConcurrency bounds the worker goroutines of a query or batch
	// insert. Zero means GOMAXPROCS.
	MaxConcurrency int

	// InsertLimit rate-limits batch ingestion. Nil means unlimited.
	InsertLimit *rate.Limiter
}

// DefaultOptions are the deployment defaults for the coordinator.
var DefaultOptions = Options{
	ThresholdTables: 5,
}

// Coordinator wires the fingerprint pipeline, the Min-Hash indexer and a
// store into the two top-level workflows, insertion and query. It is
// immutable after construction and safe for concurrent use.
type Coordinator struct {
	store    store.Store
	pipeline *fingerprint.Pipeline
	mh       *minhash.MinHash
	opts     Options
}

// New creates a Coordinator and validates the cross-component configuration.
func New(s store.Store, p *fingerprint.Pipeline, mh *minhash.MinHash, optFns ...func(o *Options)) (*Coordinator, error) {
	if s == nil {
		return nil, fmt.Errorf("engine: store is required")
	}
	if p == nil {
		return nil, fmt.Errorf("engine: fingerprint pipeline is required")
	}
	if mh == nil {
		return nil, fmt.Errorf("engine: minhash indexer is required")
	}

	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	if p.BitLength() != mh.BitLength() {
		return nil, fmt.Errorf("%w: pipeline produces %d bits, permutations cover %d", ErrConfigMismatch, p.BitLength(), mh.BitLength())
	}
	if opts.ThresholdTables <= 0 || opts.ThresholdTables > mh.Tables() {
		return nil, fmt.Errorf("engine: threshold tables must be in [1, %d], got %d", mh.Tables(), opts.ThresholdTables)
	}

	return &Coordinator{store: s, pipeline: p, mh: mh, opts: opts}, nil
}

// Insert persists a track, its fingerprints and its hash bins as one logical
// unit. On any partial failure the already-persisted rows are compensated
// with a delete, so a track is never queryable in a half-indexed state.
// It returns the assigned track ID and the number of fingerprints indexed.
func (c *Coordinator) Insert(ctx context.Context, track model.Track, samples []float64) (model.TrackID, int, error) {
	res, err := c.pipeline.FromSamples(samples)
	if err != nil {
		return 0, 0, err
	}
	return c.InsertFingerprints(ctx, track, res.Fingerprints)
}

// InsertFingerprints runs the insertion workflow for precomputed
// fingerprints. Sequence numbers must reflect time order.
func (c *Coordinator) InsertFingerprints(ctx context.Context, track model.Track, fps []model.Fingerprint) (model.TrackID, int, error) {
	trackID, err := c.store.InsertTrack(ctx, track)
	if err != nil {
		// Fail fast: nothing persisted yet.
		return 0, 0, fmt.Errorf("engine: insert track: %w", err)
	}

	// Tag copies; the caller's fingerprints stay untouched.
	tagged := make([]model.Fingerprint, len(fps))
	copy(tagged, fps)
	for i := range tagged {
		tagged[i].TrackID = trackID
	}

	fpIDs, err := c.store.InsertFingerprints(ctx, tagged)
	if err != nil {
		return 0, 0, c.compensate(ctx, trackID, fmt.Errorf("engine: insert fingerprints: %w", err))
	}

	bins := make([]model.HashBin, 0, len(tagged)*c.mh.Tables())
	for i, fp := range tagged {
		sig, err := c.mh.Signature(fp.Bits)
		if err != nil {
			return 0, 0, c.compensate(ctx, trackID, err)
		}
		keys, err := c.mh.Bucketize(sig)
		if err != nil {
			return 0, 0, c.compensate(ctx, trackID, err)
		}
		for table, key := range keys {
			bins = append(bins, model.HashBin{
				Table:         table,
				Key:           key,
				TrackID:       trackID,
				FingerprintID: fpIDs[i],
			})
		}
	}

	if err := c.store.InsertHashBins(ctx, bins); err != nil {
		return 0, 0, c.compensate(ctx, trackID, fmt.Errorf("engine: insert hash bins: %w", err))
	}

	return trackID, len(fps), nil
}

// compensate rolls back a partially inserted track. A failed rollback is
// reported alongside the original error; the caller decides whether to
// retry the cleanup.
func (c *Coordinator) compensate(ctx context.Context, trackID model.TrackID, cause error) error {
	if err := c.store.DeleteTrack(ctx, trackID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w (rollback of track %d also failed: %v)", cause, trackID, err)
	}
	return cause
}

// BatchItem is one track to ingest from a WAV file.
type BatchItem struct {
	Track model.Track
	Path  string
}

// BatchResult reports one item's outcome.
type BatchResult struct {
	TrackID      model.TrackID
	Fingerprints int
	Err          error
}

// InsertBatch ingests WAV files with bounded concurrency, honoring the
// configured rate limit. Results are positionally aligned with items; a
// failed item never aborts its siblings.
func (c *Coordinator) InsertBatch(ctx context.Context, items []BatchItem) []BatchResult {
	results := make([]BatchResult, len(items))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers())
	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			if c.opts.InsertLimit != nil {
				if err := c.opts.InsertLimit.Wait(ctx); err != nil {
					results[i] = BatchResult{Err: err}
					return nil
				}
			}

			res, err := c.pipeline.FromFile(item.Path)
			if err != nil {
				results[i] = BatchResult{Err: err}
				return nil
			}
			trackID, n, err := c.InsertFingerprints(ctx, item.Track, res.Fingerprints)
			results[i] = BatchResult{TrackID: trackID, Fingerprints: n, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// Search fingerprints the query samples and ranks catalog candidates.
func (c *Coordinator) Search(ctx context.Context, samples []float64) ([]model.Match, error) {
	res, err := c.pipeline.FromSamples(samples)
	if err != nil {
		return nil, err
	}
	return c.SearchFingerprints(ctx, res.Fingerprints)
}

// SearchFingerprints retrieves bucket-matching candidates for every query
// fingerprint, accumulates similarity evidence per track and returns the
// surviving candidates ranked ascending by ranking key, ties broken by
// track ID. The ordering is identical regardless of concurrency.
func (c *Coordinator) SearchFingerprints(ctx context.Context, fps []model.Fingerprint) ([]model.Match, error) {
	acc := newAccumulator()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers())
	for _, fp := range fps {
		fp := fp
		g.Go(func() error {
			return c.accumulateCandidates(gctx, fp, acc)
		})
	}
	// Full barrier: ranking must observe every accumulated match.
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return c.rank(ctx, acc.collect())
}

// accumulateCandidates processes one query fingerprint: bucketize, look up
// colliding bins per table, and fold each candidate's Hamming distance into
// the shared accumulator.
func (c *Coordinator) accumulateCandidates(ctx context.Context, fp model.Fingerprint, acc *accumulator) error {
	sig, err := c.mh.Signature(fp.Bits)
	if err != nil {
		return err
	}
	keys, err := c.mh.Bucketize(sig)
	if err != nil {
		return err
	}

	var candidates []model.HashBin
	for table, key := range keys {
		bins, err := c.store.LookupHashBin(ctx, table, key)
		if err != nil {
			return fmt.Errorf("engine: lookup table %d: %w", table, err)
		}
		candidates = append(candidates, bins...)
	}
	if len(candidates) == 0 {
		return nil
	}

	ids := make([]model.FingerprintID, 0, len(candidates))
	seen := make(map[model.FingerprintID]struct{}, len(candidates))
	for _, bin := range candidates {
		if _, ok := seen[bin.FingerprintID]; ok {
			continue
		}
		seen[bin.FingerprintID] = struct{}{}
		ids = append(ids, bin.FingerprintID)
	}

	stored, err := c.store.FingerprintsByID(ctx, ids)
	if err != nil {
		return fmt.Errorf("engine: read candidate fingerprints: %w", err)
	}

	distances := make(map[model.FingerprintID]int, len(stored))
	for id, cand := range stored {
		d, err := fp.Bits.Hamming(cand.Bits)
		if err != nil {
			return err
		}
		distances[id] = d
	}

	// One vote per bucket match, not per distinct fingerprint.
	for _, bin := range candidates {
		d, ok := distances[bin.FingerprintID]
		if !ok {
			continue // bin outlived its fingerprint; skip, don't fail
		}
		acc.add(bin.TrackID, d)
	}
	return nil
}

// rank filters by vote threshold, derives ranking keys and similarity
// scores, sorts deterministically, and joins track metadata.
func (c *Coordinator) rank(ctx context.Context, stats map[model.TrackID]trackStats) ([]model.Match, error) {
	bitLen := float64(c.mh.BitLength())

	type ranked struct {
		id    model.TrackID
		stats model.QueryStats
	}
	survivors := make([]ranked, 0, len(stats))
	for id, st := range stats {
		if st.votes < c.opts.ThresholdTables {
			continue
		}
		qs := model.QueryStats{
			Votes:      st.votes,
			SumHamming: st.sumHamming,
			MinHamming: st.minHamming,
			RankingKey: float64(st.sumHamming)/float64(st.votes) + minHammingWeight*float64(st.minHamming),
			Similarity: 1 - float64(st.minHamming)/bitLen,
		}
		survivors = append(survivors, ranked{id: id, stats: qs})
	}

	// Explicit stable comparator: ranking key, then track ID. The same
	// comparator serves every call path so sequential and concurrent
	// queries order results identically.
	sort.Slice(survivors, func(i, j int) bool {
		if survivors[i].stats.RankingKey != survivors[j].stats.RankingKey {
			return survivors[i].stats.RankingKey < survivors[j].stats.RankingKey
		}
		return survivors[i].id < survivors[j].id
	})

	ids := make([]model.TrackID, len(survivors))
	for i, r := range survivors {
		ids[i] = r.id
	}
	tracks, err := c.store.TracksByID(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("engine: join track metadata: %w", err)
	}

	matches := make([]model.Match, 0, len(survivors))
	for _, r := range survivors {
		track, ok := tracks[r.id]
		if !ok {
			// A candidate without metadata is dropped, not surfaced
			// as an error.
			continue
		}
		matches = append(matches, model.Match{Track: track, Stats: r.stats})
	}
	return matches, nil
}

// Stats exposes the store's catalog counters.
func (c *Coordinator) Stats(ctx context.Context) (store.Stats, error) {
	return c.store.Stats(ctx)
}

func (c *Coordinator) workers() int {
	if c.opts.MaxConcurrency > 0 {
		return c.opts.MaxConcurrency
	}
	return runtime.GOMAXPROCS(0)
}
