package findsimilar

import (
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/unexpectedexception/findsimilar/blobstore"
	"github.com/unexpectedexception/findsimilar/fingerprint"
	"github.com/unexpectedexception/findsimilar/minhash"
)

// DefaultPermutationSeed seeds the permutation table when no explicit table
// or seed is configured. Changing the seed invalidates every signature in an
// existing catalog, so it is fixed per deployment.
const DefaultPermutationSeed int64 = 4242

type options struct {
	hashTables        int
	hashKeys          int
	thresholdTables   int
	workers           int
	insertLimit       *rate.Limiter
	permutationSeed   int64
	permutations      *minhash.Permutations
	fingerprintOptFns []func(o *fingerprint.Options)
	metricsCollector  MetricsCollector
	logger            *Logger
	blobs             blobstore.BlobStore
}

// Option configures FindSimilar constructor behavior.
type Option func(*options)

// WithHashTables configures the number of LSH hash tables. Each query
// fingerprint performs one bucket lookup per table, and a candidate track
// earns at most one vote per table. More tables raise recall at the cost of
// lookup fan-out.
func WithHashTables(n int) Option {
	return func(o *options) {
		o.hashTables = n
	}
}

// WithHashKeys configures the number of min-hash values packed into one
// bucket key. More keys make buckets more selective.
func WithHashKeys(n int) Option {
	return func(o *options) {
		o.hashKeys = n
	}
}

// WithThresholdTables configures the minimum number of table votes a
// candidate track needs to appear in query results. Must be in
// [1, hashTables].
func WithThresholdTables(n int) Option {
	return func(o *options) {
		o.thresholdTables = n
	}
}

// WithWorkers bounds the goroutines used by queries and batch ingestion.
// Zero means GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// WithInsertRateLimit rate-limits batch ingestion. Pass nil to disable.
func WithInsertRateLimit(l *rate.Limiter) Option {
	return func(o *options) {
		o.insertLimit = l
	}
}

// WithPermutationSeed derives the permutation table from the given seed.
// All nodes of a deployment must use the same seed, or signatures computed
// at insert and query time will disagree.
func WithPermutationSeed(seed int64) Option {
	return func(o *options) {
		o.permutationSeed = seed
	}
}

// WithPermutations uses an explicit permutation table, typically loaded
// with minhash.Load from a table saved at catalog creation. Takes
// precedence over WithPermutationSeed.
func WithPermutations(ps *minhash.Permutations) Option {
	return func(o *options) {
		o.permutations = ps
	}
}

// WithFingerprintOptions customizes the fingerprint pipeline, e.g. the
// spectrogram band, the fingerprint length or the stride policy.
//
// Example:
//
//	fs, err := findsimilar.New(st, findsimilar.WithFingerprintOptions(func(o *fingerprint.Options) {
//	    o.TopWavelets = 150
//	}))
func WithFingerprintOptions(optFns ...func(o *fingerprint.Options)) Option {
	return func(o *options) {
		o.fingerprintOptFns = append(o.fingerprintOptFns, optFns...)
	}
}

// WithBlobStore configures a blob store for blob-backed ingestion.
func WithBlobStore(bs blobstore.BlobStore) Option {
	return func(o *options) {
		o.blobs = bs
	}
}

// WithMetricsCollector configures a metrics collector for monitoring
// operations. Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &findsimilar.BasicMetricsCollector{}
//	fs, _ := findsimilar.New(st, findsimilar.WithMetricsCollector(metrics))
//	// ... use fs ...
//	stats := metrics.GetStats()
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := findsimilar.NewJSONLogger(slog.LevelInfo)
//	fs, _ := findsimilar.New(st, findsimilar.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		hashTables:       25,
		hashKeys:         4,
		thresholdTables:  5,
		permutationSeed:  DefaultPermutationSeed,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.metricsCollector == nil {
		o.metricsCollector = NoopMetricsCollector{}
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	return o
}
