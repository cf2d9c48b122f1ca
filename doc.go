// Package findsimilar provides audio track identification for Go.
//
// Tracks are fingerprinted as fixed-length binary vectors derived from a
// log-frequency spectrogram and a standard 2-D Haar wavelet decomposition,
// indexed under locality-sensitive Min-Hash buckets, and recognized from
// short clips with a vote-and-rank query over the bucket index.
//
// # Quick Start
//
// Build a catalog on an in-memory store and recognize a clip:
//
//	ctx := context.Background()
//
//	fs, err := findsimilar.New(store.NewMemoryStore())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer fs.Close()
//
//	_, _, err = fs.InsertFile(ctx, model.Track{Artist: "Artist", Title: "Title"}, "track.wav")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	matches, err := fs.QueryFile(ctx, "clip.wav", func(o *audio.Options) {
//	    o.Duration = 10 * time.Second
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if len(matches) > 0 {
//	    fmt.Println("best match:", matches[0].Track.Title)
//	}
//
// # Stores
//
// Two store implementations ship with the module:
//
//   - store.MemoryStore: mutex-guarded in-memory catalog with Roaring
//     bitmap bucket posting lists; snapshot save/load via the snapshot
//     package.
//   - store.BadgerStore: embedded persistent catalog on Badger.
//
// # Determinism
//
// Fingerprints, Min-Hash signatures and query rankings are deterministic
// for fixed configuration, across runs and across worker counts. The
// permutation table is derived from a seed fixed per deployment; persist it
// with Permutations().Save and verify it at startup with
// VerifyPermutationChecksum to catch configuration drift before it
// silently corrupts results.
package findsimilar
