package findsimilar_test

import (
	"context"
	"fmt"
	"log"

	"github.com/unexpectedexception/findsimilar"
	"github.com/unexpectedexception/findsimilar/store"
)

// Example demonstrates creating a catalog on an in-memory store.
func Example() {
	fs, err := findsimilar.New(store.NewMemoryStore())
	if err != nil {
		log.Fatal(err)
	}
	defer fs.Close()

	fmt.Println("catalog created successfully")
	// Output: catalog created successfully
}

// Example_metrics demonstrates collecting basic operational metrics.
func Example_metrics() {
	metrics := &findsimilar.BasicMetricsCollector{}

	fs, err := findsimilar.New(store.NewMemoryStore(),
		findsimilar.WithMetricsCollector(metrics),
	)
	if err != nil {
		log.Fatal(err)
	}
	defer fs.Close()

	_, err = fs.Query(context.Background(), nil)
	if err != nil {
		log.Fatal(err)
	}

	stats := metrics.GetStats()
	fmt.Println("queries:", stats.QueryCount)
	// Output: queries: 1
}

// Example_permutations demonstrates guarding against configuration drift.
func Example_permutations() {
	fs, err := findsimilar.New(store.NewMemoryStore(),
		findsimilar.WithPermutationSeed(7),
	)
	if err != nil {
		log.Fatal(err)
	}
	defer fs.Close()

	// Record the checksum when the catalog is created, verify it on every
	// startup before serving queries.
	sum := fs.Permutations().Checksum()
	if err := fs.VerifyPermutationChecksum(sum); err != nil {
		log.Fatal(err)
	}

	fmt.Println("permutation table verified")
	// Output: permutation table verified
}
