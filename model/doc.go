// Package model defines the core value types shared across the findsimilar
// packages: tracks, fingerprints, hash bins and query statistics.
package model
