// Package ports defines the interfaces that form the contract between
// the domain/application layers and the infrastructure layer.
package ports

import (
	"context"

	"github.com/ahrav/imgverdict/internal/domain"
)

// SourceClient is one external classification service as seen by the
// batch processor. Every vendor-specific detail (transport, payload shape,
// label heuristics) stays behind this interface, so the aggregator never
// branches on source identity.
//
// Classify must never panic and never return an error: any failure,
// timeout or uninformative answer yields nil. A non-nil result is the
// raw score the source reported on the 0-1 scale, which may still be
// rejected by the validity filter.
//
// Implementations must be safe for concurrent use; the batch processor
// calls every source for every image in parallel.
type SourceClient interface {
	// Name returns the configured source name used as the key in
	// RawScores, Weights and verdict maps.
	Name() string

	// Classify scores one image. The context carries the per-image
	// deadline.
	Classify(ctx context.Context, img domain.Image) *float64
}

// DuplicateFinder groups perceptually identical images of a batch.
type DuplicateFinder interface {
	// FindDuplicates returns groups of image names, each with at least two
	// members, in input order. Images that cannot be decoded are skipped.
	FindDuplicates(ctx context.Context, images []domain.Image) [][]string
}
