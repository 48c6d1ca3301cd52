package dataset

import (
	"fmt"
	"math/rand"

	"carvision/annotations"
)

// DefaultTrainFraction is the share of records assigned to the training
// split when no fraction is configured.
const DefaultTrainFraction = 0.8

// Partition deterministically shuffles the raw training records and splits
// them into training and validation subsets. The permutation is produced by
// a rand.Rand seeded with the given seed, so the resulting index sets are
// identical across runs for the same (seed, input size). The two subsets are
// disjoint and together cover every input record. The training subset holds
// the first floor(fraction*N) permuted records.
func Partition(records []annotations.Record, fraction float64, seed int64) ([]annotations.Record, []annotations.Record, error) {
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("cannot partition an empty record set")
	}
	if fraction <= 0 || fraction >= 1 {
		return nil, nil, fmt.Errorf("train fraction must be in (0, 1), got %f", fraction)
	}

	n := len(records)
	perm := rand.New(rand.NewSource(seed)).Perm(n)
	trainSize := int(fraction * float64(n))

	train := make([]annotations.Record, trainSize)
	for i := 0; i < trainSize; i++ {
		train[i] = records[perm[i]]
	}

	valid := make([]annotations.Record, n-trainSize)
	for i := trainSize; i < n; i++ {
		valid[i-trainSize] = records[perm[i]]
	}

	return train, valid, nil
}
