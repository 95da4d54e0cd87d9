package dataset

import (
	"math"
	"math/rand"
	"sort"
)

const (
	// DefaultTestFraction is the share of records held out by Split.
	DefaultTestFraction = 0.1
	// DefaultSeed seeds Split and SampleIndices.
	DefaultSeed int64 = 42
	// DefaultSampleFraction is the share of rows printed as a spot check.
	DefaultSampleFraction = 0.01
)

// Split shuffles 0..n-1 once with seed and holds out ceil(testFraction*n)
// indices. The same (n, testFraction, seed) always gives the same split.
// A testFraction of zero or less holds nothing out; otherwise at least one
// index is held out when n > 1, and never all of them.
func Split(n int, testFraction float64, seed int64) (train, test []int) {
	if n <= 0 {
		return nil, nil
	}
	nTest := 0
	if testFraction > 0 {
		nTest = min(int(math.Ceil(testFraction*float64(n))), n-1)
	}

	perm := rand.New(rand.NewSource(seed)).Perm(n)
	return perm[nTest:], perm[:nTest]
}

// SampleIndices picks round(fraction*n) distinct indices, at least one when
// fraction > 0 and n > 0, returned in ascending order.
func SampleIndices(n int, fraction float64, seed int64) []int {
	if n <= 0 || fraction <= 0 {
		return nil
	}
	k := int(math.Round(fraction * float64(n)))
	if k < 1 {
		k = 1
	}
	if k > n {
		k = n
	}
	idx := rand.New(rand.NewSource(seed)).Perm(n)[:k]
	sort.Ints(idx)
	return idx
}
