package dataset

import (
	"math"
	"math/rand"

	"github.com/pkg/errors"
)

// SplitSizes returns the train and test sizes for n samples. The test size is
// rounded up and the train split takes the remainder.
//
// Arguments:
//   - n: Total number of samples.
//   - testSize: Held-out fraction in (0,1).
//
// Returns:
//   - int: Number of training samples.
//   - int: Number of test samples.
//   - error: If either split would be empty.
func SplitSizes(n int, testSize float64) (int, int, error) {
	if testSize <= 0 || testSize >= 1 {
		return 0, 0, errors.Errorf("test size must be in (0,1), got %g", testSize)
	}
	nTest := int(math.Ceil(testSize * float64(n)))
	nTrain := n - nTest
	if nTest < 1 || nTrain < 1 {
		return 0, 0, errors.Errorf("%d samples cannot be split with test size %g", n, testSize)
	}
	return nTrain, nTest, nil
}

// Split shuffles indices [0,n) with a seeded PRNG and partitions them into a
// training and a held-out set. The same n, testSize and seed always produce
// the same partition.
//
// Arguments:
//   - n: Total number of samples.
//   - testSize: Held-out fraction in (0,1).
//   - seed: PRNG seed.
//
// Returns:
//   - []int: Training indices.
//   - []int: Test indices.
//   - error: If the sizes are invalid.
func Split(n int, testSize float64, seed int64) ([]int, []int, error) {
	nTrain, nTest, err := SplitSizes(n, testSize)
	if err != nil {
		return nil, nil, err
	}
	perm := rand.New(rand.NewSource(seed)).Perm(n)
	test := append([]int(nil), perm[:nTest]...)
	train := append([]int(nil), perm[nTest:nTest+nTrain]...)
	return train, test, nil
}

// Take returns the elements of xs at the given indices.
func Take[T any](xs []T, idx []int) []T {
	out := make([]T, len(idx))
	for i, j := range idx {
		out[i] = xs[j]
	}
	return out
}
