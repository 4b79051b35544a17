package savigp

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Split shuffles the rows of X and Y with one joint permutation and returns
// the first nTrain permuted rows as the training set and the rest as the test
// set.
//
// Parameters:
// - X, Y: row-aligned inputs and outputs
// - nTrain: size of the training set, 0 <= nTrain <= rows(X)
// - rng: source of the permutation; nil uses the process-wide source
//
// Returns fresh matrices; X and Y are not modified. A side with no rows is
// returned as nil.
//
// Usage example:
//
//	rng := rand.New(rand.NewSource(12000))
//	Xtrain, Ytrain, Xtest, Ytest, err := Split(X, Y, 300, rng)
func Split(X, Y *mat.Dense, nTrain int, rng *rand.Rand) (Xtrain, Ytrain, Xtest, Ytest *mat.Dense, err error) {
	n := numRows(X)
	if n != numRows(Y) {
		return nil, nil, nil, nil, invalidArgument("X has %d rows, Y has %d", n, numRows(Y))
	}

	if nTrain < 0 || nTrain > n {
		return nil, nil, nil, nil, invalidArgument("n_train must be in [0, %d], got %d", n, nTrain)
	}

	var perm []int
	if rng != nil {
		perm = rng.Perm(n)
	} else {
		perm = rand.Perm(n)
	}

	Xtrain = gatherRows(X, perm[:nTrain])
	Ytrain = gatherRows(Y, perm[:nTrain])
	Xtest = gatherRows(X, perm[nTrain:])
	Ytest = gatherRows(Y, perm[nTrain:])

	return Xtrain, Ytrain, Xtest, Ytest, nil
}

// gatherRows copies the given rows of m into a new matrix, or returns nil
// when idx is empty.
func gatherRows(m *mat.Dense, idx []int) *mat.Dense {
	if len(idx) == 0 {
		return nil
	}

	out := mat.NewDense(len(idx), numCols(m), nil)
	for i, r := range idx {
		out.SetRow(i, m.RawRowView(r))
	}

	return out
}
