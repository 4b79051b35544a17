package savigp

import "math"

// UCB implements the Upper Confidence Bound acquisition function for
// minimisation: it rewards low predicted values and high uncertainty.
//
// Parameters:
// - mean: surrogate's predicted objective at the candidate
// - variance: surrogate's predictive variance at the candidate
// - params: only Beta is used
//
// Formula:
//
//	UCB = mean - Beta * sqrt(variance)
//
// Usage example:
//
//	config := DefaultSearchConfig()
//	config.AcquisitionFunc = UCB
//	config.AcqParams.Beta = 2.0
func UCB(mean, variance float64, params AcquisitionParams) float64 {
	return mean - params.Beta*math.Sqrt(variance)
}

// ProbabilityOfImprovement scores a candidate by the probability that it
// does NOT improve on BestSoFar by at least Xi, so lower is more promising.
//
// Formula:
//
//	z = (mean - BestSoFar - Xi) / sqrt(variance)
//	PI = Φ(z)
func ProbabilityOfImprovement(mean, variance float64, params AcquisitionParams) float64 {
	z := (mean - params.BestSoFar - params.Xi) / math.Sqrt(variance)

	return normalCDF(z)
}

// ExpectedImprovement returns the negated expected improvement over
// BestSoFar, so lower is more promising.
//
// Formula:
//
//	d = BestSoFar - mean - Xi
//	z = d / sqrt(variance)
//	EI = -(d * Φ(z) + sqrt(variance) * φ(z))
func ExpectedImprovement(mean, variance float64, params AcquisitionParams) float64 {
	sigma := math.Sqrt(variance)
	if sigma == 0 {
		return -math.Max(params.BestSoFar-mean-params.Xi, 0)
	}

	d := params.BestSoFar - mean - params.Xi
	z := d / sigma

	return -(d*normalCDF(z) + sigma*normalPDF(z))
}

// ThompsonSampling draws one sample from the surrogate's predictive
// distribution. It requires AcqParams.RandomState.
func ThompsonSampling(mean, variance float64, params AcquisitionParams) float64 {
	return mean + math.Sqrt(variance)*params.RandomState.NormFloat64()
}

// AcquisitionByName maps "ucb", "pi", "ei" and "thompson" to the built-in
// acquisition functions.
func AcquisitionByName(name string) (AcquisitionFunc, error) {
	switch name {
	case "", "ucb":
		return UCB, nil
	case "pi":
		return ProbabilityOfImprovement, nil
	case "ei":
		return ExpectedImprovement, nil
	case "thompson":
		return ThompsonSampling, nil
	default:
		return nil, invalidArgument("unknown acquisition function %q", name)
	}
}
