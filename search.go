package savigp

import (
	"math"
	"math/rand"

	"go.uber.org/zap"
	"golang.org/x/exp/constraints"
)

//////
// Exported functionalities.
//////

// DefaultSearchConfig returns a default configuration.
func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		Iterations:      10,
		InitialSamples:  5,
		NumCandidates:   100,
		AcquisitionFunc: UCB,
		AcqParams: AcquisitionParams{
			BestSoFar: math.MaxFloat64,
			Beta:      2.0,
			Xi:        0.01,
		},
		ProgressChan: nil, // Default to no progress updates.
	}
}

// SearchInitialHyperparameters uses Bayesian optimisation to find the point
// inside ranges with the lowest objective. An ExactGP with standardised
// outputs serves as the surrogate.
//
// Type Parameter:
//   - T: The floating-point type for parameters
//
// Parameters:
// - config: SearchConfig controlling the search
// - objective: The function to minimise
// - ranges: One or more ParameterRange defining the search space
//
// Returns:
// - []T: The best parameters found (in same order as ranges)
// - float64: The objective value at those parameters
//
// How it works:
// 1. Evaluates InitialSamples random points to build the surrogate
// 2. For each iteration:
//   - Generates NumCandidates random candidate points
//   - Uses the surrogate to predict the objective at each point
//   - Uses AcquisitionFunc to select the most promising point
//   - Evaluates the selected point and adds it to the surrogate
//
// 3. Returns the best parameters found
//
// Usage example:
//
//	ranges := []ParameterRange[float64]{
//	    {Min: -2, Max: 2}, // log kernel variance
//	    {Min: -3, Max: 1}, // log lengthscale
//	}
//
//	best, value := SearchInitialHyperparameters(DefaultSearchConfig(), objective, ranges...)
//
// Important notes:
// - Failed evaluations never become the best point; the surrogate records
//   them just above the worst value seen so it learns to avoid them
// - If every evaluation fails the returned value is math.MaxFloat64
// - Observations the surrogate cannot absorb are logged and skipped
// - The search is deterministic for a fixed Seed and objective
func SearchInitialHyperparameters[T constraints.Float](
	config SearchConfig,
	objective ObjectiveFunc[T],
	ranges ...ParameterRange[T],
) ([]T, float64) {
	rng := rand.New(rand.NewSource(config.Seed))

	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	if config.AcqParams.RandomState == nil {
		config.AcqParams.RandomState = rand.New(rand.NewSource(config.Seed + 1))
	}

	randomParams := func() []T {
		params := make([]T, len(ranges))
		for i, r := range ranges {
			params[i] = r.Min + T(rng.Float64())*(r.Max-r.Min)
		}

		return params
	}

	// Inputs are mapped to the unit cube so one surrogate lengthscale suits
	// every range.
	normalise := func(params []T) []float64 {
		out := make([]float64, len(params))
		for i, v := range params {
			width := float64(ranges[i].Max - ranges[i].Min)
			if width == 0 {
				continue
			}

			out[i] = float64(v-ranges[i].Min) / width
		}

		return out
	}

	surrogate, err := newEmptyExactGP(len(ranges), NewUnivariateGaussian(1e-4), NewRBF(1, 0.2), WithNormalizedOutputs())
	if err != nil {
		// Only reachable with an empty range list.
		return nil, math.Inf(1)
	}

	bestParams := make([]T, len(ranges))
	bestValue := math.MaxFloat64

	// worst is the highest finite value seen; failures are fed to the
	// surrogate just above it.
	worst, seen := 0.0, false

	// A point the surrogate cannot factorise is dropped; the surrogate keeps
	// its previous observations and fit.
	observe := func(params []T, value float64) {
		if err := surrogate.Update(normalise(params), value); err != nil {
			logger.Debug("surrogate rejected observation",
				zap.Float64s("params", toFloat64s(params)),
				zap.Float64("value", value),
				zap.Error(err),
			)
		}
	}

	evaluate := func(params []T) float64 {
		value, err := objective(params...)
		if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
			observe(params, worst+math.Abs(worst)+1)

			return math.Inf(1)
		}

		if !seen || value > worst {
			worst, seen = value, true
		}

		if value < bestValue {
			bestValue = value
			copy(bestParams, params)
		}

		observe(params, value)

		return value
	}

	sendProgress := func(phase string, iteration, total int, params []T, value float64) {
		if config.ProgressChan == nil {
			return
		}

		update := ProgressUpdate{
			Phase:             phase,
			CurrentIteration:  iteration,
			TotalIterations:   total,
			CurrentParams:     toFloat64s(params),
			CurrentBestParams: toFloat64s(bestParams),
			CurrentBestValue:  bestValue,
			LastValue:         value,
		}

		select {
		case config.ProgressChan <- update:
		default:
			// Skip update if channel is full.
		}
	}

	// Phase 1: Initial random sampling.
	for i := 0; i < config.InitialSamples; i++ {
		params := randomParams()
		value := evaluate(params)

		sendProgress("InitialSampling", i+1, config.InitialSamples, params, value)
	}

	// Phase 2: Bayesian optimisation loop.
	for i := 0; i < config.Iterations; i++ {
		var nextParams []T

		bestAcquisition := math.Inf(1)

		config.AcqParams.BestSoFar = bestValue

		for j := 0; j < config.NumCandidates; j++ {
			candidate := randomParams()

			mean, variance := surrogate.PredictPoint(normalise(candidate))

			acquisition := config.AcquisitionFunc(mean, variance, config.AcqParams)
			if nextParams == nil || acquisition < bestAcquisition {
				bestAcquisition = acquisition
				nextParams = candidate
			}
		}

		if nextParams == nil {
			nextParams = randomParams()
		}

		value := evaluate(nextParams)

		sendProgress("Optimization", i+1, config.Iterations, nextParams, value)
	}

	return bestParams, bestValue
}

//////
// Helper functions.
//////

// toFloat64s converts a slice of parameters to float64 values.
func toFloat64s[T constraints.Float](values []T) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = float64(v)
	}

	return out
}
