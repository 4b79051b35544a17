package savigp

import (
	"math/rand"

	"go.uber.org/zap"
	"golang.org/x/exp/constraints"
	"gonum.org/v1/gonum/mat"
)

//////
// Models.
//////

// ParamGroup tags a subset of a model's parameters that can be optimised
// independently.
type ParamGroup string

const (
	// GroupMoG selects the posterior parameters: component means,
	// covariances and mixing weights.
	GroupMoG ParamGroup = "mog"

	// GroupHyp selects the kernel hyperparameters.
	GroupHyp ParamGroup = "hyp"

	// GroupLikelihood selects the likelihood parameters (noise variance).
	GroupLikelihood ParamGroup = "ll"
)

// Model is the capability every trainable predictor exposes to the pipeline.
// The pipeline never looks past this interface, so any stub satisfying it can
// stand in for the real inference engine.
//
// ParamNames and ParamValues must have equal length and be order aligned.
type Model interface {
	// Optimize runs the bounded-iteration optimisation over the requested
	// parameter groups. Hitting the iteration budget is not an error.
	Optimize(opts OptimizeOptions) error

	// Predict returns the predictive mean and variance for each row of Xnew,
	// both as n×1 matrices.
	Predict(Xnew *mat.Dense) (mean, variance *mat.Dense, err error)

	// ParamNames enumerates parameter names.
	ParamNames() []string

	// ParamValues enumerates parameter values, aligned with ParamNames.
	ParamValues() []float64

	// Kind is the type tag written in the header row of the model export.
	Kind() string
}

// OptimizeOptions controls Model.Optimize.
type OptimizeOptions struct {
	// Groups lists the parameter groups to optimise, in the order they are
	// visited on each cycle. Empty means every group the model supports.
	Groups []ParamGroup

	// MaxIterations bounds the total number of optimiser iterations across
	// all groups and cycles. Zero or less selects DefaultMaxIterations.
	MaxIterations int

	// Tolerance stops cycling once a full pass over Groups improves the
	// objective by less than this amount. Zero selects DefaultTolerance.
	Tolerance float64

	// Verbose renders a progress bar on stderr while optimising.
	Verbose bool

	// Logger receives per-group progress. Nil means the model's logger.
	Logger *zap.Logger
}

// ModelOption customises model construction.
type ModelOption func(*modelOptions)

type modelOptions struct {
	logger    *zap.Logger
	inducing  *mat.Dense
	normalize bool
}

// WithLogger attaches a logger to a model. Models log nothing by default.
func WithLogger(logger *zap.Logger) ModelOption {
	return func(o *modelOptions) {
		o.logger = logger
	}
}

// WithInducingInputs fixes the inducing inputs instead of drawing a random
// subset of the training inputs.
func WithInducingInputs(z *mat.Dense) ModelOption {
	return func(o *modelOptions) {
		o.inducing = z
	}
}

// WithNormalizedOutputs makes an ExactGP standardise its targets before
// fitting and undo the scaling on prediction.
func WithNormalizedOutputs() ModelOption {
	return func(o *modelOptions) {
		o.normalize = true
	}
}

func applyModelOptions(opts []ModelOption) modelOptions {
	o := modelOptions{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	return o
}

//////
// Initial hyperparameter search.
//////

// ProgressUpdate represents the current state of the search process.
type ProgressUpdate struct {
	// Phase indicates whether we're in initial sampling or optimization phase
	Phase string

	// CurrentIteration is the current iteration number
	CurrentIteration int

	// TotalIterations is the total number of iterations to run
	TotalIterations int

	// CurrentParams holds the parameter values being tested
	CurrentParams []float64

	// CurrentBestParams holds the best parameters found so far
	CurrentBestParams []float64

	// CurrentBestValue holds the best objective value found so far
	CurrentBestValue float64

	// LastValue holds the objective value of the last evaluation
	LastValue float64
}

// ParameterRange defines the valid range for a searched parameter. Both bounds
// are inclusive and Min must not exceed Max.
//
// Usage:
//
//	// Log kernel variance between e^-2 and e^2
//	logVariance := ParameterRange[float64]{
//	    Min: -2,
//	    Max: 2,
//	}
type ParameterRange[T constraints.Float] struct {
	// Min defines the minimum allowed value (inclusive).
	Min T

	// Max defines the maximum allowed value (inclusive).
	Max T
}

// ObjectiveFunc is the function minimised by the search. It receives one
// value per ParameterRange, in order.
//
// Returns:
// - float64: the objective value (lower is better)
// - error: non-nil marks the point as failed; it is recorded with a penalty
//
// Usage example:
//
//	objective := ObjectiveFunc[float64](func(params ...float64) (float64, error) {
//	    model, err := build(math.Exp(params[0]), math.Exp(params[1]))
//	    if err != nil {
//	        return 0, err
//	    }
//	    return -model.ELBO(), nil
//	})
type ObjectiveFunc[T constraints.Float] func(params ...T) (float64, error)

// AcquisitionFunc scores a candidate from the surrogate's predictive mean and
// variance. Lower values indicate more promising points.
//
// Built-in acquisition functions:
// - UCB: Upper Confidence Bound
// - ProbabilityOfImprovement: Probability of finding better value
// - ExpectedImprovement: Expected magnitude of improvement
// - ThompsonSampling: Random sampling from posterior
//
// Implementation notes for custom acquisition functions:
// - Should handle edge cases (zero variance, extreme means)
// - Should return lower values for more promising points
type AcquisitionFunc func(mean, variance float64, params AcquisitionParams) float64

// AcquisitionParams holds parameters used by the acquisition functions.
type AcquisitionParams struct {
	// Beta controls the exploration-exploitation trade-off in UCB. Higher
	// values explore uncertain areas more. Typical values range from 0.1 to
	// 5.0, with 2.0 being a good default.
	Beta float64

	// Xi is the minimum improvement over BestSoFar sought by PI and EI.
	// Typical values range from 0.01 to 0.1.
	Xi float64

	// BestSoFar keeps track of the best (lowest) objective seen so far. It
	// must start at math.MaxFloat64 and is updated by the search.
	BestSoFar float64

	// RandomState is the random number generator used by Thompson Sampling.
	// Do not share it between concurrent searches.
	RandomState *rand.Rand
}

// SearchConfig holds all configuration parameters for the initial
// hyperparameter search.
//
// Usage example:
//
//	config := SearchConfig{
//	    Iterations:      20,
//	    InitialSamples:  5,
//	    NumCandidates:   100,
//	    AcquisitionFunc: ExpectedImprovement,
//	    AcqParams: AcquisitionParams{
//	        Xi:        0.01,
//	        BestSoFar: math.MaxFloat64,
//	    },
//	    Seed: 12000,
//	}
type SearchConfig struct {
	// Iterations determines how many acquisition-driven evaluations follow
	// the initial sampling phase.
	Iterations int

	// InitialSamples determines how many random points are evaluated before
	// the surrogate is consulted.
	InitialSamples int

	// NumCandidates determines how many random candidates are scored by the
	// acquisition function in each iteration.
	NumCandidates int

	// AcquisitionFunc determines the strategy for selecting the next point.
	AcquisitionFunc AcquisitionFunc

	// AcqParams holds the parameters for the acquisition function.
	AcqParams AcquisitionParams

	// Seed seeds the candidate generator and, when AcqParams.RandomState is
	// nil, Thompson Sampling.
	Seed int64

	// ProgressChan is used to send progress updates during the search.
	// If nil, no updates will be sent. Sends never block.
	ProgressChan chan<- ProgressUpdate

	// Logger receives surrogate failures at debug level. Nil discards them.
	Logger *zap.Logger
}
