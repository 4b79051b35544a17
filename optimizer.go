package savigp

import (
	"math"

	"github.com/cheggaaa/pb/v3"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/optimize"
)

//////
// Const, vars, types.
//////

const (
	// DefaultMaxIterations is the iteration budget used when
	// OptimizeOptions.MaxIterations is not set.
	DefaultMaxIterations = 1000

	// DefaultTolerance is the minimum improvement of a full cycle over the
	// requested groups before optimisation stops.
	DefaultTolerance = 1e-4
)

// groupObjective is what optimizeGroups drives. Models expose their
// parameters per group and evaluate the negated objective (lower is better)
// at arbitrary group parameters without committing them.
type groupObjective interface {
	supports(g ParamGroup) bool
	groupParams(g ParamGroup) []float64
	setGroupParams(g ParamGroup, p []float64)

	// negObjective returns the negated objective with group g set to p. When
	// grad is non-nil it receives the gradient of the returned value.
	negObjective(g ParamGroup, p, grad []float64) float64
}

//////
// Exported functionalities.
//////

// ParseGroups converts string tags ("mog", "hyp", "ll") into ParamGroups.
// Duplicates are kept; unknown tags are an ErrInvalidArgument.
func ParseGroups(tags []string) ([]ParamGroup, error) {
	groups := make([]ParamGroup, 0, len(tags))

	for _, tag := range tags {
		switch g := ParamGroup(tag); g {
		case GroupMoG, GroupHyp, GroupLikelihood:
			groups = append(groups, g)
		default:
			return nil, invalidArgument("unknown parameter group %q", tag)
		}
	}

	return groups, nil
}

//////
// Helper functions.
//////

// optimizeGroups minimises obj one group at a time, cycling through
// opts.Groups until a cycle improves by less than the tolerance or the
// iteration budget is spent. The best parameters found for each group are
// kept even when the optimiser reports a failure; non-convergence is logged,
// never returned.
//
// Returns the final negated objective.
func optimizeGroups(
	obj groupObjective,
	opts OptimizeOptions,
	defaults []ParamGroup,
	logger *zap.Logger,
	method func() optimize.Method,
) (float64, error) {
	if opts.Logger != nil {
		logger = opts.Logger
	}

	groups := opts.Groups
	if len(groups) == 0 {
		groups = defaults
	}

	active := make([]ParamGroup, 0, len(groups))

	for _, g := range groups {
		switch g {
		case GroupMoG, GroupHyp, GroupLikelihood:
		default:
			return math.NaN(), invalidArgument("unknown parameter group %q", g)
		}

		if !obj.supports(g) {
			logger.Debug("skipping unsupported parameter group", zap.String("group", string(g)))

			continue
		}

		active = append(active, g)
	}

	budget := opts.MaxIterations
	if budget <= 0 {
		budget = DefaultMaxIterations
	}

	tol := opts.Tolerance
	if tol <= 0 {
		tol = DefaultTolerance
	}

	current := func() float64 {
		if len(active) == 0 {
			return math.NaN()
		}

		return obj.negObjective(active[0], obj.groupParams(active[0]), nil)
	}

	prev := current()
	if len(active) == 0 {
		return prev, nil
	}

	var bar *pb.ProgressBar
	if opts.Verbose {
		bar = pb.StartNew(budget)
		defer bar.Finish()
	}

	for cycle := 0; budget > 0; cycle++ {
		for _, g := range active {
			if budget <= 0 {
				break
			}

			used := minimizeGroup(obj, g, budget, tol, logger, method)
			budget -= used

			if bar != nil {
				bar.Add(used)
			}
		}

		now := current()

		logger.Debug("optimisation cycle finished",
			zap.Int("cycle", cycle),
			zap.Float64("objective", -now),
			zap.Int("budget_left", budget),
		)

		if math.IsInf(now, 0) || math.IsNaN(now) || prev-now < tol {
			prev = now

			break
		}

		prev = now
	}

	if budget <= 0 {
		logger.Info("iteration budget exhausted before convergence", zap.Float64("objective", -prev))
	}

	return prev, nil
}

// minimizeGroup runs one optimiser pass over a single group and commits the
// best point found if it improves on the starting point. It returns the
// number of iterations charged against the budget (at least one).
func minimizeGroup(
	obj groupObjective,
	g ParamGroup,
	budget int,
	tol float64,
	logger *zap.Logger,
	method func() optimize.Method,
) int {
	x0 := obj.groupParams(g)
	if len(x0) == 0 {
		return 1
	}

	f0 := obj.negObjective(g, x0, nil)

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			return obj.negObjective(g, x, nil)
		},
		Grad: func(grad, x []float64) {
			obj.negObjective(g, x, grad)
		},
	}

	settings := &optimize.Settings{
		MajorIterations: budget,
		Converger: &optimize.FunctionConverge{
			Absolute:   tol,
			Iterations: 10,
		},
	}

	result, err := optimize.Minimize(problem, x0, settings, method())
	if err != nil {
		logger.Debug("optimiser stopped early", zap.String("group", string(g)), zap.Error(err))
	}

	if result == nil {
		return 1
	}

	if !math.IsNaN(result.F) && result.F < f0 {
		obj.setGroupParams(g, result.X)
	}

	logger.Debug("group optimised",
		zap.String("group", string(g)),
		zap.String("status", result.Status.String()),
		zap.Int("iterations", result.Stats.MajorIterations),
		zap.Float64("objective", -math.Min(result.F, f0)),
	)

	if result.Stats.MajorIterations < 1 {
		return 1
	}

	return result.Stats.MajorIterations
}

// numericalGradient fills grad with the central finite-difference gradient
// of f at x.
func numericalGradient(grad []float64, f func([]float64) float64, x []float64) {
	fd.Gradient(grad, f, x, &fd.Settings{Formula: fd.Central})
}

func lbfgs() optimize.Method { return &optimize.LBFGS{} }

func bfgs() optimize.Method { return &optimize.BFGS{} }
