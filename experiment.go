package savigp

import (
	"math"
	"math/rand"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

// Model names used in exported column headers.
const (
	BaselineModelName    = "gp"
	VariationalModelName = "savigp"
)

// Report summarises one experiment run.
type Report struct {
	// RunID tags every log entry of the run.
	RunID string

	// Dir is the experiment directory holding the exported files.
	Dir string

	// Models lists the exported model names in column order.
	Models []string

	// Summary holds the mean SSE and NLPD per model.
	Summary map[string]MetricSummary

	// ELBO is the variational model's objective after optimisation.
	ELBO float64

	// Kind is the variational model's type tag.
	Kind string
}

// Run executes one experiment: load data, split, fit the variational model
// and the optional exact GP baseline, predict on the test rows, export the
// CSV files and render the plots.
//
// Usage example:
//
//	cfg := DefaultConfig()
//	cfg.Output.Root = "results"
//	report, err := Run(cfg, logger)
//	if err != nil {
//	    return err
//	}
//	fmt.Println(report.Summary["savigp"].MeanSSE)
func Run(cfg *Config, logger *zap.Logger) (*Report, error) {
	if cfg == nil {
		return nil, invalidArgument("config is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	runID := uuid.NewString()
	logger = logger.With(zap.String("run_id", runID), zap.String("experiment", cfg.Name))

	rng := rand.New(rand.NewSource(cfg.Seed))

	X, Y, err := loadDataset(cfg.Dataset, rng)
	if err != nil {
		return nil, err
	}

	if cfg.Dataset.Standardize {
		X = Standardize(X)
	}

	if cfg.Dataset.StandardizeOutputs {
		Y = Standardize(Y)
	}

	if cfg.Dataset.NTrain >= numRows(X) {
		return nil, invalidArgument("n_train %d leaves no test rows out of %d", cfg.Dataset.NTrain, numRows(X))
	}

	Xtrain, Ytrain, Xtest, Ytest, err := Split(X, Y, cfg.Dataset.NTrain, rng)
	if err != nil {
		return nil, err
	}

	logger.Info("dataset ready",
		zap.Int("train", numRows(Xtrain)),
		zap.Int("test", numRows(Xtest)),
		zap.Int("inputs", numCols(X)),
	)

	groups, err := ParseGroups(cfg.Optimizer.Groups)
	if err != nil {
		return nil, err
	}

	kernel := NewRBF(cfg.Model.KernelVariance, cfg.Model.KernelLengthscale)

	if cfg.InitSearch.Enabled {
		kernel, err = searchKernel(cfg, Xtrain, Ytrain, logger)
		if err != nil {
			return nil, err
		}
	}

	model, err := newVariationalModel(cfg, Xtrain, Ytrain, kernel, rand.New(rand.NewSource(cfg.Seed)), WithLogger(logger))
	if err != nil {
		return nil, err
	}

	if err := model.Optimize(OptimizeOptions{
		Groups:        groups,
		MaxIterations: cfg.Optimizer.MaxIterations,
		Tolerance:     cfg.Optimizer.Tolerance,
		Verbose:       cfg.Optimizer.Verbose,
	}); err != nil {
		return nil, err
	}

	var (
		names     []string
		means     []*mat.Dense
		vars      []*mat.Dense
		baselines []Model
	)

	if cfg.Baseline.Enabled {
		gp, err := NewExactGP(Xtrain, Ytrain, NewUnivariateGaussian(1), NewRBF(1, 1), WithLogger(logger))
		if err != nil {
			return nil, err
		}

		if err := gp.Optimize(OptimizeOptions{
			Groups:        []ParamGroup{GroupHyp, GroupLikelihood},
			MaxIterations: cfg.Baseline.MaxIterations,
			Tolerance:     cfg.Optimizer.Tolerance,
		}); err != nil {
			return nil, err
		}

		mean, variance, err := gp.Predict(Xtest)
		if err != nil {
			return nil, err
		}

		names, means, vars = append(names, BaselineModelName), append(means, mean), append(vars, variance)
		baselines = append(baselines, gp)
	}

	mean, variance, err := model.Predict(Xtest)
	if err != nil {
		return nil, err
	}

	names, means, vars = append(names, VariationalModelName), append(means, mean), append(vars, variance)

	root := cfg.Output.Root

	if err := ExportTest(root, cfg.Name, Xtest, Ytest, means, vars, names); err != nil {
		return nil, err
	}

	if err := ExportTrain(root, cfg.Name, Xtrain, Ytrain); err != nil {
		return nil, err
	}

	if err := ExportModel(root, cfg.Name, model); err != nil {
		return nil, err
	}

	metrics, err := PlotSSE(root, cfg.Name, names)
	if err != nil {
		return nil, err
	}

	if cfg.Output.PlotFit && numCols(Xtrain) == 1 {
		if err := PlotFit(filepath.Join(GraphDir(root, cfg.Name), "fit.pdf"), model, Xtrain, Ytrain, baselines...); err != nil {
			return nil, err
		}
	}

	report := &Report{
		RunID:   runID,
		Dir:     ExperimentDir(root, cfg.Name),
		Models:  names,
		Summary: metrics.Summary(),
		ELBO:    model.ELBO(),
		Kind:    model.Kind(),
	}

	for _, name := range names {
		logger.Info("model scored",
			zap.String("model", name),
			zap.Float64("mean_sse", report.Summary[name].MeanSSE),
			zap.Float64("mean_nlpd", report.Summary[name].MeanNLPD),
		)
	}

	return report, nil
}

//////
// Helper functions.
//////

// loadDataset returns the inputs and outputs selected by cfg.
func loadDataset(cfg DatasetConfig, rng *rand.Rand) (*mat.Dense, *mat.Dense, error) {
	if cfg.Kind == DatasetFile {
		return LoadDelimited(cfg.Path, DelimitedOptions{
			Delimiter:  cfg.Delimiter,
			Target:     cfg.Target,
			SkipHeader: cfg.SkipHeader,
		})
	}

	return Normal1D(cfg.N, cfg.Noise, rng)
}

// newLikelihood builds a fresh likelihood; each model owns its own.
func newLikelihood(cfg ModelConfig) (Likelihood, error) {
	if cfg.Likelihood == LikelihoodMultivariate {
		return NewMultivariateGaussian([][]float64{{cfg.Noise}})
	}

	return NewUnivariateGaussian(cfg.Noise), nil
}

// newVariationalModel builds the model named by cfg.Model.Method.
func newVariationalModel(cfg *Config, X, Y *mat.Dense, kernel *RBF, rng *rand.Rand, opts ...ModelOption) (*SAVIGP, error) {
	full, components, err := ParseMethod(cfg.Model.Method)
	if err != nil {
		return nil, err
	}

	lik, err := newLikelihood(cfg.Model)
	if err != nil {
		return nil, err
	}

	inducing := cfg.Model.NumInducing
	if inducing == 0 || inducing > numRows(X) {
		inducing = numRows(X)
	}

	if full {
		return NewFull(X, Y, inducing, lik, kernel, cfg.Model.NumSamples, rng, opts...)
	}

	return NewDiag(X, Y, inducing, components, lik, kernel, cfg.Model.NumSamples, rng, opts...)
}

// searchKernel picks the initial kernel hyperparameters with the Bayesian
// search, scoring each candidate by the negative ELBO after a short "mog"
// run.
func searchKernel(cfg *Config, X, Y *mat.Dense, logger *zap.Logger) (*RBF, error) {
	acquisition, err := AcquisitionByName(cfg.InitSearch.Acquisition)
	if err != nil {
		return nil, err
	}

	search := DefaultSearchConfig()
	search.Iterations = cfg.InitSearch.Iterations
	search.InitialSamples = cfg.InitSearch.InitialSamples
	search.NumCandidates = cfg.InitSearch.NumCandidates
	search.AcquisitionFunc = acquisition
	search.AcqParams.Beta = cfg.InitSearch.Beta
	search.AcqParams.Xi = cfg.InitSearch.Xi
	search.Seed = cfg.Seed
	search.Logger = logger

	objective := func(params ...float64) (float64, error) {
		kernel := NewRBF(math.Exp(clampLog(params[0])), math.Exp(clampLog(params[1])))

		model, err := newVariationalModel(cfg, X, Y, kernel, rand.New(rand.NewSource(cfg.Seed)))
		if err != nil {
			return 0, err
		}

		if err := model.Optimize(OptimizeOptions{
			Groups:        []ParamGroup{GroupMoG},
			MaxIterations: cfg.InitSearch.ProbeIterations,
		}); err != nil {
			return 0, err
		}

		return -model.ELBO(), nil
	}

	best, value := SearchInitialHyperparameters(search, objective,
		ParameterRange[float64]{Min: cfg.InitSearch.LogVariance[0], Max: cfg.InitSearch.LogVariance[1]},
		ParameterRange[float64]{Min: cfg.InitSearch.LogLengthscale[0], Max: cfg.InitSearch.LogLengthscale[1]},
	)

	if value == math.MaxFloat64 {
		return nil, invalidArgument("initial hyperparameter search found no feasible kernel")
	}

	kernel := NewRBF(math.Exp(best[0]), math.Exp(best[1]))

	logger.Info("initial kernel selected",
		zap.Float64("variance", kernel.Variance),
		zap.Float64s("lengthscales", kernel.Lengthscales),
		zap.Float64("neg_elbo", value),
	)

	return kernel, nil
}
