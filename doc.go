// Package savigp provides sparse variational Gaussian Process regression and
// the experiment pipeline around it: dataset loading, train/test splitting,
// model training, CSV export of predictions and box plots of the resulting
// error metrics.
//
// # Features
//
// The package includes the following key features:
//
//   - Sparse variational GP: inducing inputs with either a mixture of diagonal
//     Gaussians (NewDiag) or a single full-covariance Gaussian (NewFull) as
//     the posterior
//   - Closed-form Gaussian expected log-likelihood, with a deterministic Monte
//     Carlo fallback for likelihoods that only expose a log density
//   - Exact GP baseline: log marginal likelihood maximised with BFGS
//   - Group-wise optimisation: "mog", "hyp" and "ll" parameter groups cycled
//     under one iteration budget
//   - Initial hyperparameter search: Bayesian optimisation with an exact GP
//     surrogate and UCB, PI, EI or Thompson Sampling acquisition
//   - Experiment record: train, test and model CSV files plus SSE and NLPD
//     box plots as PDF
//
// # Experiment layout
//
// Every experiment named <name> under <root> writes:
//
//	<root>/<name>/train_<name>.csv   Y0..,X0..
//	<root>/<name>/test_<name>.csv    Ytrue0..,Ypred_<m>_0..,Yvar_pred_<m>_0..,X0..
//	<root>/<name>/model_<name>.csv   #model,<kind> then name,value rows
//	<root>/<name>/graphs/SSE.pdf
//	<root>/<name>/graphs/NLPD.pdf
//
// # Quick start
//
//	cfg := savigp.DefaultConfig()
//	logger, _ := savigp.NewLogger(cfg.Log)
//
//	report, err := savigp.Run(cfg, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	for _, m := range report.Models {
//	    fmt.Println(m, report.Summary[m].MeanSSE)
//	}
//
// # Using a model directly
//
//	rng := rand.New(rand.NewSource(12000))
//	m, err := savigp.NewFull(X, Y, 50, savigp.NewUnivariateGaussian(1), savigp.NewRBF(1, 1), 0, rng)
//	if err != nil {
//	    return err
//	}
//
//	_ = m.Optimize(savigp.OptimizeOptions{MaxIterations: 200})
//	mean, variance, err := m.Predict(Xtest)
//
// # Errors
//
// Errors wrap one of two kinds, ErrInvalidArgument and ErrIOFailure, and are
// checked with errors.Is. Running out of optimiser iterations is never an
// error.
//
// # Thread Safety
//
// The pipeline is single-threaded. ExactGP guards its state with an RWMutex
// so a fitted model may be queried concurrently; SAVIGP is not safe for
// concurrent use.
package savigp
