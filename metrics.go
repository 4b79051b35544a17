package savigp

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Metrics holds per-model, per-test-row scores.
type Metrics struct {
	// Models lists model names in the order they were requested.
	Models []string

	// SSE is the squared error normalised by the mean squared deviation of
	// the test targets from the training mean.
	SSE map[string][]float64

	// NLPD is the Gaussian negative log predictive density.
	NLPD map[string][]float64
}

// MetricSummary is the mean of each metric for one model.
type MetricSummary struct {
	MeanSSE  float64
	MeanNLPD float64
}

// NLPD returns 0.5*(ytrue-ypred)^2/yvar + log(2*pi*yvar).
//
// This is the score as plotted; it carries no extra factor of 0.5 on the log
// term and is not averaged.
func NLPD(ytrue, ypred, yvar float64) float64 {
	d := ytrue - ypred

	return 0.5*d*d/yvar + math.Log(2*math.Pi*yvar)
}

// ComputeMetrics scores every model in modelNames against the test table,
// using the training table's Y0 mean as the reference predictor.
func ComputeMetrics(test, train *Table, modelNames []string) (*Metrics, error) {
	ytrain, err := train.Column("Y0")
	if err != nil {
		return nil, err
	}

	if len(ytrain) == 0 {
		return nil, invalidArgument("training table has no rows")
	}

	ytrue, err := test.Column("Ytrue0")
	if err != nil {
		return nil, err
	}

	if len(ytrue) == 0 {
		return nil, invalidArgument("test table has no rows")
	}

	ymean := stat.Mean(ytrain, nil)

	var ref float64
	for _, y := range ytrue {
		ref += (ymean - y) * (ymean - y)
	}

	ref /= float64(len(ytrue))

	m := &Metrics{
		Models: append([]string(nil), modelNames...),
		SSE:    make(map[string][]float64, len(modelNames)),
		NLPD:   make(map[string][]float64, len(modelNames)),
	}

	for _, name := range modelNames {
		ypred, err := test.Column("Ypred_" + name + "_0")
		if err != nil {
			return nil, err
		}

		yvar, err := test.Column("Yvar_pred_" + name + "_0")
		if err != nil {
			return nil, err
		}

		sse := make([]float64, len(ytrue))
		nlpd := make([]float64, len(ytrue))

		for i, y := range ytrue {
			d := ypred[i] - y
			sse[i] = d * d / ref
			nlpd[i] = NLPD(y, ypred[i], yvar[i])
		}

		m.SSE[name] = sse
		m.NLPD[name] = nlpd
	}

	return m, nil
}

// LoadMetrics reads the exported test and train files of an experiment and
// scores them.
func LoadMetrics(root, name string, modelNames []string) (*Metrics, error) {
	test, err := ReadTable(TestPath(root, name))
	if err != nil {
		return nil, err
	}

	train, err := ReadTable(TrainPath(root, name))
	if err != nil {
		return nil, err
	}

	return ComputeMetrics(test, train, modelNames)
}

// Summary averages each metric per model.
func (m *Metrics) Summary() map[string]MetricSummary {
	out := make(map[string]MetricSummary, len(m.Models))
	for _, name := range m.Models {
		out[name] = MetricSummary{
			MeanSSE:  stat.Mean(m.SSE[name], nil),
			MeanNLPD: stat.Mean(m.NLPD[name], nil),
		}
	}

	return out
}
