package savigp

import (
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v2"
)

//////
// Const, vars, types.
//////

// Dataset kinds.
const (
	DatasetSynthetic1D = "synthetic_1d"
	DatasetFile        = "file"
)

// Likelihood kinds.
const (
	LikelihoodUnivariate   = "univariate_gaussian"
	LikelihoodMultivariate = "multivariate_gaussian"
)

// Config describes one experiment end to end.
type Config struct {
	// Name names the experiment directory and its files.
	Name string `yaml:"name"`

	// Seed seeds every random draw of the run.
	Seed int64 `yaml:"seed"`

	Dataset    DatasetConfig    `yaml:"dataset"`
	Model      ModelConfig      `yaml:"model"`
	Optimizer  OptimizerConfig  `yaml:"optimizer"`
	Baseline   BaselineConfig   `yaml:"baseline"`
	InitSearch InitSearchConfig `yaml:"init_search"`
	Output     OutputConfig     `yaml:"output"`
	Log        LogConfig        `yaml:"log"`
}

// DatasetConfig selects the data.
type DatasetConfig struct {
	// Kind is "synthetic_1d" or "file".
	Kind string `yaml:"kind"`

	// N and Noise size the synthetic dataset. Noise is a variance.
	N     int     `yaml:"n"`
	Noise float64 `yaml:"noise"`

	// Path, Delimiter, Target and SkipHeader describe a file dataset.
	Path       string `yaml:"path"`
	Delimiter  string `yaml:"delimiter"`
	Target     int    `yaml:"target"`
	SkipHeader bool   `yaml:"skip_header"`

	// NTrain is the number of training rows; the rest are test rows.
	NTrain int `yaml:"n_train"`

	// Standardize scales every input column to zero mean and unit variance.
	Standardize bool `yaml:"standardize"`

	// StandardizeOutputs does the same for the output columns. Predictions
	// and exported targets are then on the standardised scale.
	StandardizeOutputs bool `yaml:"standardize_outputs"`
}

// ModelConfig selects the variational model.
type ModelConfig struct {
	// Method is "full" or "mixK" (K diagonal components, e.g. "mix2").
	Method string `yaml:"method"`

	// NumInducing is the number of inducing inputs. Zero uses every
	// training input.
	NumInducing int `yaml:"num_inducing"`

	// NumSamples is the Monte Carlo sample count for likelihoods without a
	// closed-form expectation.
	NumSamples int `yaml:"num_samples"`

	Likelihood string  `yaml:"likelihood"`
	Noise      float64 `yaml:"noise"`

	KernelVariance    float64 `yaml:"kernel_variance"`
	KernelLengthscale float64 `yaml:"kernel_lengthscale"`
}

// OptimizerConfig bounds Model.Optimize.
type OptimizerConfig struct {
	Groups        []string `yaml:"groups"`
	MaxIterations int      `yaml:"max_iterations"`
	Tolerance     float64  `yaml:"tolerance"`
	Verbose       bool     `yaml:"verbose"`
}

// BaselineConfig controls the exact GP trained alongside the variational
// model.
type BaselineConfig struct {
	Enabled       bool `yaml:"enabled"`
	MaxIterations int  `yaml:"max_iterations"`
}

// InitSearchConfig controls the Bayesian search for initial kernel
// hyperparameters.
type InitSearchConfig struct {
	Enabled        bool    `yaml:"enabled"`
	Iterations     int     `yaml:"iterations"`
	InitialSamples int     `yaml:"initial_samples"`
	NumCandidates  int     `yaml:"num_candidates"`
	Acquisition    string  `yaml:"acquisition"`
	Beta           float64 `yaml:"beta"`
	Xi             float64 `yaml:"xi"`

	// ProbeIterations bounds the short "mog" run scored per candidate.
	ProbeIterations int `yaml:"probe_iterations"`

	// LogVariance and LogLengthscale are the searched ranges, [min, max].
	LogVariance    []float64 `yaml:"log_variance"`
	LogLengthscale []float64 `yaml:"log_lengthscale"`
}

// OutputConfig controls the exported artifacts.
type OutputConfig struct {
	Root    string `yaml:"root"`
	PlotFit bool   `yaml:"plot_fit"`
}

// LogConfig controls NewLogger.
type LogConfig struct {
	// Level is a zap level name: debug, info, warn or error.
	Level string `yaml:"level"`

	// Development switches the console encoder to zap's development format.
	Development bool `yaml:"development"`

	// File, when set, also writes JSON logs to a rotating file.
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

//////
// Factory.
//////

// DefaultConfig returns the configuration of the 1-D synthetic experiment:
// 400 points, 300 of them for training, a two-component diagonal mixture and
// an exact GP baseline.
func DefaultConfig() *Config {
	return &Config{
		Name: "normal_1D",
		Seed: 12000,
		Dataset: DatasetConfig{
			Kind:   DatasetSynthetic1D,
			N:      400,
			Noise:  0.01,
			NTrain: 300,
		},
		Model: ModelConfig{
			Method:            "mix2",
			NumSamples:        10000,
			Likelihood:        LikelihoodUnivariate,
			Noise:             1,
			KernelVariance:    1,
			KernelLengthscale: 1,
		},
		Optimizer: OptimizerConfig{
			Groups:        []string{string(GroupMoG), string(GroupHyp), string(GroupLikelihood)},
			MaxIterations: 200,
			Tolerance:     DefaultTolerance,
		},
		Baseline: BaselineConfig{
			Enabled:       true,
			MaxIterations: 200,
		},
		InitSearch: InitSearchConfig{
			Iterations:      10,
			InitialSamples:  5,
			NumCandidates:   100,
			Acquisition:     "ucb",
			Beta:            2,
			Xi:              0.01,
			ProbeIterations: 20,
			LogVariance:     []float64{-2, 2},
			LogLengthscale:  []float64{-3, 1},
		},
		Output: OutputConfig{
			Root:    "results",
			PlotFit: true,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// LoadConfig decodes a YAML file on top of DefaultConfig and validates the
// result. Keys absent from the file keep their defaults.
func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, ioFailure(err, "opening config %s", path)
	}
	defer file.Close()

	cfg := DefaultConfig()
	if err := yaml.NewDecoder(file).Decode(cfg); err != nil {
		return nil, invalidArgument("decoding config %s: %v", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

//////
// Methods.
//////

// Validate checks every field the runner depends on.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return invalidArgument("name is required")
	}

	switch c.Dataset.Kind {
	case DatasetSynthetic1D:
		if c.Dataset.N < 1 {
			return invalidArgument("dataset.n must be positive, got %d", c.Dataset.N)
		}

		if c.Dataset.Noise < 0 {
			return invalidArgument("dataset.noise must not be negative, got %g", c.Dataset.Noise)
		}
	case DatasetFile:
		if c.Dataset.Path == "" {
			return invalidArgument("dataset.path is required for file datasets")
		}
	default:
		return invalidArgument("unknown dataset kind %q", c.Dataset.Kind)
	}

	if c.Dataset.NTrain < 1 {
		return invalidArgument("dataset.n_train must be positive, got %d", c.Dataset.NTrain)
	}

	if _, _, err := ParseMethod(c.Model.Method); err != nil {
		return err
	}

	switch c.Model.Likelihood {
	case LikelihoodUnivariate, LikelihoodMultivariate:
	default:
		return invalidArgument("unknown likelihood %q", c.Model.Likelihood)
	}

	if c.Model.Noise <= 0 || c.Model.KernelVariance <= 0 || c.Model.KernelLengthscale <= 0 {
		return invalidArgument("noise, kernel_variance and kernel_lengthscale must be positive")
	}

	if c.Model.NumInducing < 0 {
		return invalidArgument("model.num_inducing must not be negative, got %d", c.Model.NumInducing)
	}

	if _, err := ParseGroups(c.Optimizer.Groups); err != nil {
		return err
	}

	if c.InitSearch.Enabled {
		if _, err := AcquisitionByName(c.InitSearch.Acquisition); err != nil {
			return err
		}

		for _, r := range [][]float64{c.InitSearch.LogVariance, c.InitSearch.LogLengthscale} {
			if len(r) != 2 {
				return invalidArgument("search ranges need [min, max], got %v", r)
			}

			if r[0] > r[1] {
				return invalidArgument("search range [%g, %g] is inverted", r[0], r[1])
			}
		}
	}

	if c.Output.Root == "" {
		return invalidArgument("output.root is required")
	}

	return nil
}

// ParseMethod decodes a model method tag: "full" selects the full-covariance
// posterior, "mixK" a mixture of K diagonal Gaussians.
func ParseMethod(method string) (full bool, components int, err error) {
	if method == "full" {
		return true, 1, nil
	}

	if k, ok := strings.CutPrefix(method, "mix"); ok {
		n, convErr := strconv.Atoi(k)
		if convErr == nil && n >= 1 {
			return false, n, nil
		}
	}

	return false, 0, invalidArgument("unknown method %q, want full or mixK", method)
}
