package savigp

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "experiment.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, int64(12000), cfg.Seed)
	assert.Equal(t, 400, cfg.Dataset.N)
	assert.Equal(t, 300, cfg.Dataset.NTrain)
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
name: boston
seed: 7
dataset:
  kind: file
  path: data/housing.data
  target: -1
  n_train: 300
  standardize: true
model:
  method: full
  num_inducing: 50
optimizer:
  groups: [mog, hyp]
init_search:
  enabled: true
  acquisition: ei
  log_lengthscale: [-1, 2]
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "boston", cfg.Name)
	assert.Equal(t, int64(7), cfg.Seed)
	assert.Equal(t, DatasetFile, cfg.Dataset.Kind)
	assert.Equal(t, -1, cfg.Dataset.Target)
	assert.True(t, cfg.Dataset.Standardize)
	assert.Equal(t, "full", cfg.Model.Method)
	assert.Equal(t, 50, cfg.Model.NumInducing)
	assert.Equal(t, []string{"mog", "hyp"}, cfg.Optimizer.Groups)
	assert.Equal(t, []float64{-1, 2}, cfg.InitSearch.LogLengthscale)

	// Untouched keys keep their defaults.
	assert.Equal(t, LikelihoodUnivariate, cfg.Model.Likelihood)
	assert.Equal(t, []float64{-2, 2}, cfg.InitSearch.LogVariance)
	assert.True(t, cfg.Baseline.Enabled)
	assert.Equal(t, "results", cfg.Output.Root)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, errors.Is(err, ErrIOFailure))

	_, err = LoadConfig(writeConfig(t, "name: [unclosed"))
	assert.True(t, errors.Is(err, ErrInvalidArgument))

	_, err = LoadConfig(writeConfig(t, "model:\n  method: mixture\n"))
	assert.True(t, errors.Is(err, ErrInvalidArgument))
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"empty name":        func(c *Config) { c.Name = " " },
		"dataset kind":      func(c *Config) { c.Dataset.Kind = "sql" },
		"file without path": func(c *Config) { c.Dataset.Kind = DatasetFile },
		"n_train":           func(c *Config) { c.Dataset.NTrain = 0 },
		"likelihood":        func(c *Config) { c.Model.Likelihood = "poisson" },
		"noise":             func(c *Config) { c.Model.Noise = 0 },
		"groups":            func(c *Config) { c.Optimizer.Groups = []string{"mog", "weights"} },
		"acquisition": func(c *Config) {
			c.InitSearch.Enabled = true
			c.InitSearch.Acquisition = "greedy"
		},
		"inverted range": func(c *Config) {
			c.InitSearch.Enabled = true
			c.InitSearch.LogVariance = []float64{2, -2}
		},
		"short range": func(c *Config) {
			c.InitSearch.Enabled = true
			c.InitSearch.LogLengthscale = []float64{1}
		},
		"output root": func(c *Config) { c.Output.Root = "" },
	}

	for name, mutate := range cases {
		cfg := DefaultConfig()
		mutate(cfg)

		assert.True(t, errors.Is(cfg.Validate(), ErrInvalidArgument), name)
	}
}

func TestParseMethod(t *testing.T) {
	full, k, err := ParseMethod("full")
	require.NoError(t, err)
	assert.True(t, full)
	assert.Equal(t, 1, k)

	full, k, err = ParseMethod("mix3")
	require.NoError(t, err)
	assert.False(t, full)
	assert.Equal(t, 3, k)

	for _, bad := range []string{"mix0", "mix", "mixa", "diag"} {
		_, _, err := ParseMethod(bad)
		assert.True(t, errors.Is(err, ErrInvalidArgument), bad)
	}
}

func TestParseGroups(t *testing.T) {
	groups, err := ParseGroups([]string{"mog", "hyp", "ll", "mog"})
	require.NoError(t, err)
	assert.Equal(t, []ParamGroup{GroupMoG, GroupHyp, GroupLikelihood, GroupMoG}, groups)

	_, err = ParseGroups([]string{"lik"})
	assert.True(t, errors.Is(err, ErrInvalidArgument))
}

func TestNewLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")

	logger, err := NewLogger(LogConfig{Level: "debug", File: path, MaxSizeMB: 1})
	require.NoError(t, err)

	logger.Info("hello")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)

	_, err = NewLogger(LogConfig{Level: "loud"})
	assert.True(t, errors.Is(err, ErrInvalidArgument))
}
