package main

import (
	"fmt"
	"os"

	"github.com/alexflint/go-arg"
	"github.com/thalesfsp/savigp"
	"go.uber.org/zap"
)

var (
	name    = "savigp"
	version = "0.1.0"
)

type runCmd struct {
	Config string `help:"Path to the experiment YAML file" arg:"-c,--config"`
	Output string `help:"Override output.root" arg:"-o,--output"`
	Name   string `help:"Override the experiment name" arg:"-n,--name"`
}

type plotCmd struct {
	Root   string   `help:"Directory holding the experiment" arg:"-r,--root" default:"results"`
	Name   string   `help:"Experiment name" arg:"required,positional"`
	Models []string `help:"Model names to score" arg:"-m,--models,separate"`
}

type args struct {
	Run      *runCmd  `arg:"subcommand:run" help:"train the models of an experiment and export the results"`
	Plot     *plotCmd `arg:"subcommand:plot" help:"score exported results and redraw the box plots"`
	LogLevel string   `help:"Log level (debug, info, warn, error)" arg:"-l,--log-level"`
}

func (args) Version() string {
	return version
}

func (args) Description() string {
	return fmt.Sprintf(`%s
# %s
Sparse variational Gaussian Process experiments.`, name, version)
}

func main() {
	var args args
	p := arg.MustParse(&args)

	if args.Run == nil && args.Plot == nil {
		p.Fail("missing subcommand: run or plot")
	}

	cfg := savigp.DefaultConfig()

	if args.Run != nil && args.Run.Config != "" {
		loaded, err := savigp.LoadConfig(args.Run.Config)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		cfg = loaded
	}

	if args.LogLevel != "" {
		cfg.Log.Level = args.LogLevel
	}

	logger, err := savigp.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	switch {
	case args.Run != nil:
		if args.Run.Output != "" {
			cfg.Output.Root = args.Run.Output
		}

		if args.Run.Name != "" {
			cfg.Name = args.Run.Name
		}

		report, err := savigp.Run(cfg, logger)
		if err != nil {
			logger.Fatal("experiment failed", zap.Error(err))
		}

		for _, m := range report.Models {
			s := report.Summary[m]
			fmt.Printf("%s\tSSE=%.4f\tNLPD=%.4f\n", m, s.MeanSSE, s.MeanNLPD)
		}

		fmt.Printf("results written to %s\n", report.Dir)
	case args.Plot != nil:
		models := args.Plot.Models
		if len(models) == 0 {
			models = []string{savigp.BaselineModelName, savigp.VariationalModelName}
		}

		metrics, err := savigp.PlotSSE(args.Plot.Root, args.Plot.Name, models)
		if err != nil {
			logger.Fatal("plotting failed", zap.Error(err))
		}

		summary := metrics.Summary()
		for _, m := range metrics.Models {
			fmt.Printf("%s\tSSE=%.4f\tNLPD=%.4f\n", m, summary[m].MeanSSE, summary[m].MeanNLPD)
		}

		fmt.Printf("graphs written to %s\n", savigp.GraphDir(args.Plot.Root, args.Plot.Name))
	}
}
