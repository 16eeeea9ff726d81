package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/nihams/ueba/internal/pipeline"
	"github.com/nihams/ueba/internal/util"
)

// runPipeline is the shared scaffolding for the batch subcommands:
// config, logger, pipeline lifecycle, one run function.
func runPipeline(run func(context.Context, *pipeline.Pipeline) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		defer util.Sync()

		p, err := pipeline.New(cfg, util.Get())
		if err != nil {
			return err
		}
		defer p.Close()

		return run(cmd.Context(), p)
	}
}

var sessionizeCmd = &cobra.Command{
	Use:   "sessionize",
	Short: "Split normalized events into inactivity-gap sessions",
	RunE: runPipeline(func(ctx context.Context, p *pipeline.Pipeline) error {
		return p.Sessionize(ctx)
	}),
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run the profile and rule-engine pass over sessionized events",
	RunE: runPipeline(func(ctx context.Context, p *pipeline.Pipeline) error {
		return p.Analyze(ctx)
	}),
}

var buildModelCmd = &cobra.Command{
	Use:   "build-model",
	Short: "Build the Markov sequence model from sessionized events",
	RunE: runPipeline(func(ctx context.Context, p *pipeline.Pipeline) error {
		return p.BuildModel(ctx)
	}),
}

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score and rank sessions against a built sequence model",
	RunE: runPipeline(func(ctx context.Context, p *pipeline.Pipeline) error {
		return p.Score(ctx)
	}),
}

func init() {
	rootCmd.AddCommand(sessionizeCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(buildModelCmd)
	rootCmd.AddCommand(scoreCmd)
}
