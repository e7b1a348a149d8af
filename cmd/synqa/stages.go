package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/brunobiangulo/synqa"
)

type stageFunc func(*synqa.Pipeline, context.Context) (*synqa.Report, error)

func stageCmd(use, short string, run stageFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := synqa.New(cfg)
			if err != nil {
				return err
			}
			defer p.Close()

			rep, err := run(p, cmd.Context())
			if rep != nil {
				if perr := printJSON(cmd, rep); perr != nil {
					return errors.Join(err, perr)
				}
			}
			return err
		},
	}
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run all four stages in order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		p, err := synqa.New(cfg)
		if err != nil {
			return err
		}
		defer p.Close()

		reports, err := p.Run(cmd.Context())
		if perr := printJSON(cmd, reports); perr != nil {
			return errors.Join(err, perr)
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(
		runCmd,
		stageCmd("cluster", "Embed and cluster source tables", (*synqa.Pipeline).Cluster),
		stageCmd("generate", "Generate raw QA items from clustered documents", (*synqa.Pipeline).Generate),
		stageCmd("quality", "Score faithfulness, validity and formal checks", (*synqa.Pipeline).QualityFilter),
		stageCmd("difficulty", "Re-answer with shrinking context and score correctness", (*synqa.Pipeline).DifficultyFilter),
	)
}
