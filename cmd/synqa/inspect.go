package main

import (
	"github.com/spf13/cobra"

	"github.com/brunobiangulo/synqa"
)

var documentsCmd = &cobra.Command{
	Use:   "documents",
	Short: "List clustered documents in the store",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		p, err := synqa.New(cfg)
		if err != nil {
			return err
		}
		defer p.Close()

		docs, err := p.Store().ListDocuments(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd, docs)
	},
}

var dropsCmd = &cobra.Command{
	Use:   "drops <run-id>",
	Short: "Show the items a stage run dropped and why",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := synqa.New(cfg)
		if err != nil {
			return err
		}
		defer p.Close()

		run, err := p.Store().GetRun(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		drops, err := p.Store().Drops(cmd.Context(), run.ID)
		if err != nil {
			return err
		}
		cmd.Printf("run %s (%s): %d in, %d out\n", run.ID, run.Stage, run.ItemsIn, run.ItemsOut)
		return printJSON(cmd, drops)
	},
}

func init() {
	rootCmd.AddCommand(documentsCmd, dropsCmd)
}
