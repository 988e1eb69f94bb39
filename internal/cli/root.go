// Package cli wires the application together behind the coffeeclass command.
package cli

import (
	"github.com/spf13/cobra"
)

const defaultConfigPath = "configs/config.yml"

// NewRootCommand builds the coffeeclass command tree.
func NewRootCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "coffeeclass",
		Short: "Coffee type classification service",
		Long: `coffeeclass classifies coffee samples from numeric and categorical
sensory characteristics against an expert-maintained knowledge base.

It offers a strict rule match, a partial-credit ranking, and a small neural
network trained on samples drawn from the experts' ranges.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Config file path (YAML)")

	cmd.AddCommand(
		newServeCommand(&configPath),
		newMigrateCommand(&configPath),
		newTrainCommand(&configPath),
		newClassifyCommand(),
	)
	return cmd
}
