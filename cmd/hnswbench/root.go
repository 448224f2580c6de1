package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const rootLongDesc string = `hnswbench measures the hnswgraph index.

Run a benchmark using:
  hnswbench run                 Synthetic dataset with default parameters
  hnswbench run --config b.yaml Parameters from a YAML file
  hnswbench config              Print the default configuration`

const rootShortDesc string = "hnswbench - HNSW index benchmark"

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "hnswbench",
		Short:        rootShortDesc,
		Long:         rootLongDesc,
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().Bool("json", false, "Write logs as JSON")
	cmd.PersistentFlags().StringP("config", "c", "", "YAML configuration file")

	// Add subcommands
	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := cmd.Flags().GetString("config")
			if err != nil {
				return fmt.Errorf("could not get config flag: %w", err)
			}
			cfg, err := LoadConfig(path)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(cfg); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}
