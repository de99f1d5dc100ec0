package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"petsysmat/pkg/config"
	"petsysmat/pkg/matrixio"
	"petsysmat/pkg/normalize"
)

func newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <artifact>",
		Short: "Print the summary report of a saved matrix artifact",
		Long: `Load a saved matrix artifact, re-run the probability verification,
and print the summary report.

Examples:
  petsysmat inspect system.psmx
  petsysmat inspect system.psmx --tolerance 1e-6`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tolerance, _ := cmd.Flags().GetFloat64("tolerance")

			m, err := matrixio.Read(args[0])
			if err != nil {
				return err
			}

			fmt.Println(matrixio.Summarize(m))

			violations := normalize.NewVerifier(tolerance).Verify(m)
			if len(violations) == 0 {
				fmt.Println("Verification:       no violations")
				return nil
			}
			fmt.Printf("Verification:       %d violations\n", len(violations))
			for _, v := range violations {
				fmt.Printf("  %s\n", v)
			}
			return nil
		},
	}

	cmd.Flags().Float64("tolerance", normalize.DefaultTolerance, "Numerical tolerance for the probability checks")
	return cmd
}

func newInitConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-config <path>",
		Short: "Write a default configuration file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.CreateDefaultConfigFile(args[0]); err != nil {
				return err
			}
			fmt.Printf("Default configuration written to %s\n", args[0])
			return nil
		},
	}
}
