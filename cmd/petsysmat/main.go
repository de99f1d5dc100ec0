package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0-dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "petsysmat",
		Short: "Empirical system-matrix estimation from Monte Carlo emission data",
		Long: `petsysmat estimates the sparse system matrix used by iterative
PET/SPECT reconstruction from Monte Carlo emission-simulation events.

It filters simulated coincidences to unscattered ("true") events, bins
their source positions and detection parameters onto configured voxel
and sinogram grids, accumulates detection counts in memory-bounded
chunks, and normalizes the result into per-voxel detection
probabilities.`,
	}

	rootCmd.AddCommand(
		newVersionCmd(),
		newEstimateCmd(),
		newInspectCmd(),
		newInitConfigCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("petsysmat version %s\n", version)
		},
	}
}
