package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"petsysmat/pkg/config"
	"petsysmat/pkg/estimation"
	"petsysmat/pkg/events"
	"petsysmat/pkg/matrixio"
)

func newEstimateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Run the full estimation pipeline and write the system matrix",
		Long: `Run the full estimation pipeline: accumulate true coincidences from
the event source, assemble the sparse counts matrix, normalize it into
detection probabilities, verify the probability invariants, and write
the matrix artifact.

Verification violations are printed as warnings and do not abort the
write; inspect them before using the matrix for reconstruction.

Examples:
  petsysmat estimate --input events.csv --output system.psmx
  petsysmat estimate --input run3.db --format sqlite --config run3.yaml \
      --chunk-size 250000 --output system.psmx`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			input, _ := cmd.Flags().GetString("input")
			format, _ := cmd.Flags().GetString("format")
			output, _ := cmd.Flags().GetString("output")
			countsOut, _ := cmd.Flags().GetString("counts-output")

			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}
			applyOverrides(cmd, cfg)
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			source, err := openSource(input, format, cfg.Events.Table)
			if err != nil {
				return err
			}
			defer source.Close()

			if cfg.Output.Verbose {
				fmt.Println("================================")
				fmt.Println("EMPIRICAL SYSTEM-MATRIX ESTIMATION FROM MONTE CARLO EMISSION DATA")
				fmt.Println("================================")
				fmt.Printf("Voxel grid:    %d x %d x %d (%d voxels)\n",
					cfg.VoxelGrid.NX, cfg.VoxelGrid.NY, cfg.VoxelGrid.NZ, cfg.VoxelModel().NumVoxels())
				fmt.Printf("Sinogram grid: %d angles x %d offsets (%d rows)\n",
					cfg.SinogramGrid.NTheta, cfg.SinogramGrid.NS, cfg.SinogramModel().NumRows())
			}

			est := estimation.NewEstimator(estimation.Params{
				VoxelGrid:    cfg.VoxelModel(),
				SinogramGrid: cfg.SinogramModel(),
				ChunkSize:    cfg.Events.ChunkSize,
				MaxEvents:    cfg.Events.MaxEvents,
				NumWorkers:   cfg.Events.NumWorkers,
				Tolerance:    cfg.Output.Tolerance,
				Verbose:      cfg.Output.Verbose,
			})

			startTime := time.Now()
			if err := est.Process(source); err != nil {
				return err
			}

			for _, v := range est.Violations() {
				fmt.Fprintf(os.Stderr, "Warning: verification: %s\n", v)
			}

			if countsOut != "" {
				if err := matrixio.Write(countsOut, est.CountsMatrix()); err != nil {
					return fmt.Errorf("failed to write counts matrix: %w", err)
				}
			}
			if err := matrixio.Write(output, est.SystemMatrix()); err != nil {
				return fmt.Errorf("failed to write system matrix: %w", err)
			}

			stats := est.Stats()
			fmt.Printf("\nEstimation completed in %.2f seconds\n", time.Since(startTime).Seconds())
			fmt.Printf("Events read: %d (%d true, %d chunks)\n", stats.EventsRead, stats.TrueEvents, stats.Chunks)
			fmt.Printf("System matrix saved to: %s\n\n", output)
			fmt.Println(matrixio.Summarize(est.SystemMatrix()))
			if n := len(est.Violations()); n > 0 {
				fmt.Printf("\nVerification violations: %d (see warnings above)\n", n)
			}
			return nil
		},
	}

	cmd.Flags().String("config", "petsysmat.yaml", "YAML configuration file")
	cmd.Flags().String("input", "", "Event source file (CSV or SQLite database)")
	cmd.Flags().String("format", "csv", "Event source format: csv or sqlite")
	cmd.Flags().String("output", "system.psmx", "Output system matrix artifact")
	cmd.Flags().String("counts-output", "", "Also write the raw counts matrix to this path")
	cmd.Flags().Int("chunk-size", 0, "Override the configured chunk size")
	cmd.Flags().Int64("max-events", -1, "Override the configured event budget (0 = unlimited)")
	cmd.Flags().Int("cores", 0, "Override the configured worker count")
	cmd.MarkFlagRequired("input")
	return cmd
}

// applyOverrides copies any explicitly set command-line flags over the
// loaded configuration.
func applyOverrides(cmd *cobra.Command, cfg *config.Config) {
	if chunkSize, _ := cmd.Flags().GetInt("chunk-size"); chunkSize > 0 {
		cfg.Events.ChunkSize = chunkSize
	}
	if maxEvents, _ := cmd.Flags().GetInt64("max-events"); maxEvents >= 0 {
		cfg.Events.MaxEvents = maxEvents
	}
	if cores, _ := cmd.Flags().GetInt("cores"); cores > 0 {
		cfg.Events.NumWorkers = cores
	}
}

// openSource creates the event source for the given input path and
// format.
func openSource(input, format, table string) (events.Source, error) {
	switch format {
	case "csv":
		return events.NewCSVSource(input)
	case "sqlite":
		return events.NewSQLiteSource(input, table)
	default:
		return nil, fmt.Errorf("unknown event source format %q (must be csv or sqlite)", format)
	}
}
