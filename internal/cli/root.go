package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/geosafe/internal/pipeline"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigFile string
	EnvFile    string

	// Engines builds the geometry and projection backends. If nil,
	// defaults to GEOS and PROJ.
	Engines EngineFactory

	// RunIDs allows overriding the run ID generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	RunIDs pipeline.RunIDGenerator
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the geosafe CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "geosafe",
		Short: "geosafe - CRS-safe geospatial pipelines",
		Long: `Run geospatial operations that refuse to mix coordinate reference systems
silently, repair invalid geometries on the way in, and record every decision
in a provenance log.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "config file (default ./geosafe.yaml if present)")
	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", "", "dotenv file (default ./.env if present)")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewCheckCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewTraceCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewVersionCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
