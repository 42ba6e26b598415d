package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/roach88/geosafe/internal/ir"
)

// VersionInfo describes the build.
type VersionInfo struct {
	Version       string `json:"version"`
	SchemaVersion string `json:"provenance_schema"`
	GoVersion     string `json:"go_version"`
	Platform      string `json:"platform"`
}

func (v VersionInfo) String() string {
	return fmt.Sprintf("geosafe %s (provenance schema %s, %s %s)", v.Version, v.SchemaVersion, v.GoVersion, v.Platform)
}

// NewVersionCommand creates the version command.
func NewVersionCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "version",
		Short:         "Print version information",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			return out.Success(VersionInfo{
				Version:       ir.ToolVersion,
				SchemaVersion: ir.SchemaVersion,
				GoVersion:     runtime.Version(),
				Platform:      runtime.GOOS + "/" + runtime.GOARCH,
			})
		},
	}
}
