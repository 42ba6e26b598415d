// Command geosafe runs CRS-safe geospatial pipelines.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/geosafe/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
