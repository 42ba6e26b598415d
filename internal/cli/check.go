package cli

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/geosafe/internal/geoio"
	"github.com/roach88/geosafe/internal/guard"
	"github.com/roach88/geosafe/internal/ir"
)

// CheckOptions holds flags for the check command.
type CheckOptions struct {
	*RootOptions
	Operation       string
	TargetCRS       string
	Metric          bool
	AllowGeographic bool
}

// checkableOps are the operations the guard can be asked about.
var checkableOps = []ir.OperationKind{
	ir.OpJoin, ir.OpBuffer, ir.OpOverlay, ir.OpClip, ir.OpDistance, ir.OpArea,
}

// CheckReport is the guard's verdict on a dry run.
type CheckReport struct {
	Allowed  bool        `json:"allowed"`
	Code     string      `json:"code,omitempty"`
	Decision ir.Decision `json:"decision"`
}

func (r CheckReport) String() string {
	var b strings.Builder
	d := r.Decision
	fmt.Fprintf(&b, "%s: %s\n", d.Operation, d.Outcome)
	for _, in := range d.Inputs {
		fmt.Fprintf(&b, "  input %s: %s\n", in.Dataset, in.CRS)
	}
	if d.EffectiveCRS != "" {
		fmt.Fprintf(&b, "  effective CRS: %s\n", d.EffectiveCRS)
	}
	for _, rp := range d.Reprojections {
		fmt.Fprintf(&b, "  reproject %s: %s -> %s\n", rp.Dataset, rp.From, rp.To)
	}
	fmt.Fprintf(&b, "  reason: %s", d.Reason)
	return b.String()
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CheckOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "check <dataset>...",
		Short: "Ask the CRS guard whether an operation may run",
		Long: `Load dataset files and ask the CRS guard whether an operation on them
would be allowed, without running it.

The report shows the CRS of every input, the effective CRS and any
reprojection the guard would perform.

Exit codes:
  0 - Operation allowed (possibly after reprojection)
  1 - Operation blocked
  2 - Command error

Examples:
  geosafe check --op join stops.geojson districts.geojson
  geosafe check --op join stops.geojson districts.geojson --target-crs EPSG:32610
  geosafe check --op buffer stops.geojson`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Operation, "op", string(ir.OpJoin), "operation to check (join|buffer|overlay|clip|distance|area)")
	cmd.Flags().StringVar(&opts.TargetCRS, "target-crs", "", "CRS to bring every input into")
	cmd.Flags().BoolVar(&opts.Metric, "metric", false, "treat the operation as distance-based (e.g. dwithin joins)")
	cmd.Flags().BoolVar(&opts.AllowGeographic, "allow-geographic", false, "allow metric operations in angular CRSs")

	return cmd
}

func runCheck(opts *CheckOptions, paths []string, cmd *cobra.Command) error {
	op := ir.OperationKind(opts.Operation)
	if !slices.Contains(checkableOps, op) {
		return NewExitError(ExitCommandError, fmt.Sprintf("unknown operation %q: must be one of %v", opts.Operation, checkableOps))
	}

	s, err := newSession(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := cmd.Context()
	datasets := make([]ir.Dataset, len(paths))
	for i, p := range paths {
		ds, err := geoio.Load(ctx, p)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to load dataset", err)
		}
		datasets[i] = ds
	}

	res, err := s.guard().Check(ctx, guard.Request{
		Operation:       op,
		Datasets:        datasets,
		TargetCRS:       opts.TargetCRS,
		Metric:          opts.Metric,
		AllowGeographic: opts.AllowGeographic || s.cfg.Safety.AllowGeographic,
	})
	// The guard returns its decision even on refusal.
	report := CheckReport{Allowed: err == nil, Decision: res.Decision}
	if err == nil {
		return s.out.Success(report)
	}

	report.Code = refusalCode(err)
	if outErr := s.out.Error(report.Code, err.Error(), report); outErr != nil {
		return outErr
	}
	return WrapExitError(ExitFailure, "operation blocked", err)
}

// refusalCode returns the guard's error code, or E001 for other failures
// such as an unknown CRS.
func refusalCode(err error) string {
	var coded interface{ Code() guard.ErrorCode }
	if errors.As(err, &coded) {
		return string(coded.Code())
	}
	return "E001"
}
