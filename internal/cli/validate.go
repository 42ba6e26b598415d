package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/geosafe/internal/geoio"
	"github.com/roach88/geosafe/internal/pipeline"
	"github.com/roach88/geosafe/internal/provenance"
	"github.com/roach88/geosafe/internal/repair"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Strategy []string
	Strict   bool
	Fix      bool
	Out      string
}

// ValidateReport is the validation result for one file.
type ValidateReport struct {
	File   string        `json:"file"`
	CRS    string        `json:"crs"`
	Report repair.Report `json:"report"`
	Fixed  bool          `json:"fixed"`
	Out    string        `json:"out,omitempty"`
	RunID  string        `json:"run_id,omitempty"`
}

func (r ValidateReport) String() string {
	var b strings.Builder
	rep := r.Report
	fmt.Fprintf(&b, "%s (%s): %d records, %d valid, %d invalid (%.1f%%), %d null, %d empty\n",
		r.File, r.CRS, rep.Total, rep.Valid, rep.Invalid, rep.InvalidPercent(), rep.Null, rep.Empty)

	problems := make([]string, 0, len(rep.Issues))
	for p := range rep.Issues {
		problems = append(problems, p)
	}
	sort.Strings(problems)
	for _, p := range problems {
		fmt.Fprintf(&b, "  %4d  %s\n", rep.Issues[p], p)
	}

	if r.Fixed {
		fmt.Fprintf(&b, "Strategy: %s\n", strings.Join(rep.Strategy, ", "))
		fmt.Fprintf(&b, "Repaired %d, excluded %d\n", rep.Repaired, rep.Excluded)
		for _, n := range rep.Notes {
			fmt.Fprintf(&b, "  record %d: %s (%s", n.Index, n.Action, n.Problem)
			if n.Step != "" {
				fmt.Fprintf(&b, ", fixed by %s", n.Step)
			}
			b.WriteString(")\n")
		}
		fmt.Fprintf(&b, "Written to %s (run %s)", r.Out, r.RunID)
	} else if rep.Clean() {
		b.WriteString("All geometries valid")
	} else {
		b.WriteString("Run with --fix --out <file> to repair")
	}
	return strings.TrimRight(b.String(), "\n")
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Report invalid geometries, optionally repairing them",
		Long: `Check every geometry in a dataset file and report what is wrong.

With --fix, invalid records are repaired with the configured strategy (or
--strategy) and written to --out together with a provenance document that
names the strategy and every repaired or excluded record. Records that no
step repairs are excluded, or the command fails with --strict.

Exit codes:
  0 - All geometries valid, or repaired output written
  1 - Invalid geometries found (without --fix), or refused in strict mode
  2 - Command error

Examples:
  geosafe validate parcels.geojson
  geosafe validate parcels.geojson --fix --out parcels.clean.geojson
  geosafe validate parcels.geojson --fix --strategy make_valid --out clean.sqlite`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringSliceVar(&opts.Strategy, "strategy", nil, "repair steps in order (buffer_zero,orient_rings,make_valid)")
	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "fail instead of excluding records that cannot be repaired")
	cmd.Flags().BoolVar(&opts.Fix, "fix", false, "repair invalid geometries and write them to --out")
	cmd.Flags().StringVarP(&opts.Out, "out", "o", "", "output file for --fix")

	return cmd
}

func runValidate(opts *ValidateOptions, path string, cmd *cobra.Command) error {
	if opts.Fix && opts.Out == "" {
		return NewExitError(ExitCommandError, "--fix requires --out")
	}
	if !opts.Fix && opts.Out != "" {
		return NewExitError(ExitCommandError, "--out requires --fix")
	}

	s, err := newSession(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	var extra []repair.Option
	if len(opts.Strategy) > 0 {
		steps, err := repair.ParseStrategy(opts.Strategy)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --strategy", err)
		}
		extra = append(extra, repair.WithStrategy(steps...))
	}
	if cmd.Flags().Changed("strict") {
		extra = append(extra, repair.WithStrict(opts.Strict))
	}

	ctx := cmd.Context()
	ds, err := geoio.Load(ctx, path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load dataset", err)
	}
	report := ValidateReport{File: path, CRS: ds.CRS}

	if !opts.Fix {
		r, err := s.repairer(extra...)
		if err != nil {
			return err
		}
		if report.Report, err = r.Inspect(ctx, ds); err != nil {
			return WrapExitError(ExitCommandError, "validation failed", err)
		}
		if err := s.out.Success(report); err != nil {
			return err
		}
		if !report.Report.Clean() {
			return NewExitError(ExitFailure, fmt.Sprintf("%d invalid geometries", report.Report.Invalid))
		}
		return nil
	}

	ops, err := s.ops(extra...)
	if err != nil {
		return err
	}
	var runIDs pipeline.RunIDGenerator = pipeline.UUIDv7Generator{}
	if opts.RunIDs != nil {
		runIDs = opts.RunIDs
	}
	rec := provenance.NewRecorder(runIDs.Generate(), "validate",
		provenance.WithEnvironment(s.environment()))
	ctx = provenance.WithNode(provenance.WithRecorder(ctx, rec), "validate")

	res, err := ops.Validate(ctx, ds)
	if err != nil {
		rec.Freeze(provenance.RunFailed)
		if repair.IsInvalidGeometry(err) {
			return WrapExitError(ExitFailure, "strict validation refused dataset", err)
		}
		return WrapExitError(ExitCommandError, "validation failed", err)
	}
	log := rec.Freeze(provenance.RunSucceeded)

	if err := geoio.Save(ctx, res.Dataset, opts.Out, log); err != nil {
		return WrapExitError(ExitCommandError, "failed to write output", err)
	}
	report.Report = res.Reports[0]
	report.Fixed = true
	report.Out = opts.Out
	report.RunID = log.RunID
	return s.out.Success(report)
}
