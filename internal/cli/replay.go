package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
}

// ReplayResult compares a fresh run against an archived one.
type ReplayResult struct {
	RunID           string `json:"run_id"`
	ReplayRunID     string `json:"replay_run_id"`
	Reproducible    bool   `json:"reproducible"`
	StoredDigest    string `json:"stored_digest"`
	Digest          string `json:"digest"`
	FirstDifference int64  `json:"first_difference,omitempty"`
	Detail          string `json:"detail,omitempty"`
}

func (r ReplayResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Archived run: %s\n", r.RunID)
	fmt.Fprintf(&b, "Replay run:   %s\n", r.ReplayRunID)
	fmt.Fprintf(&b, "Archived digest: %s\n", r.StoredDigest)
	fmt.Fprintf(&b, "Replay digest:   %s\n", r.Digest)
	if r.Reproducible {
		b.WriteString("Result: reproducible")
		return b.String()
	}
	b.WriteString("Result: NOT reproducible\n")
	b.WriteString(r.Detail)
	return b.String()
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <run-id> <manifest>",
		Short: "Re-run a manifest and verify it reproduces an archived run",
		Long: `Re-run a pipeline manifest against its current inputs and compare the
new provenance log with an archived run.

Digests cover decisions, task outcomes, parameters and dataset
fingerprints, and ignore run IDs, timestamps and the host environment, so
a run over unchanged inputs with unchanged settings reproduces exactly.
On a mismatch the first differing event is reported. Manifest outputs are
not rewritten; the replay is not archived.

Exit codes:
  0 - Replay matches the archived run
  1 - Replay differs
  2 - Command error (database not found, run not archived, etc.)

Examples:
  geosafe replay --db runs.db 01927c1e-7d1c-7c3e-9f00-1b2c3d4e5f60 pipelines/transit.yaml`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite archive (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runReplay(opts *ReplayOptions, runID, manifestPath string, cmd *cobra.Command) error {
	st, err := openArchive(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, stop := signalContext(cmd)
	defer stop()

	// Fail before running anything if the run is not archived.
	if _, err := st.RunDigest(ctx, runID); err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("run %s not archived", runID), err)
	}

	s, err := newSession(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	x, err := s.execute(ctx, manifestPath, opts.RunIDs)
	if err != nil {
		return err
	}

	cmp, err := st.CompareRun(ctx, runID, x.result.Log)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to compare runs", err)
	}
	result := ReplayResult{
		RunID:           runID,
		ReplayRunID:     x.result.RunID,
		Reproducible:    cmp.Match(),
		StoredDigest:    cmp.StoredDigest,
		Digest:          cmp.Digest,
		FirstDifference: cmp.FirstDifference,
		Detail:          cmp.Detail,
	}
	if err := s.out.Success(result); err != nil {
		return err
	}
	if !result.Reproducible {
		return NewExitError(ExitFailure, fmt.Sprintf("replay of %s is not reproducible", runID))
	}
	return nil
}
