package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/geosafe/internal/ir"
	"github.com/roach88/geosafe/internal/provenance"
	"github.com/roach88/geosafe/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Pipeline string // optional - filter run listing
	Blocked  bool   // list blocked decisions across runs
	YAML     bool   // print the archived document as YAML
}

// TraceEvent is one line of a run timeline.
type TraceEvent struct {
	Seq       int64  `json:"seq"`
	Kind      string `json:"kind"`
	RunID     string `json:"run_id,omitempty"`
	Node      string `json:"node,omitempty"`
	Operation string `json:"operation"`
	Outcome   string `json:"outcome"`
	Detail    string `json:"detail,omitempty"`
}

// TraceResult is the trace of one archived run.
type TraceResult struct {
	provenance.Summary
	Digest      string                 `json:"digest"`
	Environment provenance.Environment `json:"environment"`
	Timeline    []TraceEvent           `json:"timeline"`
}

// RunListing is the trace output when no run is named.
type RunListing struct {
	Runs []RunLine `json:"runs"`
}

// RunLine summarizes one archived run.
type RunLine struct {
	RunID    string `json:"run_id"`
	Pipeline string `json:"pipeline"`
	Status   string `json:"status"`
	Started  string `json:"started_at"`
	Events   int    `json:"events"`
	Digest   string `json:"digest"`
}

// BlockedListing lists refused operations across runs.
type BlockedListing struct {
	Decisions []TraceEvent `json:"decisions"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace [run-id]",
		Short: "Show archived provenance",
		Long: `Show the provenance of archived runs.

With a run ID, prints the run's task outcomes and the timeline of guard and
validator decisions. Without one, lists archived runs. With --blocked,
lists every refused operation across all runs.

Examples:
  geosafe trace --db runs.db
  geosafe trace --db runs.db 01927c1e-7d1c-7c3e-9f00-1b2c3d4e5f60
  geosafe trace --db runs.db --blocked --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			runID := ""
			if len(args) == 1 {
				runID = args[0]
			}
			return runTrace(opts, runID, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite archive (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Pipeline, "pipeline", "", "list runs of this pipeline only")
	cmd.Flags().BoolVar(&opts.Blocked, "blocked", false, "list blocked decisions across all runs")
	cmd.Flags().BoolVar(&opts.YAML, "yaml", false, "print the full provenance document as YAML")

	return cmd
}

func runTrace(opts *TraceOptions, runID string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), ErrWriter: cmd.ErrOrStderr(), Verbose: opts.Verbose}

	st, err := openArchive(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	switch {
	case opts.Blocked:
		rows, err := st.DecisionsByOutcome(ctx, ir.OutcomeBlocked)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to query decisions", err)
		}
		listing := BlockedListing{Decisions: make([]TraceEvent, len(rows))}
		for i, row := range rows {
			listing.Decisions[i] = traceEvent(row.Event)
			listing.Decisions[i].RunID = row.RunID
		}
		return out.Success(listing)

	case runID == "":
		runs, err := st.ListRuns(ctx, opts.Pipeline)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list runs", err)
		}
		listing := RunListing{Runs: make([]RunLine, len(runs))}
		for i, r := range runs {
			listing.Runs[i] = RunLine{
				RunID:    r.RunID,
				Pipeline: r.Pipeline,
				Status:   string(r.Status),
				Started:  r.StartedAt.Format("2006-01-02T15:04:05Z07:00"),
				Events:   r.Events,
				Digest:   r.Digest,
			}
		}
		return out.Success(listing)
	}

	log, err := st.ReadRun(ctx, runID)
	if errors.Is(err, store.ErrRunNotFound) {
		return WrapExitError(ExitCommandError, fmt.Sprintf("run %s not archived", runID), err)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}

	if opts.YAML {
		doc, err := log.YAML()
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to render YAML", err)
		}
		_, err = cmd.OutOrStdout().Write(doc)
		return err
	}

	result := TraceResult{
		Summary:     log.Summary(),
		Environment: log.Environment,
		Timeline:    make([]TraceEvent, len(log.Events)),
	}
	if result.Digest, err = log.Digest(); err != nil {
		return WrapExitError(ExitCommandError, "failed to digest run", err)
	}
	for i, e := range log.Events {
		result.Timeline[i] = traceEvent(e)
	}
	return out.Success(result)
}

func openArchive(path string) (*store.Store, error) {
	if !fileExists(path) {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("database not found: %s", path))
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

// traceEvent flattens a provenance event for display.
func traceEvent(e provenance.Event) TraceEvent {
	te := TraceEvent{Seq: e.Seq, Kind: string(e.Kind)}
	switch {
	case e.Decision != nil:
		d := e.Decision
		te.Node = d.Node
		te.Operation = string(d.Operation)
		te.Outcome = string(d.Outcome)
		te.Detail = d.Reason
		if d.EffectiveCRS != "" {
			te.Detail = fmt.Sprintf("[%s] %s", d.EffectiveCRS, d.Reason)
		}
	case e.Task != nil:
		t := e.Task
		te.Node = t.Name
		te.Operation = t.Operation
		te.Outcome = string(t.Status)
		te.Detail = t.Reason
	}
	return te
}

func (r TraceResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run: %s\n", r.RunID)
	fmt.Fprintf(&b, "Pipeline: %s\n", r.Pipeline)
	fmt.Fprintf(&b, "Status: %s (%s)\n", r.Status, r.Duration)
	fmt.Fprintf(&b, "Engines: geometry=%s projection=%s\n", r.Environment.GeometryEngine, r.Environment.ProjectionEngine)
	b.WriteString("\n=== Timeline ===\n")
	writeEvents(&b, r.Timeline)
	b.WriteString("\n=== Stats ===\n")
	fmt.Fprintf(&b, "  Tasks:         %d (%d succeeded, %d failed, %d skipped)\n", r.Tasks, r.Succeeded, r.Failed, r.Skipped)
	fmt.Fprintf(&b, "  Decisions:     %d (%d blocked, %d auto-resolved)\n", r.Decisions, r.Blocked, r.AutoResolved)
	fmt.Fprintf(&b, "  Repairs:       %d repaired, %d excluded\n", r.Repaired, r.Excluded)
	fmt.Fprintf(&b, "  Digest:        %s", r.Digest)
	return b.String()
}

func (l RunListing) String() string {
	if len(l.Runs) == 0 {
		return "No runs archived."
	}
	var b strings.Builder
	for _, r := range l.Runs {
		fmt.Fprintf(&b, "%s  %-10s %-20s %s  %d events\n", r.RunID, r.Status, r.Pipeline, r.Started, r.Events)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (l BlockedListing) String() string {
	if len(l.Decisions) == 0 {
		return "No blocked operations."
	}
	var b strings.Builder
	writeEvents(&b, l.Decisions)
	return strings.TrimRight(b.String(), "\n")
}

func writeEvents(w io.Writer, events []TraceEvent) {
	if len(events) == 0 {
		fmt.Fprintln(w, "  (no events)")
		return
	}
	for _, e := range events {
		prefix := fmt.Sprintf("  [%d]", e.Seq)
		if e.RunID != "" {
			prefix = fmt.Sprintf("  %s [%d]", truncateID(e.RunID), e.Seq)
		}
		fmt.Fprintf(w, "%s %-8s %-10s %-13s %s", prefix, e.Kind, e.Operation, e.Outcome, e.Node)
		if e.Detail != "" {
			fmt.Fprintf(w, ": %s", e.Detail)
		}
		fmt.Fprintln(w)
	}
}

// truncateID truncates a long ID for display.
func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:8] + "..." + id[len(id)-8:]
}
