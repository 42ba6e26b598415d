package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/geosafe/internal/geoio"
	"github.com/roach88/geosafe/internal/ir"
	"github.com/roach88/geosafe/internal/manifest"
	"github.com/roach88/geosafe/internal/pipeline"
	"github.com/roach88/geosafe/internal/provenance"
	"github.com/roach88/geosafe/internal/store"
	"github.com/roach88/geosafe/internal/tasks"
	"github.com/roach88/geosafe/internal/telemetry"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database      string
	ProvenanceDir string
}

// RunReport is the result of one pipeline run.
type RunReport struct {
	provenance.Summary
	Digest     string            `json:"digest"`
	Provenance string            `json:"provenance"`
	Archive    string            `json:"archive,omitempty"`
	Saved      []string          `json:"saved"`
	Errors     map[string]string `json:"errors,omitempty"`
}

func (r RunReport) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run %s (%s): %s\n", r.RunID, r.Pipeline, r.Status)
	for _, t := range r.TaskStatus {
		fmt.Fprintf(&b, "  %-10s %s", t.Status, t.Name)
		if msg, ok := r.Errors[t.Name]; ok {
			fmt.Fprintf(&b, ": %s", msg)
		} else if t.Reason != "" {
			fmt.Fprintf(&b, " (%s)", t.Reason)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Decisions: %d (%d blocked, %d auto-resolved); repaired %d, excluded %d\n",
		r.Decisions, r.Blocked, r.AutoResolved, r.Repaired, r.Excluded)
	for _, p := range r.Saved {
		fmt.Fprintf(&b, "Saved: %s\n", p)
	}
	fmt.Fprintf(&b, "Provenance: %s\n", r.Provenance)
	if r.Archive != "" {
		fmt.Fprintf(&b, "Archived to: %s\n", r.Archive)
	}
	fmt.Fprintf(&b, "Digest: %s", r.Digest)
	return b.String()
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <manifest>",
		Short: "Execute a pipeline manifest",
		Long: `Execute a pipeline declared in a YAML or CUE manifest.

Inputs are loaded from the files the manifest names, tasks run in
dependency order, and every produced dataset listed under outputs is saved
with the run's provenance attached. The provenance document is written to
<provenance-dir>/<run-id>.json and, with --db, archived to SQLite.

Exit codes:
  0 - Every task succeeded
  1 - A task failed or was skipped
  2 - Command error (bad manifest, unreadable input, etc.)

Examples:
  geosafe run pipelines/transit.yaml
  geosafe run pipelines/transit.cue --db runs.db --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "archive the run to this SQLite database (default from config)")
	cmd.Flags().StringVar(&opts.ProvenanceDir, "provenance-dir", "", "directory for provenance documents (default from config)")

	return cmd
}

func runPipeline(opts *RunOptions, path string, cmd *cobra.Command) error {
	s, err := newSession(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer s.Close()
	if opts.Database != "" {
		s.cfg.Provenance.DB = opts.Database
	}
	if opts.ProvenanceDir != "" {
		s.cfg.Provenance.Dir = opts.ProvenanceDir
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	shutdown, err := telemetry.Init(ctx, s.cfg.OTLP())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start telemetry", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			s.logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	x, err := s.execute(ctx, path, opts.RunIDs)
	if err != nil {
		return err
	}
	res := x.result

	report := RunReport{Summary: res.Log.Summary(), Saved: []string{}}
	if report.Digest, err = res.Log.Digest(); err != nil {
		return WrapExitError(ExitCommandError, "failed to digest provenance", err)
	}
	if len(res.Errors) > 0 {
		report.Errors = make(map[string]string, len(res.Errors))
		for name, e := range res.Errors {
			report.Errors[name] = e.Error()
		}
	}

	if report.Saved, err = x.saveOutputs(ctx, s); err != nil {
		return WrapExitError(ExitCommandError, "failed to save outputs", err)
	}

	report.Provenance = filepath.Join(s.cfg.Provenance.Dir, res.RunID+".json")
	if err := provenance.Save(report.Provenance, res.Log); err != nil {
		return WrapExitError(ExitCommandError, "failed to write provenance", err)
	}
	s.out.VerboseLog("wrote provenance %s", report.Provenance)

	if s.cfg.Provenance.DB != "" {
		if err := archive(ctx, s.cfg.Provenance.DB, res.Log); err != nil {
			return WrapExitError(ExitCommandError, "failed to archive run", err)
		}
		report.Archive = s.cfg.Provenance.DB
		s.out.VerboseLog("archived run %s to %s", res.RunID, report.Archive)
	}

	if err := s.out.Success(report); err != nil {
		return err
	}
	if err := res.Err(); err != nil {
		return WrapExitError(ExitFailure, "pipeline run failed", err)
	}
	if res.Log.Status != provenance.RunSucceeded {
		return NewExitError(ExitFailure, fmt.Sprintf("pipeline run %s", res.Log.Status))
	}
	return nil
}

// execution is a finished manifest run.
type execution struct {
	manifest *manifest.Manifest
	env      *tasks.Env
	result   *pipeline.Result
}

// execute loads, compiles and runs a manifest. Task failures are reported
// on the result, not as an error.
func (s *session) execute(ctx context.Context, path string, runIDs pipeline.RunIDGenerator) (*execution, error) {
	m, err := manifest.Load(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load manifest", err)
	}
	if s.cfg.Safety.AllowGeographic {
		allowGeographic(m)
	}

	ops, err := s.ops()
	if err != nil {
		return nil, err
	}
	env := &tasks.Env{Ops: ops, Logger: s.logger}
	g, err := m.Compile(env)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to compile pipeline", err)
	}

	inputs := make(map[string]ir.Dataset, len(m.Inputs))
	for _, name := range m.InputNames() {
		ds, err := geoio.Load(ctx, m.Path(m.Inputs[name]))
		if err != nil {
			return nil, WrapExitError(ExitCommandError, fmt.Sprintf("failed to load input %s", name), err)
		}
		inputs[name] = ds
	}

	runOpts := []pipeline.RunOption{
		pipeline.WithEnvironment(s.environment()),
		pipeline.WithLogger(s.logger),
	}
	if runIDs != nil {
		runOpts = append(runOpts, pipeline.WithRunIDGenerator(runIDs))
	}
	res, err := g.Run(ctx, inputs, runOpts...)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to run pipeline", err)
	}
	return &execution{manifest: m, env: env, result: res}, nil
}

// saveOutputs writes the manifest outputs and attaches the frozen log to
// every file written by save tasks during the run.
func (x *execution) saveOutputs(ctx context.Context, s *session) ([]string, error) {
	saved := []string{}
	names := make([]string, 0, len(x.manifest.Outputs))
	for name := range x.manifest.Outputs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		ds, ok := x.result.Datasets[name]
		if !ok {
			s.logger.Warn("output not produced", "dataset", name)
			continue
		}
		path := x.manifest.Path(x.manifest.Outputs[name])
		if err := geoio.Save(ctx, ds, path, x.result.Log); err != nil {
			return saved, fmt.Errorf("output %s: %w", name, err)
		}
		s.logger.Info("output saved", "dataset", name, "path", path, "records", ds.Len())
		saved = append(saved, path)
	}
	for _, path := range x.env.Saved() {
		if err := geoio.Attach(ctx, path, x.result.Log); err != nil {
			return saved, err
		}
		saved = append(saved, path)
	}
	return saved, nil
}

// allowGeographic applies the config-wide opt-in to every metric task that
// does not set it itself.
func allowGeographic(m *manifest.Manifest) {
	for i, t := range m.Tasks {
		if t.Op != "buffer" && t.Op != "join" {
			continue
		}
		if _, set := t.Params["allow_geographic"]; set {
			continue
		}
		if t.Params == nil {
			m.Tasks[i].Params = map[string]any{}
		}
		m.Tasks[i].Params["allow_geographic"] = true
	}
}

func archive(ctx context.Context, db string, log *provenance.Log) error {
	st, err := store.Open(db)
	if err != nil {
		return err
	}
	defer st.Close()
	return st.WriteRun(ctx, log)
}

// signalContext cancels on SIGINT or SIGTERM. Uses the command's context
// if available (for testing).
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
