package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/geosafe/internal/config"
	"github.com/roach88/geosafe/internal/crs"
	"github.com/roach88/geosafe/internal/geom"
	"github.com/roach88/geosafe/internal/geosengine"
	"github.com/roach88/geosafe/internal/guard"
	"github.com/roach88/geosafe/internal/projengine"
	"github.com/roach88/geosafe/internal/provenance"
	"github.com/roach88/geosafe/internal/repair"
	"github.com/roach88/geosafe/internal/safeops"
)

// Engines are the geometry and projection backends a command runs on.
type Engines struct {
	Geometry   geom.Engine
	Projection crs.Projector

	// Release frees native resources. Optional.
	Release func()
}

// Close releases the engines.
func (e *Engines) Close() {
	if e.Release != nil {
		e.Release()
	}
}

// EngineFactory creates the engines for one command invocation.
type EngineFactory func() (*Engines, error)

// NativeEngines returns the GEOS geometry engine and the PROJ projector.
func NativeEngines() (*Engines, error) {
	p := projengine.New()
	return &Engines{Geometry: geosengine.New(), Projection: p, Release: p.Close}, nil
}

// session is the per-command state shared by every subcommand: resolved
// config, logger, engines and output formatter.
type session struct {
	cfg     *config.Config
	logger  *slog.Logger
	engines *Engines
	out     *OutputFormatter
}

func newSession(opts *RootOptions, cmd *cobra.Command) (*session, error) {
	cfg, err := config.Load(config.Options{ConfigFile: opts.ConfigFile, EnvFile: opts.EnvFile})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}

	logCfg := cfg.Log
	if opts.Verbose {
		logCfg.Level = "debug"
	}
	logger := logCfg.NewLogger(cmd.ErrOrStderr())
	slog.SetDefault(logger)

	factory := opts.Engines
	if factory == nil {
		factory = NativeEngines
	}
	engines, err := factory()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to start engines", err)
	}
	logger.Debug("engines ready",
		"geometry", engines.Geometry.Name(), "projection", engines.Projection.Name(),
		"config", cfg.File)

	return &session{
		cfg:     cfg,
		logger:  logger,
		engines: engines,
		out: &OutputFormatter{
			Format:    opts.Format,
			Writer:    cmd.OutOrStdout(),
			ErrWriter: cmd.ErrOrStderr(),
			Verbose:   opts.Verbose,
		},
	}, nil
}

func (s *session) Close() {
	s.engines.Close()
}

func (s *session) guard() *guard.Guard {
	return guard.New(crs.NewRegistry(s.engines.Projection), s.engines.Projection, guard.WithLogger(s.logger))
}

// repairer builds the validator from config, with extra options applied
// last so command flags win.
func (s *session) repairer(extra ...repair.Option) (*repair.Repairer, error) {
	opts, err := s.cfg.RepairOptions()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid repair strategy", err)
	}
	opts = append(opts, repair.WithLogger(s.logger))
	opts = append(opts, extra...)
	return repair.New(s.engines.Geometry, opts...), nil
}

func (s *session) ops(extra ...repair.Option) (*safeops.Ops, error) {
	r, err := s.repairer(extra...)
	if err != nil {
		return nil, err
	}
	return safeops.New(s.guard(), r, s.engines.Geometry,
		safeops.WithSegments(s.cfg.Buffer.Segments),
		safeops.WithLogger(s.logger)), nil
}

func (s *session) environment() provenance.Environment {
	return provenance.CaptureEnvironment(s.engines.Geometry.Name(), s.engines.Projection.Name())
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
