package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/geosafe/internal/geoio"
	"github.com/roach88/geosafe/internal/ir"
	"github.com/roach88/geosafe/internal/testutil"
)

const transitYAML = `
name: transit
inputs:
  stops: stops.geojson
  districts: districts.geojson
tasks:
  - name: to_utm
    op: reproject
    inputs: [stops]
    outputs: [stops_utm]
    params:
      to: EPSG:32610
  - name: assign
    op: join
    inputs: [stops_utm, districts]
    outputs: [assigned]
    params:
      predicate: within
  - name: catchment
    op: buffer
    inputs: [assigned]
    outputs: [catchments]
    params:
      distance: 400
outputs:
  catchments: out/catchments.geojson
`

const mixedYAML = `
name: mixed
inputs:
  stops: stops.geojson
  districts: districts.geojson
tasks:
  - name: assign
    op: join
    inputs: [stops, districts]
    outputs: [assigned]
outputs:
  assigned: out/assigned.geojson
`

// workspace is a temp directory holding fixture datasets and manifests.
type workspace struct {
	dir  string
	prov string
	db   string
}

func newWorkspace(t *testing.T) *workspace {
	t.Helper()
	dir := t.TempDir()
	w := &workspace{dir: dir, prov: filepath.Join(dir, "provenance"), db: filepath.Join(dir, "runs.db")}
	w.dataset(t, "stops.geojson", testutil.PointsWGS84())
	w.dataset(t, "districts.geojson", testutil.DistrictsUTM())
	w.file(t, "transit.yaml", transitYAML)
	w.file(t, "mixed.yaml", mixedYAML)
	t.Setenv("GEOSAFE_PROVENANCE_DIR", w.prov)
	return w
}

func (w *workspace) path(name string) string {
	return filepath.Join(w.dir, name)
}

func (w *workspace) file(t *testing.T, name, content string) string {
	t.Helper()
	p := w.path(name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func (w *workspace) dataset(t *testing.T, name string, ds ir.Dataset) string {
	t.Helper()
	p := w.path(name)
	require.NoError(t, geoio.Save(context.Background(), ds, p, nil))
	return p
}

// testOptions runs commands on the pure-Go test engines with a fixed run
// ID.
func testOptions(runID string) *RootOptions {
	return &RootOptions{
		Engines: func() (*Engines, error) {
			return &Engines{Geometry: testutil.NewPlanarEngine(), Projection: testutil.NewAffineProjector()}, nil
		},
		RunIDs: testutil.NewFixedRunIDGenerator(runID),
	}
}

// execute runs the root command and returns stdout.
func execute(t *testing.T, opts *RootOptions, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand(opts)
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	t.Logf("stderr:\n%s", stderr.String())
	return stdout.String(), err
}
