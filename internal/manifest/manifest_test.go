package manifest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/geosafe/internal/crs"
	"github.com/roach88/geosafe/internal/guard"
	"github.com/roach88/geosafe/internal/ir"
	"github.com/roach88/geosafe/internal/pipeline"
	"github.com/roach88/geosafe/internal/repair"
	"github.com/roach88/geosafe/internal/safeops"
	"github.com/roach88/geosafe/internal/tasks"
	"github.com/roach88/geosafe/internal/testutil"
)

func TestLoadYAMLAndCUEAgree(t *testing.T) {
	fromYAML, err := Load("testdata/transit.yaml")
	require.NoError(t, err)
	fromCUE, err := Load("testdata/transit.cue")
	require.NoError(t, err)

	assert.Equal(t, "transit", fromYAML.Name)
	assert.Equal(t, "testdata", fromYAML.Dir)
	assert.Equal(t, []string{"districts", "stops"}, fromYAML.InputNames())
	require.Len(t, fromYAML.Tasks, 3)
	assert.Equal(t, "EPSG:32610", fromYAML.Tasks[0].Params["to"])
	assert.Equal(t, "EPSG:32610", fromCUE.Tasks[0].Params["to"])

	// Parameter values differ in Go type (int from YAML, float64 from
	// CUE), so compare everything else.
	assert.Equal(t, fromYAML.Description, fromCUE.Description)
	assert.Equal(t, fromYAML.Inputs, fromCUE.Inputs)
	assert.Equal(t, fromYAML.Outputs, fromCUE.Outputs)
	for i := range fromYAML.Tasks {
		assert.Equal(t, fromYAML.Tasks[i].Name, fromCUE.Tasks[i].Name)
		assert.Equal(t, fromYAML.Tasks[i].Op, fromCUE.Tasks[i].Op)
		assert.Equal(t, fromYAML.Tasks[i].Inputs, fromCUE.Tasks[i].Inputs)
		assert.Equal(t, fromYAML.Tasks[i].Outputs, fromCUE.Tasks[i].Outputs)
	}
	assert.EqualValues(t, 400, fromCUE.Tasks[2].Params["distance"])
}

func TestLoadErrors(t *testing.T) {
	_, err := Load("testdata/missing.yaml")
	assert.True(t, IsManifestError(err, ErrCodeNotFound))

	_, err = Load("testdata/transit.toml")
	assert.True(t, IsManifestError(err, ErrCodeUnsupported))
}

func TestParseYAMLRejectsUnknownFields(t *testing.T) {
	_, err := Parse([]byte(`
name: p
tasks:
  - name: a
    op: load
    output: [x]
`), FormatYAML, "p.yaml")
	require.Error(t, err)
	assert.True(t, IsManifestError(err, ErrCodeParse))
	assert.Contains(t, err.Error(), "output")
}

func TestParseCUESchemaViolation(t *testing.T) {
	_, err := Parse([]byte(`
name: "p"
tasks: [{name: "a", op: "dissolve", outputs: ["x"]}]
`), FormatCUE, "p.cue")
	require.Error(t, err)
	assert.True(t, IsManifestError(err, ErrCodeSchema))

	var me *Error
	require.ErrorAs(t, err, &me)
	assert.True(t, me.Pos.IsValid())

	_, err = Parse([]byte(`name: "p", tasks: [], extra: 1`), FormatCUE, "p.cue")
	assert.True(t, IsManifestError(err, ErrCodeSchema))

	_, err = Parse([]byte(`name: "p" tasks: [`), FormatCUE, "p.cue")
	assert.True(t, IsManifestError(err, ErrCodeParse))
}

func TestValidate(t *testing.T) {
	task := func(name string, outputs ...string) Task {
		return Task{Name: name, Op: "load", Outputs: outputs, Params: map[string]any{"path": "x.geojson"}}
	}
	tests := []struct {
		name     string
		manifest Manifest
		code     string
		field    string
	}{
		{
			name:     "missing name",
			manifest: Manifest{Tasks: []Task{task("a", "x")}},
			code:     ErrCodeInvalidField,
			field:    "name",
		},
		{
			name:     "no tasks",
			manifest: Manifest{Name: "p"},
			code:     ErrCodeInvalidField,
			field:    "tasks",
		},
		{
			name:     "task without outputs",
			manifest: Manifest{Name: "p", Tasks: []Task{task("a")}},
			code:     ErrCodeInvalidField,
			field:    "tasks[0].outputs",
		},
		{
			name:     "duplicate task",
			manifest: Manifest{Name: "p", Tasks: []Task{task("a", "x"), task("a", "y")}},
			code:     ErrCodeDuplicateTask,
			field:    "tasks[1].name",
		},
		{
			name: "output of nothing",
			manifest: Manifest{Name: "p", Tasks: []Task{task("a", "x")},
				Outputs: map[string]string{"y": "y.geojson"}},
			code:  ErrCodeUnknownDataset,
			field: "outputs.y",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.manifest.Validate()
			require.Error(t, err)
			var me *Error
			require.ErrorAs(t, err, &me)
			assert.Equal(t, tt.code, me.Code)
			assert.Equal(t, tt.field, me.Field)
		})
	}

	ok := Manifest{Name: "p", Inputs: map[string]string{"in": "in.geojson"}, Tasks: []Task{task("a", "x")},
		Outputs: map[string]string{"in": "copy.geojson", "x": "x.geojson"}}
	require.NoError(t, ok.Validate())
}

func TestCompileAndRun(t *testing.T) {
	m, err := Load("testdata/transit.yaml")
	require.NoError(t, err)

	proj := testutil.NewAffineProjector()
	engine := testutil.NewPlanarEngine()
	env := &tasks.Env{Ops: safeops.New(guard.New(crs.NewRegistry(proj), proj), repair.New(engine), engine)}

	g, err := m.Compile(env)
	require.NoError(t, err)
	assert.Equal(t, "testdata", env.BaseDir)
	assert.Equal(t, []string{"to_utm", "assign", "catchment"}, g.Order())
	assert.Equal(t, []string{"districts", "stops"}, g.External())

	res, err := g.Run(context.Background(), map[string]ir.Dataset{
		"stops":     testutil.PointsWGS84(),
		"districts": testutil.DistrictsUTM(),
	}, pipeline.WithRunIDGenerator(testutil.NewFixedRunIDGenerator("run-manifest")))
	require.NoError(t, err)
	require.NoError(t, res.Err())
	assert.Equal(t, "transit", res.Log.Pipeline)
	require.Contains(t, res.Outputs, "catchments")
	assert.Equal(t, "EPSG:32610", res.Outputs["catchments"].CRS)
}

func TestPath(t *testing.T) {
	m := &Manifest{Dir: "pipelines"}
	assert.Equal(t, filepath.Join("pipelines", "a.geojson"), m.Path("a.geojson"))
	abs := filepath.Join(os.TempDir(), "a.geojson")
	assert.Equal(t, abs, m.Path(abs))
}
