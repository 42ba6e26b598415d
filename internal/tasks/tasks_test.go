package tasks_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/geosafe/internal/crs"
	"github.com/roach88/geosafe/internal/geoio"
	"github.com/roach88/geosafe/internal/guard"
	"github.com/roach88/geosafe/internal/ir"
	"github.com/roach88/geosafe/internal/pipeline"
	"github.com/roach88/geosafe/internal/repair"
	"github.com/roach88/geosafe/internal/safeops"
	"github.com/roach88/geosafe/internal/tasks"
	"github.com/roach88/geosafe/internal/testutil"
	"github.com/roach88/geosafe/internal/validation"
)

func newEnv(t *testing.T) *tasks.Env {
	t.Helper()
	proj := testutil.NewAffineProjector()
	engine := testutil.NewPlanarEngine()
	g := guard.New(crs.NewRegistry(proj), proj)
	return &tasks.Env{
		Ops:     safeops.New(g, repair.New(engine), engine),
		BaseDir: t.TempDir(),
	}
}

func compile(t *testing.T, env *tasks.Env, specs []tasks.Spec, external ...string) *pipeline.Graph {
	t.Helper()
	p := pipeline.New("test")
	require.NoError(t, tasks.AddAll(p, env, specs))
	g, err := p.Compile(external...)
	require.NoError(t, err)
	return g
}

func run(t *testing.T, g *pipeline.Graph, inputs map[string]ir.Dataset) *pipeline.Result {
	t.Helper()
	res, err := g.Run(context.Background(), inputs,
		pipeline.WithRunIDGenerator(testutil.NewFixedRunIDGenerator("run-tasks")),
		pipeline.WithClocks(testutil.NewDeterministicClock(), testutil.NewStepClock(testutil.Epoch, 0)),
	)
	require.NoError(t, err)
	return res
}

func TestNames(t *testing.T) {
	assert.Equal(t,
		[]string{"buffer", "clip", "join", "load", "overlay", "reproject", "save", "validate"},
		tasks.Names())
}

func TestBuildRejectsBadSpecs(t *testing.T) {
	tests := []struct {
		name    string
		spec    tasks.Spec
		wantErr string
	}{
		{
			name:    "unknown operation",
			spec:    tasks.Spec{Name: "t", Op: "dissolve", Inputs: []string{"a"}, Outputs: []string{"b"}},
			wantErr: `unknown operation "dissolve"`,
		},
		{
			name:    "wrong input count",
			spec:    tasks.Spec{Name: "t", Op: "join", Inputs: []string{"a"}, Outputs: []string{"b"}},
			wantErr: "join takes 2 input(s), got 1",
		},
		{
			name:    "two outputs",
			spec:    tasks.Spec{Name: "t", Op: "buffer", Inputs: []string{"a"}, Outputs: []string{"b", "c"}, Params: map[string]any{"distance": 1}},
			wantErr: "exactly one output",
		},
		{
			name:    "missing distance",
			spec:    tasks.Spec{Name: "t", Op: "buffer", Inputs: []string{"a"}, Outputs: []string{"b"}},
			wantErr: "distance: is required",
		},
		{
			name:    "unknown parameter",
			spec:    tasks.Spec{Name: "t", Op: "buffer", Inputs: []string{"a"}, Outputs: []string{"b"}, Params: map[string]any{"distance": 1, "radius": 2}},
			wantErr: `unknown field "radius"`,
		},
		{
			name:    "bad overlay",
			spec:    tasks.Spec{Name: "t", Op: "overlay", Inputs: []string{"a", "b"}, Outputs: []string{"c"}, Params: map[string]any{"how": "merge"}},
			wantErr: "how: must be one of",
		},
		{
			name:    "dwithin without distance",
			spec:    tasks.Spec{Name: "t", Op: "join", Inputs: []string{"a", "b"}, Outputs: []string{"c"}, Params: map[string]any{"predicate": "dwithin"}},
			wantErr: "dwithin needs a positive distance",
		},
		{
			name:    "reproject without target",
			spec:    tasks.Spec{Name: "t", Op: "reproject", Inputs: []string{"a"}, Outputs: []string{"b"}},
			wantErr: "to: is required",
		},
		{
			name:    "unsupported save format",
			spec:    tasks.Spec{Name: "t", Op: "save", Inputs: []string{"a"}, Outputs: []string{"b"}, Params: map[string]any{"path": "out.shp"}},
			wantErr: "unsupported format",
		},
		{
			name:    "unknown repair step",
			spec:    tasks.Spec{Name: "t", Op: "validate", Inputs: []string{"a"}, Outputs: []string{"b"}, Params: map[string]any{"strategy": []any{"simplify"}}},
			wantErr: "simplify",
		},
	}

	env := newEnv(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tasks.Build(env, tt.spec)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Contains(t, err.Error(), "task t")
		})
	}
}

func TestBuildParamValidationError(t *testing.T) {
	_, err := tasks.Build(newEnv(t), tasks.Spec{Name: "t", Op: "load", Outputs: []string{"a"}})
	require.Error(t, err)
	assert.True(t, validation.IsValidationError(err))
}

func TestReprojectThenJoin(t *testing.T) {
	env := newEnv(t)
	g := compile(t, env, []tasks.Spec{
		{Name: "to_utm", Op: "reproject", Inputs: []string{"stops"}, Outputs: []string{"stops_utm"},
			Params: map[string]any{"to": "EPSG:32610"}},
		{Name: "assign", Op: "join", Inputs: []string{"stops_utm", "districts"}, Outputs: []string{"assigned"},
			Params: map[string]any{"predicate": "within"}},
	}, "stops", "districts")

	res := run(t, g, map[string]ir.Dataset{
		"stops":     testutil.PointsWGS84(),
		"districts": testutil.DistrictsUTM(),
	})
	require.NoError(t, res.Err())

	out := res.Outputs["assigned"]
	assert.Equal(t, "assigned", out.Name)
	assert.Equal(t, "EPSG:32610", out.CRS)
	require.Len(t, out.Records, 1)
	assert.Equal(t, "Downtown", out.Records[0].Properties["name_right"])

	decisions := res.Log.Decisions()
	require.NotEmpty(t, decisions)
	assert.Equal(t, ir.OpReproject, decisions[0].Operation)
	assert.Equal(t, "to_utm", decisions[0].Node)

	var joins []ir.Decision
	for _, d := range decisions {
		require.NotEmpty(t, d.Node, "every decision names its task")
		if d.Operation == ir.OpJoin {
			joins = append(joins, d)
		}
	}
	require.Len(t, joins, 1)
	assert.Equal(t, "assign", joins[0].Node)
	assert.Equal(t, ir.OutcomeAllowed, joins[0].Outcome)
	assert.Equal(t, []ir.CRSBinding{
		{Dataset: "stops_utm", CRS: "EPSG:32610"},
		{Dataset: "districts", CRS: "EPSG:32610"},
	}, joins[0].Inputs)

	ev, ok := res.Log.Task("assign")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"predicate": "within"}, ev.Params)
}

func TestMixedCRSJoinFailsTaskAndSkipsDependents(t *testing.T) {
	env := newEnv(t)
	g := compile(t, env, []tasks.Spec{
		{Name: "assign", Op: "join", Inputs: []string{"stops", "districts"}, Outputs: []string{"assigned"}},
		{Name: "write", Op: "save", Inputs: []string{"assigned"}, Outputs: []string{"written"},
			Params: map[string]any{"path": "assigned.geojson"}},
	}, "stops", "districts")

	res := run(t, g, map[string]ir.Dataset{
		"stops":     testutil.PointsWGS84(),
		"districts": testutil.DistrictsUTM(),
	})

	assert.Equal(t, ir.TaskFailed, res.Status["assign"])
	assert.Equal(t, ir.TaskSkipped, res.Status["write"])
	assert.True(t, guard.IsCRSMismatch(res.Errors["assign"]))
	assert.Empty(t, env.Saved())

	_, err := os.Stat(filepath.Join(env.BaseDir, "assigned.geojson"))
	assert.True(t, os.IsNotExist(err))
}

func TestLoadBufferSave(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	require.NoError(t, geoio.Save(ctx, testutil.DistrictsUTM(), filepath.Join(env.BaseDir, "districts.geojson"), nil))

	g := compile(t, env, []tasks.Spec{
		{Name: "read", Op: "load", Outputs: []string{"districts"},
			Params: map[string]any{"path": "districts.geojson"}},
		{Name: "grow", Op: "buffer", Inputs: []string{"districts"}, Outputs: []string{"grown"},
			Params: map[string]any{"distance": 100}},
		{Name: "write", Op: "save", Inputs: []string{"grown"}, Outputs: []string{"written"},
			Params: map[string]any{"path": "out/grown.sqlite"}},
	})

	res := run(t, g, nil)
	require.NoError(t, res.Err())

	want := filepath.Join(env.BaseDir, "out", "grown.sqlite")
	assert.Equal(t, []string{want}, env.Saved())

	saved, err := geoio.Load(ctx, want)
	require.NoError(t, err)
	assert.Equal(t, "EPSG:32610", saved.CRS)
	require.Len(t, saved.Records, 2)

	orig, _ := testutil.DistrictsUTM().Records[0].Geometry.Bounds()
	grown, _ := saved.Records[0].Geometry.Bounds()
	assert.InDelta(t, orig.Right()-orig.Left()+200, grown.Right()-grown.Left(), 1e-6)
}

func TestValidateStrictOverride(t *testing.T) {
	env := newEnv(t)
	g := compile(t, env, []tasks.Spec{
		{Name: "check", Op: "validate", Inputs: []string{"shapes"}, Outputs: []string{"clean"},
			Params: map[string]any{"strict": true}},
		{Name: "lenient", Op: "validate", Inputs: []string{"shapes"}, Outputs: []string{"repaired"}},
	}, "shapes")

	res := run(t, g, map[string]ir.Dataset{
		"shapes": ir.NewDataset("shapes", "EPSG:32610", ir.Box(0, 0, 1, 1), testutil.Bowtie(2)),
	})

	assert.Equal(t, ir.TaskFailed, res.Status["check"])
	assert.True(t, repair.IsInvalidGeometry(res.Errors["check"]))

	assert.Equal(t, ir.TaskSucceeded, res.Status["lenient"])
	repaired := res.Outputs["repaired"]
	require.Len(t, repaired.Records, 2)
	assert.Equal(t, ir.ValidityRepaired, repaired.Records[1].Validity)
}
