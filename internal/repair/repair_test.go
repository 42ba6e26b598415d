package repair_test

import (
	"context"
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/paulmach/orb"
	"github.com/roach88/geosafe/internal/geom"
	"github.com/roach88/geosafe/internal/ir"
	"github.com/roach88/geosafe/internal/provenance"
	"github.com/roach88/geosafe/internal/repair"
	"github.com/roach88/geosafe/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openSquare() ir.Geometry {
	return ir.NewPolygon(orb.Ring{{0, 0}, {0, 3}, {3, 3}, {3, 0}})
}

func TestValidateCleanDatasetUnchanged(t *testing.T) {
	r := repair.New(testutil.NewPlanarEngine())
	rec := provenance.NewRecorder("run", "")
	ctx := provenance.WithRecorder(context.Background(), rec)

	ds := testutil.DistrictsUTM()
	out, rep, err := r.Validate(ctx, ds)
	require.NoError(t, err)

	assert.Equal(t, ds.Geometries(), out.Geometries())
	assert.Empty(t, rep.Notes)
	assert.True(t, rep.Clean())
	assert.Equal(t, 2, rep.Valid)
	for _, rec := range out.Records {
		assert.Equal(t, ir.ValidityValid, rec.Validity)
		assert.Empty(t, rec.Note)
	}

	decisions := rec.Decisions()
	require.Len(t, decisions, 1)
	assert.Equal(t, ir.OpValidate, decisions[0].Operation)
	assert.Equal(t, ir.OutcomeAllowed, decisions[0].Outcome)
}

func TestValidateRepairsBowtie(t *testing.T) {
	r := repair.New(testutil.NewPlanarEngine())
	rec := provenance.NewRecorder("run", "")
	ctx := provenance.WithRecorder(context.Background(), rec)

	ds := ir.NewDataset("lots", "EPSG:32610", ir.Box(10, 10, 20, 20), testutil.Bowtie(2))
	out, rep, err := r.Validate(ctx, ds)
	require.NoError(t, err)

	require.Len(t, out.Records, 2)
	fixed := out.Records[1]
	assert.Equal(t, 1, fixed.Index)
	assert.Equal(t, ir.ValidityRepaired, fixed.Validity)
	assert.NotEmpty(t, fixed.Note, "repaired records must carry a note")
	assert.Contains(t, fixed.Note, "buffer_zero")
	assert.Contains(t, fixed.Note, "Self-intersection")

	note, ok := rep.Note(1)
	require.True(t, ok)
	assert.Equal(t, ir.RepairRepaired, note.Action)
	assert.Equal(t, "buffer_zero", note.Step)
	assert.Equal(t, []string{"buffer_zero", "orient_rings"}, note.Strategy)
	assert.Equal(t, 1, rep.Repaired)

	d := rec.Decisions()[0]
	assert.Equal(t, ir.OutcomeAutoResolved, d.Outcome)
	assert.Len(t, d.Repairs, 1)

	assert.Equal(t, testutil.Bowtie(2), ds.Records[1].Geometry, "input must not be modified")
}

func TestValidateExcludesUnrepairable(t *testing.T) {
	r := repair.New(testutil.NewPlanarEngine())
	ds := ir.NewDataset("lots", "EPSG:32610",
		ir.Box(0, 0, 1, 1),
		testutil.Sliver(),
		ir.Geometry{},
		ir.Empty(ir.GeometryPolygon),
	)

	out, rep, err := r.Validate(context.Background(), ds)
	require.NoError(t, err)

	require.Len(t, out.Records, 1)
	assert.Equal(t, 0, out.Records[0].Index)
	assert.Equal(t, 3, rep.Excluded)
	assert.Equal(t, 3, rep.Invalid)
	assert.Equal(t, 1, rep.Null)
	assert.Equal(t, 1, rep.Empty)
	assert.Equal(t, 1, rep.Issues["zero area"])
	require.Len(t, rep.Notes, 3)
	for _, n := range rep.Notes {
		assert.Equal(t, ir.RepairExcluded, n.Action)
		assert.Empty(t, n.Step)
		assert.NotEmpty(t, n.Strategy)
	}
}

func TestProblemReportsEngineReasonBeforeZeroArea(t *testing.T) {
	r := repair.New(testutil.NewPlanarEngine())

	// Equal lobes cancel, so the signed area is zero.
	bowtie := ir.NewPolygon(orb.Ring{{0, 0}, {2, 2}, {2, 0}, {0, 2}, {0, 0}})
	require.Zero(t, bowtie.Area())
	problem, err := r.Problem(bowtie)
	require.NoError(t, err)
	assert.Equal(t, "Self-intersection", problem)

	problem, err = r.Problem(testutil.Sliver())
	require.NoError(t, err)
	assert.Equal(t, "zero area", problem)

	problem, err = r.Problem(ir.NewLineString(orb.Point{1, 1}, orb.Point{1, 1}))
	require.NoError(t, err)
	assert.Equal(t, "zero length", problem)

	problem, err = r.Problem(ir.Box(0, 0, 1, 1))
	require.NoError(t, err)
	assert.Empty(t, problem)
}

func TestValidateStrategyOrder(t *testing.T) {
	tests := []struct {
		name     string
		strategy []repair.Step
		wantStep string
	}{
		{"default picks buffer_zero", nil, "buffer_zero"},
		{"orient first", []repair.Step{repair.StepOrientRings, repair.StepBufferZero}, "orient_rings"},
		{"make_valid only", []repair.Step{repair.StepMakeValid}, "make_valid"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := repair.New(testutil.NewPlanarEngine(), repair.WithStrategy(tt.strategy...))
			_, rep, err := r.Validate(context.Background(), ir.NewDataset("sq", "EPSG:32610", openSquare()))
			require.NoError(t, err)
			require.Len(t, rep.Notes, 1)
			assert.Equal(t, tt.wantStep, rep.Notes[0].Step)
		})
	}
}

func TestValidateFallsThroughFailedStep(t *testing.T) {
	engine := testutil.NewPlanarEngine()
	engine.Fail["BufferZero"] = errors.New("engine crashed")
	r := repair.New(engine)

	out, rep, err := r.Validate(context.Background(), ir.NewDataset("sq", "EPSG:32610", openSquare()))
	require.NoError(t, err)
	require.Len(t, out.Records, 1)
	assert.Equal(t, "orient_rings", rep.Notes[0].Step)
	shell := out.Records[0].Geometry.Orb().(orb.Polygon)[0]
	assert.Equal(t, orb.CCW, shell.Orientation())
}

func TestValidateStrict(t *testing.T) {
	r := repair.New(testutil.NewPlanarEngine(), repair.WithStrict(true))
	rec := provenance.NewRecorder("run", "")
	ctx := provenance.WithRecorder(context.Background(), rec)

	_, _, err := r.Validate(ctx, ir.NewDataset("lots", "EPSG:32610", ir.Box(0, 0, 1, 1), testutil.Bowtie(1)))
	require.Error(t, err)
	assert.True(t, repair.IsInvalidGeometry(err))

	var ige *repair.InvalidGeometryError
	require.True(t, errors.As(err, &ige))
	assert.Equal(t, []int{1}, ige.Indexes)
	assert.Equal(t, "Self-intersection", ige.Problems[1])
	assert.Equal(t, ir.OutcomeBlocked, rec.Decisions()[0].Outcome)
}

func TestValidateEngineCheckFailure(t *testing.T) {
	engine := testutil.NewPlanarEngine()
	engine.Fail["Check"] = errors.New("GEOS context lost")
	r := repair.New(engine)

	_, _, err := r.Validate(context.Background(), ir.NewDataset("lots", "EPSG:32610", ir.Box(0, 0, 1, 1)))
	require.Error(t, err)
	assert.True(t, geom.IsEngineError(err))
}

func TestInspect(t *testing.T) {
	r := repair.New(testutil.NewPlanarEngine())
	ds := ir.NewDataset("lots", "EPSG:32610", ir.Box(0, 0, 1, 1), testutil.Bowtie(1), ir.Geometry{}, ir.Box(2, 2, 3, 3))

	rep, err := r.Inspect(context.Background(), ds)
	require.NoError(t, err)
	assert.Equal(t, 4, rep.Total)
	assert.Equal(t, 2, rep.Valid)
	assert.Equal(t, 2, rep.Invalid)
	assert.Equal(t, 1, rep.Null)
	assert.InDelta(t, 50.0, rep.InvalidPercent(), 1e-9)
	assert.Empty(t, rep.Notes, "inspect never repairs")
	assert.Zero(t, repair.Report{}.InvalidPercent())
}

func TestValidateIdempotent(t *testing.T) {
	r := repair.New(testutil.NewPlanarEngine())

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("validating a validated dataset changes nothing", prop.ForAll(
		func(sizes []float64, bowties []bool) bool {
			var geoms []ir.Geometry
			for i, s := range sizes {
				if i < len(bowties) && bowties[i] {
					geoms = append(geoms, testutil.Bowtie(s))
				} else {
					geoms = append(geoms, ir.Box(0, 0, s, s))
				}
			}
			ds := ir.NewDataset("gen", "EPSG:32610", geoms...)

			once, _, err := r.Validate(context.Background(), ds)
			if err != nil {
				return false
			}
			twice, rep, err := r.Validate(context.Background(), once)
			if err != nil {
				return false
			}
			if len(rep.Notes) != 0 || len(twice.Records) != len(once.Records) {
				return false
			}
			return ir.MustDatasetFingerprint(once) == ir.MustDatasetFingerprint(twice)
		},
		gen.SliceOf(gen.Float64Range(0.5, 100)),
		gen.SliceOf(gen.Bool()),
	))

	properties.TestingRun(t)
}
