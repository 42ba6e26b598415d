package safeops_test

import (
	"context"
	"errors"
	"testing"

	"github.com/roach88/geosafe/internal/crs"
	"github.com/roach88/geosafe/internal/geom"
	"github.com/roach88/geosafe/internal/guard"
	"github.com/roach88/geosafe/internal/ir"
	"github.com/roach88/geosafe/internal/provenance"
	"github.com/roach88/geosafe/internal/repair"
	"github.com/roach88/geosafe/internal/safeops"
	"github.com/roach88/geosafe/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	ops    *safeops.Ops
	engine *testutil.PlanarEngine
	proj   *testutil.AffineProjector
	rec    *provenance.Recorder
	ctx    context.Context
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	proj := testutil.NewAffineProjector()
	engine := testutil.NewPlanarEngine()
	g := guard.New(crs.NewRegistry(proj), proj)
	rec := provenance.NewRecorder("run-test", "")
	return &harness{
		ops:    safeops.New(g, repair.New(engine), engine),
		engine: engine,
		proj:   proj,
		rec:    rec,
		ctx:    provenance.WithRecorder(context.Background(), rec),
	}
}

func TestSpatialJoinRefusesMixedCRS(t *testing.T) {
	h := newHarness(t)

	res, err := h.ops.SpatialJoin(h.ctx, testutil.PointsWGS84(), testutil.DistrictsUTM(), safeops.JoinOptions{})
	require.Error(t, err)
	assert.True(t, guard.IsCRSMismatch(err))
	assert.Contains(t, err.Error(), "EPSG:4326")
	assert.Contains(t, err.Error(), "EPSG:32610")

	assert.Zero(t, h.engine.Calls(), "no geometric work after a refusal")
	assert.Zero(t, h.proj.Calls())
	require.Len(t, res.Decisions, 1)
	assert.Equal(t, ir.OutcomeBlocked, res.Decisions[0].Outcome)
	assert.Equal(t, 1, h.rec.Len())
}

func TestSpatialJoinWithTargetCRS(t *testing.T) {
	h := newHarness(t)

	res, err := h.ops.SpatialJoin(h.ctx, testutil.PointsWGS84(), testutil.DistrictsUTM(), safeops.JoinOptions{
		Predicate: geom.Within,
		TargetCRS: "EPSG:32610",
	})
	require.NoError(t, err)

	d := res.Decisions[0]
	assert.Equal(t, ir.OpJoin, d.Operation)
	assert.Equal(t, ir.OutcomeAutoResolved, d.Outcome)
	require.Len(t, d.Reprojections, 1)
	assert.Equal(t, ir.Reprojection{Dataset: "stops", From: "EPSG:4326", To: "EPSG:32610"}, d.Reprojections[0])

	assert.Equal(t, "EPSG:32610", res.Dataset.CRS)
	require.Len(t, res.Dataset.Records, 1)
	props := res.Dataset.Records[0].Properties
	assert.Equal(t, "Embarcadero", props["name_left"])
	assert.Equal(t, "Downtown", props["name_right"])
	assert.Equal(t, 1, props["id_left"])
	assert.Equal(t, 10, props["id_right"])
	assert.Equal(t, ir.GeometryPoint, res.Dataset.Records[0].Geometry.Type())

	// Guard, two input validations, one output validation.
	assert.Len(t, res.Decisions, 4)
	assert.Equal(t, res.Decisions, h.rec.Decisions())
}

func TestSpatialJoinLeftKeepsUnmatched(t *testing.T) {
	h := newHarness(t)

	res, err := h.ops.SpatialJoin(h.ctx, testutil.PointsWGS84(), testutil.DistrictsUTM(), safeops.JoinOptions{
		How:       safeops.JoinLeft,
		TargetCRS: "EPSG:32610",
	})
	require.NoError(t, err)
	require.Len(t, res.Dataset.Records, 2)

	unmatched := res.Dataset.Records[1]
	assert.Equal(t, 1, unmatched.Index)
	assert.Equal(t, map[string]any{"id_left": 2, "name_left": "Oakland"}, unmatched.Properties)
}

func TestSpatialJoinDWithinIsMetric(t *testing.T) {
	h := newHarness(t)
	opts := safeops.JoinOptions{Predicate: geom.DWithin, Distance: 0.05}

	_, err := h.ops.SpatialJoin(h.ctx, testutil.PointsWGS84(), testutil.ParcelsWGS84(), opts)
	require.Error(t, err)
	assert.True(t, guard.IsUnsafeUnits(err))
	assert.Zero(t, h.engine.Calls())

	opts.AllowGeographic = true
	res, err := h.ops.SpatialJoin(h.ctx, testutil.PointsWGS84(), testutil.ParcelsWGS84(), opts)
	require.NoError(t, err)
	assert.Contains(t, res.Decisions[0].Reason, "override")
	assert.NotEmpty(t, res.Dataset.Records)
}

func TestSpatialJoinRejectsBadParameters(t *testing.T) {
	h := newHarness(t)
	a, b := testutil.DistrictsUTM(), testutil.DistrictsUTM()

	_, err := h.ops.SpatialJoin(h.ctx, a, b, safeops.JoinOptions{Predicate: "touches"})
	assert.Error(t, err)
	_, err = h.ops.SpatialJoin(h.ctx, a, b, safeops.JoinOptions{How: "outer"})
	assert.Error(t, err)
	_, err = h.ops.SpatialJoin(h.ctx, a, b, safeops.JoinOptions{Predicate: geom.DWithin, Distance: -1})
	assert.Error(t, err)
	assert.Zero(t, h.rec.Len(), "parameter errors precede the guard")
}

func TestBufferRefusesDegrees(t *testing.T) {
	h := newHarness(t)

	res, err := h.ops.Buffer(h.ctx, testutil.PointsWGS84(), safeops.BufferOptions{Distance: 100})
	require.Error(t, err)
	assert.True(t, guard.IsUnsafeUnits(err))
	assert.Zero(t, h.engine.Calls())
	assert.Equal(t, ir.OutcomeBlocked, res.Decisions[0].Outcome)
}

func TestBufferAfterReprojection(t *testing.T) {
	h := newHarness(t)

	moved, err := h.ops.Reproject(h.ctx, testutil.PointsWGS84(), "EPSG:32610")
	require.NoError(t, err)
	assert.Equal(t, ir.OutcomeAutoResolved, moved.Decisions[0].Outcome)

	res, err := h.ops.Buffer(h.ctx, moved.Dataset, safeops.BufferOptions{Distance: 100})
	require.NoError(t, err)
	require.Len(t, res.Dataset.Records, 2)

	for i, rec := range res.Dataset.Records {
		env, ok := rec.Geometry.Bounds()
		require.True(t, ok)
		c := moved.Dataset.Records[i].Geometry.Coords()[0]
		assert.InDelta(t, c.X()-100, env.Left(), 1e-6)
		assert.InDelta(t, c.X()+100, env.Right(), 1e-6)
		assert.InDelta(t, c.Y()-100, env.Bottom(), 1e-6)
		assert.InDelta(t, c.Y()+100, env.Top(), 1e-6)
		assert.Equal(t, moved.Dataset.Records[i].Properties, rec.Properties)
	}
}

func TestBufferExtentScalesWithDistance(t *testing.T) {
	h := newHarness(t)
	ds := testutil.DistrictsUTM()
	base, _ := ds.Records[0].Geometry.Bounds()

	for _, d := range []float64{10, 100, 1000} {
		res, err := h.ops.Buffer(h.ctx, ds, safeops.BufferOptions{Distance: d, Segments: 4})
		require.NoError(t, err)
		env, _ := res.Dataset.Records[0].Geometry.Bounds()
		assert.InDelta(t, base.Right()-base.Left()+2*d, env.Right()-env.Left(), 1e-6)
		assert.InDelta(t, base.Top()-base.Bottom()+2*d, env.Top()-env.Bottom(), 1e-6)
	}
}

func TestBufferRepairsInputs(t *testing.T) {
	h := newHarness(t)
	ds := ir.NewDataset("lots", "EPSG:32610", ir.Box(0, 0, 10, 10), testutil.Bowtie(10), testutil.Sliver())

	res, err := h.ops.Buffer(h.ctx, ds, safeops.BufferOptions{Distance: 1})
	require.NoError(t, err)

	require.Len(t, res.Decisions, 3)
	assert.Equal(t, ir.OutcomeAutoResolved, res.Decisions[1].Outcome)
	assert.Equal(t, 1, res.Decisions[1].Excluded)
	assert.Equal(t, ir.OutcomeAllowed, res.Decisions[2].Outcome)
	assert.Equal(t, 1, res.Excluded())

	require.Len(t, res.Dataset.Records, 2)
	assert.Equal(t, []int{0, 1}, []int{res.Dataset.Records[0].Index, res.Dataset.Records[1].Index})
}

func TestBufferEngineFailure(t *testing.T) {
	h := newHarness(t)
	h.engine.Fail["Buffer"] = errors.New("topology exception")

	_, err := h.ops.Buffer(h.ctx, testutil.DistrictsUTM(), safeops.BufferOptions{Distance: 5})
	require.Error(t, err)

	var ee *geom.EngineError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, "buffer", ee.Operation)
	assert.Equal(t, "districts", ee.Dataset)
	assert.Equal(t, 0, ee.Index)
	assert.Equal(t, 1, h.engine.CallsTo("Buffer"), "engine failures are not retried")
}

func TestOverlayIntersection(t *testing.T) {
	h := newHarness(t)
	a := ir.NewDataset("a", "EPSG:32610", ir.Box(0, 0, 10, 10), ir.Box(100, 100, 110, 110))
	a.Records[0].Properties = map[string]any{"name": "a0", "zone": "r1"}
	a.Records[1].Properties = map[string]any{"name": "a1", "zone": "r2"}
	b := ir.NewDataset("b", "EPSG:32610", ir.Box(5, 5, 15, 15))
	b.Records[0].Properties = map[string]any{"name": "b0"}

	res, err := h.ops.Overlay(h.ctx, a, b, safeops.OverlayOptions{})
	require.NoError(t, err)
	require.Len(t, res.Dataset.Records, 1)

	rec := res.Dataset.Records[0]
	assert.InDelta(t, 25.0, rec.Geometry.Area(), 1e-9)
	assert.Equal(t, map[string]any{"name_1": "a0", "name_2": "b0", "zone": "r1"}, rec.Properties)
}

func TestOverlayUnsupportedByEngine(t *testing.T) {
	h := newHarness(t)
	a := ir.NewDataset("a", "EPSG:32610", ir.Box(0, 0, 10, 10))
	b := ir.NewDataset("b", "EPSG:32610", ir.Box(5, 5, 15, 15))

	_, err := h.ops.Overlay(h.ctx, a, b, safeops.OverlayOptions{How: geom.OverlayDifference})
	require.Error(t, err)
	assert.True(t, geom.IsEngineError(err))
	assert.True(t, errors.Is(err, geom.ErrUnsupported))

	_, err = h.ops.Overlay(h.ctx, a, b, safeops.OverlayOptions{How: "merge"})
	assert.Error(t, err)
}

func TestOverlayMixedCRSNeedsTarget(t *testing.T) {
	h := newHarness(t)

	_, err := h.ops.Overlay(h.ctx, testutil.ParcelsWGS84(), testutil.DistrictsUTM(), safeops.OverlayOptions{})
	assert.True(t, guard.IsCRSMismatch(err))
	assert.Zero(t, h.engine.Calls())
}

func TestClip(t *testing.T) {
	h := newHarness(t)
	ds := testutil.DistrictsUTM()
	b, _ := ds.Records[0].Geometry.Bounds()
	cx := b.Center().X()
	mask := ir.NewDataset("half", "EPSG:32610", ir.Box(cx, b.Bottom()-1000, cx+2000, b.Top()+1000))

	res, err := h.ops.Clip(h.ctx, ds, mask, safeops.ClipOptions{})
	require.NoError(t, err)
	require.Len(t, res.Dataset.Records, 1)

	rec := res.Dataset.Records[0]
	assert.Equal(t, 0, rec.Index)
	assert.Equal(t, "Downtown", rec.Properties["name"])
	assert.InDelta(t, (b.Right()-b.Left())*(b.Top()-b.Bottom())/2, rec.Geometry.Area(), 1e-3)
	assert.Equal(t, "districts", res.Dataset.Name)
}

func TestClipMultiMaskNeedsUnion(t *testing.T) {
	h := newHarness(t)
	mask := ir.NewDataset("mask", "EPSG:32610", ir.Box(0, 0, 1, 1), ir.Box(2, 2, 3, 3))

	_, err := h.ops.Clip(h.ctx, testutil.DistrictsUTM(), mask, safeops.ClipOptions{})
	require.Error(t, err)
	assert.True(t, geom.IsEngineError(err))
}

func TestClipMixedCRSNeedsTarget(t *testing.T) {
	h := newHarness(t)

	_, err := h.ops.Clip(h.ctx, testutil.ParcelsWGS84(), testutil.DistrictsUTM(), safeops.ClipOptions{})
	assert.True(t, guard.IsCRSMismatch(err))
	assert.Zero(t, h.engine.Calls())
}

func TestReprojectRoundTrip(t *testing.T) {
	h := newHarness(t)
	src := testutil.ParcelsWGS84()

	there, err := h.ops.Reproject(h.ctx, src, "EPSG:32610")
	require.NoError(t, err)
	back, err := h.ops.Reproject(h.ctx, there.Dataset, "EPSG:4326")
	require.NoError(t, err)

	assert.Equal(t, "EPSG:4326", back.Dataset.CRS)
	for i, rec := range back.Dataset.Records {
		want := src.Records[i].Geometry.Coords()
		got := rec.Geometry.Coords()
		require.Len(t, got, len(want))
		for j := range want {
			assert.InDelta(t, want[j].X(), got[j].X(), 1e-9)
			assert.InDelta(t, want[j].Y(), got[j].Y(), 1e-9)
		}
	}

	same, err := h.ops.Reproject(h.ctx, src, "epsg:4326")
	require.NoError(t, err)
	assert.Equal(t, ir.OutcomeAllowed, same.Decisions[0].Outcome)

	_, err = h.ops.Reproject(h.ctx, src, "")
	assert.Error(t, err)
}

func TestReprojectProjectionFailure(t *testing.T) {
	h := newHarness(t)
	h.proj.Fail = errors.New("grid file missing")

	_, err := h.ops.Reproject(h.ctx, testutil.PointsWGS84(), "EPSG:32610")
	require.Error(t, err)
	assert.True(t, crs.IsProjectionError(err))
	assert.Equal(t, ir.OutcomeBlocked, h.rec.Decisions()[0].Outcome)
}

func TestValidate(t *testing.T) {
	h := newHarness(t)
	ds := ir.NewDataset("lots", "EPSG:32610", testutil.Bowtie(4))

	res, err := h.ops.Validate(h.ctx, ds)
	require.NoError(t, err)
	require.Len(t, res.Decisions, 1)
	assert.Equal(t, ir.OpValidate, res.Decisions[0].Operation)
	assert.Equal(t, ir.ValidityRepaired, res.Dataset.Records[0].Validity)
}
