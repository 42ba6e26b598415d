package crs

import (
	"context"
	"errors"
	"testing"

	"github.com/paulmach/orb"
	"github.com/roach88/geosafe/internal/ir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// shiftProjector adds 1000 to X for every reprojection.
type shiftProjector struct {
	Catalog
	calls int
	fail  error
}

func (p *shiftProjector) Name() string { return "shift" }

func (p *shiftProjector) Reproject(geoms []ir.Geometry, from, to string) ([]ir.Geometry, error) {
	p.calls++
	if p.fail != nil {
		return nil, p.fail
	}
	out := make([]ir.Geometry, len(geoms))
	for i, g := range geoms {
		moved, err := g.MapCoords(func(c orb.Point) (orb.Point, error) {
			return orb.Point{c.X() + 1000, c.Y()}, nil
		})
		if err != nil {
			return nil, err
		}
		out[i] = moved
	}
	return out, nil
}

func TestReprojectDataset(t *testing.T) {
	ds := ir.NewDataset("pts", "EPSG:4326", ir.NewPoint(1, 2), ir.Geometry{}, ir.Empty(ir.GeometryPoint))
	p := &shiftProjector{}

	out, err := ReprojectDataset(context.Background(), p, ds, "epsg:32610")
	require.NoError(t, err)

	assert.Equal(t, "EPSG:32610", out.CRS)
	assert.Equal(t, ir.NewPoint(1001, 2).Coords(), out.Records[0].Geometry.Coords())
	assert.True(t, out.Records[1].Geometry.IsNull())
	assert.True(t, out.Records[2].Geometry.IsEmpty())

	assert.Equal(t, "EPSG:4326", ds.CRS, "input must not be modified")
	assert.Equal(t, ir.NewPoint(1, 2).Coords(), ds.Records[0].Geometry.Coords())
}

func TestReprojectDatasetSameCRS(t *testing.T) {
	ds := ir.NewDataset("pts", "EPSG:32610", ir.NewPoint(1, 2))
	p := &shiftProjector{}

	out, err := ReprojectDataset(context.Background(), p, ds, "EPSG:32610")
	require.NoError(t, err)
	assert.Zero(t, p.calls)
	assert.Equal(t, ds.Records[0].Geometry.Coords(), out.Records[0].Geometry.Coords())
}

func TestReprojectDatasetEngineFailure(t *testing.T) {
	ds := ir.NewDataset("pts", "EPSG:4326", ir.NewPoint(1, 2))
	boom := errors.New("no transformation path")
	p := &shiftProjector{fail: boom}

	_, err := ReprojectDataset(context.Background(), p, ds, "EPSG:32610")
	require.Error(t, err)
	assert.True(t, IsProjectionError(err))
	assert.ErrorIs(t, err, boom)

	var pe *ProjectionError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "pts", pe.Dataset)
	assert.Equal(t, "EPSG:4326", pe.From)
	assert.Equal(t, "EPSG:32610", pe.To)
	assert.Contains(t, pe.Error(), "PROJECTION_FAILED")
}

func TestReprojectDatasetCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := &shiftProjector{}

	_, err := ReprojectDataset(ctx, p, ir.NewDataset("pts", "EPSG:4326", ir.NewPoint(1, 2)), "EPSG:32610")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, p.calls)
}
