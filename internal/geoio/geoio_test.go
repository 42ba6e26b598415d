package geoio

import (
	"context"
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/geosafe/internal/ir"
	"github.com/roach88/geosafe/internal/provenance"
	"github.com/roach88/geosafe/internal/testutil"
)

func fixedNow(t *testing.T) time.Time {
	t.Helper()
	at := testutil.Epoch.Add(time.Hour)
	prev := now
	now = func() time.Time { return at }
	t.Cleanup(func() { now = prev })
	return at
}

func testLog(t *testing.T) *provenance.Log {
	t.Helper()
	rec := provenance.NewRecorder("run-geoio", "districts",
		provenance.WithSequencer(testutil.NewDeterministicClock()),
		provenance.WithWallClock(testutil.NewStepClock(testutil.Epoch, time.Second)),
	)
	require.NoError(t, rec.RecordDecision(ir.Decision{
		Operation:    ir.OpBuffer,
		Node:         "buffer",
		Inputs:       []ir.CRSBinding{{Dataset: "districts", CRS: "EPSG:32610"}},
		EffectiveCRS: "EPSG:32610",
		Outcome:      ir.OutcomeAllowed,
		Reason:       "all inputs share EPSG:32610",
	}))
	return rec.Freeze(provenance.RunSucceeded)
}

func digest(t *testing.T, l *provenance.Log) string {
	t.Helper()
	d, err := l.Digest()
	require.NoError(t, err)
	return d
}

func TestDriverFor(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"a.geojson", "geojson"},
		{"dir/b.JSON", "geojson"},
		{"c.sqlite", "sqlite"},
		{"d.db", "sqlite"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			d, err := DriverFor(tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Name())
		})
	}

	_, err := DriverFor("roads.shp")
	require.ErrorIs(t, err, ErrUnsupportedFormat)
	assert.Contains(t, err.Error(), ".shp")

	_, err = Load(context.Background(), "roads.shp")
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestGeoJSONLoadDefaultsToWGS84(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stops.geojson")
	require.NoError(t, os.WriteFile(path, []byte(`{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "geometry": {"type": "Point", "coordinates": [-122.4, 37.79]}, "properties": {"name": "Embarcadero"}},
    {"type": "Feature", "geometry": null, "properties": null}
  ]
}`), 0o644))

	ds, err := Load(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, "stops", ds.Name)
	assert.Equal(t, DefaultGeoJSONCRS, ds.CRS)
	assert.Equal(t, path, ds.Source)
	require.Len(t, ds.Records, 2)
	assert.Equal(t, 0, ds.Records[0].Index)
	assert.Equal(t, ir.NewPoint(-122.4, 37.79), ds.Records[0].Geometry)
	assert.Equal(t, "Embarcadero", ds.Records[0].Properties["name"])
	assert.Equal(t, 1, ds.Records[1].Index)
	assert.True(t, ds.Records[1].Geometry.IsNull())
}

func TestGeoJSONLoadLegacyCRSMember(t *testing.T) {
	path := filepath.Join(t.TempDir(), "districts.geojson")
	require.NoError(t, os.WriteFile(path, []byte(`{
  "type": "FeatureCollection",
  "crs": {"type": "name", "properties": {"name": "urn:ogc:def:crs:EPSG::32610"}},
  "features": []
}`), 0o644))

	ds, err := Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "EPSG:32610", ds.CRS)
	assert.Empty(t, ds.Records)
}

func TestGeoJSONLoadErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(context.Background(), filepath.Join(dir, "missing.geojson"))
	require.ErrorIs(t, err, fs.ErrNotExist)

	notFC := filepath.Join(dir, "feature.geojson")
	require.NoError(t, os.WriteFile(notFC, []byte(`{"type": "Feature"}`), 0o644))
	_, err = Load(context.Background(), notFC)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a feature collection")

	badCRS := filepath.Join(dir, "bad.geojson")
	require.NoError(t, os.WriteFile(badCRS, []byte(`{"type": "FeatureCollection", "crs": {"type": "name", "properties": {"name": "urn:ogc:def:crs:EPSG"}}, "features": []}`), 0o644))
	_, err = Load(context.Background(), badCRS)
	require.Error(t, err)
}

func TestCRSFromURN(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"EPSG:4326", "EPSG:4326"},
		{"epsg:32610", "EPSG:32610"},
		{"urn:ogc:def:crs:EPSG::32610", "EPSG:32610"},
		{"urn:ogc:def:crs:OGC:1.3:CRS84", "OGC:CRS84"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := crsFromURN(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGeoJSONRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "out", "districts.geojson")
	src := testutil.DistrictsUTM()

	require.NoError(t, Save(ctx, src, path, nil))
	got, err := Load(ctx, path)
	require.NoError(t, err)

	assert.Equal(t, "EPSG:32610", got.CRS)
	assert.Equal(t, ir.MustDatasetFingerprint(src), ir.MustDatasetFingerprint(got))

	_, err = os.Stat(path + SidecarSuffix)
	require.ErrorIs(t, err, fs.ErrNotExist)
	prov, err := Provenance(ctx, path)
	require.NoError(t, err)
	assert.Nil(t, prov)
}

func TestGeoJSONSidecar(t *testing.T) {
	ctx := context.Background()
	at := fixedNow(t)
	path := filepath.Join(t.TempDir(), "districts.geojson")
	log := testLog(t)

	require.NoError(t, Save(ctx, testutil.DistrictsUTM(), path, log))

	data, err := os.ReadFile(path + SidecarSuffix)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "districts.geojson", doc["data_file"])
	assert.Contains(t, doc, "saved_at")
	assert.Contains(t, doc, "provenance")

	prov, err := Provenance(ctx, path)
	require.NoError(t, err)
	require.NotNil(t, prov)
	assert.Equal(t, "districts.geojson", prov.DataFile)
	assert.True(t, at.Equal(prov.SavedAt))
	assert.Equal(t, log.RunID, prov.Provenance.RunID)
	assert.Equal(t, digest(t, log), digest(t, prov.Provenance))

	// Saving again without provenance drops the stale sidecar.
	require.NoError(t, Save(ctx, testutil.DistrictsUTM(), path, nil))
	_, err = os.Stat(path + SidecarSuffix)
	require.ErrorIs(t, err, fs.ErrNotExist)
}

func TestGeoJSONSaveRejectsBadCRS(t *testing.T) {
	ds := testutil.DistrictsUTM()
	ds.CRS = ""
	err := Save(context.Background(), ds, filepath.Join(t.TempDir(), "x.geojson"), nil)
	require.Error(t, err)
}

func TestAttach(t *testing.T) {
	ctx := context.Background()
	fixedNow(t)
	log := testLog(t)

	for _, name := range []string{"districts.geojson", "districts.sqlite"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)

			err := Attach(ctx, path, log)
			require.ErrorIs(t, err, fs.ErrNotExist)

			require.NoError(t, Save(ctx, testutil.DistrictsUTM(), path, nil))
			require.NoError(t, Attach(ctx, path, log))
			require.NoError(t, Attach(ctx, path, log), "attaching twice replaces")

			prov, err := Provenance(ctx, path)
			require.NoError(t, err)
			require.NotNil(t, prov)
			assert.Equal(t, name, prov.DataFile)
			assert.Equal(t, digest(t, log), digest(t, prov.Provenance))
		})
	}
}
