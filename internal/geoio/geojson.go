package geoio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/paulmach/orb/geojson"

	"github.com/roach88/geosafe/internal/crs"
	"github.com/roach88/geosafe/internal/ir"
	"github.com/roach88/geosafe/internal/provenance"
)

// DefaultGeoJSONCRS is assumed for GeoJSON files without a crs member,
// following RFC 7946.
const DefaultGeoJSONCRS = "EPSG:4326"

// SidecarSuffix is appended to a data file name to form its provenance
// sidecar.
const SidecarSuffix = ".provenance.json"

// GeoJSON reads and writes RFC 7946 FeatureCollections through
// orb/geojson. The legacy named "crs" member is honoured on read and written
// on save so that projected data round-trips.
type GeoJSON struct{}

// Name implements Driver.
func (GeoJSON) Name() string { return "geojson" }

// Extensions implements Driver.
func (GeoJSON) Extensions() []string { return []string{".geojson", ".json"} }

// Load implements Driver.
func (GeoJSON) Load(_ context.Context, path string) (ir.Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ir.Dataset{}, fmt.Errorf("load %s: %w", path, err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return ir.Dataset{}, fmt.Errorf("load %s: %w", path, err)
	}

	id := DefaultGeoJSONCRS
	if name := namedCRS(fc.ExtraMembers); name != "" {
		id, err = crsFromURN(name)
		if err != nil {
			return ir.Dataset{}, fmt.Errorf("load %s: %w", path, err)
		}
	}

	ds := ir.Dataset{
		Name:    layerName(path),
		CRS:     id,
		Source:  path,
		Records: make([]ir.Record, len(fc.Features)),
	}
	for i, f := range fc.Features {
		g := ir.FromOrb(f.Geometry)
		if !g.IsNull() && g.Type().Dimension() < 0 {
			return ir.Dataset{}, fmt.Errorf("load %s: feature %d: unsupported geometry type %q", path, i, g.Type())
		}
		ds.Records[i] = ir.Record{Index: i, Geometry: g, Properties: f.Properties}
	}
	return ds, nil
}

// namedCRS returns properties.name of a {"type": "name"} crs member.
func namedCRS(members geojson.Properties) string {
	member, ok := members["crs"].(map[string]any)
	if !ok || member["type"] != "name" {
		return ""
	}
	props, _ := member["properties"].(map[string]any)
	name, _ := props["name"].(string)
	return name
}

// Save implements Driver. The file is written atomically. With prov set,
// a sidecar named path+SidecarSuffix is written too; without it any stale
// sidecar is removed.
func (GeoJSON) Save(_ context.Context, ds ir.Dataset, path string, prov *provenance.Log) error {
	id, err := crs.Normalize(ds.CRS)
	if err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	fc := geojson.NewFeatureCollection()
	fc.ExtraMembers = geojson.Properties{
		"crs": map[string]any{
			"type":       "name",
			"properties": map[string]any{"name": id},
		},
	}
	if ds.Name != "" {
		fc.ExtraMembers["name"] = ds.Name
	}
	for _, r := range ds.Records {
		if !r.Geometry.IsNull() && r.Geometry.Type().Dimension() < 0 {
			return fmt.Errorf("save %s: record %d: unsupported geometry type %q", path, r.Index, r.Geometry.Type())
		}
		f := geojson.NewFeature(r.Geometry.Orb())
		if r.Properties != nil {
			f.Properties = geojson.Properties(r.Properties)
		}
		fc.Append(f)
	}

	data, err := json.MarshalIndent(fc, "", "  ")
	if err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	if err := writeFileAtomic(path, append(data, '\n')); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}

	if prov == nil {
		if err := os.Remove(path + SidecarSuffix); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("save %s: remove stale sidecar: %w", path, err)
		}
		return nil
	}
	if err := writeSidecar(path, prov); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

// Attach implements Driver by writing the sidecar.
func (GeoJSON) Attach(_ context.Context, path string, prov *provenance.Log) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("attach %s: %w", path, err)
	}
	if err := writeSidecar(path, prov); err != nil {
		return fmt.Errorf("attach %s: %w", path, err)
	}
	return nil
}

func writeSidecar(path string, prov *provenance.Log) error {
	doc, err := json.MarshalIndent(SavedProvenance{
		DataFile:   filepath.Base(path),
		SavedAt:    now(),
		Provenance: prov,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("provenance: %w", err)
	}
	if err := writeFileAtomic(path+SidecarSuffix, append(doc, '\n')); err != nil {
		return fmt.Errorf("provenance: %w", err)
	}
	return nil
}

// Provenance implements Driver by reading the sidecar.
func (GeoJSON) Provenance(_ context.Context, path string) (*SavedProvenance, error) {
	data, err := os.ReadFile(path + SidecarSuffix)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read provenance sidecar: %w", err)
	}
	var raw struct {
		DataFile   string          `json:"data_file"`
		SavedAt    json.RawMessage `json:"saved_at"`
		Provenance json.RawMessage `json:"provenance"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("read provenance sidecar: %w", err)
	}
	out := &SavedProvenance{DataFile: raw.DataFile}
	if err := json.Unmarshal(raw.SavedAt, &out.SavedAt); err != nil {
		return nil, fmt.Errorf("read provenance sidecar: saved_at: %w", err)
	}
	if out.Provenance, err = provenance.Decode(raw.Provenance); err != nil {
		return nil, fmt.Errorf("read provenance sidecar: %w", err)
	}
	return out, nil
}

// crsFromURN accepts "EPSG:32610", "urn:ogc:def:crs:EPSG::32610" and
// "urn:ogc:def:crs:OGC:1.3:CRS84".
func crsFromURN(name string) (string, error) {
	rest, ok := strings.CutPrefix(name, "urn:ogc:def:crs:")
	if !ok {
		return crs.Normalize(name)
	}
	// authority:version:code, version may be empty
	parts := strings.SplitN(rest, ":", 3)
	if len(parts) != 3 {
		return "", fmt.Errorf("malformed CRS URN %q", name)
	}
	return crs.Normalize(parts[0] + ":" + parts[2])
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
