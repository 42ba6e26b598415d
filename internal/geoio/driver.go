// Package geoio loads and saves datasets.
//
// Formats are chosen by file extension. GeoJSON files carry provenance in
// a sidecar document next to the data; SQLite feature stores carry it in a
// table inside the same file.
package geoio

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/roach88/geosafe/internal/ir"
	"github.com/roach88/geosafe/internal/provenance"
)

// ErrUnsupportedFormat is returned for paths no driver handles.
var ErrUnsupportedFormat = errors.New("unsupported format")

// Driver reads and writes one file format.
type Driver interface {
	Name() string
	Extensions() []string

	// Load reads the dataset at path. Missing files return an error
	// matching fs.ErrNotExist.
	Load(ctx context.Context, path string) (ir.Dataset, error)

	// Save writes ds to path, replacing any existing data. A non-nil prov
	// is stored alongside the data.
	Save(ctx context.Context, ds ir.Dataset, path string, prov *provenance.Log) error

	// Attach stores prov with data already saved at path, replacing any
	// provenance stored there before.
	Attach(ctx context.Context, path string, prov *provenance.Log) error

	// Provenance returns the provenance stored with the data at path, or
	// nil when there is none.
	Provenance(ctx context.Context, path string) (*SavedProvenance, error)
}

// SavedProvenance is a provenance log attached to a saved file.
type SavedProvenance struct {
	DataFile   string          `json:"data_file"`
	SavedAt    time.Time       `json:"saved_at"`
	Provenance *provenance.Log `json:"provenance"`
}

// Drivers returns the built-in drivers.
func Drivers() []Driver {
	return []Driver{GeoJSON{}, SQLite{}}
}

// DriverFor returns the driver for path's extension.
func DriverFor(path string) (Driver, error) {
	ext := strings.ToLower(filepath.Ext(path))
	for _, d := range Drivers() {
		for _, e := range d.Extensions() {
			if e == ext {
				return d, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %q (supported: %s)", ErrUnsupportedFormat, ext, strings.Join(supported(), ", "))
}

// Load reads a dataset with the driver for its extension.
func Load(ctx context.Context, path string) (ir.Dataset, error) {
	d, err := DriverFor(path)
	if err != nil {
		return ir.Dataset{}, fmt.Errorf("load %s: %w", path, err)
	}
	return d.Load(ctx, path)
}

// Save writes a dataset with the driver for path's extension.
func Save(ctx context.Context, ds ir.Dataset, path string, prov *provenance.Log) error {
	d, err := DriverFor(path)
	if err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return d.Save(ctx, ds, path, prov)
}

// Attach stores a provenance log with an already saved file.
func Attach(ctx context.Context, path string, prov *provenance.Log) error {
	d, err := DriverFor(path)
	if err != nil {
		return fmt.Errorf("attach %s: %w", path, err)
	}
	return d.Attach(ctx, path, prov)
}

// Provenance reads the provenance attached to a saved file.
func Provenance(ctx context.Context, path string) (*SavedProvenance, error) {
	d, err := DriverFor(path)
	if err != nil {
		return nil, fmt.Errorf("provenance %s: %w", path, err)
	}
	return d.Provenance(ctx, path)
}

func supported() []string {
	var out []string
	for _, d := range Drivers() {
		out = append(out, d.Extensions()...)
	}
	return out
}

// layerName derives a dataset name from a file path.
func layerName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// now is replaced in tests.
var now = func() time.Time { return time.Now().UTC() }
