package geoio

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/roach88/geosafe/internal/crs"
	"github.com/roach88/geosafe/internal/ir"
	"github.com/roach88/geosafe/internal/provenance"
	"github.com/roach88/geosafe/internal/store"
)

//go:embed features.sql
var featuresSQL string

const savedAtLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLite stores datasets as layers in a SQLite file. The layer name is the
// file's base name without extension, so one file holds one dataset unless
// it is written to through OpenFeatureStore directly.
type SQLite struct{}

// Name implements Driver.
func (SQLite) Name() string { return "sqlite" }

// Extensions implements Driver.
func (SQLite) Extensions() []string { return []string{".sqlite", ".db"} }

// Load implements Driver.
func (SQLite) Load(ctx context.Context, path string) (ir.Dataset, error) {
	fsx, err := openExisting(path)
	if err != nil {
		return ir.Dataset{}, fmt.Errorf("load %s: %w", path, err)
	}
	defer fsx.Close()

	ds, err := fsx.ReadLayer(ctx, layerName(path))
	if err != nil {
		return ir.Dataset{}, fmt.Errorf("load %s: %w", path, err)
	}
	ds.Source = path
	return ds, nil
}

// Save implements Driver.
func (SQLite) Save(ctx context.Context, ds ir.Dataset, path string, prov *provenance.Log) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	fsx, err := OpenFeatureStore(path)
	if err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	defer fsx.Close()

	if err := fsx.WriteLayer(ctx, layerName(path), ds, prov); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

// Attach implements Driver.
func (SQLite) Attach(ctx context.Context, path string, prov *provenance.Log) error {
	fsx, err := openExisting(path)
	if err != nil {
		return fmt.Errorf("attach %s: %w", path, err)
	}
	defer fsx.Close()
	if err := fsx.AttachProvenance(ctx, layerName(path), prov); err != nil {
		return fmt.Errorf("attach %s: %w", path, err)
	}
	return nil
}

// Provenance implements Driver.
func (SQLite) Provenance(ctx context.Context, path string) (*SavedProvenance, error) {
	fsx, err := openExisting(path)
	if err != nil {
		return nil, fmt.Errorf("read provenance %s: %w", path, err)
	}
	defer fsx.Close()
	return fsx.LayerProvenance(ctx, layerName(path))
}

// ErrLayerNotFound is returned when a feature store has no layer of the
// requested name.
var ErrLayerNotFound = errors.New("layer not found")

// FeatureStore is an open SQLite feature file.
type FeatureStore struct {
	db   *sql.DB
	path string
}

// OpenFeatureStore opens or creates a feature store at path.
func OpenFeatureStore(path string) (*FeatureStore, error) {
	db, err := store.OpenDB(path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(featuresSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply feature schema: %w", err)
	}
	return &FeatureStore{db: db, path: path}, nil
}

func openExisting(path string) (*FeatureStore, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	return OpenFeatureStore(path)
}

// Close closes the database connection.
func (f *FeatureStore) Close() error {
	if f.db == nil {
		return nil
	}
	return f.db.Close()
}

// Layers lists layer names in order.
func (f *FeatureStore) Layers(ctx context.Context) ([]string, error) {
	rows, err := f.db.QueryContext(ctx, `SELECT name FROM geosafe_layers ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list layers: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("list layers: %w", err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// WriteLayer replaces the named layer with ds in one transaction.
func (f *FeatureStore) WriteLayer(ctx context.Context, layer string, ds ir.Dataset, prov *provenance.Log) error {
	id, err := crs.Normalize(ds.CRS)
	if err != nil {
		return err
	}
	fp, err := ir.DatasetFingerprint(ds)
	if err != nil {
		return err
	}
	savedAt := now().Format(savedAtLayout)

	tx, err := f.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM geosafe_layers WHERE name = ?`, layer); err != nil {
		return fmt.Errorf("replace layer %s: %w", layer, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO geosafe_layers (name, crs, source, saved_at, fingerprint) VALUES (?, ?, ?, ?, ?)`,
		layer, id, ds.Source, savedAt, fp,
	); err != nil {
		return fmt.Errorf("insert layer %s: %w", layer, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO geosafe_features (layer, position, idx, geometry, properties, validity, note)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare features: %w", err)
	}
	defer stmt.Close()

	for pos, r := range ds.Records {
		geom, err := json.Marshal(r.Geometry)
		if err != nil {
			return fmt.Errorf("record %d: geometry: %w", r.Index, err)
		}
		props := r.Properties
		if props == nil {
			props = map[string]any{}
		}
		pj, err := json.Marshal(props)
		if err != nil {
			return fmt.Errorf("record %d: properties: %w", r.Index, err)
		}
		if _, err := stmt.ExecContext(ctx, layer, pos, r.Index, string(geom), string(pj), string(r.Validity), r.Note); err != nil {
			return fmt.Errorf("record %d: %w", r.Index, err)
		}
	}

	if prov != nil {
		doc, err := json.Marshal(prov)
		if err != nil {
			return fmt.Errorf("provenance: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO geosafe_provenance (layer, saved_at, document) VALUES (?, ?, ?)`,
			layer, savedAt, string(doc),
		); err != nil {
			return fmt.Errorf("provenance: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ReadLayer reads the named layer. Records come back in saved order with
// their original indices, validity and notes.
func (f *FeatureStore) ReadLayer(ctx context.Context, layer string) (ir.Dataset, error) {
	ds := ir.Dataset{Name: layer}
	err := f.db.QueryRowContext(ctx,
		`SELECT crs, source FROM geosafe_layers WHERE name = ?`, layer,
	).Scan(&ds.CRS, &ds.Source)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Dataset{}, fmt.Errorf("%w: %q", ErrLayerNotFound, layer)
	}
	if err != nil {
		return ir.Dataset{}, fmt.Errorf("read layer %s: %w", layer, err)
	}

	rows, err := f.db.QueryContext(ctx,
		`SELECT idx, geometry, properties, validity, note
		 FROM geosafe_features WHERE layer = ? ORDER BY position`, layer)
	if err != nil {
		return ir.Dataset{}, fmt.Errorf("read features %s: %w", layer, err)
	}
	defer rows.Close()

	ds.Records = []ir.Record{}
	for rows.Next() {
		var (
			r              ir.Record
			geom, props    string
			validity, note string
		)
		if err := rows.Scan(&r.Index, &geom, &props, &validity, &note); err != nil {
			return ir.Dataset{}, fmt.Errorf("read features %s: %w", layer, err)
		}
		if err := json.Unmarshal([]byte(geom), &r.Geometry); err != nil {
			return ir.Dataset{}, fmt.Errorf("record %d: geometry: %w", r.Index, err)
		}
		if err := json.Unmarshal([]byte(props), &r.Properties); err != nil {
			return ir.Dataset{}, fmt.Errorf("record %d: properties: %w", r.Index, err)
		}
		if len(r.Properties) == 0 {
			r.Properties = nil
		}
		r.Validity = ir.Validity(validity)
		r.Note = note
		ds.Records = append(ds.Records, r)
	}
	if err := rows.Err(); err != nil {
		return ir.Dataset{}, fmt.Errorf("read features %s: %w", layer, err)
	}
	return ds, nil
}

// AttachProvenance stores prov with an existing layer, replacing any
// provenance saved with it before.
func (f *FeatureStore) AttachProvenance(ctx context.Context, layer string, prov *provenance.Log) error {
	doc, err := json.Marshal(prov)
	if err != nil {
		return fmt.Errorf("provenance: %w", err)
	}
	res, err := f.db.ExecContext(ctx,
		`INSERT INTO geosafe_provenance (layer, saved_at, document)
		 SELECT name, ?, ? FROM geosafe_layers WHERE name = ?
		 ON CONFLICT (layer) DO UPDATE SET saved_at = excluded.saved_at, document = excluded.document`,
		now().Format(savedAtLayout), string(doc), layer,
	)
	if err != nil {
		return fmt.Errorf("provenance: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %q", ErrLayerNotFound, layer)
	}
	return nil
}

// LayerProvenance returns the provenance saved with a layer, or nil.
func (f *FeatureStore) LayerProvenance(ctx context.Context, layer string) (*SavedProvenance, error) {
	var savedAt, doc string
	err := f.db.QueryRowContext(ctx,
		`SELECT saved_at, document FROM geosafe_provenance WHERE layer = ?`, layer,
	).Scan(&savedAt, &doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read provenance %s: %w", layer, err)
	}
	t, err := time.Parse(savedAtLayout, savedAt)
	if err != nil {
		return nil, fmt.Errorf("read provenance %s: saved_at: %w", layer, err)
	}
	log, err := provenance.Decode([]byte(doc))
	if err != nil {
		return nil, err
	}
	return &SavedProvenance{DataFile: filepath.Base(f.path), SavedAt: t, Provenance: log}, nil
}
