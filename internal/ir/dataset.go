package ir

import (
	"maps"

	"github.com/paulmach/orb"
)

// Validity is the validation state of a record.
type Validity string

const (
	// ValidityUnchecked marks a record no validator has looked at yet.
	ValidityUnchecked Validity = ""
	ValidityValid     Validity = "valid"
	ValidityRepaired  Validity = "repaired"
)

// Record is one geometry plus its attributes.
//
// Index is the record's position in the dataset it was first loaded from and
// survives filtering, so repair notes can point back at the source.
type Record struct {
	Index      int            `json:"index"`
	Geometry   Geometry       `json:"geometry"`
	Properties map[string]any `json:"properties,omitempty"`
	Validity   Validity       `json:"validity,omitempty"`
	Note       string         `json:"note,omitempty"`
}

// Clone returns a copy of the record with its own geometry and property map.
func (r Record) Clone() Record {
	out := r
	out.Geometry = r.Geometry.Clone()
	if r.Properties != nil {
		out.Properties = maps.Clone(r.Properties)
	}
	return out
}

// Dataset is an ordered collection of records that share one CRS.
type Dataset struct {
	Name    string   `json:"name"`
	CRS     string   `json:"crs"`
	Records []Record `json:"records"`
	Source  string   `json:"source,omitempty"`
}

// NewDataset builds a dataset from geometries, numbering records in order.
func NewDataset(name, crs string, geoms ...Geometry) Dataset {
	ds := Dataset{Name: name, CRS: crs, Records: make([]Record, len(geoms))}
	for i, g := range geoms {
		ds.Records[i] = Record{Index: i, Geometry: g.Clone()}
	}
	return ds
}

// Len returns the number of records.
func (d Dataset) Len() int {
	return len(d.Records)
}

// Clone returns a deep copy of the dataset.
func (d Dataset) Clone() Dataset {
	out := d
	out.Records = make([]Record, len(d.Records))
	for i, r := range d.Records {
		out.Records[i] = r.Clone()
	}
	return out
}

// WithRecords returns a copy of the dataset metadata carrying records.
func (d Dataset) WithRecords(records []Record) Dataset {
	out := d
	out.Records = records
	return out
}

// Geometries returns the record geometries in order.
func (d Dataset) Geometries() []Geometry {
	out := make([]Geometry, len(d.Records))
	for i, r := range d.Records {
		out[i] = r.Geometry
	}
	return out
}

// Bounds returns the bounding box of all non-empty geometries.
func (d Dataset) Bounds() (orb.Bound, bool) {
	var out orb.Bound
	found := false
	for _, r := range d.Records {
		b, ok := r.Geometry.Bounds()
		if !ok {
			continue
		}
		if !found {
			out, found = b, true
			continue
		}
		out = out.Union(b)
	}
	return out, found
}
