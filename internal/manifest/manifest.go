// Package manifest loads pipeline declarations from YAML or CUE documents
// and turns them into compiled pipeline graphs.
//
// A manifest names the pipeline, maps external dataset names to files,
// lists tasks in declaration order and maps produced datasets to the
// files they are saved to once the run finishes.
package manifest

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"

	"github.com/roach88/geosafe/internal/pipeline"
	"github.com/roach88/geosafe/internal/tasks"
	"github.com/roach88/geosafe/internal/validation"
)

//go:embed schema.cue
var schemaCUE string

// Manifest is a declared pipeline.
type Manifest struct {
	Name        string            `yaml:"name" json:"name" validate:"required"`
	Description string            `yaml:"description,omitempty" json:"description,omitempty"`
	Inputs      map[string]string `yaml:"inputs,omitempty" json:"inputs,omitempty" validate:"dive,keys,required,endkeys,required"`
	Tasks       []Task            `yaml:"tasks" json:"tasks" validate:"required,min=1,dive"`
	Outputs     map[string]string `yaml:"outputs,omitempty" json:"outputs,omitempty" validate:"dive,keys,required,endkeys,required"`

	// Dir is the directory relative paths resolve against. Load sets it to
	// the manifest's directory.
	Dir string `yaml:"-" json:"-"`
}

// Task is one declared step.
type Task struct {
	Name    string         `yaml:"name" json:"name" validate:"required"`
	Op      string         `yaml:"op" json:"op" validate:"required"`
	Inputs  []string       `yaml:"inputs,omitempty" json:"inputs,omitempty" validate:"dive,required"`
	Outputs []string       `yaml:"outputs" json:"outputs" validate:"required,min=1,dive,required"`
	Params  map[string]any `yaml:"params,omitempty" json:"params,omitempty"`
}

// Format is a manifest syntax.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatCUE  Format = "cue"
)

// FormatFor picks the format from a file extension.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".cue":
		return FormatCUE, nil
	default:
		return "", &Error{Code: ErrCodeUnsupported, Message: fmt.Sprintf("unsupported manifest extension %q: want .yaml, .yml or .cue", filepath.Ext(path))}
	}
}

// Load reads, parses and validates a manifest file.
func Load(path string) (*Manifest, error) {
	format, err := FormatFor(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &Error{Code: ErrCodeNotFound, Message: fmt.Sprintf("manifest not found: %s", path)}
	}
	if err != nil {
		return nil, &Error{Code: ErrCodeGeneric, Message: err.Error()}
	}
	m, err := Parse(data, format, path)
	if err != nil {
		return nil, err
	}
	m.Dir = filepath.Dir(path)
	return m, nil
}

// Parse decodes and validates a manifest. filename is used in error
// positions only.
func Parse(data []byte, format Format, filename string) (*Manifest, error) {
	var (
		m   *Manifest
		err error
	)
	switch format {
	case FormatYAML:
		m, err = parseYAML(data)
	case FormatCUE:
		m, err = parseCUE(data, filename)
	default:
		return nil, &Error{Code: ErrCodeUnsupported, Message: fmt.Sprintf("unsupported manifest format %q", format)}
	}
	if err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func parseYAML(data []byte) (*Manifest, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var m Manifest
	if err := dec.Decode(&m); err != nil {
		return nil, &Error{Code: ErrCodeParse, Message: err.Error()}
	}
	return &m, nil
}

func parseCUE(data []byte, filename string) (*Manifest, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fromCUE(ErrCodeGeneric, err)
	}

	doc := ctx.CompileBytes(data, cue.Filename(filename))
	if err := doc.Err(); err != nil {
		return nil, fromCUE(ErrCodeParse, err)
	}

	v := schema.LookupPath(cue.ParsePath("#Pipeline")).Unify(doc)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, fromCUE(ErrCodeSchema, err)
	}

	// Going through JSON gives CUE and YAML manifests the same parameter
	// value types.
	raw, err := v.MarshalJSON()
	if err != nil {
		return nil, fromCUE(ErrCodeSchema, err)
	}
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, &Error{Code: ErrCodeParse, Message: err.Error()}
	}
	return &m, nil
}

// Validate checks field constraints and cross references.
func (m *Manifest) Validate() error {
	if err := validation.Struct(m); err != nil {
		var ve *validation.Error
		if errors.As(err, &ve) && len(ve.Fields) > 0 {
			f := ve.Fields[0]
			return &Error{Code: ErrCodeInvalidField, Field: f.Field, Message: f.Message}
		}
		return &Error{Code: ErrCodeInvalidField, Message: err.Error()}
	}

	seen := make(map[string]bool, len(m.Tasks))
	produced := make(map[string]bool)
	for name := range m.Inputs {
		produced[name] = true
	}
	for i, t := range m.Tasks {
		if seen[t.Name] {
			return &Error{Code: ErrCodeDuplicateTask, Field: fmt.Sprintf("tasks[%d].name", i),
				Message: fmt.Sprintf("task %q declared twice", t.Name)}
		}
		seen[t.Name] = true
		for _, o := range t.Outputs {
			produced[o] = true
		}
	}
	for _, name := range sortedKeys(m.Outputs) {
		if !produced[name] {
			return &Error{Code: ErrCodeUnknownDataset, Field: "outputs." + name,
				Message: fmt.Sprintf("no input or task produces dataset %q", name)}
		}
	}
	return nil
}

// Specs returns the task specs in declaration order.
func (m *Manifest) Specs() []tasks.Spec {
	out := make([]tasks.Spec, len(m.Tasks))
	for i, t := range m.Tasks {
		out[i] = tasks.Spec{
			Name:    t.Name,
			Op:      t.Op,
			Inputs:  slices.Clone(t.Inputs),
			Outputs: slices.Clone(t.Outputs),
			Params:  t.Params,
		}
	}
	return out
}

// InputNames returns the external dataset names in sorted order.
func (m *Manifest) InputNames() []string {
	return sortedKeys(m.Inputs)
}

// Path resolves a manifest-relative path.
func (m *Manifest) Path(p string) string {
	if m.Dir == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.Dir, p)
}

// Compile builds and compiles the pipeline graph. env.BaseDir defaults to
// the manifest directory.
func (m *Manifest) Compile(env *tasks.Env) (*pipeline.Graph, error) {
	if env.BaseDir == "" {
		env.BaseDir = m.Dir
	}
	p := pipeline.New(m.Name)
	if err := tasks.AddAll(p, env, m.Specs()); err != nil {
		return nil, err
	}
	return p.Compile(m.InputNames()...)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
