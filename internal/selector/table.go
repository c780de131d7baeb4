package selector

import (
	"embed"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/materials-cli/internal/model"
)

//go:embed tables/*.yaml
var tableFS embed.FS

// Property is one entry of a property table: where a value is read from a
// task, where it lands in the entity document, and how candidates rank.
type Property struct {
	Name   string    `yaml:"name"`
	Input  string    `yaml:"input"`
	Output string    `yaml:"output"`
	Kind   FieldKind `yaml:"kind"`
	// Quality ranks calculation kinds for this property. Tasks of kinds not
	// listed never supply it.
	Quality   map[model.CalcKind]int `yaml:"quality"`
	Optional  bool                   `yaml:"optional"`
	Aggregate bool                   `yaml:"aggregate"`
	Track     bool                   `yaml:"track"`
}

// Table is the set of properties a builder assembles.
type Table struct {
	Name string `yaml:"name"`
	// Identity is the name of the property that carries the entity geometry.
	// Documents without it are dropped.
	Identity string `yaml:"identity"`
	// Accuracy ranks task methods (functional, level of theory) as the
	// tie-break after quality.
	Accuracy   map[string]int `yaml:"accuracy"`
	Properties []Property     `yaml:"properties"`
}

// LoadTable reads a property table from a YAML file.
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "selector: read table %s", path)
	}
	return ParseTable(data)
}

// ParseTable parses and validates a YAML property table.
func ParseTable(data []byte) (*Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, eris.Wrap(err, "selector: parse table")
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// DefaultTable returns the built-in table for a builder ("materials" or
// "molecules").
func DefaultTable(name string) (*Table, error) {
	data, err := tableFS.ReadFile("tables/" + name + ".yaml")
	if err != nil {
		return nil, eris.Wrapf(err, "selector: no built-in table %q", name)
	}
	return ParseTable(data)
}

// Validate checks names and paths are unique and the identity property
// exists.
func (t *Table) Validate() error {
	if len(t.Properties) == 0 {
		return eris.Errorf("selector: table %q has no properties", t.Name)
	}
	names := make(map[string]bool, len(t.Properties))
	for _, p := range t.Properties {
		if p.Name == "" || p.Input == "" || p.Output == "" {
			return eris.Errorf("selector: table %q: property needs name, input and output", t.Name)
		}
		if names[p.Name] {
			return eris.Errorf("selector: table %q: duplicate property %q", t.Name, p.Name)
		}
		names[p.Name] = true
		if len(p.Quality) == 0 {
			return eris.Errorf("selector: table %q: property %q has no quality scores", t.Name, p.Name)
		}
	}
	if _, err := t.Schema(); err != nil {
		return err
	}
	id, ok := t.Property(t.Identity)
	if !ok {
		return eris.Errorf("selector: table %q: identity property %q not found", t.Name, t.Identity)
	}
	if id.Aggregate {
		return eris.Errorf("selector: table %q: identity property cannot aggregate", t.Name)
	}
	return nil
}

// Property looks a property up by name.
func (t *Table) Property(name string) (Property, bool) {
	for _, p := range t.Properties {
		if p.Name == name {
			return p, true
		}
	}
	return Property{}, false
}

// Schema registers every output path of the table.
func (t *Table) Schema() (*Schema, error) {
	s := NewSchema()
	for _, p := range t.Properties {
		kind := p.Kind
		if p.Aggregate {
			kind = FieldList
		}
		if err := s.Register(p.Output, kind); err != nil {
			return nil, eris.Wrapf(err, "selector: table %q", t.Name)
		}
	}
	return s, nil
}

// InputPaths lists every task path the table reads, for query projection.
func (t *Table) InputPaths() []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range t.Properties {
		if !seen[p.Input] {
			seen[p.Input] = true
			out = append(out, p.Input)
		}
	}
	return out
}
