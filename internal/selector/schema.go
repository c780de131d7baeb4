package selector

import (
	"slices"

	"github.com/rotisserie/eris"

	"github.com/sells-group/materials-cli/internal/docpath"
	"github.com/sells-group/materials-cli/internal/structure"
)

// FieldKind is the type of a document field.
type FieldKind string

const (
	FieldAny       FieldKind = "any"
	FieldFloat     FieldKind = "float"
	FieldString    FieldKind = "string"
	FieldBool      FieldKind = "bool"
	FieldList      FieldKind = "list"
	FieldMap       FieldKind = "map"
	FieldStructure FieldKind = "structure"
	FieldMolecule  FieldKind = "molecule"
)

func (k FieldKind) valid() bool {
	switch k {
	case FieldAny, FieldFloat, FieldString, FieldBool, FieldList, FieldMap, FieldStructure, FieldMolecule:
		return true
	}
	return false
}

// Schema maps output document paths to field kinds. Fields are added with
// Register; a path may not be registered twice with different kinds, and a
// path may not sit underneath another registered leaf.
type Schema struct {
	fields map[string]FieldKind
	order  []string
}

// NewSchema returns an empty schema.
func NewSchema() *Schema {
	return &Schema{fields: make(map[string]FieldKind)}
}

// Register adds a field.
func (s *Schema) Register(path string, kind FieldKind) error {
	if path == "" {
		return eris.New("selector: empty schema path")
	}
	if kind == "" {
		kind = FieldAny
	}
	if !kind.valid() {
		return eris.Errorf("selector: unknown field kind %q for %s", kind, path)
	}
	if prev, ok := s.fields[path]; ok {
		if prev != kind {
			return eris.Errorf("selector: %s registered as %s and %s", path, prev, kind)
		}
		return nil
	}
	parts := docpath.Split(path)
	for _, other := range s.order {
		op := docpath.Split(other)
		if isPrefix(op, parts) || isPrefix(parts, op) {
			return eris.Errorf("selector: %s overlaps %s", path, other)
		}
	}
	s.fields[path] = kind
	s.order = append(s.order, path)
	return nil
}

// Kind returns the registered kind of path.
func (s *Schema) Kind(path string) (FieldKind, bool) {
	k, ok := s.fields[path]
	return k, ok
}

// Paths returns the registered paths in registration order.
func (s *Schema) Paths() []string { return slices.Clone(s.order) }

// Check verifies that v fits the kind registered for path and returns it
// in canonical form: numbers become float64 and geometry round-trips
// through its parser.
func (s *Schema) Check(path string, v any) (any, error) {
	kind, ok := s.fields[path]
	if !ok {
		return nil, eris.Errorf("selector: %s is not in the schema", path)
	}
	return checkValue(kind, v)
}

func checkValue(kind FieldKind, v any) (any, error) {
	if v == nil {
		return nil, eris.New("selector: null value")
	}
	switch kind {
	case FieldFloat:
		f, ok := docpath.ToFloat(v)
		if !ok {
			return nil, eris.Errorf("selector: %T is not a number", v)
		}
		return f, nil
	case FieldString:
		if _, ok := v.(string); !ok {
			return nil, eris.Errorf("selector: %T is not a string", v)
		}
	case FieldBool:
		if _, ok := v.(bool); !ok {
			return nil, eris.Errorf("selector: %T is not a bool", v)
		}
	case FieldList:
		items, ok := docpath.ToSlice(v)
		if !ok {
			return nil, eris.Errorf("selector: %T is not a list", v)
		}
		return items, nil
	case FieldMap:
		if _, ok := v.(map[string]any); !ok {
			return nil, eris.Errorf("selector: %T is not a map", v)
		}
	case FieldStructure:
		st, err := structure.FromDoc(v)
		if err != nil {
			return nil, eris.Wrap(err, "selector: structure")
		}
		return st.Doc(), nil
	case FieldMolecule:
		m, err := structure.MoleculeFromDoc(v)
		if err != nil {
			return nil, eris.Wrap(err, "selector: molecule")
		}
		return m.Doc(), nil
	}
	return v, nil
}

func isPrefix(prefix, parts []string) bool {
	if len(prefix) > len(parts) {
		return false
	}
	for i := range prefix {
		if prefix[i] != parts[i] {
			return false
		}
	}
	return true
}
