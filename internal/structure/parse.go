package structure

import (
	"math"

	"github.com/rotisserie/eris"

	"github.com/sells-group/materials-cli/internal/docpath"
)

// FromDoc reads a structure document: a "lattice" (with a "matrix" or given
// directly as three rows) and "sites", each holding a species and either
// fractional "abc" or cartesian "xyz" coordinates.
func FromDoc(v any) (*Structure, error) {
	doc, ok := v.(map[string]any)
	if !ok {
		return nil, eris.Errorf("structure: expected an object, got %T", v)
	}

	latVal, ok := doc["lattice"]
	if !ok {
		return nil, eris.New("structure: missing lattice")
	}
	if lm, ok := latVal.(map[string]any); ok {
		latVal = lm["matrix"]
	}
	rows, err := mat3(latVal)
	if err != nil {
		return nil, eris.Wrap(err, "structure: lattice")
	}
	lat, err := NewLattice(rows)
	if err != nil {
		return nil, err
	}

	rawSites, ok := docpath.ToSlice(doc["sites"])
	if !ok {
		return nil, eris.New("structure: missing sites")
	}
	sites := make([]Site, 0, len(rawSites))
	for i, rs := range rawSites {
		sm, ok := rs.(map[string]any)
		if !ok {
			return nil, eris.Errorf("structure: site %d is not an object", i)
		}
		sp, err := siteSpecies(sm)
		if err != nil {
			return nil, eris.Wrapf(err, "structure: site %d", i)
		}
		var frac Vec3
		if abc, ok := sm["abc"]; ok {
			frac, err = vec3(abc)
		} else if xyz, ok := sm["xyz"]; ok {
			var cart Vec3
			cart, err = vec3(xyz)
			frac = lat.Frac(cart)
		} else {
			err = eris.New("no coordinates")
		}
		if err != nil {
			return nil, eris.Wrapf(err, "structure: site %d", i)
		}
		sites = append(sites, Site{Species: sp, Frac: frac})
	}
	return New(lat, sites)
}

// Doc renders the structure in the form FromDoc reads.
func (s *Structure) Doc() map[string]any {
	l := s.Lattice
	lengths, angles := l.Lengths(), l.Angles()
	sites := make([]any, len(s.Sites))
	for i, site := range s.Sites {
		sites[i] = map[string]any{
			"species": []any{map[string]any{"element": site.Species, "occu": 1.0}},
			"abc":     vecDoc(site.Frac),
			"xyz":     vecDoc(l.Cart(site.Frac)),
			"label":   site.Species,
		}
	}
	return map[string]any{
		"lattice": map[string]any{
			"matrix": []any{vecDoc(l.Matrix[0]), vecDoc(l.Matrix[1]), vecDoc(l.Matrix[2])},
			"a":      lengths[0],
			"b":      lengths[1],
			"c":      lengths[2],
			"alpha":  angles[0],
			"beta":   angles[1],
			"gamma":  angles[2],
			"volume": l.Volume(),
		},
		"sites": sites,
	}
}

// MoleculeFromDoc reads a molecule document with "sites" holding a species
// and cartesian "xyz", plus optional "charge" and "spin_multiplicity".
func MoleculeFromDoc(v any) (*Molecule, error) {
	doc, ok := v.(map[string]any)
	if !ok {
		return nil, eris.Errorf("structure: expected an object, got %T", v)
	}
	rawSites, ok := docpath.ToSlice(doc["sites"])
	if !ok {
		return nil, eris.New("structure: molecule missing sites")
	}
	species := make([]string, 0, len(rawSites))
	coords := make([]Vec3, 0, len(rawSites))
	for i, rs := range rawSites {
		sm, ok := rs.(map[string]any)
		if !ok {
			return nil, eris.Errorf("structure: atom %d is not an object", i)
		}
		sp, err := siteSpecies(sm)
		if err != nil {
			return nil, eris.Wrapf(err, "structure: atom %d", i)
		}
		xyz, err := vec3(sm["xyz"])
		if err != nil {
			return nil, eris.Wrapf(err, "structure: atom %d", i)
		}
		species = append(species, sp)
		coords = append(coords, xyz)
	}
	charge, err := intField(doc, "charge")
	if err != nil {
		return nil, err
	}
	spin, err := intField(doc, "spin_multiplicity")
	if err != nil {
		return nil, err
	}
	return NewMolecule(species, coords, charge, spin)
}

// Doc renders the molecule in the form MoleculeFromDoc reads.
func (m *Molecule) Doc() map[string]any {
	sites := make([]any, len(m.Species))
	for i, sp := range m.Species {
		sites[i] = map[string]any{
			"name":    sp,
			"species": []any{map[string]any{"element": sp, "occu": 1.0}},
			"xyz":     vecDoc(m.Coords[i]),
		}
	}
	return map[string]any{
		"charge":            float64(m.Charge),
		"spin_multiplicity": float64(m.SpinMultiplicity),
		"sites":             sites,
	}
}

// siteSpecies accepts "species" as a symbol or a list of {element, occu}
// entries; only fully ordered sites are supported.
func siteSpecies(site map[string]any) (string, error) {
	switch sp := site["species"].(type) {
	case string:
		return sp, nil
	case nil:
		if name, ok := site["name"].(string); ok {
			return name, nil
		}
		if label, ok := site["label"].(string); ok {
			return label, nil
		}
		return "", eris.New("no species")
	}
	items, ok := docpath.ToSlice(site["species"])
	if !ok || len(items) == 0 {
		return "", eris.New("no species")
	}
	if len(items) > 1 {
		return "", eris.New("disordered sites are not supported")
	}
	entry, ok := items[0].(map[string]any)
	if !ok {
		return "", eris.New("malformed species entry")
	}
	el, ok := entry["element"].(string)
	if !ok {
		return "", eris.New("species entry has no element")
	}
	if occu, ok := docpath.ToFloat(entry["occu"]); ok && math.Abs(occu-1) > 1e-6 {
		return "", eris.Errorf("partial occupancy %.3f is not supported", occu)
	}
	return el, nil
}

func vec3(v any) (Vec3, error) {
	items, ok := docpath.ToSlice(v)
	if !ok || len(items) != 3 {
		return Vec3{}, eris.Errorf("expected 3 coordinates, got %v", v)
	}
	var out Vec3
	for i, it := range items {
		f, ok := docpath.ToFloat(it)
		if !ok {
			return Vec3{}, eris.Errorf("coordinate %d is not a number", i)
		}
		out[i] = f
	}
	return out, nil
}

func mat3(v any) (Mat3, error) {
	if m, ok := v.([][]float64); ok {
		v = toAnySlice(m)
	}
	rows, ok := docpath.ToSlice(v)
	if !ok || len(rows) != 3 {
		return Mat3{}, eris.New("expected 3 vectors")
	}
	var out Mat3
	for i, r := range rows {
		vec, err := vec3(r)
		if err != nil {
			return Mat3{}, err
		}
		out[i] = vec
	}
	return out, nil
}

func toAnySlice(m [][]float64) []any {
	out := make([]any, len(m))
	for i := range m {
		out[i] = m[i]
	}
	return out
}

func vecDoc(v Vec3) []any { return []any{v[0], v[1], v[2]} }

func intField(doc map[string]any, key string) (int, error) {
	v, ok := doc[key]
	if !ok || v == nil {
		return 0, nil
	}
	f, ok := docpath.ToFloat(v)
	if !ok || f != math.Trunc(f) {
		return 0, eris.Errorf("structure: %s must be an integer, got %v", key, v)
	}
	return int(f), nil
}
