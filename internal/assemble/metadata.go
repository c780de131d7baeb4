package assemble

import (
	"math"

	"github.com/rotisserie/eris"

	"github.com/sells-group/materials-cli/internal/docpath"
	"github.com/sells-group/materials-cli/internal/match"
	"github.com/sells-group/materials-cli/internal/model"
	"github.com/sells-group/materials-cli/internal/structure"
)

// VolumeChangeLimit is the relative volume change between a task's input
// and output structure above which a material is flagged.
const VolumeChangeLimit = 0.3

// Deriver computes the metadata of an entity from its identity geometry.
type Deriver interface {
	// Metadata returns top-level fields derived from the geometry value.
	Metadata(geometry any) (map[string]any, error)
	// Warnings inspects the task that supplied the geometry.
	Warnings(geometry any, source model.Task) []string
}

// CrystalDeriver derives composition and symmetry fields of a material.
type CrystalDeriver struct {
	cmp *match.CrystalComparator
}

// NewCrystalDeriver uses cmp for symmetry detection.
func NewCrystalDeriver(cmp *match.CrystalComparator) *CrystalDeriver {
	return &CrystalDeriver{cmp: cmp}
}

// Metadata implements Deriver.
func (d *CrystalDeriver) Metadata(geometry any) (map[string]any, error) {
	s, err := structure.FromDoc(geometry)
	if err != nil {
		return nil, eris.Wrap(err, "assemble: read structure")
	}
	comp := s.Composition()
	elements := comp.Elements()
	return map[string]any{
		"formula_pretty":    comp.ReducedFormula(),
		"formula_anonymous": comp.AnonymousFormula(),
		"chemsys":           comp.Chemsys(),
		"elements":          stringsToAny(elements),
		"nelements":         float64(len(elements)),
		"nsites":            float64(s.NumSites()),
		"volume":            s.Volume(),
		"density":           s.Density(),
		"symmetry":          d.cmp.Symmetry(s).Doc(),
	}, nil
}

// Warnings flags a large volume change during relaxation.
func (d *CrystalDeriver) Warnings(geometry any, source model.Task) []string {
	initial, ok := docpath.Get(source.Doc, model.FieldInitialStructure)
	if !ok {
		return nil
	}
	before, err := structure.FromDoc(initial)
	if err != nil {
		return nil
	}
	after, err := structure.FromDoc(geometry)
	if err != nil {
		return nil
	}
	v0, v1 := before.Volume(), after.Volume()
	if v0 > 0 && math.Abs(v1-v0)/v0 > VolumeChangeLimit {
		return []string{model.WarnLargeVolumeChange}
	}
	return nil
}

// MoleculeDeriver derives composition and bonding fields of a molecule.
type MoleculeDeriver struct {
	BondTolerance float64
}

// Metadata implements Deriver.
func (d *MoleculeDeriver) Metadata(geometry any) (map[string]any, error) {
	m, err := structure.MoleculeFromDoc(geometry)
	if err != nil {
		return nil, eris.Wrap(err, "assemble: read molecule")
	}
	comp := m.Composition()
	elements := comp.Elements()
	g := match.BuildGraph(m, d.BondTolerance)
	return map[string]any{
		"formula_alphabetical": comp.AlphabeticalFormula(),
		"formula_pretty":       comp.ReducedFormula(),
		"chemsys":              comp.Chemsys(),
		"elements":             stringsToAny(elements),
		"nelements":            float64(len(elements)),
		"natoms":               float64(m.NumAtoms()),
		"charge":               float64(m.Charge),
		"spin_multiplicity":    float64(m.SpinMultiplicity),
		"nbonds":               float64(g.NumBonds()),
		"graph_hash":           g.Hash(),
	}, nil
}

// Warnings implements Deriver; molecules carry none.
func (d *MoleculeDeriver) Warnings(any, model.Task) []string { return nil }

func stringsToAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
