package structure

import (
	"math"

	"github.com/rotisserie/eris"
)

// Molecule is a finite set of atoms with a total charge and spin.
type Molecule struct {
	Species          []string
	Coords           []Vec3
	Charge           int
	SpinMultiplicity int
}

// NewMolecule validates the atoms and fills in a default spin multiplicity
// from electron parity when spin is zero.
func NewMolecule(species []string, coords []Vec3, charge, spin int) (*Molecule, error) {
	if len(species) == 0 {
		return nil, eris.New("structure: molecule has no atoms")
	}
	if len(species) != len(coords) {
		return nil, eris.Errorf("structure: %d species for %d coordinates", len(species), len(coords))
	}
	electrons := -charge
	for i, s := range species {
		el, err := LookupElement(s)
		if err != nil {
			return nil, err
		}
		for _, x := range coords[i] {
			if math.IsNaN(x) || math.IsInf(x, 0) {
				return nil, eris.Errorf("structure: atom %d has non-finite coordinates", i)
			}
		}
		electrons += el.Z
	}
	if spin == 0 {
		spin = 1 + electrons%2
	}
	if (electrons+spin)%2 == 0 {
		return nil, eris.Errorf("structure: charge %d and spin multiplicity %d are incompatible", charge, spin)
	}
	return &Molecule{
		Species:          append([]string(nil), species...),
		Coords:           append([]Vec3(nil), coords...),
		Charge:           charge,
		SpinMultiplicity: spin,
	}, nil
}

// NumAtoms is the number of atoms.
func (m *Molecule) NumAtoms() int { return len(m.Species) }

// Composition counts the atoms per element.
func (m *Molecule) Composition() Composition {
	c := make(Composition)
	for _, s := range m.Species {
		c[s]++
	}
	return c
}

// Centroid is the unweighted mean position.
func (m *Molecule) Centroid() Vec3 {
	var sum Vec3
	for _, c := range m.Coords {
		sum = sum.Add(c)
	}
	return sum.Scale(1 / float64(len(m.Coords)))
}

// Distance is the distance between atoms i and j.
func (m *Molecule) Distance(i, j int) float64 {
	return m.Coords[i].Sub(m.Coords[j]).Norm()
}
