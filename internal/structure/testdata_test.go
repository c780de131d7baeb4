package structure

import "testing"

func cubic(a float64) Mat3 {
	return Mat3{{a, 0, 0}, {0, a, 0}, {0, 0, a}}
}

func mustLattice(t *testing.T, rows Mat3) *Lattice {
	t.Helper()
	l, err := NewLattice(rows)
	if err != nil {
		t.Fatalf("lattice: %v", err)
	}
	return l
}

func mustStructure(t *testing.T, l *Lattice, sites []Site) *Structure {
	t.Helper()
	s, err := New(l, sites)
	if err != nil {
		t.Fatalf("structure: %v", err)
	}
	return s
}

// fccCu is the 4-atom conventional cell of copper.
func fccCu(t *testing.T) *Structure {
	return mustStructure(t, mustLattice(t, cubic(3.61)), []Site{
		{"Cu", Vec3{0, 0, 0}},
		{"Cu", Vec3{0, 0.5, 0.5}},
		{"Cu", Vec3{0.5, 0, 0.5}},
		{"Cu", Vec3{0.5, 0.5, 0}},
	})
}

// rockSalt is the 8-atom conventional cell of NaCl.
func rockSalt(t *testing.T) *Structure {
	var sites []Site
	for _, f := range []Vec3{{0, 0, 0}, {0, 0.5, 0.5}, {0.5, 0, 0.5}, {0.5, 0.5, 0}} {
		sites = append(sites, Site{"Na", f}, Site{"Cl", f.Add(Vec3{0.5, 0, 0}).Wrap()})
	}
	return mustStructure(t, mustLattice(t, cubic(5.64)), sites)
}
