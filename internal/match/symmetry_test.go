package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/materials-cli/internal/structure"
)

func lattice(t *testing.T, rows structure.Mat3) *structure.Lattice {
	t.Helper()
	l, err := structure.NewLattice(rows)
	require.NoError(t, err)
	return l
}

func crystal(t *testing.T, rows structure.Mat3, sites ...structure.Site) *structure.Structure {
	t.Helper()
	s, err := structure.New(lattice(t, rows), sites)
	require.NoError(t, err)
	return s
}

func cubic(a float64) structure.Mat3 {
	return structure.Mat3{{a, 0, 0}, {0, a, 0}, {0, 0, a}}
}

func rockSalt(t *testing.T, a float64) *structure.Structure {
	t.Helper()
	var sites []structure.Site
	for _, f := range []structure.Vec3{{0, 0, 0}, {0, 0.5, 0.5}, {0.5, 0, 0.5}, {0.5, 0.5, 0}} {
		sites = append(sites,
			structure.Site{Species: "Na", Frac: f},
			structure.Site{Species: "Cl", Frac: f.Add(structure.Vec3{0.5, 0, 0})},
		)
	}
	return crystal(t, cubic(a), sites...)
}

func TestFindSymmetry(t *testing.T) {
	po := structure.Site{Species: "Po"}
	tests := []struct {
		name   string
		s      func(t *testing.T) *structure.Structure
		pg     string
		system string
		nops   int
	}{
		{"simple cubic", func(t *testing.T) *structure.Structure { return crystal(t, cubic(3.35), po) }, "m-3m", "cubic", 48},
		{"rock salt conventional", func(t *testing.T) *structure.Structure { return rockSalt(t, 5.64) }, "m-3m", "cubic", 48},
		{"tetragonal", func(t *testing.T) *structure.Structure {
			return crystal(t, structure.Mat3{{3, 0, 0}, {0, 3, 0}, {0, 0, 4}}, po)
		}, "4/mmm", "tetragonal", 16},
		{"orthorhombic", func(t *testing.T) *structure.Structure {
			return crystal(t, structure.Mat3{{3, 0, 0}, {0, 4, 0}, {0, 0, 5}}, po)
		}, "mmm", "orthorhombic", 8},
		{"hexagonal", func(t *testing.T) *structure.Structure {
			return crystal(t, structure.Mat3{{3, 0, 0}, {-1.5, 2.598076211, 0}, {0, 0, 5}}, po)
		}, "6/mmm", "hexagonal", 24},
		{"triclinic", func(t *testing.T) *structure.Structure {
			return crystal(t, structure.Mat3{{3, 0, 0}, {0.5, 3.5, 0}, {0.3, 0.7, 4.1}}, po)
		}, "-1", "triclinic", 2},
		{"polar orthorhombic", func(t *testing.T) *structure.Structure {
			return crystal(t, structure.Mat3{{3, 0, 0}, {0, 4, 0}, {0, 0, 5}},
				structure.Site{Species: "Ga", Frac: structure.Vec3{0, 0, 0}},
				structure.Site{Species: "N", Frac: structure.Vec3{0, 0, 0.3}},
			)
		}, "mm2", "orthorhombic", 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sym, err := FindSymmetry(tt.s(t), 0.1, 5)
			require.NoError(t, err)
			assert.Equal(t, tt.pg, sym.PointGroup)
			assert.Equal(t, tt.system, sym.CrystalSystem)
			assert.Equal(t, tt.nops, sym.NOps)
			assert.InDelta(t, 0.1, sym.Symprec, 1e-12)
		})
	}
}

func TestFindSymmetry_TolerantToNoise(t *testing.T) {
	s := rockSalt(t, 5.64)
	s.Sites[1].Frac = s.Sites[1].Frac.Add(structure.Vec3{0.004, -0.003, 0.002})
	sym, err := FindSymmetry(s, 0.1, 5)
	require.NoError(t, err)
	assert.Equal(t, "m-3m", sym.PointGroup)
}

func TestFindSymmetry_Empty(t *testing.T) {
	_, err := FindSymmetry(nil, 0.1, 5)
	assert.Error(t, err)
}

func TestCrystalComparator_SymmetrySentinel(t *testing.T) {
	c := NewCrystalComparator(DefaultTolerances())
	sym := c.Symmetry(nil)
	assert.Equal(t, NoSymmetry, sym.PointGroup)
	assert.Equal(t, NoSymmetry, sym.CrystalSystem)
}

func TestSymmetryDoc(t *testing.T) {
	doc := Symmetry{PointGroup: "m-3m", CrystalSystem: "cubic", NOps: 48, Symprec: 0.1}.Doc()
	assert.Equal(t, "m-3m", doc["point_group"])
	assert.Equal(t, 48.0, doc["n_ops"])
}

func TestPointGroupTable(t *testing.T) {
	seen := make(map[rotationCounts]bool)
	for _, pg := range pointGroups {
		assert.False(t, seen[pg.counts], "duplicate counts for %s", pg.symbol)
		seen[pg.counts] = true
		order := 0
		for _, c := range pg.counts {
			order += c
		}
		assert.Contains(t, []int{1, 2, 3, 4, 6, 8, 12, 16, 24, 48}, order, pg.symbol)
	}
	assert.Len(t, pointGroups, 32)
}
