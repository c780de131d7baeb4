package match

import (
	"math"

	"github.com/rotisserie/eris"

	"github.com/sells-group/materials-cli/internal/structure"
)

// NoSymmetry labels structures whose symmetry could not be determined.
const NoSymmetry = "none"

// Symmetry summarizes the point symmetry of a crystal structure.
type Symmetry struct {
	PointGroup    string
	CrystalSystem string
	NOps          int
	Symprec       float64
}

// Doc renders the summary as a document fragment.
func (s Symmetry) Doc() map[string]any {
	return map[string]any{
		"point_group":    s.PointGroup,
		"crystal_system": s.CrystalSystem,
		"n_ops":          float64(s.NOps),
		"symprec":        s.Symprec,
	}
}

// Rotation types in the order used by pointGroups:
// -6, -4, -3, -2 (mirror), -1 (inversion), 1, 2, 3, 4, 6.
type rotationCounts [10]int

var pointGroups = []struct {
	symbol string
	system string
	counts rotationCounts
}{
	{"1", "triclinic", rotationCounts{0, 0, 0, 0, 0, 1, 0, 0, 0, 0}},
	{"-1", "triclinic", rotationCounts{0, 0, 0, 0, 1, 1, 0, 0, 0, 0}},
	{"2", "monoclinic", rotationCounts{0, 0, 0, 0, 0, 1, 1, 0, 0, 0}},
	{"m", "monoclinic", rotationCounts{0, 0, 0, 1, 0, 1, 0, 0, 0, 0}},
	{"2/m", "monoclinic", rotationCounts{0, 0, 0, 1, 1, 1, 1, 0, 0, 0}},
	{"222", "orthorhombic", rotationCounts{0, 0, 0, 0, 0, 1, 3, 0, 0, 0}},
	{"mm2", "orthorhombic", rotationCounts{0, 0, 0, 2, 0, 1, 1, 0, 0, 0}},
	{"mmm", "orthorhombic", rotationCounts{0, 0, 0, 3, 1, 1, 3, 0, 0, 0}},
	{"4", "tetragonal", rotationCounts{0, 0, 0, 0, 0, 1, 1, 0, 2, 0}},
	{"-4", "tetragonal", rotationCounts{0, 2, 0, 0, 0, 1, 1, 0, 0, 0}},
	{"4/m", "tetragonal", rotationCounts{0, 2, 0, 1, 1, 1, 1, 0, 2, 0}},
	{"422", "tetragonal", rotationCounts{0, 0, 0, 0, 0, 1, 5, 0, 2, 0}},
	{"4mm", "tetragonal", rotationCounts{0, 0, 0, 4, 0, 1, 1, 0, 2, 0}},
	{"-42m", "tetragonal", rotationCounts{0, 2, 0, 2, 0, 1, 3, 0, 0, 0}},
	{"4/mmm", "tetragonal", rotationCounts{0, 2, 0, 5, 1, 1, 5, 0, 2, 0}},
	{"3", "trigonal", rotationCounts{0, 0, 0, 0, 0, 1, 0, 2, 0, 0}},
	{"-3", "trigonal", rotationCounts{0, 0, 2, 0, 1, 1, 0, 2, 0, 0}},
	{"32", "trigonal", rotationCounts{0, 0, 0, 0, 0, 1, 3, 2, 0, 0}},
	{"3m", "trigonal", rotationCounts{0, 0, 0, 3, 0, 1, 0, 2, 0, 0}},
	{"-3m", "trigonal", rotationCounts{0, 0, 2, 3, 1, 1, 3, 2, 0, 0}},
	{"6", "hexagonal", rotationCounts{0, 0, 0, 0, 0, 1, 1, 2, 0, 2}},
	{"-6", "hexagonal", rotationCounts{2, 0, 0, 1, 0, 1, 0, 2, 0, 0}},
	{"6/m", "hexagonal", rotationCounts{2, 0, 2, 1, 1, 1, 1, 2, 0, 2}},
	{"622", "hexagonal", rotationCounts{0, 0, 0, 0, 0, 1, 7, 2, 0, 2}},
	{"6mm", "hexagonal", rotationCounts{0, 0, 0, 6, 0, 1, 1, 2, 0, 2}},
	{"-6m2", "hexagonal", rotationCounts{2, 0, 0, 4, 0, 1, 3, 2, 0, 0}},
	{"6/mmm", "hexagonal", rotationCounts{2, 0, 2, 7, 1, 1, 7, 2, 0, 2}},
	{"23", "cubic", rotationCounts{0, 0, 0, 0, 0, 1, 3, 8, 0, 0}},
	{"m-3", "cubic", rotationCounts{0, 0, 8, 3, 1, 1, 3, 8, 0, 0}},
	{"432", "cubic", rotationCounts{0, 0, 0, 0, 0, 1, 9, 8, 6, 0}},
	{"-43m", "cubic", rotationCounts{0, 6, 0, 6, 0, 1, 3, 8, 0, 0}},
	{"m-3m", "cubic", rotationCounts{0, 6, 8, 9, 1, 1, 9, 8, 6, 0}},
}

type intMat [3][3]int

func (m intMat) mul(o intMat) intMat {
	var out intMat
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			for k := 0; k < 3; k++ {
				out[i][j] += m[i][k] * o[k][j]
			}
		}
	}
	return out
}

func (m intMat) trace() int { return m[0][0] + m[1][1] + m[2][2] }

// rotationType maps an operation to its slot in rotationCounts.
func rotationType(m intMat) (int, bool) {
	det := structure.IntDet(m)
	tr := m.trace()
	if det == 1 {
		switch tr {
		case 3:
			return 5, true // 1
		case -1:
			return 6, true // 2
		case 0:
			return 7, true // 3
		case 1:
			return 8, true // 4
		case 2:
			return 9, true // 6
		}
	}
	if det == -1 {
		switch tr {
		case -2:
			return 0, true // -6
		case -1:
			return 1, true // -4
		case 0:
			return 2, true // -3
		case 1:
			return 3, true // m
		case -3:
			return 4, true // -1
		}
	}
	return 0, false
}

// FindSymmetry determines the point group of s at the given precision. The
// search runs on the reduced primitive cell, where every lattice symmetry
// has integer entries in {-1, 0, 1}.
func FindSymmetry(s *structure.Structure, symprec, angleTol float64) (Symmetry, error) {
	if s == nil || s.NumSites() == 0 {
		return Symmetry{}, eris.New("match: empty structure")
	}
	cell := s.Primitive(symprec).Reduced()

	var ops []intMat
	for _, w := range latticeRotations(cell.Lattice, symprec, angleTol) {
		if hasTranslation(cell, w, symprec) {
			ops = append(ops, w)
		}
	}
	if len(ops) == 0 {
		return Symmetry{}, eris.Errorf("match: no symmetry operations at symprec %g", symprec)
	}
	if !closed(ops) {
		return Symmetry{}, eris.Errorf("match: %d operations at symprec %g do not form a group", len(ops), symprec)
	}

	var counts rotationCounts
	for _, w := range ops {
		slot, ok := rotationType(w)
		if !ok {
			return Symmetry{}, eris.Errorf("match: unclassifiable operation %v", w)
		}
		counts[slot]++
	}
	for _, pg := range pointGroups {
		if pg.counts == counts {
			return Symmetry{PointGroup: pg.symbol, CrystalSystem: pg.system, NOps: len(ops), Symprec: symprec}, nil
		}
	}
	return Symmetry{}, eris.Errorf("match: operation counts %v match no point group", counts)
}

// latticeRotations lists the integer matrices W with entries in {-1,0,1}
// and det ±1 for which the rows of W.M reproduce the lengths and angles of M.
func latticeRotations(l *structure.Lattice, symprec, angleTol float64) []intMat {
	m := l.Matrix
	lengths := l.Lengths()
	angles := l.Angles()

	// Candidate images of each basis vector.
	var cands [3][][3]int
	var vecs [3][]structure.Vec3
	for a := -1; a <= 1; a++ {
		for b := -1; b <= 1; b++ {
			for c := -1; c <= 1; c++ {
				if a == 0 && b == 0 && c == 0 {
					continue
				}
				n := [3]int{a, b, c}
				v := structure.Vec3{float64(a), float64(b), float64(c)}.MulMat(m)
				for i := 0; i < 3; i++ {
					if math.Abs(v.Norm()-lengths[i]) <= symprec {
						cands[i] = append(cands[i], n)
						vecs[i] = append(vecs[i], v)
					}
				}
			}
		}
	}

	var out []intMat
	for i, n0 := range cands[0] {
		for j, n1 := range cands[1] {
			if math.Abs(structure.Angle(vecs[0][i], vecs[1][j])-angles[2]) > angleTol {
				continue
			}
			for k, n2 := range cands[2] {
				if math.Abs(structure.Angle(vecs[1][j], vecs[2][k])-angles[0]) > angleTol ||
					math.Abs(structure.Angle(vecs[0][i], vecs[2][k])-angles[1]) > angleTol {
					continue
				}
				w := intMat{n0, n1, n2}
				if d := structure.IntDet(w); d == 1 || d == -1 {
					out = append(out, w)
				}
			}
		}
	}
	return out
}

// hasTranslation reports whether some translation t makes f.W + t a
// symmetry operation of the cell.
func hasTranslation(s *structure.Structure, w intMat, symprec float64) bool {
	rot := structure.IntMat3(w)
	anchor := s.RarestSpecies()
	idx := s.SitesBySpecies()[anchor]
	r0 := s.Sites[idx[0]].Frac.MulMat(rot)
	for _, j := range idx {
		t := s.Sites[j].Frac.Sub(r0)
		ok := true
		for _, site := range s.Sites {
			if !s.HasSiteNear(site.Species, site.Frac.MulMat(rot).Add(t), symprec) {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}

func closed(ops []intMat) bool {
	set := make(map[intMat]bool, len(ops))
	for _, w := range ops {
		set[w] = true
	}
	for _, a := range ops {
		for _, b := range ops {
			if !set[a.mul(b)] {
				return false
			}
		}
	}
	return true
}
