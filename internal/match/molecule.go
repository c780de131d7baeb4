package match

import (
	"fmt"
	"math"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/mat"

	"github.com/sells-group/materials-cli/internal/structure"
)

// maxIsomorphisms bounds the atom mappings tried per comparison; highly
// symmetric molecules have many equivalent ones.
const maxIsomorphisms = 5000

// MoleculeComparator compares molecules by bonding graph and, for
// isomorphic graphs, by best-aligned RMSD.
type MoleculeComparator struct {
	Tol Tolerances
	// SeparateSpin keeps different spin multiplicities apart.
	SeparateSpin bool
}

// NewMoleculeComparator returns a comparator using tol.
func NewMoleculeComparator(tol Tolerances, separateSpin bool) *MoleculeComparator {
	return &MoleculeComparator{Tol: tol, SeparateSpin: separateSpin}
}

// Label bins molecules by composition, charge, optionally spin, and the
// bonding-graph hash.
func (c *MoleculeComparator) Label(m *structure.Molecule) string {
	label := fmt.Sprintf("%s|q=%d", m.Composition().AlphabeticalFormula(), m.Charge)
	if c.SeparateSpin {
		label += fmt.Sprintf("|s=%d", m.SpinMultiplicity)
	}
	return label + "|" + BuildGraph(m, c.Tol.BondTolerance).Hash()
}

// Match requires identical composition and charge, isomorphic bonding
// graphs, and an aligned RMSD within STol Å.
func (c *MoleculeComparator) Match(a, b *structure.Molecule) Result {
	if a == nil || b == nil {
		return failed(eris.New("match: nil molecule"))
	}
	if a.Charge != b.Charge || !a.Composition().Equal(b.Composition()) {
		return Result{Outcome: NoMatch}
	}
	if c.SeparateSpin && a.SpinMultiplicity != b.SpinMultiplicity {
		return Result{Outcome: NoMatch}
	}

	ga := BuildGraph(a, c.Tol.BondTolerance)
	gb := BuildGraph(b, c.Tol.BondTolerance)
	best := math.Inf(1)
	var kerr error
	isomorphisms(ga, gb, maxIsomorphisms, func(perm []int) bool {
		q := make([]structure.Vec3, len(perm))
		for i, j := range perm {
			q[i] = b.Coords[j]
		}
		rmsd, err := KabschRMSD(a.Coords, q)
		if err != nil {
			kerr = err
			return false
		}
		best = math.Min(best, rmsd)
		return best > 1e-8
	})
	if kerr != nil {
		return failed(kerr)
	}
	if best <= c.Tol.STol {
		return matched(best)
	}
	return Result{Outcome: NoMatch}
}

// KabschRMSD is the RMSD between two ordered point sets after optimal
// translation and rotation.
func KabschRMSD(p, q []structure.Vec3) (float64, error) {
	n := len(p)
	if n == 0 || n != len(q) {
		return 0, eris.Errorf("match: cannot align %d points with %d", len(p), len(q))
	}
	cp, cq := centroid(p), centroid(q)

	var sum float64
	h := mat.NewDense(3, 3, nil)
	for i := 0; i < n; i++ {
		a, b := p[i].Sub(cp), q[i].Sub(cq)
		sum += a.Dot(a) + b.Dot(b)
		for r := 0; r < 3; r++ {
			for s := 0; s < 3; s++ {
				h.Set(r, s, h.At(r, s)+a[r]*b[s])
			}
		}
	}

	var svd mat.SVD
	if ok := svd.Factorize(h, mat.SVDFull); !ok {
		return 0, eris.New("match: SVD did not converge")
	}
	sv := svd.Values(nil)
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	d := 1.0
	if mat.Det(&u)*mat.Det(&v) < 0 {
		d = -1
	}
	e := sum - 2*(sv[0]+sv[1]+d*sv[2])
	return math.Sqrt(math.Max(e, 0) / float64(n)), nil
}

func centroid(ps []structure.Vec3) structure.Vec3 {
	var c structure.Vec3
	for _, p := range ps {
		c = c.Add(p)
	}
	return c.Scale(1 / float64(len(ps)))
}
