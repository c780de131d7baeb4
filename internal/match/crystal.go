package match

import (
	"math"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/materials-cli/internal/structure"
)

// maxLatticeMappings bounds the lattice alignments tried per comparison.
const maxLatticeMappings = 2000

// CrystalComparator compares periodic structures within length, site and
// angle tolerances.
type CrystalComparator struct {
	Tol Tolerances
	log *zap.Logger
}

// NewCrystalComparator returns a comparator using tol.
func NewCrystalComparator(tol Tolerances) *CrystalComparator {
	return &CrystalComparator{
		Tol: tol,
		log: zap.L().With(zap.String("component", "match.crystal")),
	}
}

// Symmetry finds the point group at Symprec, retrying at FallbackSymprec,
// and returns the NoSymmetry sentinel when neither precision works.
func (c *CrystalComparator) Symmetry(s *structure.Structure) Symmetry {
	sym, err := FindSymmetry(s, c.Tol.Symprec, c.Tol.AngleTol)
	if err == nil {
		return sym
	}
	if c.Tol.FallbackSymprec > c.Tol.Symprec {
		c.log.Debug("symmetry detection failed, retrying with fallback precision",
			zap.Float64("symprec", c.Tol.Symprec),
			zap.Float64("fallback_symprec", c.Tol.FallbackSymprec),
			zap.Error(err),
		)
		if sym, ferr := FindSymmetry(s, c.Tol.FallbackSymprec, c.Tol.AngleTol); ferr == nil {
			return sym
		}
	}
	c.log.Warn("symmetry detection failed", zap.Error(err))
	return Symmetry{PointGroup: NoSymmetry, CrystalSystem: NoSymmetry}
}

// Label bins structures by reduced formula and point group.
func (c *CrystalComparator) Label(s *structure.Structure) string {
	return s.Composition().ReducedFormula() + "|" + c.Symmetry(s).PointGroup
}

// Match reports whether a and b are the same crystal after reduction to
// primitive cells and scaling to a common volume per atom.
func (c *CrystalComparator) Match(a, b *structure.Structure) Result {
	if a == nil || b == nil {
		return failed(eris.New("match: nil structure"))
	}
	if a.Composition().ReducedFormula() != b.Composition().ReducedFormula() {
		return Result{Outcome: NoMatch}
	}

	pa := a.Primitive(c.Tol.Symprec)
	pb := b.Primitive(c.Tol.Symprec)
	if pa.NumSites() != pb.NumSites() || !pa.Composition().Equal(pb.Composition()) {
		return Result{Outcome: NoMatch}
	}

	n := float64(pa.NumSites())
	vol := (pa.Volume() + pb.Volume()) / 2
	ra := pa.WithLattice(pa.Lattice.Scaled(vol)).Reduced()
	rb := pb.WithLattice(pb.Lattice.Scaled(vol)).Reduced()

	// Distances are normalized by the free length per atom.
	norm := math.Cbrt(vol / n)

	best := math.Inf(1)
	tried := 0
	c.latticeMappings(ra.Lattice, rb.Lattice, func(t [3][3]int) bool {
		tried++
		inv, err := structure.IntMat3(t).Inverse()
		if err != nil {
			return true
		}
		frac := make([]structure.Vec3, rb.NumSites())
		for i, site := range rb.Sites {
			frac[i] = site.Frac.MulMat(inv)
		}
		if rms, ok := c.siteMapping(ra, rb.Species(), frac, norm); ok && rms < best {
			best = rms
		}
		return best > 1e-6 && tried < maxLatticeMappings
	})
	if math.IsInf(best, 1) {
		return Result{Outcome: NoMatch}
	}
	return matched(best)
}

// latticeMappings calls fn with each integer matrix T (det ±1) whose rows,
// applied to target's basis, reproduce ref's lengths and angles within
// tolerance. fn returns false to stop.
func (c *CrystalComparator) latticeMappings(ref, target *structure.Lattice, fn func([3][3]int) bool) {
	lengths := ref.Lengths()
	angles := ref.Angles()

	var cands [3][][3]int
	var vecs [3][]structure.Vec3
	for x := -2; x <= 2; x++ {
		for y := -2; y <= 2; y++ {
			for z := -2; z <= 2; z++ {
				if x == 0 && y == 0 && z == 0 {
					continue
				}
				v := structure.Vec3{float64(x), float64(y), float64(z)}.MulMat(target.Matrix)
				for i := 0; i < 3; i++ {
					if math.Abs(v.Norm()-lengths[i]) <= c.Tol.LTol*lengths[i] {
						cands[i] = append(cands[i], [3]int{x, y, z})
						vecs[i] = append(vecs[i], v)
					}
				}
			}
		}
	}

	for i := range cands[0] {
		for j := range cands[1] {
			if math.Abs(structure.Angle(vecs[0][i], vecs[1][j])-angles[2]) > c.Tol.AngleTol {
				continue
			}
			for k := range cands[2] {
				if math.Abs(structure.Angle(vecs[1][j], vecs[2][k])-angles[0]) > c.Tol.AngleTol ||
					math.Abs(structure.Angle(vecs[0][i], vecs[2][k])-angles[1]) > c.Tol.AngleTol {
					continue
				}
				t := [3][3]int{cands[0][i], cands[1][j], cands[2][k]}
				if d := structure.IntDet(t); d != 1 && d != -1 {
					continue
				}
				if !fn(t) {
					return
				}
			}
		}
	}
}

// siteMapping aligns the sites of b (given as fractional coordinates in
// a's basis) onto a. It tries each translation that puts an atom of a's
// rarest species onto one of b's, pairs atoms of equal species greedily by
// distance, removes the mean displacement, and accepts when every paired
// distance is within STol. It returns the lowest normalized RMS found.
func (c *CrystalComparator) siteMapping(a *structure.Structure, bSpecies []string, bFrac []structure.Vec3, norm float64) (float64, bool) {
	anchor := a.RarestSpecies()
	aBy := a.SitesBySpecies()
	bBy := make(map[string][]int)
	for i, sp := range bSpecies {
		bBy[sp] = append(bBy[sp], i)
	}
	if len(aBy[anchor]) == 0 || len(bBy[anchor]) == 0 {
		return 0, false
	}
	species := make([]string, 0, len(aBy))
	for sp := range aBy {
		species = append(species, sp)
	}
	sort.Strings(species)

	lat := a.Lattice
	origin := a.Sites[aBy[anchor][0]].Frac
	best, found := math.Inf(1), false
	for _, j := range bBy[anchor] {
		shift := origin.Sub(bFrac[j])
		pairs := make([][2]int, 0, a.NumSites())
		ok := true
		for _, sp := range species {
			p, good := greedyPairs(lat, a, aBy[sp], bFrac, bBy[sp], shift)
			if !good {
				ok = false
				break
			}
			pairs = append(pairs, p...)
		}
		if !ok {
			continue
		}

		var mean structure.Vec3
		for _, p := range pairs {
			mean = mean.Add(bFrac[p[1]].Add(shift).Sub(a.Sites[p[0]].Frac).MinImage())
		}
		mean = mean.Scale(1 / float64(len(pairs)))

		var sq, worst float64
		for _, p := range pairs {
			d := lat.Cart(bFrac[p[1]].Add(shift).Sub(mean).Sub(a.Sites[p[0]].Frac).MinImage()).Norm() / norm
			sq += d * d
			worst = math.Max(worst, d)
		}
		if worst > c.Tol.STol {
			continue
		}
		if rms := math.Sqrt(sq / float64(len(pairs))); rms < best {
			best, found = rms, true
		}
	}
	return best, found
}

// greedyPairs pairs a's sites with b's by increasing distance.
func greedyPairs(lat *structure.Lattice, a *structure.Structure, ai []int, bFrac []structure.Vec3, bi []int, shift structure.Vec3) ([][2]int, bool) {
	if len(ai) != len(bi) {
		return nil, false
	}
	type cand struct {
		i, j int
		d    float64
	}
	all := make([]cand, 0, len(ai)*len(bi))
	for _, i := range ai {
		for _, j := range bi {
			all = append(all, cand{i, j, lat.Distance(a.Sites[i].Frac, bFrac[j].Add(shift))})
		}
	}
	sort.SliceStable(all, func(x, y int) bool { return all[x].d < all[y].d })
	usedA := make(map[int]bool, len(ai))
	usedB := make(map[int]bool, len(bi))
	out := make([][2]int, 0, len(ai))
	for _, cd := range all {
		if usedA[cd.i] || usedB[cd.j] {
			continue
		}
		usedA[cd.i], usedB[cd.j] = true, true
		out = append(out, [2]int{cd.i, cd.j})
	}
	return out, len(out) == len(ai)
}
