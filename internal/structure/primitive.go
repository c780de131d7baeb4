package structure

import (
	"math"
	"sort"
)

// Primitive returns the primitive cell of s, or s itself when s has no pure
// translations beyond its lattice vectors. tol is the site tolerance in Å.
func (s *Structure) Primitive(tol float64) *Structure {
	trans := s.translations(tol)
	if len(trans) == 0 {
		return s
	}
	n := len(trans) + 1
	if len(s.Sites)%n != 0 {
		return s
	}
	target := s.Volume() / float64(n)

	// Every pure translation and every lattice vector is a primitive lattice
	// vector; the shortest triple with the primitive volume is a basis.
	var cands []Vec3
	for i := 0; i < 3; i++ {
		cands = append(cands, s.Lattice.Matrix[i])
	}
	for _, t := range trans {
		for a := -1; a <= 1; a++ {
			for b := -1; b <= 1; b++ {
				for c := -1; c <= 1; c++ {
					f := t.MinImage().Add(Vec3{float64(a), float64(b), float64(c)})
					cands = append(cands, s.Lattice.Cart(f))
				}
			}
		}
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].Norm() < cands[j].Norm() })
	if len(cands) > 48 {
		cands = cands[:48]
	}

	var basis Mat3
	found := false
	for i := 0; i < len(cands) && !found; i++ {
		for j := i + 1; j < len(cands) && !found; j++ {
			for k := j + 1; k < len(cands) && !found; k++ {
				vol := math.Abs(cands[i].Dot(cands[j].Cross(cands[k])))
				if math.Abs(vol-target) < 1e-3*target {
					basis = Mat3{cands[i], cands[j], cands[k]}
					found = true
				}
			}
		}
	}
	if !found {
		return s
	}
	if basis[0].Dot(basis[1].Cross(basis[2])) < 0 {
		basis[2] = basis[2].Scale(-1)
	}
	lat, err := NewLattice(basis)
	if err != nil {
		return s
	}

	prim := &Structure{Lattice: lat}
	for _, site := range s.Sites {
		f := lat.Frac(s.Lattice.Cart(site.Frac)).Wrap()
		if !prim.HasSiteNear(site.Species, f, tol) {
			prim.Sites = append(prim.Sites, Site{Species: site.Species, Frac: f})
		}
	}
	if len(prim.Sites)*n != len(s.Sites) {
		return s
	}
	return prim.Reduced()
}

// translations finds the fractional translations, other than lattice
// vectors, that map the structure onto itself.
func (s *Structure) translations(tol float64) []Vec3 {
	anchor := s.RarestSpecies()
	idx := s.SitesBySpecies()[anchor]
	if len(idx) < 2 {
		return nil
	}
	origin := s.Sites[idx[0]].Frac
	var out []Vec3
	for _, j := range idx[1:] {
		t := s.Sites[j].Frac.Sub(origin).Wrap()
		if s.Lattice.Cart(t.MinImage()).Norm() <= tol {
			continue
		}
		if s.isTranslation(t, tol) {
			out = append(out, t)
		}
	}
	return out
}

func (s *Structure) isTranslation(t Vec3, tol float64) bool {
	for _, site := range s.Sites {
		if !s.HasSiteNear(site.Species, site.Frac.Add(t), tol) {
			return false
		}
	}
	return true
}
