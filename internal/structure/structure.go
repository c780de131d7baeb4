package structure

import (
	"math"
	"sort"

	"github.com/rotisserie/eris"
)

// amuPerA3ToGPerCm3 converts amu/Å^3 to g/cm^3.
const amuPerA3ToGPerCm3 = 1.66053906660

// Site is one atom of a periodic structure.
type Site struct {
	Species string
	Frac    Vec3
}

// Structure is an ordered periodic crystal structure.
type Structure struct {
	Lattice *Lattice
	Sites   []Site
}

// New validates species and returns a structure with wrapped coordinates.
func New(l *Lattice, sites []Site) (*Structure, error) {
	if l == nil {
		return nil, eris.New("structure: nil lattice")
	}
	if len(sites) == 0 {
		return nil, eris.New("structure: no sites")
	}
	out := make([]Site, len(sites))
	for i, s := range sites {
		if _, err := LookupElement(s.Species); err != nil {
			return nil, err
		}
		for _, x := range s.Frac {
			if math.IsNaN(x) || math.IsInf(x, 0) {
				return nil, eris.Errorf("structure: site %d has non-finite coordinates", i)
			}
		}
		out[i] = Site{Species: s.Species, Frac: s.Frac.Wrap()}
	}
	return &Structure{Lattice: l, Sites: out}, nil
}

// NumSites is the number of sites.
func (s *Structure) NumSites() int { return len(s.Sites) }

// Species lists the species of every site in order.
func (s *Structure) Species() []string {
	out := make([]string, len(s.Sites))
	for i, site := range s.Sites {
		out[i] = site.Species
	}
	return out
}

// Composition counts the sites per element.
func (s *Structure) Composition() Composition {
	c := make(Composition)
	for _, site := range s.Sites {
		c[site.Species]++
	}
	return c
}

// Volume is the cell volume in Å^3.
func (s *Structure) Volume() float64 { return s.Lattice.Volume() }

// Density is the mass density in g/cm^3.
func (s *Structure) Density() float64 {
	return s.Composition().Weight() / s.Volume() * amuPerA3ToGPerCm3
}

// WithLattice keeps the fractional coordinates on a new lattice.
func (s *Structure) WithLattice(l *Lattice) *Structure {
	sites := make([]Site, len(s.Sites))
	copy(sites, s.Sites)
	return &Structure{Lattice: l, Sites: sites}
}

// Reduced re-expresses the structure on its reduced lattice basis.
func (s *Structure) Reduced() *Structure {
	rl, t := s.Lattice.Reduced()
	inv, err := IntMat3(t).Inverse()
	if err != nil {
		return s
	}
	sites := make([]Site, len(s.Sites))
	for i, site := range s.Sites {
		sites[i] = Site{Species: site.Species, Frac: site.Frac.MulMat(inv).Wrap()}
	}
	return &Structure{Lattice: rl, Sites: sites}
}

// SitesBySpecies groups site indices by species, sorted by symbol.
func (s *Structure) SitesBySpecies() map[string][]int {
	out := make(map[string][]int)
	for i, site := range s.Sites {
		out[site.Species] = append(out[site.Species], i)
	}
	return out
}

// RarestSpecies is the species with the fewest sites, ties by symbol.
func (s *Structure) RarestSpecies() string {
	by := s.SitesBySpecies()
	keys := make([]string, 0, len(by))
	for k := range by {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	best := ""
	for _, k := range keys {
		if best == "" || len(by[k]) < len(by[best]) {
			best = k
		}
	}
	return best
}

// HasSiteNear reports whether a site of the given species lies within tol Å
// of the fractional position f.
func (s *Structure) HasSiteNear(species string, f Vec3, tol float64) bool {
	for _, site := range s.Sites {
		if site.Species == species && s.Lattice.Distance(site.Frac, f) <= tol {
			return true
		}
	}
	return false
}
