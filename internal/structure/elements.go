// Package structure holds the geometric representations compared and
// summarized by the builders: periodic crystal structures, molecules, their
// compositions, and the element data both depend on.
package structure

import "github.com/rotisserie/eris"

// Element is the per-element data used for formulas, densities and bonds.
type Element struct {
	Symbol string
	Z      int
	Mass   float64 // amu
	// Electronegativity is the Pauling value, 0 when undefined.
	Electronegativity float64
	CovalentRadius    float64 // angstrom
}

var elementTable = []Element{
	{"H", 1, 1.008, 2.20, 0.31},
	{"He", 2, 4.0026, 0, 0.28},
	{"Li", 3, 6.94, 0.98, 1.28},
	{"Be", 4, 9.0122, 1.57, 0.96},
	{"B", 5, 10.81, 2.04, 0.84},
	{"C", 6, 12.011, 2.55, 0.76},
	{"N", 7, 14.007, 3.04, 0.71},
	{"O", 8, 15.999, 3.44, 0.66},
	{"F", 9, 18.998, 3.98, 0.57},
	{"Ne", 10, 20.180, 0, 0.58},
	{"Na", 11, 22.990, 0.93, 1.66},
	{"Mg", 12, 24.305, 1.31, 1.41},
	{"Al", 13, 26.982, 1.61, 1.21},
	{"Si", 14, 28.085, 1.90, 1.11},
	{"P", 15, 30.974, 2.19, 1.07},
	{"S", 16, 32.06, 2.58, 1.05},
	{"Cl", 17, 35.45, 3.16, 1.02},
	{"Ar", 18, 39.948, 0, 1.06},
	{"K", 19, 39.098, 0.82, 2.03},
	{"Ca", 20, 40.078, 1.00, 1.76},
	{"Sc", 21, 44.956, 1.36, 1.70},
	{"Ti", 22, 47.867, 1.54, 1.60},
	{"V", 23, 50.942, 1.63, 1.53},
	{"Cr", 24, 51.996, 1.66, 1.39},
	{"Mn", 25, 54.938, 1.55, 1.39},
	{"Fe", 26, 55.845, 1.83, 1.32},
	{"Co", 27, 58.933, 1.88, 1.26},
	{"Ni", 28, 58.693, 1.91, 1.24},
	{"Cu", 29, 63.546, 1.90, 1.32},
	{"Zn", 30, 65.38, 1.65, 1.22},
	{"Ga", 31, 69.723, 1.81, 1.22},
	{"Ge", 32, 72.630, 2.01, 1.20},
	{"As", 33, 74.922, 2.18, 1.19},
	{"Se", 34, 78.971, 2.55, 1.20},
	{"Br", 35, 79.904, 2.96, 1.20},
	{"Kr", 36, 83.798, 3.00, 1.16},
	{"Rb", 37, 85.468, 0.82, 2.20},
	{"Sr", 38, 87.62, 0.95, 1.95},
	{"Y", 39, 88.906, 1.22, 1.90},
	{"Zr", 40, 91.224, 1.33, 1.75},
	{"Nb", 41, 92.906, 1.60, 1.64},
	{"Mo", 42, 95.95, 2.16, 1.54},
	{"Tc", 43, 98.0, 1.90, 1.47},
	{"Ru", 44, 101.07, 2.20, 1.46},
	{"Rh", 45, 102.91, 2.28, 1.42},
	{"Pd", 46, 106.42, 2.20, 1.39},
	{"Ag", 47, 107.87, 1.93, 1.45},
	{"Cd", 48, 112.41, 1.69, 1.44},
	{"In", 49, 114.82, 1.78, 1.42},
	{"Sn", 50, 118.71, 1.96, 1.39},
	{"Sb", 51, 121.76, 2.05, 1.39},
	{"Te", 52, 127.60, 2.10, 1.38},
	{"I", 53, 126.90, 2.66, 1.39},
	{"Xe", 54, 131.29, 2.60, 1.40},
	{"Cs", 55, 132.91, 0.79, 2.44},
	{"Ba", 56, 137.33, 0.89, 2.15},
	{"La", 57, 138.91, 1.10, 2.07},
	{"Ce", 58, 140.12, 1.12, 2.04},
	{"Pr", 59, 140.91, 1.13, 2.03},
	{"Nd", 60, 144.24, 1.14, 2.01},
	{"Pm", 61, 145.0, 1.13, 1.99},
	{"Sm", 62, 150.36, 1.17, 1.98},
	{"Eu", 63, 151.96, 1.20, 1.98},
	{"Gd", 64, 157.25, 1.20, 1.96},
	{"Tb", 65, 158.93, 1.10, 1.94},
	{"Dy", 66, 162.50, 1.22, 1.92},
	{"Ho", 67, 164.93, 1.23, 1.92},
	{"Er", 68, 167.26, 1.24, 1.89},
	{"Tm", 69, 168.93, 1.25, 1.90},
	{"Yb", 70, 173.05, 1.10, 1.87},
	{"Lu", 71, 174.97, 1.27, 1.87},
	{"Hf", 72, 178.49, 1.30, 1.75},
	{"Ta", 73, 180.95, 1.50, 1.70},
	{"W", 74, 183.84, 2.36, 1.62},
	{"Re", 75, 186.21, 1.90, 1.51},
	{"Os", 76, 190.23, 2.20, 1.44},
	{"Ir", 77, 192.22, 2.20, 1.41},
	{"Pt", 78, 195.08, 2.28, 1.36},
	{"Au", 79, 196.97, 2.54, 1.36},
	{"Hg", 80, 200.59, 2.00, 1.32},
	{"Tl", 81, 204.38, 1.62, 1.45},
	{"Pb", 82, 207.2, 2.33, 1.46},
	{"Bi", 83, 208.98, 2.02, 1.48},
	{"Po", 84, 209.0, 2.00, 1.40},
	{"At", 85, 210.0, 2.20, 1.50},
	{"Rn", 86, 222.0, 2.20, 1.50},
	{"Fr", 87, 223.0, 0.70, 2.60},
	{"Ra", 88, 226.0, 0.90, 2.21},
	{"Ac", 89, 227.0, 1.10, 2.15},
	{"Th", 90, 232.04, 1.30, 2.06},
	{"Pa", 91, 231.04, 1.50, 2.00},
	{"U", 92, 238.03, 1.38, 1.96},
	{"Np", 93, 237.0, 1.36, 1.90},
	{"Pu", 94, 244.0, 1.28, 1.87},
}

var elementsBySymbol = func() map[string]Element {
	m := make(map[string]Element, len(elementTable))
	for _, e := range elementTable {
		m[e.Symbol] = e
	}
	return m
}()

// LookupElement returns the element with the given symbol.
func LookupElement(symbol string) (Element, error) {
	e, ok := elementsBySymbol[symbol]
	if !ok {
		return Element{}, eris.Errorf("structure: unknown element %q", symbol)
	}
	return e, nil
}

// sortKey orders elements for formulas: electronegativity ascending with
// undefined values last.
func (e Element) sortKey() float64 {
	if e.Electronegativity == 0 {
		return 100
	}
	return e.Electronegativity
}
