package structure

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// Composition maps element symbols to amounts.
type Composition map[string]float64

const amountTol = 1e-8

// NewComposition counts the species of a site list.
func NewComposition(species []string) (Composition, error) {
	c := make(Composition)
	for _, s := range species {
		if _, err := LookupElement(s); err != nil {
			return nil, err
		}
		c[s]++
	}
	return c, nil
}

// Elements returns the element symbols in formula order.
func (c Composition) Elements() []string {
	out := make([]string, 0, len(c))
	for el, amt := range c {
		if amt > amountTol {
			out = append(out, el)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ki, kj := elementsBySymbol[out[i]].sortKey(), elementsBySymbol[out[j]].sortKey()
		if ki != kj {
			return ki < kj
		}
		return out[i] < out[j]
	})
	return out
}

// NumAtoms is the total amount.
func (c Composition) NumAtoms() float64 {
	var n float64
	for _, amt := range c {
		n += amt
	}
	return n
}

// Weight is the total mass in amu.
func (c Composition) Weight() float64 {
	var w float64
	for el, amt := range c {
		w += elementsBySymbol[el].Mass * amt
	}
	return w
}

// ReductionFactor is the largest integer dividing every amount.
func (c Composition) ReductionFactor() float64 {
	g := 0
	for _, amt := range c {
		r := math.Round(amt)
		if math.Abs(amt-r) > amountTol {
			return 1
		}
		g = gcd(g, int(r))
	}
	if g == 0 {
		return 1
	}
	return float64(g)
}

// Reduced divides every amount by the reduction factor.
func (c Composition) Reduced() Composition {
	f := c.ReductionFactor()
	out := make(Composition, len(c))
	for el, amt := range c {
		out[el] = amt / f
	}
	return out
}

// ReducedFormula is the electronegativity-ordered reduced formula, e.g. "Fe2O3".
func (c Composition) ReducedFormula() string {
	r := c.Reduced()
	var b strings.Builder
	for _, el := range r.Elements() {
		b.WriteString(el)
		b.WriteString(formatAmount(r[el], true))
	}
	return b.String()
}

// AnonymousFormula replaces elements with letters ordered by amount, e.g. "A2B3".
func (c Composition) AnonymousFormula() string {
	r := c.Reduced()
	amts := make([]float64, 0, len(r))
	for _, amt := range r {
		if amt > amountTol {
			amts = append(amts, amt)
		}
	}
	sort.Float64s(amts)
	var b strings.Builder
	for i, amt := range amts {
		b.WriteByte(byte('A' + i%26))
		b.WriteString(formatAmount(amt, true))
	}
	return b.String()
}

// AlphabeticalFormula lists every element with its amount, sorted by
// symbol, e.g. "C1 H4".
func (c Composition) AlphabeticalFormula() string {
	els := c.Elements()
	sort.Strings(els)
	parts := make([]string, len(els))
	for i, el := range els {
		parts[i] = el + formatAmount(c[el], false)
	}
	return strings.Join(parts, " ")
}

// Chemsys is the sorted, hyphen-joined element list, e.g. "Fe-O".
func (c Composition) Chemsys() string {
	els := c.Elements()
	sort.Strings(els)
	return strings.Join(els, "-")
}

// Equal reports whether both compositions hold the same amounts.
func (c Composition) Equal(o Composition) bool {
	if len(c.Elements()) != len(o.Elements()) {
		return false
	}
	for el, amt := range c {
		if math.Abs(amt-o[el]) > amountTol {
			return false
		}
	}
	return true
}

// ParseFormula reads a simple formula such as "Fe2O3" or "C1 H4".
func ParseFormula(formula string) (Composition, error) {
	c := make(Composition)
	s := strings.ReplaceAll(formula, " ", "")
	for i := 0; i < len(s); {
		if s[i] < 'A' || s[i] > 'Z' {
			return nil, eris.Errorf("structure: malformed formula %q", formula)
		}
		j := i + 1
		for j < len(s) && s[j] >= 'a' && s[j] <= 'z' {
			j++
		}
		el := s[i:j]
		if _, err := LookupElement(el); err != nil {
			return nil, err
		}
		k := j
		for k < len(s) && (s[k] == '.' || (s[k] >= '0' && s[k] <= '9')) {
			k++
		}
		amt := 1.0
		if k > j {
			v, err := strconv.ParseFloat(s[j:k], 64)
			if err != nil {
				return nil, eris.Wrapf(err, "structure: malformed formula %q", formula)
			}
			amt = v
		}
		c[el] += amt
		i = k
	}
	if len(c) == 0 {
		return nil, eris.Errorf("structure: empty formula %q", formula)
	}
	return c, nil
}

func formatAmount(amt float64, omitOne bool) string {
	if omitOne && math.Abs(amt-1) < amountTol {
		return ""
	}
	if r := math.Round(amt); math.Abs(amt-r) < amountTol {
		return strconv.Itoa(int(r))
	}
	return strconv.FormatFloat(amt, 'f', -1, 64)
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
