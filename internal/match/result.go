// Package match decides whether two geometries describe the same entity and
// computes the coarse symmetry labels used to bin them before comparison.
package match

// Outcome is the tagged result of a comparison.
type Outcome int

const (
	NoMatch Outcome = iota
	Matched
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Matched:
		return "matched"
	case Failed:
		return "failed"
	default:
		return "no_match"
	}
}

// Result reports a comparison. RMS is the normalized site displacement of
// the best mapping when Outcome is Matched; Err explains a Failed outcome.
type Result struct {
	Outcome Outcome
	RMS     float64
	Err     error
}

// OK reports whether the geometries matched.
func (r Result) OK() bool { return r.Outcome == Matched }

func matched(rms float64) Result { return Result{Outcome: Matched, RMS: rms} }
func failed(err error) Result    { return Result{Outcome: Failed, Err: err} }

// Comparator bins and compares geometries of one kind.
type Comparator[G any] interface {
	// Label is a coarse key; geometries with different labels never match.
	Label(g G) string
	Match(a, b G) Result
}

// Tolerances configures the comparators.
type Tolerances struct {
	LTol            float64 // fractional length tolerance
	STol            float64 // site tolerance
	AngleTol        float64 // degrees
	Symprec         float64 // Å
	FallbackSymprec float64 // Å, used when Symprec finds no consistent symmetry
	BondTolerance   float64 // multiple of summed covalent radii
}

// DefaultTolerances are the usual builder settings.
func DefaultTolerances() Tolerances {
	return Tolerances{
		LTol:            0.2,
		STol:            0.3,
		AngleTol:        5,
		Symprec:         0.1,
		FallbackSymprec: 0.5,
		BondTolerance:   1.2,
	}
}
