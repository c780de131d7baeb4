package structure

import (
	"math"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/mat"
)

// Vec3 is a 3-vector in fractional or cartesian coordinates.
type Vec3 [3]float64

func (v Vec3) Add(o Vec3) Vec3      { return Vec3{v[0] + o[0], v[1] + o[1], v[2] + o[2]} }
func (v Vec3) Sub(o Vec3) Vec3      { return Vec3{v[0] - o[0], v[1] - o[1], v[2] - o[2]} }
func (v Vec3) Scale(f float64) Vec3 { return Vec3{v[0] * f, v[1] * f, v[2] * f} }
func (v Vec3) Dot(o Vec3) float64   { return v[0]*o[0] + v[1]*o[1] + v[2]*o[2] }
func (v Vec3) Norm() float64        { return math.Sqrt(v.Dot(v)) }

// Cross returns v x o.
func (v Vec3) Cross(o Vec3) Vec3 {
	return Vec3{
		v[1]*o[2] - v[2]*o[1],
		v[2]*o[0] - v[0]*o[2],
		v[0]*o[1] - v[1]*o[0],
	}
}

// Wrap maps fractional coordinates into [0, 1).
func (v Vec3) Wrap() Vec3 {
	var out Vec3
	for i, x := range v {
		x -= math.Floor(x)
		if x >= 1-1e-10 {
			x = 0
		}
		out[i] = x
	}
	return out
}

// MinImage maps a fractional difference into [-0.5, 0.5).
func (v Vec3) MinImage() Vec3 {
	var out Vec3
	for i, x := range v {
		out[i] = x - math.Round(x)
	}
	return out
}

// Mat3 is a 3x3 matrix stored as rows.
type Mat3 [3]Vec3

// Identity3 is the 3x3 identity.
var Identity3 = Mat3{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}

// IntMat3 converts an integer matrix.
func IntMat3(m [3][3]int) Mat3 {
	var out Mat3
	for i := range m {
		for j := range m[i] {
			out[i][j] = float64(m[i][j])
		}
	}
	return out
}

func (m Mat3) dense() *mat.Dense {
	d := mat.NewDense(3, 3, nil)
	for i := range m {
		for j := range m[i] {
			d.Set(i, j, m[i][j])
		}
	}
	return d
}

func fromDense(d mat.Matrix) Mat3 {
	var out Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = d.At(i, j)
		}
	}
	return out
}

// Det is the determinant.
func (m Mat3) Det() float64 { return mat.Det(m.dense()) }

// Inverse returns m^-1.
func (m Mat3) Inverse() (Mat3, error) {
	var inv mat.Dense
	if err := inv.Inverse(m.dense()); err != nil {
		return Mat3{}, eris.Wrap(err, "structure: invert matrix")
	}
	return fromDense(&inv), nil
}

// Mul returns m . o.
func (m Mat3) Mul(o Mat3) Mat3 {
	var out mat.Dense
	out.Mul(m.dense(), o.dense())
	return fromDense(&out)
}

// Transpose returns m^T.
func (m Mat3) Transpose() Mat3 {
	var out Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = m[j][i]
		}
	}
	return out
}

// MulMat returns the row vector v . m.
func (v Vec3) MulMat(m Mat3) Vec3 {
	var out Vec3
	for j := 0; j < 3; j++ {
		out[j] = v[0]*m[0][j] + v[1]*m[1][j] + v[2]*m[2][j]
	}
	return out
}

// Lattice holds the three lattice vectors as rows; cartesian = frac . Matrix.
type Lattice struct {
	Matrix Mat3
	inv    Mat3
}

// NewLattice validates the vectors and precomputes the inverse.
func NewLattice(rows Mat3) (*Lattice, error) {
	if det := rows.Det(); math.Abs(det) < 1e-8 || math.IsNaN(det) {
		return nil, eris.Errorf("structure: singular lattice (det %.3g)", det)
	}
	inv, err := rows.Inverse()
	if err != nil {
		return nil, err
	}
	return &Lattice{Matrix: rows, inv: inv}, nil
}

// Volume is the absolute cell volume.
func (l *Lattice) Volume() float64 {
	return math.Abs(l.Matrix[0].Dot(l.Matrix[1].Cross(l.Matrix[2])))
}

// Lengths returns |a|, |b|, |c|.
func (l *Lattice) Lengths() Vec3 {
	return Vec3{l.Matrix[0].Norm(), l.Matrix[1].Norm(), l.Matrix[2].Norm()}
}

// Angles returns alpha, beta, gamma in degrees.
func (l *Lattice) Angles() Vec3 {
	m := l.Matrix
	return Vec3{Angle(m[1], m[2]), Angle(m[0], m[2]), Angle(m[0], m[1])}
}

// Angle returns the angle between two vectors in degrees.
func Angle(a, b Vec3) float64 {
	c := a.Dot(b) / (a.Norm() * b.Norm())
	c = math.Max(-1, math.Min(1, c))
	return math.Acos(c) * 180 / math.Pi
}

// Cart converts fractional to cartesian coordinates.
func (l *Lattice) Cart(f Vec3) Vec3 { return f.MulMat(l.Matrix) }

// Frac converts cartesian to fractional coordinates.
func (l *Lattice) Frac(c Vec3) Vec3 { return c.MulMat(l.inv) }

// Distance is the minimum-image cartesian distance between two fractional
// positions.
func (l *Lattice) Distance(a, b Vec3) float64 {
	return l.Cart(a.Sub(b).MinImage()).Norm()
}

// Scaled returns the lattice scaled isotropically to the given volume.
func (l *Lattice) Scaled(volume float64) *Lattice {
	f := math.Cbrt(volume / l.Volume())
	var rows Mat3
	for i := range rows {
		rows[i] = l.Matrix[i].Scale(f)
	}
	return &Lattice{Matrix: rows, inv: l.inv.scaleBy(1 / f)}
}

func (m Mat3) scaleBy(f float64) Mat3 {
	var out Mat3
	for i := range m {
		out[i] = m[i].Scale(f)
	}
	return out
}

// Reduced returns an equivalent right-handed basis of short, nearly
// orthogonal vectors sorted by length, and the integer matrix T with
// reduced rows = T . original rows.
func (l *Lattice) Reduced() (*Lattice, [3][3]int) {
	b := l.Matrix
	t := [3][3]int{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	for iter := 0; iter < 100; iter++ {
		changed := false
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				if i == j {
					continue
				}
				mu := b[i].Dot(b[j]) / b[j].Dot(b[j])
				if math.Abs(mu) <= 0.5+1e-8 {
					continue
				}
				k := math.Round(mu)
				next := b[i].Sub(b[j].Scale(k))
				if next.Norm() >= b[i].Norm()-1e-8 {
					continue
				}
				b[i] = next
				for c := 0; c < 3; c++ {
					t[i][c] -= int(k) * t[j][c]
				}
				changed = true
			}
		}
		if !changed {
			break
		}
	}

	idx := []int{0, 1, 2}
	for i := 0; i < 3; i++ {
		for j := i + 1; j < 3; j++ {
			if b[idx[j]].Norm() < b[idx[i]].Norm()-1e-8 {
				idx[i], idx[j] = idx[j], idx[i]
			}
		}
	}
	var rows Mat3
	var tt [3][3]int
	for i, k := range idx {
		rows[i] = b[k]
		tt[i] = t[k]
	}
	if rows[0].Dot(rows[1].Cross(rows[2])) < 0 {
		rows[2] = rows[2].Scale(-1)
		for c := 0; c < 3; c++ {
			tt[2][c] = -tt[2][c]
		}
	}
	out, err := NewLattice(rows)
	if err != nil {
		return l, [3][3]int{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	}
	return out, tt
}

// IntDet is the determinant of an integer 3x3 matrix.
func IntDet(m [3][3]int) int {
	return m[0][0]*(m[1][1]*m[2][2]-m[1][2]*m[2][1]) -
		m[0][1]*(m[1][0]*m[2][2]-m[1][2]*m[2][0]) +
		m[0][2]*(m[1][0]*m[2][1]-m[1][1]*m[2][0])
}
