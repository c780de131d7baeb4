package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/materials-cli/internal/structure"
)

func fccPrimitive(a float64) structure.Mat3 {
	h := a / 2
	return structure.Mat3{{0, h, h}, {h, 0, h}, {h, h, 0}}
}

func TestCrystalMatch_ConventionalVsPrimitive(t *testing.T) {
	c := NewCrystalComparator(DefaultTolerances())
	conv := rockSalt(t, 5.64)
	prim := crystal(t, fccPrimitive(5.64),
		structure.Site{Species: "Na", Frac: structure.Vec3{0, 0, 0}},
		structure.Site{Species: "Cl", Frac: structure.Vec3{0.5, 0.5, 0.5}},
	)
	res := c.Match(conv, prim)
	require.Equal(t, Matched, res.Outcome, "err: %v", res.Err)
	assert.InDelta(t, 0, res.RMS, 1e-6)
	assert.True(t, c.Match(prim, conv).OK())
}

func TestCrystalMatch_ScaledAndShifted(t *testing.T) {
	c := NewCrystalComparator(DefaultTolerances())
	a := rockSalt(t, 5.64)
	b := rockSalt(t, 5.75)
	for i := range b.Sites {
		b.Sites[i].Frac = b.Sites[i].Frac.Add(structure.Vec3{0.1, 0.2, 0.3}).Wrap()
	}
	// Permute the axes of b.
	for i := range b.Sites {
		f := b.Sites[i].Frac
		b.Sites[i].Frac = structure.Vec3{f[2], f[0], f[1]}
	}
	assert.True(t, c.Match(a, b).OK())
}

func TestCrystalMatch_SmallDistortion(t *testing.T) {
	c := NewCrystalComparator(DefaultTolerances())
	a := rockSalt(t, 5.64)
	b := crystal(t, structure.Mat3{{5.70, 0, 0}, {0, 5.62, 0}, {0.05, 0, 5.60}}, rockSalt(t, 5.64).Sites...)
	b.Sites[0].Frac = b.Sites[0].Frac.Add(structure.Vec3{0.01, 0, 0})
	res := c.Match(a, b)
	require.Equal(t, Matched, res.Outcome)
	assert.Less(t, res.RMS, 0.1)
}

func TestCrystalMatch_DifferentStructures(t *testing.T) {
	c := NewCrystalComparator(DefaultTolerances())
	rs := crystal(t, fccPrimitive(5.64),
		structure.Site{Species: "Na", Frac: structure.Vec3{0, 0, 0}},
		structure.Site{Species: "Cl", Frac: structure.Vec3{0.5, 0.5, 0.5}},
	)
	zb := crystal(t, fccPrimitive(5.64),
		structure.Site{Species: "Na", Frac: structure.Vec3{0, 0, 0}},
		structure.Site{Species: "Cl", Frac: structure.Vec3{0.25, 0.25, 0.25}},
	)
	cscl := crystal(t, cubic(3.55),
		structure.Site{Species: "Na", Frac: structure.Vec3{0, 0, 0}},
		structure.Site{Species: "Cl", Frac: structure.Vec3{0.5, 0.5, 0.5}},
	)
	kcl := crystal(t, fccPrimitive(6.29),
		structure.Site{Species: "K", Frac: structure.Vec3{0, 0, 0}},
		structure.Site{Species: "Cl", Frac: structure.Vec3{0.5, 0.5, 0.5}},
	)

	assert.Equal(t, NoMatch, c.Match(rs, zb).Outcome)
	assert.Equal(t, NoMatch, c.Match(rs, cscl).Outcome)
	assert.Equal(t, NoMatch, c.Match(rs, kcl).Outcome)
}

func TestCrystalMatch_Nil(t *testing.T) {
	c := NewCrystalComparator(DefaultTolerances())
	res := c.Match(nil, rockSalt(t, 5.64))
	assert.Equal(t, Failed, res.Outcome)
	assert.Error(t, res.Err)
}

func TestCrystalLabel(t *testing.T) {
	c := NewCrystalComparator(DefaultTolerances())
	assert.Equal(t, "NaCl|m-3m", c.Label(rockSalt(t, 5.64)))
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "matched", Matched.String())
	assert.Equal(t, "no_match", NoMatch.String())
	assert.Equal(t, "failed", Failed.String())
}
