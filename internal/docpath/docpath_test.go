package docpath

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDoc() map[string]any {
	return map[string]any{
		"task_id": "mp-1",
		"output": map[string]any{
			"energy_per_atom": -5.25,
			"sites": []any{
				map[string]any{"label": "Fe", "abc": []any{0.0, 0.5, 0.5}},
				map[string]any{"label": "O"},
			},
		},
		"count":    3,
		"updated":  "2024-03-01T10:00:00.5Z",
		"tags":     []string{"core", "beta"},
		"is_valid": true,
	}
}

func TestGet_NestedMapsAndIndices(t *testing.T) {
	doc := sampleDoc()

	v, ok := Get(doc, "output.sites.0.label")
	require.True(t, ok)
	assert.Equal(t, "Fe", v)

	v, ok = Get(doc, "output.sites.0.abc.1")
	require.True(t, ok)
	assert.Equal(t, 0.5, v)
}

func TestGet_Missing(t *testing.T) {
	doc := sampleDoc()

	for _, path := range []string{
		"output.missing",
		"output.sites.5.label",
		"output.sites.x",
		"task_id.deeper",
		"output.sites.-1",
	} {
		_, ok := Get(doc, path)
		assert.False(t, ok, path)
	}
}

func TestGet_EmptyPathReturnsDoc(t *testing.T) {
	doc := sampleDoc()
	v, ok := Get(doc, "")
	require.True(t, ok)
	assert.Equal(t, doc, v)
}

func TestSet_CreatesIntermediateMaps(t *testing.T) {
	doc := map[string]any{}
	require.NoError(t, Set(doc, "a.b.c", 1))

	v, ok := Get(doc, "a.b.c")
	require.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestSet_IntoSliceElement(t *testing.T) {
	doc := sampleDoc()
	require.NoError(t, Set(doc, "output.sites.1.label", "O2-"))

	s, ok := String(doc, "output.sites.1.label")
	require.True(t, ok)
	assert.Equal(t, "O2-", s)
}

func TestSet_Errors(t *testing.T) {
	doc := sampleDoc()
	assert.Error(t, Set(doc, "", 1))
	assert.Error(t, Set(doc, "output.sites.9.label", 1))
	assert.Error(t, Set(doc, "task_id.sub", 1))
}

func TestTypedAccessors(t *testing.T) {
	doc := sampleDoc()

	f, ok := Float(doc, "output.energy_per_atom")
	require.True(t, ok)
	assert.Equal(t, -5.25, f)

	f, ok = Float(doc, "count")
	require.True(t, ok)
	assert.Equal(t, 3.0, f)

	_, ok = Float(doc, "task_id")
	assert.False(t, ok)

	b, ok := Bool(doc, "is_valid")
	require.True(t, ok)
	assert.True(t, b)

	tags, ok := Strings(doc, "tags")
	require.True(t, ok)
	assert.Equal(t, []string{"core", "beta"}, tags)

	ts, ok := Time(doc, "updated")
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 3, 1, 10, 0, 0, 500_000_000, time.UTC), ts)
}

func TestToTime_Forms(t *testing.T) {
	now := time.Date(2023, 1, 2, 3, 4, 5, 0, time.FixedZone("X", 3600))

	got, ok := ToTime(now)
	require.True(t, ok)
	assert.True(t, got.Equal(now))
	assert.Equal(t, time.UTC, got.Location())

	_, ok = ToTime("not a time")
	assert.False(t, ok)

	_, ok = ToTime(42)
	assert.False(t, ok)
}

func TestDotAccessor(t *testing.T) {
	doc := map[string]any{}
	require.NoError(t, Dot.Set(doc, "x.y", "z"))
	v, ok := Dot.Get(doc, "x.y")
	require.True(t, ok)
	assert.Equal(t, "z", v)
}
