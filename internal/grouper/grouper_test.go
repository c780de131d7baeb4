package grouper

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sells-group/materials-cli/internal/docpath"
	"github.com/sells-group/materials-cli/internal/match"
	"github.com/sells-group/materials-cli/internal/model"
	"github.com/sells-group/materials-cli/internal/structure"
)

// lineComparator matches numbers within tol of each other and bins them by
// integer part.
type lineComparator struct{ tol float64 }

func (lineComparator) Label(x float64) string { return fmt.Sprintf("%d", int(math.Floor(x))) }

func (c lineComparator) Match(a, b float64) match.Result {
	if math.Abs(a-b) <= c.tol {
		return match.Result{Outcome: match.Matched, RMS: math.Abs(a - b)}
	}
	return match.Result{Outcome: match.NoMatch}
}

func lineGeometry(t model.Task) (float64, error) {
	x, ok := docpath.Float(t.Doc, "x")
	if !ok {
		return 0, errors.New("no x")
	}
	return x, nil
}

func task(id string, kind model.CalcKind, x any, sandboxes ...string) model.Task {
	if len(sandboxes) == 0 {
		sandboxes = []string{model.DefaultSandbox}
	}
	doc := map[string]any{"task_id": id}
	if x != nil {
		doc["x"] = x
	}
	return model.Task{ID: id, Kind: kind, Sandboxes: sandboxes, Doc: doc}
}

func groupIDs(groups []model.Group) [][]string {
	out := make([][]string, len(groups))
	for i, g := range groups {
		out[i] = g.IDs()
	}
	return out
}

func lineGrouper(opts ...Option[float64]) *Grouper[float64] {
	kinds := model.NewKindSet(string(model.KindStructureOptimization), string(model.KindStatic))
	return New[float64](lineComparator{tol: 0.1}, lineGeometry, kinds, opts...)
}

func TestSandboxPartition(t *testing.T) {
	tests := []struct {
		name string
		in   [][]string
		want [][]string
	}{
		{"single", [][]string{{"core"}}, [][]string{{"core"}}},
		{"nested", [][]string{{"core", "alpha"}, {"core"}}, [][]string{{"alpha"}, {"core"}}},
		{"chain", [][]string{{"a", "b"}, {"b", "c"}}, [][]string{{"a"}, {"b"}, {"c"}}},
		{"identical", [][]string{{"a", "b"}, {"b", "a"}}, [][]string{{"a", "b"}}},
		{"disjoint", [][]string{{"x"}, {"y", "z"}}, [][]string{{"x"}, {"y", "z"}}},
		{"empty", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SandboxPartition(tt.in))
		})
	}
}

func TestSandboxPartition_CoversEveryInput(t *testing.T) {
	in := [][]string{
		{"core", "alpha"}, {"core"}, {"alpha", "beta", "gamma"}, {"gamma"}, {"delta", "core"},
	}
	cells := SandboxPartition(in)

	seen := make(map[string]bool)
	for _, c := range cells {
		for _, tag := range c {
			assert.False(t, seen[tag], "cells overlap on %s", tag)
			seen[tag] = true
		}
	}

	for _, set := range in {
		var cover []string
		for _, c := range cells {
			if Intersects(set, c) {
				cover = append(cover, c...)
			}
		}
		slices.Sort(cover)
		want := slices.Clone(set)
		slices.Sort(want)
		assert.Equal(t, want, cover, "input %v", set)
	}
}

func TestGroup_BridgingMergesSubgroups(t *testing.T) {
	tasks := []model.Task{
		task("mp-1", model.KindStructureOptimization, 1.0),
		task("mp-2", model.KindStructureOptimization, 1.18),
		task("mp-3", model.KindStatic, 1.09),
		task("mp-4", model.KindStructureOptimization, 2.5),
	}
	got := groupIDs(lineGrouper().Group(tasks))
	assert.Equal(t, [][]string{{"mp-1", "mp-2", "mp-3"}, {"mp-4"}}, got)
}

func TestGroup_OrderIndependent(t *testing.T) {
	tasks := []model.Task{
		task("mp-10", model.KindStructureOptimization, 3.0),
		task("mp-2", model.KindStructureOptimization, 3.05),
		task("mp-7", model.KindStatic, 3.5),
		task("mp-4", model.KindStructureOptimization, 3.45),
		task("mp-5", model.KindStatic, 1.2),
	}
	want := groupIDs(lineGrouper().Group(tasks))

	reversed := slices.Clone(tasks)
	slices.Reverse(reversed)
	assert.Equal(t, want, groupIDs(lineGrouper().Group(reversed)))

	rotated := append(slices.Clone(tasks[2:]), tasks[:2]...)
	assert.Equal(t, want, groupIDs(lineGrouper().Group(rotated)))
}

func TestGroup_FiltersKindsAndSkipsUnreadable(t *testing.T) {
	tasks := []model.Task{
		task("mp-1", model.KindStructureOptimization, 1.0),
		task("mp-2", model.KindNSCFLine, 1.0),
		task("mp-3", model.KindStatic, nil),
		task("mp-4", model.KindStatic, 1.02),
	}
	got := groupIDs(lineGrouper().Group(tasks))
	assert.Equal(t, [][]string{{"mp-1", "mp-4"}}, got)
}

func TestGroup_NoTasks(t *testing.T) {
	assert.Empty(t, lineGrouper().Group(nil))
}

func TestGroup_SandboxCells(t *testing.T) {
	tasks := []model.Task{
		task("mp-1", model.KindStructureOptimization, 1.0, "core", "alpha"),
		task("mp-2", model.KindStatic, 1.0, "core"),
		task("mp-3", model.KindStatic, 1.01, "beta"),
	}
	groups := lineGrouper().Group(tasks)
	require.Len(t, groups, 3)

	assert.Equal(t, []string{"alpha"}, groups[0].Partition)
	assert.Equal(t, []string{"mp-1"}, groups[0].IDs())
	assert.Equal(t, []string{"beta"}, groups[1].Partition)
	assert.Equal(t, []string{"mp-3"}, groups[1].IDs())
	assert.Equal(t, []string{"core"}, groups[2].Partition)
	assert.Equal(t, []string{"mp-1", "mp-2"}, groups[2].IDs())
}

func TestGroup_Split(t *testing.T) {
	byKind := WithSplit(func(tk model.Task, _ float64) string {
		if tk.Kind == model.KindStatic {
			return "static"
		}
		return "relax"
	})
	tasks := []model.Task{
		task("mp-1", model.KindStructureOptimization, 1.0),
		task("mp-2", model.KindStatic, 1.0),
		task("mp-3", model.KindStructureOptimization, 1.05),
	}
	got := groupIDs(lineGrouper(byKind).Group(tasks))
	assert.Equal(t, [][]string{{"mp-1", "mp-3"}, {"mp-2"}}, got)
}

func rockSaltDoc(a float64) map[string]any {
	return map[string]any{
		"lattice": map[string]any{"matrix": []any{
			[]any{a, 0.0, 0.0}, []any{0.0, a, 0.0}, []any{0.0, 0.0, a},
		}},
		"sites": []any{
			map[string]any{"species": "Na", "abc": []any{0.0, 0.0, 0.0}},
			map[string]any{"species": "Na", "abc": []any{0.5, 0.5, 0.0}},
			map[string]any{"species": "Na", "abc": []any{0.5, 0.0, 0.5}},
			map[string]any{"species": "Na", "abc": []any{0.0, 0.5, 0.5}},
			map[string]any{"species": "Cl", "abc": []any{0.5, 0.0, 0.0}},
			map[string]any{"species": "Cl", "abc": []any{0.0, 0.5, 0.0}},
			map[string]any{"species": "Cl", "abc": []any{0.0, 0.0, 0.5}},
			map[string]any{"species": "Cl", "abc": []any{0.5, 0.5, 0.5}},
		},
	}
}

func crystalTask(id string, doc map[string]any, magnetization any) model.Task {
	out := map[string]any{"structure": doc}
	if magnetization != nil {
		out["total_magnetization"] = magnetization
	}
	return model.Task{
		ID:        id,
		Kind:      model.KindStructureOptimization,
		Sandboxes: []string{model.DefaultSandbox},
		Doc:       map[string]any{"task_id": id, "output": out},
	}
}

func crystalGeometry(t model.Task) (*structure.Structure, error) {
	v, ok := docpath.Get(t.Doc, model.FieldStructure)
	if !ok {
		return nil, errors.New("no structure")
	}
	return structure.FromDoc(v)
}

func TestGroup_CrystalsWithMagneticSplit(t *testing.T) {
	cmp := match.NewCrystalComparator(match.DefaultTolerances())
	kinds := model.NewKindSet(string(model.KindStructureOptimization))

	tasks := []model.Task{
		crystalTask("mp-22862", rockSaltDoc(5.64), 0.0),
		crystalTask("mp-1", rockSaltDoc(5.70), 0.01),
		crystalTask("mp-5", rockSaltDoc(5.66), 8.0),
		crystalTask("mp-9", map[string]any{"lattice": "bogus"}, nil),
	}

	plain := New[*structure.Structure](cmp, crystalGeometry, kinds)
	assert.Equal(t, [][]string{{"mp-1", "mp-5", "mp-22862"}}, groupIDs(plain.Group(tasks)))

	split := New[*structure.Structure](cmp, crystalGeometry, kinds, WithSplit(MagneticOrdering))
	assert.Equal(t, [][]string{{"mp-1", "mp-22862"}, {"mp-5"}}, groupIDs(split.Group(tasks)))
}

func csclDoc(c float64) map[string]any {
	return map[string]any{
		"lattice": map[string]any{"matrix": []any{
			[]any{4.0, 0.0, 0.0}, []any{0.0, 4.0, 0.0}, []any{0.0, 0.0, c},
		}},
		"sites": []any{
			map[string]any{"species": "Cs", "abc": []any{0.0, 0.0, 0.0}},
			map[string]any{"species": "Cl", "abc": []any{0.5, 0.5, 0.5}},
		},
	}
}

func TestGroup_MatchAcrossSymmetryLabels(t *testing.T) {
	cmp := match.NewCrystalComparator(match.DefaultTolerances())
	kinds := model.NewKindSet(string(model.KindStructureOptimization))

	cubic, err := structure.FromDoc(csclDoc(4.0))
	require.NoError(t, err)
	stretched, err := structure.FromDoc(csclDoc(4.3))
	require.NoError(t, err)
	require.NotEqual(t, cmp.Label(cubic), cmp.Label(stretched))
	require.True(t, cmp.Match(cubic, stretched).OK())

	tasks := []model.Task{
		crystalTask("mp-22865", csclDoc(4.0), nil),
		crystalTask("mp-573697", csclDoc(4.3), nil),
	}
	g := New[*structure.Structure](cmp, crystalGeometry, kinds)
	assert.Equal(t, [][]string{{"mp-22865", "mp-573697"}}, groupIDs(g.Group(tasks)))
}

func TestGroup_BridgesNeighbouringBins(t *testing.T) {
	tasks := []model.Task{
		task("mp-1", model.KindStructureOptimization, 0.97),
		task("mp-2", model.KindStatic, 1.03),
		task("mp-3", model.KindStructureOptimization, 1.5),
		task("mp-4", model.KindStructureOptimization, 2.96),
		task("mp-5", model.KindStatic, 3.04),
	}
	got := groupIDs(lineGrouper().Group(tasks))
	assert.Equal(t, [][]string{{"mp-1", "mp-2"}, {"mp-3"}, {"mp-4", "mp-5"}}, got)
}

// failingComparator cannot compare negative geometries.
type failingComparator struct{ lineComparator }

func (c failingComparator) Match(a, b float64) match.Result {
	if a < 0 || b < 0 {
		return match.Result{Outcome: match.Failed, Err: errors.New("negative geometry")}
	}
	return c.lineComparator.Match(a, b)
}

func TestGroup_FailedComparisonLoggedAtWarn(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	kinds := model.NewKindSet(string(model.KindStructureOptimization))
	g := New[float64](failingComparator{lineComparator{tol: 0.1}}, lineGeometry, kinds)
	g.log = zap.New(core)

	got := groupIDs(g.Group([]model.Task{
		task("mp-1", model.KindStructureOptimization, -0.5),
		task("mp-2", model.KindStructureOptimization, -0.45),
	}))
	assert.Equal(t, [][]string{{"mp-1"}, {"mp-2"}}, got)

	entries := logs.FilterMessageSnippet("comparison failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zap.WarnLevel, entries[0].Level)
	fields := entries[0].ContextMap()
	assert.Equal(t, "mp-2", fields["task_id"])
	assert.Equal(t, "mp-1", fields["other_task_id"])
	assert.Equal(t, "negative geometry", fields["error"])
}

func TestMagneticOrdering(t *testing.T) {
	s, err := structure.FromDoc(rockSaltDoc(5.64))
	require.NoError(t, err)

	assert.Equal(t, "1.0", MagneticOrdering(crystalTask("mp-1", nil, -8.0), s))
	assert.Equal(t, "0.0", MagneticOrdering(crystalTask("mp-1", nil, 0.2), s))
	assert.Equal(t, "none", MagneticOrdering(crystalTask("mp-1", nil, nil), s))
}
