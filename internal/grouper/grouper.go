package grouper

import (
	"fmt"
	"math"
	"slices"

	"go.uber.org/zap"

	"github.com/sells-group/materials-cli/internal/docpath"
	"github.com/sells-group/materials-cli/internal/match"
	"github.com/sells-group/materials-cli/internal/model"
	"github.com/sells-group/materials-cli/internal/structure"
)

// GeometryFunc extracts the geometry a task is grouped by.
type GeometryFunc[G any] func(t model.Task) (G, error)

// SplitFunc returns a secondary key. Tasks whose keys differ are never
// placed in the same group, even when their geometries match.
type SplitFunc[G any] func(t model.Task, g G) string

// Grouper partitions tasks into groups describing the same entity.
type Grouper[G any] struct {
	cmp      match.Comparator[G]
	geometry GeometryFunc[G]
	kinds    model.KindSet
	splits   []SplitFunc[G]
	log      *zap.Logger
}

// Option configures a Grouper.
type Option[G any] func(*Grouper[G])

// WithSplit adds a secondary identity dimension.
func WithSplit[G any](fn SplitFunc[G]) Option[G] {
	return func(g *Grouper[G]) { g.splits = append(g.splits, fn) }
}

// New creates a Grouper that considers only tasks of the given kinds.
func New[G any](cmp match.Comparator[G], geometry GeometryFunc[G], kinds model.KindSet, opts ...Option[G]) *Grouper[G] {
	g := &Grouper[G]{
		cmp:      cmp,
		geometry: geometry,
		kinds:    kinds,
		log:      zap.L().With(zap.String("component", "grouper")),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type item[G any] struct {
	task model.Task
	geom G
}

// Group returns one group per (entity, sandbox cell). Tasks of other kinds
// and tasks whose geometry cannot be read are left out. The result does not
// depend on the order of tasks.
func (g *Grouper[G]) Group(tasks []model.Task) []model.Group {
	sorted := slices.Clone(tasks)
	model.SortTasks(sorted)

	bins := make(map[string][]item[G])
	for _, t := range sorted {
		if !g.kinds.Has(t.Kind) {
			continue
		}
		geom, err := g.geometry(t)
		if err != nil {
			g.log.Warn("skipping task with unreadable geometry",
				zap.String("task_id", t.ID),
				zap.String("kind", string(t.Kind)),
				zap.Error(err),
			)
			continue
		}
		label := g.cmp.Label(geom)
		bins[label] = append(bins[label], item[G]{task: t, geom: geom})
	}

	labels := make([]string, 0, len(bins))
	for l := range bins {
		labels = append(labels, l)
	}
	slices.Sort(labels)

	var subgroups [][]item[G]
	var binOf []int
	for bi, label := range labels {
		for _, members := range g.union(bins[label]) {
			subgroups = append(subgroups, members)
			binOf = append(binOf, bi)
		}
	}

	var out []model.Group
	for _, members := range g.bridge(subgroups, binOf) {
		for _, split := range g.split(members) {
			out = append(out, partition(split)...)
		}
	}
	return out
}

// match compares two items and reports a failed comparison at Warn, since
// it leaves the pair ungrouped.
func (g *Grouper[G]) match(a, b item[G]) bool {
	res := g.cmp.Match(a.geom, b.geom)
	if res.Outcome == match.Failed {
		g.log.Warn("comparison failed, treating as no match",
			zap.String("task_id", a.task.ID),
			zap.String("other_task_id", b.task.ID),
			zap.Error(res.Err),
		)
	}
	return res.OK()
}

// union merges items into subgroups. An item joins every subgroup holding a
// geometry it matches, and subgroups it bridges are merged, so the result
// is an equivalence even when matching is only roughly transitive.
func (g *Grouper[G]) union(items []item[G]) [][]item[G] {
	var groups [][]item[G]
	for _, it := range items {
		var hits []int
		for gi, members := range groups {
			for _, m := range members {
				if g.match(it, m) {
					hits = append(hits, gi)
					break
				}
			}
		}

		if len(hits) == 0 {
			groups = append(groups, []item[G]{it})
			continue
		}
		first := hits[0]
		groups[first] = append(groups[first], it)
		for i := len(hits) - 1; i > 0; i-- {
			groups[first] = append(groups[first], groups[hits[i]]...)
			groups = slices.Delete(groups, hits[i], hits[i]+1)
		}
	}
	for _, members := range groups {
		sortItems(members)
	}
	return groups
}

// bridge merges subgroups from different label bins when the first member
// of one matches any member of the other. Labels are computed at a tighter
// precision than matching, so a geometry the comparator accepts can still
// land in a neighbouring bin.
func (g *Grouper[G]) bridge(subgroups [][]item[G], binOf []int) [][]item[G] {
	parent := make([]int, len(subgroups))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}

	for i := range subgroups {
		for j := i + 1; j < len(subgroups); j++ {
			if binOf[i] == binOf[j] || find(i) == find(j) {
				continue
			}
			if g.linked(subgroups[i], subgroups[j]) || g.linked(subgroups[j], subgroups[i]) {
				parent[find(j)] = find(i)
			}
		}
	}

	var roots []int
	merged := make(map[int][]item[G])
	for i, members := range subgroups {
		r := find(i)
		if _, ok := merged[r]; !ok {
			roots = append(roots, r)
		}
		merged[r] = append(merged[r], members...)
	}
	out := make([][]item[G], 0, len(roots))
	for _, r := range roots {
		sortItems(merged[r])
		out = append(out, merged[r])
	}
	return out
}

func (g *Grouper[G]) linked(a, b []item[G]) bool {
	for _, m := range b {
		if g.match(a[0], m) {
			return true
		}
	}
	return false
}

func sortItems[G any](items []item[G]) {
	slices.SortStableFunc(items, func(a, b item[G]) int { return model.CompareIDs(a.task.ID, b.task.ID) })
}

func (g *Grouper[G]) split(members []item[G]) [][]item[G] {
	if len(g.splits) == 0 {
		return [][]item[G]{members}
	}
	var keys []string
	byKey := make(map[string][]item[G])
	for _, m := range members {
		key := ""
		for _, fn := range g.splits {
			key += fn(m.task, m.geom) + "|"
		}
		if _, ok := byKey[key]; !ok {
			keys = append(keys, key)
		}
		byKey[key] = append(byKey[key], m)
	}
	out := make([][]item[G], 0, len(keys))
	for _, k := range keys {
		out = append(out, byKey[k])
	}
	return out
}

// partition turns one geometry group into one group per sandbox cell. A
// task belongs to every cell its sandbox tags touch.
func partition[G any](members []item[G]) []model.Group {
	sets := make([][]string, len(members))
	for i, m := range members {
		sets[i] = m.task.Sandboxes
	}
	var out []model.Group
	for _, cell := range SandboxPartition(sets) {
		grp := model.Group{Partition: cell}
		for _, m := range members {
			if Intersects(m.task.Sandboxes, cell) {
				grp.Tasks = append(grp.Tasks, m.task)
			}
		}
		out = append(out, grp)
	}
	return out
}

// MagneticOrdering keys a crystal by its total magnetization per site
// rounded to one decimal. Tasks without a magnetization share the "none" key.
func MagneticOrdering(t model.Task, s *structure.Structure) string {
	m, ok := docpath.Float(t.Doc, model.FieldTotalMagnetization)
	if !ok || s == nil || s.NumSites() == 0 {
		return "none"
	}
	density := math.Round(math.Abs(m)/float64(s.NumSites())*10) / 10
	return fmt.Sprintf("%.1f", density)
}
