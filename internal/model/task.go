package model

import (
	"cmp"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/materials-cli/internal/docpath"
)

// CalcKind labels what a calculation task computed.
type CalcKind string

const (
	KindStructureOptimization CalcKind = "structure_optimization"
	KindStatic                CalcKind = "static"
	KindNSCFLine              CalcKind = "nscf_line"
	KindNSCFUniform           CalcKind = "nscf_uniform"

	KindGeometryOptimization CalcKind = "geometry_optimization"
	KindFrequencyFlattening  CalcKind = "frequency_flattening_geometry_optimization"
	KindFrequency            CalcKind = "frequency"
	KindSinglePoint          CalcKind = "single_point"
)

// Document field paths shared by every task collection.
const (
	FieldTaskID      = "task_id"
	FieldKind        = "task_type"
	FieldLastUpdated = "last_updated"
	FieldSandboxes   = "sandboxes"

	FieldStructure          = "output.structure"
	FieldInitialStructure   = "input.structure"
	FieldMolecule           = "output.molecule"
	FieldInitialMolecule    = "input.molecule"
	FieldTotalMagnetization = "output.total_magnetization"
)

// DefaultSandbox is assumed for tasks without sandbox tags.
const DefaultSandbox = "core"

// Fields names the collection-specific paths read from a task document.
type Fields struct {
	Formula string // coarse partition key
	Energy  string // tie-break energy
	Method  string // accuracy lookup key
}

var (
	MaterialFields = Fields{Formula: "formula_pretty", Energy: "output.energy_per_atom", Method: "run_type"}
	MoleculeFields = Fields{Formula: "formula_alphabetical", Energy: "output.final_energy", Method: "level_of_theory"}
)

// Projection lists the paths the scheduler needs from a task document.
func (f Fields) Projection() []string {
	return []string{FieldTaskID, FieldKind, FieldLastUpdated, f.Formula}
}

// Task is one calculation record read from the source store.
type Task struct {
	ID          string
	Formula     string
	Kind        CalcKind
	Method      string
	LastUpdated time.Time
	Sandboxes   []string
	Valid       bool
	// Energy is +Inf when the task reports none.
	Energy float64
	Doc    map[string]any
}

// ParseTask reads the bookkeeping fields of a task document. Tasks default
// to valid; the caller applies the validation store afterwards.
func ParseTask(doc map[string]any, f Fields) (Task, error) {
	id, ok := docpath.String(doc, FieldTaskID)
	if !ok || id == "" {
		return Task{}, eris.New("model: task document has no task_id")
	}
	kind, ok := docpath.String(doc, FieldKind)
	if !ok || kind == "" {
		return Task{}, eris.Errorf("model: task %s has no %s", id, FieldKind)
	}

	t := Task{
		ID:     id,
		Kind:   CalcKind(kind),
		Valid:  true,
		Energy: math.Inf(1),
		Doc:    doc,
	}
	t.Formula, _ = docpath.String(doc, f.Formula)
	t.Method, _ = docpath.String(doc, f.Method)
	t.LastUpdated, _ = docpath.Time(doc, FieldLastUpdated)
	if e, ok := docpath.Float(doc, f.Energy); ok && !math.IsNaN(e) {
		t.Energy = e
	}
	if tags, ok := docpath.Strings(doc, FieldSandboxes); ok && len(tags) > 0 {
		t.Sandboxes = tags
	} else {
		t.Sandboxes = []string{DefaultSandbox}
	}
	return t, nil
}

// KindSet is a set of calculation kinds.
type KindSet map[CalcKind]bool

// NewKindSet builds a KindSet from configuration strings.
func NewKindSet(kinds ...string) KindSet {
	s := make(KindSet, len(kinds))
	for _, k := range kinds {
		s[CalcKind(k)] = true
	}
	return s
}

// Has reports membership.
func (s KindSet) Has(k CalcKind) bool { return s[k] }

// Strings returns the kinds as plain strings.
func (s KindSet) Strings() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, string(k))
	}
	return out
}

// IDNumber parses the numeric suffix after the last hyphen of a task id,
// so "mp-1234" yields 1234.
func IDNumber(id string) (int64, bool) {
	i := strings.LastIndex(id, "-")
	if i < 0 || i == len(id)-1 {
		return 0, false
	}
	n, err := strconv.ParseInt(id[i+1:], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// CompareIDs orders ids by numeric suffix. Ids without one sort after
// those with one, by raw value.
func CompareIDs(a, b string) int {
	na, okA := IDNumber(a)
	nb, okB := IDNumber(b)
	switch {
	case okA && okB:
		if c := cmp.Compare(na, nb); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	case okA:
		return -1
	case okB:
		return 1
	}
	return strings.Compare(a, b)
}

// SortTasks orders tasks by id with CompareIDs.
func SortTasks(tasks []Task) {
	slices.SortStableFunc(tasks, func(a, b Task) int { return CompareIDs(a.ID, b.ID) })
}
