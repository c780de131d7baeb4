package selector

import (
	"cmp"
	"math"
	"slices"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/materials-cli/internal/docpath"
	"github.com/sells-group/materials-cli/internal/model"
)

// Selector extracts property candidates from a group's tasks and picks the
// best value for each property.
type Selector struct {
	table  *Table
	schema *Schema
	log    *zap.Logger
}

// New creates a Selector for a validated table.
func New(table *Table) (*Selector, error) {
	if table == nil {
		return nil, eris.New("selector: nil table")
	}
	if err := table.Validate(); err != nil {
		return nil, err
	}
	schema, err := table.Schema()
	if err != nil {
		return nil, err
	}
	return &Selector{
		table:  table,
		schema: schema,
		log:    zap.L().With(zap.String("component", "selector"), zap.String("table", table.Name)),
	}, nil
}

// Table returns the property table.
func (s *Selector) Table() *Table { return s.table }

// Schema returns the output schema registered from the table.
func (s *Selector) Schema() *Schema { return s.schema }

// Candidates reads every property each task can supply. A missing value
// for a required property, or one of the wrong type, is logged and skipped.
func (s *Selector) Candidates(g model.Group) []model.Candidate {
	var out []model.Candidate
	for _, t := range g.Tasks {
		for _, p := range s.table.Properties {
			quality, ok := p.Quality[t.Kind]
			if !ok {
				continue
			}
			raw, ok := docpath.Get(t.Doc, p.Input)
			if !ok || raw == nil {
				if !p.Optional {
					s.log.Warn("property missing from task",
						zap.String("task_id", t.ID),
						zap.String("property", p.Name),
						zap.String("path", p.Input),
					)
				}
				continue
			}
			value, err := checkValue(p.Kind, raw)
			if err != nil {
				s.log.Warn("property has unusable value",
					zap.String("task_id", t.ID),
					zap.String("property", p.Name),
					zap.Error(err),
				)
				continue
			}
			out = append(out, model.Candidate{
				Path:        p.Output,
				Value:       value,
				TaskID:      t.ID,
				Kind:        t.Kind,
				Quality:     quality,
				Accuracy:    s.table.Accuracy[t.Method],
				Energy:      t.Energy,
				LastUpdated: t.LastUpdated,
				Valid:       t.Valid,
				Aggregate:   p.Aggregate,
				Track:       p.Track,
			})
		}
	}
	return out
}

// Compare orders candidates best first: valid before invalid, then higher
// quality, then higher accuracy, then lower energy. Remaining ties fall
// back to task id so the order never depends on input order.
func Compare(a, b model.Candidate) int {
	if a.Valid != b.Valid {
		if a.Valid {
			return -1
		}
		return 1
	}
	if c := cmp.Compare(b.Quality, a.Quality); c != 0 {
		return c
	}
	if c := cmp.Compare(b.Accuracy, a.Accuracy); c != 0 {
		return c
	}
	if c := compareEnergy(a.Energy, b.Energy); c != 0 {
		return c
	}
	return model.CompareIDs(a.TaskID, b.TaskID)
}

func compareEnergy(a, b float64) int {
	if math.IsNaN(a) {
		a = math.Inf(1)
	}
	if math.IsNaN(b) {
		b = math.Inf(1)
	}
	return cmp.Compare(a, b)
}

// Best returns the winning candidate per output path. For aggregate
// properties the result holds every candidate value in ranked order, with
// no source task and no provenance.
func Best(cands []model.Candidate) map[string]model.Candidate {
	byPath := make(map[string][]model.Candidate)
	for _, c := range cands {
		byPath[c.Path] = append(byPath[c.Path], c)
	}
	out := make(map[string]model.Candidate, len(byPath))
	for path, cs := range byPath {
		slices.SortStableFunc(cs, Compare)
		if !cs[0].Aggregate {
			out[path] = cs[0]
			continue
		}
		values := make([]any, len(cs))
		latest := cs[0].LastUpdated
		for i, c := range cs {
			values[i] = c.Value
			if c.LastUpdated.After(latest) {
				latest = c.LastUpdated
			}
		}
		out[path] = model.Candidate{
			Path:        path,
			Value:       values,
			Aggregate:   true,
			Valid:       true,
			LastUpdated: latest,
		}
	}
	return out
}

// Origins lists the provenance of every tracked winner, keyed by property
// name and ordered by name.
func (s *Selector) Origins(best map[string]model.Candidate) []model.Origin {
	var out []model.Origin
	for _, p := range s.table.Properties {
		c, ok := best[p.Output]
		if !ok || !p.Track || c.Aggregate {
			continue
		}
		out = append(out, model.Origin{
			Name:        p.Name,
			TaskID:      c.TaskID,
			Kind:        c.Kind,
			LastUpdated: c.LastUpdated,
		})
	}
	slices.SortFunc(out, func(a, b model.Origin) int { return cmp.Compare(a.Name, b.Name) })
	return out
}

// EntityID picks the id of an entity: the task id with the smallest numeric
// suffix among the group's identity-kind tasks, valid or not. It reports
// false when the group has no identity-kind task.
func EntityID(g model.Group, identity model.KindSet) (string, bool) {
	var ids []string
	for _, t := range g.Tasks {
		if identity.Has(t.Kind) {
			ids = append(ids, t.ID)
		}
	}
	if len(ids) == 0 {
		return "", false
	}
	return slices.MinFunc(ids, model.CompareIDs), true
}
