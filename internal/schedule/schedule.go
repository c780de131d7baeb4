// Package schedule decides which coarse-key partitions need rebuilding by
// comparing the source and target stores.
package schedule

import (
	"context"
	"slices"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/materials-cli/internal/docpath"
	"github.com/sells-group/materials-cli/internal/docstore"
	"github.com/sells-group/materials-cli/internal/model"
)

// Config wires a Scheduler to its stores.
type Config struct {
	Source docstore.Store
	Target docstore.Store
	// Validation is optional. Entries newer than a document's build time
	// cause the partition to be rebuilt.
	Validation docstore.Store
	Fields     model.Fields
	// Query scopes the source tasks considered.
	Query         docstore.Criteria
	IdentityKinds model.KindSet
	GroupingKinds model.KindSet
}

// Scheduler derives pending partitions from live store contents. It keeps
// no state between runs besides a cache that each run clears.
type Scheduler struct {
	cfg   Config
	cache *Cache
	log   *zap.Logger
}

// New creates a Scheduler. cache may be shared with the caller so that
// partition loads reuse the documents read while scheduling.
func New(cfg Config, cache *Cache) *Scheduler {
	if cache == nil {
		cache = NewCache()
	}
	return &Scheduler{
		cfg:   cfg,
		cache: cache,
		log:   zap.L().With(zap.String("component", "schedule"), zap.String("source", cfg.Source.Name())),
	}
}

// Cache returns the scheduler's partition cache.
func (s *Scheduler) Cache() *Cache { return s.cache }

type sourceTask struct {
	id      string
	formula string
	kind    model.CalcKind
	updated time.Time
}

// Partitions returns the sorted coarse keys to rebuild: those holding a
// task changed or revalidated after the documents referencing it were
// built, plus those holding a task no document references yet. An
// unreferenced task counts when it can supply an entity id, or when it
// takes part in grouping and its partition already has documents. Once a
// partition has documents, an unreferenced task only counts if it changed
// or was revalidated after the partition's latest build, so tasks that no
// entity can absorb do not keep their partition pending.
func (s *Scheduler) Partitions(ctx context.Context) ([]string, error) {
	s.cache.Clear()

	tasks, err := s.sourceTasks(ctx)
	if err != nil {
		return nil, err
	}
	built, err := s.buildTimes(ctx)
	if err != nil {
		return nil, err
	}
	revalidated, err := s.validationTimes(ctx)
	if err != nil {
		return nil, err
	}

	// latest build time per partition; presence marks it populated
	latest := make(map[string]time.Time)
	for _, t := range tasks {
		if bt, ok := built[t.id]; ok {
			if prev, seen := latest[t.formula]; !seen || bt.After(prev) {
				latest[t.formula] = bt
			}
		}
	}

	pending := make(map[string]bool)
	var stale, fresh int
	for _, t := range tasks {
		if pending[t.formula] {
			continue
		}
		bt, referenced := built[t.id]
		switch {
		case referenced:
			if t.updated.After(bt) || revalidated[t.id].After(bt) {
				pending[t.formula] = true
				stale++
			}
		default:
			lb, populated := latest[t.formula]
			if !s.cfg.IdentityKinds.Has(t.kind) && !(populated && s.cfg.GroupingKinds.Has(t.kind)) {
				continue
			}
			if populated && !t.updated.After(lb) && !revalidated[t.id].After(lb) {
				continue
			}
			pending[t.formula] = true
			fresh++
		}
	}

	out := make([]string, 0, len(pending))
	for f := range pending {
		out = append(out, f)
	}
	slices.Sort(out)
	s.log.Info("scheduled partitions",
		zap.Int("tasks", len(tasks)),
		zap.Int("partitions", len(out)),
		zap.Int("stale", stale),
		zap.Int("new", fresh),
	)
	return out, nil
}

func (s *Scheduler) sourceTasks(ctx context.Context) ([]sourceTask, error) {
	docs, err := s.cfg.Source.Query(ctx, s.cfg.Query, s.cfg.Fields.Projection())
	if err != nil {
		return nil, eris.Wrap(err, "schedule: query source tasks")
	}
	out := make([]sourceTask, 0, len(docs))
	for _, d := range docs {
		t, err := model.ParseTask(d, s.cfg.Fields)
		if err != nil {
			s.log.Warn("skipping malformed task", zap.Error(err))
			continue
		}
		if t.Formula == "" {
			s.log.Warn("skipping task without formula", zap.String("task_id", t.ID))
			continue
		}
		out = append(out, sourceTask{id: t.ID, formula: t.Formula, kind: t.Kind, updated: t.LastUpdated})
	}
	return out, nil
}

// buildTimes maps every referenced task id to the earliest build time of
// the documents referencing it.
func (s *Scheduler) buildTimes(ctx context.Context) (map[string]time.Time, error) {
	docs, err := s.cfg.Target.Query(ctx, nil, []string{model.FieldTaskIDs, model.FieldBuildTime, model.FieldLastUpdated})
	if err != nil {
		return nil, eris.Wrap(err, "schedule: query target documents")
	}
	out := make(map[string]time.Time)
	for _, d := range docs {
		bt, ok := docpath.Time(d, model.FieldBuildTime)
		if !ok {
			bt, _ = docpath.Time(d, model.FieldLastUpdated)
		}
		ids, _ := docpath.Strings(d, model.FieldTaskIDs)
		for _, id := range ids {
			if prev, seen := out[id]; !seen || bt.Before(prev) {
				out[id] = bt
			}
		}
	}
	return out, nil
}

func (s *Scheduler) validationTimes(ctx context.Context) (map[string]time.Time, error) {
	out := make(map[string]time.Time)
	if s.cfg.Validation == nil {
		return out, nil
	}
	docs, err := s.cfg.Validation.Query(ctx, nil, []string{model.FieldTaskID, model.FieldLastUpdated})
	if err != nil {
		return nil, eris.Wrap(err, "schedule: query validation entries")
	}
	for _, d := range docs {
		id, ok := docpath.String(d, model.FieldTaskID)
		if !ok {
			continue
		}
		if ts, ok := docpath.Time(d, model.FieldLastUpdated); ok && ts.After(out[id]) {
			out[id] = ts
		}
	}
	return out, nil
}

// Load returns the full source documents of one partition, from the cache
// when a previous load in this run already read them.
func (s *Scheduler) Load(ctx context.Context, formula string) ([]docstore.Document, error) {
	if docs, ok := s.cache.Load(formula); ok {
		return docs, nil
	}
	c := docstore.And(s.cfg.Query, docstore.Where(docstore.Eq(s.cfg.Fields.Formula, formula)))
	docs, err := s.cfg.Source.Query(ctx, c, nil)
	if err != nil {
		return nil, eris.Wrapf(err, "schedule: load partition %s", formula)
	}
	s.cache.Store(formula, docs)
	return docs, nil
}
