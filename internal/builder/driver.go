package builder

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/materials-cli/internal/docstore"
	"github.com/sells-group/materials-cli/internal/model"
	"github.com/sells-group/materials-cli/internal/resilience"
	"github.com/sells-group/materials-cli/internal/schedule"
)

// Stores are the collections a build reads and writes.
type Stores struct {
	Source docstore.Store
	Target docstore.Store
	// Validation is optional.
	Validation docstore.Store
	// Log records build runs when set.
	Log docstore.Store
}

// Options tune a build run.
type Options struct {
	Workers int
	// PartitionsPerSecond throttles partition dispatch; zero disables it.
	PartitionsPerSecond float64
	ChunkSize           int
	DryRun              bool
	// Query scopes the source tasks.
	Query docstore.Criteria
	Retry resilience.RetryConfig
	// Now overrides the clock used for build stamps.
	Now func() time.Time
}

// Summary reports a build run.
type Summary struct {
	BuildID    string        `json:"build_id"`
	Partitions int           `json:"partitions"`
	Groups     int           `json:"groups"`
	Documents  int           `json:"documents"`
	Skipped    int           `json:"skipped"`
	Removed    int64         `json:"removed"`
	Written    int64         `json:"written"`
	DryRun     bool          `json:"dry_run"`
	Elapsed    time.Duration `json:"elapsed"`
}

// Driver runs a Processor over every pending partition.
type Driver struct {
	proc   Processor
	stores Stores
	opts   Options
	sched  *schedule.Scheduler
	log    *zap.Logger
}

// NewDriver creates a Driver.
func NewDriver(proc Processor, stores Stores, opts Options) *Driver {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 500
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	sched := schedule.New(schedule.Config{
		Source:        stores.Source,
		Target:        stores.Target,
		Validation:    stores.Validation,
		Fields:        proc.Fields(),
		Query:         opts.Query,
		IdentityKinds: proc.IdentityKinds(),
		GroupingKinds: proc.GroupingKinds(),
	}, schedule.NewCache())
	return &Driver{
		proc:   proc,
		stores: stores,
		opts:   opts,
		sched:  sched,
		log:    zap.L().With(zap.String("component", "builder"), zap.String("builder", proc.Name())),
	}
}

func (d *Driver) retry(operation string) resilience.RetryConfig {
	cfg := d.opts.Retry
	cfg.OnRetry = resilience.LogRetries("builder."+d.proc.Name(), operation)
	return cfg
}

// Items returns the partitions that need rebuilding. It re-derives them
// from the stores on every call.
func (d *Driver) Items(ctx context.Context) ([]string, error) {
	return resilience.DoVal(ctx, d.retry("schedule"), d.sched.Partitions)
}

// ProcessItem loads one partition's tasks, applies the validation store and
// builds its documents.
func (d *Driver) ProcessItem(ctx context.Context, formula string) ([]docstore.Document, []string, Stats, error) {
	docs, err := resilience.DoVal(ctx, d.retry("load"), func(ctx context.Context) ([]docstore.Document, error) {
		return d.sched.Load(ctx, formula)
	})
	if err != nil {
		return nil, nil, Stats{}, err
	}

	tasks := make([]model.Task, 0, len(docs))
	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		t, err := model.ParseTask(doc, d.proc.Fields())
		if err != nil {
			d.log.Warn("skipping malformed task", zap.String("formula", formula), zap.Error(err))
			continue
		}
		tasks = append(tasks, t)
		ids = append(ids, t.ID)
	}

	invalid, err := resilience.DoVal(ctx, d.retry("validation"), func(ctx context.Context) (map[string]bool, error) {
		return InvalidTasks(ctx, d.stores.Validation, ids)
	})
	if err != nil {
		return nil, nil, Stats{}, err
	}
	for i := range tasks {
		if invalid[tasks[i].ID] {
			tasks[i].Valid = false
		}
	}

	out, stats := d.proc.Process(tasks)
	d.log.Debug("processed partition",
		zap.String("formula", formula),
		zap.Int("tasks", len(tasks)),
		zap.Int("groups", stats.Groups),
		zap.Int("documents", stats.Documents),
		zap.Int("skipped", stats.Skipped),
	)
	return out, ids, stats, nil
}

// UpdateTargets replaces documents. Every existing document sharing an
// entity id with the new ones, or referencing one of taskIDs, is removed
// first, then the new documents are upserted keyed by entity id and
// sandbox partition.
func (d *Driver) UpdateTargets(ctx context.Context, batches [][]docstore.Document, taskIDs []string, buildID string) (removed, written int64, err error) {
	var docs []docstore.Document
	for _, b := range batches {
		docs = append(docs, b...)
	}

	now := d.opts.Now().UTC()
	idField := d.proc.IDField()
	seen := make(map[string]bool, len(docs))
	var entityIDs []string
	for _, doc := range docs {
		doc[model.FieldBuildTime] = now
		doc[model.FieldBuildID] = buildID
		if id, ok := doc[idField].(string); ok && !seen[id] {
			seen[id] = true
			entityIDs = append(entityIDs, id)
		}
	}

	target := d.stores.Target
	for _, rm := range []struct {
		field string
		ids   []string
	}{
		{idField, entityIDs},
		{model.FieldTaskIDs, taskIDs},
	} {
		if len(rm.ids) == 0 {
			continue
		}
		c := docstore.Where(docstore.In(rm.field, rm.ids))
		n, err := resilience.DoVal(ctx, d.retry("remove"), func(ctx context.Context) (int64, error) {
			return target.RemoveMany(ctx, c)
		})
		if err != nil {
			return removed, written, eris.Wrap(err, "builder: remove stale documents")
		}
		removed += n
	}

	keys := []string{idField, model.FieldSandboxPartition}
	for start := 0; start < len(docs); start += d.opts.ChunkSize {
		chunk := docs[start:min(start+d.opts.ChunkSize, len(docs))]
		n, err := resilience.DoVal(ctx, d.retry("upsert"), func(ctx context.Context) (int64, error) {
			return target.BulkUpsert(ctx, chunk, keys)
		})
		if err != nil {
			return removed, written, eris.Wrap(err, "builder: upsert documents")
		}
		written += n
	}
	return removed, written, nil
}

// Run builds every pending partition. Partitions run concurrently on
// Workers goroutines; each one's remove and upsert happen after its
// documents are fully built. A store failure stops the run.
func (d *Driver) Run(ctx context.Context) (*Summary, error) {
	start := d.opts.Now()
	summary := &Summary{BuildID: uuid.NewString(), DryRun: d.opts.DryRun}
	if d.stores.Log == nil {
		return d.run(ctx, summary, start)
	}

	blog := NewBuildLog(d.stores.Log)
	entry := RunEntry{
		BuildID:   summary.BuildID,
		Builder:   d.proc.Name(),
		DryRun:    d.opts.DryRun,
		StartedAt: start,
	}
	if err := blog.Start(ctx, entry); err != nil {
		return nil, err
	}
	out, err := d.run(ctx, summary, start)
	// The run's context may already be cancelled.
	lctx := context.WithoutCancel(ctx)
	if err != nil {
		if lerr := blog.Fail(lctx, entry, err, d.opts.Now()); lerr != nil {
			d.log.Warn("failed to record build failure", zap.String("build_id", summary.BuildID), zap.Error(lerr))
		}
		return nil, err
	}
	if err := blog.Complete(lctx, entry, out, d.opts.Now()); err != nil {
		return nil, err
	}
	return out, nil
}

func (d *Driver) run(ctx context.Context, summary *Summary, start time.Time) (*Summary, error) {
	log := d.log.With(zap.String("build_id", summary.BuildID))

	if !d.opts.DryRun {
		if err := d.EnsureIndexes(ctx); err != nil {
			return nil, err
		}
	}

	items, err := d.Items(ctx)
	if err != nil {
		return nil, err
	}
	summary.Partitions = len(items)
	log.Info("starting build", zap.Int("partitions", len(items)), zap.Bool("dry_run", d.opts.DryRun))

	var limiter *rate.Limiter
	if d.opts.PartitionsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(d.opts.PartitionsPerSecond), 1)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.opts.Workers)
	for _, formula := range items {
		if limiter != nil {
			if err := limiter.Wait(gctx); err != nil {
				break
			}
		}
		g.Go(func() error {
			docs, taskIDs, stats, err := d.ProcessItem(gctx, formula)
			if err != nil {
				return eris.Wrapf(err, "builder: partition %s", formula)
			}
			var removed, written int64
			if !d.opts.DryRun {
				removed, written, err = d.UpdateTargets(gctx, [][]docstore.Document{docs}, taskIDs, summary.BuildID)
				if err != nil {
					return eris.Wrapf(err, "builder: partition %s", formula)
				}
			}

			mu.Lock()
			summary.Groups += stats.Groups
			summary.Documents += stats.Documents
			summary.Skipped += stats.Skipped
			summary.Removed += removed
			summary.Written += written
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "builder: run cancelled")
	}

	summary.Elapsed = d.opts.Now().Sub(start)
	log.Info("build complete",
		zap.Int("partitions", summary.Partitions),
		zap.Int("groups", summary.Groups),
		zap.Int("documents", summary.Documents),
		zap.Int("skipped", summary.Skipped),
		zap.Int64("removed", summary.Removed),
		zap.Int64("written", summary.Written),
		zap.Duration("elapsed", summary.Elapsed),
	)
	return summary, nil
}

// EnsureIndexes creates the indexes the scheduler and driver query on.
func (d *Driver) EnsureIndexes(ctx context.Context) error {
	idx := []struct {
		store docstore.Store
		field string
	}{
		{d.stores.Source, d.proc.Fields().Formula},
		{d.stores.Source, model.FieldTaskID},
		{d.stores.Target, d.proc.IDField()},
		{d.stores.Target, model.FieldLastUpdated},
	}
	for _, ix := range idx {
		err := resilience.Do(ctx, d.retry("index"), func(ctx context.Context) error {
			return ix.store.EnsureIndex(ctx, ix.field)
		})
		if err != nil {
			return eris.Wrapf(err, "builder: index %s.%s", ix.store.Name(), ix.field)
		}
	}
	return nil
}
