package schedule

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/materials-cli/internal/docstore"
	"github.com/sells-group/materials-cli/internal/model"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type fixture struct {
	source, target, validation docstore.Store
	sched                      *Scheduler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	b := docstore.NewMemory()
	f := &fixture{
		source:     b.Collection("tasks"),
		target:     b.Collection("materials"),
		validation: b.Collection("task_validation"),
	}
	f.sched = New(Config{
		Source:        f.source,
		Target:        f.target,
		Validation:    f.validation,
		Fields:        model.MaterialFields,
		IdentityKinds: model.NewKindSet(string(model.KindStructureOptimization)),
		GroupingKinds: model.NewKindSet(string(model.KindStructureOptimization), string(model.KindStatic)),
	}, nil)
	return f
}

func (f *fixture) tasks(t *testing.T, docs ...docstore.Document) {
	t.Helper()
	_, err := f.source.BulkUpsert(context.Background(), docs, []string{model.FieldTaskID})
	require.NoError(t, err)
}

func (f *fixture) built(t *testing.T, id string, bt time.Time, taskIDs ...string) {
	t.Helper()
	ids := make([]any, len(taskIDs))
	for i, s := range taskIDs {
		ids[i] = s
	}
	doc := docstore.Document{
		"material_id":               id,
		model.FieldSandboxPartition: "core",
		model.FieldTaskIDs:          ids,
		model.FieldBuildTime:        bt,
		model.FieldLastUpdated:      bt.Add(-time.Hour),
	}
	_, err := f.target.BulkUpsert(context.Background(), []docstore.Document{doc}, []string{"material_id", model.FieldSandboxPartition})
	require.NoError(t, err)
}

func taskDoc(id, formula string, kind model.CalcKind, updated time.Time) docstore.Document {
	return docstore.Document{
		model.FieldTaskID:      id,
		"formula_pretty":       formula,
		model.FieldKind:        string(kind),
		model.FieldLastUpdated: updated,
	}
}

func TestPartitions_NewIdentityTasks(t *testing.T) {
	f := newFixture(t)
	f.tasks(t,
		taskDoc("mp-1", "Si", model.KindStructureOptimization, t0),
		taskDoc("mp-2", "NaCl", model.KindStructureOptimization, t0),
		taskDoc("mp-3", "GaN", model.KindStatic, t0),
		taskDoc("mp-4", "GaN", model.KindNSCFLine, t0),
	)

	got, err := f.sched.Partitions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"NaCl", "Si"}, got)
}

func TestPartitions_IdempotentAfterBuild(t *testing.T) {
	f := newFixture(t)
	f.tasks(t,
		taskDoc("mp-1", "Si", model.KindStructureOptimization, t0),
		taskDoc("mp-2", "Si", model.KindStatic, t0),
		taskDoc("mp-3", "GaN", model.KindStatic, t0),
	)
	f.built(t, "mp-1", t0.Add(time.Hour), "mp-1", "mp-2")

	got, err := f.sched.Partitions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = f.sched.Partitions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestPartitions_UpdatedTask(t *testing.T) {
	f := newFixture(t)
	f.tasks(t,
		taskDoc("mp-1", "Si", model.KindStructureOptimization, t0.Add(2*time.Hour)),
		taskDoc("mp-5", "Fe", model.KindStructureOptimization, t0),
	)
	f.built(t, "mp-1", t0.Add(time.Hour), "mp-1")
	f.built(t, "mp-5", t0.Add(time.Hour), "mp-5")

	got, err := f.sched.Partitions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Si"}, got)
}

func TestPartitions_FallsBackToLastUpdated(t *testing.T) {
	f := newFixture(t)
	f.tasks(t, taskDoc("mp-1", "Si", model.KindStructureOptimization, t0.Add(30*time.Minute)))
	doc := docstore.Document{
		"material_id":               "mp-1",
		model.FieldSandboxPartition: "core",
		model.FieldTaskIDs:          []any{"mp-1"},
		model.FieldLastUpdated:      t0,
	}
	_, err := f.target.BulkUpsert(context.Background(), []docstore.Document{doc}, []string{"material_id", model.FieldSandboxPartition})
	require.NoError(t, err)

	got, err := f.sched.Partitions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Si"}, got)
}

func TestPartitions_NewGroupingTaskInPopulatedFormula(t *testing.T) {
	f := newFixture(t)
	f.tasks(t,
		taskDoc("mp-1", "Si", model.KindStructureOptimization, t0),
		taskDoc("mp-9", "Si", model.KindStatic, t0.Add(2*time.Hour)),
	)
	f.built(t, "mp-1", t0.Add(time.Hour), "mp-1")

	got, err := f.sched.Partitions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Si"}, got)
}

func TestPartitions_UnreferencedTaskOlderThanBuild(t *testing.T) {
	f := newFixture(t)
	f.tasks(t,
		taskDoc("mp-1", "Si", model.KindStructureOptimization, t0),
		taskDoc("mp-7", "Si", model.KindStructureOptimization, t0),
		taskDoc("mp-9", "Si", model.KindStatic, t0),
	)
	f.built(t, "mp-1", t0.Add(time.Hour), "mp-1")

	got, err := f.sched.Partitions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got, "tasks left out by the last build stay out")

	_, err = f.validation.BulkUpsert(context.Background(), []docstore.Document{
		{model.FieldTaskID: "mp-7", "valid": true, model.FieldLastUpdated: t0.Add(2 * time.Hour)},
	}, []string{model.FieldTaskID})
	require.NoError(t, err)
	got, err = f.sched.Partitions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Si"}, got)

	f.built(t, "mp-1", t0.Add(3*time.Hour), "mp-1")
	got, err = f.sched.Partitions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestPartitions_Revalidated(t *testing.T) {
	f := newFixture(t)
	f.tasks(t, taskDoc("mp-1", "Si", model.KindStructureOptimization, t0))
	f.built(t, "mp-1", t0.Add(time.Hour), "mp-1")

	_, err := f.validation.BulkUpsert(context.Background(), []docstore.Document{
		{model.FieldTaskID: "mp-1", "valid": false, model.FieldLastUpdated: t0.Add(30 * time.Minute)},
	}, []string{model.FieldTaskID})
	require.NoError(t, err)
	got, err := f.sched.Partitions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got, "validation older than the build")

	_, err = f.validation.BulkUpsert(context.Background(), []docstore.Document{
		{model.FieldTaskID: "mp-1", "valid": false, model.FieldLastUpdated: t0.Add(2 * time.Hour)},
	}, []string{model.FieldTaskID})
	require.NoError(t, err)
	got, err = f.sched.Partitions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Si"}, got)
}

func TestPartitions_Query(t *testing.T) {
	f := newFixture(t)
	f.sched.cfg.Query = docstore.Where(docstore.In("formula_pretty", []string{"Si"}))
	f.tasks(t,
		taskDoc("mp-1", "Si", model.KindStructureOptimization, t0),
		taskDoc("mp-2", "NaCl", model.KindStructureOptimization, t0),
	)
	got, err := f.sched.Partitions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Si"}, got)
}

func TestPartitions_SkipsMalformedTasks(t *testing.T) {
	f := newFixture(t)
	f.tasks(t,
		docstore.Document{model.FieldTaskID: "mp-1", "formula_pretty": "Si"},
		taskDoc("mp-2", "", model.KindStructureOptimization, t0),
		taskDoc("mp-3", "Fe", model.KindStructureOptimization, t0),
	)
	got, err := f.sched.Partitions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Fe"}, got)
}

func TestLoad_UsesCacheUntilNextRun(t *testing.T) {
	f := newFixture(t)
	f.tasks(t, taskDoc("mp-1", "Si", model.KindStructureOptimization, t0))
	ctx := context.Background()

	docs, err := f.sched.Load(ctx, "Si")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, 1, f.sched.Cache().Len())

	f.tasks(t, taskDoc("mp-2", "Si", model.KindStatic, t0))
	docs, err = f.sched.Load(ctx, "Si")
	require.NoError(t, err)
	assert.Len(t, docs, 1, "served from cache")

	_, err = f.sched.Partitions(ctx)
	require.NoError(t, err)
	assert.Zero(t, f.sched.Cache().Len())

	docs, err = f.sched.Load(ctx, "Si")
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

func TestCache_Concurrent(t *testing.T) {
	c := NewCache()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := []string{"Si", "Fe", "NaCl", "GaN"}[i%4]
			c.Store(key, []docstore.Document{{"i": i}})
			_, ok := c.Load(key)
			assert.True(t, ok)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 4, c.Len())
	c.Clear()
	assert.Zero(t, c.Len())
}
