package builder

import (
	"context"
	"slices"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/materials-cli/internal/docpath"
	"github.com/sells-group/materials-cli/internal/docstore"
)

// Build run states.
const (
	StatusRunning  = "running"
	StatusComplete = "complete"
	StatusFailed   = "failed"
)

// RunEntry is one build run recorded in the build log.
type RunEntry struct {
	BuildID     string     `json:"build_id"`
	Builder     string     `json:"builder"`
	Status      string     `json:"status"`
	DryRun      bool       `json:"dry_run"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Partitions  int        `json:"partitions"`
	Documents   int        `json:"documents"`
	Error       string     `json:"error,omitempty"`
}

// BuildLog records build runs in a document collection.
type BuildLog struct {
	store docstore.Store
}

// NewBuildLog creates a BuildLog backed by store.
func NewBuildLog(store docstore.Store) *BuildLog {
	return &BuildLog{store: store}
}

func (e RunEntry) doc() docstore.Document {
	d := docstore.Document{
		"build_id":   e.BuildID,
		"builder":    e.Builder,
		"status":     e.Status,
		"dry_run":    e.DryRun,
		"started_at": e.StartedAt.UTC(),
		"partitions": e.Partitions,
		"documents":  e.Documents,
	}
	if e.CompletedAt != nil {
		d["completed_at"] = e.CompletedAt.UTC()
	}
	if e.Error != "" {
		d["error"] = e.Error
	}
	return d
}

func (l *BuildLog) put(ctx context.Context, e RunEntry) error {
	if _, err := l.store.BulkUpsert(ctx, []docstore.Document{e.doc()}, []string{"build_id"}); err != nil {
		return eris.Wrapf(err, "buildlog: write run %s", e.BuildID)
	}
	return nil
}

// Start records the beginning of a run.
func (l *BuildLog) Start(ctx context.Context, e RunEntry) error {
	e.Status = StatusRunning
	return l.put(ctx, e)
}

// Complete marks a run as finished with its summary.
func (l *BuildLog) Complete(ctx context.Context, e RunEntry, s *Summary, at time.Time) error {
	e.Status = StatusComplete
	e.CompletedAt = &at
	e.Partitions = s.Partitions
	e.Documents = s.Documents
	return l.put(ctx, e)
}

// Fail marks a run as failed.
func (l *BuildLog) Fail(ctx context.Context, e RunEntry, runErr error, at time.Time) error {
	e.Status = StatusFailed
	e.CompletedAt = &at
	e.Error = runErr.Error()
	return l.put(ctx, e)
}

// List returns the recorded runs of a builder, most recent first. An empty
// name lists every builder.
func (l *BuildLog) List(ctx context.Context, name string) ([]RunEntry, error) {
	var c docstore.Criteria
	if name != "" {
		c = docstore.Where(docstore.Eq("builder", name))
	}
	docs, err := l.store.Query(ctx, c, nil)
	if err != nil {
		return nil, eris.Wrap(err, "buildlog: list runs")
	}

	entries := make([]RunEntry, 0, len(docs))
	for _, d := range docs {
		var e RunEntry
		e.BuildID, _ = docpath.String(d, "build_id")
		e.Builder, _ = docpath.String(d, "builder")
		e.Status, _ = docpath.String(d, "status")
		e.DryRun, _ = docpath.Bool(d, "dry_run")
		e.StartedAt, _ = docpath.Time(d, "started_at")
		if t, ok := docpath.Time(d, "completed_at"); ok {
			e.CompletedAt = &t
		}
		if n, ok := docpath.Float(d, "partitions"); ok {
			e.Partitions = int(n)
		}
		if n, ok := docpath.Float(d, "documents"); ok {
			e.Documents = int(n)
		}
		e.Error, _ = docpath.String(d, "error")
		entries = append(entries, e)
	}
	slices.SortStableFunc(entries, func(a, b RunEntry) int {
		return b.StartedAt.Compare(a.StartedAt)
	})
	return entries, nil
}
