package builder

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/materials-cli/internal/docpath"
	"github.com/sells-group/materials-cli/internal/docstore"
	"github.com/sells-group/materials-cli/internal/model"
)

// Validation entry fields.
const (
	fieldValid   = "valid"
	fieldReasons = "reasons"
)

// InvalidTasks returns the ids among ids that the validation store marks
// invalid. A nil store marks nothing invalid.
func InvalidTasks(ctx context.Context, store docstore.Store, ids []string) (map[string]bool, error) {
	out := make(map[string]bool)
	if store == nil || len(ids) == 0 {
		return out, nil
	}
	docs, err := store.Query(ctx, docstore.Where(
		docstore.In(model.FieldTaskID, ids),
		docstore.Eq(fieldValid, false),
	), []string{model.FieldTaskID})
	if err != nil {
		return nil, eris.Wrap(err, "builder: query validation store")
	}
	for _, d := range docs {
		if id, ok := docpath.String(d, model.FieldTaskID); ok {
			out[id] = true
		}
	}
	return out, nil
}

// SetValidity records a validation verdict for each task id. The entry's
// timestamp makes the scheduler rebuild documents built before it.
func SetValidity(ctx context.Context, store docstore.Store, ids []string, valid bool, reasons []string, now time.Time) (int64, error) {
	if store == nil {
		return 0, eris.New("builder: no validation store configured")
	}
	rs := make([]any, len(reasons))
	for i, r := range reasons {
		rs[i] = r
	}
	docs := make([]docstore.Document, 0, len(ids))
	for _, id := range ids {
		docs = append(docs, docstore.Document{
			model.FieldTaskID:      id,
			fieldValid:             valid,
			fieldReasons:           rs,
			model.FieldLastUpdated: now.UTC(),
		})
	}
	n, err := store.BulkUpsert(ctx, docs, []string{model.FieldTaskID})
	if err != nil {
		return 0, eris.Wrap(err, "builder: write validation entries")
	}
	return n, nil
}
