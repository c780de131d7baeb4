// Package docstore provides the document-store abstraction the builders read
// from and write to, with in-memory, SQLite and Postgres implementations.
package docstore

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/materials-cli/internal/docpath"
)

// Document is a nested JSON-compatible document.
type Document = map[string]any

// Store is one named collection of documents.
type Store interface {
	// Name returns the collection name.
	Name() string

	// Query returns the documents matching c. When fields is non-empty only
	// those paths are copied into the returned documents.
	Query(ctx context.Context, c Criteria, fields []string) ([]Document, error)

	// Distinct returns the distinct values of field among matching documents.
	// List-valued fields contribute each of their elements.
	Distinct(ctx context.Context, field string, c Criteria) ([]any, error)

	// Count returns the number of matching documents.
	Count(ctx context.Context, c Criteria) (int, error)

	// RemoveMany deletes every matching document.
	RemoveMany(ctx context.Context, c Criteria) (int64, error)

	// BulkUpsert replaces (or inserts) each document, matching existing
	// documents on keys. A collection must always be upserted with the
	// same key fields.
	BulkUpsert(ctx context.Context, docs []Document, keys []string) (int64, error)

	// EnsureIndex creates an index on field where the backend supports it.
	EnsureIndex(ctx context.Context, field string) error
}

// Backend opens collections that share one underlying database.
type Backend interface {
	Collection(name string) Store
	Migrate(ctx context.Context) error
	Close() error
}

// normalize gives a document the shape it would have after being stored
// and read back: times become RFC 3339 strings, numbers become float64.
func normalize(doc Document) (Document, []byte, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, nil, eris.Wrap(err, "docstore: marshal document")
	}
	var out Document
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, nil, eris.Wrap(err, "docstore: unmarshal document")
	}
	return out, raw, nil
}

func decode(raw []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, eris.Wrap(err, "docstore: decode document")
	}
	return doc, nil
}

// project copies only the requested paths of doc.
func project(doc Document, fields []string) Document {
	if len(fields) == 0 {
		return doc
	}
	out := make(Document, len(fields))
	for _, f := range fields {
		if v, ok := docpath.Get(doc, f); ok {
			_ = docpath.Set(out, f, v)
		}
	}
	return out
}

// upsertKey derives the identity of doc from its key fields.
func upsertKey(doc Document, keys []string) (string, error) {
	if len(keys) == 0 {
		return "", eris.New("docstore: upsert: no key fields specified")
	}
	vals := make([]any, len(keys))
	for i, k := range keys {
		v, ok := docpath.Get(doc, k)
		if !ok {
			return "", eris.Errorf("docstore: upsert: document missing key field %q", k)
		}
		vals[i] = v
	}
	raw, err := json.Marshal(vals)
	if err != nil {
		return "", eris.Wrap(err, "docstore: upsert: marshal key")
	}
	return strings.Join(keys, ",") + "|" + string(raw), nil
}

// filter applies the exact criteria match and projection.
func filter(docs []Document, c Criteria, fields []string) []Document {
	out := make([]Document, 0, len(docs))
	for _, d := range docs {
		if c.Matches(d) {
			out = append(out, project(d, fields))
		}
	}
	return out
}

// Normalize returns doc as it reads back from any store.
func Normalize(doc Document) (Document, error) {
	out, _, err := normalize(doc)
	return out, err
}
