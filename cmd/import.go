package main

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/materials-cli/internal/docstore"
	"github.com/sells-group/materials-cli/internal/model"
	"github.com/sells-group/materials-cli/internal/resilience"
)

var (
	importFile       string
	importCollection string
	importKey        string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Load JSON-lines task documents into a collection",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if importCollection == "" {
			return eris.New("import: --collection is required")
		}

		f, err := os.Open(importFile)
		if err != nil {
			return eris.Wrap(err, "import: open file")
		}
		defer f.Close() //nolint:errcheck

		docs, err := readJSONL(f)
		if err != nil {
			return eris.Wrapf(err, "import: %s", importFile)
		}

		backend, err := openBackend(ctx)
		if err != nil {
			return err
		}
		defer backend.Close() //nolint:errcheck

		store := backend.Collection(importCollection)
		chunk := cfg.Build.ChunkSize
		if chunk <= 0 {
			chunk = 500
		}
		keys := []string{importKey}
		var written int64
		for start := 0; start < len(docs); start += chunk {
			batch := docs[start:min(start+chunk, len(docs))]
			n, err := resilience.DoVal(ctx, retryConfig(), func(ctx context.Context) (int64, error) {
				return store.BulkUpsert(ctx, batch, keys)
			})
			if err != nil {
				return eris.Wrap(err, "import: upsert documents")
			}
			written += n
		}

		zap.L().Info("import complete",
			zap.String("file", importFile),
			zap.String("collection", importCollection),
			zap.Int64("written", written),
		)
		return nil
	},
}

// readJSONL decodes one document per non-blank line.
func readJSONL(r io.Reader) ([]docstore.Document, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	var docs []docstore.Document
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var doc docstore.Document
		if err := json.Unmarshal([]byte(text), &doc); err != nil {
			return nil, eris.Wrapf(err, "line %d", line)
		}
		docs = append(docs, doc)
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrap(err, "read lines")
	}
	return docs, nil
}

func init() {
	importCmd.Flags().StringVar(&importFile, "file", "", "path to a JSON-lines file (required)")
	importCmd.Flags().StringVar(&importCollection, "collection", "tasks", "target collection")
	importCmd.Flags().StringVar(&importKey, "key", model.FieldTaskID, "field identifying each document")
	_ = importCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(importCmd)
}
