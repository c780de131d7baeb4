package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/materials-cli/internal/builder"
	"github.com/sells-group/materials-cli/internal/docstore"
	"github.com/sells-group/materials-cli/internal/resilience"
)

func openBackend(ctx context.Context) (docstore.Backend, error) {
	b, err := docstore.Open(ctx, docstore.Options{
		Driver: cfg.Store.Driver,
		DSN:    cfg.Store.DatabaseURL,
		Pool: &docstore.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	return b, nil
}

func retryConfig() resilience.RetryConfig {
	r := resilience.DefaultRetryConfig()
	if cfg.Retry.MaxAttempts > 0 {
		r.MaxAttempts = cfg.Retry.MaxAttempts
	}
	if cfg.Retry.InitialBackoff > 0 {
		r.InitialBackoff = cfg.Retry.InitialBackoff
	}
	if cfg.Retry.MaxBackoff > 0 {
		r.MaxBackoff = cfg.Retry.MaxBackoff
	}
	return r
}

// runFlags are the command-line overrides shared by build and status.
type runFlags struct {
	dryRun   bool
	workers  int
	formulas []string
}

func newDriver(backend docstore.Backend, name string, f runFlags) (*builder.Driver, error) {
	proc, err := builder.New(name, cfg)
	if err != nil {
		return nil, err
	}
	bc, err := builder.BuilderConfig(name, cfg)
	if err != nil {
		return nil, err
	}

	stores := builder.Stores{
		Source: backend.Collection(bc.Source),
		Target: backend.Collection(bc.Target),
	}
	if bc.Validation != "" {
		stores.Validation = backend.Collection(bc.Validation)
	}
	if cfg.Build.LogCollection != "" {
		stores.Log = backend.Collection(cfg.Build.LogCollection)
	}

	opts := builder.Options{
		Workers:             cfg.Build.Workers,
		PartitionsPerSecond: cfg.Build.PartitionsPerSecond,
		ChunkSize:           cfg.Build.ChunkSize,
		DryRun:              f.dryRun,
		Retry:               retryConfig(),
	}
	if f.workers > 0 {
		opts.Workers = f.workers
	}
	if len(f.formulas) > 0 {
		opts.Query = docstore.Where(docstore.In(proc.Fields().Formula, f.formulas))
	}
	return builder.NewDriver(proc, stores, opts), nil
}
