package docstore

import (
	"context"

	"github.com/rotisserie/eris"
)

// Supported backend drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Options selects and configures a backend.
type Options struct {
	Driver string
	DSN    string
	Pool   *PoolConfig
}

// Open connects to the configured backend and runs its migration.
func Open(ctx context.Context, opts Options) (Backend, error) {
	var (
		b   Backend
		err error
	)
	switch opts.Driver {
	case DriverMemory, "":
		b = NewMemory()
	case DriverSQLite:
		dsn := opts.DSN
		if dsn == "" {
			dsn = "materials.db"
		}
		b, err = NewSQLite(dsn)
	case DriverPostgres:
		if opts.DSN == "" {
			return nil, eris.New("docstore: postgres driver requires a dsn")
		}
		b, err = NewPostgres(ctx, opts.DSN, opts.Pool)
	default:
		return nil, eris.Errorf("docstore: unknown driver %q", opts.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := b.Migrate(ctx); err != nil {
		_ = b.Close()
		return nil, err
	}
	return b, nil
}
