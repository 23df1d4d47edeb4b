package seen

import (
	"context"

	"github.com/jonboulle/clockwork"
	"github.com/orgball2608/weibo-parser-discord-bot/internal/db"
	"github.com/orgball2608/weibo-parser-discord-bot/pkg/config"
	"github.com/orgball2608/weibo-parser-discord-bot/pkg/errors"
	"github.com/orgball2608/weibo-parser-discord-bot/pkg/logger"
	"github.com/orgball2608/weibo-parser-discord-bot/pkg/pgx"
	"github.com/pressly/goose/v3"
	"go.uber.org/fx"
)

var Module = fx.Module("seen_repository",
	fx.Provide(New),
)

type Opts struct {
	fx.In

	LC     fx.Lifecycle
	Config *config.Config
	Logger logger.Logger
	Clock  clockwork.Clock
}

// New opens the configured backend and brings its schema up to date.
// Failure here is fatal: the pipeline cannot run without dedup state.
func New(opts Opts) (Repository, error) {
	ctx := context.Background()

	if opts.Config.Store.Driver == "postgres" {
		conn, err := db.OpenPostgres(opts.Config.GetDSN())
		if err != nil {
			return nil, errors.WrapWithCode(err, errors.CodeResource, "open postgres for migrations")
		}
		applied, err := db.Migrate(ctx, conn, goose.DialectPostgres)
		conn.Close()
		if err != nil {
			return nil, errors.WrapWithCode(err, errors.CodeResource, "migrate postgres")
		}
		opts.Logger.Info("Dedup store migrated", "driver", "postgres", "applied", applied)

		pool, err := pgx.New(pgx.Opts{LC: opts.LC, Logger: opts.Logger, Config: opts.Config})
		if err != nil {
			return nil, errors.WrapWithCode(err, errors.CodeResource, "open postgres pool")
		}
		return NewPgx(pool, opts.Clock, opts.Logger), nil
	}

	conn, err := db.OpenSQLite(opts.Config.Store.Path)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeResource, "open sqlite store")
	}
	applied, err := db.Migrate(ctx, conn, goose.DialectSQLite3)
	if err != nil {
		conn.Close()
		return nil, errors.WrapWithCode(err, errors.CodeResource, "migrate sqlite store")
	}
	opts.Logger.Info("Dedup store migrated", "driver", "sqlite", "path", opts.Config.Store.Path, "applied", applied)

	repo := NewSQLite(conn, opts.Clock, opts.Logger)
	opts.LC.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return repo.Close()
		},
	})
	return repo, nil
}
