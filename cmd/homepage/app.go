package main

import (
	"context"
	"database/sql"
	"io"
	"log/slog"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-redis/redis/v8"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/yanachan-dev/homepage/internal/config"
	"github.com/yanachan-dev/homepage/internal/errors"
	"github.com/yanachan-dev/homepage/pkg/events"
	"github.com/yanachan-dev/homepage/pkg/kv"
	"github.com/yanachan-dev/homepage/pkg/store"
	"github.com/yanachan-dev/homepage/pkg/swcache"
	_ "modernc.org/sqlite"
)

// app holds the collaborators every command shares: the storage picked by
// the config, the event bus and the store restored from it.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	storage *kv.Storage
	caches  swcache.CacheStorage
	bus     *events.Manager
	store   *store.Store

	closers []func() error
}

// openApp opens the configured storage and restores the store. Log output
// goes to logOut.
func openApp(ctx context.Context, cfg *config.Config, logOut io.Writer) (*app, error) {
	a := &app{
		cfg:    cfg,
		logger: cfg.Log.Logger(logOut),
	}

	backend, err := a.openBackend(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.storage = kv.NewStorage(backend, kv.WithLogger(a.logger))
	a.closers = append(a.closers, backend.Close)

	a.bus = events.New(events.WithLogger(a.logger))
	a.store = store.New(a.bus, a.storage,
		store.WithLogger(a.logger),
		store.WithContext(ctx),
		store.WithInitialState(func() store.State {
			st := store.DefaultState()
			if cfg.Language != "" {
				st.App.Language = cfg.Language
			}
			return st
		}),
	)
	return a, nil
}

// openBackend opens the key-value backend and the matching cache storage.
// Only the SQL drivers keep cached responses across restarts.
func (a *app) openBackend(ctx context.Context) (kv.Backend, error) {
	switch driver := a.cfg.Storage.Driver; driver {
	case "", "memory":
		a.caches = swcache.NewMemoryStorage()
		return kv.NewMemoryBackend(), nil

	case "sqlite", "postgres":
		name := driver
		if driver == "postgres" {
			name = "pgx"
		}
		db, err := sql.Open(name, a.cfg.StorageDSN())
		if err != nil {
			return nil, errors.New("E120").Wrap(err)
		}
		a.closers = append(a.closers, db.Close)
		if driver == "sqlite" {
			// SQLite allows one writer.
			db.SetMaxOpenConns(1)
		}
		dialect, err := kv.ParseDialect(driver)
		if err != nil {
			return nil, errors.New("E103").Wrap(err)
		}

		opts := []kv.SQLOption{kv.WithSQLDialect(dialect)}
		if a.cfg.Storage.Table != "" {
			opts = append(opts, kv.WithSQLTableName(a.cfg.Storage.Table))
		}
		backend := kv.NewSQLBackend(db, opts...)
		if err := backend.CreateTable(ctx); err != nil {
			return nil, errors.New("E120").Wrap(err)
		}

		caches := swcache.NewSQLStorage(db, swcache.WithSQLDialect(dialect))
		if err := caches.CreateTables(ctx); err != nil {
			return nil, errors.New("E121").Wrap(err)
		}
		a.caches = caches
		return backend, nil

	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     a.cfg.Redis.Addr,
			Password: a.cfg.Redis.Password,
			DB:       a.cfg.Redis.DB,
		})
		a.closers = append(a.closers, client.Close)
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, errors.New("E120").
				WithDetail("Redis at " + a.cfg.Redis.Addr + " did not answer PING.").
				Wrap(err)
		}
		var opts []kv.RedisOption
		if a.cfg.Redis.Prefix != "" {
			opts = append(opts, kv.WithRedisPrefix(a.cfg.Redis.Prefix))
		}
		a.caches = swcache.NewMemoryStorage()
		return kv.NewRedisBackend(client, opts...), nil

	case "s3":
		var loadOpts []func(*awsconfig.LoadOptions) error
		if a.cfg.S3.Region != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(a.cfg.S3.Region))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, errors.New("E120").Wrap(err)
		}
		var opts []kv.S3Option
		if a.cfg.S3.Prefix != "" {
			opts = append(opts, kv.WithS3Prefix(a.cfg.S3.Prefix))
		}
		a.caches = swcache.NewMemoryStorage()
		return kv.NewS3Backend(s3.NewFromConfig(awsCfg), a.cfg.S3.Bucket, opts...), nil

	default:
		return nil, errors.New("E103").WithDetail("Unknown storage driver " + driver + ".")
	}
}

// Close releases storage in reverse order of opening.
func (a *app) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}
