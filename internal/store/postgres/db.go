package postgres

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// SlowQuery logs queries slower than this at warn level. Zero disables
	// query logging.
	SlowQuery time.Duration
	Log       *slog.Logger
}

func Open(ctx context.Context, databaseURL string, opts Options) (*bun.DB, error) {
	sqlDB, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	if opts.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}
	if opts.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(opts.ConnMaxIdleTime)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	db := bun.NewDB(sqlDB, pgdialect.New())
	if opts.SlowQuery > 0 {
		db.AddQueryHook(newSlowQueryHook(opts.SlowQuery, opts.Log))
	}
	return db, nil
}

func Close(db *bun.DB) error {
	if db == nil {
		return nil
	}
	return db.Close()
}

// Ping is used by the health endpoint.
func Ping(ctx context.Context, db *bun.DB) error {
	return db.PingContext(ctx)
}

type slowQueryHook struct {
	threshold time.Duration
	log       *slog.Logger
}

func newSlowQueryHook(threshold time.Duration, log *slog.Logger) *slowQueryHook {
	if log == nil {
		log = slog.Default()
	}
	return &slowQueryHook{threshold: threshold, log: log.With(slog.String("component", "postgres"))}
}

func (h *slowQueryHook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

// AfterQuery logs failed and slow queries. Missing rows are an expected
// outcome and are not logged.
func (h *slowQueryHook) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	elapsed := time.Since(event.StartTime)
	switch {
	case event.Err != nil && !errors.Is(event.Err, sql.ErrNoRows):
		h.log.LogAttrs(ctx, slog.LevelDebug, "query failed",
			slog.String("operation", event.Operation()),
			slog.Duration("elapsed", elapsed),
			slog.Any("err", event.Err),
		)
	case elapsed >= h.threshold:
		h.log.LogAttrs(ctx, slog.LevelWarn, "slow query",
			slog.String("operation", event.Operation()),
			slog.Duration("elapsed", elapsed),
			slog.String("query", event.Query),
		)
	}
}
