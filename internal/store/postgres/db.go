package postgres

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

const defaultSlowQuery = 500 * time.Millisecond

type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	// SlowQuery is the duration above which a query is logged at Warn. Zero uses 500ms,
	// a negative value disables the hook.
	SlowQuery time.Duration
	Logger    *slog.Logger
}

// Open connects through the pgx stdlib driver, pings, and installs a query hook
// that reports slow and failed queries.
func Open(ctx context.Context, databaseURL string, pool PoolConfig) (*bun.DB, error) {
	sqlDB, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	if pool.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}
	if pool.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(pool.ConnMaxIdleTime)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	db := bun.NewDB(sqlDB, pgdialect.New())
	if pool.SlowQuery >= 0 {
		db.AddQueryHook(newQueryLogHook(pool.Logger, pool.SlowQuery))
	}
	return db, nil
}

// Close logs the final pool counters and closes the pool.
func Close(db *bun.DB, log *slog.Logger) error {
	if db == nil {
		return nil
	}
	if log != nil {
		st := db.Stats()
		log.Info("closing database pool",
			slog.Int("open_connections", st.OpenConnections),
			slog.Int64("wait_count", st.WaitCount),
			slog.Duration("wait_duration", st.WaitDuration),
		)
	}
	return db.Close()
}

type queryLogHook struct {
	log       *slog.Logger
	threshold time.Duration
	now       func() time.Time
}

var _ bun.QueryHook = (*queryLogHook)(nil)

func newQueryLogHook(log *slog.Logger, threshold time.Duration) *queryLogHook {
	if log == nil {
		log = slog.Default()
	}
	if threshold == 0 {
		threshold = defaultSlowQuery
	}
	return &queryLogHook{
		log:       log.With(slog.String("component", "postgres")),
		threshold: threshold,
		now:       time.Now,
	}
}

func (h *queryLogHook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (h *queryLogHook) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	elapsed := h.now().Sub(event.StartTime)

	// Not-found and lost slot races are expected outcomes handled by the repo.
	if event.Err != nil && !errors.Is(event.Err, sql.ErrNoRows) && !isUniqueViolation(event.Err) {
		h.log.WarnContext(ctx, "query failed",
			slog.String("operation", event.Operation()),
			slog.Duration("elapsed", elapsed),
			slog.Any("err", event.Err),
		)
		return
	}
	if elapsed >= h.threshold {
		h.log.WarnContext(ctx, "slow query",
			slog.String("operation", event.Operation()),
			slog.Duration("elapsed", elapsed),
			slog.String("query", truncate(event.Query, 200)),
		)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
