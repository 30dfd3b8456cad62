// Package pg bootstraps the PostgreSQL layer behind the notification store:
// connection pooling via pgx/v5, schema migrations via goose/v3, health
// checks, and error-classification helpers.
//
// # Building blocks
//
//   - Config: populated from environment variables via github.com/caarlos0/env.
//     Controls pool limits, health-check cadence, and the migrations path
//     (default "migrations", where the notification schema lives).
//
//   - Connect: opens a *pgxpool.Pool from Config, retrying with backoff until
//     the database becomes available.
//
//   - Migrate: applies goose migrations through the same pool, so the schema
//     is current before any store call runs.
//
// # Usage
//
//	var cfg pg.Config
//	if err := env.Parse(&cfg); err != nil {
//		panic(err)
//	}
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		panic(err)
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, cfg, slog.Default()); err != nil {
//		panic(err)
//	}
//
//	store := postgres.New(pool)
//
// # Error handling
//
// Helpers such as [IsDuplicateKeyError] and [IsForeignKeyViolationError]
// unwrap *pgconn.PgError values so store code can classify failures without
// matching SQLSTATE strings itself. The store relies on the duplicate-key
// helper to arbitrate concurrent attachment-file inserts.
package pg
