// Package postgres backs notification.Store with PostgreSQL via pgx.
//
// The store works against any pgx-compatible query surface, so the same code
// runs on a pool and inside a transaction. Conditional status updates are a
// single UPDATE with the expected status in the WHERE clause, which is what
// makes competing delivery workers safe without locks. Compiled filter
// predicates render to parameterized SQL; no user value ever reaches the query
// text.
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil { ... }
//	backend := notification.New(postgres.New(pool))
package postgres
