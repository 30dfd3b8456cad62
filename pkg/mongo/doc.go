// Package mongo manages the MongoDB connection behind the document-store
// notification backend.
//
// Configuration is environment-driven via github.com/caarlos0/env, and the
// connect helpers retry on transient failures so process startup survives a
// briefly unavailable replica set. The document store in
// pkg/notification/mongo depends on transactions, which MongoDB only supports
// on replica sets and sharded clusters; a standalone server will accept the
// connection but fail the first transactional write.
//
// # Usage
//
//	var cfg mongo.Config
//	if err := env.Parse(&cfg); err != nil {
//		log.Fatal(err)
//	}
//
//	db, err := mongo.NewWithDatabase(ctx, cfg, "notifications")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer db.Client().Disconnect(ctx)
//
//	store := mongostore.New(db)
//	if err := store.EnsureIndexes(ctx); err != nil {
//		log.Fatal(err)
//	}
//
// Healthcheck returns a func(context.Context) error suitable for readiness
// probes. Connection failures are wrapped in package sentinels and classified
// with errors.Is.
package mongo
