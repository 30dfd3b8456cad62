// Package config provides a type-safe, generic and cached way to load
// application configuration from environment variables.
//
// It wraps `github.com/joho/godotenv` and `github.com/caarlos0/env/v11`
// to deliver a convenient API that:
//
//   - Loads values from one or multiple `.env` files (fallback to the default
//     `.env` in the current working directory).
//   - Parses the environment into any Go struct using field tags.
//   - Caches each successfully loaded configuration type so it is only parsed
//     once for the lifetime of the process.
//   - Exposes helpers that panic on failure (`MustLoadEnv`, `MustLoad`) for
//     configuration the application cannot start without.
//   - Allows explicit cache reset or force reload which is handy in tests.
//
// # Architecture
//
// Internally the package keeps a singleton `configCache` that stores parsed
// struct copies keyed by their fully-qualified type name. Each key also holds a
// `sync.Once` instance guaranteeing the expensive parsing work is executed at
// most once per configuration type even when accessed from multiple goroutines
// concurrently.
//
// # Usage
//
// Annotate a struct with `env` tags, for example the database settings used by
// pkg/pg:
//
//	type Config struct {
//	    ConnectionString string `env:"PG_CONN_URL,required"`
//	    MaxOpenConns     int32  `env:"PG_MAX_OPEN_CONNS" envDefault:"10"`
//	}
//
// Load the default `.env` file (optional) then populate the struct:
//
//	import (
//	    "github.com/dmitrymomot/notifykit/pkg/config"
//	    "github.com/dmitrymomot/notifykit/pkg/pg"
//	)
//
//	func main() {
//	    var dbCfg pg.Config
//	    if err := config.Load(&dbCfg); err != nil {
//	        log.Fatalf("parsing env: %v", err)
//	    }
//
//	    pool, err := pg.Connect(ctx, dbCfg)
//	    ...
//	}
//
// Subsequent calls to `config.Load(&dbCfg)` are served from the in-memory
// cache without re-parsing.
//
// # Error Handling
//
// The package defines sentinel errors that can be compared with `errors.Is`:
//
//   - `ErrParsingConfig` failed to parse env vars into struct.
//   - `ErrConfigNotLoaded` requested config type has not been loaded yet.
//   - `ErrNilPointer` nil pointer passed to `Load`/`MustLoad`.
//   - `ErrFailedToLoadEnv` a `.env` file could not be read.
//
// # Testing Helpers
//
// Use `ResetCache()` to clear the global cache between tests or
// `ForceReloadConfig(&cfg)` to reload a particular struct after the process
// environment changes.
package config
