package config

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// entry holds the parsed value for a single configuration type together
// with the sync.Once guarding its parse.
type entry struct {
	once  sync.Once
	value any
	err   error
}

var (
	cacheMu sync.Mutex
	cache   = make(map[string]*entry)

	defaultEnvLoaded sync.Once
)

// Load parses environment variables into the provided configuration
// struct based on its `env` field tags. Each configuration type is
// parsed at most once per process; subsequent calls for the same type
// are served from an in-memory cache, even across goroutines.
//
// Before the first parse the default `.env` file is loaded if present.
//
// Example:
//
//	type DatabaseConfig struct {
//		Host     string `env:"DB_HOST" envDefault:"localhost"`
//		Port     int    `env:"DB_PORT" envDefault:"5432"`
//		Username string `env:"DB_USER,required"`
//		Password string `env:"DB_PASS,required"`
//	}
//
//	var dbConfig DatabaseConfig
//	if err := config.Load(&dbConfig); err != nil {
//		// Handle error
//	}
func Load[T any](v *T) error {
	defaultEnvLoaded.Do(func() {
		// The default .env is optional, a missing file is fine.
		_ = godotenv.Load()
	})
	if v == nil {
		return ErrNilPointer
	}

	e := entryFor(typeNameOf[T]())
	e.once.Do(func() {
		parsed := new(T)
		if parseErr := env.Parse(parsed); parseErr != nil {
			e.err = errors.Join(ErrParsingConfig, parseErr)
			return
		}
		// Store a copy so callers cannot mutate the cached value.
		e.value = *parsed
	})
	if e.err != nil {
		return e.err
	}

	value, ok := e.value.(T)
	if !ok {
		return ErrConfigNotLoaded
	}
	*v = value
	return nil
}

// MustLoad works like Load but panics if configuration loading fails.
// Intended for configuration the application cannot start without.
func MustLoad[T any](v *T) {
	if err := Load(v); err != nil {
		panic(fmt.Sprintf("Failed to load required configuration: %v", err))
	}
}

// entryFor returns the cache entry for the given type name, creating it
// if needed.
func entryFor(name string) *entry {
	cacheMu.Lock()
	defer cacheMu.Unlock()

	e, ok := cache[name]
	if !ok {
		e = &entry{}
		cache[name] = e
	}
	return e
}

// typeNameOf returns a string identifier for the generic type T.
func typeNameOf[T any]() string {
	t := reflect.TypeOf(*new(T))
	if t == nil {
		// Interface types have no concrete reflect.Type.
		return fmt.Sprintf("%T", *new(T))
	}
	return t.String()
}
