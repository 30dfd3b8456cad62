package config

import (
	"errors"
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// LoadEnv loads environment variables from one or more .env files.
// When called without arguments it loads the default `.env` from the
// current working directory. Files are applied in order and later files
// take precedence, overriding values already present in the process
// environment.
func LoadEnv(filenames ...string) error {
	// Mark the default .env as handled so Load does not re-read it.
	defaultEnvLoaded.Do(func() {})

	if err := godotenv.Overload(filenames...); err != nil {
		return errors.Join(ErrFailedToLoadEnv, err)
	}
	return nil
}

// MustLoadEnv works like LoadEnv but panics if any file cannot be loaded.
func MustLoadEnv(filenames ...string) {
	if err := LoadEnv(filenames...); err != nil {
		panic(fmt.Sprintf("Failed to load env files: %v", err))
	}
}

// ResetCache clears all cached configuration values. Primarily intended
// for tests that mutate the process environment between loads.
func ResetCache() {
	cacheMu.Lock()
	cache = make(map[string]*entry)
	cacheMu.Unlock()
}

// ForceReloadConfig re-parses the environment into the provided struct,
// bypassing and replacing any cached value for its type. Use it after
// the process environment has changed.
func ForceReloadConfig[T any](v *T) error {
	if v == nil {
		return ErrNilPointer
	}

	if parseErr := env.Parse(v); parseErr != nil {
		return errors.Join(ErrParsingConfig, parseErr)
	}

	e := &entry{value: *v}
	e.once.Do(func() {})

	cacheMu.Lock()
	cache[typeNameOf[T]()] = e
	cacheMu.Unlock()

	return nil
}
