package mongo

import "time"

// Config carries the connection settings for the document store,
// loadable from the environment via pkg/config.
type Config struct {
	// ConnectionURL is the mongodb:// or mongodb+srv:// URI.
	ConnectionURL  string        `env:"MONGODB_URL,required"`
	ConnectTimeout time.Duration `env:"MONGODB_CONNECT_TIMEOUT" envDefault:"10s"`

	// Connection pool limits.
	MaxPoolSize     uint64        `env:"MONGODB_MAX_POOL_SIZE" envDefault:"100"`
	MinPoolSize     uint64        `env:"MONGODB_MIN_POOL_SIZE" envDefault:"1"`
	MaxConnIdleTime time.Duration `env:"MONGODB_MAX_CONN_IDLE_TIME" envDefault:"300s"`

	// Driver-level retries for individual operations.
	RetryWrites bool `env:"MONGODB_RETRY_WRITES" envDefault:"true"`
	RetryReads  bool `env:"MONGODB_RETRY_READS" envDefault:"true"`

	// Startup retries performed by New before giving up on the server.
	RetryAttempts int           `env:"MONGODB_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval time.Duration `env:"MONGODB_RETRY_INTERVAL" envDefault:"5s"`
}
