package mongo

import "errors"

var (
	// ErrFailedToConnectToMongo is returned when every startup attempt
	// configured by Config.RetryAttempts has failed.
	ErrFailedToConnectToMongo = errors.New("failed to connect to mongo")

	// ErrHealthcheckFailed wraps ping failures from Healthcheck.
	ErrHealthcheckFailed = errors.New("mongo healthcheck failed")
)
