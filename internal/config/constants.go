package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts. The request timeout has to outlast SessionReadyTimeout.
const (
	ServerRequestTimeout  = 60 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// Session readiness wait applied by the start operation
const (
	SessionReadyTimeout      = 10 * time.Second
	SessionReadyPollInterval = 100 * time.Millisecond
)

// Teardown budget per session during terminate and flush
const SessionTeardownTimeout = 15 * time.Second

// Default rate limiting
const DefaultRateLimitPerMin = 120
