package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts
const (
	ServerRequestTimeout  = 60 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// Failed login throttling
const (
	LoginMaxAttempts    = 5
	LoginWindowDuration = time.Minute
)

// Upper bound for one completion round trip
const CompletionTimeout = 90 * time.Second

// Short-term request throttles, on top of the daily question quota
const (
	AskRateLimitPerMin    = 10
	AuthIPRateLimitPerMin = 20
)

// Request body limits
const (
	DefaultMaxBodySize = 1 << 20 // 1MB
	AskMaxBodySize     = 8 << 20 // attachments travel inline
)
