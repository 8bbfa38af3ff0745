package crawler

import (
	"time"
)

// Config holds the configuration for a fetcher instance
type Config struct {
	DefaultTimeout time.Duration // Default timeout for requests
	MaxConcurrency int           // Maximum number of concurrent requests
	RateLimit      int           // Determines request delay range: base=1s/RateLimit, range=base to 1s
	UserAgent      string        // User agent string for requests
	RetryAttempts  int           // Number of retry attempts for failed requests
	RetryDelay     time.Duration // Delay between retry attempts
	MaxBodyBytes   int64         // Response body cap to bound memory per page
}

// DefaultConfig returns a Config instance with default values
func DefaultConfig() *Config {
	return &Config{
		DefaultTimeout: 30 * time.Second,
		MaxConcurrency: 5,
		RateLimit:      5, // Maximum no. of times per second (minimum delay 1/ratelimit)
		UserAgent:      "PageLensBot/1.0 (+https://www.pagelens.dev/bot)",
		RetryAttempts:  2,
		RetryDelay:     500 * time.Millisecond,
		MaxBodyBytes:   10 * 1024 * 1024,
	}
}
