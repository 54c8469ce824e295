package models

const (
	StatusPending   = "PENDING"
	StatusConfirmed = "CONFIRMED"
	StatusCancelled = "CANCELLED"
	StatusCompleted = "COMPLETED"
)

const (
	// DefaultMaxPerWeek is the weekly cap of active reservations per client.
	DefaultMaxPerWeek = 3

	// DefaultGuardTimeoutMs bounds how long an admission waits for its guard.
	DefaultGuardTimeoutMs = 3000

	// DefaultGuardTTLSeconds is the lease lifetime of a distributed guard key.
	DefaultGuardTTLSeconds = 15

	// DefaultSweepIntervalMinutes is how often ended reservations are completed.
	DefaultSweepIntervalMinutes = 10

	// DefaultRateLimitRPS and DefaultRateLimitBurst are the API limiter defaults.
	DefaultRateLimitRPS   = 10
	DefaultRateLimitBurst = 20
)
