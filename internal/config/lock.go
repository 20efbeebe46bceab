package config

import "time"

// Lock strategy names accepted by LOCK_STRATEGY.
const (
	LockStrategyRedis  = "redis"  // distributed lock on Redis (multi-process)
	LockStrategyDB     = "db"     // pessimistic lock inside the database (single-database)
	LockStrategyMemory = "memory" // in-process lock (single node, also used in tests)
)

// LockConfig defines settings for the lock coordinator.  Strategy selects
// one of the interchangeable implementations; AcquireWait bounds how long a
// single arbitration attempt may wait for the lock before the request is
// treated as contested; Lease is the maximum time a lock may be held before
// it is forcibly released, which protects against crashed holders.
type LockConfig struct {
	Strategy    string
	AcquireWait time.Duration
	Lease       time.Duration
}

// LoadLockConfig reads environment variables to build a LockConfig.
// Defaults are used when variables are not set.  The lease is kept at
// least twice the acquire wait so a holder cannot be stolen from while
// contenders are still inside their bounded wait.
func LoadLockConfig() LockConfig {
	cfg := LockConfig{
		Strategy:    envStr("LOCK_STRATEGY", LockStrategyRedis),
		AcquireWait: envDur("LOCK_ACQUIRE_WAIT", 500*time.Millisecond),
		Lease:       envDur("LOCK_LEASE", 10*time.Second),
	}
	if cfg.AcquireWait <= 0 {
		cfg.AcquireWait = 500 * time.Millisecond
	}
	if cfg.Lease < 2*cfg.AcquireWait {
		cfg.Lease = 2 * cfg.AcquireWait
	}
	return cfg
}

// SweeperConfig defines settings for the periodic expiry sweeper.
// Interval is the sweep period; PaymentTimeout is how long a PENDING
// reservation may wait for payment confirmation before it is canceled;
// MaxDuration caps the length of a single reservation window.
type SweeperConfig struct {
	Interval       time.Duration
	PaymentTimeout time.Duration
	MaxDuration    time.Duration
}

// LoadSweeperConfig reads environment variables to build a SweeperConfig
// with the documented policy defaults: a 60 second sweep and a 10 minute
// payment timeout.
func LoadSweeperConfig() SweeperConfig {
	cfg := SweeperConfig{
		Interval:       envDur("SWEEP_INTERVAL", time.Minute),
		PaymentTimeout: envDur("PAYMENT_TIMEOUT", 10*time.Minute),
		MaxDuration:    envDur("MAX_RESERVATION_DURATION", 24*time.Hour),
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.PaymentTimeout <= 0 {
		cfg.PaymentTimeout = 10 * time.Minute
	}
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = 24 * time.Hour
	}
	return cfg
}
