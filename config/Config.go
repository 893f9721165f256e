package config

type StorageType string

const STORAGE_TYPE_REDIS StorageType = "redis"
const STORAGE_TYPE_INMEM StorageType = "memory"

type Config struct {
	RedisConfig RedisStorageConfig
	HttpPort    int
	StorageType StorageType

	// Scheduler.
	TickIntervalSeconds int
	BatchSize           int
	WorkerCapacity      int
	WorkerConcurrency   int

	// Step executor.
	MaxStepsPerTick       int
	MaxStepsPerEnrollment int
	MaxActionAttempts     int
	RetryBackoffSeconds   int
	ActionTimeoutSeconds  int

	// Operator stale-wait report default threshold.
	StaleWaitMinutes int

	// When set, step outcomes are appended to this file as JSON lines.
	AnalyticsLogFile string
}

type RedisStorageConfig struct {
	Addrs     []string
	Namespace string
}

// Sanitize fills zero values with engine defaults.
func (c *Config) Sanitize() {
	if c.TickIntervalSeconds <= 0 {
		c.TickIntervalSeconds = 60
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.WorkerCapacity <= 0 {
		c.WorkerCapacity = 512
	}
	if c.WorkerConcurrency <= 0 {
		c.WorkerConcurrency = 8
	}
	if c.MaxStepsPerTick <= 0 {
		c.MaxStepsPerTick = 25
	}
	if c.MaxStepsPerEnrollment <= 0 {
		c.MaxStepsPerEnrollment = 1000
	}
	if c.MaxActionAttempts <= 0 {
		c.MaxActionAttempts = 3
	}
	if c.RetryBackoffSeconds <= 0 {
		c.RetryBackoffSeconds = 60
	}
	if c.ActionTimeoutSeconds <= 0 {
		c.ActionTimeoutSeconds = 30
	}
	if c.StaleWaitMinutes <= 0 {
		c.StaleWaitMinutes = 60 * 24 * 7
	}
}
