package config

import (
	"time"

	"github.com/ticket721/actionset/analytics"
)

type StorageType string

type QueueType string

const STORAGE_TYPE_REDIS StorageType = "redis"
const STORAGE_TYPE_CASSANDRA StorageType = "cassandra"
const STORAGE_TYPE_INMEM StorageType = "memory"

const QUEUE_TYPE_REDIS QueueType = "redis"
const QUEUE_TYPE_INMEM QueueType = "memory"

const DEFAULT_STALENESS = 5 * time.Second

type RetryPolicy string

const RETRY_POLICY_FIXED RetryPolicy = "fixed"
const RETRY_POLICY_BACKOFF RetryPolicy = "backoff"

type Config struct {
	RedisConfig     RedisStorageConfig
	CassandraConfig CassandraStorageConfig
	StorageType     StorageType
	QueueType       QueueType
	ExecutorConfig  ExecutorConfig
	SchedulerConfig SchedulerConfig
	AnalyticsConfig analytics.DataCollectorConfig
	LogLevel        string
	Development     bool
}

type RedisStorageConfig struct {
	Addrs     []string
	Namespace string
	Password  string
	PoolSize  int
}

type CassandraStorageConfig struct {
	Addrs    []string
	KeySpace string
}

type ExecutorConfig struct {
	InputWorkers int
	EventWorkers int
	BatchSize    int
	PollInterval time.Duration
	// MaxAttempts bounds how many times a job is run before it stays failed.
	MaxAttempts int
	RetryPolicy RetryPolicy
	RetryAfter  time.Duration
	// JobTimeout is how long a job may stay active before it is taken back
	// from its worker and retried.
	JobTimeout time.Duration
}

type SchedulerConfig struct {
	Interval  time.Duration
	Staleness time.Duration
	BatchSize int
}

func (c SchedulerConfig) WithDefaults() SchedulerConfig {
	if c.Interval <= 0 {
		c.Interval = time.Second
	}
	if c.Staleness <= 0 {
		c.Staleness = DEFAULT_STALENESS
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	return c
}

func (c ExecutorConfig) WithDefaults() ExecutorConfig {
	if c.InputWorkers <= 0 {
		c.InputWorkers = 1
	}
	if c.EventWorkers <= 0 {
		c.EventWorkers = 1
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 200 * time.Millisecond
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryPolicy == "" {
		c.RetryPolicy = RETRY_POLICY_BACKOFF
	}
	if c.RetryAfter <= 0 {
		c.RetryAfter = time.Second
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = time.Minute
	}
	return c
}

// RetryDelay is the wait before the next run of a job that already ran
// attempt times.
func (c ExecutorConfig) RetryDelay(attempt int) time.Duration {
	switch c.RetryPolicy {
	case RETRY_POLICY_BACKOFF:
		return c.RetryAfter * time.Duration(attempt)
	default:
		return c.RetryAfter
	}
}
