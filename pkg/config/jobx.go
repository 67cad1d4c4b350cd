package config

import "time"

// JobxConfig configures the background job queue. Jobs only run when Redis
// is enabled; otherwise work is done inline.
type JobxConfig struct {
	Enabled           bool
	Concurrency       int
	Queues            []string
	PollInterval      time.Duration
	ShutdownTimeout   time.Duration
	DequeueTimeout    time.Duration
	DefaultRetryDelay time.Duration
	Retention         time.Duration
}

func loadJobxConfig() JobxConfig {
	return JobxConfig{
		Enabled:           getEnvBool("JOBX_ENABLED", true),
		Concurrency:       getEnvInt("JOBX_CONCURRENCY", 2),
		Queues:            getEnvStringSlice("JOBX_QUEUES", []string{"mail"}),
		PollInterval:      getEnvDuration("JOBX_POLL_INTERVAL", time.Second),
		ShutdownTimeout:   getEnvDuration("JOBX_SHUTDOWN_TIMEOUT", 30*time.Second),
		DequeueTimeout:    getEnvDuration("JOBX_DEQUEUE_TIMEOUT", 5*time.Second),
		DefaultRetryDelay: getEnvDuration("JOBX_DEFAULT_RETRY_DELAY", 30*time.Second),
		Retention:         getEnvDuration("JOBX_RETENTION", 24*time.Hour),
	}
}
