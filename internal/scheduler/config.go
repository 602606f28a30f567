package scheduler

import (
	"os"
	"strings"
	"time"
)

type Config struct {
	// RunInterval is the pause between full job sweeps.
	RunInterval time.Duration
	// JobTimeout bounds each job's run.
	JobTimeout time.Duration
	// LockTTL bounds how long one instance may hold a job lock.
	LockTTL time.Duration
	// EnabledJobs restricts which jobs run; empty means all.
	EnabledJobs []string
}

func (c Config) withDefaults() Config {
	if c.RunInterval <= 0 {
		c.RunInterval = time.Minute
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = 5 * time.Minute
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 10 * time.Minute
	}
	return c
}

// LoadConfig reads the scheduler tunables from the environment.
func LoadConfig() Config {
	cfg := Config{}
	if v := os.Getenv("SCHEDULER_RUN_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.RunInterval = d
		}
	}
	if v := os.Getenv("SCHEDULER_JOB_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.JobTimeout = d
		}
	}
	if v := os.Getenv("SCHEDULER_ENABLED_JOBS"); v != "" {
		for _, job := range strings.Split(v, ",") {
			if job = strings.TrimSpace(job); job != "" {
				cfg.EnabledJobs = append(cfg.EnabledJobs, job)
			}
		}
	}
	return cfg.withDefaults()
}
