package task

import (
	"errors"
	"fmt"
	"time"
)

// Common errors returned by the Runner
var (
	ErrRunnerStarted    = errors.New("task runner already started")
	ErrRunnerNotStarted = errors.New("task runner not started")
	ErrInvalidConfig    = errors.New("invalid task runner configuration")
)

// errProviderPanic is the cause recorded when a provider call panics.
var errProviderPanic = errors.New("provider call panicked")

// RunnerConfig holds configuration for the task runner
type RunnerConfig struct {
	// WorkerCount is the number of concurrent workers and also the bound on
	// in-flight provider calls.
	WorkerCount int

	// MaxAttempts is the number of provider calls a job may make.
	MaxAttempts int

	// PollInterval is how often an idle worker checks the store without
	// having been woken.
	PollInterval time.Duration

	// Retention is how long terminal jobs are kept before eviction.
	Retention time.Duration

	// JanitorInterval is how often eviction runs. Zero disables the janitor.
	JanitorInterval time.Duration

	// StoreTimeout bounds each store write made on behalf of a job.
	StoreTimeout time.Duration
}

// DefaultRunnerConfig returns a RunnerConfig with reasonable defaults
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		WorkerCount:     4,
		MaxAttempts:     3,
		PollInterval:    2 * time.Second,
		Retention:       24 * time.Hour,
		JanitorInterval: 5 * time.Minute,
		StoreTimeout:    5 * time.Second,
	}
}

func (c RunnerConfig) validate() error {
	switch {
	case c.WorkerCount < 1:
		return fmt.Errorf("%w: worker count must be at least 1", ErrInvalidConfig)
	case c.MaxAttempts < 1:
		return fmt.Errorf("%w: max attempts must be at least 1", ErrInvalidConfig)
	case c.PollInterval <= 0:
		return fmt.Errorf("%w: poll interval must be positive", ErrInvalidConfig)
	case c.JanitorInterval > 0 && c.Retention <= 0:
		return fmt.Errorf("%w: retention must be positive when the janitor runs", ErrInvalidConfig)
	}
	return nil
}
