// Package task is the execution controller. A fixed pool of workers claims
// PENDING jobs from the store, renders their prompts, calls the provider
// under a concurrency bound and per-job deadline, validates the responses
// with bounded retries and records exactly one terminal outcome per job.
// It also fails jobs orphaned by a previous process and evicts expired
// terminal jobs.
package task
