// Package service contains the job queue facade, the only entry point
// callers use to create jobs and read their state.
//
// The facade validates input, creates the PENDING record and announces it
// through an events.EventEmitter so the task runner can pick it up. It never
// runs jobs and never writes job state after creation; that belongs to the
// task runner. Reads are snapshots from the injected store.JobStore.
//
// Subpackage auth issues and validates the bearer tokens that scope jobs to
// an owner.
package service
