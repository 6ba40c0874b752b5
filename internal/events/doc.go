// Package events carries job status changes from the execution controller
// to interested listeners.
//
// The controller emits a JobEvent after every successful store transition.
// InMemoryEventEmitter fans each event out to registered handlers; Broker is
// the handler that keeps per-job subscriptions for the status stream. Events
// are wake-up signals: subscribers re-read the store for the authoritative
// state, so a dropped event never yields a wrong answer.
package events
