// Package domain contains the job entity, its state machine and the error
// classifications a terminal job can carry. It has no knowledge of storage,
// transport or the AI provider.
package domain
