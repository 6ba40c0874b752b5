// Package store defines the job record store contract and the errors its
// implementations share. Implementations live under internal/platform.
package store
