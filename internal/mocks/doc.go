// Package mocks provides shared mock implementations for tests.
//
// Each mock is a struct with an XxxFn field per interface method. Tests set
// the functions they care about; unset functions fall back to a simple
// default. Mocks record calls so tests can assert on them.
package mocks
