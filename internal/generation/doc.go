// Package generation defines the boundary to the AI provider and the closed
// catalog that maps each job type to its prompt template and response
// schema. Retry and validation policy live in the execution controller and
// the validate package, never in a Provider.
package generation
