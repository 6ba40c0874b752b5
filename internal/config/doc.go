// Package config defines the server's settings and loads them with viper.
//
// Values come from built-in defaults, an optional config.yaml, and
// GENQUEUE_-prefixed environment variables, in increasing precedence.
// Load validates the result so the server never starts with a zero worker
// pool or a timeout ceiling below its default.
package config
