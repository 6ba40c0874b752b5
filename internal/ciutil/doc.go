// Package ciutil detects CI environments and resolves environment variables
// that have a preferred name and older fallbacks. Test helpers use it to
// locate integration databases.
package ciutil
