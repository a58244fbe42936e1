// Package registry tracks the active backend generation and answers the
// ordered eligible-candidate query used by the forwarder. Candidates are
// sorted ascending by priority with configuration order breaking ties, and
// filtered to enabled, healthy backends whose circuit is not open.
package registry
