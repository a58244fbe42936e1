// Package backend defines the immutable backend descriptor loaded from
// configuration and the runtime backend object carrying its health status.
package backend
