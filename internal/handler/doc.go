// Package handler implements the catch-all HTTP entry point of the router.
// It hands each request to the forwarder and translates forwarding failures
// into stable service-unavailable responses.
package handler
