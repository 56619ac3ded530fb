// Package http provides the transport layer for treq request execution.
//
// It wraps the standard library's http package with additional features:
//   - Configurable timeouts and redirect handling
//   - Proxy and TLS verification toggles
//   - Caller-supplied context cancellation, which always takes precedence
//     over the client's own timeout
//
// Request and Response are the carrier records threaded through the
// pipeline stages and plugin hooks; they are plain data and safe to copy.
package http
