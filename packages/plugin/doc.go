// Package plugin implements the treq extension system: an ordered plugin
// registry, per-hook dispatch with failure isolation, permission-gated
// capability contexts, a scope-keyed report ledger, and pipeline telemetry
// events.
//
// Plugins are in-process closures bundled in a Definition. Hook names are
// whitelisted at registration; resolver names must be $-prefixed. One
// misbehaving plugin can never crash a request: its hook error is recorded,
// its pending output mutation is discarded, and dispatch continues with the
// next plugin.
package plugin
