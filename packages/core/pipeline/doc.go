// Package pipeline orchestrates one request's full lifecycle: before
// hooks, interpolation, compilation, compiled/after hooks, cookie
// injection and transmission, response hooks, and the retry decision
// loop.
//
// Every attempt re-derives the outgoing request from the original parsed
// source, so retries see fresh interpolation rather than the previous
// attempt's mutated carrier. Each Run invocation is independent state;
// concurrent runs share only read access to the plugin registry and
// resolver table.
package pipeline
