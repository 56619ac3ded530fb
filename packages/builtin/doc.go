// Package builtin provides the built-in resolver functions available to
// every request without any plugin: $uuid, $timestamp, $env, $randomInt,
// hashing and encoding helpers, and $jsonpath extraction.
package builtin
