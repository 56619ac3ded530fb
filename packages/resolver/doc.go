// Package resolver runs command resolvers: external programs that compute
// dynamic values (signatures, secrets, timestamps) during variable
// interpolation.
//
// Each call spawns one short-lived process and exchanges a single
// line-delimited JSON request/response pair:
//
//	stdin:  {"resolver": "$sign", "args": ["payload"]}
//	stdout: {"value": "computed"}
//
// Captured output is byte-capped, and a two-phase kill (SIGTERM, then
// SIGKILL after a grace window) bounds runaway programs.
package resolver
