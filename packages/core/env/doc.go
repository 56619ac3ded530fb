// Package env handles variable interpolation for treq requests.
//
// It provides functionality for:
//   - {{variable}} substitution from environment and file variables
//   - {{$resolver(args)}} dispatch into the merged plugin resolver table,
//     with builtin functions as the fallback
//   - Loading environment files (treq-env.yaml) and .env files
package env
