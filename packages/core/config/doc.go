// Package config loads and validates project configuration: request
// defaults, permission policy, external resolver commands, and
// per-plugin settings. Files are schema-checked before unmarshalling.
package config
