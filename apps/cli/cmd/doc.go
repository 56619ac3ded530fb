// Package cmd implements the treq CLI commands using Cobra.
//
// Available commands:
//   - run: Execute requests from treq files through the plugin pipeline
//   - validate: Check request file syntax without executing
//   - list: Display all requests defined in files
//   - plugins: Show configured external resolvers
//   - history: Inspect persisted runs and plugin reports
//   - import: Convert curl commands or Insomnia exports to treq files
//   - init: Create a new treq project with example files
//   - version: Show treq version information
package cmd
