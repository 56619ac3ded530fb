package cmd

// Exit codes for the treq CLI
const (
	// ExitSuccess indicates all requests completed
	ExitSuccess = 0

	// ExitRequestFailure indicates one or more requests failed
	ExitRequestFailure = 1

	// ExitParseError indicates a file parsing error
	ExitParseError = 2

	// ExitConfigError indicates a configuration error
	ExitConfigError = 3

	// ExitUsageError indicates invalid CLI usage
	ExitUsageError = 64
)
