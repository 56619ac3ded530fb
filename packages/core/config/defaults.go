package config

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		DefaultEnvironment: "dev",
		Timeout:            30000, // 30 seconds
		Retries:            0,
		RetryDelay:         1000, // 1 second
		FollowRedirects:    BoolPtr(true),
		MaxRedirects:       10,
		ValidateSSL:        BoolPtr(true),
		HistoryPath:        ".treq/history.db",
	}
}
