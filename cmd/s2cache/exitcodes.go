package main

// Exit codes
const (
	ExitSuccess     = 0 // Success
	ExitError       = 1 // General error (invalid arguments, runtime failure)
	ExitConfigError = 2 // Configuration error (bad config file, unusable cache dir)

	ExitNotFound  = 1 // Paper or author not found
	ExitAuthError = 2 // Missing or invalid S2_API_KEY
	ExitAPIError  = 3 // API error (rate limit, network)
)
