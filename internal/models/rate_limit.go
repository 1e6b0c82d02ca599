package models

// Rate limit action classes. Each class has its own (window, max) pair
// in the configuration. Attempts land as rows in the append-only
// rate_limit_log table; the count of rows for (identifier, action)
// inside the trailing window decides whether the next attempt is
// admitted.
const (
	ActionLogin  = "login"
	ActionVerify = "verify"
	ActionAPI    = "api"
)
