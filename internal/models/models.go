package models

import "time"

// Credentials are the account the bot logs in with.
type Credentials struct {
	Username string
	Password string
}

// Session holds the bearer token for the lifetime of the process.
type Session struct {
	Token     string
	CreatedAt time.Time
}

// HeartbeatResult describes the outcome of one bio update.
type HeartbeatResult struct {
	Iteration int
	Bio       string
	SentAt    time.Time
	Err       error
}
