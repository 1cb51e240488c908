package repository

import (
	"context"
)

// IPlatformClient defines the interface for talking to the platform HTTP API
type IPlatformClient interface {
	// CreateSession logs in and returns the bearer token
	CreateSession(ctx context.Context, username, password string) (string, error)
	// UpdateBio replaces the profile bio of username
	UpdateBio(ctx context.Context, token, username, bio string) error
}
