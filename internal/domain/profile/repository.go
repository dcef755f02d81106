package profile

import "context"

// Gateway is the backend endpoint that owns profiles.
type Gateway interface {
	// Get returns the current user's profile. A missing profile is reported
	// as an error matching usecase.ErrNotFound.
	Get(ctx context.Context) (Profile, error)
	// Create provisions a profile for the current user.
	Create(ctx context.Context) (Profile, error)
}
