// Package place stores each user's default unloading place.
//
// The pairing engine consults the store at finalize time; pairs matched
// before a place is known are deferred until one arrives. Backends: an
// in-memory map (session-scoped) and Redis for deployments that want the
// setting to survive restarts.
package place

import "context"

// Store defines the interface for default-place storage backends.
type Store interface {
	// Get returns the user's default place. ok is false when none is set.
	Get(ctx context.Context, user string) (place string, ok bool, err error)

	// Set records the user's default place.
	Set(ctx context.Context, user, place string) error

	// Name returns the backend name for logging/debugging.
	Name() string

	// Close releases resources.
	Close() error
}
