// This package contains the main [Policy] interface and several implementations.
package retry

import "context"

// Policy defines how an operation is reattempted, such as the coordinator's suspend
// handshake.
//
// Implementations are not considered thread-safe and each instance is used by a single
// worker.
type Policy interface {
	// Attempt checks if another attempt should be made.
	//
	// This method blocks until an attempt can be made or the context is cancelled. It
	// internally handles waiting between attempts based on the policy configuration.
	// Returns true if an attempt should be made, false if no attempts remain.
	Attempt(ctx context.Context) bool
	// Derive returns a new Policy instance for a single operation.
	//
	// The returned policy maintains its own internal state for tracking attempts.
	Derive() Policy
}
