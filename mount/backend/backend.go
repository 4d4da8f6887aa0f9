package backend

import "context"

// Backend is used as lifecycle entrypoint for other backend implementations.
type Backend interface {
	// Name returns the identifier name defined for this backend
	Name() string
	// Open is part of the lifecycle behaviour and gets called once when the owning context opens this backend.
	Open(ctx context.Context) error
	// Close is part of the lifecycle behaviour and gets called when the owning context closes.
	Close(ctx context.Context) error

	// GetCapabilities returns a list of capabilities supported by this backend.
	GetCapabilities() *BackendCapabilities
}
