package backend

import "slices"

// BackendCapability represents a capability that a backend can provide
type BackendCapability string

const (
	// Every backend can be read through OpenObject
	CapabilityRead BackendCapability = "read"
	// WriteObject and MkdirAll are available
	CapabilityWrite BackendCapability = "write"
	// DeleteObject is available
	CapabilityDelete BackendCapability = "delete"
	// ModifyTime reflects real changes and can be used for staleness checks
	CapabilityModifyTime BackendCapability = "modify_time"
	// The backend serves the contents of a single archive
	CapabilityArchive BackendCapability = "archive"
	// The backend keeps no state beyond the process lifetime
	CapabilityEphemeral BackendCapability = "ephemeral"
)

// BackendCapabilities describes what a backend supports
type BackendCapabilities struct {
	Capabilities  []BackendCapability `json:"capabilities"`
	MaxObjectSize int64               `json:"max_object_size"`
}

// Contains checks if a capability is supported
func (bc *BackendCapabilities) Contains(cap BackendCapability) bool {
	if bc == nil {
		return false
	}
	return slices.Contains(bc.Capabilities, cap)
}
