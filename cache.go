package vfs

import "net/url"

// Cache maps root URIs to contexts so that a URI below a known root finds
// its context without creating a new one.
type Cache interface {
	// FindContext returns the context whose key is the longest prefix of uri, or nil.
	FindContext(uri *url.URL) Context
	PutContext(c Context)
	RemoveContext(c Context)
	// Flush drops every entry without closing the contexts.
	Flush()
}
