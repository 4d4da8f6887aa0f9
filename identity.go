package vfs

import (
	"github.com/fxamacker/cbor/v2"
)

var (
	identityEncMode cbor.EncMode
	identityDecMode cbor.DecMode
)

func init() {
	var err error

	identityEncMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("vfs: CBOR encoder initialization failed: " + err.Error())
	}

	identityDecMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("vfs: CBOR decoder initialization failed: " + err.Error())
	}
}

// Identity is the persisted form of a virtual file: the root URI of its
// outermost context plus its path name. Handles, caches and mounts are never
// persisted; use VirtualFileSystem.Resolve to obtain a live file again.
type Identity struct {
	RootURI string `cbor:"1,keyasint" json:"root_uri"`
	Path    string `cbor:"2,keyasint" json:"path"`
}

// IdentityOf returns the identity of h relative to its outermost context.
func IdentityOf(h Handler) Identity {
	c := h.Context()
	for outer := c.Outer(); outer != nil; outer = outer.Outer() {
		c = outer
	}

	return Identity{
		RootURI: c.RootURI().String(),
		Path:    h.PathName(),
	}
}

func (id Identity) IsZero() bool {
	return id.RootURI == ""
}

// MarshalBinary encodes the identity as deterministic CBOR.
func (id Identity) MarshalBinary() ([]byte, error) {
	return identityEncMode.Marshal(struct {
		RootURI string `cbor:"1,keyasint"`
		Path    string `cbor:"2,keyasint"`
	}{id.RootURI, id.Path})
}

func (id *Identity) UnmarshalBinary(b []byte) error {
	var decoded struct {
		RootURI string `cbor:"1,keyasint"`
		Path    string `cbor:"2,keyasint"`
	}
	if err := identityDecMode.Unmarshal(b, &decoded); err != nil {
		return err
	}

	id.RootURI = decoded.RootURI
	id.Path = decoded.Path
	return nil
}
