package mount

import (
	"fmt"
	"sync"

	vfs "github.com/mwantia/vfs/v2"
)

// Owner identifies on whose behalf a mount is held open.
type Owner = vfs.Owner

type fileOwner struct {
	key vfs.HandlerKey
}

func (o fileOwner) OwnerKey() any {
	return o
}

func (o fileOwner) String() string {
	return "file " + o.key.Context + "/" + o.key.Path
}

// VirtualFileOwner returns an owner keyed by the node behind vf.
// Views of the same node yield interchangeable owners.
func VirtualFileOwner(vf *vfs.VirtualFile) Owner {
	return fileOwner{key: vfs.KeyOf(vf.Handler())}
}

type objectOwner struct {
	value any
}

func (o objectOwner) OwnerKey() any {
	return o
}

func (o objectOwner) String() string {
	return fmt.Sprintf("object %v", o.value)
}

// ObjectOwner returns an owner keyed by v, which must be comparable.
func ObjectOwner(v any) Owner {
	return objectOwner{value: v}
}

// ownerSet is the reverse index entry of one owner.
type ownerSet struct {
	mu      sync.Mutex
	entries map[*entry]struct{}
	// set once the owner was cleaned up; late additions go to a new set
	dead bool
}

func (r *Registry) index(owner Owner, e *entry) {
	key := owner.OwnerKey()
	for {
		value, _ := r.owners.LoadOrStore(key, &ownerSet{entries: make(map[*entry]struct{})})
		set := value.(*ownerSet)

		set.mu.Lock()
		if !set.dead {
			set.entries[e] = struct{}{}
			set.mu.Unlock()
			return
		}
		set.mu.Unlock()

		r.owners.CompareAndDelete(key, set)
	}
}

func (r *Registry) unindex(key any, e *entry) {
	value, ok := r.owners.Load(key)
	if !ok {
		return
	}
	set := value.(*ownerSet)

	set.mu.Lock()
	delete(set.entries, e)
	set.mu.Unlock()
}

// take removes the owner from the index and returns its entries.
func (r *Registry) take(key any) []*entry {
	value, ok := r.owners.LoadAndDelete(key)
	if !ok {
		return nil
	}
	set := value.(*ownerSet)

	set.mu.Lock()
	defer set.mu.Unlock()

	set.dead = true
	entries := make([]*entry, 0, len(set.entries))
	for e := range set.entries {
		entries = append(entries, e)
	}
	return entries
}
