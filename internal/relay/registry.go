package relay

type slot struct {
	fd       int
	occupied bool
}

// Registry is a fixed-capacity table of live peer connections. It owns the
// descriptors it holds: nothing else may close or reuse an fd while its
// slot is occupied. All access happens on the event loop goroutine, so no
// locking is needed.
type Registry struct {
	slots []slot
}

func NewRegistry(capacity int) *Registry {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Registry{slots: make([]slot, capacity)}
}

// Allocate places fd in the lowest-indexed free slot. On ErrCapacity the
// caller keeps ownership of fd and must close it.
func (r *Registry) Allocate(fd int) (int, error) {
	for i := range r.slots {
		if !r.slots[i].occupied {
			r.slots[i] = slot{fd: fd, occupied: true}
			return i, nil
		}
	}
	return -1, ErrCapacity
}

// Free marks the slot empty. The underlying connection must already be
// closed or otherwise relinquished by the caller.
func (r *Registry) Free(index int) {
	if index < 0 || index >= len(r.slots) {
		return
	}
	r.slots[index] = slot{}
}

// Occupied returns the live slots in ascending index order. Broadcast and
// interest-set construction rely on this order: for a fixed assignment
// history, delivery order is deterministic.
func (r *Registry) Occupied() []SlotRef {
	refs := make([]SlotRef, 0, len(r.slots))
	for i := range r.slots {
		if r.slots[i].occupied {
			refs = append(refs, SlotRef{Index: i, FD: r.slots[i].fd})
		}
	}
	return refs
}

// Holds reports whether index still holds fd. A ready slot can have been
// torn down earlier in the same wake by a failed broadcast write; servicing
// checks with Holds before touching the descriptor.
func (r *Registry) Holds(index, fd int) bool {
	return index >= 0 && index < len(r.slots) &&
		r.slots[index].occupied && r.slots[index].fd == fd
}

func (r *Registry) Count() int {
	n := 0
	for i := range r.slots {
		if r.slots[i].occupied {
			n++
		}
	}
	return n
}

func (r *Registry) Capacity() int {
	return len(r.slots)
}
