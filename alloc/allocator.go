package alloc

import (
	"github.com/pkg/errors"

	"github.com/outofforest/datatree/types"
	"github.com/outofforest/mass"
)

const defaultChunkSize = 128

// ArenaConfig stores configuration of arena.
type ArenaConfig struct {
	// Capacity is the maximum number of live objects, 0 means unlimited.
	Capacity uint64

	// ChunkSize is the number of objects allocated from the heap at once.
	ChunkSize uint64
}

// NewArena creates new arena.
func NewArena[T any](config ArenaConfig) *Arena[T] {
	if config.ChunkSize == 0 {
		config.ChunkSize = defaultChunkSize
	}
	return &Arena[T]{
		config: config,
		mass:   mass.New[T](config.ChunkSize),
		// Slot 0 is never allocated so zero address means "no object".
		slots:       []*T{nil},
		generations: []uint32{0},
	}
}

// Arena stores objects addressed by generational node addresses.
// Deallocated slots are reused, and their generation is bumped so stale addresses are detected.
type Arena[T any] struct {
	config ArenaConfig
	mass   *mass.Mass[T]

	slots       []*T
	generations []uint32
	free        []uint32
	live        uint64
}

// Allocate allocates zeroed object.
func (a *Arena[T]) Allocate() (types.NodeAddress, *T, error) {
	if a.config.Capacity > 0 && a.live >= a.config.Capacity {
		return 0, nil, errors.Wrapf(types.ErrOutOfMemory, "arena capacity %d exhausted", a.config.Capacity)
	}

	var index uint32
	if len(a.free) > 0 {
		index = a.free[len(a.free)-1]
		a.free = a.free[:len(a.free)-1]
	} else {
		if uint64(len(a.slots)) > uint64(^uint32(0)) {
			return 0, nil, errors.Wrap(types.ErrOutOfMemory, "arena address space exhausted")
		}
		index = uint32(len(a.slots))
		a.slots = append(a.slots, a.mass.New())
		a.generations = append(a.generations, 1)
	}

	a.live++
	return types.NewNodeAddress(index, a.generations[index]), a.slots[index], nil
}

// Get returns object stored under address, nil if address is stale or invalid.
func (a *Arena[T]) Get(address types.NodeAddress) *T {
	index := address.Index()
	if index == 0 || uint64(index) >= uint64(len(a.slots)) || a.generations[index] != address.Generation() {
		return nil
	}
	return a.slots[index]
}

// Deallocate returns slot to the arena. Stale addresses are ignored.
func (a *Arena[T]) Deallocate(address types.NodeAddress) {
	if a.Get(address) == nil {
		return
	}

	index := address.Index()
	var zero T
	*a.slots[index] = zero
	a.generations[index]++
	if a.generations[index] == 0 {
		// Generation 0 is reserved for never-allocated slot.
		a.generations[index] = 1
	}
	a.free = append(a.free, index)
	a.live--
}

// Live returns number of allocated objects.
func (a *Arena[T]) Live() uint64 {
	return a.live
}
