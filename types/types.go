package types

import (
	"github.com/pkg/errors"
)

const (
	// UInt64Length is the number of bytes taken by uint64.
	UInt64Length = 8

	// HashLength is the number of bytes taken by hash.
	HashLength = 32

	// AutoNamePrefix is the prefix of child names generated by the ordered index.
	AutoNamePrefix = 'I'

	// PathSeparator separates node names in path.
	PathSeparator = '/'
)

// Error kinds returned by tree operations.
var (
	// ErrNotFound is returned when lookup by name, position or key fails.
	ErrNotFound = errors.New("not found")

	// ErrBadArgument is returned for missing or self-referential arguments.
	ErrBadArgument = errors.New("bad argument")

	// ErrBadObject is returned when required substructure does not exist or node handle is stale.
	ErrBadObject = errors.New("bad object")

	// ErrOutOfMemory is returned when allocation fails.
	ErrOutOfMemory = errors.New("out of memory")
)

type (
	// NodeAddress is the generational handle of a node slot in the arena.
	// Lower 32 bits store the slot index, upper 32 bits store the slot generation.
	NodeAddress uint64

	// SubscriberID identifies subscriber interested in a node.
	SubscriberID uint64

	// Hash represents digest of a subtree.
	Hash [HashLength]byte
)

// NewNodeAddress builds node address from slot index and generation.
func NewNodeAddress(index, generation uint32) NodeAddress {
	return NodeAddress(uint64(generation)<<32 | uint64(index))
}

// Index returns slot index.
func (a NodeAddress) Index() uint32 {
	return uint32(a)
}

// Generation returns slot generation.
func (a NodeAddress) Generation() uint32 {
	return uint32(a >> 32)
}

// Payload is the opaque data record stored in node.
// Payload must not be modified once stored, it is replaced as a whole.
type Payload interface {
	Checksum() uint64
}

// PayloadChecksum returns checksum of payload, 0 if payload is absent.
func PayloadChecksum(p Payload) uint64 {
	if p == nil {
		return 0
	}
	return p.Checksum()
}

// SetDataFlags modifies behavior of setting node payload.
type SetDataFlags uint32

const (
	// SetDataIsBeingCreated means node has just been created so there is no old payload to report.
	SetDataIsBeingCreated SetDataFlags = 1 << iota

	// SetDataEnableSupersede means change may be coalesced with later changes of the same node.
	SetDataEnableSupersede
)

// IsSet checks if flag is set.
func (f SetDataFlags) IsSet(flag SetDataFlags) bool {
	return f&flag != 0
}

// ChangeFlags are passed to sink together with node change.
type ChangeFlags uint32

const (
	// ChangeEnableSupersede means change may be coalesced with later changes of the same node.
	ChangeEnableSupersede ChangeFlags = 1 << iota

	// ChangeIsBeingRemoved means node is about to be removed.
	ChangeIsBeingRemoved
)

// IsSet checks if flag is set.
func (f ChangeFlags) IsSet(flag ChangeFlags) bool {
	return f&flag != 0
}
