package alloc

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/outofforest/datatree/types"
)

type item struct {
	Value uint64
}

func TestArenaAllocation(t *testing.T) {
	const capacity = 5
	requireT := require.New(t)

	a := NewArena[item](ArenaConfig{Capacity: capacity, ChunkSize: 2})

	addresses := make([]types.NodeAddress, 0, capacity)
	for i := range uint64(capacity) {
		address, obj, err := a.Allocate()
		requireT.NoError(err)
		requireT.Zero(obj.Value)
		obj.Value = i
		addresses = append(addresses, address)
	}

	requireT.Equal([]types.NodeAddress{
		types.NewNodeAddress(1, 1),
		types.NewNodeAddress(2, 1),
		types.NewNodeAddress(3, 1),
		types.NewNodeAddress(4, 1),
		types.NewNodeAddress(5, 1),
	}, addresses)
	requireT.EqualValues(capacity, a.Live())

	_, _, err := a.Allocate()
	requireT.Error(err)
	requireT.True(errors.Is(err, types.ErrOutOfMemory))

	for i, address := range addresses {
		requireT.EqualValues(i, a.Get(address).Value)
	}
}

func TestArenaReusesSlots(t *testing.T) {
	requireT := require.New(t)

	a := NewArena[item](ArenaConfig{Capacity: 2})

	address1, obj1, err := a.Allocate()
	requireT.NoError(err)
	obj1.Value = 10

	address2, _, err := a.Allocate()
	requireT.NoError(err)

	a.Deallocate(address1)
	requireT.Nil(a.Get(address1))
	requireT.NotNil(a.Get(address2))
	requireT.EqualValues(1, a.Live())

	address3, obj3, err := a.Allocate()
	requireT.NoError(err)
	requireT.Equal(address1.Index(), address3.Index())
	requireT.Equal(address1.Generation()+1, address3.Generation())
	requireT.Zero(obj3.Value)

	// Stale address must not affect the new occupant of the slot.
	a.Deallocate(address1)
	requireT.NotNil(a.Get(address3))
	requireT.EqualValues(2, a.Live())
}

func TestArenaZeroAddress(t *testing.T) {
	requireT := require.New(t)

	a := NewArena[item](ArenaConfig{})
	requireT.Nil(a.Get(0))
	a.Deallocate(0)
	requireT.Zero(a.Live())

	for range 1000 {
		_, _, err := a.Allocate()
		requireT.NoError(err)
	}
	requireT.EqualValues(1000, a.Live())
}
