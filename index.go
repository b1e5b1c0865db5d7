package datatree

import (
	"slices"
	"strconv"

	"github.com/pkg/errors"

	"github.com/outofforest/datatree/alloc"
	"github.com/outofforest/datatree/types"
)

const minIndexCapacity = 4

// orderedIndex stores non-owning references to children of the node in the explicit order.
type orderedIndex struct {
	entries []types.NodeAddress
}

// find scans the index backwards and returns position of the entry with the name.
func (idx *orderedIndex) find(tree *Tree, name string) (int, bool) {
	for i := len(idx.entries) - 1; i >= 0; i-- {
		if s := tree.nodes.Get(idx.entries[i]); s != nil && s.name == name {
			return i, true
		}
	}
	return 0, false
}

func (idx *orderedIndex) replace(oldAddress, newAddress types.NodeAddress) {
	for i := len(idx.entries) - 1; i >= 0; i-- {
		if idx.entries[i] == oldAddress {
			idx.entries[i] = newAddress
			return
		}
	}
}

// insert inserts entry at position. Capacity of the index is reserved from the quota before growing.
func (idx *orderedIndex) insert(quota alloc.Quota, position int, address types.NodeAddress) error {
	if position < 0 || position > len(idx.entries) {
		return errors.Wrapf(types.ErrBadArgument, "position %d out of range [0, %d]", position, len(idx.entries))
	}
	if len(idx.entries) == cap(idx.entries) {
		newCap := max(minIndexCapacity, 2*cap(idx.entries))
		if err := quota.Reserve(uint64(newCap - cap(idx.entries))); err != nil {
			return err
		}
		entries := make([]types.NodeAddress, len(idx.entries), newCap)
		copy(entries, idx.entries)
		idx.entries = entries
	}
	idx.entries = slices.Insert(idx.entries, position, address)
	return nil
}

func (idx *orderedIndex) remove(position int) types.NodeAddress {
	address := idx.entries[position]
	idx.entries = slices.Delete(idx.entries, position, position+1)
	return address
}

// InsertOrderedChild creates new child using sink as a factory and inserts it into the ordered index
// before the entry named optInsertBefore, or at the end. If optName is nil, unique name "I<n>" is generated.
// Operation is atomic: if the index can't be updated, the child is removed from the child map.
func (n Node) InsertOrderedChild(
	payload types.Payload,
	optInsertBefore, optName *string,
	sink, changeSink Sink,
) (Node, error) {
	s := n.state()
	if s == nil {
		return Node{}, errors.Wrap(types.ErrBadObject, "node does not exist")
	}
	if sink == nil {
		return Node{}, errors.Wrap(types.ErrBadArgument, "sink is required to create child")
	}

	if s.index == nil {
		s.index = &orderedIndex{}
	}

	var name string
	if optName == nil {
		for {
			name = string(types.AutoNamePrefix) + strconv.FormatUint(s.orderedCounter, 10)
			s.orderedCounter++
			if !n.HasChild(name) {
				break
			}
		}
	} else {
		name = *optName
	}

	child, err := sink.NewChildNode(name, payload)
	if err != nil {
		return Node{}, err
	}
	if !child.Valid() {
		return Node{}, errors.Wrap(types.ErrOutOfMemory, "child node has not been created")
	}

	// Replaced namesake must not leave a second entry with the same name in the index.
	// Its slot is freed, so inserting the new entry below never grows the index.
	namesakePosition, namesakeIndexed := s.index.find(n.tree, name)
	var namesakeAddress types.NodeAddress
	if namesakeIndexed {
		namesakeAddress = s.index.remove(namesakePosition)
		sink.IndexEntryRemoved(n, uint64(namesakePosition), name)
	}

	position := len(s.index.entries)
	if optInsertBefore != nil {
		if i, exists := s.index.find(n.tree, *optInsertBefore); exists {
			position = i
		}
	}

	if err := n.PutChild(child, sink, changeSink); err != nil {
		if !child.hasParent() {
			n.tree.free(child.address)
		}
		if namesakeIndexed {
			_ = s.index.insert(n.tree.config.Quota, namesakePosition, namesakeAddress)
			sink.IndexEntryInserted(n, uint64(namesakePosition), name)
		}
		return Node{}, err
	}
	if err := s.index.insert(n.tree.config.Quota, position, child.address); err != nil {
		// Error of the index insert is the one reported, rollback failure can't be handled better.
		_ = n.RemoveChild(name, sink, false, nil)
		return Node{}, err
	}

	sink.IndexEntryInserted(n, uint64(position), name)
	return child, nil
}

func (n Node) hasParent() bool {
	_, exists := n.Parent()
	return exists
}

// RemoveIndexEntryAt removes entry at position from the ordered index.
func (n Node) RemoveIndexEntryAt(position uint64, sink Sink) error {
	s := n.state()
	if s == nil {
		return errors.Wrap(types.ErrBadObject, "node does not exist")
	}
	if s.index == nil || position >= uint64(len(s.index.entries)) {
		return errors.Wrapf(types.ErrNotFound, "index entry %d does not exist", position)
	}

	address := s.index.remove(int(position))
	if sink != nil {
		if es := n.tree.nodes.Get(address); es != nil {
			sink.IndexEntryRemoved(n, position, es.name)
		}
	}
	return nil
}

// InsertIndexEntryAt inserts existing child stored under key into the ordered index at position.
func (n Node) InsertIndexEntryAt(position uint64, sink Sink, key string) error {
	s := n.state()
	if s == nil {
		return errors.Wrap(types.ErrBadObject, "node does not exist")
	}
	if s.children == nil {
		return errors.Wrap(types.ErrBadObject, "node has no children")
	}
	address, exists := s.children.Get(key)
	if !exists {
		return errors.Wrapf(types.ErrNotFound, "child %q does not exist", key)
	}

	if s.index == nil {
		s.index = &orderedIndex{}
	}
	if position > uint64(len(s.index.entries)) {
		return errors.Wrapf(types.ErrBadArgument, "position %d out of range [0, %d]", position,
			len(s.index.entries))
	}
	if err := s.index.insert(n.tree.config.Quota, int(position), address); err != nil {
		return err
	}

	if sink != nil {
		sink.IndexEntryInserted(n, position, key)
	}
	return nil
}

// ReorderChild moves index entry of the child before the entry named optMoveBefore, or to the end.
// Moving child before itself is a no-op.
func (n Node) ReorderChild(child Node, optMoveBefore *string, sink Sink) error {
	s := n.state()
	if s == nil {
		return errors.Wrap(types.ErrBadObject, "node does not exist")
	}
	cs := child.state()
	if cs == nil {
		return errors.Wrap(types.ErrBadArgument, "child does not exist")
	}
	if s.index == nil {
		return errors.Wrap(types.ErrNotFound, "node has no index")
	}
	if optMoveBefore != nil && *optMoveBefore == cs.name {
		return nil
	}

	if err := n.RemoveIndexEntry(cs.name, sink); err != nil {
		return err
	}

	position := len(s.index.entries)
	if optMoveBefore != nil && n.HasChild(*optMoveBefore) {
		if i, exists := s.index.find(n.tree, *optMoveBefore); exists {
			position = i
		}
	}

	if err := s.index.insert(n.tree.config.Quota, position, child.address); err != nil {
		return err
	}

	if sink != nil {
		sink.IndexEntryInserted(n, uint64(position), cs.name)
	}
	return nil
}

// RemoveIndexEntry removes entry with the name from the ordered index.
func (n Node) RemoveIndexEntry(name string, sink Sink) error {
	s := n.state()
	if s == nil {
		return errors.Wrap(types.ErrBadObject, "node does not exist")
	}
	if s.index == nil {
		return errors.Wrapf(types.ErrNotFound, "index entry %q does not exist", name)
	}
	position, exists := s.index.find(n.tree, name)
	if !exists {
		return errors.Wrapf(types.ErrNotFound, "index entry %q does not exist", name)
	}

	s.index.remove(position)
	if sink != nil {
		sink.IndexEntryRemoved(n, uint64(position), name)
	}
	return nil
}

// HasIndex checks if ordered index has been created.
func (n Node) HasIndex() bool {
	s := n.state()
	return s != nil && s.index != nil
}

// IndexLen returns number of entries in the ordered index.
func (n Node) IndexLen() int {
	s := n.state()
	if s == nil || s.index == nil {
		return 0
	}
	return len(s.index.entries)
}

// IndexEntryAt returns child referenced by the ordered index at position.
func (n Node) IndexEntryAt(position uint64) (Node, bool) {
	s := n.state()
	if s == nil || s.index == nil || position >= uint64(len(s.index.entries)) {
		return Node{}, false
	}
	return n.node(s.index.entries[position]), true
}

// IndexEntries returns children referenced by the ordered index, in order.
func (n Node) IndexEntries() []Node {
	s := n.state()
	if s == nil || s.index == nil {
		return nil
	}
	nodes := make([]Node, 0, len(s.index.entries))
	for _, address := range s.index.entries {
		nodes = append(nodes, n.node(address))
	}
	return nodes
}
