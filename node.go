package datatree

import (
	"slices"

	"github.com/pkg/errors"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"go.uber.org/zap"

	"github.com/outofforest/datatree/types"
)

type nodeState struct {
	name    string
	payload types.Payload
	parent  types.NodeAddress
	depth   uint32

	// children and index are nil until first used.
	children *orderedmap.OrderedMap[string, types.NodeAddress]
	index    *orderedIndex

	orderedCounter uint64
	maxChildIDHint uint64

	// cachedChecksum equal to 0 means it must be recomputed.
	cachedChecksum uint64

	subscribers map[types.SubscriberID]struct{}
}

// Node is the handle of the tree node.
// Zero value means "no node". Handle of removed node is stale: accessors return zero values
// and mutators return types.ErrBadObject.
type Node struct {
	tree    *Tree
	address types.NodeAddress
}

func (n Node) state() *nodeState {
	if n.tree == nil {
		return nil
	}
	return n.tree.nodes.Get(n.address)
}

func (n Node) node(address types.NodeAddress) Node {
	return Node{tree: n.tree, address: address}
}

// Valid returns true if handle points to existing node.
func (n Node) Valid() bool {
	return n.state() != nil
}

// Address returns address of the node.
func (n Node) Address() types.NodeAddress {
	return n.address
}

// Tree returns the tree node belongs to.
func (n Node) Tree() *Tree {
	return n.tree
}

// Name returns name of the node.
func (n Node) Name() string {
	if s := n.state(); s != nil {
		return s.name
	}
	return ""
}

// Payload returns payload of the node.
func (n Node) Payload() types.Payload {
	if s := n.state(); s != nil {
		return s.payload
	}
	return nil
}

// Parent returns parent of the node.
func (n Node) Parent() (Node, bool) {
	s := n.state()
	if s == nil || s.parent == 0 {
		return Node{}, false
	}
	return n.node(s.parent), true
}

// Depth returns the number of ancestors of the node.
func (n Node) Depth() uint32 {
	if s := n.state(); s != nil {
		return s.depth
	}
	return 0
}

// MaxChildIDHint returns the highest numeric suffix seen among names of children attached to the node.
func (n Node) MaxChildIDHint() uint64 {
	if s := n.state(); s != nil {
		return s.maxChildIDHint
	}
	return 0
}

// SetParent sets or clears (when parent is zero Node) the parent of the node.
// Overwriting existing parent is reported as a warning. If node is attached, sink is notified
// after depth is computed.
func (n Node) SetParent(parent Node, sink Sink) error {
	s := n.state()
	if s == nil {
		return errors.Wrap(types.ErrBadObject, "node does not exist")
	}

	var ps *nodeState
	if parent != (Node{}) {
		if ps = parent.state(); ps == nil {
			return errors.Wrap(types.ErrBadObject, "parent does not exist")
		}
		if parent.tree != n.tree {
			return errors.Wrap(types.ErrBadArgument, "parent belongs to another tree")
		}
		if n.isAncestorOf(parent) {
			return errors.Wrapf(types.ErrBadArgument, "node %q can't become descendant of itself", s.name)
		}
	}

	if s.parent != 0 && ps != nil {
		n.tree.config.Logger.Warn("Overwriting previous parent of node",
			zap.String("node", s.name),
			zap.String("path", n.NodePath(0)))
	}

	if ps == nil {
		s.parent = 0
		s.subscribers = nil
	} else {
		s.parent = parent.address
		ps.maxChildIDHint = max(ps.maxChildIDHint, autoNameID(s.name))
	}

	n.updateDepth(s)

	if ps != nil && sink != nil {
		sink.NodeAdded(n)
	}
	return nil
}

func (n Node) isAncestorOf(node Node) bool {
	for address := node.address; address != 0; {
		if address == n.address {
			return true
		}
		s := n.tree.nodes.Get(address)
		if s == nil {
			return false
		}
		address = s.parent
	}
	return false
}

// updateDepth computes depth of the node by walking its ancestors and then propagates it to descendants.
func (n Node) updateDepth(s *nodeState) {
	s.depth = 0
	for address := s.parent; address != 0; {
		s.depth++
		address = n.tree.nodes.Get(address).parent
	}

	if s.children == nil || s.children.Len() == 0 {
		return
	}

	stack := []*nodeState{s}
	for len(stack) > 0 {
		ps := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if ps.children == nil {
			continue
		}
		for pair := ps.children.Oldest(); pair != nil; pair = pair.Next() {
			cs := n.tree.nodes.Get(pair.Value)
			if cs == nil || n.tree.nodes.Get(cs.parent) != ps {
				continue
			}
			cs.depth = ps.depth + 1
			stack = append(stack, cs)
		}
	}
}

// autoNameID returns the numeric part of the name in the form of "I<digits>".
// Digits are parsed until first non-digit character, name without digits gives 0.
func autoNameID(name string) uint64 {
	if len(name) > 0 && name[0] == types.AutoNamePrefix {
		name = name[1:]
	}

	var id uint64
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c < '0' || c > '9' {
			break
		}
		next := id*10 + uint64(c-'0')
		if next < id {
			break
		}
		id = next
	}
	return id
}

// SetData replaces payload of the node and invalidates the cached checksum.
// Old payload is not reported if types.SetDataIsBeingCreated flag is set.
func (n Node) SetData(payload types.Payload, sink Sink, flags types.SetDataFlags) error {
	s := n.state()
	if s == nil {
		return errors.Wrap(types.ErrBadObject, "node does not exist")
	}

	var oldPayload types.Payload
	if !flags.IsSet(types.SetDataIsBeingCreated) {
		oldPayload = s.payload
	}
	s.payload = payload
	s.cachedChecksum = 0

	if sink != nil {
		var changeFlags types.ChangeFlags
		if flags.IsSet(types.SetDataEnableSupersede) {
			changeFlags |= types.ChangeEnableSupersede
		}
		sink.NodeChanged(n, oldPayload, changeFlags)
	}
	return nil
}

// AddSubscriber marks the node as interesting for the subscriber.
func (n Node) AddSubscriber(id types.SubscriberID) {
	s := n.state()
	if s == nil {
		return
	}
	if s.subscribers == nil {
		s.subscribers = map[types.SubscriberID]struct{}{}
	}
	s.subscribers[id] = struct{}{}
}

// RemoveSubscriber removes subscriber from the node.
func (n Node) RemoveSubscriber(id types.SubscriberID) {
	if s := n.state(); s != nil {
		delete(s.subscribers, id)
	}
}

// IsSubscribed checks if subscriber is interested in the node.
func (n Node) IsSubscribed(id types.SubscriberID) bool {
	s := n.state()
	if s == nil {
		return false
	}
	_, exists := s.subscribers[id]
	return exists
}

// Subscribers returns sorted subscribers interested in the node.
func (n Node) Subscribers() []types.SubscriberID {
	s := n.state()
	if s == nil || len(s.subscribers) == 0 {
		return nil
	}
	ids := make([]types.SubscriberID, 0, len(s.subscribers))
	for id := range s.subscribers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
