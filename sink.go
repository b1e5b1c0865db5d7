package datatree

import (
	"github.com/outofforest/datatree/types"
)

// Sink receives notifications about tree mutations and constructs new child nodes.
// Notifications are delivered synchronously, before the mutating method returns.
type Sink interface {
	// NodeAdded is called after node is attached to the parent and its depth is computed.
	NodeAdded(node Node)

	// NodeChanged is called after payload of the node is set or node replaces its namesake.
	NodeChanged(node Node, oldPayload types.Payload, flags types.ChangeFlags)

	// NodeAboutToBeRemoved is called while node is still attached, so its path can be resolved.
	NodeAboutToBeRemoved(node Node, payload types.Payload)

	// IndexEntryInserted is called after child is inserted into the ordered index of the node.
	IndexEntryInserted(node Node, position uint64, childName string)

	// IndexEntryRemoved is called after child is removed from the ordered index of the node.
	IndexEntryRemoved(node Node, position uint64, childName string)

	// NewChildNode creates detached node to be inserted as a child.
	NewChildNode(name string, payload types.Payload) (Node, error)
}

// NewBaseSink returns sink ignoring notifications and allocating plain nodes from the tree.
func NewBaseSink(tree *Tree) BaseSink {
	return BaseSink{tree: tree}
}

// BaseSink ignores notifications. It is meant to be embedded by sinks interested in some of them.
type BaseSink struct {
	tree *Tree
}

// NodeAdded does nothing.
func (s BaseSink) NodeAdded(Node) {}

// NodeChanged does nothing.
func (s BaseSink) NodeChanged(Node, types.Payload, types.ChangeFlags) {}

// NodeAboutToBeRemoved does nothing.
func (s BaseSink) NodeAboutToBeRemoved(Node, types.Payload) {}

// IndexEntryInserted does nothing.
func (s BaseSink) IndexEntryInserted(Node, uint64, string) {}

// IndexEntryRemoved does nothing.
func (s BaseSink) IndexEntryRemoved(Node, uint64, string) {}

// NewChildNode allocates new node from the tree.
func (s BaseSink) NewChildNode(name string, payload types.Payload) (Node, error) {
	return s.tree.NewNode(name, payload)
}
