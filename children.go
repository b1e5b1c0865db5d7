package datatree

import (
	"github.com/pkg/errors"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/outofforest/datatree/types"
)

// PutChild attaches child to the node under child's name.
// Child previously stored under the same name is replaced, it keeps its position in the child map
// and in the ordered index. attachSink is notified about attachment, changeSink about the change,
// carrying payload of the replaced child (nil if there was none).
func (n Node) PutChild(child Node, attachSink, changeSink Sink) error {
	s := n.state()
	if s == nil {
		return errors.Wrap(types.ErrBadObject, "node does not exist")
	}
	cs := child.state()
	if cs == nil {
		return errors.Wrap(types.ErrBadArgument, "child does not exist")
	}
	if child.tree != n.tree || child.address == n.address {
		return errors.Wrap(types.ErrBadArgument, "invalid child")
	}

	if s.children == nil {
		s.children = orderedmap.New[string, types.NodeAddress]()
	}

	if err := child.SetParent(n, attachSink); err != nil {
		return err
	}

	var oldPayload types.Payload
	oldAddress, replaced := s.children.Set(cs.name, child.address)
	replaced = replaced && oldAddress != child.address
	if replaced {
		if os := n.tree.nodes.Get(oldAddress); os != nil {
			oldPayload = os.payload
			if s.index != nil {
				s.index.replace(oldAddress, child.address)
			}
		}
	}

	if changeSink != nil {
		changeSink.NodeChanged(child, oldPayload, 0)
	}

	if replaced {
		if os := n.tree.nodes.Get(oldAddress); os != nil && os.parent == n.address {
			os.parent = 0
			n.tree.free(oldAddress)
		}
	}
	return nil
}

// RemoveChild removes child stored under the name.
// If recurse is set, descendants of the child are removed first, depth-first, each one with its own
// notifications. Index entry of the child is removed and sink is notified before the child is detached,
// so its path is still resolvable. Each removed node decrements optCounter.
// If the child has been attached to another parent in the meantime, only the entries of this node are dropped
// and the child stays alive under its current parent.
func (n Node) RemoveChild(name string, sink Sink, recurse bool, optCounter *uint64) error {
	s := n.state()
	if s == nil {
		return errors.Wrap(types.ErrBadObject, "node does not exist")
	}
	if s.children == nil {
		return errors.Wrapf(types.ErrNotFound, "child %q does not exist", name)
	}
	childAddress, exists := s.children.Get(name)
	if !exists {
		return errors.Wrapf(types.ErrNotFound, "child %q does not exist", name)
	}

	if child := n.node(childAddress); recurse && child.ownedBy(n) {
		for child.HasChildren() {
			// Descend along first children to the deepest one and remove it. Repeating this removes
			// the subtree in the same order as recursive removal of the first child would, without recursion.
			parent := child
			leaf := child.firstChild()
			for leaf.ownedBy(parent) && leaf.HasChildren() {
				parent = leaf
				leaf = leaf.firstChild()
			}
			if err := parent.removeChild(leaf.Name(), sink, optCounter); err != nil {
				return err
			}
		}
	}

	return n.removeChild(name, sink, optCounter)
}

func (n Node) removeChild(name string, sink Sink, optCounter *uint64) error {
	s := n.state()
	childAddress, exists := s.children.Get(name)
	if !exists {
		return errors.Wrapf(types.ErrNotFound, "child %q does not exist", name)
	}

	// NotFound is ignored, the child may have never been indexed.
	_ = n.RemoveIndexEntry(name, sink)

	child := n.node(childAddress)
	if !child.ownedBy(n) {
		s.children.Delete(name)
		return nil
	}

	if sink != nil {
		sink.NodeAboutToBeRemoved(child, child.state().payload)
	}
	if err := child.SetParent(Node{}, sink); err != nil {
		return err
	}
	if optCounter != nil && *optCounter > 0 {
		*optCounter--
	}

	s.children.Delete(name)
	n.tree.free(childAddress)
	return nil
}

// ownedBy checks if parent is the current parent of the node.
func (n Node) ownedBy(parent Node) bool {
	s := n.state()
	return s != nil && s.parent == parent.address
}

func (n Node) firstChild() Node {
	s := n.state()
	if s == nil || s.children == nil {
		return Node{}
	}
	if pair := s.children.Oldest(); pair != nil {
		return n.node(pair.Value)
	}
	return Node{}
}

// GetChild returns child stored under the name.
func (n Node) GetChild(name string) (Node, bool) {
	s := n.state()
	if s == nil || s.children == nil {
		return Node{}, false
	}
	address, exists := s.children.Get(name)
	if !exists {
		return Node{}, false
	}
	return n.node(address), true
}

// HasChild checks if child exists under the name.
func (n Node) HasChild(name string) bool {
	_, exists := n.GetChild(name)
	return exists
}

// HasChildren checks if node has any children.
func (n Node) HasChildren() bool {
	return n.ChildCount() > 0
}

// ChildCount returns number of children.
func (n Node) ChildCount() int {
	s := n.state()
	if s == nil || s.children == nil {
		return 0
	}
	return s.children.Len()
}

// Children iterates over children in the order they were first put.
// Children must not be added or removed during iteration.
func (n Node) Children() func(func(Node) bool) {
	return func(yield func(Node) bool) {
		s := n.state()
		if s == nil || s.children == nil {
			return
		}
		for pair := s.children.Oldest(); pair != nil; pair = pair.Next() {
			if !yield(n.node(pair.Value)) {
				return
			}
		}
	}
}
