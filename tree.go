package datatree

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/outofforest/datatree/alloc"
	"github.com/outofforest/datatree/types"
	"github.com/outofforest/datatree/wildcard"
)

// Config stores tree configuration.
type Config struct {
	// Capacity is the maximum number of nodes, including root. 0 means unlimited.
	Capacity uint64

	// Quota is consulted whenever ordered index needs to grow. Unlimited if nil.
	Quota alloc.Quota

	// Matcher resolves wildcard path segments. Default one is created if nil.
	Matcher *wildcard.Matcher

	// Logger receives warnings. Nothing is logged if nil.
	Logger *zap.Logger
}

// New creates new tree containing root node only.
func New(config Config) (*Tree, error) {
	if config.Quota == nil {
		config.Quota = alloc.NewQuota(0)
	}
	if config.Matcher == nil {
		var err error
		config.Matcher, err = wildcard.NewMatcher(0)
		if err != nil {
			return nil, err
		}
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	t := &Tree{
		config: config,
		nodes: alloc.NewArena[nodeState](alloc.ArenaConfig{
			Capacity: config.Capacity,
		}),
	}

	root, err := t.NewNode("", nil)
	if err != nil {
		return nil, errors.Wrap(err, "allocating root node failed")
	}
	t.root = root.address

	return t, nil
}

// Tree holds the root node and the storage of all the nodes.
// Tree is not safe for concurrent use, all the operations must be executed by the single goroutine.
type Tree struct {
	config Config
	nodes  *alloc.Arena[nodeState]
	root   types.NodeAddress
}

// Root returns root node.
func (t *Tree) Root() Node {
	return Node{tree: t, address: t.root}
}

// NewNode creates detached node.
func (t *Tree) NewNode(name string, payload types.Payload) (Node, error) {
	address, s, err := t.nodes.Allocate()
	if err != nil {
		return Node{}, err
	}
	s.name = name
	s.payload = payload
	return Node{tree: t, address: address}, nil
}

// Node returns node stored under address.
func (t *Tree) Node(address types.NodeAddress) (Node, bool) {
	if t.nodes.Get(address) == nil {
		return Node{}, false
	}
	return Node{tree: t, address: address}, true
}

// Count returns number of allocated nodes, both attached and detached.
func (t *Tree) Count() uint64 {
	return t.nodes.Live()
}

// Matcher returns matcher used to resolve wildcards.
func (t *Tree) Matcher() *wildcard.Matcher {
	return t.config.Matcher
}

// free returns node and its whole subtree to the arena.
func (t *Tree) free(address types.NodeAddress) {
	stack := []types.NodeAddress{address}
	for len(stack) > 0 {
		address := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		s := t.nodes.Get(address)
		if s == nil {
			continue
		}
		if s.children != nil {
			for pair := s.children.Oldest(); pair != nil; pair = pair.Next() {
				// Child might have been moved to another parent without being removed from this one.
				if cs := t.nodes.Get(pair.Value); cs != nil && cs.parent == address {
					stack = append(stack, pair.Value)
				}
			}
		}
		if s.index != nil {
			t.config.Quota.Release(uint64(cap(s.index.entries)))
		}
		t.nodes.Deallocate(address)
	}
}
