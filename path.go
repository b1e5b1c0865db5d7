package datatree

import (
	"math"
	"strings"

	"github.com/outofforest/datatree/types"
	"github.com/outofforest/datatree/wildcard"
)

// MaxDepth is the depth limit meaning "no limit" for path resolution.
const MaxDepth = math.MaxUint32

// NodePath returns slash-separated names of ancestors from startDepth down to the node.
// Path starts with slash only if startDepth is 0. Root's path is "/" (or "" for startDepth > 0).
func (n Node) NodePath(startDepth uint32) string {
	s := n.state()
	if s == nil {
		return ""
	}
	if s.parent == 0 {
		if startDepth == 0 {
			return "/"
		}
		return ""
	}

	// Compute exact length first, so path is built without reallocation.
	var pathLen int
	var segments int
	for d, ns := int64(s.depth), s; d >= int64(startDepth) && ns.parent != 0; d-- {
		pathLen += 1 + len(ns.name)
		segments++
		ns = n.tree.nodes.Get(ns.parent)
	}
	if pathLen > 0 && startDepth > 0 {
		pathLen--
	}

	buf := make([]byte, pathLen)
	writeAt := pathLen
	for d, ns := s.depth, s; d >= startDepth && ns.parent != 0 && segments > 0; d-- {
		writeAt -= len(ns.name)
		copy(buf[writeAt:], ns.name)
		if startDepth == 0 || d > startDepth {
			writeAt--
			buf[writeAt] = types.PathSeparator
		}
		ns = n.tree.nodes.Get(ns.parent)
		segments--
	}
	return string(buf)
}

// PathClause returns name of the ancestor (or the node itself) at depth.
func (n Node) PathClause(depth uint32) (string, bool) {
	s := n.state()
	if s == nil || depth > s.depth {
		return "", false
	}
	ns := s
	for i := depth; i < s.depth && ns != nil; i++ {
		ns = n.tree.nodes.Get(ns.parent)
	}
	if ns == nil {
		return "", false
	}
	return ns.name, true
}

// Root returns the topmost ancestor of the node.
func (n Node) Root() Node {
	s := n.state()
	if s == nil {
		return Node{}
	}
	address := n.address
	for s.parent != 0 {
		address = s.parent
		s = n.tree.nodes.Get(address)
	}
	return n.node(address)
}

// FindFirstMatchingNode resolves path, possibly containing wildcard segments, relative to the node,
// or relative to the root if path starts with slash. First match wins. Descent stops after maxDepth levels.
func (n Node) FindFirstMatchingNode(path string, maxDepth uint32) (Node, bool) {
	s := n.state()
	if s == nil {
		return Node{}, false
	}

	switch {
	case path == "":
		return n, true
	case path[0] == types.PathSeparator:
		return n.Root().FindFirstMatchingNode(path[1:], maxDepth)
	}

	if s.children == nil || maxDepth == 0 {
		return Node{}, false
	}

	segment, rest, _ := strings.Cut(path, string(types.PathSeparator))
	if wildcard.HasWildcard(segment) {
		pattern, err := n.tree.config.Matcher.Compile(segment)
		if err != nil {
			return Node{}, false
		}
		for pair := s.children.Oldest(); pair != nil; pair = pair.Next() {
			if !pattern.Match(pair.Key) {
				continue
			}
			if found, exists := n.node(pair.Value).FindFirstMatchingNode(rest, maxDepth-1); exists {
				return found, true
			}
		}
		return Node{}, false
	}

	child, exists := s.children.Get(segment)
	if !exists {
		return Node{}, false
	}
	return n.node(child).FindFirstMatchingNode(rest, maxDepth-1)
}

// FindMatchingNodes resolves path the same way FindFirstMatchingNode does but returns all the matches,
// in child map order.
func (n Node) FindMatchingNodes(path string, maxDepth uint32) []Node {
	var nodes []Node
	n.findMatchingNodes(path, maxDepth, &nodes)
	return nodes
}

func (n Node) findMatchingNodes(path string, maxDepth uint32, nodes *[]Node) {
	s := n.state()
	if s == nil {
		return
	}

	switch {
	case path == "":
		*nodes = append(*nodes, n)
		return
	case path[0] == types.PathSeparator:
		n.Root().findMatchingNodes(path[1:], maxDepth, nodes)
		return
	}

	if s.children == nil || maxDepth == 0 {
		return
	}

	segment, rest, _ := strings.Cut(path, string(types.PathSeparator))
	if !wildcard.HasWildcard(segment) {
		if child, exists := s.children.Get(segment); exists {
			n.node(child).findMatchingNodes(rest, maxDepth-1, nodes)
		}
		return
	}

	pattern, err := n.tree.config.Matcher.Compile(segment)
	if err != nil {
		return
	}
	for pair := s.children.Oldest(); pair != nil; pair = pair.Next() {
		if pattern.Match(pair.Key) {
			n.node(pair.Value).findMatchingNodes(rest, maxDepth-1, nodes)
		}
	}
}

// GetDescendant returns node at exact slash-separated path relative to the node. No wildcards are resolved.
func (n Node) GetDescendant(subPath string) (Node, bool) {
	node := n
	for {
		segment, rest, more := strings.Cut(subPath, string(types.PathSeparator))
		child, exists := node.GetChild(segment)
		if !exists {
			return Node{}, false
		}
		if !more {
			return child, true
		}
		node = child
		subPath = rest
	}
}
