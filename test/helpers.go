package test

import (
	"sort"
	"strconv"

	"github.com/stretchr/testify/require"
	"golang.org/x/exp/constraints"

	"github.com/outofforest/datatree"
	"github.com/outofforest/datatree/types"
)

// Value is the payload used in tests.
type Value uint64

// Checksum returns checksum of the value.
func (v Value) Checksum() uint64 {
	return uint64(v)
}

// Sorted returns sorted copy of items.
func Sorted[T constraints.Ordered](items []T) []T {
	sorted := append([]T{}, items...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})
	return sorted
}

// CollectChildNames collects names of children in child map order.
func CollectChildNames(n datatree.Node) []string {
	names := []string{}
	for child := range n.Children() {
		names = append(names, child.Name())
	}
	return names
}

// CollectIndexNames collects names of ordered index entries.
func CollectIndexNames(n datatree.Node) []string {
	names := []string{}
	for _, entry := range n.IndexEntries() {
		names = append(names, entry.Name())
	}
	return names
}

// CollectPaths collects paths of all the nodes in the subtree, sorted.
func CollectPaths(n datatree.Node) []string {
	paths := []string{}
	stack := []datatree.Node{n}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		paths = append(paths, node.NodePath(0))
		for child := range node.Children() {
			stack = append(stack, child)
		}
	}
	return Sorted(paths)
}

// CheckInvariants verifies structural invariants of every node in the subtree:
// depth follows the parent chain, children are keyed by their names and point back to the parent,
// every index entry is a child.
func CheckInvariants(requireT *require.Assertions, n datatree.Node) {
	stack := []datatree.Node{n}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		requireT.True(node.Valid())

		if parent, exists := node.Parent(); exists {
			requireT.Equal(parent.Depth()+1, node.Depth(), node.NodePath(0))
		} else {
			requireT.Zero(node.Depth(), node.NodePath(0))
		}

		for child := range node.Children() {
			parent, exists := child.Parent()
			requireT.True(exists, child.NodePath(0))
			requireT.Equal(node.Address(), parent.Address(), child.NodePath(0))

			byName, exists := node.GetChild(child.Name())
			requireT.True(exists)
			requireT.Equal(child.Address(), byName.Address())

			stack = append(stack, child)
		}

		indexed := map[string]struct{}{}
		for _, entry := range node.IndexEntries() {
			child, exists := node.GetChild(entry.Name())
			requireT.True(exists, "index entry %q of %q is not a child", entry.Name(), node.NodePath(0))
			requireT.Equal(child.Address(), entry.Address())

			_, duplicated := indexed[entry.Name()]
			requireT.False(duplicated, "index entry %q of %q is duplicated", entry.Name(), node.NodePath(0))
			indexed[entry.Name()] = struct{}{}
		}
	}
}

// NewRecordingSink creates sink recording notifications.
func NewRecordingSink(tree *datatree.Tree) *RecordingSink {
	return &RecordingSink{
		BaseSink: datatree.NewBaseSink(tree),
	}
}

// Event is the notification recorded by RecordingSink.
type Event struct {
	Type      string
	Path      string
	Payload   types.Payload
	Flags     types.ChangeFlags
	Position  uint64
	ChildName string
	NodeDepth uint32
}

// RecordingSink records notifications. Paths are resolved when notification is received.
type RecordingSink struct {
	datatree.BaseSink

	Events []Event

	// FailNewChild, if set, is returned by NewChildNode.
	FailNewChild error
}

// NodeAdded records notification.
func (s *RecordingSink) NodeAdded(node datatree.Node) {
	s.Events = append(s.Events, Event{Type: "added", Path: node.NodePath(0), NodeDepth: node.Depth()})
}

// NodeChanged records notification.
func (s *RecordingSink) NodeChanged(node datatree.Node, oldPayload types.Payload, flags types.ChangeFlags) {
	s.Events = append(s.Events, Event{Type: "changed", Path: node.NodePath(0), Payload: oldPayload, Flags: flags})
}

// NodeAboutToBeRemoved records notification.
func (s *RecordingSink) NodeAboutToBeRemoved(node datatree.Node, payload types.Payload) {
	s.Events = append(s.Events, Event{Type: "removing", Path: node.NodePath(0), Payload: payload})
}

// IndexEntryInserted records notification.
func (s *RecordingSink) IndexEntryInserted(node datatree.Node, position uint64, childName string) {
	s.Events = append(s.Events, Event{
		Type:      "inserted",
		Path:      node.NodePath(0),
		Position:  position,
		ChildName: childName,
	})
}

// IndexEntryRemoved records notification.
func (s *RecordingSink) IndexEntryRemoved(node datatree.Node, position uint64, childName string) {
	s.Events = append(s.Events, Event{
		Type:      "removed",
		Path:      node.NodePath(0),
		Position:  position,
		ChildName: childName,
	})
}

// NewChildNode creates new node or returns injected error.
func (s *RecordingSink) NewChildNode(name string, payload types.Payload) (datatree.Node, error) {
	if s.FailNewChild != nil {
		return datatree.Node{}, s.FailNewChild
	}
	return s.BaseSink.NewChildNode(name, payload)
}

// Summary returns events in compact "type path [position childName]" form.
func (s *RecordingSink) Summary() []string {
	summary := make([]string, 0, len(s.Events))
	for _, e := range s.Events {
		switch e.Type {
		case "inserted", "removed":
			summary = append(summary, e.Type+" "+e.Path+" "+strconv.FormatUint(e.Position, 10)+" "+e.ChildName)
		default:
			summary = append(summary, e.Type+" "+e.Path)
		}
	}
	return summary
}

// Reset forgets recorded events.
func (s *RecordingSink) Reset() {
	s.Events = nil
}
