package hub

import (
	"github.com/outofforest/datatree/types"
)

// EventType defines type of the event delivered to subscriber.
type EventType int

// Event types.
const (
	EventNodeUpdated EventType = iota
	EventNodeRemoved
	EventIndexEntryInserted
	EventIndexEntryRemoved
)

func (t EventType) String() string {
	switch t {
	case EventNodeUpdated:
		return "updated"
	case EventNodeRemoved:
		return "removed"
	case EventIndexEntryInserted:
		return "index_inserted"
	case EventIndexEntryRemoved:
		return "index_removed"
	default:
		return "unknown"
	}
}

// Event is delivered to subscribers interested in the node.
type Event struct {
	Type EventType

	// Path is the path of the node. For index events it is the path of the node owning the index.
	Path string

	// Payload is the current payload of the node, or the last one if node is being removed.
	Payload types.Payload

	Flags types.ChangeFlags

	// Position and ChildName are set for index events only.
	Position  uint64
	ChildName string
}

// Entry is the snapshot of node returned by Get.
type Entry struct {
	Path    string
	Payload types.Payload
}
